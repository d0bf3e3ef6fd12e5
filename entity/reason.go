package entity

import "fmt"

// ConnectionReason names the evidence behind a classified connection.
//
// The vocabulary is closed and versioned: classification must only emit
// values defined here, and an unrecognized reason string is a programming
// error, not runtime input. Reasons are grouped into categories; the
// category drives nothing at runtime but is preserved for reporting.
type ConnectionReason string

// ReasonCategory groups connection reasons for reporting.
type ReasonCategory string

const (
	// CategoryDirectMatch covers exact identity matches between records.
	CategoryDirectMatch ReasonCategory = "direct_data_match"

	// CategoryCryptographic covers matching cryptographic material.
	CategoryCryptographic ReasonCategory = "cryptographic"

	// CategoryPlatform covers shared platform accounts and profiles.
	CategoryPlatform ReasonCategory = "platform"

	// CategoryPattern covers string-pattern heuristics.
	CategoryPattern ReasonCategory = "pattern_based"

	// CategoryGeographic covers location-derived evidence.
	CategoryGeographic ReasonCategory = "geographic"

	// CategoryTemporal covers time-correlated evidence.
	CategoryTemporal ReasonCategory = "temporal"

	// CategoryNetwork covers network-infrastructure evidence.
	CategoryNetwork ReasonCategory = "network"

	// CategoryFallback covers last-resort reasons that guarantee every
	// classification produces a non-empty reason list.
	CategoryFallback ReasonCategory = "fallback"
)

// Direct data matches.
const (
	ReasonSameBreachRecord ConnectionReason = "same_breach_record"
	ReasonSameEmail        ConnectionReason = "same_email"
	ReasonSamePhone        ConnectionReason = "same_phone"
	ReasonSameUsername     ConnectionReason = "same_username"
	ReasonSameIP           ConnectionReason = "same_ip"
	ReasonSamePassword     ConnectionReason = "same_password"
	ReasonSameDomain       ConnectionReason = "same_domain"
	ReasonSameAddress      ConnectionReason = "same_address"
	ReasonSameName         ConnectionReason = "same_name"
)

// Cryptographic matches.
const (
	ReasonSamePasswordHash      ConnectionReason = "same_password_hash"
	ReasonSameSSHKeyFingerprint ConnectionReason = "same_ssh_key_fingerprint"
	ReasonSamePGPKey            ConnectionReason = "same_pgp_key"
	ReasonSameCertSerial        ConnectionReason = "same_certificate_serial"
)

// Platform matches.
const (
	ReasonSameLinkedInProfile  ConnectionReason = "same_linkedin_profile"
	ReasonSameTwitterHandle    ConnectionReason = "same_twitter_handle"
	ReasonSameGithubAccount    ConnectionReason = "same_github_account"
	ReasonSameFacebookID       ConnectionReason = "same_facebook_id"
	ReasonSameTelegramID       ConnectionReason = "same_telegram_id"
	ReasonSharedPlatformHandle ConnectionReason = "shared_platform_handle"
)

// Pattern-based heuristics.
const (
	ReasonUsernameContainsEmailPrefix ConnectionReason = "username_contains_email_prefix"
	ReasonSimilarUsername             ConnectionReason = "similar_username"
	ReasonSameSurname                 ConnectionReason = "same_surname"
	ReasonEmailPatternMatch           ConnectionReason = "email_pattern_match"
	ReasonSimilarDisplayName          ConnectionReason = "similar_display_name"
	ReasonSharedPasswordPattern       ConnectionReason = "shared_password_pattern"
)

// Geographic evidence.
const (
	ReasonSameGeolocation ConnectionReason = "same_geolocation"
	ReasonSameCity        ConnectionReason = "same_city"
	ReasonSameRegion      ConnectionReason = "same_region"
	ReasonSameCountry     ConnectionReason = "same_country"
	ReasonSameTimezone    ConnectionReason = "same_timezone"
)

// Temporal evidence.
const (
	ReasonTemporalCorrelation  ConnectionReason = "temporal_correlation"
	ReasonSameRegistrationDate ConnectionReason = "same_registration_date"
	ReasonSameBreachDate       ConnectionReason = "same_breach_date"
	ReasonAccountAgeMatch      ConnectionReason = "account_age_match"
)

// Network infrastructure evidence.
const (
	ReasonSameASN          ConnectionReason = "same_asn"
	ReasonSameIPSubnet     ConnectionReason = "same_ip_subnet"
	ReasonSameRegistrar    ConnectionReason = "same_registrar"
	ReasonSameNameServer   ConnectionReason = "same_name_server"
	ReasonSameWhoisContact ConnectionReason = "same_whois_contact"
)

// Fallback reasons.
const (
	// ReasonSimilarityScore marks a generic string-similarity match above
	// the configured threshold.
	ReasonSimilarityScore ConnectionReason = "similarity_score"

	// ReasonInvestigatorInference is the last-resort reason. It always
	// matches, guaranteeing a non-empty reason list for every connection.
	ReasonInvestigatorInference ConnectionReason = "investigator_inference"
)

// reasonCategories maps every reason to its category. This map doubles as
// the validity table: a reason not present here is not part of the
// versioned vocabulary.
var reasonCategories = map[ConnectionReason]ReasonCategory{
	ReasonSameBreachRecord: CategoryDirectMatch,
	ReasonSameEmail:        CategoryDirectMatch,
	ReasonSamePhone:        CategoryDirectMatch,
	ReasonSameUsername:     CategoryDirectMatch,
	ReasonSameIP:           CategoryDirectMatch,
	ReasonSamePassword:     CategoryDirectMatch,
	ReasonSameDomain:       CategoryDirectMatch,
	ReasonSameAddress:      CategoryDirectMatch,
	ReasonSameName:         CategoryDirectMatch,

	ReasonSamePasswordHash:      CategoryCryptographic,
	ReasonSameSSHKeyFingerprint: CategoryCryptographic,
	ReasonSamePGPKey:            CategoryCryptographic,
	ReasonSameCertSerial:        CategoryCryptographic,

	ReasonSameLinkedInProfile:  CategoryPlatform,
	ReasonSameTwitterHandle:    CategoryPlatform,
	ReasonSameGithubAccount:    CategoryPlatform,
	ReasonSameFacebookID:       CategoryPlatform,
	ReasonSameTelegramID:       CategoryPlatform,
	ReasonSharedPlatformHandle: CategoryPlatform,

	ReasonUsernameContainsEmailPrefix: CategoryPattern,
	ReasonSimilarUsername:             CategoryPattern,
	ReasonSameSurname:                 CategoryPattern,
	ReasonEmailPatternMatch:           CategoryPattern,
	ReasonSimilarDisplayName:          CategoryPattern,
	ReasonSharedPasswordPattern:       CategoryPattern,

	ReasonSameGeolocation: CategoryGeographic,
	ReasonSameCity:        CategoryGeographic,
	ReasonSameRegion:      CategoryGeographic,
	ReasonSameCountry:     CategoryGeographic,
	ReasonSameTimezone:    CategoryGeographic,

	ReasonTemporalCorrelation:  CategoryTemporal,
	ReasonSameRegistrationDate: CategoryTemporal,
	ReasonSameBreachDate:       CategoryTemporal,
	ReasonAccountAgeMatch:      CategoryTemporal,

	ReasonSameASN:          CategoryNetwork,
	ReasonSameIPSubnet:     CategoryNetwork,
	ReasonSameRegistrar:    CategoryNetwork,
	ReasonSameNameServer:   CategoryNetwork,
	ReasonSameWhoisContact: CategoryNetwork,

	ReasonSimilarityScore:       CategoryFallback,
	ReasonInvestigatorInference: CategoryFallback,
}

// IsValid returns true if the reason is part of the versioned vocabulary.
func (r ConnectionReason) IsValid() bool {
	_, ok := reasonCategories[r]
	return ok
}

// Category returns the reason's category, or an empty category for
// unrecognized reasons.
func (r ConnectionReason) Category() ReasonCategory {
	return reasonCategories[r]
}

// String returns the string representation of the reason.
func (r ConnectionReason) String() string { return string(r) }

// Validate checks that the reason is part of the vocabulary. A failure here
// indicates a defect in classification code, never bad runtime input.
func (r ConnectionReason) Validate() error {
	if !r.IsValid() {
		return fmt.Errorf("connection reason %q is not in the versioned vocabulary", r)
	}
	return nil
}

// ValidateReasons validates a full reason list and rejects empty lists.
// Classification guarantees at least one reason via the fallback tier, so
// an empty list is an internal defect.
func ValidateReasons(reasons []ConnectionReason) error {
	if len(reasons) == 0 {
		return fmt.Errorf("empty connection reason list")
	}
	for _, r := range reasons {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AllConnectionReasons returns every reason in the vocabulary, grouped by
// category in declaration order. Useful for documentation and validation.
func AllConnectionReasons() []ConnectionReason {
	return []ConnectionReason{
		ReasonSameBreachRecord, ReasonSameEmail, ReasonSamePhone,
		ReasonSameUsername, ReasonSameIP, ReasonSamePassword,
		ReasonSameDomain, ReasonSameAddress, ReasonSameName,
		ReasonSamePasswordHash, ReasonSameSSHKeyFingerprint,
		ReasonSamePGPKey, ReasonSameCertSerial,
		ReasonSameLinkedInProfile, ReasonSameTwitterHandle,
		ReasonSameGithubAccount, ReasonSameFacebookID,
		ReasonSameTelegramID, ReasonSharedPlatformHandle,
		ReasonUsernameContainsEmailPrefix, ReasonSimilarUsername,
		ReasonSameSurname, ReasonEmailPatternMatch,
		ReasonSimilarDisplayName, ReasonSharedPasswordPattern,
		ReasonSameGeolocation, ReasonSameCity, ReasonSameRegion,
		ReasonSameCountry, ReasonSameTimezone,
		ReasonTemporalCorrelation, ReasonSameRegistrationDate,
		ReasonSameBreachDate, ReasonAccountAgeMatch,
		ReasonSameASN, ReasonSameIPSubnet, ReasonSameRegistrar,
		ReasonSameNameServer, ReasonSameWhoisContact,
		ReasonSimilarityScore, ReasonInvestigatorInference,
	}
}
