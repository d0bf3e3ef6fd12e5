package entity

import "fmt"

// Type identifies the kind of real-world value an entity represents.
type Type string

const (
	// TypeEmail is an email address.
	TypeEmail Type = "email"

	// TypePhone is a phone number.
	TypePhone Type = "phone"

	// TypeUsername is a platform account handle.
	TypeUsername Type = "username"

	// TypePerson is a full personal name extracted from a record.
	TypePerson Type = "person"

	// TypeName is a free-form name field (first, last, or display name).
	TypeName Type = "name"

	// TypeDomain is a registered or breach-observed domain name.
	TypeDomain Type = "domain"

	// TypeIP is an IPv4 or IPv6 address.
	TypeIP Type = "ip"

	// TypeURL is a web address (profile URLs, websites, picture URLs).
	TypeURL Type = "url"

	// TypeLinkedIn is a LinkedIn profile URL. Classified with URL strength.
	TypeLinkedIn Type = "linkedin"

	// TypeWhois is a WHOIS registration contact.
	TypeWhois Type = "whois"

	// TypeCompany is an employer or organization name.
	TypeCompany Type = "company"

	// TypePassword is a plaintext or hashed credential from a breach.
	TypePassword Type = "password"

	// TypeAddress is a postal address.
	TypeAddress Type = "address"

	// TypeJobTitle is an occupation or job title field.
	TypeJobTitle Type = "job_title"

	// TypeSchool is an education institution name.
	TypeSchool Type = "school"
)

// Strength expresses how specific an entity type is as an identifier.
// Strong types (an email, a phone number) pinpoint a subject on their own;
// weak types (a name, a password) are shared by many subjects.
type Strength int

const (
	// Weak types are low-specificity identifiers. A connection involving a
	// weak type is never auto-verified on type grounds alone.
	Weak Strength = iota

	// Strong types are high-specificity identifiers. Two strong types
	// co-occurring form a VERIFIED connection.
	Strong
)

// strengths is the static weak/strong partition of the type vocabulary.
// Types absent from this table default to Weak (conservative).
var strengths = map[Type]Strength{
	TypeEmail:    Strong,
	TypePhone:    Strong,
	TypeIP:       Strong,
	TypeDomain:   Strong,
	TypeURL:      Strong,
	TypeLinkedIn: Strong,
	TypeWhois:    Strong,

	TypePassword: Weak,
	TypePerson:   Weak,
	TypeName:     Weak,
	TypeUsername: Weak,
}

// Strength returns the specificity class of the type. Types outside the
// known vocabulary (and types with no recorded strength such as company or
// job_title) are treated as Weak.
func (t Type) Strength() Strength {
	if s, ok := strengths[t]; ok {
		return s
	}
	return Weak
}

// IsStrong reports whether the type is a high-specificity identifier.
func (t Type) IsStrong() bool { return t.Strength() == Strong }

// IsValid returns true if the type is in the known vocabulary.
func (t Type) IsValid() bool {
	switch t {
	case TypeEmail, TypePhone, TypeUsername, TypePerson, TypeName, TypeDomain,
		TypeIP, TypeURL, TypeLinkedIn, TypeWhois, TypeCompany, TypePassword,
		TypeAddress, TypeJobTitle, TypeSchool:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type.
func (t Type) String() string { return string(t) }

// ParseType parses a string into a Type value.
// Returns an error if the string is not in the known vocabulary.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid entity type: %q", s)
	}
	return t, nil
}

// AllTypes returns all known entity types in a stable order.
func AllTypes() []Type {
	return []Type{
		TypeEmail, TypePhone, TypeUsername, TypePerson, TypeName, TypeDomain,
		TypeIP, TypeURL, TypeLinkedIn, TypeWhois, TypeCompany, TypePassword,
		TypeAddress, TypeJobTitle, TypeSchool,
	}
}
