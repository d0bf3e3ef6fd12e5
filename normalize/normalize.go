package normalize

import (
	"strings"
	"unicode"

	"github.com/lattice-osint/engine/entity"
)

// Key is an entity identity key: the canonical scope and normalized value
// a raw observation reduces to.
type Key struct {
	// Scope is the canonical scope the raw field maps to.
	Scope string

	// Value is the normalized display value.
	Value string
}

// Canonical scopes produced by the field table.
const (
	ScopeEmail    = "email"
	ScopePhone    = "phone"
	ScopeUsername = "username"
	ScopeName     = "name"
	ScopeDomain   = "domain"
	ScopeIP       = "ip"
	ScopeURL      = "url"
	ScopeCompany  = "company"
	ScopePassword = "password"
	ScopeAddress  = "address"
	ScopeJobTitle = "job_title"
	ScopeSchool   = "school"
)

// fieldScopes is the fixed table from raw provider field names to
// canonical scopes. Field names not present here fall back to themselves.
var fieldScopes = map[string]string{
	"email":           ScopeEmail,
	"emails":          ScopeEmail,
	"email_address":   ScopeEmail,
	"phone":           ScopePhone,
	"phones":          ScopePhone,
	"phone_number":    ScopePhone,
	"username":        ScopeUsername,
	"usernames":       ScopeUsername,
	"handle":          ScopeUsername,
	"name":            ScopeName,
	"full_name":       ScopeName,
	"first_name":      ScopeName,
	"last_name":       ScopeName,
	"display_name":    ScopeName,
	"domain":          ScopeDomain,
	"domains":         ScopeDomain,
	"registered_domains": ScopeDomain,
	"breach_domains":  ScopeDomain,
	"ip":              ScopeIP,
	"ips":             ScopeIP,
	"ip_address":      ScopeIP,
	"last_ip":         ScopeIP,
	"url":             ScopeURL,
	"urls":            ScopeURL,
	"linkedin_url":    ScopeURL,
	"linkedin_urls":   ScopeURL,
	"account_urls":    ScopeURL,
	"websites":        ScopeURL,
	"website":         ScopeURL,
	"picture_urls":    ScopeURL,
	"company":         ScopeCompany,
	"employer":        ScopeCompany,
	"password":        ScopePassword,
	"passwords":       ScopePassword,
	"hashed_password": ScopePassword,
	"address":         ScopeAddress,
	"addresses":       ScopeAddress,
	"job_title":       ScopeJobTitle,
	"job_titles":      ScopeJobTitle,
	"school":          ScopeSchool,
	"schools":         ScopeSchool,
	"education":       ScopeSchool,
}

// scopeTypes maps canonical scopes onto entity types for observations that
// arrive without an explicit type.
var scopeTypes = map[string]entity.Type{
	ScopeEmail:    entity.TypeEmail,
	ScopePhone:    entity.TypePhone,
	ScopeUsername: entity.TypeUsername,
	ScopeName:     entity.TypeName,
	ScopeDomain:   entity.TypeDomain,
	ScopeIP:       entity.TypeIP,
	ScopeURL:      entity.TypeURL,
	ScopeCompany:  entity.TypeCompany,
	ScopePassword: entity.TypePassword,
	ScopeAddress:  entity.TypeAddress,
	ScopeJobTitle: entity.TypeJobTitle,
	ScopeSchool:   entity.TypeSchool,
}

// Field reduces a raw field name and raw value to the entity identity key.
// It never fails: unmapped field names use the lowercased field name itself
// as scope.
func Field(fieldName, rawValue string) Key {
	scope := Scope(fieldName)
	return Key{Scope: scope, Value: Value(scope, rawValue)}
}

// Scope maps a raw field name to its canonical scope.
func Scope(fieldName string) string {
	name := strings.ToLower(strings.TrimSpace(fieldName))
	if scope, ok := fieldScopes[name]; ok {
		return scope
	}
	return name
}

// TypeForScope returns the entity type implied by a canonical scope.
// Unknown scopes fall back to the name type, the conservative weak default.
func TypeForScope(scope string) entity.Type {
	if t, ok := scopeTypes[scope]; ok {
		return t
	}
	return entity.TypeName
}

// Value normalizes a raw value for the given canonical scope:
// lower-cased, trimmed, internal whitespace runs collapsed to one space;
// URL scopes additionally lose their scheme, leading "www." and trailing
// slash; phone scopes retain digits and a leading "+" only.
func Value(scope, raw string) string {
	v := collapseWhitespace(strings.ToLower(strings.TrimSpace(raw)))

	switch scope {
	case ScopeURL, ScopeDomain:
		v = stripURLDecoration(v)
	case ScopePhone:
		v = normalizePhone(v)
	}
	return v
}

// collapseWhitespace reduces every internal whitespace run to one space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripURLDecoration removes the scheme, a leading "www." and a trailing
// slash from a URL-bearing value.
func stripURLDecoration(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	return s
}

// normalizePhone keeps digits and a single leading "+".
func normalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EmailDomain splits the domain out of a normalized email address.
// Returns an empty string when the value is not a well-formed address.
// Entities created from this value are marked inferred.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}
