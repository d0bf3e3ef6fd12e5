package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeStrength(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		want Strength
	}{
		{"email is strong", TypeEmail, Strong},
		{"phone is strong", TypePhone, Strong},
		{"ip is strong", TypeIP, Strong},
		{"domain is strong", TypeDomain, Strong},
		{"url is strong", TypeURL, Strong},
		{"linkedin is strong", TypeLinkedIn, Strong},
		{"whois is strong", TypeWhois, Strong},
		{"password is weak", TypePassword, Weak},
		{"person is weak", TypePerson, Weak},
		{"name is weak", TypeName, Weak},
		{"username is weak", TypeUsername, Weak},
		{"company defaults to weak", TypeCompany, Weak},
		{"job_title defaults to weak", TypeJobTitle, Weak},
		{"school defaults to weak", TypeSchool, Weak},
		{"address defaults to weak", TypeAddress, Weak},
		{"unknown type defaults to weak", Type("gamer_tag"), Weak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Strength())
		})
	}
}

// TestTypeStrengthExhaustive pins the full decision table: every valid type
// must have a deterministic strength so the type-pair verification decision
// stays exhaustively covered.
func TestTypeStrengthExhaustive(t *testing.T) {
	strong := map[Type]bool{
		TypeEmail: true, TypePhone: true, TypeIP: true, TypeDomain: true,
		TypeURL: true, TypeLinkedIn: true, TypeWhois: true,
	}
	for _, typ := range AllTypes() {
		t.Run(typ.String(), func(t *testing.T) {
			assert.Equal(t, strong[typ], typ.IsStrong())
		})
	}
}

func TestParseType(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		typ, err := ParseType("email")
		require.NoError(t, err)
		assert.Equal(t, TypeEmail, typ)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseType("blood_type")
		require.Error(t, err)
	})
}

func TestAllTypesAreValid(t *testing.T) {
	for _, typ := range AllTypes() {
		assert.True(t, typ.IsValid(), "type %s should be valid", typ)
	}
}
