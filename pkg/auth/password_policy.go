package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var errPasswordRequired = errors.New("password is required")

// PasswordPolicy defines password complexity requirements. MaxBytes bounds
// the encoded length; bcrypt cannot hash more than 72 bytes. Zero values
// disable a check.
type PasswordPolicy struct {
	MinLength        int
	MaxBytes         int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy returns the policy applied when none is configured.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength: 8,
		MaxBytes:  BcryptMaxPasswordBytes,
	}
}

type charClass struct {
	label string
	match func(rune) bool
}

var (
	classUpper   = charClass{"an uppercase letter", unicode.IsUpper}
	classLower   = charClass{"a lowercase letter", unicode.IsLower}
	classNumber  = charClass{"a number", unicode.IsDigit}
	classSpecial = charClass{"a special character", func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
	}}
)

func (p *PasswordPolicy) classes() []charClass {
	var out []charClass
	if p.RequireUppercase {
		out = append(out, classUpper)
	}
	if p.RequireLowercase {
		out = append(out, classLower)
	}
	if p.RequireNumber {
		out = append(out, classNumber)
	}
	if p.RequireSpecial {
		out = append(out, classSpecial)
	}
	return out
}

// ValidatePassword checks password against the policy. Length is checked
// first; missing character classes are reported together.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if password == "" {
		return errPasswordRequired
	}
	if p.MinLength > 0 && utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		return fmt.Errorf("password must be at most %d bytes long", p.MaxBytes)
	}

	var missing []string
	for _, c := range p.classes() {
		if strings.IndexFunc(password, c.match) < 0 {
			missing = append(missing, c.label)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("password must contain %s", strings.Join(missing, ", "))
	}
	return nil
}

// Requirements describes the policy for display next to a password field.
func (p *PasswordPolicy) Requirements() string {
	var parts []string
	if p.MinLength > 0 {
		parts = append(parts, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	for _, c := range p.classes() {
		parts = append(parts, c.label)
	}
	if len(parts) == 0 {
		return "No password requirements"
	}
	return "Password must contain " + strings.Join(parts, ", ")
}
