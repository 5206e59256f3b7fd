package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-authcore/pkg/domain"
)

// ErrInvalidUsername is returned by ValidateUsername.
var ErrInvalidUsername = errors.New("username must be 3-30 characters of letters, digits, '.', '_' or '-' and start with a letter or digit")

// usernameRegex validates username format: 3-30 chars, alphanumeric start.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{2,29}$`)

const (
	maxNameLength   = 100
	maxAvatarLength = 2048
)

// ValidateUsername checks the username format.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// IsEmail reports whether a login identifier should be treated as an email.
func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// InputValidator checks request payloads before they reach the store.
type InputValidator struct {
	Policy          *PasswordPolicy
	StrictEmail     bool
	BlockDisposable bool
}

func (v *InputValidator) policy() *PasswordPolicy {
	if v == nil || v.Policy == nil {
		return DefaultPasswordPolicy()
	}
	return v.Policy
}

func (v *InputValidator) checkEmail(errs *domain.ValidationError, email string) {
	var strict, block bool
	if v != nil {
		strict, block = v.StrictEmail, v.BlockDisposable
	}
	errs.AddError("email", ValidateEmail(email, strict, block))
}

func checkName(errs *domain.ValidationError, name string) {
	switch {
	case strings.TrimSpace(name) == "":
		errs.Add("name", "name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		errs.AddError("name", ValidateStringLength("name", name, 0, maxNameLength))
	}
}

// ValidateRegistration returns a *domain.ValidationError listing every bad field.
func (v *InputValidator) ValidateRegistration(in RegisterInput) error {
	errs := &domain.ValidationError{}
	checkName(errs, in.Name)
	v.checkEmail(errs, in.Email)
	if in.Username != "" {
		errs.AddError("username", ValidateUsername(strings.TrimSpace(in.Username)))
	}
	errs.AddError("password", v.policy().ValidatePassword(in.Password))
	return errs.Err()
}

// ValidateLogin checks that both an identifier and a password were supplied.
func (v *InputValidator) ValidateLogin(in LoginInput) error {
	errs := &domain.ValidationError{}
	if strings.TrimSpace(in.Identifier) == "" {
		errs.Add("identifier", "email or username is required")
	}
	if in.Password == "" {
		errs.Add("password", "password is required")
	}
	return errs.Err()
}

// ValidateProfileUpdate validates only the fields present in the update.
func (v *InputValidator) ValidateProfileUpdate(in ProfileUpdate) error {
	errs := &domain.ValidationError{}
	if in.Name != nil {
		checkName(errs, *in.Name)
	}
	if in.Email != nil {
		v.checkEmail(errs, *in.Email)
	}
	if in.Avatar != nil && *in.Avatar != "" {
		errs.AddError("avatar", ValidateStringLength("avatar", *in.Avatar, 0, maxAvatarLength))
	}
	if in.Name == nil && in.Email == nil && in.Avatar == nil {
		errs.Add("body", "no updatable fields supplied")
	}
	return errs.Err()
}

// ValidateRecovery checks the fields used by the recovery flow. needCode and
// needPassword select the fields the current step takes.
func (v *InputValidator) ValidateRecovery(email, code, password string, needCode, needPassword bool) error {
	errs := &domain.ValidationError{}
	if strings.TrimSpace(email) == "" {
		errs.Add("email", "email is required")
	}
	if needCode && strings.TrimSpace(code) == "" {
		errs.Add("otp", "otp is required")
	}
	if needPassword {
		errs.AddError("newPassword", v.policy().ValidatePassword(password))
	}
	return errs.Err()
}

// SanitizeName trims a display name and strips control characters. The value
// is stored raw; escaping is left to whatever renders it.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	return name
}

// ValidateStringLength checks the rune length of value. A bound of zero is
// not enforced.
func ValidateStringLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if min > 0 && n < min {
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	}
	if max > 0 && n > max {
		return fmt.Errorf("%s must be at most %d characters long", field, max)
	}
	return nil
}
