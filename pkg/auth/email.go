package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

const maxEmailLength = 254

var (
	errEmailRequired   = errors.New("email address is required")
	errEmailMalformed  = errors.New("invalid email address format")
	errEmailDisposable = errors.New("disposable email addresses are not allowed")
)

// Throwaway inbox providers rejected when BlockDisposable is set.
var disposableDomains = map[string]struct{}{
	"10minutemail.com":  {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"tempmail.com":      {},
	"throwaway.email":   {},
	"yopmail.com":       {},
}

// strictEmailRegex accepts a bare addr-spec with a dotted hostname label set.
var strictEmailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// NormalizeEmail lowercases and trims an address. Accounts are keyed on the
// normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks an address. Display names ("Jane <jane@x.io>") are
// rejected: the input must be the bare address.
func ValidateEmail(email string, strict, blockDisposable bool) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return errEmailRequired
	}
	if len(normalized) > maxEmailLength {
		return fmt.Errorf("email address is too long (max %d characters)", maxEmailLength)
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return errEmailMalformed
	}
	if strict && !strictEmailRegex.MatchString(addr.Address) {
		return errEmailMalformed
	}
	if blockDisposable {
		_, host, _ := strings.Cut(addr.Address, "@")
		if _, ok := disposableDomains[host]; ok {
			return errEmailDisposable
		}
	}
	return nil
}
