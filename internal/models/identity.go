package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var identityValidate = validator.New()

// NormalizeEmail returns the dedup key of an email address
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone returns the dedup key of a phone number: digits only.
// A national number with a trunk 0 loses it, and a bare 10-digit number
// gets defaultCountryCode prepended.
func NormalizePhone(raw, defaultCountryCode string) string {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if international {
		return digits
	}
	if len(digits) == 11 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) == 10 && defaultCountryCode != "" {
		digits = defaultCountryCode + digits
	}
	return digits
}

// IdentityKey returns the normalized key of a contact for kind, or "" when the
// contact has no usable address of that kind.
func IdentityKey(kind IdentityKind, contact *ContactRecord, defaultCountryCode string) string {
	if contact == nil {
		return ""
	}
	switch kind {
	case IdentityEmail:
		return NormalizeEmail(contact.Email)
	case IdentityPhone:
		return NormalizePhone(contact.Phone, defaultCountryCode)
	default:
		return ""
	}
}

// ValidEmailKey reports whether key is a deliverable email address
func ValidEmailKey(key string) bool {
	return key != "" && identityValidate.Var(key, "email") == nil
}

// ValidPhoneKey reports whether key looks like an E.164 number without the plus
func ValidPhoneKey(key string) bool {
	if len(key) < 8 || len(key) > 15 || key[0] == '0' {
		return false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
