package payment

import (
	"regexp"
	"strings"
)

// msisdnPattern is the canonical Kenyan mobile format: country code 254
// followed by nine digits, no separators.
var msisdnPattern = regexp.MustCompile(`^254[0-9]{9}$`)

// NormalizePhone converts a payer phone number to the canonical 254XXXXXXXXX
// form and validates it. Accepted inputs: 07XXXXXXXX / 01XXXXXXXX local
// forms, +254XXXXXXXXX, bare 7XXXXXXXX / 1XXXXXXXX, and the canonical form
// itself. Anything else is a ValidationError.
func NormalizePhone(raw string) (string, error) {
	// Strip every non-digit character (spaces, dashes, leading +)
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := b.String()

	switch {
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		// Local form 07XXXXXXXX or 01XXXXXXXX
		phone = "254" + phone[1:]
	case len(phone) == 9 && (strings.HasPrefix(phone, "7") || strings.HasPrefix(phone, "1")):
		// Bare subscriber number with the prefix dropped entirely
		phone = "254" + phone
	}

	if !msisdnPattern.MatchString(phone) {
		return "", &ValidationError{Field: "phone", Reason: "must be a valid Kenyan mobile number"}
	}
	return phone, nil
}
