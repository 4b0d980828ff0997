package payment

import (
	"errors"
	"strings"
)

// ErrInvalidPhone signals the input cannot be normalized to an MSISDN.
var ErrInvalidPhone = errors.New("payment: invalid phone number")

const (
	countryPrefix = "254"
	// subscriber digits after the country prefix
	subscriberLen = 9
)

// NormalizeMSISDN canonicalizes phone input to 254XXXXXXXXX. Non-digits are
// stripped; a canonical 254-prefixed number passes through; a leading 0 is
// replaced with the country prefix; anything else keeps its last nine digits.
func NormalizeMSISDN(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, countryPrefix) && len(digits) == len(countryPrefix)+subscriberLen:
		return digits, nil
	case strings.HasPrefix(digits, "0"):
		digits = countryPrefix + digits[1:]
	case len(digits) >= subscriberLen:
		digits = countryPrefix + digits[len(digits)-subscriberLen:]
	default:
		return "", ErrInvalidPhone
	}

	if len(digits) != len(countryPrefix)+subscriberLen {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
