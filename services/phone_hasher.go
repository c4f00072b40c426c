package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PhoneHasher derives the one-way discovery digest for a phone number.
// Contacts are matched server-side by this digest only; the raw number
// never leaves the device for discovery. The pepper, when configured,
// is mixed in via HMAC so a leaked digest set cannot be reversed with a
// precomputed dictionary.
type PhoneHasher struct {
	pepper string
}

func NewPhoneHasher(pepper string) *PhoneHasher {
	return &PhoneHasher{pepper: pepper}
}

// CanonicalizePhoneNumber reduces every surface format of the same number
// to one deterministic string before hashing, so "+1 (555) 123-4567",
// "5551234567" and "+15551234567" all hash identically. Ten-digit numbers
// default to the +1 country code; eleven digits with a leading 1 are
// treated the same number. Unparseable input still yields a non-empty
// deterministic string; canonicalization never fails.
func CanonicalizePhoneNumber(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	case len(d) > 0:
		return "+" + d
	}
	// No digits at all. Fall back to the trimmed input so the result is
	// still deterministic and non-empty.
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return "invalid"
}

// Hash returns a 64-char hex digest of the canonical form. Pure function;
// it cannot fail.
func (h *PhoneHasher) Hash(phoneNumber string) string {
	canonical := CanonicalizePhoneNumber(phoneNumber)
	if h.pepper == "" {
		sum := sha256.Sum256([]byte(canonical))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(h.pepper))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashMany maps Hash over numbers, preserving input order.
func (h *PhoneHasher) HashMany(phoneNumbers []string) []string {
	out := make([]string, len(phoneNumbers))
	for i, n := range phoneNumbers {
		out[i] = h.Hash(n)
	}
	return out
}
