package utils

import (
	"crypto/rand"
	"strings"
)

// codeAlphabet excludes 0/O/1/I/L so codes survive being read aloud at
// a clinic front desk or typed from a printout.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// BookingCodeLength is the fixed width of check-in codes.
const BookingCodeLength = 8

// NewBookingCode returns a fixed-width uppercase code generated from
// cryptographically secure random bytes.  Codes only need to be unique
// within a single provider; the bookings table enforces that with a
// composite unique key, and callers retry on a duplicate.
func NewBookingCode() (string, error) {
	buf := make([]byte, BookingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(BookingCodeLength)
	for _, by := range buf {
		b.WriteByte(codeAlphabet[int(by)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// NormalizeBookingCode trims surrounding whitespace and uppercases a
// user-entered code.  The resolver applies this itself rather than
// trusting callers, so scanned and hand-typed codes behave the same.
func NormalizeBookingCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
