package store

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// codeAlphabet drops 0/O and 1/I so codes survive being read aloud at the
// counter or copied off a receipt.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// GenerateOrderCode produces the short token handed to a self-service
// customer and later keyed in by the cashier.
func GenerateOrderCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order code: %w", err)
	}

	code := make([]byte, codeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	return string(code), nil
}

// NormalizeOrderCode is the only form ever stored or compared. Lookups are a
// plain indexed equality on the normalized column, never a substring scan
// over a display label.
func NormalizeOrderCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
