package device

import (
	"fmt"
	"regexp"
	"strings"
)

var serialRegex = regexp.MustCompile(`^[A-F0-9]{12}$`)

// serialSeparators are stripped from raw identifiers. Firmware sends
// colon-delimited MACs; some labels use dashes.
var serialSeparators = strings.NewReplacer(":", "", "-", "")

// NormalizeSerial canonicalises a raw hardware identifier: separators are
// stripped and letters upper-cased. It does not validate; see ValidateSerial.
//
//	NormalizeSerial("aa:11:bb:22:cc:33") // "AA11BB22CC33"
func NormalizeSerial(raw string) string {
	return strings.ToUpper(serialSeparators.Replace(strings.TrimSpace(raw)))
}

// ValidateSerial checks that an already-normalised serial is 12 hex characters.
func ValidateSerial(serial string) error {
	if !serialRegex.MatchString(serial) {
		return fmt.Errorf("%w: %q (expected 12 hex characters, e.g. AA11BB22CC33)", ErrInvalidSerial, serial)
	}
	return nil
}

// ParseSerial normalises and validates in one step.
func ParseSerial(raw string) (string, error) {
	serial := NormalizeSerial(raw)
	if err := ValidateSerial(serial); err != nil {
		return "", err
	}
	return serial, nil
}
