// internal/machine/serial.go
package machine

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"fleetmaint/internal/domainerr"
)

const (
	MinSerialLength = 3
	MaxSerialLength = 50
)

const serialMask = "****"

var serialCharset = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// SerialNumber is a normalized manufacturer serial code.
type SerialNumber struct {
	value string
}

// NewSerialNumber trims and upper-cases raw, then validates length, charset and
// that at least one alphanumeric character is present.
func NewSerialNumber(raw string) (SerialNumber, error) {
	if strings.TrimSpace(raw) == "" {
		return SerialNumber{}, invalidSerial("serial number is required")
	}

	v := strings.ToUpper(strings.TrimSpace(raw))

	if n := utf8.RuneCountInString(v); n < MinSerialLength || n > MaxSerialLength {
		return SerialNumber{}, invalidSerial("serial number must be between %d and %d characters", MinSerialLength, MaxSerialLength)
	}
	if !serialCharset.MatchString(v) {
		return SerialNumber{}, invalidSerial("serial number may only contain A-Z, 0-9, '-' and '_'")
	}
	if strings.Trim(v, "-_") == "" {
		return SerialNumber{}, invalidSerial("serial number cannot consist only of separators")
	}
	if !hasAlphanumeric(v) {
		return SerialNumber{}, invalidSerial("serial number must contain a letter or digit")
	}

	return SerialNumber{value: v}, nil
}

// MustSerialNumber panics on invalid input.
func MustSerialNumber(raw string) SerialNumber {
	s, err := NewSerialNumber(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s SerialNumber) Value() string  { return s.value }
func (s SerialNumber) String() string { return s.value }
func (s SerialNumber) IsZero() bool   { return s.value == "" }

func (s SerialNumber) Equals(other SerialNumber) bool {
	return s.value == other.value
}

// Masked hides the middle of the serial for log output.
func (s SerialNumber) Masked() string {
	n := len(s.value)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return s.value[:2] + "**"
	case n < 8:
		return s.value[:2] + serialMask + s.value[n-2:]
	default:
		return s.value[:3] + serialMask + s.value[n-2:]
	}
}

// Matches reports whether the serial matches pattern. An invalid pattern
// never matches.
func (s SerialNumber) Matches(pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s.value)
}

func (s SerialNumber) MarshalText() ([]byte, error) {
	return []byte(s.value), nil
}

func (s *SerialNumber) UnmarshalText(text []byte) error {
	v, err := NewSerialNumber(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func hasAlphanumeric(v string) bool {
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

func invalidSerial(format string, args ...any) error {
	return domainerr.Newf(domainerr.CodeInvalidSerialNumber, format, args...)
}
