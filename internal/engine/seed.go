package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Seed is a 64-bit raid den seed. Its text form is 16 lowercase hex digits.
type Seed uint64

// ParseSeed parses a hex seed. Input is case-insensitive, may carry a 0x prefix
// and may omit leading zeros. Anything that does not fit in 64 bits is rejected.
func ParseSeed(s string) (Seed, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 2 && (trimmed[:2] == "0x" || trimmed[:2] == "0X") {
		trimmed = trimmed[2:]
	}
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty seed", ErrInvalidSeed)
	}

	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %q exceeds 0xffffffffffffffff", ErrInvalidSeed, s)
		}
		return 0, fmt.Errorf("%w: %q is not hexadecimal", ErrInvalidSeed, s)
	}
	return Seed(v), nil
}

// String formats the seed as 16 zero-padded lowercase hex digits
func (s Seed) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Seed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Seed) UnmarshalText(text []byte) error {
	parsed, err := ParseSeed(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Next returns the seed of the following frame
func (s Seed) Next() Seed {
	return Seed(uint64(s) + MagicSeed)
}
