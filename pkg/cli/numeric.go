package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// parseUint reads a decimal or 0x prefixed hexadecimal number that fits in
// bits.
func parseUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, err := strconv.ParseUint(digits, base, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q, expected decimal or 0x prefixed hex", s)
	}
	return v, nil
}

func parseID(s string) (uint32, error) {
	v, err := parseUint(s, 29)
	return uint32(v), err
}

func parseByte(s string) (byte, error) {
	v, err := parseUint(s, 8)
	return byte(v), err
}

// idValue is a flag holding an arbitration id.
type idValue uint32

func (v *idValue) String() string {
	return fmt.Sprintf("0x%x", uint32(*v))
}

func (v *idValue) Set(s string) error {
	id, err := parseID(s)
	if err != nil {
		return err
	}
	*v = idValue(id)
	return nil
}

func (v *idValue) Type() string {
	return "id"
}

// idListValue is a repeatable, comma separated list of arbitration ids.
type idListValue []uint32

func (v *idListValue) String() string {
	parts := make([]string, len(*v))
	for i, id := range *v {
		parts[i] = fmt.Sprintf("0x%x", id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (v *idListValue) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		id, err := parseID(part)
		if err != nil {
			return err
		}
		*v = append(*v, id)
	}
	return nil
}

func (v *idListValue) Type() string {
	return "ids"
}
