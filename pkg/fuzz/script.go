package fuzz

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/roffe/udsfuzz/pkg/uds"
)

type StepKind int

const (
	StepUnknown StepKind = iota
	StepSession
	StepSeed
	StepReset
)

func (k StepKind) String() string {
	switch k {
	case StepSession:
		return "session"
	case StepSeed:
		return "seed"
	case StepReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Step is one (service id, sub-function) pair.
type Step struct {
	Service     byte
	SubFunction byte
}

func (s Step) Kind() StepKind {
	switch s.Service {
	case uds.DIAGNOSTIC_SESSION_CONTROL:
		return StepSession
	case uds.SECURITY_ACCESS:
		return StepSeed
	case uds.ECU_RESET:
		return StepReset
	default:
		return StepUnknown
	}
}

func (s Step) String() string {
	return fmt.Sprintf("0x%02x 0x%02x", s.Service, s.SubFunction)
}

// Script is a fixed sequence of steps, written as hex pairs such as
// "1003 2705" (enter extended session, then request the level 5 seed).
type Script []Step

// ParseScript reads a script. Whitespace is ignored and the remaining hex
// digits are consumed four at a time.
func ParseScript(s string) (Script, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty sequence", ErrScript)
	}
	if len(clean)%4 != 0 {
		return nil, fmt.Errorf("%w: %q is not a list of 4 digit service and sub-function pairs", ErrScript, s)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScript, err)
	}
	out := make(Script, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		out = append(out, Step{Service: b[i], SubFunction: b[i+1]})
	}
	return out, nil
}

func (s Script) String() string {
	parts := make([]string, len(s))
	for i, st := range s {
		parts[i] = fmt.Sprintf("%02x%02x", st.Service, st.SubFunction)
	}
	return strings.Join(parts, " ")
}

// HasSeedStep reports whether the script requests a seed at all.
func (s Script) HasSeedStep() bool {
	for _, st := range s {
		if st.Kind() == StepSeed {
			return true
		}
	}
	return false
}
