// Package uds implements the ISO 14229-1 request and response codec used by
// the scanners.
package uds

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyResponse = errors.New("empty response")

// Response is a decoded diagnostic response.
type Response struct {
	// ServiceID is the request service id the response answers.
	ServiceID byte
	Positive  bool
	// NRC is set for negative responses.
	NRC byte
	// Payload holds the bytes after the response service id for positive
	// responses, including any echoed sub-function.
	Payload []byte
	Raw     []byte
}

// Err returns the negative response as an *Error, or nil.
func (r *Response) Err() error {
	if r == nil || r.Positive {
		return nil
	}
	return TranslateErrorCode(r.ServiceID, r.NRC)
}

// Pending reports whether the response is "request correctly received,
// response pending".
func (r *Response) Pending() bool {
	return r != nil && !r.Positive && r.NRC == REQUEST_CORRECTLY_RECEIVED_RESPONSE_PENDING
}

func (r *Response) String() string {
	if r == nil {
		return "<no response>"
	}
	if r.Positive {
		return fmt.Sprintf("positive 0x%02X [%s]", r.ServiceID, Hex(r.Payload))
	}
	return fmt.Sprintf("negative 0x%02X %s (0x%02X)", r.ServiceID, NRCName(r.NRC), r.NRC)
}

// IsPositive reports whether a raw response is a positive response.
func IsPositive(data []byte) bool {
	return len(data) > 0 && data[0] != NEGATIVE_RESPONSE
}

// EncodeRequest builds the request message for sid followed by payload.
func EncodeRequest(sid byte, payload ...byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, sid)
	return append(out, payload...)
}

// DecodeResponse decodes a complete response message.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}
	r := &Response{Raw: data}
	if data[0] == NEGATIVE_RESPONSE {
		if len(data) < 3 {
			return nil, fmt.Errorf("negative response too short: %d bytes", len(data))
		}
		r.ServiceID = data[1]
		r.NRC = data[2]
		return r, nil
	}
	if data[0] < POSITIVE_RESPONSE_OFFSET {
		return nil, fmt.Errorf("invalid response service id 0x%02X", data[0])
	}
	r.Positive = true
	r.ServiceID = data[0] - POSITIVE_RESPONSE_OFFSET
	r.Payload = data[1:]
	return r, nil
}

// Hex formats b as space separated hex bytes.
func Hex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
