// Package isotp implements ISO 15765-2 segmentation and reassembly for
// classic 8 byte CAN frames.
package isotp

import (
	"errors"
	"fmt"
	"time"
)

const (
	SingleFrame      = 0x0
	FirstFrame       = 0x1
	ConsecutiveFrame = 0x2
	FlowControlFrame = 0x3
)

const (
	FlowContinueToSend = 0x0
	FlowWait           = 0x1
	FlowOverflow       = 0x2
)

const (
	FrameSize      = 8
	MaxSingleFrame = FrameSize - 1
	MaxMessageSize = 0xFFF
	PaddingByte    = 0x00
)

var (
	ErrEmptyPayload     = errors.New("empty payload")
	ErrPayloadTooLarge  = fmt.Errorf("payload larger than %d bytes", MaxMessageSize)
	ErrUnexpectedFrame  = errors.New("unexpected frame")
	ErrSequence         = errors.New("consecutive frame out of sequence")
	ErrInvalidFrameType = errors.New("invalid frame type")
)

// Type returns the protocol control information type of a frame.
func Type(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPayload
	}
	t := int(data[0] >> 4)
	if t > FlowControlFrame {
		return t, fmt.Errorf("%w: %d", ErrInvalidFrameType, t)
	}
	return t, nil
}

// Segment splits a message into frames. Every frame is padded to FrameSize.
func Segment(payload []byte) ([][]byte, error) {
	n := len(payload)
	switch {
	case n == 0:
		return nil, ErrEmptyPayload
	case n > MaxMessageSize:
		return nil, ErrPayloadTooLarge
	case n <= MaxSingleFrame:
		return [][]byte{pad(append([]byte{byte(n)}, payload...))}, nil
	}

	frames := make([][]byte, 0, 2+(n-6)/7)
	ff := []byte{byte(FirstFrame<<4) | byte(n>>8&0x0F), byte(n)}
	ff = append(ff, payload[:6]...)
	frames = append(frames, ff)

	seq := byte(1)
	for i := 6; i < n; i += 7 {
		end := min(i+7, n)
		cf := append([]byte{byte(ConsecutiveFrame<<4) | seq}, payload[i:end]...)
		frames = append(frames, pad(cf))
		seq = (seq + 1) & 0x0F
	}
	return frames, nil
}

func pad(b []byte) []byte {
	for len(b) < FrameSize {
		b = append(b, PaddingByte)
	}
	return b
}

// FlowControl builds a flow control frame.
func FlowControl(status, blockSize, stMin byte) []byte {
	return pad([]byte{byte(FlowControlFrame<<4) | status&0x0F, blockSize, stMin})
}

// ParseFlowControl decodes a flow control frame.
func ParseFlowControl(data []byte) (status, blockSize byte, separation time.Duration, err error) {
	t, err := Type(data)
	if err != nil {
		return 0, 0, 0, err
	}
	if t != FlowControlFrame || len(data) < 3 {
		return 0, 0, 0, ErrUnexpectedFrame
	}
	status = data[0] & 0x0F
	if status > FlowOverflow {
		return 0, 0, 0, fmt.Errorf("unknown flow status %d", status)
	}
	return status, data[1], STMin(data[2]), nil
}

// STMin converts a separation time byte to a duration. Reserved values map
// to the maximum of 127ms.
func STMin(b byte) time.Duration {
	switch {
	case b <= 0x7F:
		return time.Duration(b) * time.Millisecond
	case b >= 0xF1 && b <= 0xF9:
		return time.Duration(b-0xF0) * 100 * time.Microsecond
	default:
		return 127 * time.Millisecond
	}
}

// Reassembler collects the frames of one incoming message.
type Reassembler struct {
	buf    []byte
	length int
	seq    byte
	active bool
}

// Feed consumes one frame. It returns the complete message once all frames
// have arrived. needFlowControl is set after a first frame, the caller must
// then answer with a flow control frame.
func (r *Reassembler) Feed(data []byte) (msg []byte, needFlowControl bool, err error) {
	t, err := Type(data)
	if err != nil {
		return nil, false, err
	}
	switch t {
	case SingleFrame:
		r.Reset()
		n := int(data[0] & 0x0F)
		if n == 0 || n > len(data)-1 {
			return nil, false, fmt.Errorf("single frame length %d exceeds frame", n)
		}
		return append([]byte(nil), data[1:1+n]...), false, nil
	case FirstFrame:
		if len(data) < 2 {
			return nil, false, fmt.Errorf("%w: short first frame", ErrUnexpectedFrame)
		}
		r.Reset()
		r.length = int(data[0]&0x0F)<<8 | int(data[1])
		if r.length <= MaxSingleFrame {
			return nil, false, fmt.Errorf("first frame length %d too small", r.length)
		}
		r.buf = append(make([]byte, 0, r.length), data[2:]...)
		r.seq = 1
		r.active = true
		return nil, true, nil
	case ConsecutiveFrame:
		if !r.active {
			return nil, false, fmt.Errorf("%w: consecutive frame without first frame", ErrUnexpectedFrame)
		}
		if data[0]&0x0F != r.seq {
			r.Reset()
			return nil, false, ErrSequence
		}
		r.seq = (r.seq + 1) & 0x0F
		r.buf = append(r.buf, data[1:]...)
		if len(r.buf) >= r.length {
			out := r.buf[:r.length]
			r.Reset()
			return out, false, nil
		}
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%w: flow control while receiving", ErrUnexpectedFrame)
	}
}

// Active reports whether a multi frame message is in progress.
func (r *Reassembler) Active() bool {
	return r.active
}

func (r *Reassembler) Reset() {
	r.buf = nil
	r.length = 0
	r.seq = 0
	r.active = false
}
