package fuzz

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/uds"
)

func positive(sid byte, payload ...byte) *uds.Response {
	return &uds.Response{ServiceID: sid, Positive: true, Payload: payload}
}

func negative(sid, nrc byte) *uds.Response {
	return &uds.Response{ServiceID: sid, NRC: nrc}
}

// fakeClient records every request and tracks the active session.
type fakeClient struct {
	calls   []string
	current byte
	session func(st byte) (*uds.Response, error)
	seed    func(current, level byte) (*uds.Response, error)
	reset   func(rt byte) (*uds.Response, error)
}

func (f *fakeClient) DiagnosticSessionControl(ctx context.Context, st byte) (*uds.Response, error) {
	f.calls = append(f.calls, fmt.Sprintf("10%02x", st))
	if f.session == nil {
		return negative(uds.DIAGNOSTIC_SESSION_CONTROL, uds.SUB_FUNCTION_NOT_SUPPORTED), nil
	}
	resp, err := f.session(st)
	if resp != nil && resp.Positive {
		f.current = st
	}
	return resp, err
}

func (f *fakeClient) SecurityAccessRequestSeed(ctx context.Context, level byte) (*uds.Response, error) {
	f.calls = append(f.calls, fmt.Sprintf("27%02x", level))
	if f.seed == nil {
		return negative(uds.SECURITY_ACCESS, uds.SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION), nil
	}
	return f.seed(f.current, level)
}

func (f *fakeClient) ECUReset(ctx context.Context, rt byte) (*uds.Response, error) {
	f.calls = append(f.calls, fmt.Sprintf("11%02x", rt))
	f.current = uds.DEFAULT_SESSION
	if f.reset == nil {
		return positive(uds.ECU_RESET, rt), nil
	}
	return f.reset(rt)
}

func (f *fakeClient) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if c[:2] == prefix {
			n++
		}
	}
	return n
}

// sleepRecorder replaces the real sleep.
type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

func mustScript(s string) Script {
	sc, err := ParseScript(s)
	if err != nil {
		panic(err)
	}
	return sc
}
