package fuzz

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessions(allowed ...byte) func(st byte) (*uds.Response, error) {
	return func(st byte) (*uds.Response, error) {
		if slices.Contains(allowed, st) {
			return positive(uds.DIAGNOSTIC_SESSION_CONTROL, st), nil
		}
		return negative(uds.DIAGNOSTIC_SESSION_CONTROL, uds.SUB_FUNCTION_NOT_SUPPORTED), nil
	}
}

func subFunctions(seq []Step) []byte {
	out := make([]byte, len(seq))
	for i, s := range seq {
		out[i] = s.SubFunction
	}
	return out
}

func newSequenceFuzzer(t *testing.T, c Client, cfg SequenceConfig) (*SequenceFuzzer, *[][]byte) {
	t.Helper()
	var paths [][]byte
	cfg.Logger = logger.Discard()
	cfg.OnSequence = func(seq []Step) {
		paths = append(paths, subFunctions(seq))
	}
	f, err := NewSequenceFuzzer(c, cfg)
	require.NoError(t, err)
	f.probe.sleep = (&sleepRecorder{}).sleep
	return f, &paths
}

func TestVisitedSetCopyOnWrite(t *testing.T) {
	var v visitedSet
	w := v.with(0x03)
	x := w.with(0xFF)
	assert.False(t, v.has(0x03))
	assert.True(t, w.has(0x03))
	assert.False(t, w.has(0xFF))
	assert.True(t, x.has(0x03))
	assert.True(t, x.has(0xFF))
	assert.False(t, x.has(0x00))
	assert.True(t, visitedSet{}.with(0x40).has(0x40))
}

func TestSequenceFuzzerBacktracking(t *testing.T) {
	c := &fakeClient{session: sessions(0x01, 0x02)}
	f, paths := newSequenceFuzzer(t, c, SequenceConfig{})
	hits, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hits)

	// siblings reuse values, a path never repeats one
	assert.Equal(t, [][]byte{{1}, {1, 2}, {2}, {2, 1}}, *paths)
	for _, p := range *paths {
		seen := map[byte]bool{}
		for _, v := range p {
			assert.False(t, seen[v], "duplicate 0x%02x in %v", v, p)
			seen[v] = true
		}
	}
	// root 255, [1] 254, [1 2] 253, [2] 254, [2 1] 253
	assert.Equal(t, 255+254+253+254+253, c.count("10"))
	assert.Equal(t, 4*33, c.count("27"))
}

func TestSequenceFuzzerStopsAtFirstHit(t *testing.T) {
	c := &fakeClient{
		session: sessions(0x01, 0x03),
		seed: func(current, level byte) (*uds.Response, error) {
			if current == 0x03 && level == 0x05 {
				return positive(uds.SECURITY_ACCESS, level, 0x12, 0x34), nil
			}
			return negative(uds.SECURITY_ACCESS, uds.SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION), nil
		},
	}
	f, _ := newSequenceFuzzer(t, c, SequenceConfig{})
	hits, err := f.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []byte{0x01, 0x03}, subFunctions(hits[0].Sequence))
	assert.Equal(t, byte(0x05), hits[0].Level)
	assert.Equal(t, "2705", c.calls[len(c.calls)-1])
}

func TestSequenceFuzzerContinueAfterHit(t *testing.T) {
	c := &fakeClient{
		session: sessions(0x01, 0x03),
		seed: func(_, level byte) (*uds.Response, error) {
			if level == 0x01 {
				return positive(uds.SECURITY_ACCESS, level, 0xAA), nil
			}
			return negative(uds.SECURITY_ACCESS, uds.SUB_FUNCTION_NOT_SUPPORTED), nil
		},
	}
	f, paths := newSequenceFuzzer(t, c, SequenceConfig{ContinueAfterHit: true})
	hits, err := f.Run(context.Background())
	require.NoError(t, err)
	var got [][]byte
	for _, h := range hits {
		assert.Equal(t, byte(0x01), h.Level)
		got = append(got, subFunctions(h.Sequence))
	}
	assert.Equal(t, [][]byte{{1}, {1, 3}, {3}, {3, 1}}, got)
	assert.Equal(t, got, *paths)
}

func TestSequenceFuzzerBranchFailure(t *testing.T) {
	c := &fakeClient{}
	fives := 0
	c.session = func(st byte) (*uds.Response, error) {
		switch st {
		case 0x01, 0x02:
			return positive(uds.DIAGNOSTIC_SESSION_CONTROL, st), nil
		case 0x05:
			fives++
			// the second 0x05 is sent from node [1], after [1 2] is done
			if fives == 2 {
				return nil, errors.New("transport glitch")
			}
		}
		return negative(uds.DIAGNOSTIC_SESSION_CONTROL, uds.SUB_FUNCTION_NOT_SUPPORTED), nil
	}
	f, paths := newSequenceFuzzer(t, c, SequenceConfig{})
	hits, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, [][]byte{{1}, {1, 2}, {2}, {2, 1}}, *paths)

	// node [1] is abandoned at 0x05 and the root carries on with 0x02
	var sessionCalls []string
	for _, call := range c.calls {
		if call[:2] == "10" {
			sessionCalls = append(sessionCalls, call)
		}
	}
	idx := slices.Index(sessionCalls, "1005")
	idx += 1 + slices.Index(sessionCalls[idx+1:], "1005")
	assert.Equal(t, "1002", sessionCalls[idx+1])
	assert.Equal(t, 255+4+253+254+253, c.count("10"))
}

func TestSequenceFuzzerSeedErrorAbortsBranch(t *testing.T) {
	c := &fakeClient{
		session: sessions(0x01, 0x02),
		seed: func(current, level byte) (*uds.Response, error) {
			if current == 0x01 {
				return nil, errors.New("bus off")
			}
			return negative(uds.SECURITY_ACCESS, uds.SUB_FUNCTION_NOT_SUPPORTED), nil
		},
	}
	f, paths := newSequenceFuzzer(t, c, SequenceConfig{})
	_, err := f.Run(context.Background())
	require.NoError(t, err)
	// [1] is never descended into
	assert.Equal(t, [][]byte{{1}, {2}, {2, 1}}, *paths)
}

func TestSequenceFuzzerInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &fakeClient{
		session: sessions(0x01, 0x02),
		seed: func(current, level byte) (*uds.Response, error) {
			if level == 0x01 {
				return positive(uds.SECURITY_ACCESS, level, 0x01), nil
			}
			if current == 0x02 {
				cancel()
			}
			return negative(uds.SECURITY_ACCESS, uds.SUB_FUNCTION_NOT_SUPPORTED), nil
		},
	}
	f, _ := newSequenceFuzzer(t, c, SequenceConfig{ContinueAfterHit: true})
	hits, err := f.Run(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, hits)
	assert.Equal(t, []byte{0x01}, subFunctions(hits[0].Sequence))
}
