package fuzz

import (
	"context"
	"testing"
	"time"

	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDelayAttacker(t *testing.T, c Client, cfg DelayConfig) (*DelayAttacker, *sleepRecorder) {
	t.Helper()
	cfg.Logger = logger.Discard()
	d, err := NewDelayAttacker(c, cfg)
	require.NoError(t, err)
	rec := &sleepRecorder{}
	d.sleep = rec.sleep
	return d, rec
}

func nonZero(ds []time.Duration) []time.Duration {
	var out []time.Duration
	for _, d := range ds {
		if d > 0 {
			out = append(out, d)
		}
	}
	return out
}

func TestDelayAttackerFifthPass(t *testing.T) {
	c := &fakeClient{session: sessions(0x03), seed: seedCounter()}
	initial := 11 * time.Millisecond
	d, rec := newDelayAttacker(t, c, DelayConfig{
		ResetType:    uds.HARD_RESET,
		Script:       mustScript("1003 2705"),
		Target:       []byte{0xAB, 0x05},
		InitialDelay: initial,
		Increment:    time.Millisecond,
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 5, res.Passes)
	assert.Equal(t, initial+4*time.Millisecond, res.Delay)
	assert.Equal(t, 5, res.Seeds.Len())
	assert.Equal(t, []time.Duration{
		11 * time.Millisecond,
		12 * time.Millisecond,
		13 * time.Millisecond,
		14 * time.Millisecond,
		15 * time.Millisecond,
	}, nonZero(rec.slept))
	assert.Equal(t, 5, c.count("11"))
}

func TestDelayAttackerFailedPassContinues(t *testing.T) {
	pass := 0
	c := &fakeClient{seed: seedCounter()}
	c.session = func(st byte) (*uds.Response, error) {
		pass++
		if pass == 2 {
			return negative(uds.DIAGNOSTIC_SESSION_CONTROL, uds.CONDITIONS_NOT_CORRECT), nil
		}
		return positive(uds.DIAGNOSTIC_SESSION_CONTROL, st), nil
	}
	d, _ := newDelayAttacker(t, c, DelayConfig{
		ResetType: uds.HARD_RESET,
		Script:    mustScript("1003 2705"),
		Target:    []byte{0xAB, 0x02},
		Increment: time.Millisecond,
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	// pass 2 never asked for a seed, the second seed came on pass 3
	assert.Equal(t, 3, res.Passes)
	assert.Equal(t, 2*time.Millisecond, res.Delay)
	assert.Equal(t, []time.Duration{0, 2 * time.Millisecond}, res.SeedDelays)
}

func TestDelayAttackerMaxPasses(t *testing.T) {
	c := &fakeClient{seed: func(_, level byte) (*uds.Response, error) {
		return positive(uds.SECURITY_ACCESS, level, 0x00), nil
	}}
	d, _ := newDelayAttacker(t, c, DelayConfig{
		ResetType:    uds.HARD_RESET,
		Script:       mustScript("2701"),
		Target:       []byte{0xFF},
		InitialDelay: 10 * time.Millisecond,
		MaxPasses:    3,
	})
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 3, res.Passes)
	assert.Equal(t, 12*time.Millisecond, res.Delay)
	assert.Equal(t, []Duplicate{{Seed: "00", Count: 3}}, res.Seeds.Duplicates())
}

func TestDelayAttackerInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	c := &fakeClient{seed: func(_, level byte) (*uds.Response, error) {
		n++
		if n == 7 {
			cancel()
		}
		return positive(uds.SECURITY_ACCESS, level, 0x00), nil
	}}
	d, _ := newDelayAttacker(t, c, DelayConfig{ResetType: uds.HARD_RESET, Script: mustScript("2701"), Target: []byte{0x01}})
	res, err := d.Run(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 7, res.Seeds.Len())
}

func TestDelayFor(t *testing.T) {
	d, _ := newDelayAttacker(t, &fakeClient{}, DelayConfig{
		ResetType:    uds.HARD_RESET,
		Script:       mustScript("2701"),
		Target:       []byte{0x01},
		InitialDelay: 3901 * time.Millisecond,
	})
	assert.Equal(t, 3901*time.Millisecond, d.DelayFor(0))
	assert.Equal(t, 3905*time.Millisecond, d.DelayFor(4))
}

func TestDelayValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  DelayConfig
	}{
		{"no seed step", DelayConfig{ResetType: uds.HARD_RESET, Script: mustScript("1003"), Target: []byte{1}}},
		{"no target", DelayConfig{ResetType: uds.HARD_RESET, Script: mustScript("2701")}},
		{"negative delay", DelayConfig{ResetType: uds.HARD_RESET, Script: mustScript("2701"), Target: []byte{1}, InitialDelay: -1}},
		{"negative increment", DelayConfig{ResetType: uds.HARD_RESET, Script: mustScript("2701"), Target: []byte{1}, Increment: -1}},
		{"negative passes", DelayConfig{ResetType: uds.HARD_RESET, Script: mustScript("2701"), Target: []byte{1}, MaxPasses: -1}},
		{"reserved reset type", DelayConfig{Script: mustScript("2701"), Target: []byte{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDelayAttacker(&fakeClient{}, tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
