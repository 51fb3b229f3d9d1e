package diag

import (
	"context"
	"testing"
	"time"

	"github.com/roffe/udsfuzz/pkg/canbus"
	"github.com/roffe/udsfuzz/pkg/ecusim"
	"github.com/roffe/udsfuzz/pkg/isotp"
	"github.com/roffe/udsfuzz/pkg/uds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startECU(t *testing.T, cfg ecusim.Config) (*Client, *ecusim.ECU) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := canbus.NewVirtual()
	ecu := ecusim.New(hub.Endpoint(), cfg)
	done := make(chan error, 1)
	go func() { done <- ecu.Run(ctx) }()
	c := New(hub.Endpoint(), cfg.RequestID, cfg.ResponseID, WithTimeout(time.Second))
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		c.Close()
	})
	return c, ecu
}

func TestSessionAndSeed(t *testing.T) {
	ctx := context.Background()
	c, ecu := startECU(t, ecusim.Default())

	resp, err := c.DiagnosticSessionControl(ctx, uds.EXTENDED_DIAGNOSTIC_SESSION)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Positive)
	assert.Equal(t, byte(uds.EXTENDED_DIAGNOSTIC_SESSION), ecu.Session())

	resp, err = c.SecurityAccessRequestSeed(ctx, 0x01)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Positive)
	assert.Len(t, resp.Payload, 5)

	resp, err = c.SecurityAccessRequestSeed(ctx, 0x03)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Positive)
	assert.Equal(t, byte(uds.SUB_FUNCTION_NOT_SUPPORTED_IN_ACTIVE_SESSION), resp.NRC)

	resp, err = c.ECUReset(ctx, uds.HARD_RESET)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Positive)
	assert.Equal(t, 1, ecu.Resets())
}

func TestTesterPresent(t *testing.T) {
	ctx := context.Background()
	c, _ := startECU(t, ecusim.Default())
	resp, err := c.TesterPresent(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Positive)

	resp, err = c.TesterPresent(ctx, true)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestMultiFrameResponse(t *testing.T) {
	ctx := context.Background()
	cfg := ecusim.Default()
	cfg.Seed = func(time.Duration, int) []byte {
		return []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}
	c, _ := startECU(t, cfg)
	_, err := c.DiagnosticSessionControl(ctx, uds.EXTENDED_DIAGNOSTIC_SESSION)
	require.NoError(t, err)
	resp, err := c.SecurityAccessRequestSeed(ctx, 0x01)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []byte{0x01, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, resp.Payload)
}

func TestTimeout(t *testing.T) {
	hub := canbus.NewVirtual()
	c := New(hub.Endpoint(), 0x7E0, 0x7E8, WithTimeout(20*time.Millisecond))
	defer c.Close()
	resp, err := c.Request(context.Background(), uds.TESTER_PRESENT, 0x00)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestIgnoresUnrelatedTraffic(t *testing.T) {
	ctx := context.Background()
	hub := canbus.NewVirtual()
	peer := hub.Endpoint()
	defer peer.Close()
	c := New(hub.Endpoint(), 0x7E0, 0x7E8, WithTimeout(time.Second))
	defer c.Close()

	go func() {
		f, err := peer.Recv(ctx, time.Second)
		if err != nil || f == nil {
			return
		}
		peer.Send(ctx, canbus.Frame{ID: 0x123, Data: []byte{0x02, 0x50, 0x01}})
		peer.Send(ctx, canbus.Frame{ID: 0x7E8, Data: []byte{0x03, 0x7F, 0x22, 0x31}})
		peer.Send(ctx, canbus.Frame{ID: 0x7E8, Data: []byte{0x03, 0x7F, 0x27, 0x78}})
	}()
	resp, err := c.SecurityAccessRequestSeed(ctx, 0x01)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Pending())
}

func TestMultiFrameRequest(t *testing.T) {
	ctx := context.Background()
	hub := canbus.NewVirtual()
	peer := hub.Endpoint()
	defer peer.Close()
	c := New(hub.Endpoint(), 0x7E0, 0x7E8, WithTimeout(time.Second))
	defer c.Close()

	payload := []byte{0xF1, 0x90, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	got := make(chan []byte, 1)
	go func() {
		var r isotp.Reassembler
		for {
			f, err := peer.Recv(ctx, time.Second)
			if err != nil || f == nil {
				got <- nil
				return
			}
			msg, fc, err := r.Feed(f.Data)
			if err != nil {
				got <- nil
				return
			}
			if fc {
				peer.Send(ctx, canbus.Frame{ID: 0x7E8, Data: isotp.FlowControl(isotp.FlowContinueToSend, 0, 0)})
				continue
			}
			if msg != nil {
				got <- msg
				peer.Send(ctx, canbus.Frame{ID: 0x7E8, Data: []byte{0x03, 0x6E, 0xF1, 0x90}})
				return
			}
		}
	}()
	resp, err := c.Request(ctx, uds.WRITE_DATA_BY_IDENTIFIER, payload...)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Positive)
	assert.Equal(t, append([]byte{uds.WRITE_DATA_BY_IDENTIFIER}, payload...), <-got)
}

func TestCanceled(t *testing.T) {
	hub := canbus.NewVirtual()
	c := New(hub.Endpoint(), 0x7E0, 0x7E8)
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Request(ctx, uds.TESTER_PRESENT, 0x00)
	assert.ErrorIs(t, err, context.Canceled)
}
