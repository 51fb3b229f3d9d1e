package ebus_test

import (
	"testing"
	"time"

	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for value")
	}
	var zero T
	return zero
}

func TestPublish(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		data    float64
		wantErr bool
	}{
		{
			name:  "test",
			topic: "test",
			data:  1.23,
		},
	}
	b := ebus.New(time.Minute)
	defer b.Close()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Publish(tt.topic, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublishNil(t *testing.T) {
	var b *ebus.Bus
	assert.NoError(t, b.Publish("x", 1))
	b.Close()
}

func TestSubscribe(t *testing.T) {
	b := ebus.New(time.Minute)
	defer b.Close()

	ch := b.Subscribe("discovery.address")
	other := b.Subscribe("other")
	require.NoError(t, b.Publish("discovery.address", 3.14))
	assert.Equal(t, 3.14, recv(t, ch))

	// repeated values are suppressed
	require.NoError(t, b.Publish("discovery.address", 3.14))
	require.NoError(t, b.Publish("discovery.address", 4))
	assert.Equal(t, 4.0, recv(t, ch))
	assert.Len(t, other, 0)

	b.Unsubscribe(ch)
	for range ch {
	}
}

func TestSubscribeReplaysLastValue(t *testing.T) {
	b := ebus.New(time.Minute)
	defer b.Close()
	all := b.SubscribeAll()
	require.NoError(t, b.Publish("seeds", 7))
	assert.Equal(t, ebus.Message{Topic: "seeds", Value: 7}, recv(t, all))

	ch := b.Subscribe("seeds")
	assert.Equal(t, 7.0, recv(t, ch))
	v, ok := b.Get("seeds")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestSubscribeFunc(t *testing.T) {
	b := ebus.New(time.Minute)
	defer b.Close()
	got := make(chan float64, 1)
	cleanup := b.SubscribeFunc("test", func(v float64) {
		got <- v
	})
	require.NotNil(t, cleanup)
	require.NoError(t, b.Publish("test", 2.71))
	assert.Equal(t, 2.71, recv(t, got))
	cleanup()
}

func TestPercentAggregator(t *testing.T) {
	b := ebus.New(time.Minute)
	defer b.Close()
	b.RegisterAggregator(ebus.PercentAggregator("done", "total", "percent"))
	ch := b.Subscribe("percent")
	require.NoError(t, b.Publish("total", 200))
	require.NoError(t, b.Publish("done", 50))
	assert.Equal(t, 0.0, recv(t, ch))
	assert.Equal(t, 25.0, recv(t, ch))
}

func TestCloseClosesSubscriptions(t *testing.T) {
	b := ebus.New(time.Minute)
	ch := b.Subscribe("x")
	all := b.SubscribeAll()
	b.Close()
	b.Close()
	for range ch {
	}
	for range all {
	}
	b.Unsubscribe(ch)
}
