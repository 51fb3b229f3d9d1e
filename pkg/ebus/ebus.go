// Package ebus is a small topic based event bus carrying float values.
// Scanners publish their progress on it and the command line renders it.
package ebus

import (
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/puzpuzpuz/xsync/v3"
)

var ErrFull = errors.New("publish channel full")

type Message struct {
	Topic string
	Value float64
}

type Bus struct {
	in        chan Message
	unsub     chan chan float64
	unsubAll  chan chan Message
	done      chan struct{}
	closeOnce sync.Once

	cache   *ttlcache.Cache[string, float64]
	subs    *xsync.MapOf[chan float64, string]
	subsAll *xsync.MapOf[chan Message, struct{}]

	aggregatorsLock sync.Mutex
	aggregators     []*Aggregator
}

// New starts a bus. Published values are remembered for ttl and replayed to
// new subscribers.
func New(ttl time.Duration) *Bus {
	b := &Bus{
		in:       make(chan Message, 100),
		unsub:    make(chan chan float64, 100),
		unsubAll: make(chan chan Message, 100),
		done:     make(chan struct{}),
		cache: ttlcache.New[string, float64](
			ttlcache.WithTTL[string, float64](ttl),
		),
		subs:    xsync.NewMapOf[chan float64, string](),
		subsAll: xsync.NewMapOf[chan Message, struct{}](),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case msg := <-b.in:
			if v := b.cache.Get(msg.Topic); v != nil && v.Value() == msg.Value {
				continue
			}
			b.cache.Set(msg.Topic, msg.Value, ttlcache.DefaultTTL)
			b.subsAll.Range(func(sub chan Message, _ struct{}) bool {
				select {
				case sub <- msg:
				default:
				}
				return true
			})
			b.subs.Range(func(sub chan float64, topic string) bool {
				if topic != msg.Topic {
					return true
				}
				select {
				case sub <- msg.Value:
				default:
				}
				return true
			})
			b.aggregatorsLock.Lock()
			for _, agg := range b.aggregators {
				agg.fun(b, msg.Topic, msg.Value)
			}
			b.aggregatorsLock.Unlock()
		case sub := <-b.unsubAll:
			if _, ok := b.subsAll.LoadAndDelete(sub); ok {
				close(sub)
			}
		case sub := <-b.unsub:
			if _, ok := b.subs.LoadAndDelete(sub); ok {
				close(sub)
			}
		case <-b.done:
			b.subsAll.Range(func(sub chan Message, _ struct{}) bool {
				b.subsAll.Delete(sub)
				close(sub)
				return true
			})
			b.subs.Range(func(sub chan float64, _ string) bool {
				b.subs.Delete(sub)
				close(sub)
				return true
			})
			return
		}
	}
}

// Publish is a no-op on a nil bus.
func (b *Bus) Publish(topic string, value float64) error {
	if b == nil {
		return nil
	}
	select {
	case b.in <- Message{Topic: topic, Value: value}:
		return nil
	default:
		return ErrFull
	}
}

// Get returns the last value published on topic.
func (b *Bus) Get(topic string) (float64, bool) {
	if itm := b.cache.Get(topic); itm != nil {
		return itm.Value(), true
	}
	return 0, false
}

func (b *Bus) Subscribe(topic string) chan float64 {
	respChan := make(chan float64, 100)
	if itm := b.cache.Get(topic); itm != nil {
		respChan <- itm.Value()
	}
	b.subs.Store(respChan, topic)
	return respChan
}

// SubscribeFunc returns a function that can be used to unsubscribe the function
func (b *Bus) SubscribeFunc(topic string, f func(float64)) func() {
	respChan := b.Subscribe(topic)
	go func() {
		for v := range respChan {
			f(v)
		}
	}()
	return func() {
		b.Unsubscribe(respChan)
	}
}

func (b *Bus) Unsubscribe(channel chan float64) {
	select {
	case b.unsub <- channel:
	case <-b.done:
	}
}

func (b *Bus) SubscribeAll() chan Message {
	respChan := make(chan Message, 100)
	b.cache.Range(func(item *ttlcache.Item[string, float64]) bool {
		select {
		case respChan <- Message{Topic: item.Key(), Value: item.Value()}:
			return true
		default:
			return false
		}
	})
	b.subsAll.Store(respChan, struct{}{})
	return respChan
}

func (b *Bus) SubscribeAllFunc(f func(topic string, value float64)) func() /*unsubscribe*/ {
	respChan := b.SubscribeAll()
	go func() {
		for v := range respChan {
			f(v.Topic, v.Value)
		}
	}()
	return func() {
		b.UnsubscribeAll(respChan)
	}
}

func (b *Bus) UnsubscribeAll(channel chan Message) {
	select {
	case b.unsubAll <- channel:
	case <-b.done:
	}
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		close(b.done)
	})
}
