package events

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"solana-token-radar/internal/domain"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestBus_PublishDeliversToKindSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	var got []domain.Event
	bus.Subscribe(domain.EventNewToken, func(ev domain.Event) {
		got = append(got, ev)
	})

	bus.Publish(domain.Event{Kind: domain.EventNewToken, NewToken: &domain.NewTokenEvent{Mint: "m1"}})
	bus.Publish(domain.Event{Kind: domain.EventTrade, Trade: &domain.TradeEvent{Mint: "m1"}})

	assert.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].NewToken.Mint)
}

func TestBus_SubscribeAllReceivesEveryKind(t *testing.T) {
	bus := NewBus(testLogger())

	var count int
	bus.SubscribeAll(func(domain.Event) { count++ })

	bus.Publish(domain.Event{Kind: domain.EventNewToken})
	bus.Publish(domain.Event{Kind: domain.EventTrade})
	bus.Publish(domain.Event{Kind: domain.EventGraduation})

	assert.Equal(t, 3, count)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(testLogger())

	var count int
	unsub := bus.Subscribe(domain.EventTrade, func(domain.Event) { count++ })

	bus.Publish(domain.Event{Kind: domain.EventTrade})
	unsub()
	bus.Publish(domain.Event{Kind: domain.EventTrade})

	// Unsubscribe is idempotent.
	unsub()
	bus.Publish(domain.Event{Kind: domain.EventTrade})

	assert.Equal(t, 1, count)
}

func TestBus_PanickingHandlerDoesNotBreakOthers(t *testing.T) {
	bus := NewBus(testLogger())

	var delivered int
	bus.Subscribe(domain.EventTrade, func(domain.Event) {
		panic("listener bug")
	})
	bus.Subscribe(domain.EventTrade, func(domain.Event) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Publish(domain.Event{Kind: domain.EventTrade})
	})
	assert.Equal(t, 1, delivered)
}
