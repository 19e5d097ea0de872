package ingest

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/events"
	"solana-token-radar/internal/resolver"
	"solana-token-radar/internal/solana"
)

func newTestClient(res DetailResolver) (*Client, *events.Bus) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	bus := events.NewBus(log)
	return New(nil, res, bus, log), bus
}

func TestProcessPublishesTradeEvent(t *testing.T) {
	res := &fixedResolver{details: &resolver.TxDetails{Mint: "Mint", Actor: "Trader", SolAmount: 0.5, TokenAmount: 100}}
	c, bus := newTestClient(res)

	var got []domain.Event
	bus.Subscribe(domain.EventTrade, func(ev domain.Event) {
		got = append(got, ev)
	})

	notif := solana.LogNotification{Signature: "sig1", Logs: pumpLogs("Buy")}
	cls, ok := Classify(notif)
	require.True(t, ok)
	c.process(context.Background(), notif, cls)

	require.Len(t, got, 1)
	assert.Equal(t, "sig1", got[0].Trade.TxSignature)
	assert.Equal(t, domain.TradeBuy, got[0].Trade.Side)
	assert.Equal(t, 1, res.calls)
}

func TestProcessSkipsUnresolvableSignatures(t *testing.T) {
	res := &fixedResolver{}
	c, bus := newTestClient(res)

	published := 0
	bus.SubscribeAll(func(domain.Event) { published++ })

	notif := solana.LogNotification{Signature: "sig1", Logs: pumpLogs("Create")}
	cls, ok := Classify(notif)
	require.True(t, ok)
	c.process(context.Background(), notif, cls)

	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 0, published)
}
