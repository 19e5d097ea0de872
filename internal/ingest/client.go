// Package ingest owns the streaming log subscription: it classifies raw log
// notifications from the tracked programs, hydrates each classified signature
// through the resolver, and projects the result onto the event bus.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/events"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/resolver"
	"solana-token-radar/internal/solana"
)

// DetailResolver hydrates a signature into transaction details. Satisfied by
// *resolver.Resolver.
type DetailResolver interface {
	Resolve(ctx context.Context, signature string) *resolver.TxDetails
}

// Client consumes log notifications and emits typed domain events. Each
// classified signature is resolved in its own goroutine so one slow
// resolution never delays the others.
type Client struct {
	ws       *solana.WSClient
	resolver DetailResolver
	bus      *events.Bus
	log      *logrus.Entry
	now      func() time.Time

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(ws *solana.WSClient, res DetailResolver, bus *events.Bus, log *logrus.Logger) *Client {
	return &Client{
		ws:       ws,
		resolver: res,
		bus:      bus,
		log:      log.WithField("component", "ingest"),
		now:      time.Now,
	}
}

// Start opens the streaming connection and begins consuming notifications.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.ws.Start(cctx); err != nil {
		cancel()
		return err
	}

	c.wg.Add(1)
	go c.consume(cctx)
	return nil
}

// Stop closes the socket without reconnecting and waits for in-flight
// resolutions to finish or observe cancellation.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.ws.Stop()
	c.wg.Wait()
}

func (c *Client) consume(ctx context.Context) {
	defer c.wg.Done()

	for n := range c.ws.Notifications() {
		observability.RecordNotificationReceived()
		cls, ok := Classify(n)
		if !ok {
			continue
		}
		c.wg.Add(1)
		go func(n solana.LogNotification, cls Classification) {
			defer c.wg.Done()
			c.process(ctx, n, cls)
		}(n, cls)
	}
}

func (c *Client) process(ctx context.Context, n solana.LogNotification, cls Classification) {
	details := c.resolver.Resolve(ctx, n.Signature)
	if details == nil {
		observability.RecordSignatureDropped()
		c.log.WithFields(logrus.Fields{
			"signature": n.Signature,
			"category":  cls.Category.String(),
		}).Debug("dropping unresolvable signature")
		return
	}

	ev, ok := project(cls, details, c.now())
	if !ok {
		return
	}

	c.log.WithFields(logrus.Fields{
		"signature": n.Signature,
		"category":  cls.Category.String(),
		"mint":      details.Mint,
		"program":   cls.Program.Label,
	}).Debug("emitting event")

	observability.RecordEventEmitted(string(ev.Kind))
	c.bus.Publish(ev)
}

// project maps resolved details onto the typed event for the classification.
func project(cls Classification, d *resolver.TxDetails, ts time.Time) (domain.Event, bool) {
	switch cls.Category {
	case CategoryNewToken:
		return domain.Event{
			Kind: domain.EventNewToken,
			NewToken: &domain.NewTokenEvent{
				Mint:             d.Mint,
				Name:             d.Name,
				Symbol:           d.Symbol,
				Creator:          d.Actor,
				BondingCurve:     d.Pool,
				InitialLiquidity: d.SolAmount,
				TxSignature:      d.Signature,
				Timestamp:        ts,
			},
		}, true
	case CategoryTrade:
		return domain.Event{
			Kind: domain.EventTrade,
			Trade: &domain.TradeEvent{
				Mint:        d.Mint,
				Side:        cls.Side,
				Trader:      d.Actor,
				SolAmount:   d.SolAmount,
				TokenAmount: d.TokenAmount,
				TxSignature: d.Signature,
				Timestamp:   ts,
			},
		}, true
	case CategoryGraduation:
		return domain.Event{
			Kind: domain.EventGraduation,
			Graduation: &domain.GraduationEvent{
				Mint:        d.Mint,
				PairAddress: d.Pool,
				DexID:       cls.Program.Label,
				TxSignature: d.Signature,
				Timestamp:   ts,
			},
		}, true
	default:
		return domain.Event{}, false
	}
}

var _ DetailResolver = (*resolver.Resolver)(nil)
