package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"solana-token-radar/internal/observability"
)

// ErrAuthFailed is returned by Start when the credential was rejected (or is
// missing). The client will not attempt further connections.
var ErrAuthFailed = errors.New("authentication failed: credential missing or rejected")

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectBase is the backoff base: attempt n waits base * 2^n.
	ReconnectBase time.Duration
	// MaxReconnectAttempts caps reconnection; afterwards the client gives up
	// and stays disconnected.
	MaxReconnectAttempts int
	// HeartbeatInterval is the ping cadence while connected.
	HeartbeatInterval time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectBase:        1 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// ReconnectDelay computes the backoff delay for a reconnect attempt.
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// WSClient maintains a persistent logsSubscribe connection over
// gorilla/websocket. It owns the subscription set and the reconnection state
// machine; classified log notifications are delivered on a single channel.
type WSClient struct {
	endpoint string
	apiKey   string
	config   WSConfig
	log      logrus.FieldLogger

	conn   *websocket.Conn
	connMu sync.Mutex

	state     atomic.Int32
	closed    atomic.Bool
	started   atomic.Bool
	requestID atomic.Uint64

	// subs holds one handle per tracked program; pendingSubs maps an
	// outstanding subscribe request id to its handle awaiting the ack.
	subs          []*SubscriptionHandle
	pendingSubs   map[uint64]*SubscriptionHandle
	pendingSubsMu sync.Mutex

	notifications chan LogNotification

	// authLogged ensures the auth diagnostic is emitted exactly once.
	authLogged sync.Once

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a streaming client for the given tracked programs.
// The credential is embedded in the socket URL as a query parameter.
func NewWSClient(endpoint, apiKey string, programs []Program, config *WSConfig, log logrus.FieldLogger) *WSClient {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:      endpoint,
		apiKey:        apiKey,
		config:        cfg,
		log:           log,
		pendingSubs:   make(map[uint64]*SubscriptionHandle),
		notifications: make(chan LogNotification, 10000),
		done:          make(chan struct{}),
	}
	for _, p := range programs {
		c.subs = append(c.subs, &SubscriptionHandle{Program: p})
	}
	return c
}

// State returns the current connection state.
func (c *WSClient) State() ConnState {
	return ConnState(c.state.Load())
}

// Notifications returns the channel of inbound log notifications. The
// channel is closed when the client stops.
func (c *WSClient) Notifications() <-chan LogNotification {
	return c.notifications
}

// Subscriptions returns the tracked subscription handles.
func (c *WSClient) Subscriptions() []*SubscriptionHandle {
	return c.subs
}

// Start validates the credential and launches the connection loop.
// A missing credential short-circuits to AuthFailed without dialing.
// Start after AuthFailed returns ErrAuthFailed without any attempt.
func (c *WSClient) Start(ctx context.Context) error {
	if c.State() == StateAuthFailed {
		return ErrAuthFailed
	}
	if c.apiKey == "" {
		c.failAuth("credential missing or placeholder")
		return ErrAuthFailed
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop closes the socket without triggering reconnection and abandons any
// in-flight work. Safe to call more than once.
func (c *WSClient) Stop() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.notifications)

	if c.State() != StateAuthFailed {
		c.setState(StateDisconnected)
	}
}

// run drives the state machine: Connecting -> Connected, and on non-auth
// failures Reconnecting with exponential backoff until the attempt cap.
func (c *WSClient) run(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		if c.closed.Load() {
			return
		}

		c.setState(StateConnecting)
		err := c.connect(ctx)
		if err == nil {
			c.setState(StateConnected)
			attempt = 0

			if err = c.subscribeAll(); err == nil {
				err = c.readLoop()
			}
		}

		if c.closed.Load() {
			return
		}
		if isAuthError(err) {
			c.failAuth(err.Error())
			return
		}
		if attempt >= c.config.MaxReconnectAttempts {
			c.log.WithField("attempts", attempt).Error("websocket: giving up after max reconnect attempts")
			c.setState(StateDisconnected)
			return
		}

		delay := ReconnectDelay(c.config.ReconnectBase, attempt)
		attempt++
		observability.RecordReconnect()
		c.setState(StateReconnecting)
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
			"error":   err,
		}).Warn("websocket: connection lost, reconnecting")

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// connect dials the endpoint with the credential as a query parameter.
func (c *WSClient) connect(ctx context.Context) error {
	url := fmt.Sprintf("%s/?api-key=%s", strings.TrimRight(c.endpoint, "/"), c.apiKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, ErrAuthFailed)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// subscribeAll (re)issues a logsSubscribe for every tracked program. Called
// on every successful connect; server subscription ids are assigned when the
// matching acks arrive.
func (c *WSClient) subscribeAll() error {
	for _, handle := range c.subs {
		reqID := c.requestID.Add(1)

		req := wsRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "logsSubscribe",
			Params: []interface{}{
				map[string]interface{}{"mentions": []string{handle.Program.ID}},
				map[string]string{"commitment": "confirmed"},
			},
		}

		c.pendingSubsMu.Lock()
		c.pendingSubs[reqID] = handle
		c.pendingSubsMu.Unlock()

		c.connMu.Lock()
		conn := c.conn
		if conn == nil {
			c.connMu.Unlock()
			return fmt.Errorf("not connected")
		}
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		err := conn.WriteJSON(req)
		c.connMu.Unlock()

		if err != nil {
			return fmt.Errorf("write subscribe for %s: %w", handle.Program.Label, err)
		}

		c.log.WithFields(logrus.Fields{
			"program": handle.Program.ID,
			"label":   handle.Program.Label,
		}).Info("websocket: subscription requested")
	}
	return nil
}

// readLoop reads until the connection breaks, dispatching each frame. The
// heartbeat runs only while this loop does.
func (c *WSClient) readLoop() error {
	stopPing := make(chan struct{})
	c.wg.Add(1)
	go c.pingLoop(stopPing)
	defer close(stopPing)

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			// Binary frames are dropped silently.
			continue
		}
		c.handleMessage(message)
	}
}

// pingLoop sends periodic ping frames while connected. It is cancelled on
// every exit from the connected state.
func (c *WSClient) pingLoop(stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error; the run loop
				// handles reconnection.
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// handleMessage processes one inbound frame. Malformed payloads are dropped.
func (c *WSClient) handleMessage(message []byte) {
	// Subscription ack: bare numeric result, no method.
	var ack wsSubscribeResponse
	if err := json.Unmarshal(message, &ack); err == nil && ack.Method == "" && ack.Result > 0 {
		c.handleAck(&ack)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.handleLogsNotification(&notif)
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.log.WithFields(logrus.Fields{
			"code":    errResp.Error.Code,
			"message": errResp.Error.Message,
		}).Warn("websocket: error response")
	}
}

// handleAck records the server-assigned subscription id.
func (c *WSClient) handleAck(ack *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	handle, ok := c.pendingSubs[ack.ID]
	if ok {
		delete(c.pendingSubs, ack.ID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}
	handle.SubscriptionID.Store(ack.Result)
	c.log.WithFields(logrus.Fields{
		"label":        handle.Program.Label,
		"subscription": ack.Result,
	}).Info("websocket: subscription confirmed")
}

// handleLogsNotification forwards the notification to the consumer channel.
func (c *WSClient) handleLogsNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	value := notif.Params.Result.Value
	logNotif := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		logNotif.Slot = notif.Params.Result.Context.Slot
	}

	select {
	case c.notifications <- logNotif:
	case <-c.done:
	}
}

// failAuth moves to the terminal AuthFailed state and logs the diagnostic
// exactly once, with enough context to act on.
func (c *WSClient) failAuth(reason string) {
	c.setState(StateAuthFailed)
	c.authLogged.Do(func() {
		keyPrefix := ""
		if len(c.apiKey) >= 4 {
			keyPrefix = c.apiKey[:4]
		}
		c.log.WithFields(logrus.Fields{
			"reason":      reason,
			"key_length":  len(c.apiKey),
			"key_prefix":  keyPrefix,
			"remediation": "set HELIUS_API_KEY to a valid provider credential",
		}).Error("websocket: authentication failed, reconnection disabled")
	})
}

// setState transitions the connection state.
func (c *WSClient) setState(s ConnState) {
	// AuthFailed is terminal.
	if ConnState(c.state.Load()) == StateAuthFailed {
		return
	}
	c.state.Store(int32(s))
	observability.UpdateConnectionState(int(s))
}

// isAuthError classifies socket errors whose code or message indicates a
// rejected credential.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthFailed) {
		return true
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.ClosePolicyViolation, 4001, 4401, 4403:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unauthorized", "forbidden", "invalid api key", "api key", "401", "403"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
