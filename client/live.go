package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
	"github.com/axiom-trade/exengine/money"
	"github.com/axiom-trade/exengine/orderstate"
)

const (
	pingInterval   = 30 * time.Second
	reconnectDelay = 5 * time.Second
)

// LiveClient is an ExecutionClient for REST+websocket venues: commands
// go out over REST via resty, and ack/reject/working/cancelled messages
// arrive asynchronously over a gorilla/websocket stream. Fill messages
// are not decoded: any other message type is logged as unhandled and
// dropped, so fills reach the engine only through reconciliation.
//
// Grounded on exec.Client's baseURL+httpClient shape and
// feeds/polymarket_ws.go's connect/pingLoop/readLoop reconnect idiom from
// the teacher repo.
type LiveClient struct {
	venue    identifiers.Venue
	baseURL  string
	wsURL    string
	rest     *resty.Client
	signer   *OrderSigner
	retry    RetryPolicy

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	stopCh    chan struct{}

	events chan event.Event
}

// Config holds the venue-specific connection parameters for a LiveClient.
type Config struct {
	Venue    identifiers.Venue
	BaseURL  string
	WSURL    string
	APIKey   string
	Timeout  time.Duration
	Retry    RetryPolicy
}

// NewLiveClient builds a LiveClient for one venue. signer may be nil. A
// non-nil signer is stored on the client but not used: SubmitOrder and
// SubmitBracketOrder post the order spec as JSON without signing it.
func NewLiveClient(cfg Config, signer *OrderSigner) *LiveClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rest.SetHeader("X-API-KEY", cfg.APIKey)
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = DefaultRetryPolicy()
	}

	return &LiveClient{
		venue:   cfg.Venue,
		baseURL: cfg.BaseURL,
		wsURL:   cfg.WSURL,
		rest:    rest,
		signer:  signer,
		retry:   retry,
		stopCh:  make(chan struct{}),
		events:  make(chan event.Event, 256),
	}
}

func (c *LiveClient) Venue() identifiers.Venue    { return c.venue }
func (c *LiveClient) Events() <-chan event.Event { return c.events }

// Connect dials the venue's websocket stream and starts the read/ping
// loops. REST calls need no persistent connection and are made lazily.
func (c *LiveClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.wsURL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	log.Info().Str("venue", string(c.venue)).Msg("execution client connected")

	go c.pingLoop()
	go c.readLoop()
	return nil
}

func (c *LiveClient) Disconnect() error {
	close(c.stopCh)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *LiveClient) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn, connected := c.conn, c.connected
			c.mu.RUnlock()
			if connected && conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// wireEvent is the venue push message shape; a real venue adapter would
// have its own wire schema translated into this before decoding.
type wireEvent struct {
	Type          string  `json:"type"`
	ClientOrderID string  `json:"client_order_id"`
	OrderID       string  `json:"order_id"`
	Reason        string  `json:"reason"`
	ExecutionID   string  `json:"execution_id"`
	TradeMatchID  string  `json:"trade_match_id"`
	Price         string  `json:"price"`
	Quantity      string  `json:"quantity"`
	CumQty        string  `json:"cum_qty"`
	LeavesQty     string  `json:"leaves_qty"`
}

func (c *LiveClient) readLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("venue", string(c.venue)).Msg("execution client read error, reconnecting")
			_ = conn.Close()
			for {
				select {
				case <-c.stopCh:
					return
				case <-time.After(reconnectDelay):
				}
				newConn, _, dialErr := websocket.DefaultDialer.Dial(c.wsURL, nil)
				if dialErr != nil {
					log.Warn().Err(dialErr).Str("venue", string(c.venue)).Msg("execution client reconnect failed")
					continue
				}
				c.mu.Lock()
				c.conn = newConn
				c.mu.Unlock()
				break
			}
			continue
		}

		var we wireEvent
		if err := json.Unmarshal(raw, &we); err != nil {
			log.Error().Err(err).Msg("client: decode wire event")
			continue
		}
		c.dispatchWireEvent(we)
	}
}

func (c *LiveClient) dispatchWireEvent(we wireEvent) {
	hdr := event.NewHeader(identifiers.ClientOrderID(we.ClientOrderID), c.venue, time.Now())
	var ev event.Event
	switch we.Type {
	case "ack":
		ev = event.OrderAccepted{Header: hdr, OrderID: identifiers.OrderID(we.OrderID)}
	case "reject":
		ev = event.OrderRejected{Header: hdr, Reason: we.Reason}
	case "working":
		ev = event.OrderWorking{Header: hdr, OrderID: identifiers.OrderID(we.OrderID)}
	case "cancelled":
		ev = event.OrderCancelled{Header: hdr, OrderID: identifiers.OrderID(we.OrderID)}
	default:
		log.Warn().Str("type", we.Type).Msg("client: unhandled wire event type")
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Error().Str("venue", string(c.venue)).Msg("client: events channel full, dropping event")
	}
}

func (c *LiveClient) SubmitOrder(ctx context.Context, o command.OrderSpec) error {
	return withRetry(ctx, c.retry, o.ClientOrderID, func() error {
		resp, err := c.rest.R().SetContext(ctx).SetBody(o).Post("/orders")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("client: submit order: venue returned %s", resp.Status())
		}
		return nil
	})
}

func (c *LiveClient) SubmitBracketOrder(ctx context.Context, b command.SubmitBracketOrder) error {
	return withRetry(ctx, c.retry, b.Entry.ClientOrderID, func() error {
		resp, err := c.rest.R().SetContext(ctx).SetBody(b).Post("/orders/bracket")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("client: submit bracket order: venue returned %s", resp.Status())
		}
		return nil
	})
}

func (c *LiveClient) CancelOrder(ctx context.Context, cmd command.CancelOrder) error {
	resp, err := c.rest.R().SetContext(ctx).Delete("/orders/" + string(cmd.ClientOrderID))
	if err != nil {
		return fmt.Errorf("client: cancel order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("client: cancel order: venue returned %s", resp.Status())
	}
	return nil
}

func (c *LiveClient) ModifyOrder(ctx context.Context, m command.ModifyOrder) error {
	resp, err := c.rest.R().SetContext(ctx).SetBody(m).Put("/orders/" + string(m.ClientOrderID))
	if err != nil {
		return fmt.Errorf("client: modify order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("client: modify order: venue returned %s", resp.Status())
	}
	return nil
}

func (c *LiveClient) StateReport(ctx context.Context, clientOrderIDs []identifiers.ClientOrderID) (event.ExecutionStateReport, error) {
	report := event.NewExecutionStateReport(c.venue, time.Now())
	if len(clientOrderIDs) == 0 {
		return report, nil
	}

	var body struct {
		States map[string]string `json:"states"`
		Filled map[string]string `json:"filled_qty"`
	}
	resp, err := c.rest.R().SetContext(ctx).SetBody(clientOrderIDs).SetResult(&body).Post("/orders/state")
	if err != nil {
		return report, fmt.Errorf("client: state report: %w", err)
	}
	if resp.IsError() {
		return report, fmt.Errorf("client: state report: venue returned %s", resp.Status())
	}
	for id, st := range body.States {
		report.States[identifiers.ClientOrderID(id)] = orderstate.State(st)
	}
	for id, qtyStr := range body.Filled {
		qty, err := money.ParseQuantity(qtyStr, 8)
		if err != nil {
			log.Warn().Err(err).Str("client_order_id", id).Msg("client: invalid filled quantity in state report")
			continue
		}
		report.FilledQty[identifiers.ClientOrderID(id)] = qty
	}
	return report, nil
}
