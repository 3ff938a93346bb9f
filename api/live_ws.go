package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/0xHamad/polymarket-copy-bot/models"
)

const (
	liveDataWSURL = "wss://ws-live-data.polymarket.com"

	wsPingInterval   = 10 * time.Second
	wsReconnectDelay = 5 * time.Second
)

// LiveTradeHandler is invoked for every trade event seen on the live feed.
type LiveTradeHandler func(trade models.Trade)

// LiveWSClient subscribes to the live-activity WebSocket for a single wallet.
// It is a supplementary detection path: events funnel into the same dedup as
// the polling loop, so double delivery is harmless.
type LiveWSClient struct {
	wallet  string
	onTrade LiveTradeHandler

	conn   *websocket.Conn
	connMu sync.Mutex

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	eventsSeen int64
	statsMu    sync.RWMutex
}

// NewLiveWSClient creates a live-activity watcher for wallet.
func NewLiveWSClient(wallet string, onTrade LiveTradeHandler) *LiveWSClient {
	return &LiveWSClient{
		wallet:  strings.ToLower(wallet),
		onTrade: onTrade,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start connects and begins reading events. Reconnects on failure until
// Stop is called or ctx is cancelled.
func (c *LiveWSClient) Start(ctx context.Context) error {
	if c.running {
		return fmt.Errorf("live ws client already running")
	}
	c.running = true

	go c.run(ctx)
	log.Printf("[LiveWS] Watching live activity for %s", c.wallet)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (c *LiveWSClient) Stop() {
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	<-c.doneCh
	log.Printf("[LiveWS] Stopped")
}

// EventsSeen returns the number of trade events received so far.
func (c *LiveWSClient) EventsSeen() int64 {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.eventsSeen
}

func (c *LiveWSClient) run(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		if err := c.connectAndRead(ctx); err != nil {
			log.Printf("[LiveWS] Connection error: %v (reconnecting in %v)", err, wsReconnectDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (c *LiveWSClient) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, liveDataWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer conn.Close()

	if err := c.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[LiveWS] Connected and subscribed")

	// Keepalive pings; the server drops idle connections
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				c.connMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.connMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c.handleMessage(message)
	}
}

func (c *LiveWSClient) subscribe(conn *websocket.Conn) error {
	filter, _ := json.Marshal(map[string]string{"proxyWallet": c.wallet})

	sub := map[string]interface{}{
		"action": "subscribe",
		"subscriptions": []map[string]string{
			{
				"topic":   "activity",
				"type":    "trades",
				"filters": string(filter),
			},
		},
	}

	return conn.WriteJSON(sub)
}

func (c *LiveWSClient) handleMessage(message []byte) {
	var event struct {
		Topic   string `json:"topic"`
		Type    string `json:"type"`
		Payload struct {
			activityEntry
			EventID string `json:"eventId"`
		} `json:"payload"`
	}

	if err := json.Unmarshal(message, &event); err != nil {
		return // subscription acks and heartbeats are not trade events
	}
	if event.Topic != "activity" || event.Type != "trades" {
		return
	}

	p := event.Payload
	if !strings.EqualFold(p.ProxyWallet, c.wallet) {
		return
	}

	c.statsMu.Lock()
	c.eventsSeen++
	c.statsMu.Unlock()

	id := p.ID
	if id == "" {
		id = p.TransactionHash + ":" + p.Asset + ":" + p.Side
	}

	c.onTrade(models.Trade{
		ID:        id,
		Wallet:    p.ProxyWallet,
		TokenID:   p.Asset,
		Side:      strings.ToUpper(p.Side),
		Price:     p.Price,
		Size:      p.Size,
		UsdcSize:  p.UsdcSize,
		Outcome:   p.Outcome,
		Title:     p.Title,
		Timestamp: time.Unix(p.Timestamp, 0),
	})
}
