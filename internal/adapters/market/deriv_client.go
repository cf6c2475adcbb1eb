// internal/adapters/market/deriv_client.go
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/signals"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type tickRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
}

type derivMessage struct {
	MsgType string `json:"msg_type"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Tick *struct {
		Symbol  string  `json:"symbol"`
		Quote   float64 `json:"quote"`
		Epoch   int64   `json:"epoch"`
		PipSize int     `json:"pip_size"`
	} `json:"tick"`
}

// DerivClient subscribes to the ticks stream of a Deriv-compatible websocket API
// and reconnects after ReconnectDelay whenever the connection drops.
type DerivClient struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	symbols []string
	lastErr string

	ticks      atomic.Int64
	reconnects atomic.Int64
	connected  atomic.Bool
}

func NewDerivClient(url string, reconnectDelay time.Duration) *DerivClient {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &DerivClient{
		url:            url,
		reconnectDelay: reconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *DerivClient) Name() string { return "deriv_ws" }

// Start dials once synchronously so a bad URL fails fast, then keeps the
// stream alive in the background.
func (c *DerivClient) Start(ctx context.Context, symbols []string, listener Listener) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.mu.Unlock()

	conn, err := c.connect(ctx, symbols)
	if err != nil {
		return fmt.Errorf("deriv: connect %s: %w", c.url, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.running = true
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.symbols = append([]string(nil), symbols...)
	c.mu.Unlock()
	c.connected.Store(true)

	go c.run(runCtx, listener)

	logger.Info("✅ Deriv tick stream started for %s", strings.Join(symbols, ", "))
	return nil
}

func (c *DerivClient) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
	done := c.done
	c.mu.Unlock()

	<-done
	c.connected.Store(false)
	logger.Info("🛑 Deriv tick stream stopped")
	return nil
}

func (c *DerivClient) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *DerivClient) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Ticks:      c.ticks.Load(),
		Reconnects: c.reconnects.Load(),
		Connected:  c.connected.Load(),
		LastError:  c.lastErr,
		Subscribed: len(c.symbols),
		SourceName: c.Name(),
	}
}

func (c *DerivClient) connect(ctx context.Context, symbols []string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	for _, symbol := range symbols {
		if err := c.write(conn, tickRequest{Ticks: symbol, Subscribe: 1}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	return conn, nil
}

func (c *DerivClient) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (c *DerivClient) run(ctx context.Context, listener Listener) {
	defer close(c.done)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		err := c.readLoop(ctx, conn, listener)
		conn.Close()
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		c.setErr(err)
		logger.Warn("⚠️ Deriv tick stream disconnected: %v", err)
		listener.OnDisconnect(err)

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		c.reconnects.Add(1)
		logger.Info("🔌 Deriv tick stream reconnected")
		listener.OnReconnect()
	}
}

// reconnect retries until a connection is up or ctx ends.
func (c *DerivClient) reconnect(ctx context.Context) *websocket.Conn {
	c.mu.Lock()
	symbols := c.symbols
	c.mu.Unlock()

	for {
		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		conn, err := c.connect(ctx, symbols)
		if err == nil {
			return conn
		}
		c.setErr(err)
		logger.Warn("⚠️ Deriv reconnect failed: %v", err)
	}
}

func (c *DerivClient) readLoop(ctx context.Context, conn *websocket.Conn, listener Listener) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(conn, stopPing)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for ctx.Err() == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		tick, err := parseTick(data)
		if err != nil {
			logger.Warn("⚠️ Deriv message rejected: %v", err)
			continue
		}
		if tick == nil {
			continue
		}
		c.ticks.Add(1)
		listener.OnTick(*tick)
	}
	return ctx.Err()
}

func (c *DerivClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *DerivClient) setErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// parseTick returns nil for messages that are not ticks.
func parseTick(data []byte) (*signals.Tick, error) {
	var msg derivMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, errors.New(msg.Error.Code + ": " + msg.Error.Message)
	}
	if msg.MsgType != "tick" || msg.Tick == nil {
		return nil, nil
	}
	return &signals.Tick{
		Symbol:  msg.Tick.Symbol,
		Quote:   msg.Tick.Quote,
		PipSize: msg.Tick.PipSize,
		Epoch:   time.Unix(msg.Tick.Epoch, 0).UTC(),
		Digit:   signals.DigitFromQuote(msg.Tick.Quote, msg.Tick.PipSize),
	}, nil
}
