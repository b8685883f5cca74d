package source

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Default values for event-bus reconnection configuration.
const (
	DefaultBaseDelay        = 100 * time.Millisecond
	DefaultMaxDelay         = 30 * time.Second
	DefaultJitterFactor     = 0.5
	DefaultMaxRetryAttempts = 5
)

// Tail configuration errors.
var (
	ErrEmptyTailURL    = errors.New("event bus URL cannot be empty")
	ErrInvalidDelay    = errors.New("base delay must be positive")
	ErrInvalidMaxDelay = errors.New("max delay must be >= base delay")
	ErrInvalidJitter   = errors.New("jitter factor must be between 0 and 1")
)

// MessageHandler is a callback for each incoming event-bus message. Return an
// error to force a disconnect and reconnect cycle.
type MessageHandler func(messageType int, payload []byte) error

// TailConfig holds configuration for the event-bus WebSocket client.
type TailConfig struct {
	// URL is the event-bus WebSocket endpoint.
	URL string

	// BaseDelay is the initial delay before the first reconnect attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay between reconnect attempts.
	MaxDelay time.Duration

	// JitterFactor is the fraction of delay to randomize (0.0 to 1.0).
	JitterFactor float64

	// MaxRetryAttempts is the number of consecutive reconnection attempts
	// before an alert is logged. Zero disables the limit.
	MaxRetryAttempts int64
}

// DefaultTailConfig returns a TailConfig with sensible defaults. The URL must
// be provided by the caller.
func DefaultTailConfig(url string) TailConfig {
	return TailConfig{
		URL:              url,
		BaseDelay:        DefaultBaseDelay,
		MaxDelay:         DefaultMaxDelay,
		JitterFactor:     DefaultJitterFactor,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
	}
}

// Validate checks that the configuration is valid.
func (c TailConfig) Validate() error {
	if c.URL == "" {
		return ErrEmptyTailURL
	}
	if c.BaseDelay <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxDelay < c.BaseDelay {
		return ErrInvalidMaxDelay
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return ErrInvalidJitter
	}
	return nil
}

// TailClient is a resilient WebSocket client for the platform event bus. It
// reconnects automatically with exponential backoff and jitter.
type TailClient struct {
	config  TailConfig
	handler MessageHandler
	logger  *slog.Logger

	mu          sync.Mutex
	rng         *rand.Rand // protected by mu
	conn        *websocket.Conn
	isConnected bool

	reconnectCount int64
}

// NewTailClient creates a new event-bus client. The handler is called for
// each incoming message.
func NewTailClient(config TailConfig, handler MessageHandler, logger *slog.Logger) (*TailClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TailClient{
		config:  config,
		handler: handler,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run starts the client and blocks until the context is cancelled,
// reconnecting with backoff on connection failures.
func (c *TailClient) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("event bus client stopping due to context cancellation")
			c.close()
			return ctx.Err()
		default:
		}

		if err := c.connect(ctx); err != nil {
			attempt := atomic.LoadInt64(&c.reconnectCount) + 1
			c.logger.Warn("event bus connection failed",
				slog.String("error", err.Error()),
				slog.Int64("attempt", attempt))

			if c.config.MaxRetryAttempts > 0 && attempt >= c.config.MaxRetryAttempts {
				c.logger.Error("event bus reconnect limit reached; continuing with capped backoff",
					slog.Int64("attempts", attempt))
			}

			delay := c.computeBackoff()
			atomic.AddInt64(&c.reconnectCount, 1)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		atomic.StoreInt64(&c.reconnectCount, 0)
		c.readLoop(ctx)
	}
}

func (c *TailClient) connect(ctx context.Context) error {
	c.logger.Info("connecting to event bus", slog.String("url", c.config.URL))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Info("connected to event bus")
	return nil
}

func (c *TailClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("event bus connection closed",
				slog.String("error", err.Error()))
			c.close()
			return
		}

		if c.handler != nil {
			if err := c.handler(messageType, payload); err != nil {
				c.logger.Error("message handler error",
					slog.String("error", err.Error()))
				c.close()
				return
			}
		}
	}
}

func (c *TailClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
}

// computeBackoff calculates the next reconnection delay with exponential
// backoff and jitter.
func (c *TailClient) computeBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	reconnectCount := atomic.LoadInt64(&c.reconnectCount)
	shift := uint(reconnectCount)
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)

	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	if c.config.JitterFactor > 0 {
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}

// IsConnected reports whether the client currently holds a live connection.
func (c *TailClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}
