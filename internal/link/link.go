// Package link owns the physical transport to the radio: dialing,
// framing, reconnect-with-backoff, and liveness tracking. It hands
// decoded frame payloads to its caller and accepts encoded payloads to
// write, without any knowledge of the radio protocol's semantics (that
// belongs to the session above it).
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// ErrNotConnected is returned by Send when the transport is down.
var ErrNotConnected = errors.New("link: not connected")

// ErrClosed is returned by Send/operations after Close has been called.
var ErrClosed = errors.New("link: closed")

// Dialer opens the underlying byte stream to the radio. TCP and serial
// transports each implement this; the Link itself never touches net or
// serial APIs directly.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	Name() string
}

// Config tunes reconnect and liveness behavior. Zero values fall back to
// the defaults in §4.2.1 (1s/2s/4s/8s backoff capped at 30s).
type Config struct {
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	HeartbeatTimeout time.Duration // no inbound frame within this window forces a reconnect; 0 disables
}

func (c Config) withDefaults() Config {
	if c.MinBackoff <= 0 {
		c.MinBackoff = 1 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Status is a point-in-time snapshot of link health, surfaced to the
// operator TUI and the scheduler's connectivity filters.
type Status struct {
	Connected   bool
	Name        string
	LastError   error
	LastFrameAt time.Time
	ReconnectAt time.Time
	ConnectedAt time.Time
	Attempts    int
}

// Link owns a single physical transport: it reconnects with backoff,
// demultiplexes inbound frames onto a channel, and hands each outbound
// frame to the framer, which writes it with a single Write call. Its mutex
// guards connection state; Send releases it before writing, so concurrent
// Sends are not serialised by the Link itself.
type Link struct {
	dialer Dialer
	cfg    Config
	logger *zap.Logger

	frames chan []byte

	mu               sync.Mutex
	conn             io.ReadWriteCloser
	framer           *meshtastic.StreamFramer
	connected        bool
	userDisconnected bool
	closed           bool
	lastErr          error
	lastFrameAt      time.Time
	connectedAt      time.Time
	reconnectAt      time.Time
	attempts         int

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Link around dialer. Call Run to start the connect loop.
func New(dialer Dialer, cfg Config) *Link {
	return &Link{
		dialer: dialer,
		cfg:    cfg.withDefaults(),
		logger: logging.With(zap.String("component", "link"), zap.String("transport", dialer.Name())),
		frames: make(chan []byte, 256),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Frames delivers inbound frame payloads (post-deframing, pre-decode) in
// strict arrival order per §5. The channel is closed once Run returns.
func (l *Link) Frames() <-chan []byte {
	return l.frames
}

// Run drives the connect/read/reconnect loop until ctx is cancelled or
// Close is called. It blocks; callers run it in its own goroutine.
func (l *Link) Run(ctx context.Context) {
	defer close(l.frames)
	defer close(l.doneCh)

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}

		conn, err := l.dialer.Dial(ctx)
		if err != nil {
			l.recordError(err)
			if !l.waitBackoff(ctx, attempt) {
				return
			}
			continue
		}

		l.onConnected(conn)
		l.logger.Info("link connected", zap.String("name", l.dialer.Name()))
		l.readLoop(ctx)
		l.onDisconnected()

		if l.isUserDisconnected() {
			return
		}
		attempt = 0 // a successful connection resets the backoff ladder
		if !l.waitBackoff(ctx, attempt) {
			return
		}
	}
}

func (l *Link) onConnected(conn io.ReadWriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
	l.framer = meshtastic.NewStreamFramer(conn, conn)
	l.connected = true
	l.connectedAt = time.Now()
	l.lastFrameAt = time.Now()
	l.lastErr = nil
	l.attempts = 0
}

func (l *Link) onDisconnected() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.framer = nil
	l.connected = false
	l.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// readLoop reads frames until the connection errors, a heartbeat timeout
// elapses, or the link is stopped.
func (l *Link) readLoop(ctx context.Context) {
	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	for {
		l.mu.Lock()
		framer := l.framer
		l.mu.Unlock()
		if framer == nil {
			return
		}

		go func() {
			data, err := framer.ReadPacket()
			select {
			case resultCh <- readResult{data, err}:
			default:
			}
		}()

		timeout := l.heartbeatTimer()
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-timeout:
			l.logger.Warn("no frames received within heartbeat window, forcing reconnect")
			l.recordError(fmt.Errorf("heartbeat timeout"))
			return
		case res := <-resultCh:
			if res.err != nil {
				if errors.Is(res.err, meshtastic.ErrInvalidMagic) || errors.Is(res.err, meshtastic.ErrPacketTooLarge) {
					// Resync errors: the framer has already discarded the
					// offending byte(s) and is ready for the next read.
					// Per §4.1 this is never fatal at this layer.
					l.logger.Debug("frame resync", zap.Error(res.err))
					continue
				}
				if res.err == io.EOF {
					l.logger.Info("link closed by peer")
				} else {
					l.logger.Debug("read error", zap.Error(res.err))
				}
				l.recordError(res.err)
				return
			}
			l.mu.Lock()
			l.lastFrameAt = time.Now()
			l.mu.Unlock()

			select {
			case l.frames <- res.data:
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			}
		}
	}
}

func (l *Link) heartbeatTimer() <-chan time.Time {
	if l.cfg.HeartbeatTimeout <= 0 {
		// A channel that never fires disables the heartbeat check.
		return make(chan time.Time)
	}
	return time.After(l.cfg.HeartbeatTimeout)
}

func (l *Link) recordError(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}

func (l *Link) isUserDisconnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userDisconnected
}

// waitBackoff sleeps the next backoff interval and reports whether the
// link should keep trying (false means ctx/stop fired during the wait).
func (l *Link) waitBackoff(ctx context.Context, attempt int) bool {
	d := nextBackoff(attempt, l.cfg.MinBackoff, l.cfg.MaxBackoff)

	l.mu.Lock()
	l.attempts = attempt + 1
	l.reconnectAt = time.Now().Add(d)
	l.mu.Unlock()

	l.logger.Debug("reconnecting after backoff", zap.Duration("backoff", d), zap.Int("attempt", attempt+1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff implements §4.2.1's ladder: 1s, 2s, 4s, 8s, capped at max.
func nextBackoff(attempt int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Send writes an already-encoded to-radio payload to the transport. It
// fails fast with ErrNotConnected rather than queuing; the session layer
// owns queuing and retry semantics.
func (l *Link) Send(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	framer := l.framer
	l.mu.Unlock()

	if framer == nil {
		return ErrNotConnected
	}

	errCh := make(chan error, 1)
	go func() { errCh <- framer.WritePacket(payload) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("link: write failed: %w", err)
		}
		return nil
	}
}

// Close is a user-initiated disconnect: it suppresses reconnect backoff
// per §5's cancellation rule and causes Run to return once its current
// suspension point is reached.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.userDisconnected = true
	conn := l.conn
	l.mu.Unlock()

	close(l.stopCh)
	if conn != nil {
		_ = conn.Close()
	}
	<-l.doneCh
	return nil
}

// Status reports a snapshot for display/diagnostics.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Connected:   l.connected,
		Name:        l.dialer.Name(),
		LastError:   l.lastErr,
		LastFrameAt: l.lastFrameAt,
		ReconnectAt: l.reconnectAt,
		ConnectedAt: l.connectedAt,
		Attempts:    l.attempts,
	}
}

// IsConnected reports current connection state.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}
