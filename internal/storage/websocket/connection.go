package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/telemetry-synth/pkg/streaming"
)

const (
	outboxSize   = 256
	windowSize   = 512 // max unacknowledged frames before enqueue blocks
	maxReconnect = 10
	baseBackoff  = time.Second
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

var errClosed = errors.New("websocket stream closed")

// frame is one sequenced envelope, already encoded.
type frame struct {
	seq  uint64
	data []byte
}

// connection is a sequenced WebSocket stream with a single writer goroutine.
// Frames stay in the unacked log until a cumulative ack covers them and are
// resent in order after a reconnect.
type connection struct {
	target  *url.URL
	logger  *slog.Logger
	backoff time.Duration

	sendMu sync.Mutex // orders seq assignment with outbox pushes

	mu              sync.Mutex
	conn            *ws.Conn
	nextSeq         uint64
	acked           uint64
	replayedThrough uint64
	unacked         []frame
	ackedCh         chan struct{} // closed and replaced whenever acked advances
	hello           *frame        // start_run, resent first after every reconnect
	running         bool
	closed          bool

	outbox  chan frame
	broken  chan *ws.Conn
	done    chan struct{} // closed by close
	stopped chan struct{} // closed when the writer exits
}

func newConnection(logger *slog.Logger) *connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &connection{
		logger:  logger,
		backoff: baseBackoff,
		ackedCh: make(chan struct{}),
		outbox:  make(chan frame, outboxSize),
		broken:  make(chan *ws.Conn, 4),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// dial connects once and starts the reader and writer.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	c.target = u

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.running = true
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.writeLoop(conn)
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(c.target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// enqueue numbers the payload, logs it as unacknowledged and hands it to the
// writer. It blocks while the unacked window is full.
func (c *connection) enqueue(msgType string, payload any) (uint64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.waitFor(func() bool { return len(c.unacked) < windowSize }, ackTimeout, "send window"); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errClosed
	}
	seq := c.nextSeq + 1
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Seq: seq, Payload: raw})
	if err != nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	c.nextSeq = seq
	f := frame{seq: seq, data: data}
	c.unacked = append(c.unacked, f)
	if msgType == streaming.TypeStartRun {
		c.hello = &f
	}
	c.mu.Unlock()

	select {
	case c.outbox <- f:
		return seq, nil
	case <-c.done:
		return 0, errClosed
	case <-c.stopped:
		return 0, errClosed
	}
}

// waitAcked blocks until the server has acknowledged seq.
func (c *connection) waitAcked(seq uint64, timeout time.Duration) error {
	return c.waitFor(func() bool { return c.acked >= seq }, timeout, fmt.Sprintf("ack of seq %d", seq))
}

// waitFor re-evaluates cond under mu after every ack until it holds.
func (c *connection) waitFor(cond func() bool, timeout time.Duration, what string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		ok := cond()
		ch := c.ackedCh
		c.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ch:
		case <-timer.C:
			return fmt.Errorf("timeout waiting for %s", what)
		case <-c.done:
			return errClosed
		case <-c.stopped:
			return errClosed
		}
	}
}

// ack applies a cumulative acknowledgement.
func (c *connection) ack(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.acked {
		return
	}
	c.acked = seq
	i := sort.Search(len(c.unacked), func(i int) bool { return c.unacked[i].seq > seq })
	c.unacked = append([]frame(nil), c.unacked[i:]...)
	close(c.ackedCh)
	c.ackedCh = make(chan struct{})
}

// forgetRun drops the start_run frame so later reconnects do not resend it.
func (c *connection) forgetRun() {
	c.mu.Lock()
	c.hello = nil
	c.mu.Unlock()
}

// writeLoop is the only goroutine that writes frames. It owns reconnects so
// no frame can be written to a stale socket.
func (c *connection) writeLoop(conn *ws.Conn) {
	defer close(c.stopped)

	for {
		select {
		case <-c.done:
			return
		case dead := <-c.broken:
			if dead != conn {
				continue
			}
			if conn = c.redial(conn); conn == nil {
				return
			}
		case f := <-c.outbox:
			c.mu.Lock()
			stale := f.seq <= c.acked || f.seq <= c.replayedThrough
			c.mu.Unlock()
			if stale {
				continue
			}
			if err := writeFrame(conn, f.data); err != nil {
				c.logger.Warn("WebSocket write error", "seq", f.seq, "error", err)
				if conn = c.redial(conn); conn == nil {
					return
				}
			}
		}
	}
}

// readLoop routes acks until its socket fails.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			select {
			case c.broken <- conn:
			default:
			}
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		c.ack(ack.Seq)
	}
}

// redial replaces a failed socket, resending start_run and every
// unacknowledged frame before the writer resumes. It returns nil when the
// stream is closed or every attempt failed.
func (c *connection) redial(old *ws.Conn) *ws.Conn {
	c.mu.Lock()
	if c.conn == old {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = old.Close()

	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}

		replay, last := c.replaySet()
		if err := writeFrames(conn, replay); err != nil {
			c.logger.Warn("Replay after reconnect failed", "attempt", attempt, "error", err)
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.replayedThrough = max(c.replayedThrough, last)
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt, "replayed", len(replay))
		go c.readLoop(conn)
		return conn
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
	return nil
}

// replaySet snapshots the frames to resend on a fresh socket and the highest
// seq among them.
func (c *connection) replaySet() ([]frame, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]frame, 0, len(c.unacked)+1)
	if c.hello != nil && c.hello.seq <= c.acked {
		out = append(out, *c.hello)
	}
	out = append(out, c.unacked...)

	var last uint64
	if n := len(c.unacked); n > 0 {
		last = c.unacked[n-1].seq
	}
	return out, last
}

func writeFrame(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func writeFrames(conn *ws.Conn, frames []frame) error {
	for _, f := range frames {
		if err := writeFrame(conn, f.data); err != nil {
			return fmt.Errorf("seq %d: %w", f.seq, err)
		}
	}
	return nil
}

// close stops the writer, then sends a close frame on the live socket.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	running := c.running
	c.mu.Unlock()

	if running {
		<-c.stopped
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	return conn.Close()
}
