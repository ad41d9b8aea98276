// Package eventapi keeps a registry current from the cosmetics event stream.
//
// The client holds one WebSocket session at a time. After every Hello it
// subscribes to cosmetic and entitlement events for the configured channels,
// and it reconnects with a retry.Retryer whenever the session ends.
package eventapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/retry"
)

var errReconnectRequested = errors.New("server requested reconnect")

type Client struct {
	URL      string
	Channels []string

	// Retryer paces reconnects. The zero value reconnects with exponential
	// backoff forever.
	Retryer retry.Retryer

	// MissedHeartbeats is how many heartbeat intervals may pass without a
	// frame before the session is considered dead.
	MissedHeartbeats int

	Dialer *gorilla.Dialer

	sink   Sink
	logger logger.Logger

	mu        sync.Mutex
	state     State
	sessionID string
	lastErr   error
	// closed is set by Close and never cleared.
	closed bool

	// connLock guards conn and serializes writes to it.
	connLock sync.Mutex
	conn     *gorilla.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(url string, channels []string, sink Sink, log logger.Logger) *Client {
	return &Client{
		URL:              url,
		Channels:         channels,
		Retryer:          retry.NewExponentialBackoffRetryer(),
		MissedHeartbeats: constants.DefaultMissedHeartbeat,
		Dialer:           gorilla.DefaultDialer,
		sink:             sink,
		logger:           logger.OrNop(log),
		state:            StatePending,
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id announced in the latest Hello.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Err returns the error that ended the session loop, once Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Done is closed when the client stops for good, either through Close or
// because the Retryer gave up.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) transitionTo(newState State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.state.TransitionTo(newState)
	if err != nil {
		return err
	}
	c.state = s
	c.logger.Debug("event client state transitioned", "new_state", s)

	return nil
}

// Connect dials the event stream and starts the session loop. It returns an
// error if the first dial fails; later failures are retried in the
// background.
func (c *Client) Connect(ctx context.Context) error {
	if c.URL == "" {
		return constants.ErrNoBaseURL
	}

	c.mu.Lock()
	if c.state != StatePending {
		c.mu.Unlock()
		return fmt.Errorf("%w: client is %v", constants.ErrAlreadyConnected, c.state)
	}
	c.state = StateConnecting
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err == nil && !c.setConn(conn) {
		err = constants.ErrClosed
	}
	if err == nil {
		err = c.transitionTo(StateConnected)
	}
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			// nothing was started, so Connect may be called again
			c.state = StatePending
		} else {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.cancel()
		close(c.done)
		return fmt.Errorf("failed to connect: %w", err)
	}

	go c.run(conn)

	return nil
}

// Close ends the session and stops reconnecting. It waits for the session
// loop to exit or for ctx to be done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return constants.ErrClosed
	}
	s, err := c.state.TransitionTo(StateDisconnecting)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", constants.ErrClosed, err)
	}
	c.state = s
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	c.connLock.Lock()
	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		}
		msg := gorilla.FormatCloseMessage(constants.CloseMessageCode, "")
		if err := c.conn.WriteControl(gorilla.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("failed to write close message", "error", err)
		}
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connLock.Unlock()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// the session loop may already have stopped on its own
	_ = c.transitionTo(StateDisconnected)

	return nil
}

func (c *Client) dial(ctx context.Context) (*gorilla.Conn, error) {
	conn, res, err := c.Dialer.DialContext(ctx, c.URL, nil)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// setConn publishes conn for writes and for Close. It refuses, and closes
// conn, once Close has started.
func (c *Client) setConn(conn *gorilla.Conn) bool {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.stopping() {
		_ = conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) stopping() bool {
	return c.ctx.Err() != nil
}

// run serves sessions until Close or until the Retryer gives up.
func (c *Client) run(conn *gorilla.Conn) {
	defer close(c.done)
	defer func() {
		if c.stopping() {
			_ = c.transitionTo(StateDisconnected)
		}
	}()

	retryer := c.Retryer
	if retryer == nil {
		retryer = retry.NewExponentialBackoffRetryer()
	}

	for {
		err := c.serve(conn)
		_ = conn.Close()
		if c.stopping() {
			return
		}

		c.logger.Warn("event stream session ended", "error", err)
		if c.transitionTo(StateDisconnected) != nil {
			return
		}

		conn, err = c.reconnect(retryer, err)
		if err != nil {
			if !c.stopping() {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
				c.logger.Error("giving up on event stream", "error", err)
			}
			return
		}
	}
}

func (c *Client) reconnect(retryer retry.Retryer, lastErr error) (*gorilla.Conn, error) {
	for attempt := 0; ; attempt++ {
		delay, ok := retryer.NextDelay(attempt, lastErr)
		if !ok {
			return nil, lastErr
		}

		select {
		case <-c.ctx.Done():
			return nil, c.ctx.Err()
		case <-time.After(delay):
		}

		if err := c.transitionTo(StateConnecting); err != nil {
			return nil, err
		}

		c.logger.Info("reconnecting to event stream", "attempt", attempt+1)
		conn, err := c.dial(c.ctx)
		if err != nil {
			lastErr = err
			c.logger.Warn("event stream reconnect failed", "attempt", attempt+1, "error", err)
			if err := c.transitionTo(StateDisconnected); err != nil {
				return nil, err
			}
			continue
		}

		if !c.setConn(conn) {
			return nil, constants.ErrClosed
		}
		if err := c.transitionTo(StateConnected); err != nil {
			_ = conn.Close()
			return nil, err
		}
		retryer.Reset()

		return conn, nil
	}
}

// serve reads frames from one session until it fails. The read deadline is
// pushed forward on every frame, so a silent server times out after
// MissedHeartbeats heartbeat intervals.
func (c *Client) serve(conn *gorilla.Conn) error {
	interval := constants.DefaultHeartbeatInterval
	missed := c.MissedHeartbeats
	if missed <= 0 {
		missed = constants.DefaultMissedHeartbeat
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(time.Duration(missed) * interval)); err != nil {
			return err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return constants.ErrHeartbeatTimeout
			}
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed event frame", "error", err)
			continue
		}

		switch msg.Op {
		case OpHello:
			var hello Hello
			if err := json.Unmarshal(msg.Data, &hello); err != nil {
				return fmt.Errorf("decode hello: %w", err)
			}
			if hello.HeartbeatInterval > 0 {
				interval = time.Duration(hello.HeartbeatInterval) * time.Millisecond
			}
			c.mu.Lock()
			c.sessionID = hello.SessionID
			c.mu.Unlock()
			c.logger.Info("event stream session started", "session_id", hello.SessionID, "heartbeat_interval", interval)

			if err := c.subscribe(conn); err != nil {
				return err
			}

		case OpHeartbeat:
			c.logger.Debug("event stream heartbeat")

		case OpDispatch:
			handleDispatch(c.ctx, c.sink, c.logger, msg.Data)

		case OpReconnect:
			return errReconnectRequested

		case OpEndOfStream:
			var eos EndOfStream
			_ = json.Unmarshal(msg.Data, &eos)
			return fmt.Errorf("%w: %d %s", constants.ErrServerRequestedStop, eos.Code, eos.Message)

		case OpAck:
			c.logger.Debug("event stream ack", "data", string(msg.Data))

		case OpError:
			c.logger.Warn("event stream error", "data", string(msg.Data))

		default:
			c.logger.Debug("ignoring event frame", "op", msg.Op)
		}
	}
}

func (c *Client) subscribe(conn *gorilla.Conn) error {
	for _, channel := range c.Channels {
		for _, typ := range []string{TypeCosmeticAll, TypeEntitlementAll} {
			frame, err := NewMessage(OpSubscribe, Subscription{
				Type:      typ,
				Condition: ChannelCondition(channel),
			})
			if err != nil {
				return err
			}
			if err := c.write(conn, frame); err != nil {
				return fmt.Errorf("subscribe %s for %s: %w", typ, channel, err)
			}
		}
	}
	return nil
}

func (c *Client) write(conn *gorilla.Conn, frame []byte) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn != conn {
		return constants.ErrClosed
	}
	return conn.WriteMessage(gorilla.TextMessage, frame)
}
