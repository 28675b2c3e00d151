package agentws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voicedesk/internal/domain"
	"voicedesk/internal/eventbus"
	"voicedesk/internal/ports"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCloseGrace       = 3 * time.Second
	defaultChunkSize        = 3200
)

// Config controls the agent websocket connection.
type Config struct {
	URL              string
	ClientKey        string
	Audio            ports.AudioConfig
	ChunkSize        int
	HandshakeTimeout time.Duration
	// CloseGrace bounds how long a stopped call may stay open waiting for
	// the agent to hang up.
	CloseGrace time.Duration
}

// Transport implements ports.Transport over a websocket to the voice agent
// backend. Inbound frames are published in arrival order on one bus.
type Transport struct {
	cfg    Config
	mic    ports.AudioCapture
	bus    *eventbus.Bus[domain.TransportEvent]
	dialer *websocket.Dialer
	logger *zap.Logger

	startMu sync.Mutex

	mu         sync.Mutex
	call       *call
	cancelDial context.CancelFunc
}

// NewTransport builds a transport. mic may be nil, in which case no audio is
// uplinked.
func NewTransport(cfg Config, mic ports.AudioCapture, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = defaultCloseGrace
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	logger = logger.With(zap.String("component", "agentws"))
	return &Transport{
		cfg:    cfg,
		mic:    mic,
		bus:    eventbus.New[domain.TransportEvent](logger),
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logger,
	}
}

// Subscribe registers handler for inbound events. Handlers run on the read
// loop and must not call back into Subscribe or publish.
func (t *Transport) Subscribe(handler ports.EventHandler) ports.Subscription {
	return t.bus.Subscribe(handler)
}

// Start dials the agent, requests agentID, and starts the audio uplink. It
// returns once the start frame is sent; call-start arrives as an event.
func (t *Transport) Start(ctx context.Context, agentID string) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if strings.TrimSpace(t.cfg.URL) == "" {
		return fmt.Errorf("%w: agent url is not configured", domain.ErrTransport)
	}

	t.mu.Lock()
	previous := t.call
	t.call = nil
	dialCtx, cancel := context.WithCancel(ctx)
	t.cancelDial = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.cancelDial = nil
		t.mu.Unlock()
		cancel()
	}()

	if previous != nil {
		t.logger.Debug("replacing lingering call")
		previous.abandon()
	}

	headers := http.Header{}
	if key := strings.TrimSpace(t.cfg.ClientKey); key != "" {
		headers.Set("Authorization", "Bearer "+key)
	}

	conn, _, err := t.dialer.DialContext(dialCtx, t.cfg.URL, headers)
	if err != nil {
		return fmt.Errorf("%w: connect to agent: %v", domain.ErrTransport, err)
	}

	start, err := encodeStart(agentID)
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: send start: %v", domain.ErrTransport, err)
	}

	var audio ports.AudioSession
	if t.mic != nil {
		audio, err = t.mic.Start(context.Background(), t.cfg.Audio)
		if err != nil {
			_ = conn.Close()
			return err
		}
	}

	if dialCtx.Err() != nil {
		if audio != nil {
			_ = audio.Stop()
		}
		_ = conn.Close()
		return fmt.Errorf("%w: start aborted", domain.ErrTransport)
	}

	c := newCall(conn, audio, t.bus, t.logger)
	t.mu.Lock()
	t.call = c
	t.mu.Unlock()

	go t.run(c)
	t.logger.Info("agent call started", zap.String("agent_id", agentID))
	return nil
}

// Stop asks the agent to end the call. The agent answers with call-end; if
// it does not hang up within CloseGrace the connection is closed locally.
// Stop with no call in progress aborts a pending dial, if any.
func (t *Transport) Stop(_ context.Context) error {
	t.mu.Lock()
	c := t.call
	cancelDial := t.cancelDial
	t.mu.Unlock()

	if cancelDial != nil {
		cancelDial()
	}
	if c == nil {
		return nil
	}

	payload, err := encodeStop()
	if err != nil {
		return err
	}
	c.stopRequested.Store(true)
	c.stopUplink()
	if !c.enqueue(outbound{kind: websocket.TextMessage, payload: payload}) {
		return nil
	}
	time.AfterFunc(t.cfg.CloseGrace, c.closeConn)
	return nil
}

// Close tears down any call without waiting for the agent.
func (t *Transport) Close() {
	t.mu.Lock()
	c := t.call
	t.call = nil
	cancelDial := t.cancelDial
	t.mu.Unlock()

	if cancelDial != nil {
		cancelDial()
	}
	if c != nil {
		c.abandon()
	}
}

func (t *Transport) run(c *call) {
	err := c.serve(t.cfg.ChunkSize)

	t.mu.Lock()
	current := t.call == c
	if current {
		t.call = nil
	}
	t.mu.Unlock()

	if !current {
		return
	}
	if err != nil && !c.stopRequested.Load() {
		t.logger.Warn("agent connection lost", zap.Error(err))
		c.publish(domain.TransportEvent{Kind: domain.EventError, Err: err})
	}
	if !c.ended.Load() {
		c.publish(domain.TransportEvent{Kind: domain.EventCallEnd})
	}
}

type outbound struct {
	kind    int
	payload []byte
}

// call is one websocket connection from start frame to close.
type call struct {
	conn   *websocket.Conn
	audio  ports.AudioSession
	bus    *eventbus.Bus[domain.TransportEvent]
	logger *zap.Logger

	send    chan outbound
	closing chan struct{}
	done    chan struct{}

	live          atomic.Bool
	ended         atomic.Bool
	stopRequested atomic.Bool

	closeOnce  sync.Once
	uplinkOnce sync.Once
}

func newCall(conn *websocket.Conn, audio ports.AudioSession, bus *eventbus.Bus[domain.TransportEvent], logger *zap.Logger) *call {
	c := &call{
		conn:    conn,
		audio:   audio,
		bus:     bus,
		logger:  logger,
		send:    make(chan outbound, 32),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.live.Store(true)
	return c
}

func (c *call) serve(chunkSize int) error {
	defer close(c.done)

	var g errgroup.Group
	g.Go(c.readLoop)
	g.Go(c.writeLoop)
	if c.audio != nil {
		g.Go(func() error {
			return pumpUplink(c.audio, c.enqueue, chunkSize)
		})
	}

	err := g.Wait()
	c.shutdown()
	if isNormalClose(err) {
		return nil
	}
	return err
}

func (c *call) readLoop() error {
	// A failed read means the connection is gone; unblock the writer and
	// the uplink.
	defer c.shutdown()

	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: read agent frame: %w", domain.ErrTransport, err)
		}
		if kind != websocket.TextMessage {
			continue
		}

		event, ok, err := decodeFrame(payload)
		if err != nil {
			c.logger.Debug("skipping agent frame", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if event.Kind == domain.EventCallEnd {
			c.ended.Store(true)
		}
		c.publish(event)
	}
}

func (c *call) writeLoop() error {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(msg.kind, msg.payload); err != nil {
				c.closeConn()
				return fmt.Errorf("%w: write agent frame: %v", domain.ErrTransport, err)
			}
		case <-c.closing:
			return nil
		}
	}
}

// enqueue hands a frame to the writer, or reports false once the call is
// closing.
func (c *call) enqueue(msg outbound) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.closing:
		return false
	}
}

func (c *call) publish(event domain.TransportEvent) {
	if c.live.Load() {
		c.bus.Publish(event)
	}
}

func (c *call) stopUplink() {
	c.uplinkOnce.Do(func() {
		if c.audio == nil {
			return
		}
		if err := c.audio.Stop(); err != nil {
			c.logger.Debug("stop uplink capture", zap.Error(err))
		}
	})
}

// abandon closes the call without publishing anything further.
func (c *call) abandon() {
	c.live.Store(false)
	c.shutdown()
	<-c.done
}

func (c *call) shutdown() {
	c.closeConn()
	c.stopUplink()
}

func (c *call) closeConn() {
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	})
}

func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
