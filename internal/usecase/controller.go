package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicedesk/internal/domain"
	"voicedesk/internal/metrics"
	"voicedesk/internal/ports"
	"voicedesk/internal/projection"
)

var (
	ErrStartIgnored = errors.New("start ignored: session is not idle")
	ErrStopIgnored  = errors.New("stop ignored: session is not in a call")
	ErrInactive     = errors.New("session controller is not active")
	ErrStartAborted = errors.New("start aborted: attempt was superseded")
)

// Config controls session timeouts. A zero timeout disables it.
type Config struct {
	ConnectTimeout time.Duration
	StopTimeout    time.Duration
}

// SessionController owns the voice session lifecycle. User commands and
// transport events both mutate state under mu; sink notifications are
// delivered afterwards, in transition order.
type SessionController struct {
	transport ports.Transport
	gate      ports.PermissionGate
	events    ports.EventSink
	metrics   *metrics.Collector
	logger    *zap.Logger
	cfg       Config
	newID     func() string

	mu     sync.Mutex
	state  sessionState
	active bool
	sub    ports.Subscription

	notifyMu sync.Mutex
}

func NewSessionController(
	transport ports.Transport,
	gate ports.PermissionGate,
	events ports.EventSink,
	collector *metrics.Collector,
	logger *zap.Logger,
	cfg Config,
) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		transport: transport,
		gate:      gate,
		events:    events,
		metrics:   collector,
		logger:    logger,
		cfg:       cfg,
		newID:     uuid.NewString,
		state:     newSessionState(),
	}
}

// Activate subscribes to transport events. Calling it again is a no-op.
func (c *SessionController) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	c.sub = c.transport.Subscribe(c.HandleEvent)
	c.active = true
}

// Deactivate releases the transport subscription and pending timers and
// forces the session idle without notifying the sink. Events and in-flight
// start attempts resolving afterwards are ignored.
func (c *SessionController) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	c.state.stopTimer()
	c.state.epoch++
	c.state.status = domain.SessionStatusIdle
	c.state.speaker = domain.SpeakerNone
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

// Snapshot returns a copy of the current state.
func (c *SessionController) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot()
}

// RequestStart begins a session. It returns ErrStartIgnored unless the
// session is idle, and blocks through microphone acquisition and the
// transport handshake. The session reaches in_call on call-start.
func (c *SessionController) RequestStart(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrInactive
	}
	if !projection.CanStart(c.state.status) {
		c.mu.Unlock()
		c.metrics.ObserveIgnored("start")
		return ErrStartIgnored
	}

	var n notices
	c.state.err = nil
	if err := c.gate.CanStart(); err != nil {
		c.recordError(err, &n)
		c.commit(n)
		return err
	}

	c.state.epoch++
	epoch := c.state.epoch
	c.state.sessionID = c.newID()
	c.state.startedAt = time.Now()
	sessionID := c.state.sessionID
	c.setStatus(domain.SessionStatusConnecting, domain.SessionReasonStartRequested, &n)
	c.armTimer(epoch, domain.SessionStatusConnecting, c.cfg.ConnectTimeout, domain.SessionReasonConnectTimeout)
	c.commit(n)

	logger := c.logger.With(zap.String("session_id", sessionID))

	if err := c.gate.AcquireMicrophone(ctx); err != nil {
		logger.Warn("microphone acquisition failed", zap.Error(err))
		c.failStart(epoch, err)
		return err
	}

	// a timeout, an event or Deactivate may have resolved the attempt
	if !c.attemptCurrent(epoch) {
		logger.Debug("start attempt superseded before dialing")
		return ErrStartAborted
	}

	if err := c.transport.Start(ctx, c.gate.AgentID()); err != nil {
		logger.Warn("transport start failed", zap.Error(err))
		c.failStart(epoch, err)
		return err
	}

	if c.orphaned(epoch) {
		logger.Debug("start attempt superseded while dialing; stopping transport")
		if err := c.transport.Stop(context.Background()); err != nil {
			logger.Debug("stop orphaned call failed", zap.Error(err))
		}
		return ErrStartAborted
	}

	logger.Debug("transport started; awaiting call-start")
	return nil
}

func (c *SessionController) attemptCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.state.epoch == epoch && c.state.status == domain.SessionStatusConnecting
}

// orphaned reports whether a call opened by the attempt at epoch has no
// owner. A newer attempt's Start replaces the transport call on its own, so
// only an inactive controller or an attempt resolved to idle counts.
func (c *SessionController) orphaned(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return true
	}
	return c.state.epoch == epoch && c.state.status == domain.SessionStatusIdle
}

// RequestStop asks the transport to end the call. It returns ErrStopIgnored
// unless the session is in a call. The session reaches idle on call-end.
func (c *SessionController) RequestStop(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrInactive
	}
	if !projection.CanStop(c.state.status) {
		c.mu.Unlock()
		c.metrics.ObserveIgnored("stop")
		return ErrStopIgnored
	}

	var n notices
	epoch := c.state.epoch
	sessionID := c.state.sessionID
	c.setStatus(domain.SessionStatusStopping, domain.SessionReasonStopRequested, &n)
	c.setSpeaker(domain.SpeakerNone, &n)
	c.armTimer(epoch, domain.SessionStatusStopping, c.cfg.StopTimeout, domain.SessionReasonStopTimeout)
	c.commit(n)

	if err := c.transport.Stop(ctx); err != nil {
		c.logger.Warn("transport stop failed", zap.String("session_id", sessionID), zap.Error(err))
		c.failTransport(epoch, err)
		return err
	}
	return nil
}

// HandleEvent applies one transport event. Events are expected in arrival
// order from a single ordered source.
func (c *SessionController) HandleEvent(event domain.TransportEvent) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.metrics.ObserveEvent(event.Kind)

	var n notices
	status := c.state.status

	switch event.Kind {
	case domain.EventSpeechStart:
		if status != domain.SessionStatusIdle && event.Speaker != domain.SpeakerNone {
			c.setSpeaker(event.Speaker, &n)
		}

	case domain.EventSpeechStop:
		c.setSpeaker(domain.SpeakerNone, &n)

	case domain.EventCallStart:
		if status != domain.SessionStatusConnecting {
			c.logger.Debug("ignoring call-start", zap.String("status", string(status)))
			break
		}
		c.state.stopTimer()
		c.state.err = nil
		if c.state.log.Reset() {
			n.conversation(nil)
		}
		c.metrics.ObserveConnectLatency(time.Since(c.state.startedAt))
		c.setStatus(domain.SessionStatusInCall, domain.SessionReasonCallStarted, &n)

	case domain.EventCallEnd:
		if status != domain.SessionStatusIdle {
			c.toIdle(domain.SessionReasonCallEnded, nil, &n)
		}

	case domain.EventError:
		err := event.Err
		if err == nil {
			err = errors.New(domain.MessageUnknown)
		}
		c.logger.Warn("transport error",
			zap.String("session_id", c.state.sessionID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		c.toIdle(domain.SessionReasonTransportError, err, &n)

	case domain.EventTranscript:
		if status != domain.SessionStatusInCall && status != domain.SessionStatusStopping {
			break
		}
		if strings.TrimSpace(event.Text) == "" {
			break
		}
		if c.state.log.Apply(event.Role, event.Text) {
			n.conversation(c.state.log.Turns())
		}
	}

	c.commit(n)
}

func (c *SessionController) failStart(epoch uint64, err error) {
	c.mu.Lock()
	if !c.active || c.state.epoch != epoch {
		c.mu.Unlock()
		return
	}

	var n notices
	if c.state.status == domain.SessionStatusIdle {
		// an error or call-end event already resolved this attempt
		if c.state.err == nil {
			c.recordError(err, &n)
		}
		c.commit(n)
		return
	}
	c.toIdle(domain.SessionReasonStartFailed, err, &n)
	c.commit(n)
}

func (c *SessionController) failTransport(epoch uint64, err error) {
	c.mu.Lock()
	if !c.active || c.state.epoch != epoch || c.state.status == domain.SessionStatusIdle {
		c.mu.Unlock()
		return
	}
	var n notices
	c.toIdle(domain.SessionReasonTransportError, err, &n)
	c.commit(n)
}

func (c *SessionController) armTimer(epoch uint64, status domain.SessionStatus, timeout time.Duration, reason domain.SessionStateReason) {
	c.state.stopTimer()
	if timeout <= 0 {
		return
	}
	c.state.timer = time.AfterFunc(timeout, func() {
		c.expire(epoch, status, reason)
	})
}

func (c *SessionController) expire(epoch uint64, status domain.SessionStatus, reason domain.SessionStateReason) {
	c.mu.Lock()
	if !c.active || c.state.epoch != epoch || c.state.status != status {
		c.mu.Unlock()
		return
	}

	err := fmt.Errorf("disconnecting from agent: %w", domain.ErrTimeout)
	if reason == domain.SessionReasonConnectTimeout {
		err = fmt.Errorf("connecting to agent: %w", domain.ErrTimeout)
	}
	c.logger.Warn("session timed out",
		zap.String("session_id", c.state.sessionID),
		zap.String("status", string(status)),
	)

	var n notices
	c.toIdle(reason, err, &n)
	c.commit(n)

	if reason == domain.SessionReasonConnectTimeout {
		if stopErr := c.transport.Stop(context.Background()); stopErr != nil {
			c.logger.Debug("abort after connect timeout failed", zap.Error(stopErr))
		}
	}
}

// The helpers below require c.mu to be held.

func (c *SessionController) toIdle(reason domain.SessionStateReason, err error, n *notices) {
	c.state.stopTimer()
	c.setSpeaker(domain.SpeakerNone, n)
	if err != nil {
		c.recordError(err, n)
	}
	c.setStatus(domain.SessionStatusIdle, reason, n)
}

func (c *SessionController) setStatus(status domain.SessionStatus, reason domain.SessionStateReason, n *notices) {
	from := c.state.status
	if from == status {
		return
	}
	c.state.status = status
	c.metrics.ObserveTransition(from, status)
	c.logger.Info("session state changed",
		zap.String("session_id", c.state.sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.String("reason", string(reason)),
	)
	n.status(status, reason)
}

func (c *SessionController) setSpeaker(speaker domain.Speaker, n *notices) {
	if c.state.speaker == speaker {
		return
	}
	c.state.speaker = speaker
	n.speaker(speaker)
}

func (c *SessionController) recordError(err error, n *notices) {
	classified := domain.Classify(err)
	c.state.err = &classified
	c.metrics.ObserveError(classified.Code)
	n.sessionError(classified)
}

// commit releases c.mu and delivers n. notifyMu is taken before mu is
// released so deliveries never overtake the transition that produced them.
func (c *SessionController) commit(n notices) {
	if len(n) == 0 || c.events == nil {
		c.mu.Unlock()
		return
	}
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, notify := range n {
		notify(c.events)
	}
}
