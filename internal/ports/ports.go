package ports

import (
	"context"
	"io"

	"voicedesk/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// EventHandler receives transport events in arrival order.
type EventHandler func(domain.TransportEvent)

// Subscription releases a transport event subscription.
type Subscription interface {
	Unsubscribe()
}

// Transport is the real-time channel to the voice agent backend.
type Transport interface {
	Start(ctx context.Context, agentID string) error
	Stop(ctx context.Context) error
	Subscribe(handler EventHandler) Subscription
}

// PermissionGate runs start preconditions and microphone acquisition.
type PermissionGate interface {
	CanStart() error
	AgentID() string
	AcquireMicrophone(ctx context.Context) error
}

// EventSink emits controller state to the presentation layer.
type EventSink interface {
	SessionStateChanged(status domain.SessionStatus, reason domain.SessionStateReason)
	SpeakerChanged(speaker domain.Speaker)
	ConversationChanged(turns []domain.Turn)
	SessionError(err domain.SessionError)
}
