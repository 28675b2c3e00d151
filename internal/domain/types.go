package domain

// SessionStatus models the voice call lifecycle.
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusConnecting SessionStatus = "connecting"
	SessionStatusInCall     SessionStatus = "in_call"
	SessionStatusStopping   SessionStatus = "stopping"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonStartRequested SessionStateReason = "start_requested"
	SessionReasonCallStarted    SessionStateReason = "call_started"
	SessionReasonStopRequested  SessionStateReason = "stop_requested"
	SessionReasonCallEnded      SessionStateReason = "call_ended"
	SessionReasonStartFailed    SessionStateReason = "start_failed"
	SessionReasonTransportError SessionStateReason = "transport_error"
	SessionReasonConnectTimeout SessionStateReason = "connect_timeout"
	SessionReasonStopTimeout    SessionStateReason = "stop_timeout"
)

// Speaker is the party currently vocalizing.
type Speaker string

const (
	SpeakerNone  Speaker = "none"
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Role attributes a turn to one party of the conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ParseRole maps a wire role to a Role. The agent backend reports its own
// turns as "assistant".
func ParseRole(raw string) (Role, bool) {
	switch raw {
	case "user":
		return RoleUser, true
	case "agent", "assistant", "bot":
		return RoleAgent, true
	default:
		return "", false
	}
}

// ParseSpeaker maps a wire speaker to a Speaker.
func ParseSpeaker(raw string) Speaker {
	role, ok := ParseRole(raw)
	if !ok {
		return SpeakerNone
	}
	if role == RoleUser {
		return SpeakerUser
	}
	return SpeakerAgent
}

// Turn is one contiguous utterance by one party.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ErrorCode identifies the class of a session failure.
type ErrorCode string

const (
	ErrorCodeInsecureContext    ErrorCode = "insecure_context"
	ErrorCodeMissingCredentials ErrorCode = "missing_credentials"
	ErrorCodePermissionDenied   ErrorCode = "permission_denied"
	ErrorCodeDevice             ErrorCode = "device_error"
	ErrorCodeTransport          ErrorCode = "transport_error"
	ErrorCodeTimeout            ErrorCode = "timeout"
)

// SessionError is the user-visible message for the most recent failure.
type SessionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// EventKind names a transport event.
type EventKind string

const (
	EventSpeechStart EventKind = "speech-start"
	EventSpeechStop  EventKind = "speech-stop"
	EventCallStart   EventKind = "call-start"
	EventCallEnd     EventKind = "call-end"
	EventError       EventKind = "error"
	EventTranscript  EventKind = "transcript"
)

// TransportEvent is emitted by the real-time transport. Only the fields
// relevant to Kind are set.
type TransportEvent struct {
	Kind    EventKind
	Speaker Speaker
	Role    Role
	Text    string
	Err     error
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	SessionID    string        `json:"sessionId,omitempty"`
	Status       SessionStatus `json:"status"`
	Speaker      Speaker       `json:"speaker"`
	Conversation []Turn        `json:"conversation"`
	Error        *SessionError `json:"error,omitempty"`
}
