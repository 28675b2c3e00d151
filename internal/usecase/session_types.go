package usecase

import (
	"time"

	"voicedesk/internal/domain"
	"voicedesk/internal/ports"
)

// sessionState is guarded by SessionController.mu.
type sessionState struct {
	status  domain.SessionStatus
	speaker domain.Speaker
	log     conversationLog
	err     *domain.SessionError

	// epoch increments on every start request; async completions and timers
	// compare it to detect that their session is no longer current.
	epoch     uint64
	sessionID string
	startedAt time.Time
	timer     *time.Timer
}

func newSessionState() sessionState {
	return sessionState{status: domain.SessionStatusIdle, speaker: domain.SpeakerNone}
}

func (s *sessionState) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:    s.sessionID,
		Status:       s.status,
		Speaker:      s.speaker,
		Conversation: s.log.Turns(),
	}
	if s.err != nil {
		copied := *s.err
		snap.Error = &copied
	}
	return snap
}

func (s *sessionState) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// notices collects sink calls made during one locked transition so they can
// be delivered after the lock is released, in the same order.
type notices []func(ports.EventSink)

func (n *notices) status(status domain.SessionStatus, reason domain.SessionStateReason) {
	*n = append(*n, func(sink ports.EventSink) { sink.SessionStateChanged(status, reason) })
}

func (n *notices) speaker(speaker domain.Speaker) {
	*n = append(*n, func(sink ports.EventSink) { sink.SpeakerChanged(speaker) })
}

func (n *notices) conversation(turns []domain.Turn) {
	*n = append(*n, func(sink ports.EventSink) { sink.ConversationChanged(turns) })
}

func (n *notices) sessionError(err domain.SessionError) {
	*n = append(*n, func(sink ports.EventSink) { sink.SessionError(err) })
}
