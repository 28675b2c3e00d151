package usecase

import (
	"strings"

	"voicedesk/internal/domain"
)

// conversationLog holds the turns of the current call. Each transcript chunk
// is the transport's best transcription of the ongoing utterance, so a chunk
// for the same role replaces the last turn instead of extending it.
type conversationLog struct {
	turns []domain.Turn
}

// Apply merges one chunk and reports whether the log changed.
func (l *conversationLog) Apply(role domain.Role, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	last := len(l.turns) - 1
	if last >= 0 && l.turns[last].Role == role {
		if l.turns[last].Text == text {
			return false
		}
		l.turns[last].Text = text
		return true
	}

	l.turns = append(l.turns, domain.Turn{Role: role, Text: text})
	return true
}

// Reset empties the log and reports whether it held anything.
func (l *conversationLog) Reset() bool {
	had := len(l.turns) > 0
	l.turns = nil
	return had
}

func (l *conversationLog) Len() int {
	return len(l.turns)
}

// Turns returns a copy safe to hand outside the controller lock.
func (l *conversationLog) Turns() []domain.Turn {
	out := make([]domain.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}
