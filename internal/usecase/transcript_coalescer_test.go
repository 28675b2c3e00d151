package usecase

import (
	"testing"

	"voicedesk/internal/domain"
)

func TestConversationLogReplacesSameRoleAndAppendsOnSwitch(t *testing.T) {
	t.Parallel()

	var log conversationLog
	log.Apply(domain.RoleAgent, "Hi")
	log.Apply(domain.RoleAgent, "Hi there")
	log.Apply(domain.RoleUser, "Hello")

	got := log.Turns()
	want := []domain.Turn{
		{Role: domain.RoleAgent, Text: "Hi there"},
		{Role: domain.RoleUser, Text: "Hello"},
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected turns: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestConversationLogIgnoresBlankChunks(t *testing.T) {
	t.Parallel()

	var log conversationLog
	if log.Apply(domain.RoleUser, " \t\n") {
		t.Fatalf("blank chunk must not change the log")
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log, got %d turns", log.Len())
	}
}

func TestConversationLogKeepsTextVerbatim(t *testing.T) {
	t.Parallel()

	var log conversationLog
	log.Apply(domain.RoleAgent, "  Hi  ")
	if got := log.Turns()[0].Text; got != "  Hi  " {
		t.Fatalf("expected untrimmed text, got %q", got)
	}
}

func TestConversationLogReportsChanges(t *testing.T) {
	t.Parallel()

	var log conversationLog
	if !log.Apply(domain.RoleAgent, "Hi") {
		t.Fatalf("first chunk should change the log")
	}
	if log.Apply(domain.RoleAgent, "Hi") {
		t.Fatalf("identical chunk should not change the log")
	}
	if !log.Reset() {
		t.Fatalf("reset of a non-empty log should report a change")
	}
	if log.Reset() {
		t.Fatalf("reset of an empty log should not report a change")
	}
}

func TestConversationLogTurnsIsACopy(t *testing.T) {
	t.Parallel()

	var log conversationLog
	log.Apply(domain.RoleAgent, "Hi")
	turns := log.Turns()
	turns[0].Text = "mutated"
	if log.Turns()[0].Text != "Hi" {
		t.Fatalf("Turns must not alias internal state")
	}
}
