package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"voicedesk/internal/bootstrap"
	"voicedesk/internal/config"
	"voicedesk/internal/domain"
	"voicedesk/internal/projection"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionStateReason]string{
		domain.SessionReasonStartRequested: "Connecting to agent",
		domain.SessionReasonCallStarted:    "Call started",
		domain.SessionReasonStopRequested:  "Ending call",
		domain.SessionReasonCallEnded:      "Call ended",
		domain.SessionReasonStartFailed:    "Could not start the call",
		domain.SessionReasonTransportError: "Call interrupted",
		domain.SessionReasonConnectTimeout: "Agent did not answer in time",
		domain.SessionReasonStopTimeout:    "Agent did not hang up in time",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := NewApp()
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.RequestStart(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from RequestStart, got %v", err)
	}
}

func TestGetProjectionWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := NewApp()
	view := app.GetProjection()
	if view.Status != domain.SessionStatusIdle || !view.CanStart {
		t.Fatalf("unexpected view: %+v", view)
	}

	app.bootErr = errors.New("boot")
	view = app.GetProjection()
	if view.CanStart || view.Error != "boot" {
		t.Fatalf("unexpected boot view: %+v", view)
	}
}

func TestAppEmitsEventsForControllerTransitions(t *testing.T) {
	t.Parallel()

	recorder := &emitRecorder{}
	app := newWiredApp(t, recorder)

	view, err := app.RequestStart()
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
	if view.Error != domain.MessageMissingCredentials || !view.CanStart {
		t.Fatalf("unexpected view after failed start: %+v", view)
	}

	names := recorder.names()
	if len(names) == 0 || names[0] != eventError {
		t.Fatalf("expected an error event, got %v", names)
	}
}

func TestAppStopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()

	recorder := &emitRecorder{}
	app := newWiredApp(t, recorder)

	view, err := app.RequestStop()
	if err != nil {
		t.Fatalf("ignored stop should not error, got %v", err)
	}
	if view.Status != domain.SessionStatusIdle {
		t.Fatalf("unexpected status: %s", view.Status)
	}
	if len(recorder.names()) != 0 {
		t.Fatalf("ignored stop should emit nothing, got %v", recorder.names())
	}
}

func TestAppSinkEmitsProjection(t *testing.T) {
	t.Parallel()

	recorder := &emitRecorder{}
	app := newWiredApp(t, recorder)

	app.SpeakerChanged(domain.SpeakerAgent)
	app.ConversationChanged([]domain.Turn{{Role: domain.RoleAgent, Text: "Hi"}})

	names := recorder.names()
	want := []string{eventSpeaker, eventProjection, eventConversation, eventProjection}
	if len(names) != len(want) {
		t.Fatalf("unexpected events: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], names[i])
		}
	}
	if _, ok := recorder.last().(projection.View); !ok {
		t.Fatalf("expected projection payload, got %T", recorder.last())
	}
}

func TestGetRuntimeInfo(t *testing.T) {
	t.Parallel()

	app := NewApp()
	app.cfg = config.Defaults()
	info := app.GetRuntimeInfo()
	if info["agentName"] != projection.DefaultAgentName || info["agentUrl"] == "" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
	if _, ok := info["clientKey"]; ok {
		t.Fatalf("runtime info must not expose credentials")
	}
}

func newWiredApp(t *testing.T, recorder *emitRecorder) *App {
	t.Helper()

	app := NewApp()
	app.ctx = context.Background()
	app.emit = recorder.emit

	services := bootstrap.Wire(config.Defaults(), app, nil)
	app.cfg = services.Config
	app.controller = services.Controller
	app.transport = services.Transport
	t.Cleanup(func() { app.shutdown(context.Background()) })
	return app
}

type emitted struct {
	name    string
	payload interface{}
}

type emitRecorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *emitRecorder) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, emitted{name: name, payload: payload})
}

func (r *emitRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.name)
	}
	return out
}

func (r *emitRecorder) last() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1].payload
}
