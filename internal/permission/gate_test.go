package permission

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap/zaptest"

	"voicedesk/internal/domain"
	"voicedesk/internal/ports"
)

func TestCanStartRequiresCredentials(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{ClientKey: "", AgentID: "agent", Endpoint: "wss://agent.example.com"},
		{ClientKey: "key", AgentID: "  ", Endpoint: "wss://agent.example.com"},
		{Endpoint: "http://insecure.example.com"},
	}
	for _, cfg := range cases {
		gate := NewGate(cfg, &fakeCapture{}, zaptest.NewLogger(t))
		if err := gate.CanStart(); !errors.Is(err, domain.ErrMissingCredentials) {
			t.Fatalf("expected missing credentials for %+v, got %v", cfg, err)
		}
	}
}

func TestCanStartRejectsInsecureOrigin(t *testing.T) {
	t.Parallel()

	gate := NewGate(Config{ClientKey: "key", AgentID: "agent", Endpoint: "ws://agent.example.com/v1"}, &fakeCapture{}, zaptest.NewLogger(t))
	if err := gate.CanStart(); !errors.Is(err, domain.ErrInsecureContext) {
		t.Fatalf("expected insecure context, got %v", err)
	}
}

func TestCanStartDoesNotTouchMicrophone(t *testing.T) {
	t.Parallel()

	mic := &fakeCapture{}
	gate := NewGate(Config{ClientKey: "key", AgentID: "agent", Endpoint: "wss://agent.example.com"}, mic, zaptest.NewLogger(t))
	if err := gate.CanStart(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mic.calls != 0 {
		t.Fatalf("expected no microphone calls, got %d", mic.calls)
	}
}

func TestIsSecureOrigin(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://agent.example.com":  true,
		"wss://agent.example.com/v1": true,
		"ws://localhost:8080":        true,
		"http://127.0.0.1:9000":      true,
		"ws://[::1]:9000":            true,
		"http://agent.example.com":   false,
		"ws://10.0.0.5":              false,
		"":                           false,
		"not a url":                  false,
	}
	for endpoint, want := range cases {
		if got := IsSecureOrigin(endpoint); got != want {
			t.Fatalf("IsSecureOrigin(%q) = %v, want %v", endpoint, got, want)
		}
	}
}

func TestAcquireMicrophoneReleasesProbe(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	mic := &fakeCapture{session: session}
	gate := NewGate(Config{}, mic, zaptest.NewLogger(t))

	if err := gate.AcquireMicrophone(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.stopCalls != 1 {
		t.Fatalf("expected probe to be released once, got %d", session.stopCalls)
	}
}

func TestAcquireMicrophoneIsNotCached(t *testing.T) {
	t.Parallel()

	mic := &fakeCapture{err: fmt.Errorf("%w: blocked", domain.ErrPermissionDenied)}
	gate := NewGate(Config{}, mic, zaptest.NewLogger(t))

	if err := gate.AcquireMicrophone(context.Background()); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected denial, got %v", err)
	}

	mic.err = nil
	mic.session = &fakeSession{}
	if err := gate.AcquireMicrophone(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if mic.calls != 2 {
		t.Fatalf("expected two probes, got %d", mic.calls)
	}
}

func TestAcquireMicrophoneClassifiesFailures(t *testing.T) {
	t.Parallel()

	gate := NewGate(Config{}, &fakeCapture{err: errors.New("Permission denied by system")}, zaptest.NewLogger(t))
	if err := gate.AcquireMicrophone(context.Background()); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected raw denial to be wrapped, got %v", err)
	}

	gate = NewGate(Config{}, &fakeCapture{err: errors.New("device busy")}, zaptest.NewLogger(t))
	err := gate.AcquireMicrophone(context.Background())
	if !errors.Is(err, domain.ErrDevice) {
		t.Fatalf("expected device error, got %v", err)
	}

	gate = NewGate(Config{}, nil, zaptest.NewLogger(t))
	if err := gate.AcquireMicrophone(context.Background()); !errors.Is(err, domain.ErrDevice) {
		t.Fatalf("expected device error without capture, got %v", err)
	}
}

type fakeCapture struct {
	session ports.AudioSession
	err     error
	calls   int
}

func (f *fakeCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.session == nil {
		return &fakeSession{}, nil
	}
	return f.session, nil
}

type fakeSession struct {
	stopCalls int
}

func (f *fakeSession) Read(_ []byte) (int, error) { return 0, nil }
func (f *fakeSession) Close() error               { return nil }
func (f *fakeSession) Stop() error {
	f.stopCalls++
	return nil
}
