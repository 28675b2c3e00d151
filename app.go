package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"voicedesk/internal/bootstrap"
	"voicedesk/internal/config"
	"voicedesk/internal/domain"
	"voicedesk/internal/projection"
	"voicedesk/internal/providers/agentws"
	"voicedesk/internal/usecase"
)

const (
	eventSession      = "voicedesk:session"
	eventSpeaker      = "voicedesk:speaker"
	eventConversation = "voicedesk:conversation"
	eventError        = "voicedesk:error"
	eventProjection   = "voicedesk:projection"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit emitFunc

	controller *usecase.SessionController
	transport  *agentws.Transport
	metrics    *http.Server
	logger     *zap.Logger
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit, logger: zap.NewNop()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.SessionError{Code: domain.ErrorCodeTransport, Message: fmt.Sprintf("Startup failed: %v", err)})
		return
	}

	a.cfg = services.Config
	a.logger = services.Logger
	a.transport = services.Transport
	a.controller = services.Controller
	a.metrics = a.serveMetrics(services)
	a.emitProjection()
}

func (a *App) shutdown(ctx context.Context) {
	if a.controller != nil {
		a.controller.Deactivate()
	}
	if a.transport != nil {
		a.transport.Close()
	}
	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) serveMetrics(services bootstrap.Services) *http.Server {
	addr := services.Config.Metrics.Addr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", services.Metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
	return server
}

// RequestStart starts a voice session. Requests made while a session is
// already starting or running are ignored, as are attempts a timeout or
// shutdown resolved first.
func (a *App) RequestStart() (projection.View, error) {
	if err := a.requireReady(); err != nil {
		return projection.View{}, err
	}
	err := a.controller.RequestStart(a.ctx)
	if err != nil && !errors.Is(err, usecase.ErrStartIgnored) && !errors.Is(err, usecase.ErrStartAborted) {
		return a.GetProjection(), err
	}
	return a.GetProjection(), nil
}

// RequestStop ends the current call. It is a no-op unless a call is live.
func (a *App) RequestStop() (projection.View, error) {
	if err := a.requireReady(); err != nil {
		return projection.View{}, err
	}
	err := a.controller.RequestStop(a.ctx)
	if err != nil && !errors.Is(err, usecase.ErrStopIgnored) {
		return a.GetProjection(), err
	}
	return a.GetProjection(), nil
}

// GetProjection returns the current view.
func (a *App) GetProjection() projection.View {
	if a.controller == nil {
		view := projection.Build(domain.Snapshot{Status: domain.SessionStatusIdle}, a.cfg.Agent.Name)
		if a.bootErr != nil {
			view.Error = a.bootErr.Error()
			view.CanStart = false
		}
		return view
	}
	return projection.Build(a.controller.Snapshot(), a.cfg.Agent.Name)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	name := a.cfg.Agent.Name
	if name == "" {
		name = projection.DefaultAgentName
	}
	return map[string]string{
		"agentName":        name,
		"agentUrl":         a.cfg.Agent.URL,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"configFile":       a.cfg.Path,
		"metricsAddr":      a.cfg.Metrics.Addr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(status domain.SessionStatus, reason domain.SessionStateReason) {
	a.send(eventSession, map[string]string{
		"status":  string(status),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
	a.emitProjection()
}

// SpeakerChanged emits who is currently talking.
func (a *App) SpeakerChanged(speaker domain.Speaker) {
	a.send(eventSpeaker, map[string]string{
		"speaker": string(speaker),
		"avatar":  string(projection.AvatarFor(speaker)),
	})
	a.emitProjection()
}

// ConversationChanged emits the full conversation log.
func (a *App) ConversationChanged(turns []domain.Turn) {
	a.send(eventConversation, turns)
	a.emitProjection()
}

// SessionError emits user-facing errors to the UI.
func (a *App) SessionError(err domain.SessionError) {
	a.send(eventError, map[string]string{
		"code":    string(err.Code),
		"message": err.Message,
	})
}

func (a *App) emitProjection() {
	if a.controller == nil {
		return
	}
	a.send(eventProjection, a.GetProjection())
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonStartRequested:
		return "Connecting to agent"
	case domain.SessionReasonCallStarted:
		return "Call started"
	case domain.SessionReasonStopRequested:
		return "Ending call"
	case domain.SessionReasonCallEnded:
		return "Call ended"
	case domain.SessionReasonStartFailed:
		return "Could not start the call"
	case domain.SessionReasonTransportError:
		return "Call interrupted"
	case domain.SessionReasonConnectTimeout:
		return "Agent did not answer in time"
	case domain.SessionReasonStopTimeout:
		return "Agent did not hang up in time"
	default:
		return ""
	}
}
