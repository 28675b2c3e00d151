// Package permission checks that a voice session may start and that the
// microphone can be opened.
package permission

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"voicedesk/internal/domain"
	"voicedesk/internal/ports"
)

// Config holds the connection identifiers and endpoint a session needs.
type Config struct {
	ClientKey string
	AgentID   string
	Endpoint  string
	Audio     ports.AudioConfig
}

// Gate implements ports.PermissionGate.
type Gate struct {
	cfg    Config
	mic    ports.AudioCapture
	logger *zap.Logger
}

func NewGate(cfg Config, mic ports.AudioCapture, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, mic: mic, logger: logger}
}

// AgentID returns the configured agent identifier.
func (g *Gate) AgentID() string {
	return strings.TrimSpace(g.cfg.AgentID)
}

// CanStart validates credentials, then the endpoint origin. It performs no
// network or device I/O.
func (g *Gate) CanStart() error {
	if strings.TrimSpace(g.cfg.ClientKey) == "" || g.AgentID() == "" {
		return domain.ErrMissingCredentials
	}
	if !IsSecureOrigin(g.cfg.Endpoint) {
		return fmt.Errorf("%w: %s", domain.ErrInsecureContext, g.cfg.Endpoint)
	}
	return nil
}

// AcquireMicrophone opens the microphone and releases it immediately. The
// result is never cached; each start attempt asks again.
func (g *Gate) AcquireMicrophone(ctx context.Context) error {
	if g.mic == nil {
		return fmt.Errorf("%w: no microphone capture configured", domain.ErrDevice)
	}

	session, err := g.mic.Start(ctx, g.cfg.Audio)
	if err != nil {
		g.logger.Warn("microphone probe failed", zap.Error(err))
		if domain.IsPermissionDenial(err) {
			if errors.Is(err, domain.ErrPermissionDenied) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
		if errors.Is(err, domain.ErrDevice) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDevice, err)
	}

	if err := session.Stop(); err != nil {
		g.logger.Debug("microphone probe release reported error", zap.Error(err))
	}
	return nil
}

// IsSecureOrigin reports whether endpoint uses a secure transport or points
// at a loopback host.
func IsSecureOrigin(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "https", "wss":
		return true
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
