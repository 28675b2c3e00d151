package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"voicedesk/internal/audio"
	"voicedesk/internal/config"
	"voicedesk/internal/logging"
	"voicedesk/internal/metrics"
	"voicedesk/internal/permission"
	"voicedesk/internal/ports"
	"voicedesk/internal/providers/agentws"
	"voicedesk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Transport  *agentws.Transport
	Metrics    *metrics.Collector
	Logger     *zap.Logger
	Config     config.Config
}

// Build loads configuration and wires all backend dependencies. The
// controller is returned active.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return Services{}, fmt.Errorf("init logger: %w", err)
	}
	return Wire(cfg, eventSink, logger), nil
}

// Wire assembles the graph from an already loaded configuration.
func Wire(cfg config.Config, eventSink ports.EventSink, logger *zap.Logger) Services {
	if logger == nil {
		logger = zap.NewNop()
	}

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logger)
	collector := metrics.NewCollector("voicedesk", logger)

	gate := permission.NewGate(permission.Config{
		ClientKey: cfg.Agent.ClientKey,
		AgentID:   cfg.Agent.ID,
		Endpoint:  cfg.Agent.URL,
		Audio:     audioCfg,
	}, capture, logger)

	transport := agentws.NewTransport(agentws.Config{
		URL:       cfg.Agent.URL,
		ClientKey: cfg.Agent.ClientKey,
		Audio:     audioCfg,
		ChunkSize: cfg.Audio.ChunkSize,
	}, capture, logger)

	controller := usecase.NewSessionController(
		transport,
		gate,
		eventSink,
		collector,
		logger.With(zap.String("component", "session")),
		usecase.Config{
			ConnectTimeout: cfg.Session.ConnectTimeout(),
			StopTimeout:    cfg.Session.StopTimeout(),
		},
	)
	controller.Activate()

	logger.Info("services wired",
		zap.String("agent_url", cfg.Agent.URL),
		zap.Bool("credentials", cfg.Agent.ClientKey != "" && cfg.Agent.ID != ""),
		zap.String("config_file", cfg.Path),
	)

	return Services{
		Controller: controller,
		Transport:  transport,
		Metrics:    collector,
		Logger:     logger,
		Config:     cfg,
	}
}
