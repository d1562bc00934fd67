package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"voicerelay/internal/audio"
	"voicerelay/internal/config"
	"voicerelay/internal/improve"
	"voicerelay/internal/ports"
	"voicerelay/internal/providers/deepgram"
	"voicerelay/internal/recognition"
	"voicerelay/internal/relay"
	"voicerelay/internal/server"
	"voicerelay/internal/telemetry"
	"voicerelay/internal/translate"
	"voicerelay/internal/usecase"
)

// Services is the assembled desktop runtime graph.
type Services struct {
	Controller *usecase.Controller
	Recognizer ports.Recognizer
	Config     config.Config
}

// Build wires the desktop app for the current runtime.
func Build(view ports.View, logger *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, view, logger)
}

// BuildWithConfig wires the desktop app from an already resolved config.
func BuildWithConfig(cfg config.Config, view ports.View, logger *slog.Logger) (Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	capture, err := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	if err != nil {
		return Services{}, err
	}

	recognizer := recognition.Detect(
		recognition.Probe{RecorderBinary: capture.Binary(), APIKey: cfg.Deepgram.APIKey},
		capture,
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Punctuate:   cfg.Deepgram.Punctuate,
		}),
		recognition.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
				Encoding:   "linear16",
			},
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace,
			StreamTimeout:  cfg.Session.StreamTimeout,
		},
		logger,
	)

	client := relay.NewClient(cfg.UI.Endpoint, nil)
	logger.Info("relay endpoint configured", slog.String("url", client.URL()))

	controller := usecase.NewController(
		recognizer,
		client,
		view,
		logger,
		usecase.Config{
			InputLanguage:  cfg.UI.InputLanguage,
			OutputLanguage: cfg.UI.OutputLanguage,
		},
	)

	return Services{Controller: controller, Recognizer: recognizer, Config: cfg}, nil
}

// ServerServices is the assembled relayd graph.
type ServerServices struct {
	Server    *server.Server
	Telemetry *telemetry.Telemetry
	Config    config.Config
}

// BuildServer wires relayd from cfg.
func BuildServer(cfg config.Config, logger *slog.Logger) (ServerServices, error) {
	if logger == nil {
		logger = slog.Default()
	}

	subs, err := improve.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return ServerServices{}, err
	}
	if subs.Len() > 0 {
		logger.Info("substitutions loaded", slog.String("path", cfg.Rules.Path), slog.Int("rules", subs.Len()))
	}

	tel, err := telemetry.Setup(telemetry.Config{ServiceName: "relayd", Environment: cfg.Environment}, logger)
	if err != nil {
		return ServerServices{}, fmt.Errorf("setup telemetry: %w", err)
	}

	backend, err := newTranslator(cfg.Translator, tel)
	if err != nil {
		return ServerServices{}, err
	}
	logger.Info("translator configured", slog.String("backend", backend.Name()))

	srv := server.New(server.Options{
		Improver:       improve.NewCleaner(subs),
		Translator:     translate.NewService(backend, logger),
		Recorder:       tel,
		MetricsHandler: tel.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	return ServerServices{Server: srv, Telemetry: tel, Config: cfg}, nil
}

func newTranslator(cfg config.TranslatorConfig, tel *telemetry.Telemetry) (ports.Translator, error) {
	switch cfg.Backend {
	case "", "google":
		return translate.NewGoogle(translate.GoogleConfig{
			Endpoint: cfg.GoogleEndpoint,
			Timeout:  cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithMeterProvider(tel.MeterProvider()),
			),
		}), nil
	case "openai":
		return translate.NewOpenAI(translate.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
	case "none":
		return translate.Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unsupported translator backend %q", cfg.Backend)
	}
}
