// Package server exposes the processing endpoint over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"voicerelay/internal/domain"
	"voicerelay/internal/ports"
	"voicerelay/internal/translate"
)

const (
	defaultInputLang  = "en-US"
	defaultOutputLang = "en"
)

// Recorder receives request and translation measurements.
type Recorder interface {
	RecordRequest(ctx context.Context, outcome string, elapsed time.Duration)
	RecordTranslation(ctx context.Context, backend string, status string)
}

// Options configures the HTTP surface.
type Options struct {
	Improver       ports.Improver
	Translator     *translate.Service
	Recorder       Recorder
	MetricsHandler http.Handler
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server handles POST /process, GET /healthz and GET /metrics.
type Server struct {
	improver   ports.Improver
	translator *translate.Service
	recorder   Recorder
	logger     *slog.Logger
	engine     *gin.Engine
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Translator == nil {
		opts.Translator = translate.NewService(nil, opts.Logger)
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		improver:   opts.Improver,
		translator: opts.Translator,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		engine:     gin.New(),
	}

	s.engine.Use(gin.Recovery(), requestLogger(opts.Logger))
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"OPTIONS", "GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	s.engine.GET("/healthz", s.health)
	s.engine.POST("/process", s.process)
	if opts.MetricsHandler != nil {
		s.engine.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on addr until ctx is cancelled, then drains connections for
// at most grace.
func (s *Server) Serve(ctx context.Context, addr string, grace time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	s.logger.Info("relay server started", slog.String("addr", addr))

	select {
	case err, ok := <-errs:
		if ok {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("relay server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// processBody uses pointers so absent languages take defaults while
// explicit values, even empty ones, are kept.
type processBody struct {
	Text       string  `json:"text"`
	InputLang  *string `json:"input_lang"`
	OutputLang *string `json:"output_lang"`
}

func (b processBody) request() domain.ProcessRequest {
	req := domain.ProcessRequest{Text: b.Text, InputLang: defaultInputLang, OutputLang: defaultOutputLang}
	if b.InputLang != nil {
		req.InputLang = *b.InputLang
	}
	if b.OutputLang != nil {
		req.OutputLang = *b.OutputLang
	}
	return req
}

func (s *Server) process(c *gin.Context) {
	started := time.Now()
	ctx := c.Request.Context()

	var body processBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.record(ctx, "bad_request", started)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	req := body.request()

	improved := req.Text
	if s.improver != nil {
		var err error
		improved, err = s.improver.Improve(req.Text)
		if err != nil {
			s.logger.Error("improve failed", slog.String("error", err.Error()))
			s.record(ctx, "error", started)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not improve text"})
			return
		}
	}

	outcome := s.translator.Translate(ctx, improved, translate.SourceLanguage(req.InputLang), req.OutputLang)
	if s.recorder != nil {
		s.recorder.RecordTranslation(ctx, s.translator.Backend(), outcome.Status)
	}

	s.record(ctx, "ok", started)
	c.JSON(http.StatusOK, domain.ProcessResponse{
		ImprovedText:   improved,
		TranslatedText: outcome.Text,
	})
}

func (s *Server) record(ctx context.Context, outcome string, started time.Time) {
	if s.recorder != nil {
		s.recorder.RecordRequest(ctx, outcome, time.Since(started))
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		if strings.HasPrefix(c.Request.URL.Path, "/metrics") {
			return
		}
		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	}
}
