package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicerelay/internal/config"
	"voicerelay/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopView{}, discardLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Recognizer == nil {
		t.Fatalf("expected controller and recognizer")
	}
}

func TestBuildWithoutKeyFallsBackToUnavailableRecognizer(t *testing.T) {
	cfg := config.Default()
	cfg.Deepgram.APIKey = ""

	services, err := BuildWithConfig(cfg, noopView{}, discardLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := services.Recognizer.Available(); !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("expected unavailable recognizer, got %v", err)
	}
}

func TestBuildFailsOnBadRecorderCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.RecorderCommand = `ffmpeg "unterminated`

	if _, err := BuildWithConfig(cfg, noopView{}, discardLogger()); err == nil {
		t.Fatalf("expected recorder command error")
	}
}

func TestBuildServerFailsOnInvalidRules(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg := config.Default()
	cfg.Rules.Path = rules
	if _, err := BuildServer(cfg, discardLogger()); err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestBuildServerOpenAIRequiresKey(t *testing.T) {
	cfg := config.Default()
	cfg.Translator.Backend = "openai"
	cfg.Translator.OpenAI.APIKey = ""

	if _, err := BuildServer(cfg, discardLogger()); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildServerProcessesWithRulesAndGoogle(t *testing.T) {
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Deepgram works." {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `[[["Deepgram fonctionne.","Deepgram works.",null,null,1]]]`)
	}))
	defer google.Close()

	rules := filepath.Join(t.TempDir(), "substitutions.rules")
	if err := os.WriteFile(rules, []byte("deep gram => Deepgram\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg := config.Default()
	cfg.Rules.Path = rules
	cfg.Translator.GoogleEndpoint = google.URL

	services, err := BuildServer(cfg, discardLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer func() { _ = services.Telemetry.Shutdown(context.Background()) }()

	req := httptest.NewRequest(http.MethodPost, "/process",
		strings.NewReader(`{"text":"deep gram works","input_lang":"en-US","output_lang":"fr"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	services.Server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	want := `{"improved_text":"Deepgram works.","translated_text":"Deepgram fonctionne."}`
	if strings.TrimSpace(rec.Body.String()) != want {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	metrics := httptest.NewRecorder()
	services.Server.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metrics.Body.String(), "voicerelay_translations_total") {
		t.Fatalf("expected translation metric in exposition")
	}
}

type noopView struct{}

func (noopView) SetStatus(string)                   {}
func (noopView) SetToggle(string, bool)             {}
func (noopView) ShowRaw(string)                     {}
func (noopView) ShowResult(string, string)          {}
func (noopView) PrependHistory(domain.HistoryEntry) {}
func (noopView) Alert(string)                       {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
