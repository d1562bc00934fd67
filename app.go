package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicerelay/internal/bootstrap"
	"voicerelay/internal/config"
	"voicerelay/internal/domain"
	"voicerelay/internal/usecase"
)

const (
	eventStatus  = "voicerelay:status"
	eventToggle  = "voicerelay:toggle"
	eventRaw     = "voicerelay:raw"
	eventResult  = "voicerelay:result"
	eventHistory = "voicerelay:history"
	eventStartup = "voicerelay:startup-error"
)

var errNotReady = errors.New("application is not initialized")

// App is the Wails application root. It implements ports.View by forwarding
// page updates to the frontend as runtime events.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	controller *usecase.Controller
	cfg        config.Config
	bootErr    error
	logger     *slog.Logger
	level      *slog.LevelVar

	emit   func(ctx context.Context, name string, data ...interface{})
	dialog func(ctx context.Context, message string)

	dialogs sync.WaitGroup
}

func NewApp() *App {
	level := new(slog.LevelVar)
	return &App{
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		level:  level,
		emit:   runtime.EventsEmit,
		dialog: func(ctx context.Context, message string) {
			_, _ = runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
				Type:    runtime.InfoDialog,
				Title:   "Voice Relay",
				Message: message,
			})
		},
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.logger)
	if err != nil {
		a.fail(err)
		return
	}
	a.cfg = services.Config
	if a.level != nil {
		a.level.Set(a.cfg.Log.SlogLevel())
	}
	a.attach(ctx, services.Controller)
}

// attach starts the controller loop bound to ctx.
func (a *App) attach(ctx context.Context, controller *usecase.Controller) {
	runCtx, cancel := context.WithCancel(ctx)
	a.controller = controller
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		if err := controller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("controller stopped", slog.String("error", err.Error()))
		}
	}()
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.dialogs.Wait()
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.logger.Error("startup failed", slog.String("error", err.Error()))
	a.publish(eventStartup, map[string]string{"message": err.Error()})
}

// Toggle starts or stops recording and returns the resulting state.
func (a *App) Toggle() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.controller.Toggle(a.ctx); err != nil {
		return domain.Snapshot{}, err
	}
	return a.controller.Snapshot(a.ctx)
}

// SetLanguages updates the input (recognition) and output (translation) languages.
func (a *App) SetLanguages(input string, output string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetLanguages(a.ctx, input, output)
}

// GetState returns the current page state.
func (a *App) GetState() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	return a.controller.Snapshot(a.ctx)
}

// GetHistory returns completed round trips, newest first.
func (a *App) GetHistory() ([]domain.HistoryEntry, error) {
	snap, err := a.GetState()
	if err != nil {
		return nil, err
	}
	return snap.History, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"endpoint":         a.cfg.UI.Endpoint,
		"inputLanguage":    a.cfg.UI.InputLanguage,
		"outputLanguage":   a.cfg.UI.OutputLanguage,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return errNotReady
	}
	return nil
}

func (a *App) SetStatus(text string) {
	a.publish(eventStatus, map[string]string{"text": text})
}

func (a *App) SetToggle(label string, recording bool) {
	a.publish(eventToggle, map[string]interface{}{"label": label, "recording": recording})
}

func (a *App) ShowRaw(text string) {
	a.publish(eventRaw, map[string]string{"text": text})
}

func (a *App) ShowResult(improved string, translated string) {
	a.publish(eventResult, map[string]string{"improved": improved, "translated": translated})
}

func (a *App) PrependHistory(entry domain.HistoryEntry) {
	a.publish(eventHistory, map[string]string{
		"id":         entry.ID,
		"timestamp":  entry.Timestamp,
		"raw":        entry.RawText,
		"improved":   entry.ImprovedText,
		"translated": entry.TranslatedText,
		"line":       entry.Line(),
	})
}

// Alert shows a modal dialog without blocking the controller loop.
func (a *App) Alert(message string) {
	if a.ctx == nil || a.dialog == nil {
		return
	}
	a.dialogs.Add(1)
	go func() {
		defer a.dialogs.Done()
		a.dialog(a.ctx, message)
	}()
}

func (a *App) publish(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}
