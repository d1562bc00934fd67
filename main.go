package main

import (
	"embed"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	_ = godotenv.Load()

	app := NewApp()
	err := wails.Run(&options.App{
		Title:     "Voice Relay",
		Width:     720,
		Height:    640,
		MinWidth:  480,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		slog.Error("wails run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
