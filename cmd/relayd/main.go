// Command relayd serves the processing endpoint used by the desktop app.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"voicerelay/internal/bootstrap"
	"voicerelay/internal/config"
)

func main() {
	var (
		configPath string
		envFile    string
		addr       string
	)
	flag.StringVar(&configPath, "config", os.Getenv(config.EnvConfigPath), "Path to YAML configuration file")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load env file", slog.String("path", envFile), slog.String("error", err.Error()))
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	services, err := bootstrap.BuildServer(cfg, logger)
	if err != nil {
		logger.Error("failed to build server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := services.Server.Serve(ctx, cfg.Server.Addr, cfg.Server.ShutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := services.Telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	if serveErr != nil {
		logger.Error("relay server exited with error", slog.String("error", serveErr.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
