package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
	"eink_backend/startupcheck"
	"eink_backend/textai"
)

func main() {
	// Service management commands (install/uninstall/start/stop/...)
	if HandleServiceCommand(os.Args) {
		return
	}

	// Running under the Windows service manager?
	if ranAsService, err := RunAsService(); ranAsService {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run(context.Background()))
}

// run starts the application in foreground mode and returns the exit code.
func run(baseCtx context.Context) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	isDevelopment := os.Getenv("DEV_MODE") == "true"

	logger, err := logging.NewLogger(isDevelopment, "app.log")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DatabasePath),
		zap.String("chat_base_url", cfg.ChatBaseURL),
		zap.String("chat_model", cfg.ChatModel),
		zap.String("gemini_model", cfg.GeminiModel),
		zap.Int("image_width", cfg.ImageGenWidth),
		zap.Int("image_height", cfg.ImageGenHeight),
		zap.Bool("scene_two_stage", cfg.SceneTwoStage),
		zap.Duration("ai_timeout", cfg.AITimeout),
		zap.Bool("dev_mode", isDevelopment),
	)

	// Startup checks: provider credentials and database schema.
	registry := textai.NewRegistry(cfg, logger)
	result := startupcheck.NewSuite(cfg, registry).Run()
	if !result.Success {
		logger.Error("Startup checks failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Error(result.GetFirstError()),
		)
		return 1
	}
	logger.Info("Startup checks passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Duration("duration", result.Duration),
	)

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", zap.Error(err))
		return 1
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal. Shutting down...")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		return 1
	}

	logger.Info("Goodbye!")
	return 0
}
