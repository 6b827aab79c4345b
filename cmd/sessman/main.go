package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"telegram-sessman/internal/app"
	"telegram-sessman/internal/infra/config"
	"telegram-sessman/internal/infra/logger"
	"telegram-sessman/internal/infra/pr"
)

func main() {
	if err := pr.Init(); err != nil {
		logger.Fatal("failed to assigning stdout and stderr", zap.Error(err))
	}

	// envPath определяет расположение .env с учётками и общими настройками.
	envPath := flag.String("env", "assets/.env", "path to .env file")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// logger.Init задаёт уровень, SetWriters направляет вывод в подсистему pr
	// (логи не рвут строку ввода readline).
	logger.Init(cfg.Env().LogLevel)
	logger.EnableFile(logger.FileConfig{
		Path:       cfg.Env().LogFile,
		Level:      cfg.Env().LogFileLevel,
		MaxSizeMB:  cfg.Env().LogFileMaxSize,
		MaxBackups: cfg.Env().LogFileMaxBackups,
		MaxAgeDays: cfg.Env().LogFileMaxAge,
		Compress:   cfg.Env().LogFileCompress,
	})
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	for _, msg := range cfg.Warnings() {
		logger.Warn(msg)
	}

	// Контекст с обработкой системных сигналов (Ctrl+C/SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := app.NewApp(cfg)
	if iniErr := a.Init(ctx, stop); iniErr != nil {
		stop()
		logger.Fatal("app init failed", zap.Error(iniErr))
	}

	if runErr := a.Run(); runErr != nil {
		stop()
		logger.Fatal("app run failed", zap.Error(runErr))
	}
	stop()
	logger.Info("Graceful shutdown complete")
}
