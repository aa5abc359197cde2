// Package logger builds configured log/slog loggers for queue processes.
//
// Every queue component accepts a *slog.Logger and defaults to
// slog.Default(); this package is how a process constructs the one logger
// it injects everywhere.
//
//	log := logger.New(
//	    logger.WithFormat(logger.FormatText),
//	    logger.WithLevel(slog.LevelDebug),
//	    logger.WithAttr(slog.String("service", "queue-worker")),
//	)
//	logger.SetAsDefault(log)
//
// Or from the environment (LOG_LEVEL, LOG_FORMAT):
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log := logger.New(logger.WithConfig(cfg))
package logger
