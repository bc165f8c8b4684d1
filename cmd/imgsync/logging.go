package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid --log-level %q (want debug|info|warn|error)", raw)
	}
}

func resolveLogLevel(cmd *cobra.Command) (slog.Level, error) {
	raw, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return slog.LevelInfo, err
	}
	level, err := parseLogLevel(raw)
	if err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return level, err
}

// setupLogging installs the default slog logger for one command run. With
// log-file set, records are teed into a size-rotated file. The returned
// func flushes and closes the file.
func setupLogging(cmd *cobra.Command, v *viper.Viper) (func(), error) {
	level, err := parseLogLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}

	var w io.Writer = cmd.ErrOrStderr()
	closeFn := func() {}
	if path := strings.TrimSpace(v.GetString("log-file")); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}
