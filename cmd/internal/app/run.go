package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// Run is the CLI entrypoint used by cmd/united.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string, stdout io.Writer) error {
	cfg, cli, err := LoadConfig(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	switch {
	case cli.ShowVersion:
		_, err := fmt.Fprintf(stdout, "united %s\n", Version)
		return err
	case cli.GenerateConfig:
		return WriteConfigTemplate(stdout, cfg)
	}

	log := NewLogger(cfg.Log.Level, cfg.Log.Format, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.Run(ctx)
}
