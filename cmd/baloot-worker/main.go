package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/balootlabs/baloot/internal/botjob"
	"github.com/balootlabs/baloot/internal/botstrat"
	"github.com/balootlabs/baloot/internal/kv"
)

var CLI struct {
	KVURL      string `name:"kv-url" env:"KV_URL" help:"Redis URL the job queue lives on"`
	Difficulty string `short:"d" default:"medium" enum:"easy,medium,hard" help:"Difficulty queue to serve"`
	Workers    int    `short:"n" default:"4" help:"Concurrent workers"`
	LogLevel   string `short:"l" default:"info" enum:"debug,info,warn,error" help:"Log level"`
}

func main() {
	kctx := kong.Parse(&CLI)

	level, _ := zerolog.ParseLevel(CLI.LogLevel)
	zlog := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if CLI.KVURL == "" {
		fmt.Println("A Redis URL is required: pass --kv-url or set KV_URL")
		kctx.Exit(1)
	}
	store, err := kv.NewClient(CLI.KVURL)
	if err != nil {
		zlog.Error().Err(err).Msg("redis connection failed")
		kctx.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	diff := botstrat.Parse(CLI.Difficulty)
	zlog.Info().Str("difficulty", string(diff)).Int("workers", CLI.Workers).Msg("starting bot workers")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < CLI.Workers; i++ {
		w := botjob.NewWorker(zlog, store, diff)
		g.Go(func() error {
			err := w.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		zlog.Error().Err(err).Msg("worker exited")
		kctx.Exit(1)
	}
}
