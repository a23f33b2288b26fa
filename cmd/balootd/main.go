package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/balootlabs/baloot/internal/botjob"
	"github.com/balootlabs/baloot/internal/botstrat"
	"github.com/balootlabs/baloot/internal/kv"
	"github.com/balootlabs/baloot/internal/match"
	"github.com/balootlabs/baloot/internal/ratelimit"
	"github.com/balootlabs/baloot/internal/registry"
	"github.com/balootlabs/baloot/internal/room"
	"github.com/balootlabs/baloot/internal/server"
	"github.com/balootlabs/baloot/internal/session"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"balootd.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	Port     int    `short:"p" long:"port" help:"Server port (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	KVURL    string `name:"kv-url" help:"Redis URL (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.Port != 0 {
		cfg.Server.Port = CLI.Port
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.KVURL != "" {
		cfg.Server.KVURL = CLI.KVURL
	}

	logger := log.New(os.Stderr)
	zlevel := zerolog.InfoLevel
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
		zlevel = zerolog.DebugLevel
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
		zlevel = zerolog.WarnLevel
	case "error":
		logger.SetLevel(log.ErrorLevel)
		zlevel = zerolog.ErrorLevel
	}
	var zlog zerolog.Logger
	if cfg.Production() {
		logger.SetFormatter(log.JSONFormatter)
		zlog = zerolog.New(os.Stderr).Level(zlevel).With().Timestamp().Logger()
	} else {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zlevel).With().Timestamp().Logger()
	}

	// Redis is optional: without it the server runs single-instance with
	// in-memory sessions, queues and counters.
	var (
		store   *kv.Client
		backend session.Backend
		saver   room.Saver
		counter ratelimit.Counter
		queue   match.Queue
		broker  botjob.Broker
	)
	if cfg.Server.KVURL != "" {
		store, err = kv.NewClient(cfg.Server.KVURL)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			kctx.Exit(1)
		}
		defer store.Close()
		backend = store
		saver = store
		counter = store
		queue = store
		broker = store
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("No KV URL configured, running with in-memory state")
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Error("Failed to generate JWT secret", "error", err)
			kctx.Exit(1)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("No JWT secret configured, sessions will not survive restarts")
	}

	sessions := session.NewStore(zlog, backend, session.DefaultTTL)
	tokens := session.NewTokenManager(secret, session.DefaultTTL)
	reg := registry.New(zlog, cfg.Server.MaxRooms)
	limiter := ratelimit.New(zlog, counter, nil)
	bots := botjob.NewOrchestrator(zlog, broker, botstrat.Parse(cfg.Bots.Difficulty),
		time.Duration(cfg.Bots.DeadlineMs)*time.Millisecond)

	svc := server.NewService(server.ServiceOptions{
		Logger:      zlog,
		Sessions:    sessions,
		Tokens:      tokens,
		Registry:    reg,
		Limiter:     limiter,
		Bots:        bots,
		Saver:       saver,
		Defaults:    cfg.RoomSettings(),
		Grace:       cfg.Grace(),
		IdleTimeout: cfg.IdleTimeout(),
	})
	srv := server.NewServer(cfg, logger, svc)
	matchmaker := match.New(match.Options{
		Logger:         zlog,
		Queue:          queue,
		Registry:       reg,
		Notifier:       srv,
		NewRoomOptions: svc.RoomOptions,
	})
	svc.SetMatchmaker(matchmaker)

	for _, block := range cfg.Rooms {
		if _, err := svc.ProvisionRoom(block); err != nil {
			logger.Error("Failed to provision room", "room", block.Name, "error", err)
			kctx.Exit(1)
		}
		logger.Info("Provisioned room", "room", block.Name, "bots", block.Bots)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Addr: cfg.ListenAddress(), Handler: srv.Handler()}
	srv.StartBackground()

	logger.Info("Starting Baloot server", "addr", cfg.ListenAddress(), "maxRooms", cfg.Server.MaxRooms)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := matchmaker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		_ = srv.Stop()
		reg.CloseAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited", "error", err)
		kctx.Exit(1)
	}
}
