package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/poolroom/broadcast"
	"github.com/wfunc/poolroom/config"
	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/monitor"
	"github.com/wfunc/poolroom/persistence"
	"github.com/wfunc/poolroom/room"
	"github.com/wfunc/poolroom/server"
	"github.com/wfunc/poolroom/services"
	"github.com/wfunc/poolroom/session"
	"github.com/wfunc/poolroom/timer"
)

type CLI struct {
	Config string `short:"c" help:"Directory holding config.yaml" default:"." type:"path"`
	Mode   string `short:"m" help:"Override server mode (debug or release)"`
	Addr   string `help:"Override the HTTP listen address"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Description("Multi-room pool server"))
	if cli.Mode != "" && cli.Mode != "debug" && cli.Mode != "release" {
		kctx.Fatalf("--mode must be debug or release, got %q", cli.Mode)
	}

	// Load configuration
	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		logger.Init("debug")
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if cli.Mode != "" {
		cfg.Server.Mode = cli.Mode
	}
	if cli.Addr != "" {
		cfg.Server.HTTPAddress = cli.Addr
	}

	logger.Init(cfg.Server.Mode)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Fatalf("Server stopped: %v", err)
	}
	logger.Log.Info("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settlement ledger
	var ledger persistence.Ledger = persistence.NopLedger{}
	if cfg.Database.Enabled {
		pg := cfg.Database.Postgres
		db, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return err
		}
		logger.Log.Info("Database connection successful.")
		ledger = db
	}
	defer ledger.Close()
	recorder := persistence.NewRecorder(ledger, persistence.DefaultRecorderQueue)

	clock := quartz.NewReal()
	mon := monitor.NewMonitor(cfg.Metrics.Namespace)
	sessions := session.NewManager()
	timers := timer.NewTimerManager(clock)
	defer timers.Stop()

	svc := services.NewRoomService(
		room.NewRoomManager(room.WithClock(clock), room.WithLogCapacity(cfg.Game.LogCapacity)),
		sessions,
		broadcast.NewRoomBroadcaster(sessions, func(string, string) { mon.IncBroadcastDropped() }),
		timers,
		mon,
		recorder,
		services.Options{
			DefaultStartingBalance: cfg.Game.DefaultStartingBalance,
			DisconnectGrace:        cfg.Game.DisconnectGrace,
			Clock:                  clock,
		},
	)

	gameServer := server.NewGameServer(server.Options{
		Addr:          cfg.Server.HTTPAddress,
		Mode:          cfg.Server.Mode,
		SendQueueSize: cfg.Game.SendQueueSize,
		Heartbeat:     cfg.Game.Heartbeat,
		Clock:         clock,
	}, svc, sessions, mon)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return recorder.Run(ctx)
	})
	g.Go(gameServer.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return gameServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
