// Package main provides the chat server binary: a multi-room TCP chat
// server with embedded Omok and BR31 mini-games.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/chat"
	"github.com/parlorchat/parlor/internal/chatserver"
	"github.com/parlorchat/parlor/internal/command"
	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/game/br31"
	"github.com/parlorchat/parlor/internal/game/omok"
	"github.com/parlorchat/parlor/internal/observability"
	"github.com/parlorchat/parlor/internal/server"
	"github.com/parlorchat/parlor/internal/storage"
	"github.com/parlorchat/parlor/internal/storage/postgres"
	"github.com/parlorchat/parlor/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting chat server", zap.String("addr", cfg.Server.Addr()))

	// History persistence is best-effort: without a reachable database the
	// server runs on the no-op store.
	var store storage.Store = storage.NoopStore{}
	var pool *postgres.Pool
	if cfg.Persistence() {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Warn("database unavailable, running without history",
				zap.String("host", cfg.Database.Host),
				zap.Error(err),
			)
		} else {
			store = postgres.NewStore(pool.DB())
			defer pool.Close()
			logger.Info("database connected",
				zap.String("host", cfg.Database.Host),
				zap.Duration("elapsed", time.Since(dbStart)),
			)
		}
	}

	hub := chat.NewHub(logger)
	users := chat.NewUserDirectory()
	rooms := chat.NewRoomManager(logger)

	loadRooms(ctx, rooms, store, cfg.Rooms.SeedFile, logger)

	omokMgr := omok.NewManager(cfg.Game.OmokSessionTimeout, logger)
	br31Mgr := br31.NewManager(cfg.Game.BR31WaitTimeout, logger)
	omokMgr.StartSweeper(cfg.Game.SweepInterval)
	br31Mgr.StartSweeper(cfg.Game.SweepInterval)

	router := command.NewRouter(rooms, users, hub, omokMgr, br31Mgr, store, cfg.History.RecentLimit, logger)
	handler := chatserver.NewHandler(hub, users, router, omokMgr, br31Mgr, logger)
	acceptor := transport.NewAcceptor(cfg.Server, handler, logger)

	lc := server.NewLifecycle(logger)
	lc.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	lc.Add("games", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn: func() {
			omokMgr.StopSweeper()
			br31Mgr.StopSweeper()
		},
	})
	lc.Add("hub", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  hub.CloseAll,
	})

	if err := lc.Run(ctx); err != nil {
		logger.Fatal("lifecycle failed", zap.Error(err))
	}
}

// loadRooms populates the catalogue from the store, then overlays the YAML
// seed file. Failures are logged and never fatal.
func loadRooms(ctx context.Context, rooms *chat.RoomManager, store storage.Store, seedPath string, logger *zap.Logger) {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	recs, err := store.LoadAllRooms(loadCtx)
	if err != nil {
		logger.Warn("loading rooms from store", zap.Error(err))
	}
	for _, rec := range recs {
		rooms.Ensure(rec.Name, rec.Capacity, rec.Locked, rec.Password, rec.Owner)
	}

	if seedPath != "" {
		seeds, err := chat.LoadSeedFile(seedPath)
		if err != nil {
			logger.Warn("loading room seed file",
				zap.String("path", seedPath),
				zap.Error(err),
			)
		} else {
			created := rooms.Seed(seeds)
			logger.Info("rooms seeded",
				zap.Int("created", created),
				zap.Int("seeded", len(seeds)),
			)
		}
	}

	logger.Info("room catalogue loaded", zap.Int("rooms", len(rooms.List())))
}
