// Package main provides the raid engine server binary: it wires storage,
// content, loot, and the turn coordinator, then runs the background services.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/raidcore/internal/config"
	"github.com/cory-johannsen/raidcore/internal/game/content"
	"github.com/cory-johannsen/raidcore/internal/game/dice"
	"github.com/cory-johannsen/raidcore/internal/game/loot"
	"github.com/cory-johannsen/raidcore/internal/game/raid"
	"github.com/cory-johannsen/raidcore/internal/observability"
	"github.com/cory-johannsen/raidcore/internal/scripting"
	"github.com/cory-johannsen/raidcore/internal/server"
	"github.com/cory-johannsen/raidcore/internal/storage/memory"
	"github.com/cory-johannsen/raidcore/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	monstersDir := flag.String("monsters-dir", "", "monster YAML directory; overrides content.monsters_dir")
	scriptsDir := flag.String("scripts-dir", "", "Lua loot script directory; overrides content.scripts_dir")
	actorsFile := flag.String("actors-file", "", "actor roster YAML file; overrides content.actors_file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *monstersDir != "" {
		cfg.Content.MonstersDir = *monstersDir
	}
	if *scriptsDir != "" {
		cfg.Content.ScriptsDir = *scriptsDir
	}
	if *actorsFile != "" {
		cfg.Content.ActorsFile = *actorsFile
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	// Load monster catalog.
	contentStart := time.Now()
	catalog, err := content.LoadCatalogFromDir(cfg.Content.MonstersDir)
	if err != nil {
		logger.Fatal("loading monster catalog", zap.Error(err))
	}
	logger.Info("monster catalog loaded",
		zap.Int("monsters", len(catalog.Names())),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	// Load loot hook scripts, when configured.
	var hook loot.Hook
	var runner *scripting.Runner
	if cfg.Content.ScriptsDir != "" {
		if info, statErr := os.Stat(cfg.Content.ScriptsDir); statErr == nil && info.IsDir() {
			scriptStart := time.Now()
			runner = scripting.NewRunner(0, logger)
			if err := runner.LoadDir(cfg.Content.ScriptsDir); err != nil {
				logger.Fatal("loading loot scripts", zap.Error(err))
			}
			hook = content.NewScriptedHooks(catalog, runner)
			logger.Info("loot scripts loaded",
				zap.Strings("scripts", runner.Scripts()),
				zap.Duration("elapsed", time.Since(scriptStart)),
			)
		} else {
			logger.Warn("scripts_dir not found, loot hooks disabled",
				zap.String("dir", cfg.Content.ScriptsDir))
		}
	}

	// Load the actor roster.
	roster, err := content.LoadRosterFromFile(cfg.Content.ActorsFile)
	if err != nil {
		logger.Fatal("loading actor roster", zap.Error(err))
	}

	// Select the session store backend.
	var store raid.Store
	var pool *postgres.Pool
	switch cfg.Storage.Backend {
	case "postgres":
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		store = postgres.NewRaidRepository(pool.DB())
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	case "memory":
		store = memory.NewStore()
		logger.Warn("using in-memory session store; sessions do not survive restarts")
	default:
		logger.Fatal("unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}

	// The loot engine draws uniformly from a crypto-backed source.
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	lootEngine := loot.NewEngine(catalog, roller, hook, logger)

	coordinator := raid.NewCoordinator(store, roster, roster, lootEngine, nil, raid.Settings{
		SessionTTL:      cfg.Raid.SessionTTL,
		MaxParticipants: cfg.Raid.MaxParticipants,
		MaxWriteRetries: cfg.Raid.MaxWriteRetries,
	}, logger)

	scheduler := raid.NewSkipScheduler(cfg.Raid.SkipWindow, coordinator, logger)
	coordinator.AttachTimers(scheduler)

	sweeper := raid.NewSweeper(store, coordinator, cfg.Raid.SweepInterval, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("sweeper", sweeper)

	schedulerDone := make(chan struct{})
	lifecycle.Add("skip-scheduler", &server.FuncService{
		StartFn: func() error {
			<-schedulerDone
			return nil
		},
		StopFn: func() {
			scheduler.Stop()
			close(schedulerDone)
		},
	})

	if pool != nil {
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				pool.Close()
			},
		})
	}

	if runner != nil {
		lifecycle.Add("scripting", &server.FuncService{
			StartFn: func() error {
				<-schedulerDone
				return nil
			},
			StopFn: func() {
				runner.Close()
			},
		})
	}

	logger.Info("raid server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("backend", cfg.Storage.Backend),
		zap.Duration("skip_window", cfg.Raid.SkipWindow),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
