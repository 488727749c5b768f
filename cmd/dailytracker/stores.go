package main

import (
	"context"
	"fmt"
	"log"

	"daily-tracker/internal/bot"
	"daily-tracker/internal/config"
	"daily-tracker/internal/engine"
	"daily-tracker/internal/legacy"
	"daily-tracker/internal/repository"
)

type userStore interface {
	bot.UserStore
	repository.TelegramUsers
}

// stores bundles the repositories of the configured driver.
type stores struct {
	tasks    engine.TaskStore
	settings engine.SettingsStore
	users    userStore
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := repository.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB)
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Printf("[info] using mongo database %s", cfg.MongoDB)
		return &stores{
			tasks:    repository.NewMongoTaskRepository(db),
			settings: repository.NewMongoSettingsRepository(db),
			users:    repository.NewMongoUserRepository(db),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.Printf("[warn] mongo disconnect: %v", err)
				}
			},
		}, nil
	default:
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		log.Printf("[info] using sqlite database %s", cfg.DatabaseURL)
		return &stores{
			tasks:    repository.NewTaskRepository(db),
			settings: repository.NewSettingsRepository(db),
			users:    repository.NewUserRepository(db),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					sqlDB.Close()
				}
			},
		}, nil
	}
}

func newManager(cfg config.Config, st *stores) *engine.Manager {
	var source legacy.Source = legacy.NoopSource{}
	if cfg.LegacyDir != "" {
		source = legacy.NewFileSource(cfg.LegacyDir)
	}
	return engine.NewManager(engine.Deps{
		Tasks:        st.tasks,
		Settings:     st.settings,
		Legacy:       source,
		Location:     cfg.Location,
		StoreTimeout: cfg.StoreTimeout,
	})
}
