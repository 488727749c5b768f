package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"daily-tracker/internal/api"
	"daily-tracker/internal/auth"
	"daily-tracker/internal/bot"
	"daily-tracker/internal/config"
	"daily-tracker/internal/engine"
	"daily-tracker/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the Telegram bot and the HTTP API",
		Long: `Run the long-lived tracker process.

The Telegram bot starts when TELEGRAM_TOKEN is set and the HTTP API when HTTP_ADDR is set
(JWT_SECRET is then required). Countdowns refresh every second; with AUTO_RESET=true daily
tasks are also reset at each user's boundary while the process runs. Reports go out daily at
REPORT_TIME when it is set, otherwise every REPORT_INTERVAL_HOURS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	manager := newManager(cfg, st)
	defer manager.CloseAll()

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, st.users, manager, service.NewSummaryService(), service.NewTransferService(manager))
		if err != nil {
			return err
		}
	}

	var reports reporter
	if telegramBot != nil {
		reports = telegramBot
	}
	scheduler, err := buildScheduler(cfg, manager, reports)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.HTTPAddr != "" {
		a, err := auth.New(cfg.JWTSecret)
		if err != nil {
			return err
		}
		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewServer(manager, a).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[info] http api listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[warn] http server: %v", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("[warn] http shutdown: %v", err)
			}
		}()
	}

	log.Println("Daily tracker started.")
	if telegramBot != nil {
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	} else {
		<-ctx.Done()
	}
	log.Println("Shutdown complete.")
	return nil
}

// reporter sends the periodic summary to every known user.
type reporter interface {
	SendDailyReports(ctx context.Context) error
}

func buildScheduler(cfg config.Config, manager *engine.Manager, reports reporter) (*service.SchedulerService, error) {
	scheduler := service.NewSchedulerService(cfg.Location)

	if _, err := scheduler.ScheduleInterval(time.Second, func() {
		manager.Tick(time.Now())
	}); err != nil {
		return nil, err
	}

	if cfg.AutoReset {
		if _, err := scheduler.ScheduleInterval(time.Minute, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if n := manager.CheckResets(jobCtx); n > 0 {
				log.Printf("[info] periodic reset applied for %d users", n)
			}
		}); err != nil {
			return nil, err
		}
	}

	if reports != nil {
		send := func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := reports.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[warn] report: %v", err)
			}
		}
		var err error
		switch {
		case cfg.ReportTime != "":
			_, err = scheduler.ScheduleDaily(cfg.ReportTime, send)
		case cfg.ReportInterval > 0:
			_, err = scheduler.ScheduleInterval(cfg.ReportInterval, send)
		}
		if err != nil {
			return nil, err
		}
	}

	log.Printf("[info] scheduler ready with %d jobs", scheduler.Len())
	return scheduler, nil
}
