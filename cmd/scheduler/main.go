package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"slack-steward/internal/adapters/repo"
	"slack-steward/internal/adapters/site"
	slackadapter "slack-steward/internal/adapters/slack"
	"slack-steward/internal/infra/config"
	"slack-steward/internal/infra/db"
	applog "slack-steward/internal/infra/log"
	"slack-steward/internal/infra/metrics"
	"slack-steward/internal/usecase/archive"
	"slack-steward/internal/usecase/chanlog"
	"slack-steward/internal/usecase/donations"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать схему")
	}

	slackClient := slackadapter.NewClient(cfg.Slack.Token, logger)

	chanlogSvc := chanlog.NewService(repoAdapter, slackClient, cfg.Slack.MonitorChannel, cfg.Slack.AdminChannel, logger)

	publisher, err := site.NewPublisher(cfg.Donations.GitURL, cfg.Donations.ArticlePath, cfg.Donations.TemplatePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подготовить публикатор сайта")
	}
	donationSvc := donations.NewService(
		repoAdapter, slackClient, slackClient, publisher, slackClient,
		donations.Channels{
			Review: cfg.Slack.ReviewChannel,
			Report: cfg.Slack.ReportChannel,
			Admin:  cfg.Slack.AdminChannel,
		},
		cfg.Slack.Command, logger,
	)

	templates, err := archive.LoadTemplates(cfg.Archive.TemplatesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось загрузить шаблоны архивации")
	}
	archiveSvc := archive.NewService(slackClient, slackClient, templates, archive.Config{
		MinAge:        time.Duration(cfg.Archive.MinAgeDays) * 24 * time.Hour,
		MaxInactivity: time.Duration(cfg.Archive.MaxInactiveDays) * 24 * time.Hour,
		MaxMembers:    cfg.Archive.MemberCount,
		Whitelist:     cfg.Archive.Whitelist,
		AdminChannel:  cfg.Slack.AdminChannel,
	}, logger)

	if err := chanlogSvc.EnsureToday(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler: не удалось создать текущую корзину журнала")
	}

	go runJanitor(ctx, logger, chanlogSvc, cfg.ChannelLog.JanitorInterval, cfg.ChannelLog.RetentionDays)
	go runDonationRecorder(ctx, logger, donationSvc, cfg.Donations.RecordInterval)
	go runArchiveSweep(ctx, logger, archiveSvc, cfg.Archive.DryRunInterval, 0, true)
	go runArchiveSweep(ctx, logger, archiveSvc, cfg.Archive.RunInterval, cfg.Archive.RunOffset, false)

	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
}

// runJanitor периодически чистит журнал действий с каналами.
func runJanitor(ctx context.Context, logger zerolog.Logger, svc *chanlog.Service, intervalSec, retentionDays int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Prune(ctx, retentionDays); err != nil {
				logger.Error().Err(err).Msg("scheduler: чистка журнала не удалась")
			}
		}
	}
}

// runDonationRecorder периодически публикует накопленные пожертвования.
func runDonationRecorder(ctx context.Context, logger zerolog.Logger, svc *donations.Service, intervalSec int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.PublishBatch(ctx, false); err != nil {
				logger.Error().Err(err).Msg("scheduler: публикация пожертвований не удалась")
			}
		}
	}
}

// runArchiveSweep запускает обход каналов с заданным смещением:
// сухой прогон и боевой обход разнесены по времени.
func runArchiveSweep(ctx context.Context, logger zerolog.Logger, svc *archive.Service, intervalSec, offsetSec int, dryRun bool) {
	if offsetSec > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(offsetSec) * time.Second):
		}
	}

	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Sweep(ctx, dryRun); err != nil {
				logger.Error().Err(err).Bool("dry_run", dryRun).Msg("scheduler: обход каналов не удался")
			}
		}
	}
}
