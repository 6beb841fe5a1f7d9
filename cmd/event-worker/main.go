package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"slack-steward/internal/adapters/repo"
	slackadapter "slack-steward/internal/adapters/slack"
	"slack-steward/internal/domain"
	"slack-steward/internal/infra/cache"
	"slack-steward/internal/infra/config"
	"slack-steward/internal/infra/db"
	applog "slack-steward/internal/infra/log"
	"slack-steward/internal/infra/metrics"
	"slack-steward/internal/infra/queue"
	"slack-steward/internal/usecase/chanlog"
	"slack-steward/internal/usecase/events"
)

// dedupeTTL — сколько помним обработанные события: Slack повторяет
// доставку в течение часа, сутки берём с запасом.
const dedupeTTL = 24 * time.Hour

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("event-worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("event-worker: не удалось инициализировать схему")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	dedupe := cache.NewRedis(redisClient)

	var eventQueue domain.EventQueue
	if cfg.RabbitURL != "" {
		eventQueue, err = queue.NewRabbitEventQueue(cfg.RabbitURL, cfg.RabbitManagementURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("event-worker: не удалось инициализировать очередь RabbitMQ")
		}
	} else {
		eventQueue = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
	}

	slackClient := slackadapter.NewClient(cfg.Slack.Token, logger)
	chanlogSvc := chanlog.NewService(repoAdapter, slackClient, cfg.Slack.MonitorChannel, cfg.Slack.AdminChannel, logger)
	dispatcher := events.NewDispatcher(chanlogSvc, slackClient, slackClient, logger)

	if err := chanlogSvc.EnsureToday(ctx); err != nil {
		logger.Error().Err(err).Msg("event-worker: не удалось создать текущую корзину журнала")
	}

	logger.Info().Str("queue", cfg.Queues.Events).Msg("event-worker: запущен")
	for {
		ev, err := eventQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("event-worker: остановка")
				return
			}
			logger.Error().Err(err).Msg("event-worker: ошибка чтения очереди")
			continue
		}

		err = dedupe.Once("slack_event:"+ev.ID, dedupeTTL, func() error {
			return dispatcher.Dispatch(ctx, ev)
		})
		if err != nil {
			logger.Error().Err(err).Str("event", ev.ID).Str("kind", string(ev.Kind)).Msg("event-worker: событие не обработано")
		}
	}
}
