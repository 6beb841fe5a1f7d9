package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"slack-steward/internal/adapters/bot"
	"slack-steward/internal/adapters/repo"
	"slack-steward/internal/adapters/site"
	slackadapter "slack-steward/internal/adapters/slack"
	"slack-steward/internal/domain"
	"slack-steward/internal/infra/config"
	"slack-steward/internal/infra/db"
	infrahttp "slack-steward/internal/infra/http"
	applog "slack-steward/internal/infra/log"
	"slack-steward/internal/infra/metrics"
	"slack-steward/internal/infra/queue"
	"slack-steward/internal/usecase/chanlog"
	"slack-steward/internal/usecase/donations"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось инициализировать схему")
	}

	slackClient := slackadapter.NewClient(cfg.Slack.Token, logger)

	publisher, err := site.NewPublisher(cfg.Donations.GitURL, cfg.Donations.ArticlePath, cfg.Donations.TemplatePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось подготовить публикатор сайта")
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
	chanlogSvc := chanlog.NewService(repoAdapter, slackClient, cfg.Slack.MonitorChannel, cfg.Slack.AdminChannel, logger)

	handler := bot.NewHandler(donationSvc, chanlogSvc, cfg.Slack.AdminIDs, cfg.Slack.Command, logger)

	var events domain.EventQueue
	if cfg.RabbitURL != "" {
		events, err = queue.NewRabbitEventQueue(cfg.RabbitURL, cfg.RabbitManagementURL, cfg.Queues.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось инициализировать очередь RabbitMQ")
		}
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		events = queue.NewRedisEventQueue(redisClient, cfg.Queues.Events)
	}

	srv := infrahttp.NewServer(logger)
	srv.Router.Post("/slack/events", eventsEndpoint(cfg.Slack.SigningSecret, events, logger))
	srv.Router.Post("/slack/commands", commandsEndpoint(cfg.Slack.SigningSecret, handler, logger))

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// eventsEndpoint проверяет подпись запроса, отвечает на url_verification
// и ставит интересующие события в очередь.
func eventsEndpoint(signingSecret string, events domain.EventQueue, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifiedBody(r, signingSecret)
		if err != nil {
			logger.Warn().Err(err).Msg("bot-gateway: подпись события не прошла проверку")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch event.Type {
		case slackevents.URLVerification:
			var challenge slackevents.ChallengeResponse
			if err := json.Unmarshal(body, &challenge); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(challenge.Challenge))
		case slackevents.CallbackEvent:
			mapped, ok := slackadapter.MapCallbackEvent(event, time.Now())
			if !ok {
				w.WriteHeader(http.StatusOK)
				return
			}
			if err := events.Enqueue(r.Context(), mapped); err != nil {
				logger.Error().Err(err).Str("event", mapped.ID).Msg("bot-gateway: не удалось поставить событие в очередь")
				http.Error(w, "enqueue failed", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

// commandsEndpoint проверяет подпись и выполняет slash-команду.
func commandsEndpoint(signingSecret string, handler *bot.Handler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := verifiedBody(r, signingSecret); err != nil {
			logger.Warn().Err(err).Msg("bot-gateway: подпись команды не прошла проверку")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		cmd, err := slackapi.SlashCommandParse(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		reply := handler.Handle(r.Context(), cmd.UserID, cmd.Text)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response_type": "ephemeral",
			"text":          reply,
		})
	}
}

// verifiedBody читает тело запроса, проверяет подпись Slack и возвращает
// тело так, что его можно разобрать повторно.
func verifiedBody(r *http.Request, signingSecret string) ([]byte, error) {
	verifier, err := slackapi.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.TeeReader(r.Body, &verifier))
	if err != nil {
		return nil, err
	}
	if err := verifier.Ensure(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
