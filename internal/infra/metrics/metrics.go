package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ChannelEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_events_total",
		Help: "Обработанные события жизненного цикла каналов",
	}, []string{"action"})

	DonationsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donations_submitted_total",
		Help: "Зарегистрированные пожертвования",
	})

	DonationPublishSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "donation_publish_seconds",
		Help:    "Время внешней публикации пакета пожертвований",
		Buckets: prometheus.DefBuckets,
	})

	DonationPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donation_publish_errors_total",
		Help: "Ошибки внешней публикации пожертвований",
	})

	ArchiveDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_decisions_total",
		Help: "Каналы, признанные подлежащими архивации",
	}, []string{"dry_run"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ChannelEventsTotal,
		DonationsSubmittedTotal,
		DonationPublishSeconds,
		DonationPublishErrors,
		ArchiveDecisionsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// IncChannelEvent увеличивает счётчик событий каналов.
func IncChannelEvent(action string) {
	ChannelEventsTotal.WithLabelValues(action).Inc()
}

// IncDonationSubmitted увеличивает счётчик заявленных пожертвований.
func IncDonationSubmitted() {
	DonationsSubmittedTotal.Inc()
}

// ObservePublish записывает длительность и исход публикации пакета.
func ObservePublish(start time.Time, err error) {
	DonationPublishSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		DonationPublishErrors.Inc()
	}
}

// IncArchiveDecision увеличивает счётчик решений об архивации.
func IncArchiveDecision(dryRun bool) {
	ArchiveDecisionsTotal.WithLabelValues(strconv.FormatBool(dryRun)).Inc()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
