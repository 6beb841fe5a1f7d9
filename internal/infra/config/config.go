package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Slack struct {
		Token          string   `envconfig:"SLACK_BOT_TOKEN"`
		SigningSecret  string   `envconfig:"SLACK_SIGNING_SECRET"`
		ReviewChannel  string   `envconfig:"DONATION_REVIEW_CHANNEL"`
		ReportChannel  string   `envconfig:"DONATION_REPORT_CHANNEL"`
		MonitorChannel string   `envconfig:"CHANMON_CHANNEL" default:""`
		AdminChannel   string   `envconfig:"ADMIN_CHANNEL"`
		AdminIDs       []string `envconfig:"ADMIN_USER_IDS"`
		Command        string   `envconfig:"SLASH_COMMAND" default:"/steward"`
	} `envconfig:""`

	ChannelLog struct {
		RetentionDays   int `envconfig:"CHANMON_LOG_DAYS" default:"90"`
		JanitorInterval int `envconfig:"CHANMON_LOG_JANITOR_INTERVAL" default:"600"`
	} `envconfig:""`

	Archive struct {
		TemplatesPath   string   `envconfig:"CHANNEL_ARCHIVE_TEMPLATES_PATH"`
		Whitelist       []string `envconfig:"CHANNEL_ARCHIVE_WHITELIST"`
		MinAgeDays      int      `envconfig:"CHANNEL_ARCHIVE_MIN_AGE_DAYS" default:"30"`
		MaxInactiveDays int      `envconfig:"CHANNEL_ARCHIVE_MAX_INACTIVE_DAYS" default:"60"`
		MemberCount     int      `envconfig:"CHANNEL_ARCHIVE_MEMBER_COUNT" default:"0"`
		DryRunInterval  int      `envconfig:"CHANNEL_ARCHIVE_DRY_RUN_INTERVAL" default:"86400"`
		RunInterval     int      `envconfig:"CHANNEL_ARCHIVE_RUN_INTERVAL" default:"86400"`
		RunOffset       int      `envconfig:"CHANNEL_ARCHIVE_RUN_OFFSET" default:"43200"`
	} `envconfig:""`

	Donations struct {
		RecordInterval int    `envconfig:"DM_RECORD_POLLER_INTERVAL" default:"3600"`
		GitURL         string `envconfig:"WEBSITE_GIT_URL"`
		ArticlePath    string `envconfig:"WEBSITE_ARTICLE_PATH" default:"content/articles/season-of-giving.md"`
		TemplatePath   string `envconfig:"WEBSITE_ARTICLE_TEMPLATE_PATH"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL           string `envconfig:"RABBITMQ_URL"`
	RabbitManagementURL string `envconfig:"RABBITMQ_MANAGEMENT_URL"`

	Queues struct {
		Events string `envconfig:"EVENT_QUEUE_KEY" default:"workspace_events"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
