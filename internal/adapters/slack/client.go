package slack

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"

	"slack-steward/internal/domain"
	"slack-steward/internal/infra/metrics"
)

// Client — адаптер Slack Web API. Реализует domain.Notifier,
// domain.UserDirectory и domain.ChannelDirectory.
type Client struct {
	api *slackapi.Client
	log zerolog.Logger
}

var (
	_ domain.Notifier         = (*Client)(nil)
	_ domain.UserDirectory    = (*Client)(nil)
	_ domain.ChannelDirectory = (*Client)(nil)
)

// NewClient создаёт адаптер с указанным bot-токеном.
func NewClient(token string, logger zerolog.Logger) *Client {
	return &Client{api: slackapi.New(token), log: logger}
}

// Send отправляет текстовое сообщение в канал. Текст длиннее лимита
// Slack уходит несколькими сообщениями.
func (c *Client) Send(ctx context.Context, channelID, text string) error {
	for _, part := range SplitMessage(text) {
		start := time.Now()
		_, _, err := c.api.PostMessageContext(ctx, channelID, slackapi.MsgOptionText(part, false))
		metrics.ObserveNetworkRequest("slack", "chat_post_message", channelID, start, err)
		if err != nil {
			return fmt.Errorf("chat.postMessage: %w", err)
		}
	}
	return nil
}

// DisplayName возвращает полное имя пользователя из профиля.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	user, err := c.api.GetUserInfoContext(ctx, userID)
	metrics.ObserveNetworkRequest("slack", "users_info", userID, start, err)
	if err != nil {
		return "", fmt.Errorf("users.info: %w", err)
	}
	if user.Profile.RealName != "" {
		return user.Profile.RealName, nil
	}
	return user.Name, nil
}

// Username возвращает короткое имя пользователя.
func (c *Client) Username(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	user, err := c.api.GetUserInfoContext(ctx, userID)
	metrics.ObserveNetworkRequest("slack", "users_info", userID, start, err)
	if err != nil {
		return "", fmt.Errorf("users.info: %w", err)
	}
	return user.Name, nil
}

// ListChannels возвращает все публичные каналы рабочего пространства.
func (c *Client) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	var channels []domain.Channel
	cursor := ""
	for {
		start := time.Now()
		page, next, err := c.api.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
			Types:  []string{"public_channel"},
			Cursor: cursor,
			Limit:  200,
		})
		metrics.ObserveNetworkRequest("slack", "conversations_list", "public_channel", start, err)
		if err != nil {
			return nil, fmt.Errorf("conversations.list: %w", err)
		}
		for _, ch := range page {
			channels = append(channels, toDomainChannel(ch))
		}
		if next == "" {
			return channels, nil
		}
		cursor = next
	}
}

// ChannelName возвращает имя канала по его ID.
func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	start := time.Now()
	ch, err := c.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{ChannelID: channelID})
	metrics.ObserveNetworkRequest("slack", "conversations_info", channelID, start, err)
	if err != nil {
		return "", fmt.Errorf("conversations.info: %w", err)
	}
	return ch.Name, nil
}

// Activity возвращает сырые данные о последней активности канала.
func (c *Client) Activity(ctx context.Context, channelID string) (domain.ChannelActivity, error) {
	start := time.Now()
	resp, err := c.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     1,
	})
	metrics.ObserveNetworkRequest("slack", "conversations_history", channelID, start, err)
	if err != nil {
		return domain.ChannelActivity{}, fmt.Errorf("conversations.history: %w", err)
	}

	activity := domain.ChannelActivity{Latest: parseSlackTS(resp.Latest)}
	for _, msg := range resp.Messages {
		if ts := parseSlackTS(msg.Timestamp); ts > 0 {
			activity.MessageTimestamps = append(activity.MessageTimestamps, ts)
		}
	}
	return activity, nil
}

// Archive архивирует канал.
func (c *Client) Archive(ctx context.Context, channelID string) error {
	start := time.Now()
	err := c.api.ArchiveConversationContext(ctx, channelID)
	metrics.ObserveNetworkRequest("slack", "conversations_archive", channelID, start, err)
	if err != nil {
		return fmt.Errorf("conversations.archive: %w", err)
	}
	return nil
}

// SetTopic задаёт топик канала.
func (c *Client) SetTopic(ctx context.Context, channelID, topic string) error {
	start := time.Now()
	_, err := c.api.SetTopicOfConversationContext(ctx, channelID, topic)
	metrics.ObserveNetworkRequest("slack", "conversations_set_topic", channelID, start, err)
	if err != nil {
		return fmt.Errorf("conversations.setTopic: %w", err)
	}
	return nil
}

func toDomainChannel(ch slackapi.Channel) domain.Channel {
	return domain.Channel{
		ID:         ch.ID,
		Name:       ch.Name,
		Creator:    ch.Creator,
		Created:    ch.Created.Time().Unix(),
		IsArchived: ch.IsArchived,
		IsChannel:  ch.IsChannel,
		IsGeneral:  ch.IsGeneral,
		NumMembers: ch.NumMembers,
	}
}

// parseSlackTS переводит метку Slack вида "1610000000.000200" в unix-секунды.
func parseSlackTS(ts string) int64 {
	if ts == "" {
		return 0
	}
	seconds, _, _ := strings.Cut(ts, ".")
	value, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return 0
	}
	return value
}
