package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageUpdate is one group message lifted out of a raw update.
type MessageUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	Text      string
}

type Handlers struct {
	OnMessage func(context.Context, MessageUpdate) error
}

// Bot wraps the Telegram API: the update loop on one side and the
// enforcement calls the moderation core invokes on the other.
type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
}

func NewBot(token string, pollTimeout int) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{
		api:         api,
		pollTimeout: pollTimeout,
	}, nil
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	timeout := b.pollTimeout
	if timeout <= 0 {
		timeout = 30
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = timeout
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.From == nil {
				continue
			}
			if handlers.OnMessage == nil {
				continue
			}
			_ = handlers.OnMessage(ctx, MessageUpdate{
				ChatID:    update.Message.Chat.ID,
				UserID:    update.Message.From.ID,
				Username:  update.Message.From.UserName,
				MessageID: update.Message.MessageID,
				Text:      update.Message.Text,
			})
		}
	}
}

// Mute restricts the user from sending anything until the duration elapses.
func (b *Bot) Mute(_ context.Context, groupID, userID string, duration time.Duration) error {
	chatID, memberID, err := parseIDs(groupID, userID)
	if err != nil {
		return err
	}

	until := time.Now().Add(duration).Unix()
	restrict := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: memberID,
		},
		UntilDate: until,
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages: false,
		},
	}
	if _, err := b.api.Request(restrict); err != nil {
		return fmt.Errorf("mute chat member: %w", err)
	}
	return nil
}

// Kick is a temporary expulsion: ban followed by an immediate unban so the
// user may rejoin.
func (b *Bot) Kick(_ context.Context, groupID, userID string) error {
	chatID, memberID, err := parseIDs(groupID, userID)
	if err != nil {
		return err
	}

	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: memberID,
		},
	}
	if _, err := b.api.Request(ban); err != nil {
		return fmt.Errorf("kick chat member: %w", err)
	}

	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: memberID,
		},
		OnlyIfBanned: true,
	}
	if _, err := b.api.Request(unban); err != nil {
		return fmt.Errorf("unban kicked chat member: %w", err)
	}
	return nil
}

func (b *Bot) Ban(_ context.Context, groupID, userID string) error {
	chatID, memberID, err := parseIDs(groupID, userID)
	if err != nil {
		return err
	}

	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: memberID,
		},
	}
	if _, err := b.api.Request(ban); err != nil {
		return fmt.Errorf("ban chat member: %w", err)
	}
	return nil
}

func (b *Bot) SendMessage(_ context.Context, groupID, text string) (int, error) {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse group id %q: %w", groupID, err)
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send group message: %w", err)
	}
	return sent.MessageID, nil
}

func (b *Bot) DeleteMessage(_ context.Context, groupID string, messageID int) error {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse group id %q: %w", groupID, err)
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete group message: %w", err)
	}
	return nil
}

func parseIDs(groupID, userID string) (int64, int64, error) {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse group id %q: %w", groupID, err)
	}
	memberID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse user id %q: %w", userID, err)
	}
	return chatID, memberID, nil
}
