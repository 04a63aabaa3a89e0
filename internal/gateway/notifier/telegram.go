package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	TelegramBaseURL = "https://api.telegram.org"

	telegramTimeout  = 15 * time.Second
	telegramAttempts = 3
)

// Telegram posts order notifications to one chat, retrying up to three times.
type Telegram struct {
	BotToken string
	ChatID   string

	http  *resty.Client
	sleep func(time.Duration)
}

func NewTelegram(baseURL, botToken, chatID string) *Telegram {
	if baseURL == "" {
		baseURL = TelegramBaseURL
	}
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		http:     resty.New().SetBaseURL(baseURL).SetTimeout(telegramTimeout),
		sleep:    time.Sleep,
	}
}

func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	var lastErr error
	for i := 0; i < telegramAttempts; i++ {
		resp, err := t.http.R().
			SetContext(context.Background()).
			SetPathParam("token", t.BotToken).
			SetBody(payload).
			Post("/bot{token}/sendMessage")
		switch {
		case err != nil:
			lastErr = err
		case resp.IsSuccess():
			return nil
		default:
			lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode())
		}
		if i < telegramAttempts-1 {
			t.sleep(time.Duration(i+1) * time.Second)
		}
	}
	return lastErr
}
