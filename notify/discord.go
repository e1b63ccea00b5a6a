package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const discordColor = 0x2f81f7

// Discord posts one embed per message to a channel webhook.
type Discord struct {
	webhook string
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewDiscord(webhook string, timeout, minInterval time.Duration) *Discord {
	return &Discord{
		webhook: webhook,
		client:  resty.New().SetTimeout(timeout),
		limiter: newLimiter(minInterval),
		now:     time.Now,
	}
}

func (d *Discord) Name() string { return "discord" }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

func (d *Discord) Notify(ctx context.Context, title, body string) error {
	if !d.limiter.Allow() {
		return errRateLimited
	}

	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       title,
			Description: "```\n" + body + "\n```",
			Color:       discordColor,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(d.webhook)
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode())
	}
	return nil
}
