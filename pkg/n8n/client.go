package n8n

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guarantee-controlplane/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
)

var Module = fx.Module("n8n", fx.Provide(Provide))

// Trigger posts an event payload to an n8n webhook.
type Trigger interface {
	Trigger(ctx context.Context, event string, payload []byte) error
}

type Client struct {
	http *resty.Client
}

func Provide(cfg *config.Config) Trigger {
	return New(cfg.N8N.BaseURL, cfg.N8N.Timeout)
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// WebhookPath turns an event name such as "campaign:enrollment.resolved" into
// the webhook path "/webhook/campaign-enrollment-resolved".
func WebhookPath(event string) string {
	slugged := strings.NewReplacer(":", "-", ".", "-", "_", "-").Replace(event)
	return "/webhook/" + slugged
}

func (c *Client) Trigger(ctx context.Context, event string, payload []byte) error {
	if c.http.BaseURL == "" {
		return fmt.Errorf("n8n base url is not configured")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(WebhookPath(event))
	if err != nil {
		return fmt.Errorf("n8n webhook %s: %w", event, err)
	}

	if resp.IsError() {
		return fmt.Errorf("n8n webhook %s returned %d", event, resp.StatusCode())
	}

	return nil
}
