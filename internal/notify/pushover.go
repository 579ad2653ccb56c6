package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// PushoverConfig holds the credentials for the Pushover API.
type PushoverConfig struct {
	APIToken string
	UserKey  string
	Device   string
}

// PushoverProvider sends push notifications through the Pushover
// message API.
type PushoverProvider struct {
	cfg      PushoverConfig
	client   *http.Client
	endpoint string
	log      *slog.Logger
}

// NewPushover creates a Pushover provider. The provider is unavailable
// until both token and user key are set.
func NewPushover(cfg PushoverConfig, log *slog.Logger) *PushoverProvider {
	if log == nil {
		log = slog.Default()
	}
	return &PushoverProvider{
		cfg:      cfg,
		client:   &http.Client{},
		endpoint: pushoverEndpoint,
		log:      log,
	}
}

func (p *PushoverProvider) Name() string { return "pushover" }

func (p *PushoverProvider) Available() bool {
	return p.cfg.APIToken != "" && p.cfg.UserKey != ""
}

// pushoverPriority maps the internal priority onto Pushover's scale:
// -2 suppresses sound and banner, 0 is default, 1 is high priority.
func pushoverPriority(pr Priority) int {
	switch pr {
	case PriorityLow:
		return -2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

func (p *PushoverProvider) Send(ctx context.Context, msg Message) bool {
	form := url.Values{
		"token":    {p.cfg.APIToken},
		"user":     {p.cfg.UserKey},
		"title":    {msg.Title},
		"message":  {msg.Content},
		"priority": {strconv.Itoa(pushoverPriority(msg.Priority))},
	}
	if p.cfg.Device != "" {
		form.Set("device", p.cfg.Device)
	}
	if msg.URL != "" {
		form.Set("url", msg.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		p.log.Error("failed to build pushover request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("pushover request failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.log.Warn("pushover rejected message", "status", resp.StatusCode, "body", string(body))
		return false
	}
	return true
}
