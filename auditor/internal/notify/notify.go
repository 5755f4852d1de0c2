package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Severity values carried on a Message.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Message is one escalation notification addressed to a chef.
type Message struct {
	ID         string       `json:"id"`
	EventID    int64        `json:"event_id"`
	To         string       `json:"to"`
	Subject    string       `json:"subject"`
	Body       string       `json:"body"`
	Branch     string       `json:"branch"`
	Ingredient string       `json:"ingredient"`
	Severity   string       `json:"severity"`
	Causes     types.Causes `json:"root_causes"`
	Cost       float64      `json:"wastage_cost"`
}

// Sender delivers a Message over one channel.
type Sender interface {
	Send(ctx context.Context, m Message) error
	Name() string
}

// Multi fans a Message out to every configured sender. A failing sender
// does not stop delivery to the others; all failures are joined.
type Multi []Sender

func (ms Multi) Name() string { return "multi" }

func (ms Multi) Send(ctx context.Context, m Message) error {
	var errs []error
	for _, s := range ms {
		if err := s.Send(ctx, m); err != nil {
			slog.Error("notify: delivery failed",
				"sender", s.Name(),
				"event", m.EventID,
				"err", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		slog.Debug("notify: delivered", "sender", s.Name(), "event", m.EventID)
	}
	return errors.Join(errs...)
}

// New builds a Multi from the configured senders. Secrets are resolved from
// the environment here, so a missing variable fails at startup.
func New(cfgs []config.SenderConfig) (Multi, error) {
	out := make(Multi, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := newSender(c)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("notify: sender %d (%s): %w", i, c.Type, err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		slog.Warn("notify: no senders configured, escalations will not be delivered")
	}
	return out, nil
}

// Close releases any sender holding a connection.
func (ms Multi) Close() {
	for _, s := range ms {
		if c, ok := s.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

func newSender(c config.SenderConfig) (Sender, error) {
	switch c.Type {
	case "smtp":
		return NewSMTP(c.Host, c.Port, c.Username, c.Password(), c.From), nil
	case "webhook":
		url := c.URL()
		if url == "" {
			return nil, fmt.Errorf("environment variable %q is empty", c.URLEnv)
		}
		return NewWebhook(c.Format, url), nil
	case "amqp":
		url := c.URL()
		if url == "" {
			return nil, fmt.Errorf("environment variable %q is empty", c.URLEnv)
		}
		return NewAMQP(url, c.Exchange, c.RoutingKey), nil
	case "telegram":
		token := c.Token()
		if token == "" {
			return nil, fmt.Errorf("environment variable %q is empty", c.TokenEnv)
		}
		return NewTelegram(token, c.ChatID)
	default:
		return nil, fmt.Errorf("unknown sender type %q", c.Type)
	}
}

func severityLabel(s string) string {
	switch s {
	case SeverityCritical:
		return "[CRITICAL]"
	case SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case SeverityCritical:
		return "FF4F6A"
	case SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
