package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/transition"
)

const defaultWebhookTemplate = `{"unit":"{{ .Unit }}","transitions":{{ toJson .Transitions }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Unit        string
	Transitions []transition.StageTransition
	GeneratedAt time.Time
}

// WebhookNotifier sends transition notifications to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	delivery *deliverer
}

// WebhookOption customizes WebhookNotifier behavior.
type WebhookOption func(*DeliveryPolicy)

// WithWebhookPolicy overrides pacing and retry behaviour.
func WithWebhookPolicy(policy DeliveryPolicy) WebhookOption {
	return func(p *DeliveryPolicy) {
		*p = policy
	}
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// It returns nil when no URL is configured.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	policy := DefaultDeliveryPolicy()
	for _, opt := range opts {
		opt(&policy)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		delivery: newDeliverer(logger, "webhook", webhookURL, policy),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, unit string, transitions []transition.StageTransition) error {
	if n == nil || len(transitions) == 0 {
		return nil
	}
	unit = unitName(unit)

	if err := n.delivery.pace(ctx, unit); err != nil {
		return err
	}

	var buf bytes.Buffer
	payload := WebhookPayload{
		Unit:        unit,
		Transitions: transitions,
		GeneratedAt: time.Now().UTC(),
	}
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.delivery.deliver(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("unit", unit).
		Int("transitions", len(transitions)).
		Msg("webhook notification sent")

	return nil
}
