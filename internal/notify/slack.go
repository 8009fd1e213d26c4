package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/nholik/openstack-service-checks/internal/status"
	"github.com/nholik/openstack-service-checks/internal/transition"
)

const (
	slackMaxBlocks = 50
	// header and context blocks in each message
	slackReservedBlocks = 2
	slackMaxTransitions = slackMaxBlocks - slackReservedBlocks
)

// SlackNotifier posts stage transitions to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	policy     DeliveryPolicy
	delivery   *deliverer
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackPolicy overrides pacing and retry behaviour.
func WithSlackPolicy(policy DeliveryPolicy) SlackOption {
	return func(s *SlackNotifier) {
		s.policy = policy
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		policy:     DefaultDeliveryPolicy(),
	}
	for _, opt := range opts {
		opt(notifier)
	}
	notifier.delivery = newDeliverer(logger, "slack", webhookURL, notifier.policy)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, unit string, transitions []transition.StageTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	unit = unitName(unit)
	if err := n.delivery.pace(ctx, unit); err != nil {
		return err
	}

	messages := buildSlackMessages(unit, transitions)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.delivery.deliver(ctx, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Str("unit", unit).
		Int("transitions", len(transitions)).
		Int("messages", len(messages)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessages(unit string, transitions []transition.StageTransition) []slack.WebhookMessage {
	if len(transitions) == 0 {
		return nil
	}

	total := len(transitions)
	chunkTotal := (total + slackMaxTransitions - 1) / slackMaxTransitions
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxTransitions {
		end := i + slackMaxTransitions
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxTransitions) + 1
		messages = append(messages, buildSlackMessage(unit, transitions[i:end], total, partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(unit string, transitions []transition.StageTransition, total int, partIndex int, partTotal int) slack.WebhookMessage {
	summary := fmt.Sprintf("Unit %s: %d stage transition(s)", unit, total)
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Unit: *%s*", unit), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, contextBlock}
	for _, change := range transitions {
		blocks = append(blocks, buildTransitionBlock(change))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildTransitionBlock(change transition.StageTransition) slack.Block {
	title := fmt.Sprintf("%s *%s*: `%s` → `%s`", levelEmoji(change.CurrentLevel), change.Stage,
		levelLabel(change.PreviousLevel), levelLabel(change.CurrentLevel))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := make([]*slack.TextBlockObject, 0, 2)
	if change.CurrentMessage != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Status:*\n"+change.CurrentMessage, false, false))
	}
	if change.PreviousMessage != "" && change.PreviousMessage != change.CurrentMessage {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Was:*\n"+change.PreviousMessage, false, false))
	}
	if len(fields) == 0 {
		fields = nil
	}

	return slack.NewSectionBlock(text, fields, nil)
}

func levelEmoji(level status.Level) string {
	switch level {
	case status.LevelActive:
		return ":white_check_mark:"
	case status.LevelBlocked:
		return ":red_circle:"
	default:
		return ":large_yellow_circle:"
	}
}

func levelLabel(level status.Level) string {
	if level == "" {
		return "unknown"
	}
	return string(level)
}
