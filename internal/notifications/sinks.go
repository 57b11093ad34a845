package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"

	"rewardbridge/internal/external"
)

// Sink delivers a rendered notification to one channel. A sink that is not
// responsible for the notification's audience returns nil without doing
// anything.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// LogSink writes every notification to the structured log. It is always
// installed so the log is a complete record of what was sent.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"notification_id", n.ID,
		"kind", n.Kind,
		"audience", n.Audience,
		"recipient", n.To.Email,
		"manager_id", n.To.ManagerID,
		"subject", n.Subject,
		"item_id", n.Data["ItemID"],
	)
	return nil
}

// EmailSink sends employee and manager notifications that carry an email
// address.
type EmailSink struct {
	provider external.EmailProvider
}

func NewEmailSink(provider external.EmailProvider) *EmailSink {
	return &EmailSink{provider: provider}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Notify(ctx context.Context, n Notification) error {
	if n.Audience == AudienceOps || n.To.Email == "" {
		return nil
	}
	_, err := s.provider.Send(ctx, external.Email{
		To:          n.To.Email,
		ToName:      n.To.Name,
		Subject:     n.Subject,
		Text:        n.Body,
		Category:    string(n.Kind),
		ReferenceID: n.ID,
	})
	return err
}

// SlackPoster is the subset of *slack.Client the sink uses.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackSink posts manager alerts and job summaries. Managers with a Slack
// user id get a direct message; otherwise the alert goes to the rewards
// channel. Failed job summaries go to the error channel.
type SlackSink struct {
	client       SlackPoster
	channel      string
	errorChannel string
}

func NewSlackSink(client SlackPoster, channel, errorChannel string) *SlackSink {
	if errorChannel == "" {
		errorChannel = channel
	}
	return &SlackSink{client: client, channel: channel, errorChannel: errorChannel}
}

// NewSlackSinkFromToken builds the sink around a bot token.
func NewSlackSinkFromToken(token, channel, errorChannel string) *SlackSink {
	return NewSlackSink(slack.New(token), channel, errorChannel)
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Notify(ctx context.Context, n Notification) error {
	var target string
	switch n.Audience {
	case AudienceManager:
		target = s.channel
		if n.To.SlackUserID != "" {
			target = n.To.SlackUserID
		}
	case AudienceOps:
		target = s.channel
		if n.Failure {
			target = s.errorChannel
		}
	default:
		return nil
	}
	if target == "" {
		return nil
	}

	text := fmt.Sprintf("*%s*\n%s", n.Subject, strings.TrimSpace(n.Body))
	_, _, err := s.client.PostMessageContext(ctx, target,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

// MultiSink fans a notification out to every sink concurrently and joins
// their errors.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Sinks returns the wrapped sinks.
func (m *MultiSink) Sinks() []Sink { return m.sinks }

func (m *MultiSink) Notify(ctx context.Context, n Notification) error {
	errs := make([]error, len(m.sinks))
	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			if err := s.Notify(ctx, n); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
