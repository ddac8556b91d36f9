package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackConfig holds the bot token and the channel to post in.
type SlackConfig struct {
	Token   string
	Channel string
	APIURL  string // overrides the Slack API base, must end in "/"
}

// Slack posts notices with chat.postMessage.
type Slack struct {
	api     *slack.Client
	channel string
}

// NewSlack creates a Slack notifier. No request is made until Notify.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack: token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{api: slack.New(cfg.Token, opts...), channel: cfg.Channel}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, n Notice) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(FormatMrkdwn(n), false),
	)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// FormatMrkdwn renders n as Slack mrkdwn.
func FormatMrkdwn(n Notice) string {
	var sb strings.Builder
	sb.WriteString("*" + escapeMrkdwn(n.Title()) + "*\n")
	for _, f := range n.fields() {
		fmt.Fprintf(&sb, "*%s:* %s\n", escapeMrkdwn(f[0]), escapeMrkdwn(f[1]))
	}
	if n.Text != "" {
		sb.WriteString("> " + strings.ReplaceAll(escapeMrkdwn(n.Text), "\n", "\n> "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Slack only requires these three to be escaped.
func escapeMrkdwn(s string) string { return htmlEscaper.Replace(s) }
