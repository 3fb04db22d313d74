package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/report"
)

const slackBaseURL = "https://slack.com/api"

// SlackClient interface for posting messages (allows mocking)
type SlackClient interface {
	PostMessage(ctx context.Context, channel string, msg report.Message) (string, error)
}

// defaultSlackClient implements SlackClient against the Slack Web API.
type defaultSlackClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func (c *defaultSlackClient) PostMessage(ctx context.Context, channel string, msg report.Message) (string, error) {
	payload := map[string]any{
		"channel": channel,
		"text":    msg.Fallback,
		"blocks":  msg.Blocks,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/chat.postMessage", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &DeliveryError{Err: fmt.Errorf("post message: %w", err)}
	}
	defer resp.Body.Close()

	var result struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &DeliveryError{Err: fmt.Errorf("decode post response: %w", err)}
	}
	if !result.OK {
		return "", &DeliveryError{Code: result.Error}
	}
	return result.TS, nil
}

// SlackClientFactory creates SlackClient instances
type SlackClientFactory func(token string) SlackClient

var defaultSlackClientFactory SlackClientFactory = func(token string) SlackClient {
	return &defaultSlackClient{
		token:      token,
		baseURL:    slackBaseURL,
		httpClient: http.DefaultClient,
	}
}

// SlackSink posts rendered standup messages to a Slack channel.
type SlackSink struct {
	token         string
	channel       string
	client        SlackClient
	clientFactory SlackClientFactory
}

func NewSlackSink(token, channel string) (*SlackSink, error) {
	return NewSlackSinkWithFactory(token, channel, defaultSlackClientFactory)
}

func NewSlackSinkWithFactory(token, channel string, factory SlackClientFactory) (*SlackSink, error) {
	if token == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}
	return &SlackSink{token: token, channel: channel, clientFactory: factory}, nil
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Connect(ctx context.Context) error {
	s.client = s.clientFactory(s.token)
	return nil
}

func (s *SlackSink) Ready() bool { return s.client != nil }

func (s *SlackSink) Close() error {
	s.client = nil
	return nil
}

// Publish posts the message and reports the outcome. The Outcome
// carries the provider timestamp on success and the rejection reason
// otherwise.
func (s *SlackSink) Publish(ctx context.Context, msg report.Message) (report.Outcome, error) {
	if s.client == nil {
		return report.Outcome{Reason: "sink not connected"},
			&DeliveryError{Err: fmt.Errorf("slack client not initialized")}
	}

	ts, err := s.client.PostMessage(ctx, s.channel, msg)
	if err != nil {
		return report.Outcome{Reason: err.Error()}, err
	}

	log.Printf("[slack] posted standup to %s (ts: %s)", s.channel, ts)
	return report.Outcome{Delivered: true, MessageID: ts}, nil
}

func (s *SlackSink) RegisterTools(reg *registry.Registry) error {
	return reg.Register("post_standup_message", func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("post_standup_message: message argument required")
		}
		switch m := args[0].(type) {
		case report.Message:
			return s.Publish(ctx, m)
		case string:
			msg := report.Message{
				Fallback: m,
				Blocks: []report.Block{
					{Type: "section", Text: &report.Text{Type: "mrkdwn", Text: m}},
				},
			}
			return s.Publish(ctx, msg)
		default:
			return nil, fmt.Errorf("post_standup_message: unsupported argument type %T", args[0])
		}
	})
}
