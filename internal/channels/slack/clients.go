package slack

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// APIClient is the subset of the Slack Web API the adapter uses.
type APIClient interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SocketClient is the subset of the Socket Mode client the adapter uses.
type SocketClient interface {
	RunContext(ctx context.Context) error
	Ack(req socketmode.Request, payload ...interface{})
	Events() <-chan socketmode.Event
}

var _ APIClient = (*slack.Client)(nil)

// socketModeClient exposes the Events field of *socketmode.Client as a method.
type socketModeClient struct {
	*socketmode.Client
}

func (c socketModeClient) Events() <-chan socketmode.Event {
	return c.Client.Events
}
