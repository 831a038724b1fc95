package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/haasonsaas/concierge/internal/observability"
)

// FollowUpErrorMessage is posted in the thread when a follow-up fails.
const FollowUpErrorMessage = "I seem to have hit a snag. Please try again."

// MaxMessageLength is the longest text sent in a single Slack message.
// Longer answers are split across several thread replies.
const MaxMessageLength = 3900

func placeholderText(userID, text string) string {
	return fmt.Sprintf(":thinking_face: <@%s>, on it! Analyzing your request:\n\n> %s", userID, text)
}

func commandErrorText(userID string) string {
	return fmt.Sprintf("<@%s>, I'm sorry, but I encountered an error.", userID)
}

// handleCommand posts a placeholder, answers in its thread and reports
// failures back to the channel.
func (a *Adapter) handleCommand(ctx context.Context, cmd slack.SlashCommand) {
	text := strings.TrimSpace(cmd.Text)
	ctx = observability.AddUserID(ctx, cmd.UserID)
	ctx = observability.AddChannel(ctx, cmd.ChannelID)
	logger := a.logger.With("user_id", cmd.UserID, "channel", cmd.ChannelID)

	threadTS, err := a.post(ctx, cmd.ChannelID, "", placeholderText(cmd.UserID, text))
	if err != nil {
		logger.Error("failed to post placeholder", "error", err)
		return
	}
	logger.Info("started thread", "thread_ts", threadTS)

	answer, err := a.answerer.HandleQuestion(ctx, text, threadTS)
	if err != nil {
		logger.Error("question failed", "thread_ts", threadTS, "error", err)
		if _, err := a.post(ctx, cmd.ChannelID, "", commandErrorText(cmd.UserID)); err != nil {
			logger.Error("failed to post error reply", "error", err)
		}
		return
	}

	if err := a.reply(ctx, cmd.ChannelID, threadTS, answer.Text); err != nil {
		logger.Error("failed to post answer", "thread_ts", threadTS, "error", err)
	}
}

// handleFollowUp answers a reply inside an existing conversation thread.
func (a *Adapter) handleFollowUp(ctx context.Context, msg *slackevents.MessageEvent) {
	ctx = observability.AddUserID(ctx, msg.User)
	ctx = observability.AddChannel(ctx, msg.Channel)
	logger := a.logger.With("user_id", msg.User, "channel", msg.Channel, "thread_ts", msg.ThreadTimeStamp)
	logger.Info("handling follow-up")

	text := msg.Text
	answer, err := a.answerer.HandleQuestion(ctx, strings.TrimSpace(text), msg.ThreadTimeStamp)
	if err != nil {
		logger.Error("follow-up failed", "error", err)
		text = FollowUpErrorMessage
	} else {
		text = answer.Text
	}

	if err := a.reply(ctx, msg.Channel, msg.ThreadTimeStamp, text); err != nil {
		logger.Error("failed to post follow-up reply", "error", err)
	}
}

// reply posts text into a thread, split into several messages when long.
func (a *Adapter) reply(ctx context.Context, channelID, threadTS, text string) error {
	for _, part := range splitMessage(text, MaxMessageLength) {
		if _, err := a.post(ctx, channelID, threadTS, part); err != nil {
			return err
		}
	}
	return nil
}

// post sends one message, waiting for the outbound rate limiter first.
// It returns the new message's timestamp.
func (a *Adapter) post(ctx context.Context, channelID, threadTS, text string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := a.api.PostMessageContext(ctx, channelID, options...)
	if err != nil {
		return "", fmt.Errorf("failed to send Slack message: %w", err)
	}
	a.record("post", "outbound")
	return ts, nil
}
