package workflow

import (
	"context"

	"staff-ops/internal/render"
)

// Transport is the interactive messaging surface the engine publishes to.
// Every call may fail independently; the engine catches each one.
type Transport interface {
	// SendDirect delivers a payload to a user's private chat and returns
	// the message id.
	SendDirect(ctx context.Context, userID string, p render.Payload) (string, error)
	// PostChannel posts to the shared staff channel and returns the
	// message id.
	PostChannel(ctx context.Context, channelID string, p render.Payload) (string, error)
	// CreateThread opens a discussion thread anchored to a channel
	// message and returns the thread id.
	CreateThread(ctx context.Context, channelID, anchorMessageID, name string) (string, error)
	// AddThreadMember pulls a user into a thread.
	AddThreadMember(ctx context.Context, channelID, threadID, userID string) error
	// PostThread appends a line to a thread.
	PostThread(ctx context.Context, channelID, threadID, text string) error
	// EditMessage replaces a previously published payload in place.
	EditMessage(ctx context.Context, chatID, messageID string, p render.Payload) error
}

// Authorizer decides whether a user can assign tasks in a group.
type Authorizer interface {
	IsManager(ctx context.Context, groupID, userID string) bool
}

// Details is the free-text part of a task collected after the command.
type Details struct {
	Title       string
	Description string
}

// DetailCollector runs the follow-up form with the requester. It returns
// ErrFormTimeout when the wait window elapses and ErrFormCancelled when the
// requester backs out.
type DetailCollector interface {
	Collect(ctx context.Context, requesterID string) (Details, error)
}
