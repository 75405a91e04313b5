package transport

import "context"

// Update is a transport-neutral inbound event. Only text messages are
// routed; everything else the platform delivers is dropped at the adapter.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// ChatTarget identifies where to deliver a message. For direct messages
// the chat id is the recipient's user id.
type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	DisablePreview bool
}

// Adapter is the messaging collaborator: it turns platform updates into
// Update values on the out channel and sends text on behalf of the bot.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
