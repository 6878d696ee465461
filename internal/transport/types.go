package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string // first + last name as shown by the client
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// UserTarget addresses a private chat with a user.
func UserTarget(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Mention links the first occurrence of Tag in the text to UserID.
type Mention struct {
	UserID int64
	Tag    string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Mentions       []Mention
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Directory resolves user display names.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

type Adapter interface {
	Sender
	Directory

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
