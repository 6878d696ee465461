package adapter

import (
	"context"
	"strconv"
	"strings"
)

// DisplayName returns the user's first and last name. Names seen on incoming
// messages are cached; otherwise the chat is looked up.
func (a *Adapter) DisplayName(ctx context.Context, userID int64) (string, error) {
	a.namesMu.Lock()
	name, ok := a.names[userID]
	a.namesMu.Unlock()
	if ok {
		return name, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	chat, err := a.bot.ChatByID(userID)
	if err != nil {
		return "", err
	}
	name = fullName(chat.FirstName, chat.LastName, chat.Username)
	if name == "" {
		name = "user" + strconv.FormatInt(userID, 10)
	}
	a.rememberName(userID, name)
	return name, nil
}

func (a *Adapter) rememberName(userID int64, name string) {
	if name == "" {
		return
	}
	a.namesMu.Lock()
	a.names[userID] = name
	a.namesMu.Unlock()
}

func fullName(first, last, username string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		name = strings.TrimSpace(username)
	}
	return name
}

// Username is the bot's own @username (without "@"), as reported by getMe.
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}
