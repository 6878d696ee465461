package adapter

import (
	"context"
	"strings"
	"unicode/utf16"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// a newline too close to the start would leave a tiny chunk
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// mentionEntities turns mentions into text_mention entities. Offsets and
// lengths are in UTF-16 code units. Tags missing from text are skipped.
func mentionEntities(text string, mentions []kit.Mention) tele.Entities {
	if len(mentions) == 0 {
		return nil
	}
	ents := make(tele.Entities, 0, len(mentions))
	for _, m := range mentions {
		if m.Tag == "" || m.UserID == 0 {
			continue
		}
		i := strings.Index(text, m.Tag)
		if i < 0 {
			continue
		}
		ents = append(ents, tele.MessageEntity{
			Type:   tele.EntityTMention,
			Offset: utf16Len(text[:i]),
			Length: utf16Len(m.Tag),
			User:   &tele.User{ID: m.UserID},
		})
	}
	return ents
}

func utf16Len(s string) int { return len(utf16.Encode([]rune(s))) }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		// entity offsets refer to the whole text; only valid when it fits in one message
		if len(chunks) == 1 {
			sendOpt.Entities = mentionEntities(chunk, opt.Mentions)
		}

		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}
