// Package telegram delivers messages to a chat through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxMessageLength is the longest part sent in a single message. Telegram
// allows 4096 characters; the margin leaves room for entities.
const MaxMessageLength = 4000

func logger() *log.Logger { return log.WithPrefix("telegram") }

// Sender is the subset of *tgbotapi.BotAPI the client needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client sends MarkdownV2 messages, splitting long text and falling back to
// plain text when Telegram rejects the markup.
type Client struct {
	api Sender
}

// NewClient wraps api.
func NewClient(api Sender) *Client {
	return &Client{api: api}
}

// Send delivers text to chatID. Blank text is ignored. Every part is
// attempted; the returned error joins the parts that failed both ways.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var errs []error
	for i, part := range SplitMarkdown(text, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		if err := c.deliver(msg); err != nil {
			errs = append(errs, fmt.Errorf("part %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// SendWithKeyboard sends text with a reply or inline keyboard attached. If
// that fails the text is sent without the keyboard.
func (c *Client) SendWithKeyboard(ctx context.Context, chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyMarkup = markup

	if _, err := c.api.Send(msg); err != nil {
		logger().Error("send with keyboard", "chat", chatID, "err", err)
		return c.Send(ctx, chatID, text)
	}
	return nil
}

// AnswerCallback acknowledges an inline button press with a short toast.
func (c *Client) AnswerCallback(callbackID, text string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// ClearInlineKeyboard removes the inline keyboard from a sent message.
func (c *Client) ClearInlineKeyboard(chatID int64, messageID int) error {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := c.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)); err != nil {
		return fmt.Errorf("clear inline keyboard: %w", err)
	}
	return nil
}

func (c *Client) deliver(msg tgbotapi.MessageConfig) error {
	_, err := c.api.Send(msg)
	if err == nil {
		return nil
	}
	logger().Warn("markdown send failed, retrying as plain text", "chat", msg.ChatID, "err", err)

	msg.ParseMode = ""
	if _, ferr := c.api.Send(msg); ferr != nil {
		logger().Error("plain text send failed", "chat", msg.ChatID, "err", ferr)
		return ferr
	}
	return nil
}

// Split cuts text into parts of at most limit characters, preferring to cut
// at the last newline inside the window. The newline at a cut is dropped.
func Split(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		window := runes[:limit]
		cut := lastNewline(window)
		if cut > 0 {
			parts = append(parts, string(runes[:cut]))
			runes = runes[cut+1:]
			continue
		}
		// A hard cut never separates a backslash from the character it escapes.
		n := limit
		if window[n-1] == '\\' && n > 1 {
			n--
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

const fence = "```"

// SplitMarkdown splits like Split and keeps code blocks intact across parts:
// a part cut inside a block is closed with a fence and the next part reopens
// it, so every part parses on its own.
func SplitMarkdown(text string, limit int) []string {
	overhead := 2 * len(fence+"\n")
	if limit <= overhead || utf8.RuneCountInString(text) <= limit {
		return Split(text, limit)
	}

	var out []string
	inBlock := false
	for _, p := range Split(text, limit-overhead) {
		if inBlock && strings.HasPrefix(p, fence) {
			// The part starts with the closing fence: drop it instead of
			// opening an empty block.
			p = strings.TrimPrefix(strings.TrimPrefix(p, fence), "\n")
			inBlock = false
		}
		reopen := inBlock
		if strings.Count(p, fence)%2 == 1 {
			inBlock = !inBlock
		}
		if inBlock && strings.HasSuffix(p, fence) {
			// Cut right after an opening fence: the next part opens it.
			p = strings.TrimSuffix(strings.TrimSuffix(p, fence), "\n")
		} else if inBlock {
			p += "\n" + fence
		}
		if reopen {
			p = fence + "\n" + p
		}
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func lastNewline(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}

var codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// Escape escapes MarkdownV2 control characters in free text.
func Escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// EscapeCode escapes text placed inside a MarkdownV2 code span or block.
func EscapeCode(s string) string {
	return codeEscaper.Replace(s)
}
