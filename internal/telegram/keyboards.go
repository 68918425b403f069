package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Reply keyboard labels.
const (
	ButtonManagement = "🛠️ Management"
	ButtonMonitoring = "📊 Monitoring"
	ButtonHelp       = "❓ Help"
	ButtonBack       = "⬅️ Back to main menu"

	ButtonRestart = "🔄 Restart app"
	ButtonStop    = "⏹️ Stop app"
	ButtonStart   = "▶️ Start app"

	ButtonStatus = "📈 App status"
	ButtonLogs   = "📄 Last 20 logs"
	ButtonHealth = "🩺 System check"
	ButtonList   = "📋 All apps"
)

// Callback actions carried in inline button data as "<action>_<chatID>".
const (
	ActionConfirmRestart = "confirm_restart"
	ActionConfirmStop    = "confirm_stop"
	ActionCancel         = "cancel_action"
)

func replyKeyboard(rows ...[]tgbotapi.KeyboardButton) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func MainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonManagement), tgbotapi.NewKeyboardButton(ButtonMonitoring)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonHelp)),
	)
}

func ManagementKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonRestart)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonStop), tgbotapi.NewKeyboardButton(ButtonStart)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonBack)),
	)
}

func MonitoringKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return replyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonStatus), tgbotapi.NewKeyboardButton(ButtonLogs)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonHealth), tgbotapi.NewKeyboardButton(ButtonList)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonBack)),
	)
}

// ConfirmRestartKeyboard asks chatID to confirm a restart.
func ConfirmRestartKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	return confirmKeyboard("✅ Yes, restart", ActionConfirmRestart, chatID)
}

// ConfirmStopKeyboard asks chatID to confirm a stop.
func ConfirmStopKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	return confirmKeyboard("✅ Yes, stop", ActionConfirmStop, chatID)
}

func confirmKeyboard(label, action string, chatID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, CallbackData(action, chatID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ No, cancel", CallbackData(ActionCancel, chatID))),
	)
}

// CallbackData builds inline button data bound to chatID.
func CallbackData(action string, chatID int64) string {
	return fmt.Sprintf("%s_%d", action, chatID)
}

// ParseCallback splits data built by CallbackData. ok is false when data was
// issued for another chat.
func ParseCallback(data string, chatID int64) (action string, ok bool) {
	suffix := fmt.Sprintf("_%d", chatID)
	if !strings.HasSuffix(data, suffix) {
		return "", false
	}
	return strings.TrimSuffix(data, suffix), true
}
