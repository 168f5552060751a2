package telegram

import (
	"context"
	"evsim/internal"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TgBot implements EventHandler and posts connector events to one chat
type TgBot struct {
	api    sender
	chatId int64
	send   chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string, chatId int64) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	return newBot(api, chatId), nil
}

func newBot(api sender, chatId int64) *TgBot {
	return &TgBot{
		api:    api,
		chatId: chatId,
		send:   make(chan MessageContent, 100),
	}
}

// Start runs the send pump until ctx is done.
func (b *TgBot) Start(ctx context.Context) {
	go b.sendPump(ctx)
}

// sendPump sending messages to the chat
func (b *TgBot) sendPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-b.send:
			b.sendMessage(message.ChatID, message.Text)
		}
	}
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// maybe error was while parsing, so we can send a message about this error
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.api.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) enqueue(text string) {
	select {
	case b.send <- MessageContent{ChatID: b.chatId, Text: text}:
	default:
		log.Printf("bot: send queue is full, message dropped")
	}
}

func (b *TgBot) OnStatusNotification(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.ChargePointId), event.ConnectorId, event.Status)
	if event.ErrorCode != "" && event.ErrorCode != "NoError" {
		msg += fmt.Sprintf("Error: `%v`\n", event.ErrorCode)
	}
	if event.Info != "" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	b.enqueue(msg)
}

func (b *TgBot) OnTransactionStart(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.ChargePointId), event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v START\n", event.TransactionId)
	msg += fmt.Sprintf("ID Tag: %v\n", sanitize(event.IdTag))
	msg += fmt.Sprintf("Meter: %v Wh\n", event.MeterValue)
	b.enqueue(msg)
}

func (b *TgBot) OnTransactionStop(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.ChargePointId), event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v STOP\n", event.TransactionId)
	msg += fmt.Sprintf("ID Tag: %v\n", sanitize(event.IdTag))
	msg += fmt.Sprintf("Reason: %v\n", event.Reason)
	msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	b.enqueue(msg)
}

// sanitize escapes the characters MarkdownV2 reserves.
func sanitize(input string) string {
	reservedChars := "\\`*_{}[]()#+-.!|>~="
	var sanitized strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized.WriteRune('\\')
		}
		sanitized.WriteRune(char)
	}
	return sanitized.String()
}
