package telegram

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"evcs/internal"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// ConnectionLister reports the charge points currently connected
type ConnectionLister interface {
	ListConnected() []string
}

// TgBot implements EventHandler
type TgBot struct {
	api         *tgbotapi.BotAPI
	connections ConnectionLister
	mutex       sync.RWMutex
	chats       map[int64]bool
	event       chan MessageContent
	send        chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string, chatIds []int64) (*TgBot, error) {
	tgBot := newBot(chatIds)
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

func newBot(chatIds []int64) *TgBot {
	tgBot := &TgBot{
		chats: make(map[int64]bool),
		event: make(chan MessageContent, 100),
		send:  make(chan MessageContent, 100),
	}
	for _, id := range chatIds {
		tgBot.chats[id] = true
	}
	return tgBot
}

func (b *TgBot) SetConnectionLister(connections ConnectionLister) {
	b.connections = connections
}

func (b *TgBot) Start() {
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

// Start listening for updates
func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		chatId := update.Message.Chat.ID
		switch update.Message.Command() {
		case "start":
			b.mutex.Lock()
			b.chats[chatId] = true
			b.mutex.Unlock()
			b.send <- MessageContent{ChatID: chatId, Text: "You are now subscribed to updates"}
		case "stop":
			b.mutex.Lock()
			delete(b.chats, chatId)
			b.mutex.Unlock()
			b.send <- MessageContent{ChatID: chatId, Text: "Your subscription has been removed"}
		case "status":
			b.send <- MessageContent{ChatID: chatId, Text: b.composeStatusMessage()}
		}
	}
}

// eventPump sending events to all subscribers
func (b *TgBot) eventPump() {
	for event := range b.event {
		b.mutex.RLock()
		chats := make([]int64, 0, len(b.chats))
		for id := range b.chats {
			chats = append(chats, id)
		}
		b.mutex.RUnlock()
		for _, id := range chats {
			b.sendMessage(id, event.Text)
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump() {
	for event := range b.send {
		b.sendMessage(event.ChatID, event.Text)
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

// publish never blocks the caller; events are dropped while the queue is full
func (b *TgBot) publish(text string) {
	if text == "" {
		return
	}
	select {
	case b.event <- MessageContent{Text: text}:
	default:
		log.Println("bot: event queue is full, message dropped")
	}
}

func (b *TgBot) OnStatusNotification(event *internal.EventMessage) {
	b.publish(formatStatus(event))
}

func (b *TgBot) OnTransactionStart(event *internal.EventMessage) {
	b.publish(formatTransactionStart(event))
}

func (b *TgBot) OnTransactionStop(event *internal.EventMessage) {
	b.publish(formatTransactionStop(event))
}

func (b *TgBot) OnAuthorize(event *internal.EventMessage) {
	b.publish(formatAuthorize(event))
}

// don`t send status updates for charger itself, only for connectors
func formatStatus(event *internal.EventMessage) string {
	if event.ConnectorId == 0 {
		return ""
	}
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.ChargePointId), event.ConnectorId, event.Status)
	if event.Info != "" && event.Info != "NoError" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	return msg
}

func formatTransactionStart(event *internal.EventMessage) string {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.ChargePointId), event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v START\n", sanitize(event.TransactionId))
	msg += fmt.Sprintf("ID Tag: %v\n", sanitize(event.IdTag))
	return msg
}

func formatTransactionStop(event *internal.EventMessage) string {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", sanitize(event.ChargePointId), event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v STOP\n", sanitize(event.TransactionId))
	msg += fmt.Sprintf("ID Tag: %v\n", sanitize(event.IdTag))
	msg += fmt.Sprintf("Consumed: %v\n", sanitize(fmt.Sprintf("%.1f", event.EnergyConsumed)))
	if event.Info != "" {
		msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	}
	return msg
}

func formatAuthorize(event *internal.EventMessage) string {
	msg := fmt.Sprintf("*%v*: user: `%v`\n", sanitize(event.ChargePointId), event.IdTag)
	msg += fmt.Sprintf("Auth status: %v\n", event.Status)
	return msg
}

// compose status message
func (b *TgBot) composeStatusMessage() string {
	msg := "Status info:\n\n"
	if b.connections != nil {
		connected := b.connections.ListConnected()
		msg += fmt.Sprintf("Connected: %v\n", len(connected))
		for _, id := range connected {
			msg += fmt.Sprintf("`%v`\n", id)
		}
		msg += "\n"
	}
	b.mutex.RLock()
	msg += fmt.Sprintf("Active subscriptions: %v", len(b.chats))
	b.mutex.RUnlock()
	return msg
}

func sanitize(input string) string {
	// reserved characters of MarkdownV2
	reservedChars := "\\`*_{}[]()#+-.!|"
	var sanitized strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized.WriteString("\\")
		}
		sanitized.WriteRune(char)
	}
	return sanitized.String()
}
