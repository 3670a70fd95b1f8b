package telegram

import (
	"evsim/internal"
	"evsim/internal/config"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TgBot implements EventHandler; it forwards alerts and connection losses to the configured chats
type TgBot struct {
	api     sender
	chatIds []int64
	event   chan string
	done    chan struct{}
	mutex   sync.RWMutex
	closed  bool
}

// NewBot connects to the bot API; nil when telegram is disabled
func NewBot(conf *config.Config) (*TgBot, error) {
	if !conf.Telegram.Enabled {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(conf.Telegram.ApiKey)
	if err != nil {
		return nil, err
	}
	return newBot(api, conf.Telegram.ChatIds), nil
}

func newBot(api sender, chatIds []int64) *TgBot {
	b := &TgBot{
		api:     api,
		chatIds: chatIds,
		event:   make(chan string, 100),
		done:    make(chan struct{}),
	}
	go b.eventPump()
	return b
}

// eventPump sending events to all chats
func (b *TgBot) eventPump() {
	defer close(b.done)
	for text := range b.event {
		for _, id := range b.chatIds {
			b.sendMessage(id, text)
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

func (b *TgBot) push(text string) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.event <- text:
	default:
		log.Printf("bot: queue full, message dropped")
	}
}

// Close sends what is queued and stops the pump
func (b *TgBot) Close() {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	b.closed = true
	close(b.event)
	b.mutex.Unlock()
	<-b.done
}

func (b *TgBot) OnAlert(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: `%v`\n", sanitize(event.StationId), sanitize(event.Info))
	b.push(msg)
}

func (b *TgBot) OnConnection(event *internal.EventMessage) {
	var msg string
	if event.Connected {
		msg = fmt.Sprintf("*%v*: connected\n", sanitize(event.StationId))
	} else {
		msg = fmt.Sprintf("*%v*: connection lost\n%v\n", sanitize(event.StationId), sanitize(event.Info))
	}
	b.push(msg)
}

func (b *TgBot) OnFrame(*internal.EventMessage)  {}
func (b *TgBot) OnStatus(*internal.EventMessage) {}
func (b *TgBot) OnPlug(*internal.EventMessage)   {}
func (b *TgBot) OnSample(*internal.EventMessage) {}

func sanitize(input string) string {
	reservedChars := "\\`*_{}[]()#+-.!|>=~"
	var sanitized strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized.WriteRune('\\')
		}
		sanitized.WriteRune(char)
	}
	return sanitized.String()
}
