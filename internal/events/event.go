package events

import (
	"encoding/json"
	"fmt"

	"notify-service/internal/models"
)

// Kind tags an Event. It doubles as the SSE event name on the wire.
type Kind string

const (
	KindNewChat        Kind = "NewChat"
	KindAddToChat      Kind = "AddToChat"
	KindRemoveFromChat Kind = "RemoveFromChat"
	KindNewMessage     Kind = "NewMessage"
)

// Event is a decoded domain event. The set of kinds is closed; values are
// built with the constructors below and are read-only afterwards, so one
// *Event is shared by every receiver it is delivered to.
type Event struct {
	kind    Kind
	chat    *models.Chat
	message *models.Message
}

func NewChat(chat models.Chat) *Event        { return &Event{kind: KindNewChat, chat: &chat} }
func AddToChat(chat models.Chat) *Event      { return &Event{kind: KindAddToChat, chat: &chat} }
func RemoveFromChat(chat models.Chat) *Event { return &Event{kind: KindRemoveFromChat, chat: &chat} }
func NewMessage(msg models.Message) *Event   { return &Event{kind: KindNewMessage, message: &msg} }

func (e *Event) Kind() Kind { return e.kind }

// Chat returns the chat payload of a chat event.
func (e *Event) Chat() (models.Chat, bool) {
	if e.chat == nil {
		return models.Chat{}, false
	}
	return *e.chat, true
}

// Message returns the payload of a NewMessage event.
func (e *Event) Message() (models.Message, bool) {
	if e.message == nil {
		return models.Message{}, false
	}
	return *e.message, true
}

// MarshalJSON renders the event as {"type": kind, "data": payload}.
func (e *Event) MarshalJSON() ([]byte, error) {
	var data any
	switch e.kind {
	case KindNewChat, KindAddToChat, KindRemoveFromChat:
		data = e.chat
	case KindNewMessage:
		data = e.message
	default:
		return nil, fmt.Errorf("marshal event: unknown kind %q", e.kind)
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		Data any  `json:"data"`
	}{e.kind, data})
}
