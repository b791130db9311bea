package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"notify-service/internal/models"
)

// Channel names the Postgres triggers notify on.
const (
	ChannelChatUpdated  = "chat_updated"
	ChannelMessageAdded = "message_added"
)

// Channels lists every channel Decode understands.
var Channels = []string{ChannelChatUpdated, ChannelMessageAdded}

var (
	ErrUnknownChannel   = errors.New("unknown notification channel")
	ErrMalformedPayload = errors.New("malformed notification payload")
)

// Recipients is the set of principal ids an event is delivered to.
type Recipients map[int64]struct{}

func newRecipients(ids []int64) Recipients {
	set := make(Recipients, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (r Recipients) Contains(id int64) bool {
	_, ok := r[id]
	return ok
}

// IDs returns the recipients in no particular order.
func (r Recipients) IDs() []int64 {
	return lo.Keys(map[int64]struct{}(r))
}

// Notification pairs a decoded event with the principals it concerns.
type Notification struct {
	Recipients Recipients
	Event      *Event
}

type chatUpdated struct {
	Op  string       `json:"op"`
	Old *models.Chat `json:"old"`
	New *models.Chat `json:"new"`
}

type messageAdded struct {
	Members []int64         `json:"members"`
	Message *models.Message `json:"message"`
}

// Decode turns one channel notification into an event and its recipients.
// A chat update whose member set did not change decodes to an event with no
// recipients.
func Decode(channel string, payload []byte) (Notification, error) {
	switch channel {
	case ChannelChatUpdated:
		return decodeChatUpdated(payload)
	case ChannelMessageAdded:
		return decodeMessageAdded(payload)
	default:
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
}

func decodeChatUpdated(payload []byte) (Notification, error) {
	var p chatUpdated
	if err := json.Unmarshal(payload, &p); err != nil {
		return Notification{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, ChannelChatUpdated, err)
	}

	switch strings.ToLower(p.Op) {
	case "insert":
		if p.New == nil {
			return Notification{}, malformed("insert without new row")
		}
		return Notification{Recipients: newRecipients(p.New.Members), Event: NewChat(*p.New)}, nil
	case "update":
		if p.Old == nil || p.New == nil {
			return Notification{}, malformed("update without old and new rows")
		}
		return Notification{Recipients: membershipChange(p.Old.Members, p.New.Members), Event: AddToChat(*p.New)}, nil
	case "delete":
		if p.Old == nil {
			return Notification{}, malformed("delete without old row")
		}
		return Notification{Recipients: newRecipients(p.Old.Members), Event: RemoveFromChat(*p.Old)}, nil
	default:
		return Notification{}, malformed(fmt.Sprintf("unknown op %q", p.Op))
	}
}

func decodeMessageAdded(payload []byte) (Notification, error) {
	var p messageAdded
	if err := json.Unmarshal(payload, &p); err != nil {
		return Notification{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, ChannelMessageAdded, err)
	}
	if p.Message == nil {
		return Notification{}, fmt.Errorf("%w: %s: missing message", ErrMalformedPayload, ChannelMessageAdded)
	}
	return Notification{Recipients: newRecipients(p.Members), Event: NewMessage(*p.Message)}, nil
}

// membershipChange is the union of both member lists when the sets differ,
// and empty otherwise.
func membershipChange(before, after []int64) Recipients {
	removed, added := lo.Difference(lo.Uniq(before), lo.Uniq(after))
	if len(removed) == 0 && len(added) == 0 {
		return Recipients{}
	}
	return newRecipients(lo.Union(before, after))
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedPayload, ChannelChatUpdated, reason)
}
