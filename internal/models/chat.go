package models

import "time"

// ChatType discriminates the kind of conversation a chat row represents.
type ChatType string

const (
	ChatTypeSingle         ChatType = "single"
	ChatTypeGroup          ChatType = "group"
	ChatTypePrivateChannel ChatType = "private_channel"
	ChatTypePublicChannel  ChatType = "public_channel"
)

// Chat is a chat row as serialized by the chats notify trigger.
type Chat struct {
	ID        int64     `db:"id" json:"id"`
	WsID      int64     `db:"ws_id" json:"ws_id"`
	Type      ChatType  `db:"type" json:"type"`
	Name      *string   `db:"name" json:"name"`
	Members   []int64   `db:"members" json:"members"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
