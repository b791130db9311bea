package models

import "time"

// Message represents a chat message.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	ChatID    int64     `db:"chat_id" json:"chat_id"`
	SenderID  int64     `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	Files     []string  `db:"files" json:"files"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
