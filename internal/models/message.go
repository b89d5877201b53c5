// Package models contains the ledger's record types and error taxonomy.
package models

// AutoIDThreshold is the first id handed out by automatic assignment.
// Caller-supplied ids must stay below it.
const AutoIDThreshold uint64 = 1_000_000_000

// Message is a post or a reply. ReplyTo is zero for top-level posts.
type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ReplyTo   uint64 `gorm:"not null;index:idx_messages_reply_to" json:"reply_to"`
	Author    string `gorm:"not null;size:64" json:"author"`
	Content   string `gorm:"type:text" json:"content"`
	LikeCount uint32 `gorm:"not null;default:0" json:"like_count"`
}

// IsReply reports whether the message answers another message.
func (m *Message) IsReply() bool {
	return m.ReplyTo != 0
}
