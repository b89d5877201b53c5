package models

// Names of the key sequences kept in KeySequence rows.
const (
	SequenceMessages = "messages"
	SequenceLikes    = "likes"
)

// KeySequence tracks the next available primary key of a record set.
// NextKey only grows, so keys freed by deletes are never handed out again.
type KeySequence struct {
	Name    string `gorm:"primaryKey;size:32"`
	NextKey uint64 `gorm:"not null"`
}
