// Package repository provides the keyed-record stores backing the ledger.
//
// Each record set has a primary key and, for messages and likes, one
// non-unique secondary index. NextID returns the next available primary key:
// a counter that never decreases, seeded from the highest key ever stored.
package repository

import (
	"context"
	"errors"

	"talk/internal/models"
)

// ErrNotFound is returned when a record with the requested key does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateKey is returned when a create would reuse an existing primary key.
var ErrDuplicateKey = errors.New("duplicate primary key")

// MessageRepository stores messages, indexed by reply_to.
// GetForUpdate is Get that, inside a transaction, also locks the record
// until the transaction ends.
type MessageRepository interface {
	Get(ctx context.Context, id uint64) (*models.Message, error)
	GetForUpdate(ctx context.Context, id uint64) (*models.Message, error)
	Create(ctx context.Context, msg *models.Message) error
	Save(ctx context.Context, msg *models.Message) error
	ListByReplyTo(ctx context.Context, replyTo uint64) ([]*models.Message, error)
	NextID(ctx context.Context) (uint64, error)
}

// LikeRepository stores likes, indexed by liker.
type LikeRepository interface {
	Get(ctx context.Context, id uint64) (*models.Like, error)
	Create(ctx context.Context, like *models.Like) error
	Delete(ctx context.Context, id uint64) error
	ListByLiker(ctx context.Context, liker string) ([]*models.Like, error)
	NextID(ctx context.Context) (uint64, error)
}

// UserRepository stores per-identity aggregates.
type UserRepository interface {
	Get(ctx context.Context, identity string) (*models.UserAggregate, error)
	GetForUpdate(ctx context.Context, identity string) (*models.UserAggregate, error)
	Create(ctx context.Context, user *models.UserAggregate) error
	Save(ctx context.Context, user *models.UserAggregate) error
}

// Store groups the three record sets. Transaction runs fn against a Store
// whose writes commit together when fn returns nil and are discarded otherwise.
type Store interface {
	Messages() MessageRepository
	Likes() LikeRepository
	Users() UserRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
