package repository

import (
	"context"
	"errors"
	"testing"

	"talk/internal/database"
	"talk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachStore runs fn against a fresh memory store and a fresh sqlite-backed gorm store.
func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("gorm", func(t *testing.T) {
		db, err := database.OpenMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = database.Close(db) })
		fn(t, NewGormStore(db))
	})
}

func TestStore_MessagesCRUD(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		msgs := store.Messages()

		_, err := msgs.Get(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, msgs.Create(ctx, &models.Message{ID: 1, Author: "alice", Content: "hi"}))
		require.NoError(t, msgs.Create(ctx, &models.Message{ID: 2, ReplyTo: 1, Author: "bob", Content: "re"}))
		require.NoError(t, msgs.Create(ctx, &models.Message{ID: 3, ReplyTo: 1, Author: "carol", Content: "re too"}))

		err = msgs.Create(ctx, &models.Message{ID: 2, Author: "mallory"})
		assert.ErrorIs(t, err, ErrDuplicateKey)

		got, err := msgs.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "bob", got.Author)
		assert.Equal(t, uint64(1), got.ReplyTo)
		assert.Zero(t, got.LikeCount)

		got.LikeCount = 4
		require.NoError(t, msgs.Save(ctx, got))
		got, err = msgs.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, uint32(4), got.LikeCount)

		assert.ErrorIs(t, msgs.Save(ctx, &models.Message{ID: 99}), ErrNotFound)

		replies, err := msgs.ListByReplyTo(ctx, 1)
		require.NoError(t, err)
		require.Len(t, replies, 2)
		assert.Equal(t, uint64(2), replies[0].ID)
		assert.Equal(t, uint64(3), replies[1].ID)

		topLevel, err := msgs.ListByReplyTo(ctx, 0)
		require.NoError(t, err)
		require.Len(t, topLevel, 1)
		assert.Equal(t, uint64(1), topLevel[0].ID)
	})
}

func TestStore_MessageReturnsCopies(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		msg := &models.Message{ID: 5, Author: "alice"}
		require.NoError(t, store.Messages().Create(ctx, msg))

		msg.LikeCount = 10
		got, err := store.Messages().Get(ctx, 5)
		require.NoError(t, err)
		assert.Zero(t, got.LikeCount, "mutating the caller's value must not change the store")
	})
}

func TestStore_NextIDNeverDecreases(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		next, err := store.Messages().NextID(ctx)
		require.NoError(t, err)
		assert.Zero(t, next, "empty store")

		require.NoError(t, store.Messages().Create(ctx, &models.Message{ID: 10, Author: "alice"}))
		require.NoError(t, store.Messages().Create(ctx, &models.Message{ID: 4, Author: "alice"}))
		next, err = store.Messages().NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), next)

		likes := store.Likes()
		require.NoError(t, likes.Create(ctx, &models.Like{ID: 7, PostID: 10, Liker: "bob"}))
		require.NoError(t, likes.Create(ctx, &models.Like{ID: 8, PostID: 4, Liker: "bob"}))
		require.NoError(t, likes.Delete(ctx, 8))

		next, err = likes.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), next, "deleting the highest key keeps the counter")
	})
}

func TestStore_LikesByLiker(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		likes := store.Likes()

		require.NoError(t, likes.Create(ctx, &models.Like{ID: 1, PostID: 100, Liker: "bob"}))
		require.NoError(t, likes.Create(ctx, &models.Like{ID: 2, PostID: 200, Liker: "bob"}))
		require.NoError(t, likes.Create(ctx, &models.Like{ID: 3, PostID: 100, Liker: "carol"}))

		bobs, err := likes.ListByLiker(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, bobs, 2)
		assert.Equal(t, uint64(100), bobs[0].PostID)
		assert.Equal(t, uint64(200), bobs[1].PostID)

		require.NoError(t, likes.Delete(ctx, 1))
		assert.ErrorIs(t, likes.Delete(ctx, 1), ErrNotFound)

		bobs, err = likes.ListByLiker(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, bobs, 1)
		assert.Equal(t, uint64(2), bobs[0].ID)

		_, err = likes.Get(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)

		nobody, err := likes.ListByLiker(ctx, "dave")
		require.NoError(t, err)
		assert.Empty(t, nobody)
	})
}

func TestStore_Users(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		users := store.Users()

		_, err := users.Get(ctx, "alice")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, users.Create(ctx, &models.UserAggregate{Identity: "alice", PostedCount: 1}))
		assert.ErrorIs(t, users.Create(ctx, &models.UserAggregate{Identity: "alice"}), ErrDuplicateKey)

		u, err := users.Get(ctx, "alice")
		require.NoError(t, err)
		u.LikedCount = 3
		u.RepliedCount = 2
		require.NoError(t, users.Save(ctx, u))

		u, err = users.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.UserAggregate{Identity: "alice", LikedCount: 3, RepliedCount: 2, PostedCount: 1}, *u)

		assert.ErrorIs(t, users.Save(ctx, &models.UserAggregate{Identity: "ghost"}), ErrNotFound)
	})
}

func TestStore_TransactionRollsBackAllWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Messages().Create(ctx, &models.Message{ID: 1, Author: "alice"}))
		require.NoError(t, store.Users().Create(ctx, &models.UserAggregate{Identity: "bob"}))

		boom := errors.New("boom")
		err := store.Transaction(ctx, func(tx Store) error {
			require.NoError(t, tx.Likes().Create(ctx, &models.Like{ID: 50, PostID: 1, Liker: "bob"}))
			msg, err := tx.Messages().Get(ctx, 1)
			require.NoError(t, err)
			msg.LikeCount++
			require.NoError(t, tx.Messages().Save(ctx, msg))
			user, err := tx.Users().Get(ctx, "bob")
			require.NoError(t, err)
			user.LikedCount++
			require.NoError(t, tx.Users().Save(ctx, user))
			require.NoError(t, tx.Messages().Create(ctx, &models.Message{ID: 2, ReplyTo: 1, Author: "bob"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		msg, err := store.Messages().Get(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, msg.LikeCount)

		_, err = store.Messages().Get(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)

		user, err := store.Users().Get(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, user.LikedCount)

		likes, err := store.Likes().ListByLiker(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, likes)

		next, err := store.Likes().NextID(ctx)
		require.NoError(t, err)
		assert.Zero(t, next)

		replies, err := store.Messages().ListByReplyTo(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})
}

func TestStore_TransactionCommits(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		err := store.Transaction(ctx, func(tx Store) error {
			if err := tx.Messages().Create(ctx, &models.Message{ID: 1, Author: "alice"}); err != nil {
				return err
			}
			return tx.Users().Create(ctx, &models.UserAggregate{Identity: "alice", PostedCount: 1})
		})
		require.NoError(t, err)

		_, err = store.Messages().Get(ctx, 1)
		assert.NoError(t, err)
		u, err := store.Users().Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uint32(1), u.PostedCount)
	})
}

func TestStore_GetForUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Messages().Create(ctx, &models.Message{ID: 3, Author: "alice"}))
		require.NoError(t, store.Users().Create(ctx, &models.UserAggregate{Identity: "bob"}))

		err := store.Transaction(ctx, func(tx Store) error {
			msg, err := tx.Messages().GetForUpdate(ctx, 3)
			if err != nil {
				return err
			}
			msg.LikeCount++
			if err := tx.Messages().Save(ctx, msg); err != nil {
				return err
			}

			user, err := tx.Users().GetForUpdate(ctx, "bob")
			if err != nil {
				return err
			}
			user.LikedCount++
			if err := tx.Users().Save(ctx, user); err != nil {
				return err
			}

			_, err = tx.Users().GetForUpdate(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = tx.Messages().GetForUpdate(ctx, 99)
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)

		msg, err := store.Messages().GetForUpdate(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), msg.LikeCount)
		user, err := store.Users().Get(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, uint32(1), user.LikedCount)
	})
}

func TestStore_NextIDInsideTransaction(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Messages().Create(ctx, &models.Message{ID: 41, Author: "alice"}))

		err := store.Transaction(ctx, func(tx Store) error {
			next, err := tx.Messages().NextID(ctx)
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(42), next)

			likes, err := tx.Likes().NextID(ctx)
			if err != nil {
				return err
			}
			assert.Zero(t, likes)
			return tx.Messages().Create(ctx, &models.Message{ID: next, Author: "alice"})
		})
		require.NoError(t, err)

		next, err := store.Messages().NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(43), next)
	})
}
