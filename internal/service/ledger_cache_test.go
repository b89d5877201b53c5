package service

import (
	"context"
	"encoding/json"
	"testing"

	"talk/internal/auth"
	"talk/internal/cache"
	"talk/internal/models"
	"talk/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCache(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache.InitRedis(mr.Addr())
	require.NotNil(t, cache.GetClient())
	t.Cleanup(func() {
		_ = cache.Close()
		mr.Close()
	})
	return mr
}

// interleavedMessages runs afterGet once, right after the first Get returns.
type interleavedMessages struct {
	repository.MessageRepository
	afterGet func()
}

func (m *interleavedMessages) Get(ctx context.Context, id uint64) (*models.Message, error) {
	msg, err := m.MessageRepository.Get(ctx, id)
	if m.afterGet != nil {
		hook := m.afterGet
		m.afterGet = nil
		hook()
	}
	return msg, err
}

type interleavedStore struct {
	repository.Store
	messages *interleavedMessages
}

func (s interleavedStore) Messages() repository.MessageRepository {
	return s.messages
}

func TestLedger_VerifyIgnoresCachedCounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		mr := startCache(t)
		ctx := context.Background()
		svc := NewLedgerService(store, auth.AllowAll)

		msg, err := svc.Post(ctx, PostInput{Author: "alice"})
		require.NoError(t, err)
		_, err = svc.Post(ctx, PostInput{Author: "bob"})
		require.NoError(t, err)
		_, err = svc.Like(ctx, LikeInput{PostID: msg.ID, Liker: "bob"})
		require.NoError(t, err)

		staleMsg, err := json.Marshal(models.Message{ID: msg.ID, Author: "alice", LikeCount: 7})
		require.NoError(t, err)
		require.NoError(t, mr.Set(cache.MessageKey(msg.ID), string(staleMsg)))
		staleUser, err := json.Marshal(models.UserAggregate{Identity: "bob", LikedCount: 7})
		require.NoError(t, err)
		require.NoError(t, mr.Set(cache.UserKey("bob"), string(staleUser)))

		require.NoError(t, svc.VerifyMessageLikes(ctx, msg.ID, 1))
		require.NoError(t, svc.VerifyUserLikes(ctx, "bob", 1))
		assertCode(t, svc.VerifyMessageLikes(ctx, msg.ID, 7), models.CodeAssertion)
	})
}

func TestLedger_CachedReadRacingLikeIsNotKept(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		mr := startCache(t)
		ctx := context.Background()
		svc := NewLedgerService(store, auth.AllowAll)

		msg, err := svc.Post(ctx, PostInput{Author: "alice"})
		require.NoError(t, err)
		_, err = svc.Post(ctx, PostInput{Author: "bob"})
		require.NoError(t, err)

		// bob's like commits after the read saw like_count 0 and before the
		// read result is written to the cache.
		wrapped := interleavedStore{
			Store: store,
			messages: &interleavedMessages{
				MessageRepository: store.Messages(),
				afterGet: func() {
					_, err := svc.Like(ctx, LikeInput{PostID: msg.ID, Liker: "bob"})
					require.NoError(t, err)
				},
			},
		}
		reader := NewLedgerService(wrapped, auth.AllowAll)

		first, err := reader.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Zero(t, first.LikeCount)
		assert.False(t, mr.Exists(cache.MessageKey(msg.ID)))

		again, err := reader.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), again.LikeCount)
		assert.True(t, mr.Exists(cache.MessageKey(msg.ID)))

		require.NoError(t, reader.VerifyMessageLikes(ctx, msg.ID, 1))
		require.NoError(t, svc.VerifyMessageLikes(ctx, msg.ID, 1))
	})
}

func TestLedger_CachedReads(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		startCache(t)
		ctx := context.Background()
		svc := NewLedgerService(store, auth.AllowAll)

		msg, err := svc.Post(ctx, PostInput{Author: "alice", Content: "hi"})
		require.NoError(t, err)
		_, err = svc.Post(ctx, PostInput{Author: "bob"})
		require.NoError(t, err)

		got, err := svc.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "hi", got.Content)

		_, err = svc.Like(ctx, LikeInput{PostID: msg.ID, Liker: "bob"})
		require.NoError(t, err)

		got, err = svc.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), got.LikeCount)

		bob, err := svc.GetUser(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, uint32(1), bob.LikedCount)

		_, err = svc.GetMessage(ctx, 404)
		assertCode(t, err, models.CodeNotFound)
		_, err = svc.GetUser(ctx, "nobody")
		assertCode(t, err, models.CodeNotFound)
	})
}
