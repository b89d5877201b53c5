// Package service implements the ledger operations on top of a repository.Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"talk/internal/auth"
	"talk/internal/cache"
	"talk/internal/models"
	"talk/internal/observability"
	"talk/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// LedgerService posts messages, toggles likes and checks counters.
// Each mutating call runs in one store transaction; every check happens
// before the first write, so a failed call leaves no trace.
type LedgerService struct {
	store     repository.Store
	authorize auth.AuthorizeFunc
}

// PostInput is the argument set of Post.
type PostInput struct {
	ID      uint64
	ReplyTo uint64
	Author  string
	Content string
}

// LikeInput is the argument set of Like.
type LikeInput struct {
	ID     uint64
	PostID uint64
	Liker  string
}

func NewLedgerService(store repository.Store, authorize auth.AuthorizeFunc) *LedgerService {
	if authorize == nil {
		authorize = auth.RequireCaller
	}
	return &LedgerService{
		store:     store,
		authorize: authorize,
	}
}

// assignID returns requested when non-zero, else the next key of the record
// set, never below models.AutoIDThreshold.
func assignID(requested, next uint64) uint64 {
	if requested != 0 {
		return requested
	}
	return max(next, models.AutoIDThreshold)
}

func checkRequestedID(id uint64) error {
	if id >= models.AutoIDThreshold {
		return models.NewInvalidArgumentError("user-specified id is too big")
	}
	return nil
}

func checkIdentity(identity string) error {
	if len(identity) > models.MaxIdentityLength {
		return models.NewInvalidArgumentError(fmt.Sprintf("identity is longer than %d bytes", models.MaxIdentityLength))
	}
	return nil
}

// Post records a message and updates the author's aggregate.
func (s *LedgerService) Post(ctx context.Context, in PostInput) (*models.Message, error) {
	span, ctx := observability.NewSpan(ctx, "ledger.post",
		attribute.String("author", in.Author),
		attribute.Int64("reply_to", int64(in.ReplyTo)),
	)
	defer span.End()
	defer observability.TrackTransaction("post")()

	var msg *models.Message
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if !s.authorize(ctx, in.Author) {
			return models.NewAuthorizationError(in.Author)
		}
		if err := checkIdentity(in.Author); err != nil {
			return err
		}

		if in.ReplyTo != 0 {
			if _, err := tx.Messages().Get(ctx, in.ReplyTo); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return models.NewNotFoundError(fmt.Sprintf("reply_to message %d not found", in.ReplyTo))
				}
				return err
			}
		}

		if err := checkRequestedID(in.ID); err != nil {
			return err
		}
		next, err := tx.Messages().NextID(ctx)
		if err != nil {
			return err
		}
		id := assignID(in.ID, next)
		if err := ensureFree(ctx, id, tx.Messages().Get); err != nil {
			return err
		}

		user, err := tx.Users().GetForUpdate(ctx, in.Author)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		msg = &models.Message{
			ID:      id,
			ReplyTo: in.ReplyTo,
			Author:  in.Author,
			Content: in.Content,
		}
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}

		if user == nil {
			user = &models.UserAggregate{Identity: in.Author}
			user.RecordPost(msg.IsReply())
			return tx.Users().Create(ctx, user)
		}
		user.RecordPost(msg.IsReply())
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		return nil, s.finish(ctx, span, "post", err)
	}

	cache.InvalidateMessage(ctx, msg.ID)
	cache.InvalidateUser(ctx, in.Author)
	s.finish(ctx, span, "post", nil)
	observability.Logger.InfoContext(ctx, "message posted",
		slog.Uint64("id", msg.ID),
		slog.Uint64("reply_to", msg.ReplyTo),
		slog.String("author", msg.Author),
	)
	return msg, nil
}

// Like toggles liker's like on message postID. The first call likes the
// message, the next one removes the like, and so on.
func (s *LedgerService) Like(ctx context.Context, in LikeInput) (*models.LikeToggle, error) {
	span, ctx := observability.NewSpan(ctx, "ledger.like",
		attribute.String("liker", in.Liker),
		attribute.Int64("post_id", int64(in.PostID)),
	)
	defer span.End()
	defer observability.TrackTransaction("like")()

	result := &models.LikeToggle{PostID: in.PostID, Liker: in.Liker}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if !s.authorize(ctx, in.Liker) {
			return models.NewAuthorizationError(in.Liker)
		}
		if err := checkIdentity(in.Liker); err != nil {
			return err
		}
		if err := checkRequestedID(in.ID); err != nil {
			return err
		}

		msg, err := tx.Messages().GetForUpdate(ctx, in.PostID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return models.NewNotFoundError("Message not found")
			}
			return err
		}
		if msg.Author == in.Liker {
			return models.NewSelfActionError("can't like your own post")
		}

		existing, err := s.findLike(ctx, tx, in.Liker, in.PostID)
		if err != nil {
			return err
		}

		user, err := tx.Users().GetForUpdate(ctx, in.Liker)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return models.NewPreconditionError("can't find the user")
			}
			return err
		}

		if existing != nil {
			if err := tx.Likes().Delete(ctx, existing.ID); err != nil {
				return err
			}
			msg.LikeCount--
			user.LikedCount--
			result.LikeID = existing.ID
			result.Liked = false
		} else {
			next, err := tx.Likes().NextID(ctx)
			if err != nil {
				return err
			}
			id := assignID(in.ID, next)
			if err := ensureFree(ctx, id, tx.Likes().Get); err != nil {
				return err
			}
			if err := tx.Likes().Create(ctx, &models.Like{ID: id, PostID: in.PostID, Liker: in.Liker}); err != nil {
				return err
			}
			msg.LikeCount++
			user.LikedCount++
			result.LikeID = id
			result.Liked = true
		}

		if err := tx.Messages().Save(ctx, msg); err != nil {
			return err
		}
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		return nil, s.finish(ctx, span, "like", err)
	}

	cache.InvalidateMessage(ctx, in.PostID)
	cache.InvalidateUser(ctx, in.Liker)
	s.finish(ctx, span, "like", nil)

	verb, direction := "liked", "like"
	if !result.Liked {
		verb, direction = "unliked", "unlike"
	}
	observability.LikeToggles.WithLabelValues(direction).Inc()
	observability.Logger.InfoContext(ctx, fmt.Sprintf("post %d was %s by %s", in.PostID, verb, in.Liker),
		slog.Uint64("like_id", result.LikeID),
	)
	return result, nil
}

// findLike scans the liker's likes for one on postID. The scan is linear in
// the number of likes held by liker.
func (s *LedgerService) findLike(ctx context.Context, tx repository.Store, liker string, postID uint64) (*models.Like, error) {
	likes, err := tx.Likes().ListByLiker(ctx, liker)
	if err != nil {
		return nil, err
	}
	observability.LikeScanLength.Observe(float64(len(likes)))
	for _, like := range likes {
		if like.PostID == postID {
			return like, nil
		}
	}
	return nil, nil
}

// ensureFree fails with a conflict when a record with id already exists.
func ensureFree[T any](ctx context.Context, id uint64, get func(context.Context, uint64) (T, error)) error {
	_, err := get(ctx, id)
	switch {
	case err == nil:
		return models.NewConflictError(fmt.Sprintf("id %d is already taken", id))
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return err
	}
}

// VerifyMessageLikes fails with an assertion error unless message id has exactly expected likes.
// It always reads the store, never the cache.
func (s *LedgerService) VerifyMessageLikes(ctx context.Context, id uint64, expected uint32) error {
	msg, err := s.store.Messages().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = models.NewNotFoundError(fmt.Sprintf("message %d not found", id))
		}
		observability.RecordOperation("verify_message_likes", models.ErrorCode(err))
		return err
	}
	if msg.LikeCount != expected {
		observability.RecordOperation("verify_message_likes", models.CodeAssertion)
		return models.NewAssertionError("Invalid likes number")
	}
	observability.RecordOperation("verify_message_likes", "ok")
	return nil
}

// VerifyUserLikes fails with an assertion error unless identity currently holds exactly expected likes.
func (s *LedgerService) VerifyUserLikes(ctx context.Context, identity string, expected uint32) error {
	user, err := s.store.Users().Get(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = models.NewNotFoundError(fmt.Sprintf("user %s not found", identity))
		}
		observability.RecordOperation("verify_user_likes", models.ErrorCode(err))
		return err
	}
	if user.LikedCount != expected {
		observability.RecordOperation("verify_user_likes", models.CodeAssertion)
		return models.NewAssertionError("Invalid likes number")
	}
	observability.RecordOperation("verify_user_likes", "ok")
	return nil
}

// GetMessage returns message id for display, through the cache when one is
// configured. Post and Like invalidate the entries they change after commit.
func (s *LedgerService) GetMessage(ctx context.Context, id uint64) (*models.Message, error) {
	var msg models.Message
	err := cache.Aside(ctx, cache.MessageKey(id), &msg, cache.MessageTTL, func() error {
		found, err := s.store.Messages().Get(ctx, id)
		if err != nil {
			return err
		}
		msg = *found
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError(fmt.Sprintf("message %d not found", id))
		}
		return nil, models.NewInternalError(err)
	}
	return &msg, nil
}

// GetUser returns the aggregate of identity for display, through the cache.
func (s *LedgerService) GetUser(ctx context.Context, identity string) (*models.UserAggregate, error) {
	var user models.UserAggregate
	err := cache.Aside(ctx, cache.UserKey(identity), &user, cache.UserTTL, func() error {
		found, err := s.store.Users().Get(ctx, identity)
		if err != nil {
			return err
		}
		user = *found
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError(fmt.Sprintf("user %s not found", identity))
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// finish records the outcome of a mutating operation. Errors that are not
// AppErrors are wrapped as internal errors.
func (s *LedgerService) finish(ctx context.Context, span *observability.Span, operation string, err error) error {
	if err == nil {
		observability.RecordOperation(operation, "ok")
		return nil
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		err = models.NewInternalError(err)
		observability.Logger.ErrorContext(ctx, "ledger operation failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	span.SetError(err)
	observability.RecordOperation(operation, models.ErrorCode(err))
	return err
}
