package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"talk/internal/auth"
	"talk/internal/models"
	"talk/internal/observability"
	"talk/internal/service"
)

// Runner executes scripts against a ledger service.
type Runner struct {
	ledger Ledger
}

// NewRunner wraps svc. The service should authorize with auth.RequireCaller
// so that steps using "as" are checked.
func NewRunner(svc *service.LedgerService) *Runner {
	return &Runner{ledger: serviceLedger{svc}}
}

// NewLedgerRunner runs scripts against any Ledger implementation.
func NewLedgerRunner(l Ledger) *Runner {
	return &Runner{ledger: l}
}

// Run executes every step and stops at the first divergence. It returns the
// number of steps that matched.
func (r *Runner) Run(ctx context.Context, script *Script) (int, error) {
	for i, step := range script.Steps {
		caller := step.As
		if caller == "" {
			caller = step.actor()
		}
		stepCtx := auth.WithCaller(ctx, caller)

		if err := r.runStep(stepCtx, step); err != nil {
			div := &Divergence{Index: i + 1, Step: step.label(), Reason: err.Error()}
			observability.Logger.WarnContext(ctx, "scenario diverged",
				slog.String("scenario", script.Name),
				slog.Int("step", div.Index),
				slog.String("reason", div.Reason),
			)
			return i, div
		}
	}
	observability.Logger.InfoContext(ctx, "scenario passed",
		slog.String("scenario", script.Name),
		slog.Int("steps", len(script.Steps)),
	)
	return len(script.Steps), nil
}

func (s Step) actor() string {
	switch {
	case s.Post != nil:
		return s.Post.Author
	case s.Like != nil:
		return s.Like.Liker
	default:
		return ""
	}
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	var (
		id    uint64
		liked bool
		err   error
	)
	switch {
	case step.Post != nil:
		p := step.Post
		id, err = r.ledger.Post(ctx, p.ID, p.ReplyTo, p.Author, p.Content)
	case step.Like != nil:
		l := step.Like
		liked, err = r.ledger.Like(ctx, l.ID, l.PostID, l.Liker)
	case step.VerifyLikes != nil:
		err = r.ledger.VerifyMessageLikes(ctx, step.VerifyLikes.ID, step.VerifyLikes.Expected)
	case step.VerifyUserLikes != nil:
		err = r.ledger.VerifyUserLikes(ctx, step.VerifyUserLikes.Identity, step.VerifyUserLikes.Expected)
	}

	if step.ExpectError != "" {
		if err == nil {
			return fmt.Errorf("expected %s, got success", step.ExpectError)
		}
		if code := models.ErrorCode(err); code != step.ExpectError {
			return fmt.Errorf("expected %s, got %s (%v)", step.ExpectError, code, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("unexpected error: %w", err)
	}

	if step.ExpectID != 0 && id != step.ExpectID {
		return fmt.Errorf("expected id %d, got %d", step.ExpectID, id)
	}
	if step.ExpectLiked != nil && liked != *step.ExpectLiked {
		return fmt.Errorf("expected liked=%t, got %t", *step.ExpectLiked, liked)
	}
	return nil
}

// serviceLedger adapts LedgerService to Ledger.
type serviceLedger struct {
	svc *service.LedgerService
}

func (l serviceLedger) Post(ctx context.Context, id, replyTo uint64, author, content string) (uint64, error) {
	msg, err := l.svc.Post(ctx, service.PostInput{ID: id, ReplyTo: replyTo, Author: author, Content: content})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (l serviceLedger) Like(ctx context.Context, id, postID uint64, liker string) (bool, error) {
	res, err := l.svc.Like(ctx, service.LikeInput{ID: id, PostID: postID, Liker: liker})
	if err != nil {
		return false, err
	}
	return res.Liked, nil
}

func (l serviceLedger) VerifyMessageLikes(ctx context.Context, id uint64, expected uint32) error {
	return l.svc.VerifyMessageLikes(ctx, id, expected)
}

func (l serviceLedger) VerifyUserLikes(ctx context.Context, identity string, expected uint32) error {
	return l.svc.VerifyUserLikes(ctx, identity, expected)
}
