// Package seed generates random ledger workloads for development and load
// testing, and checks the resulting counters.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"talk/internal/models"
	"talk/internal/observability"
	"talk/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// Options configuration for the seeder
type Options struct {
	NumUsers   int
	NumPosts   int
	NumToggles int
	// ReplyRatio is the share of posts written as replies, in [0, 1].
	ReplyRatio float64
	// Seed makes runs reproducible. Zero picks a time-based seed.
	Seed int64
}

// DefaultOptions returns a small workload.
func DefaultOptions() Options {
	return Options{NumUsers: 20, NumPosts: 100, NumToggles: 300, ReplyRatio: 0.4}
}

// Report summarizes a seeding run.
type Report struct {
	Users    int
	Messages int
	Likes    int
	Unlikes  int
	Checked  int
}

// Seeder drives a ledger with generated traffic and remembers the counters
// the ledger should end up with.
type Seeder struct {
	ledger   *service.LedgerService
	faker    *gofakeit.Faker
	opts     Options
	username func() string

	users     []string
	messages  []seededMessage
	liked     map[uint64]map[string]bool
	userLikes map[string]uint32
}

type seededMessage struct {
	id     uint64
	author string
}

// NewSeeder creates a seeder. ledger should authorize every caller, e.g. auth.AllowAll.
func NewSeeder(ledger *service.LedgerService, opts Options) *Seeder {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(seed)
	return &Seeder{
		ledger:    ledger,
		faker:     faker,
		opts:      opts,
		username:  faker.Username,
		liked:     make(map[uint64]map[string]bool),
		userLikes: make(map[string]uint32),
	}
}

// identityAttempts bounds how many generated names each user may cost.
const identityAttempts = 50

// Run seeds users, posts and like toggles, then verifies every counter.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	if s.opts.NumUsers < 2 {
		return nil, fmt.Errorf("seed: need at least 2 users, got %d", s.opts.NumUsers)
	}

	report := &Report{}
	if err := s.seedUsers(ctx, report); err != nil {
		return report, err
	}
	if err := s.seedPosts(ctx, report); err != nil {
		return report, err
	}
	if err := s.seedToggles(ctx, report); err != nil {
		return report, err
	}
	if err := s.Verify(ctx, report); err != nil {
		return report, err
	}

	observability.Logger.InfoContext(ctx, "seeding complete",
		slog.Int("users", report.Users),
		slog.Int("messages", report.Messages),
		slog.Int("likes", report.Likes),
		slog.Int("unlikes", report.Unlikes),
		slog.Int("checked", report.Checked),
	)
	return report, nil
}

// seedUsers gives every identity one top-level post, which creates its aggregate.
func (s *Seeder) seedUsers(ctx context.Context, report *Report) error {
	seen := make(map[string]bool, s.opts.NumUsers)
	budget := s.opts.NumUsers * identityAttempts
	for len(s.users) < s.opts.NumUsers {
		if budget == 0 {
			return fmt.Errorf("seed: could only generate %d of %d distinct identities", len(s.users), s.opts.NumUsers)
		}
		budget--

		identity := s.username()
		if identity == "" || seen[identity] || len(identity) > models.MaxIdentityLength {
			continue
		}
		seen[identity] = true

		if err := s.post(ctx, identity, 0); err != nil {
			return err
		}
		s.users = append(s.users, identity)
		report.Users++
		report.Messages++
	}
	return nil
}

func (s *Seeder) seedPosts(ctx context.Context, report *Report) error {
	for range s.opts.NumPosts {
		author := s.pickUser()
		var replyTo uint64
		if s.faker.Float64Range(0, 1) < s.opts.ReplyRatio {
			replyTo = s.pickMessage().id
		}
		if err := s.post(ctx, author, replyTo); err != nil {
			return err
		}
		report.Messages++
	}
	return nil
}

func (s *Seeder) post(ctx context.Context, author string, replyTo uint64) error {
	msg, err := s.ledger.Post(ctx, service.PostInput{
		ReplyTo: replyTo,
		Author:  author,
		Content: s.faker.Sentence(s.faker.Number(3, 12)),
	})
	if err != nil {
		return fmt.Errorf("seed: post by %s: %w", author, err)
	}
	s.messages = append(s.messages, seededMessage{id: msg.ID, author: author})
	return nil
}

func (s *Seeder) seedToggles(ctx context.Context, report *Report) error {
	for range s.opts.NumToggles {
		msg := s.pickMessage()
		liker := s.pickUser()
		if liker == msg.author {
			continue
		}

		res, err := s.ledger.Like(ctx, service.LikeInput{PostID: msg.id, Liker: liker})
		if err != nil {
			return fmt.Errorf("seed: %s toggling like on %d: %w", liker, msg.id, err)
		}

		likers := s.liked[msg.id]
		if likers == nil {
			likers = make(map[string]bool)
			s.liked[msg.id] = likers
		}
		if res.Liked == likers[liker] {
			return fmt.Errorf("seed: like state of %s on %d out of sync", liker, msg.id)
		}
		if res.Liked {
			likers[liker] = true
			s.userLikes[liker]++
			report.Likes++
		} else {
			delete(likers, liker)
			s.userLikes[liker]--
			report.Unlikes++
		}
	}
	return nil
}

// Verify checks every seeded message and user against the expected counters.
func (s *Seeder) Verify(ctx context.Context, report *Report) error {
	for _, msg := range s.messages {
		if err := s.ledger.VerifyMessageLikes(ctx, msg.id, uint32(len(s.liked[msg.id]))); err != nil {
			return fmt.Errorf("seed: message %d: %w", msg.id, err)
		}
		report.Checked++
	}
	for _, identity := range s.users {
		if err := s.ledger.VerifyUserLikes(ctx, identity, s.userLikes[identity]); err != nil {
			return fmt.Errorf("seed: user %s: %w", identity, err)
		}
		report.Checked++
	}
	return nil
}

func (s *Seeder) pickUser() string {
	return s.users[s.faker.Number(0, len(s.users)-1)]
}

func (s *Seeder) pickMessage() seededMessage {
	return s.messages[s.faker.Number(0, len(s.messages)-1)]
}
