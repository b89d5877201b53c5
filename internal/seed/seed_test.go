package seed

import (
	"context"
	"strings"
	"testing"

	"talk/internal/auth"
	"talk/internal/database"
	"talk/internal/repository"
	"talk/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeeder_MemoryStore(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := service.NewLedgerService(store, auth.AllowAll)

	opts := Options{NumUsers: 8, NumPosts: 40, NumToggles: 200, ReplyRatio: 0.5, Seed: 42}
	report, err := NewSeeder(svc, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.Users)
	assert.Equal(t, 48, report.Messages)
	assert.Equal(t, 48+8, report.Checked)
	assert.Positive(t, report.Likes)
	assert.GreaterOrEqual(t, report.Likes, report.Unlikes)
}

func TestSeeder_GormStore(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	svc := service.NewLedgerService(repository.NewGormStore(db), auth.AllowAll)
	report, err := NewSeeder(svc, Options{NumUsers: 4, NumPosts: 10, NumToggles: 50, ReplyRatio: 0.3, Seed: 7}).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, report.Messages)
}

func TestSeeder_VerifyCatchesDrift(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := service.NewLedgerService(store, auth.AllowAll)
	seeder := NewSeeder(svc, Options{NumUsers: 3, NumPosts: 5, NumToggles: 30, Seed: 3})

	_, err := seeder.Run(context.Background())
	require.NoError(t, err)

	// Pretend the first user liked one more message than they did.
	seeder.userLikes[seeder.users[0]]++
	err = seeder.Verify(context.Background(), &Report{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), seeder.users[0])
}

func TestSeeder_RejectsTooFewUsers(t *testing.T) {
	svc := service.NewLedgerService(repository.NewMemoryStore(), auth.AllowAll)
	_, err := NewSeeder(svc, Options{NumUsers: 1}).Run(context.Background())
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.GreaterOrEqual(t, opts.NumUsers, 2)
	assert.InDelta(t, 0.4, opts.ReplyRatio, 0.0001)
}

func TestSeeder_GivesUpWhenNamesRunOut(t *testing.T) {
	svc := service.NewLedgerService(repository.NewMemoryStore(), auth.AllowAll)
	seeder := NewSeeder(svc, Options{NumUsers: 3, NumPosts: 1, Seed: 1})

	names := []string{"alice", "alice", strings.Repeat("x", 65)}
	calls := 0
	seeder.username = func() string {
		name := names[min(calls, len(names)-1)]
		calls++
		return name
	}

	report, err := seeder.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 distinct identities")
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 3*identityAttempts, calls)
}
