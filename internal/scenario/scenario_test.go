package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"talk/internal/auth"
	"talk/internal/models"
	"talk/internal/repository"
	"talk/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner() *Runner {
	return NewRunner(service.NewLedgerService(repository.NewMemoryStore(), auth.RequireCaller))
}

func TestWorkedExample(t *testing.T) {
	script, err := Load("testdata/worked_example.yaml")
	require.NoError(t, err)
	require.Len(t, script.Steps, 13)

	n, err := newRunner().Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
}

func TestRun_ReportsFirstDivergence(t *testing.T) {
	script, err := Parse(strings.NewReader(`
name: wrong expectation
steps:
  - post: {author: alice, content: hi}
  - name: nobody liked it yet
    verify_likes: {id: 1000000000, expected: 3}
  - post: {author: bob}
`))
	require.NoError(t, err)

	n, err := newRunner().Run(context.Background(), script)
	assert.Equal(t, 1, n)

	var div *Divergence
	require.True(t, errors.As(err, &div))
	assert.Equal(t, 2, div.Index)
	assert.Equal(t, "nobody liked it yet", div.Step)
	assert.Contains(t, div.Reason, models.CodeAssertion)
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	script, err := Parse(strings.NewReader(`
steps:
  - post: {author: alice}
    expect_error: CONFLICT
`))
	require.NoError(t, err)

	_, err = newRunner().Run(context.Background(), script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected CONFLICT, got success")
}

func TestRun_WrongErrorCode(t *testing.T) {
	script, err := Parse(strings.NewReader(`
steps:
  - like: {post_id: 5, liker: bob}
    expect_error: SELF_ACTION
`))
	require.NoError(t, err)

	_, err = newRunner().Run(context.Background(), script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got NOT_FOUND")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", ``, "empty script"},
		{"no steps", "name: x\n", "no steps"},
		{"two actions", "steps:\n  - post: {author: a}\n    like: {post_id: 1, liker: b}\n", "has 2 actions"},
		{"no action", "steps:\n  - name: idle\n", "has 0 actions"},
		{"unknown key", "steps:\n  - pots: {author: a}\n", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// recordingLedger checks which caller each step runs as.
type recordingLedger struct {
	callers []string
}

func (l *recordingLedger) Post(ctx context.Context, _, _ uint64, _, _ string) (uint64, error) {
	caller, _ := auth.CallerFromContext(ctx)
	l.callers = append(l.callers, caller)
	return 1, nil
}

func (l *recordingLedger) Like(ctx context.Context, _, _ uint64, _ string) (bool, error) {
	caller, _ := auth.CallerFromContext(ctx)
	l.callers = append(l.callers, caller)
	return true, nil
}

func (l *recordingLedger) VerifyMessageLikes(context.Context, uint64, uint32) error { return nil }

func (l *recordingLedger) VerifyUserLikes(context.Context, string, uint32) error { return nil }

func TestRun_CallerDefaultsToActor(t *testing.T) {
	script, err := Parse(strings.NewReader(`
steps:
  - post: {author: alice}
  - as: mallory
    like: {post_id: 1, liker: bob}
`))
	require.NoError(t, err)

	ledger := &recordingLedger{}
	_, err = NewLedgerRunner(ledger).Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "mallory"}, ledger.callers)
}
