// Package scenario replays scripted ledger operations from YAML and checks
// every outcome against the script.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is a named list of steps run in order against one ledger.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one ledger call. Exactly one of the action fields is set.
//
// As overrides the authenticated caller; by default the step acts as the
// identity it names. ExpectError is an error code such as NOT_FOUND; when
// empty the step must succeed.
type Step struct {
	Name string `yaml:"name,omitempty"`
	As   string `yaml:"as,omitempty"`

	Post            *PostStep            `yaml:"post,omitempty"`
	Like            *LikeStep            `yaml:"like,omitempty"`
	VerifyLikes     *VerifyLikesStep     `yaml:"verify_likes,omitempty"`
	VerifyUserLikes *VerifyUserLikesStep `yaml:"verify_user_likes,omitempty"`

	ExpectError string `yaml:"expect_error,omitempty"`
	ExpectID    uint64 `yaml:"expect_id,omitempty"`
	ExpectLiked *bool  `yaml:"expect_liked,omitempty"`
}

type PostStep struct {
	ID      uint64 `yaml:"id"`
	ReplyTo uint64 `yaml:"reply_to"`
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

type LikeStep struct {
	ID     uint64 `yaml:"id"`
	PostID uint64 `yaml:"post_id"`
	Liker  string `yaml:"liker"`
}

type VerifyLikesStep struct {
	ID       uint64 `yaml:"id"`
	Expected uint32 `yaml:"expected"`
}

type VerifyUserLikesStep struct {
	Identity string `yaml:"identity"`
	Expected uint32 `yaml:"expected"`
}

// Parse decodes a script and checks that every step names exactly one action.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var script Script
	if err := dec.Decode(&script); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario: empty script")
		}
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, errors.New("scenario: script has no steps")
	}
	for i, step := range script.Steps {
		if n := step.actions(); n != 1 {
			return nil, fmt.Errorf("scenario: step %d (%s) has %d actions, want 1", i+1, step.label(), n)
		}
	}
	return &script, nil
}

// Load reads a script file.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func (s Step) actions() int {
	n := 0
	if s.Post != nil {
		n++
	}
	if s.Like != nil {
		n++
	}
	if s.VerifyLikes != nil {
		n++
	}
	if s.VerifyUserLikes != nil {
		n++
	}
	return n
}

func (s Step) label() string {
	if s.Name != "" {
		return s.Name
	}
	switch {
	case s.Post != nil:
		return "post"
	case s.Like != nil:
		return "like"
	case s.VerifyLikes != nil:
		return "verify_likes"
	case s.VerifyUserLikes != nil:
		return "verify_user_likes"
	default:
		return "empty"
	}
}

// Divergence reports the first step whose outcome differs from the script.
type Divergence struct {
	Index  int
	Step   string
	Reason string
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("step %d (%s): %s", d.Index, d.Step, d.Reason)
}

// Ledger is the set of operations a script can drive.
type Ledger interface {
	Post(ctx context.Context, id, replyTo uint64, author, content string) (uint64, error)
	Like(ctx context.Context, id, postID uint64, liker string) (bool, error)
	VerifyMessageLikes(ctx context.Context, id uint64, expected uint32) error
	VerifyUserLikes(ctx context.Context, identity string, expected uint32) error
}
