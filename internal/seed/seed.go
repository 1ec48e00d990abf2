// Package seed loads development fixtures from YAML and applies them through
// the regular services, so seeded data obeys the same rules as live data.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"forumcore/internal/auth"
	"forumcore/internal/content"
	"forumcore/internal/moderation"
	"forumcore/internal/policy"
)

type Fixture struct {
	Accounts []Account `yaml:"accounts"`
	Posts    []Post    `yaml:"posts"`
}

type Account struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Moderator bool   `yaml:"moderator"`
}

type Post struct {
	Author   string    `yaml:"author"`
	Title    string    `yaml:"title"`
	Body     string    `yaml:"body"`
	Locked   bool      `yaml:"locked"`
	Deleted  bool      `yaml:"deleted"`
	Comments []Comment `yaml:"comments"`
}

type Comment struct {
	Author string `yaml:"author"`
	Body   string `yaml:"body"`
}

// Result counts what Apply created.
type Result struct {
	Accounts int
	Posts    int
	Comments int
}

// Load reads and parses a YAML fixture file.
func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	defer f.Close()
	fx, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, nil
}

func Parse(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, err
	}
	return &fx, nil
}

type Seeder struct {
	Auth       *auth.Service
	Content    *content.Service
	Moderation *moderation.Engine
}

// operator is the actor used for lock and delete flags set by a fixture.
var operator = policy.Actor{IsModerator: true}

// Apply registers the fixture's accounts, then creates its posts and
// comments in order. Comments are added before a post is locked or deleted.
func (s *Seeder) Apply(ctx context.Context, fx *Fixture) (Result, error) {
	var res Result
	actors := make(map[string]policy.Actor, len(fx.Accounts))

	for _, a := range fx.Accounts {
		acct, err := s.Auth.Register(ctx, a.Username, a.Email, a.Password)
		if err != nil {
			return res, fmt.Errorf("account %s: %w", a.Username, err)
		}
		if a.Moderator && !acct.IsModerator {
			if err := s.Auth.SetModerator(ctx, acct.Username, true); err != nil {
				return res, fmt.Errorf("promote %s: %w", a.Username, err)
			}
			acct.IsModerator = true
		}
		actors[a.Username] = policy.Actor{ID: acct.ID, IsModerator: acct.IsModerator}
		res.Accounts++
	}

	lookup := func(name string) (policy.Actor, error) {
		actor, ok := actors[name]
		if !ok {
			return policy.Actor{}, fmt.Errorf("unknown author %q", name)
		}
		return actor, nil
	}

	for i, p := range fx.Posts {
		author, err := lookup(p.Author)
		if err != nil {
			return res, fmt.Errorf("post %d: %w", i, err)
		}
		post, err := s.Content.CreatePost(ctx, author, p.Title, p.Body)
		if err != nil {
			return res, fmt.Errorf("post %q: %w", p.Title, err)
		}
		res.Posts++

		for _, c := range p.Comments {
			commenter, err := lookup(c.Author)
			if err != nil {
				return res, fmt.Errorf("comment on %q: %w", p.Title, err)
			}
			if _, err := s.Content.CreateComment(ctx, commenter, post.ID, c.Body); err != nil {
				return res, fmt.Errorf("comment on %q: %w", p.Title, err)
			}
			res.Comments++
		}

		if p.Locked {
			if err := s.Moderation.SetLocked(ctx, operator, post.ID, true); err != nil {
				return res, fmt.Errorf("lock %q: %w", p.Title, err)
			}
		}
		if p.Deleted {
			if err := s.Content.DeletePost(ctx, operator, post.ID); err != nil {
				return res, fmt.Errorf("delete %q: %w", p.Title, err)
			}
		}
	}
	return res, nil
}
