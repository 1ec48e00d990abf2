package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"forumcore/internal/models"
	"forumcore/internal/testutil"
)

const idle = 1200 * time.Second

type storeFactory struct {
	name string
	new  func(t *testing.T) (Store, int) // store and an account id usable with it
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) (Store, int) { return NewMemoryStore(), 1 }},
		{"sqlite", func(t *testing.T) (Store, int) {
			conn := testutil.NewDB(t)
			a := &models.Account{Username: "alice", Email: "a@example.com", PasswordHash: "x", CreatedAt: time.Now().UTC()}
			if err := models.CreateAccount(context.Background(), conn, a); err != nil {
				t.Fatalf("create account: %v", err)
			}
			return NewSQLStore(conn), a.ID
		}},
	}
}

func TestManager_CreateValidate(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store, accountID := f.new(t)
			clk := testutil.FixedClock()
			m := NewManager(store, idle, WithClock(clk))

			s, err := m.Create(ctx, accountID, true)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if s.Token == "" || s.CSRFToken == "" {
				t.Fatalf("Create() returned empty tokens: %+v", s)
			}

			clk.Advance(time.Minute)
			got, err := m.Validate(ctx, s.Token)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got.AccountID != accountID || !got.IsModerator || got.CSRFToken != s.CSRFToken {
				t.Errorf("Validate() = %+v, want account %d moderator with same csrf", got, accountID)
			}
			if !got.LastActivity.Equal(clk.Now()) {
				t.Errorf("LastActivity = %v, want %v", got.LastActivity, clk.Now())
			}

			stored, err := store.Get(ctx, s.Token)
			if err != nil {
				t.Fatal(err)
			}
			if !stored.LastActivity.Equal(clk.Now()) {
				t.Errorf("stored LastActivity = %v, want refreshed to %v", stored.LastActivity, clk.Now())
			}
		})
	}
}

func TestManager_SlidingExpiry(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store, accountID := f.new(t)
			clk := testutil.FixedClock()
			m := NewManager(store, idle, WithClock(clk))

			s, err := m.Create(ctx, accountID, false)
			if err != nil {
				t.Fatal(err)
			}

			// Many gaps just under the timeout keep the session alive well
			// past a single timeout window.
			for i := 0; i < 10; i++ {
				clk.Advance(idle - time.Second)
				if _, err := m.Validate(ctx, s.Token); err != nil {
					t.Fatalf("validation %d after gap < timeout: %v", i, err)
				}
			}

			// A gap of exactly the timeout is still valid.
			clk.Advance(idle)
			if _, err := m.Validate(ctx, s.Token); err != nil {
				t.Fatalf("gap == timeout: %v", err)
			}

			clk.Advance(idle + time.Second)
			if _, err := m.Validate(ctx, s.Token); !errors.Is(err, models.ErrSessionExpired) {
				t.Fatalf("gap > timeout: err = %v, want ErrSessionExpired", err)
			}

			// The expired session is gone.
			if _, err := m.Validate(ctx, s.Token); !errors.Is(err, models.ErrSessionInvalid) {
				t.Fatalf("after expiry: err = %v, want ErrSessionInvalid", err)
			}
		})
	}
}

func TestManager_ValidateAt(t *testing.T) {
	ctx := context.Background()
	clk := testutil.FixedClock()
	m := NewManager(NewMemoryStore(), 10*time.Second, WithClock(clk))
	s, err := m.Create(ctx, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	t0 := clk.Now()

	if _, err := m.ValidateAt(ctx, s.Token, t0.Add(9*time.Second)); err != nil {
		t.Fatalf("ValidateAt(t0+9s) error = %v", err)
	}
	if _, err := m.ValidateAt(ctx, s.Token, t0.Add(18*time.Second)); err != nil {
		t.Fatalf("ValidateAt(t0+18s) error = %v", err)
	}
	if _, err := m.ValidateAt(ctx, s.Token, t0.Add(29*time.Second)); !errors.Is(err, models.ErrSessionExpired) {
		t.Fatalf("ValidateAt(t0+29s) error = %v, want ErrSessionExpired", err)
	}
}

func TestManager_InvalidTokens(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), idle)

	for _, token := range []string{"", "no-such-token"} {
		if _, err := m.Validate(ctx, token); !errors.Is(err, models.ErrSessionInvalid) {
			t.Errorf("Validate(%q) error = %v, want ErrSessionInvalid", token, err)
		}
	}
}

func TestManager_Destroy(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store, accountID := f.new(t)
			m := NewManager(store, idle, WithClock(testutil.FixedClock()))

			s, err := m.Create(ctx, accountID, false)
			if err != nil {
				t.Fatal(err)
			}
			if err := m.Destroy(ctx, s.Token); err != nil {
				t.Fatalf("Destroy() error = %v", err)
			}
			if err := m.Destroy(ctx, s.Token); err != nil {
				t.Fatalf("second Destroy() error = %v", err)
			}
			if _, err := m.Validate(ctx, s.Token); !errors.Is(err, models.ErrSessionInvalid) {
				t.Fatalf("Validate() after Destroy error = %v, want ErrSessionInvalid", err)
			}
		})
	}
}

func TestManager_UniqueCSRFTokens(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), idle)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := m.Create(ctx, 1, false)
		if err != nil {
			t.Fatal(err)
		}
		if seen[s.CSRFToken] {
			t.Fatalf("csrf token reused: %s", s.CSRFToken)
		}
		seen[s.CSRFToken] = true
	}
}

func TestManager_CheckCSRF(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), idle)
	s, err := m.Create(ctx, 1, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.CheckCSRF(s, s.CSRFToken); err != nil {
		t.Errorf("CheckCSRF(matching) error = %v", err)
	}
	for _, presented := range []string{"", "wrong", s.CSRFToken + "x"} {
		if err := m.CheckCSRF(s, presented); !errors.Is(err, models.ErrCSRFMismatch) {
			t.Errorf("CheckCSRF(%q) error = %v, want ErrCSRFMismatch", presented, err)
		}
	}
	if err := m.CheckCSRF(nil, "anything"); !errors.Is(err, models.ErrCSRFMismatch) {
		t.Errorf("CheckCSRF(nil session) error = %v, want ErrCSRFMismatch", err)
	}

	bypass := NewManager(NewMemoryStore(), idle, WithCSRFBypass(true))
	if err := bypass.CheckCSRF(s, ""); err != nil {
		t.Errorf("bypassed CheckCSRF error = %v", err)
	}
}

func TestManager_Sweep(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store, accountID := f.new(t)
			clk := testutil.FixedClock()
			m := NewManager(store, idle, WithClock(clk))

			stale, err := m.Create(ctx, accountID, false)
			if err != nil {
				t.Fatal(err)
			}
			clk.Advance(idle / 2)
			fresh, err := m.Create(ctx, accountID, false)
			if err != nil {
				t.Fatal(err)
			}
			clk.Advance(idle/2 + time.Second)

			n, err := m.Sweep(ctx)
			if err != nil {
				t.Fatalf("Sweep() error = %v", err)
			}
			if n != 1 {
				t.Errorf("Sweep() removed %d, want 1", n)
			}
			if _, err := store.Get(ctx, stale.Token); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("stale session still present: %v", err)
			}
			if _, err := m.Validate(ctx, fresh.Token); err != nil {
				t.Errorf("fresh session invalid after sweep: %v", err)
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	if _, err := NewStore("memory", nil); err != nil {
		t.Errorf("NewStore(memory) error = %v", err)
	}
	if _, err := NewStore("sqlite", nil); err == nil {
		t.Error("NewStore(sqlite, nil) succeeded, want error")
	}
	if _, err := NewStore("sqlite", testutil.NewDB(t)); err != nil {
		t.Errorf("NewStore(sqlite) error = %v", err)
	}
	if _, err := NewStore("redis", nil); err == nil {
		t.Error("NewStore(redis) succeeded, want error")
	}
}

func TestStartSweeper(t *testing.T) {
	m := NewManager(NewMemoryStore(), idle)
	if _, err := StartSweeper(m, "not a schedule", nil); err == nil {
		t.Fatal("StartSweeper() with bad schedule succeeded")
	}
	sw, err := StartSweeper(m, "@every 1h", nil)
	if err != nil {
		t.Fatalf("StartSweeper() error = %v", err)
	}
	sw.Stop()
}
