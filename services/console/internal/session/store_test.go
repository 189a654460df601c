package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"pumpconsole/pkg/domain"
)

func testUser() domain.User {
	return domain.User{ID: "u1", Name: "Ann", Email: "a@b.com", Role: domain.RoleAdmin}
}

func testSession(exp int64) domain.Session {
	return domain.Session{AccessToken: "T", RefreshToken: "R", ExpiresAt: exp}
}

func TestStoresRoundTripAndClear(t *testing.T) {
	mr := miniredis.RunT(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(mr.Addr(), "", "test"),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := store.Load(ctx); err != nil || ok {
				t.Fatalf("empty store load ok=%v err=%v", ok, err)
			}
			if err := store.Save(ctx, testUser(), testSession(100)); err != nil {
				t.Fatalf("save: %v", err)
			}
			snap, ok, err := store.Load(ctx)
			if err != nil || !ok {
				t.Fatalf("load ok=%v err=%v", ok, err)
			}
			if snap.User != testUser() || snap.Session != testSession(100) {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if _, ok, _ := store.Load(ctx); ok {
				t.Fatalf("expected no session after clear")
			}
		})
	}
}

func TestSaveRejectsTokenlessSession(t *testing.T) {
	if err := NewMemoryStore().Save(context.Background(), testUser(), domain.Session{RefreshToken: "R"}); err == nil {
		t.Fatalf("expected error for session without access token")
	}
}

func TestRedisStoreWritesBothKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), "", "console")
	if err := store.Save(context.Background(), testUser(), testSession(100)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("console:user") || !mr.Exists("console:session") {
		t.Fatalf("expected both keys, got %v", mr.Keys())
	}
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys after clear, got %v", mr.Keys())
	}
}

func TestRedisStorePartialStateIsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), "", "console")
	ctx := context.Background()
	if err := store.Save(ctx, testUser(), testSession(100)); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.Del("console:session")
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("user without session should be absent, ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, testUser(), testSession(100)); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.Del("console:user")
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("session without user should be absent, ok=%v err=%v", ok, err)
	}

	if err := mr.Set("console:user", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mr.Set("console:session", `{"access_token":"T"}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("corrupt user should be absent, ok=%v err=%v", ok, err)
	}
}
