package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"myhebrewdates/internal/model"
	"myhebrewdates/internal/store"
)

type fakeUsers map[string]*model.User

func (f fakeUsers) UserByUsername(_ context.Context, name string) (*model.User, error) {
	if u, ok := f[name]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f fakeUsers) UserByID(_ context.Context, id uint) (*model.User, error) {
	for _, u := range f {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func newTestAuth(t *testing.T, now func() time.Time) (*Authenticator, *model.User) {
	t.Helper()
	HashCost = bcrypt.MinCost
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	u := &model.User{ID: 42, Username: "dana", PasswordHash: hash}
	return New(fakeUsers{"dana": u}, "secret", time.Hour, now), u
}

func TestLogin(t *testing.T) {
	a, u := newTestAuth(t, nil)
	ctx := context.Background()

	got, err := a.Login(ctx, "dana", "correct horse")
	if err != nil || got.ID != u.ID {
		t.Fatalf("Login = %v, %v", got, err)
	}
	if _, err := a.Login(ctx, "dana", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := a.Login(ctx, "ghost", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestTokenRoundTripAndExpiry(t *testing.T) {
	now := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a, u := newTestAuth(t, clock)
	ctx := context.Background()

	token, exp, err := a.IssueToken(u)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("exp = %s", exp)
	}

	got, err := a.VerifyToken(ctx, token)
	if err != nil || got.ID != u.ID {
		t.Fatalf("VerifyToken = %v, %v", got, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := a.VerifyToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestVerifyTokenRejectsForeignSignature(t *testing.T) {
	a, u := newTestAuth(t, nil)
	other := New(fakeUsers{}, "another secret", time.Hour, nil)
	token, _, err := other.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.VerifyToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v", err)
	}
	if _, err := a.VerifyToken(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage err = %v", err)
	}
}
