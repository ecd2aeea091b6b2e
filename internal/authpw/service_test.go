package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"leadflow/api/internal/store"
)

type fakeUserStore struct {
	users map[string]store.User // keyed by email
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]store.User)}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := f.users[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.users[user.Email] = user
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "Ada@Example.com",
		Password:    "correct horse",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "correct horse" {
		t.Error("password stored in plaintext")
	}

	signedIn, err := svc.SignIn(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Errorf("signed in as wrong user: %s != %s", signedIn.ID, user.ID)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "password1", DisplayName: "A"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@b.c", "password2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@b.c", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "short", DisplayName: "A"}); err == nil {
		t.Error("short password accepted")
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Password: "password1", DisplayName: "A"}); err == nil {
		t.Error("missing email accepted")
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "password1", DisplayName: "A"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "password1", DisplayName: "A"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}
