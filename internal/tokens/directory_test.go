package tokens

import (
	"context"
	"errors"
	"testing"

	"smartfactory/api/internal/store"
)

type fakeTokenStore struct {
	upsert         func(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error)
	deactivate     func(ctx context.Context, token string) error
	forUser        func(ctx context.Context, userID string) ([]string, error)
	forUsers       func(ctx context.Context, userIDs []string) ([]string, error)
	forDepartment  func(ctx context.Context, departmentID string) ([]string, error)
	deactivateMany func(ctx context.Context, tokens []string) error
}

func (f *fakeTokenStore) UpsertDeviceToken(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error) {
	return f.upsert(ctx, userID, token, deviceName, platform)
}

func (f *fakeTokenStore) DeactivateDeviceToken(ctx context.Context, token string) error {
	return f.deactivate(ctx, token)
}

func (f *fakeTokenStore) ActiveTokensForUser(ctx context.Context, userID string) ([]string, error) {
	return f.forUser(ctx, userID)
}

func (f *fakeTokenStore) ActiveTokensForUsers(ctx context.Context, userIDs []string) ([]string, error) {
	return f.forUsers(ctx, userIDs)
}

func (f *fakeTokenStore) ActiveTokensForDepartment(ctx context.Context, departmentID string) ([]string, error) {
	return f.forDepartment(ctx, departmentID)
}

func (f *fakeTokenStore) DeactivateTokens(ctx context.Context, tokens []string) error {
	return f.deactivateMany(ctx, tokens)
}

func TestRegisterRejectsEmptyToken(t *testing.T) {
	directory := NewDirectory(&fakeTokenStore{})

	_, err := directory.Register(context.Background(), "user-1", "", "", "")
	if !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}

func TestRegisterReassignsTokenToNewUser(t *testing.T) {
	var gotUser string
	fake := &fakeTokenStore{
		upsert: func(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error) {
			gotUser = userID
			return store.DeviceToken{UserID: userID, Token: token, IsActive: true}, nil
		},
	}
	directory := NewDirectory(fake)

	record, err := directory.Register(context.Background(), "user-2", "tok-abc", "shop floor tablet", "android")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if gotUser != "user-2" {
		t.Fatalf("expected upsert for user-2, got %q", gotUser)
	}
	if !record.IsActive {
		t.Fatal("expected registered token to be active")
	}
}

func TestDeactivateUnknownTokenIsNoOp(t *testing.T) {
	fake := &fakeTokenStore{
		deactivate: func(ctx context.Context, token string) error {
			return nil
		},
	}
	directory := NewDirectory(fake)

	if err := directory.Deactivate(context.Background(), "never-registered"); err != nil {
		t.Fatalf("expected no error for unknown token, got %v", err)
	}
}

func TestInvalidateSwallowsStoreErrors(t *testing.T) {
	fake := &fakeTokenStore{
		deactivateMany: func(ctx context.Context, tokens []string) error {
			return errors.New("db down")
		},
	}
	directory := NewDirectory(fake)

	// Must not panic or surface the error.
	directory.Invalidate(context.Background(), []string{"tok-1", "tok-2"})
}
