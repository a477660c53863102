package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"

	"smartfactory/api/internal/store"
)

var ErrTokenRequired = errors.New("device token is required")

type tokenStore interface {
	UpsertDeviceToken(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error)
	DeactivateDeviceToken(ctx context.Context, token string) error
	ActiveTokensForUser(ctx context.Context, userID string) ([]string, error)
	ActiveTokensForUsers(ctx context.Context, userIDs []string) ([]string, error)
	ActiveTokensForDepartment(ctx context.Context, departmentID string) ([]string, error)
	DeactivateTokens(ctx context.Context, tokens []string) error
}

// Directory tracks which push tokens belong to which user. A token follows
// the device: registering a token that another account already holds moves
// it to the registering user.
type Directory struct {
	store tokenStore
}

func NewDirectory(s tokenStore) *Directory {
	return &Directory{store: s}
}

func (d *Directory) Register(ctx context.Context, userID, token, deviceName, platform string) (store.DeviceToken, error) {
	if token == "" {
		return store.DeviceToken{}, ErrTokenRequired
	}
	record, err := d.store.UpsertDeviceToken(ctx, userID, token, deviceName, platform)
	if err != nil {
		return store.DeviceToken{}, fmt.Errorf("register token: %w", err)
	}
	return record, nil
}

// Deactivate marks a token inactive. Unknown tokens are a no-op, logout on a
// device that never registered should not error.
func (d *Directory) Deactivate(ctx context.Context, token string) error {
	if token == "" {
		return ErrTokenRequired
	}
	if err := d.store.DeactivateDeviceToken(ctx, token); err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	return nil
}

func (d *Directory) TokensFor(ctx context.Context, userID string) ([]string, error) {
	return d.store.ActiveTokensForUser(ctx, userID)
}

func (d *Directory) TokensForMany(ctx context.Context, userIDs []string) ([]string, error) {
	return d.store.ActiveTokensForUsers(ctx, userIDs)
}

func (d *Directory) TokensForDepartment(ctx context.Context, departmentID string) ([]string, error) {
	return d.store.ActiveTokensForDepartment(ctx, departmentID)
}

// Invalidate retires tokens the push provider reported as permanently dead.
// Failures are logged, not returned, pruning is best effort.
func (d *Directory) Invalidate(ctx context.Context, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if err := d.store.DeactivateTokens(ctx, tokens); err != nil {
		log.Printf("tokens: invalidate %d tokens: %v", len(tokens), err)
	}
}
