package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

// The server has exactly one owner account, created on first setup.
const keyAccount = "account:owner"

const tokenPrefix = "token:"

// Sentinel errors for account operations.
var (
	ErrAccountNotFound = apperrors.NotFound("account not found")
	ErrTokenNotFound   = apperrors.NotFound("refresh token not found")
)

// CreateAccount stores the owner account. A second create reports the server
// as already configured.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := s.exists([]byte(keyAccount))
	if err != nil {
		return fmt.Errorf("check account exists: %w", err)
	}
	if exists {
		return apperrors.ErrAlreadyConfigured
	}

	if err := s.set([]byte(keyAccount), account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if s.log != nil {
		s.log.Info("owner account created", "username", account.Username)
	}
	return nil
}

// GetAccount retrieves the owner account.
func (s *Store) GetAccount(ctx context.Context) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var account domain.Account
	err := s.get([]byte(keyAccount), &account)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// UpdateAccount rewrites the owner account.
func (s *Store) UpdateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := s.exists([]byte(keyAccount))
	if err != nil {
		return fmt.Errorf("check account exists: %w", err)
	}
	if !exists {
		return ErrAccountNotFound
	}

	account.UpdatedAt = time.Now()
	if err := s.set([]byte(keyAccount), account); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// HasAccount reports whether first-time setup has run.
func (s *Store) HasAccount(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.exists([]byte(keyAccount))
}

// SaveRefreshToken stores a refresh token record keyed by its hash.
func (s *Store) SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.set([]byte(tokenPrefix+token.Hash), token); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token record by its hash. Expiry is the
// auth service's concern; the store returns whatever it has.
func (s *Store) GetRefreshToken(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var token domain.RefreshToken
	err := s.get([]byte(tokenPrefix+hash), &token)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &token, nil
}

// DeleteRefreshToken removes a refresh token record.
func (s *Store) DeleteRefreshToken(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.delete([]byte(tokenPrefix + hash)); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// PurgeExpiredTokens removes every refresh token past its lifetime and
// returns how many were removed.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tokenPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var token domain.RefreshToken
				if err := json.Unmarshal(val, &token); err != nil {
					// Unreadable token records are dead weight either way.
					stale = append(stale, item.KeyCopy(nil))
					return nil
				}
				if token.Expired(now) {
					stale = append(stale, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan refresh tokens: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}

	if s.log != nil && len(stale) > 0 {
		s.log.Debug("purged expired refresh tokens", "count", len(stale))
	}
	return len(stale), nil
}
