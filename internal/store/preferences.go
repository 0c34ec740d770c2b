package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

const keyVoicePreference = "settings:voice"

// ErrPreferenceNotFound is returned before any narrator was ever chosen.
var ErrPreferenceNotFound = apperrors.NotFound("voice preference not found")

// SaveVoicePreference stores the global narrator selection and rate.
func (s *Store) SaveVoicePreference(p *domain.VoicePreference) error {
	if err := s.set([]byte(keyVoicePreference), p); err != nil {
		return fmt.Errorf("save voice preference: %w", err)
	}
	return nil
}

// GetVoicePreference retrieves the global narrator selection and rate.
// Like progress records, an unreadable preference is treated as absent.
func (s *Store) GetVoicePreference() (*domain.VoicePreference, error) {
	var p domain.VoicePreference
	err := s.get([]byte(keyVoicePreference), &p)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrPreferenceNotFound
	}
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("discarding unreadable voice preference")
		}
		_ = s.delete([]byte(keyVoicePreference))
		return nil, ErrPreferenceNotFound
	}
	return &p, nil
}
