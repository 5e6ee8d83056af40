// FILE: shogi/internal/server/service/service.go
package service

import (
	"errors"
	"fmt"
	"time"

	"shogi/internal/server/storage"
)

const (
	TokenTTL = 7 * 24 * time.Hour
)

var (
	ErrStorageDisabled    = errors.New("storage disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication disabled")
)

// Service coordinates user accounts, API tokens, and storage
type Service struct {
	store     *storage.Store
	jwtSecret []byte
}

// New creates a new service instance with optional storage; an empty secret disables tokens
func New(store *storage.Store, jwtSecret []byte) *Service {
	return &Service{
		store:     store,
		jwtSecret: jwtSecret,
	}
}

// Store returns the backing store, nil when storage is disabled
func (s *Service) Store() *storage.Store {
	return s.store
}

// AuthEnabled reports whether API tokens are issued and enforced
func (s *Service) AuthEnabled() bool {
	return len(s.jwtSecret) > 0
}

// GetStorageHealth returns the storage component status
func (s *Service) GetStorageHealth() string {
	return s.store.Health()
}

// Shutdown closes storage
func (s *Service) Shutdown() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}
