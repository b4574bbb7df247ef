// Package memory implementa el Directory Sync Service en memoria.
// Se usa en tests y en modo dev sin base de datos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/identsync/internal/directory"
)

type Store struct {
	mu      sync.Mutex
	byEmail map[string]directory.Record
	byID    map[string]string // user_id -> email

	// FailAll fuerza ErrUnavailable en toda operación (tests de conectividad).
	FailAll bool
}

func New() *Store {
	return &Store{
		byEmail: make(map[string]directory.Record),
		byID:    make(map[string]string),
	}
}

func (s *Store) Exists(_ context.Context, email string) (directory.ExistsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return directory.ExistsResult{}, directory.ErrUnavailable
	}
	rec, ok := s.byEmail[directory.NormalizeEmail(email)]
	if !ok {
		return directory.ExistsResult{}, nil
	}
	return directory.ExistsResult{Exists: true, FullName: rec.FullName}, nil
}

func (s *Store) Upsert(_ context.Context, rec directory.Record) (bool, error) {
	if rec.UserID == "" || rec.Email == "" {
		return false, directory.ErrMissingFields
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return false, directory.ErrUnavailable
	}
	email := directory.NormalizeEmail(rec.Email)
	if _, ok := s.byEmail[email]; ok {
		// nunca se pisa una fila existente
		return false, nil
	}
	rec.Email = email
	if rec.Role == "" {
		rec.Role = directory.DefaultRole
	}
	rec.CreatedAt = time.Now().UTC()
	s.byEmail[email] = rec
	s.byID[rec.UserID] = email
	return true, nil
}

func (s *Store) Delete(_ context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, directory.ErrMissingFields
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return 0, directory.ErrUnavailable
	}
	email, ok := s.byID[userID]
	if !ok {
		return 0, nil
	}
	delete(s.byID, userID)
	delete(s.byEmail, email)
	return 1, nil
}

// Get es un helper de tests: devuelve la fila por email.
func (s *Store) Get(email string) (directory.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byEmail[directory.NormalizeEmail(email)]
	return rec, ok
}

// Len es un helper de tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

var _ directory.Service = (*Store)(nil)
