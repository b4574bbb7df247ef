// Package pg implementa el Directory Sync Service sobre PostgreSQL (pgxpool).
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/identsync/internal/directory"
	"github.com/dropDatabas3/identsync/internal/observability/logger"
)

type Store struct{ pool *pgxpool.Pool }

type Tuning struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, tn Tuning) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if tn.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(tn.MaxOpenConns)
	}
	// Mapear MaxIdleConns → MinConns (pgxpool)
	if tn.MaxIdleConns > 0 {
		pcfg.MinConns = int32(tn.MaxIdleConns)
	}
	if tn.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(tn.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	// el arranque no exige DB disponible; el ping solo informa
	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		logger.L().Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}

	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Exists(ctx context.Context, email string) (directory.ExistsResult, error) {
	email = directory.NormalizeEmail(email)

	var fullName *string
	err := s.pool.QueryRow(ctx,
		`SELECT full_name FROM users WHERE email = $1`, email,
	).Scan(&fullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.ExistsResult{}, nil
	}
	if err != nil {
		return directory.ExistsResult{}, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	res := directory.ExistsResult{Exists: true}
	if fullName != nil {
		res.FullName = *fullName
	}
	return res, nil
}

// Upsert re-chequea existencia por email y luego inserta con ON CONFLICT DO
// NOTHING: si dos signups concurrentes pasan el check, el perdedor del insert
// recibe created=false en vez de un error (ver contrato en directory.Service).
func (s *Store) Upsert(ctx context.Context, rec directory.Record) (bool, error) {
	if rec.UserID == "" || rec.Email == "" {
		return false, directory.ErrMissingFields
	}
	rec.Email = directory.NormalizeEmail(rec.Email)
	if rec.Role == "" {
		rec.Role = directory.DefaultRole
	}

	var existing string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM users WHERE email = $1`, rec.Email,
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, email, full_name, role)
		 VALUES ($1, $2, NULLIF($3, ''), $4)
		 ON CONFLICT DO NOTHING`,
		rec.UserID, rec.Email, rec.FullName, rec.Role,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete borra por user_id. Idempotente: inexistente → rows=0, sin error.
func (s *Store) Delete(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, directory.ErrMissingFields
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

var _ directory.Service = (*Store)(nil)
