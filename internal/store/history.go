package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

// HistoryRepo is the append-only prediction log.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo returns a repository over db.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Append inserts one entry. Entries are never updated or deleted.
func (r *HistoryRepo) Append(ctx context.Context, p domain.Prediction) error {
	_, err := r.db.conn.ExecContext(ctx,
		r.db.rebind(`INSERT INTO prediction_history (location_key, predicted_at, probability) VALUES (?, ?, ?)`),
		p.LocationKey, p.Timestamp.UTC().UnixNano(), p.Probability,
	)
	if err != nil {
		return fmt.Errorf("%w: append history for %s: %w", domain.ErrPersistence, p.LocationKey, err)
	}
	return nil
}

// Query returns the newest limit entries for key, newest-first or
// oldest-first. A non-positive limit returns every entry. It returns
// domain.ErrNoHistory when key has never been predicted.
func (r *HistoryRepo) Query(ctx context.Context, key string, limit int, newestFirst bool) ([]domain.Prediction, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	out, err := queryMany(ctx, r.db,
		`SELECT location_key, predicted_at, probability FROM prediction_history
		 WHERE location_key = ? ORDER BY predicted_at DESC, id DESC LIMIT ?`,
		[]any{key, limit}, scanPrediction)
	if err != nil {
		return nil, fmt.Errorf("%w: query history for %s: %w", domain.ErrPersistence, key, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrNoHistory)
	}
	if !newestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

func scanPrediction(s scanner) (domain.Prediction, error) {
	var (
		p  domain.Prediction
		ns int64
	)
	if err := s.Scan(&p.LocationKey, &ns, &p.Probability); err != nil {
		return p, err
	}
	p.Timestamp = time.Unix(0, ns).UTC()
	return p, nil
}
