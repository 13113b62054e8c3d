package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

const stationColumns = `id, name, normalized_name, latitude, longitude, geocode`

// StationRepo holds the station catalog.
type StationRepo struct {
	db *DB
}

// NewStationRepo returns a repository over db.
func NewStationRepo(db *DB) *StationRepo {
	return &StationRepo{db: db}
}

// Replace swaps the whole catalog in one transaction.
func (r *StationRepo) Replace(ctx context.Context, stations []domain.Station) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stations`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, r.db.rebind(
			`INSERT INTO stations (`+stationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, s := range stations {
			if _, err := stmt.ExecContext(ctx, s.ID, s.Name, s.NormalizedName, s.Latitude, s.Longitude, s.Geocode); err != nil {
				return fmt.Errorf("insert station %s: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace stations: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Get returns one station, or domain.ErrStationNotFound.
func (r *StationRepo) Get(ctx context.Context, id string) (domain.Station, error) {
	s, err := queryOne(ctx, r.db, `SELECT `+stationColumns+` FROM stations WHERE id = ?`, []any{id}, scanStation)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, fmt.Errorf("%s: %w", id, domain.ErrStationNotFound)
	}
	if err != nil {
		return domain.Station{}, fmt.Errorf("%w: get station %s: %w", domain.ErrPersistence, id, err)
	}
	return s, nil
}

// List returns every station ordered by id.
func (r *StationRepo) List(ctx context.Context) ([]domain.Station, error) {
	out, err := queryMany(ctx, r.db, `SELECT `+stationColumns+` FROM stations ORDER BY id`, nil, scanStation)
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %w", domain.ErrPersistence, err)
	}
	return out, nil
}

func scanStation(s scanner) (domain.Station, error) {
	var st domain.Station
	err := s.Scan(&st.ID, &st.Name, &st.NormalizedName, &st.Latitude, &st.Longitude, &st.Geocode)
	return st, err
}
