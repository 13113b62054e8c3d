package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

const observationColumns = `station_id, obs_date, obs_hour, municipality,
	temperature, humidity, wind_speed, precipitation, pressure, radiation, flood_label`

// ObservationRepo holds the reconciled, labeled training table.
type ObservationRepo struct {
	db *DB
}

// NewObservationRepo returns a repository over db.
func NewObservationRepo(db *DB) *ObservationRepo {
	return &ObservationRepo{db: db}
}

// Replace swaps the whole table in one transaction.
func (r *ObservationRepo) Replace(ctx context.Context, rows []domain.LabeledRow) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM observations`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, r.db.rebind(
			`INSERT INTO observations (`+observationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, row := range rows {
			_, err := stmt.ExecContext(ctx,
				row.StationID, row.Date, row.Hour, row.Municipality,
				row.Temperature, row.Humidity, row.WindSpeed, row.Precipitation,
				nullFloat(row.Pressure), nullFloat(row.Radiation), row.FloodLabel,
			)
			if err != nil {
				return fmt.Errorf("insert %s %s %s: %w", row.StationID, row.Date, row.Hour, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace observations: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Count returns the number of stored rows.
func (r *ObservationRepo) Count(ctx context.Context) (int, error) {
	n, err := queryOne(ctx, r.db, `SELECT COUNT(*) FROM observations`, nil, func(s scanner) (int, error) {
		var n int
		err := s.Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count observations: %w", domain.ErrPersistence, err)
	}
	return n, nil
}

// All returns every row ordered by (station, date, hour).
func (r *ObservationRepo) All(ctx context.Context) ([]domain.LabeledRow, error) {
	out, err := queryMany(ctx, r.db,
		`SELECT `+observationColumns+` FROM observations ORDER BY station_id, obs_date, obs_hour`,
		nil, scanObservation)
	if err != nil {
		return nil, fmt.Errorf("%w: load observations: %w", domain.ErrPersistence, err)
	}
	return out, nil
}

func scanObservation(s scanner) (domain.LabeledRow, error) {
	var (
		row                 domain.LabeledRow
		pressure, radiation sql.NullFloat64
	)
	err := s.Scan(&row.StationID, &row.Date, &row.Hour, &row.Municipality,
		&row.Temperature, &row.Humidity, &row.WindSpeed, &row.Precipitation,
		&pressure, &radiation, &row.FloodLabel)
	if err != nil {
		return row, err
	}
	if pressure.Valid {
		row.Pressure = &pressure.Float64
	}
	if radiation.Valid {
		row.Radiation = &radiation.Float64
	}
	return row, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
