package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
)

// SQLite persists the run ledger and prediction grids in a single database
// file. It implements domain.GridStore.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and if needed creates) the database at path.
func Open(path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT PRIMARY KEY,
			model         TEXT NOT NULL,
			init_time     TIMESTAMP NOT NULL,
			forecast_hour BIGINT NOT NULL,
			grid_ny       BIGINT NOT NULL,
			grid_nx       BIGINT NOT NULL,
			duration_ms   BIGINT NOT NULL,
			processed_at  TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS grids (
			run_id      TEXT NOT NULL,
			class       TEXT NOT NULL,
			kind        TEXT NOT NULL,
			won_points  BIGINT NOT NULL,
			data        BLOB NOT NULL,
			PRIMARY KEY (run_id, class, kind),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// HasRun reports whether a run ID is already in the ledger.
func (s *SQLite) HasRun(ctx context.Context, runID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query run %s: %w", runID, err)
	}
	return true, nil
}

// SaveRun records the run and its grids in one transaction. Grid fields are
// narrowed to float32 before storage; probabilities do not need more
// precision and the grids dominate the database size.
func (s *SQLite) SaveRun(ctx context.Context, result domain.RunResult, grid *domain.PredictionGrid) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, model, init_time, forecast_hour, grid_ny, grid_nx, duration_ms, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Model, result.InitTime, result.ForecastHour,
		result.GridNy, result.GridNx, result.Duration.Milliseconds(), result.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", result.RunID, err)
	}

	counts := grid.ClassCounts()
	for _, class := range grid.Classes {
		prob := encodeFloat32(grid.Probability[class].Elements)
		cat := encodeUint8(grid.Categorical[class].Elements)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO grids (run_id, class, kind, won_points, data)
			VALUES (?, ?, 'probability', ?, ?)`,
			result.RunID, class, counts[class], prob,
		)
		if err != nil {
			return fmt.Errorf("insert probability grid %s/%s: %w", result.RunID, class, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO grids (run_id, class, kind, won_points, data)
			VALUES (?, ?, 'categorical', ?, ?)`,
			result.RunID, class, counts[class], cat,
		)
		if err != nil {
			return fmt.Errorf("insert categorical grid %s/%s: %w", result.RunID, class, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", result.RunID, err)
	}

	s.logger.Debug("run saved", "run_id", result.RunID, "classes", len(grid.Classes))
	return nil
}

// LoadGrid reads one stored field back as float64 values in row-major order.
func (s *SQLite) LoadGrid(ctx context.Context, runID, class, kind string) ([]float64, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM grids WHERE run_id = ? AND class = ? AND kind = ?`,
		runID, class, kind,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no %s grid for run %s class %s", kind, runID, class)
	}
	if err != nil {
		return nil, fmt.Errorf("query grid %s/%s/%s: %w", runID, class, kind, err)
	}

	if kind == "categorical" {
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(b)
		}
		return out, nil
	}
	return decodeFloat32(data)
}

func encodeFloat32(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

func decodeFloat32(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("grid blob length %d is not a multiple of 4", len(data))
	}
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return out, nil
}

func encodeUint8(values []float64) []byte {
	buf := make([]byte, len(values))
	for i, v := range values {
		if v != 0 {
			buf[i] = 1
		}
	}
	return buf
}
