package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Journal persists finished cycle reports so operators can inspect them
// after the in-memory session is gone.
type Journal struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenJournal(path, lockPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle_id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			network TEXT NOT NULL,
			side TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_cycles_user_finished ON cycles(user_id, finished_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Journal{db: db, lock: flock.New(lockPath)}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Save(ctx context.Context, report model.CycleReport) error {
	if strings.TrimSpace(report.ID) == "" {
		return fmt.Errorf("save cycle: missing cycle id")
	}
	locked, err := j.lock.TryLockContext(ctx, 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = j.lock.Unlock() }()

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal cycle: %w", err)
	}
	started := report.StartedAt.UTC().Unix()
	finished := report.FinishedAt.UTC().Unix()
	if report.FinishedAt.IsZero() {
		finished = time.Now().UTC().Unix()
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, user_id, network, side, started_at, finished_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO UPDATE SET
			finished_at=excluded.finished_at,
			payload=excluded.payload
	`, report.ID, report.UserID, string(report.Network), string(report.Side), started, finished, payload)
	if err != nil {
		return fmt.Errorf("save cycle: %w", err)
	}
	return nil
}

func (j *Journal) Get(ctx context.Context, cycleID string) (model.CycleReport, error) {
	var payload []byte
	err := j.db.QueryRowContext(ctx, "SELECT payload FROM cycles WHERE cycle_id = ?", cycleID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CycleReport{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("cycle not found: %s", cycleID))
		}
		return model.CycleReport{}, fmt.Errorf("read cycle: %w", err)
	}
	var report model.CycleReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return model.CycleReport{}, fmt.Errorf("decode cycle payload: %w", err)
	}
	return report, nil
}

// List returns the newest cycles first; userID 0 lists every user.
func (j *Journal) List(ctx context.Context, userID int64, limit int) ([]model.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if userID == 0 {
		rows, err = j.db.QueryContext(ctx, "SELECT payload FROM cycles ORDER BY finished_at DESC, cycle_id LIMIT ?", limit)
	} else {
		rows, err = j.db.QueryContext(ctx, "SELECT payload FROM cycles WHERE user_id = ? ORDER BY finished_at DESC, cycle_id LIMIT ?", userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	reports := make([]model.CycleReport, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		var report model.CycleReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("decode cycle row: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle rows: %w", err)
	}
	return reports, nil
}
