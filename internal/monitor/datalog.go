package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cansat-altimeter/internal/telemetry"
)

const datalogSchema = `
CREATE TABLE IF NOT EXISTS samples (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	t_unix_ns INTEGER NOT NULL,
	key       TEXT    NOT NULL,
	value     REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_key_t ON samples(key, t_unix_ns);
`

// Datalog persists every parsed value so a flight can be analysed after
// the monitor has exited.
type Datalog struct {
	db     *sql.DB
	insert *sql.Stmt
}

func OpenDatalog(path string) (*Datalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("datalog: open %s: %w", path, err)
	}
	// One writer; sqlite serialises anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(datalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datalog: schema: %w", err)
	}
	stmt, err := db.Prepare(`INSERT INTO samples (t_unix_ns, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datalog: prepare: %w", err)
	}
	return &Datalog{db: db, insert: stmt}, nil
}

func (d *Datalog) Insert(t time.Time, key telemetry.Key, v float64) error {
	if _, err := d.insert.Exec(t.UnixNano(), string(key), v); err != nil {
		return fmt.Errorf("datalog: insert: %w", err)
	}
	return nil
}

func (d *Datalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("datalog: count: %w", err)
	}
	return n, nil
}

// Recent returns up to n most recent points for key, oldest first.
func (d *Datalog) Recent(ctx context.Context, key telemetry.Key, n int) ([]Point, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT t_unix_ns, value FROM samples WHERE key = ? ORDER BY t_unix_ns DESC, id DESC LIMIT ?`,
		string(key), n)
	if err != nil {
		return nil, fmt.Errorf("datalog: query: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var ns int64
		var v float64
		if err := rows.Scan(&ns, &v); err != nil {
			return nil, fmt.Errorf("datalog: scan: %w", err)
		}
		out = append(out, Point{T: time.Unix(0, ns).UTC(), V: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datalog: rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (d *Datalog) Close() error {
	_ = d.insert.Close()
	return d.db.Close()
}
