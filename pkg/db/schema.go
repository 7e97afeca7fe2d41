package db

// Schema defines the SQLite schema for sync run history: one row per run
// and one row per (image, slave) outcome within it.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    master TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    total_images INTEGER NOT NULL,
    synced INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    failed INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    image_name TEXT NOT NULL,
    slave_name TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('synced', 'skipped', 'failed')),
    reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_run_id ON run_outcomes(run_id);
`

// Run is one recorded sync run.
type Run struct {
	ID          int64
	Master      string
	StartedAt   string
	FinishedAt  string
	TotalImages int
	Synced      int
	Skipped     int
	Failed      int
}

// Outcome is one recorded (image, slave) result within a run.
type Outcome struct {
	ID        int64
	RunID     int64
	ImageName string
	SlaveName string
	Status    string
	Reason    string
}
