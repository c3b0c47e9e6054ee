package scr_nav

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const journalSchema = `
	CREATE TABLE IF NOT EXISTS decisions (
		run_id       TEXT    NOT NULL,
		seq          INTEGER NOT NULL,
		ts           TIMESTAMP NOT NULL,
		branch       TEXT    NOT NULL,
		linear       DOUBLE,
		angular      DOUBLE,
		published    BOOLEAN,
		min_range    DOUBLE,
		left_mean    DOUBLE,
		center_mean  DOUBLE,
		right_mean   DOUBLE,
		pose_x       DOUBLE,
		pose_y       DOUBLE,
		pose_theta   DOUBLE,
		distance     DOUBLE,
		angle_diff   DOUBLE,
		PRIMARY KEY (run_id, seq)
	);
`

// Journal appends every tick decision to a sqlite table for later review.
// It is write-only from the controller's point of view.
type Journal struct {
	db    *sql.DB
	runID string

	mu  sync.Mutex
	seq int64
}

// OpenJournal opens or creates the journal database at path and starts a new run.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %q", path)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}
	return &Journal{db: db, runID: uuid.NewString()}, nil
}

// RunID identifies the decisions recorded by this process.
func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

// Record appends one decision taken at ts for state st.
func (j *Journal) Record(ts time.Time, st ControllerState, d Decision) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	seq := j.seq + 1
	_, err := j.db.Exec(
		`INSERT INTO decisions (
			run_id, seq, ts, branch, linear, angular, published,
			min_range, left_mean, center_mean, right_mean,
			pose_x, pose_y, pose_theta, distance, angle_diff
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, seq, ts.UTC(), d.Branch.String(), d.Command.Linear, d.Command.Angular, d.Publish,
		d.Sectors.Min, d.Sectors.Left, d.Sectors.Center, d.Sectors.Right,
		st.Pose.X, st.Pose.Y, st.Pose.Theta, d.Goal.Distance, d.Goal.AngleDiff,
	)
	if err != nil {
		return errors.Wrap(err, "record decision")
	}
	j.seq = seq
	return nil
}

// Count returns how many decisions were recorded for runID.
func (j *Journal) Count(runID string) (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE run_id = ?`, runID).Scan(&n)
	return n, errors.Wrap(err, "count decisions")
}

// BranchCounts returns the number of decisions per branch name for runID.
func (j *Journal) BranchCounts(runID string) (map[string]int, error) {
	rows, err := j.db.Query(`SELECT branch, COUNT(*) FROM decisions WHERE run_id = ? GROUP BY branch`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query branch counts")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var branch string
		var n int
		if err := rows.Scan(&branch, &n); err != nil {
			return nil, errors.Wrap(err, "scan branch count")
		}
		out[branch] = n
	}
	return out, errors.Wrap(rows.Err(), "iterate branch counts")
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
