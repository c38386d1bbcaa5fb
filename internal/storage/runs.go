package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Day run states.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// --- Transcripts ---

func (s *Store) SaveTranscript(t Transcript, mark *RunMark) error {
	sources, err := json.Marshal(t.Sources)
	if err != nil {
		return fmt.Errorf("encoding transcript sources: %w", err)
	}
	if t.Sources == nil {
		sources = []byte("[]")
	}
	return s.inTx(mark, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO transcripts (date, text, language, sources, created_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET text = excluded.text, language = excluded.language, sources = excluded.sources`,
			formatDate(t.Date), t.Text, t.Language, string(sources), nowStamp(),
		)
		return err
	})
}

func (s *Store) GetTranscript(date time.Time) (Transcript, error) {
	var t Transcript
	var d, sources, created string
	err := s.db.QueryRow(`SELECT date, text, language, sources, created_at FROM transcripts WHERE date = ?`, formatDate(date)).
		Scan(&d, &t.Text, &t.Language, &sources, &created)
	if err == sql.ErrNoRows {
		return Transcript{}, ErrNotFound
	}
	if err != nil {
		return Transcript{}, err
	}
	if t.Date, err = parseDate(d); err != nil {
		return Transcript{}, err
	}
	if t.CreatedAt, err = parseStamp(created); err != nil {
		return Transcript{}, err
	}
	if err := json.Unmarshal([]byte(sources), &t.Sources); err != nil {
		return Transcript{}, fmt.Errorf("decoding transcript sources: %w", err)
	}
	return t, nil
}

// --- Day runs ---

const dayRunColumns = `date, state, last_step, failed_step, last_error, attempts, started_at, updated_at`

func scanDayRun(sc interface{ Scan(...interface{}) error }) (DayRun, error) {
	var r DayRun
	var date, started, updated string
	if err := sc.Scan(&date, &r.State, &r.LastStep, &r.FailedStep, &r.LastError, &r.Attempts, &started, &updated); err != nil {
		return DayRun{}, err
	}
	var err error
	if r.Date, err = parseDate(date); err != nil {
		return DayRun{}, err
	}
	if r.StartedAt, err = parseStamp(started); err != nil {
		return DayRun{}, err
	}
	if r.UpdatedAt, err = parseStamp(updated); err != nil {
		return DayRun{}, err
	}
	return r, nil
}

func (s *Store) GetDayRun(date time.Time) (DayRun, error) {
	r, err := scanDayRun(s.db.QueryRow(`SELECT `+dayRunColumns+` FROM day_runs WHERE date = ?`, formatDate(date)))
	if err == sql.ErrNoRows {
		return DayRun{}, ErrNotFound
	}
	return r, err
}

// StartDayRun moves a date into the running state and counts the attempt.
// The last successful step is kept so the pipeline can resume after it.
func (s *Store) StartDayRun(date time.Time) (DayRun, error) {
	now := nowStamp()
	_, err := s.db.Exec(`
		INSERT INTO day_runs (date, state, attempts, started_at, updated_at) VALUES (?, 'running', 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET state = 'running', attempts = attempts + 1, updated_at = excluded.updated_at`,
		formatDate(date), now, now,
	)
	if err != nil {
		return DayRun{}, fmt.Errorf("starting run for %s: %w", formatDate(date), err)
	}
	return s.GetDayRun(date)
}

// MarkStep records a completed step outside of any tier write.
func (s *Store) MarkStep(mark RunMark) error {
	return applyMark(s.db, &mark)
}

func (s *Store) FailDayRun(date time.Time, step, errMsg string) error {
	res, err := s.db.Exec(`UPDATE day_runs SET state = 'failed', failed_step = ?, last_error = ?, updated_at = ? WHERE date = ?`,
		step, errMsg, nowStamp(), formatDate(date))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CompleteDayRun(date time.Time, step string) error {
	res, err := s.db.Exec(`UPDATE day_runs SET state = 'completed', last_step = ?, failed_step = '', last_error = '', updated_at = ? WHERE date = ?`,
		step, nowStamp(), formatDate(date))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDayRuns returns runs in the given state ordered by date, or all runs
// when state is empty.
func (s *Store) ListDayRuns(state string) ([]DayRun, error) {
	query := `SELECT ` + dayRunColumns + ` FROM day_runs`
	var args []interface{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DayRun
	for rows.Next() {
		r, err := scanDayRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// LatestCompletedDate returns the most recent date whose run completed.
// ok is false when no run has completed yet.
func (s *Store) LatestCompletedDate() (date time.Time, ok bool, err error) {
	var raw sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(date) FROM day_runs WHERE state = ?`, RunCompleted).Scan(&raw); err != nil {
		return time.Time{}, false, err
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	date, err = parseDate(raw.String)
	return date, err == nil, err
}

// ListDayRunsBetween returns runs with from <= date <= to, ascending.
func (s *Store) ListDayRunsBetween(from, to time.Time) ([]DayRun, error) {
	rows, err := s.db.Query(`SELECT `+dayRunColumns+` FROM day_runs WHERE date >= ? AND date <= ? ORDER BY date ASC`,
		formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DayRun
	for rows.Next() {
		r, err := scanDayRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
