package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseStamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// applyMark records step progress for a date. Callers run it inside the
// transaction that persists the step's output.
func applyMark(e execer, mark *RunMark) error {
	if mark == nil {
		return nil
	}
	now := nowStamp()
	_, err := e.Exec(`
		INSERT INTO day_runs (date, state, last_step, started_at, updated_at)
		VALUES (?, 'running', ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			state = 'running', last_step = excluded.last_step, failed_step = '', updated_at = excluded.updated_at`,
		formatDate(mark.Date), mark.Step, now, now,
	)
	if err != nil {
		return fmt.Errorf("marking step %s for %s: %w", mark.Step, formatDate(mark.Date), err)
	}
	return nil
}

// inTx runs fn in a transaction and applies mark before committing.
func (s *Store) inTx(mark *RunMark, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := applyMark(tx, mark); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Primary context ---

func (s *Store) GetPrimaryContext() (PrimaryContext, error) {
	var pc PrimaryContext
	var updated string
	err := s.db.QueryRow(`SELECT text, word_count, last_updated FROM primary_context WHERE id = 1`).
		Scan(&pc.Text, &pc.WordCount, &updated)
	if err == sql.ErrNoRows {
		return PrimaryContext{}, ErrNotFound
	}
	if err != nil {
		return PrimaryContext{}, err
	}
	if pc.LastUpdated, err = parseStamp(updated); err != nil {
		return PrimaryContext{}, err
	}
	return pc, nil
}

func (s *Store) SavePrimaryContext(pc PrimaryContext, mark *RunMark) error {
	return s.inTx(mark, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO primary_context (id, text, word_count, last_updated) VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET text = excluded.text, word_count = excluded.word_count, last_updated = excluded.last_updated`,
			pc.Text, pc.WordCount, pc.LastUpdated.UTC().Format(time.RFC3339),
		)
		return err
	})
}

// --- Short-term memory ---

func (s *Store) GetShortTermMemory() (ShortTermMemory, error) {
	var m ShortTermMemory
	var from, to, updated string
	err := s.db.QueryRow(`SELECT text, word_count, covered_from, covered_to, last_updated FROM short_term_memory WHERE id = 1`).
		Scan(&m.Text, &m.WordCount, &from, &to, &updated)
	if err == sql.ErrNoRows {
		return ShortTermMemory{}, ErrNotFound
	}
	if err != nil {
		return ShortTermMemory{}, err
	}
	if m.CoveredFrom, err = parseDate(from); err != nil {
		return ShortTermMemory{}, err
	}
	if m.CoveredTo, err = parseDate(to); err != nil {
		return ShortTermMemory{}, err
	}
	if m.LastUpdated, err = parseStamp(updated); err != nil {
		return ShortTermMemory{}, err
	}
	return m, nil
}

func (s *Store) SaveShortTermMemory(m ShortTermMemory, mark *RunMark) error {
	return s.inTx(mark, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO short_term_memory (id, text, word_count, covered_from, covered_to, last_updated) VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET text = excluded.text, word_count = excluded.word_count,
				covered_from = excluded.covered_from, covered_to = excluded.covered_to, last_updated = excluded.last_updated`,
			m.Text, m.WordCount, formatDate(m.CoveredFrom), formatDate(m.CoveredTo), m.LastUpdated.UTC().Format(time.RFC3339),
		)
		return err
	})
}

// --- Daily summaries ---

const dailyColumns = `date, text, word_count, transcript_ref, created_at, updated_at`

func scanDaily(sc interface{ Scan(...interface{}) error }) (DailySummary, error) {
	var d DailySummary
	var date, created, updated string
	if err := sc.Scan(&date, &d.Text, &d.WordCount, &d.TranscriptRef, &created, &updated); err != nil {
		return DailySummary{}, err
	}
	var err error
	if d.Date, err = parseDate(date); err != nil {
		return DailySummary{}, err
	}
	if d.CreatedAt, err = parseStamp(created); err != nil {
		return DailySummary{}, err
	}
	if d.UpdatedAt, err = parseStamp(updated); err != nil {
		return DailySummary{}, err
	}
	return d, nil
}

func (s *Store) GetDailySummary(date time.Time) (DailySummary, error) {
	d, err := scanDaily(s.db.QueryRow(`SELECT `+dailyColumns+` FROM daily_summaries WHERE date = ?`, formatDate(date)))
	if err == sql.ErrNoRows {
		return DailySummary{}, ErrNotFound
	}
	return d, err
}

// SaveDailySummary inserts or overwrites the summary for d.Date. The created_at
// of an existing row is preserved.
func (s *Store) SaveDailySummary(d DailySummary, mark *RunMark) error {
	return s.inTx(mark, func(tx *sql.Tx) error {
		now := nowStamp()
		_, err := tx.Exec(`
			INSERT INTO daily_summaries (`+dailyColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET text = excluded.text, word_count = excluded.word_count,
				transcript_ref = excluded.transcript_ref, updated_at = excluded.updated_at`,
			formatDate(d.Date), d.Text, d.WordCount, d.TranscriptRef, now, now,
		)
		return err
	})
}

// ListDailySummaries returns summaries with from <= date <= to, ascending.
func (s *Store) ListDailySummaries(from, to time.Time) ([]DailySummary, error) {
	rows, err := s.db.Query(`SELECT `+dailyColumns+` FROM daily_summaries WHERE date >= ? AND date <= ? ORDER BY date ASC`,
		formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DailySummary
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) CountDailySummaries() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_summaries`).Scan(&n)
	return n, err
}

// rollupSpans maps a rollup tier to its table and period columns.
var rollupSpans = map[string][3]string{
	"weekly":  {"weekly_summaries", "week_start", "week_end"},
	"monthly": {"monthly_summaries", "month_start", "month_end"},
}

// DailyDatesWithoutRollup returns the dates of daily summaries that no
// summary of the given rollup tier ("weekly" or "monthly") covers, ascending.
func (s *Store) DailyDatesWithoutRollup(tier string) ([]time.Time, error) {
	span, ok := rollupSpans[tier]
	if !ok {
		return nil, fmt.Errorf("unknown rollup tier %q", tier)
	}
	rows, err := s.db.Query(`
		SELECT d.date FROM daily_summaries d
		WHERE NOT EXISTS (
			SELECT 1 FROM ` + span[0] + ` r WHERE d.date BETWEEN r.` + span[1] + ` AND r.` + span[2] + `
		)
		ORDER BY d.date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := parseDate(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Weekly summaries ---

const weeklyColumns = `week, week_start, week_end, text, word_count, daily_refs, created_at`

func scanWeekly(sc interface{ Scan(...interface{}) error }) (WeeklySummary, error) {
	var w WeeklySummary
	var start, end, refs, created string
	if err := sc.Scan(&w.Week, &start, &end, &w.Text, &w.WordCount, &refs, &created); err != nil {
		return WeeklySummary{}, err
	}
	var err error
	if w.WeekStart, err = parseDate(start); err != nil {
		return WeeklySummary{}, err
	}
	if w.WeekEnd, err = parseDate(end); err != nil {
		return WeeklySummary{}, err
	}
	if w.CreatedAt, err = parseStamp(created); err != nil {
		return WeeklySummary{}, err
	}
	if err := json.Unmarshal([]byte(refs), &w.DailyRefs); err != nil {
		return WeeklySummary{}, fmt.Errorf("decoding daily refs for %s: %w", w.Week, err)
	}
	return w, nil
}

func (s *Store) GetWeeklySummary(week string) (WeeklySummary, error) {
	w, err := scanWeekly(s.db.QueryRow(`SELECT `+weeklyColumns+` FROM weekly_summaries WHERE week = ?`, week))
	if err == sql.ErrNoRows {
		return WeeklySummary{}, ErrNotFound
	}
	return w, err
}

// InsertWeeklySummary stores w unless the week already has a summary.
// It reports whether a row was written.
func (s *Store) InsertWeeklySummary(w WeeklySummary) (bool, error) {
	refs, err := json.Marshal(w.DailyRefs)
	if err != nil {
		return false, fmt.Errorf("encoding daily refs: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT INTO weekly_summaries (`+weeklyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(week) DO NOTHING`,
		w.Week, formatDate(w.WeekStart), formatDate(w.WeekEnd), w.Text, w.WordCount, string(refs), nowStamp(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListWeeklySummaries returns weeks starting within [from, to], ascending.
func (s *Store) ListWeeklySummaries(from, to time.Time) ([]WeeklySummary, error) {
	rows, err := s.db.Query(`SELECT `+weeklyColumns+` FROM weekly_summaries WHERE week_start >= ? AND week_start <= ? ORDER BY week_start ASC`,
		formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []WeeklySummary
	for rows.Next() {
		w, err := scanWeekly(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// --- Monthly summaries ---

const monthlyColumns = `month, month_start, month_end, text, word_count, refs, created_at`

func scanMonthly(sc interface{ Scan(...interface{}) error }) (MonthlySummary, error) {
	var m MonthlySummary
	var start, end, refs, created string
	if err := sc.Scan(&m.Month, &start, &end, &m.Text, &m.WordCount, &refs, &created); err != nil {
		return MonthlySummary{}, err
	}
	var err error
	if m.MonthStart, err = parseDate(start); err != nil {
		return MonthlySummary{}, err
	}
	if m.MonthEnd, err = parseDate(end); err != nil {
		return MonthlySummary{}, err
	}
	if m.CreatedAt, err = parseStamp(created); err != nil {
		return MonthlySummary{}, err
	}
	if err := json.Unmarshal([]byte(refs), &m.Refs); err != nil {
		return MonthlySummary{}, fmt.Errorf("decoding refs for %s: %w", m.Month, err)
	}
	return m, nil
}

func (s *Store) GetMonthlySummary(month string) (MonthlySummary, error) {
	m, err := scanMonthly(s.db.QueryRow(`SELECT `+monthlyColumns+` FROM monthly_summaries WHERE month = ?`, month))
	if err == sql.ErrNoRows {
		return MonthlySummary{}, ErrNotFound
	}
	return m, err
}

// InsertMonthlySummary stores m unless the month already has a summary.
func (s *Store) InsertMonthlySummary(m MonthlySummary) (bool, error) {
	refs, err := json.Marshal(m.Refs)
	if err != nil {
		return false, fmt.Errorf("encoding refs: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT INTO monthly_summaries (`+monthlyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(month) DO NOTHING`,
		m.Month, formatDate(m.MonthStart), formatDate(m.MonthEnd), m.Text, m.WordCount, string(refs), nowStamp(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) ListMonthlySummaries(from, to time.Time) ([]MonthlySummary, error) {
	rows, err := s.db.Query(`SELECT `+monthlyColumns+` FROM monthly_summaries WHERE month_start >= ? AND month_start <= ? ORDER BY month_start ASC`,
		formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MonthlySummary
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// TierCounts returns the number of stored summaries per tier.
func (s *Store) TierCounts() (map[string]int, error) {
	counts := make(map[string]int, 3)
	for tier, table := range map[string]string{
		"daily":   "daily_summaries",
		"weekly":  "weekly_summaries",
		"monthly": "monthly_summaries",
	} {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[tier] = n
	}
	return counts, nil
}
