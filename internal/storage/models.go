package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DateLayout is the on-disk representation of calendar dates.
const DateLayout = "2006-01-02"

type PrimaryContext struct {
	Text        string
	WordCount   int
	LastUpdated time.Time
}

type ShortTermMemory struct {
	Text        string
	WordCount   int
	CoveredFrom time.Time
	CoveredTo   time.Time
	LastUpdated time.Time
}

type DailySummary struct {
	Date          time.Time
	Text          string
	WordCount     int
	TranscriptRef string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type WeeklySummary struct {
	Week      string // ISO week key, e.g. "2025-W03"
	WeekStart time.Time
	WeekEnd   time.Time
	Text      string
	WordCount int
	DailyRefs []string
	CreatedAt time.Time
}

type MonthlySummary struct {
	Month      string // "2025-01"
	MonthStart time.Time
	MonthEnd   time.Time
	Text       string
	WordCount  int
	Refs       []string // weekly keys and daily dates
	CreatedAt  time.Time
}

type Transcript struct {
	Date      time.Time
	Text      string
	Language  string
	Sources   []string
	CreatedAt time.Time
}

// DayRun is the persisted pipeline progress of one date.
type DayRun struct {
	Date       time.Time
	State      string // "pending", "running", "completed", "failed"
	LastStep   string
	FailedStep string
	LastError  string
	Attempts   int
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// RunMark advances a DayRun to Step inside the same transaction as a tier write.
type RunMark struct {
	Date time.Time
	Step string
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
