// Package tiers holds the memory tiers: the primary context, the rolling
// short-term memory and the daily, weekly and monthly summary sequences.
package tiers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/storage"
)

// Tier identifies a summary granularity.
type Tier string

const (
	TierDaily      Tier = "daily"
	TierWeekly     Tier = "weekly"
	TierMonthly    Tier = "monthly"
	TierTranscript Tier = "transcript"
)

// ParseTier validates a tier name given by a user.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierDaily, TierWeekly, TierMonthly:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q (want daily, weekly or monthly)", s)
	}
}

type (
	PrimaryContext  = storage.PrimaryContext
	ShortTermMemory = storage.ShortTermMemory
	DailySummary    = storage.DailySummary
	WeeklySummary   = storage.WeeklySummary
	MonthlySummary  = storage.MonthlySummary
)

// Summary is the tier-agnostic view returned by ListSummaries.
type Summary struct {
	Tier      Tier
	Key       string // date, ISO week or month key
	Date      time.Time
	Text      string
	WordCount int
}

// Limits are the word budgets enforced on writes.
type Limits struct {
	PrimaryMaxWords   int
	ShortTermMinWords int
	ShortTermMaxWords int
	ShortTermDays     int
}

// DefaultLimits returns the standard budgets.
func DefaultLimits() Limits {
	return Limits{
		PrimaryMaxWords:   500,
		ShortTermMinWords: 6000,
		ShortTermMaxWords: 7000,
		ShortTermDays:     14,
	}
}

var (
	ErrTierBudgetExceeded = errors.New("tier budget exceeded")
	ErrConflict           = errors.New("daily summary conflict")
	ErrDuplicateDate      = errors.New("daily summary already recorded")
	ErrRollupIntegrity    = errors.New("rollup constituents missing")
	ErrNotFound           = storage.ErrNotFound
)

// BudgetError reports a write rejected for its word count.
type BudgetError struct {
	Tier  string
	Words int
	Min   int
	Max   int
}

func (e *BudgetError) Error() string {
	if e.Min > 0 {
		return fmt.Sprintf("%s: %d words outside [%d, %d]", e.Tier, e.Words, e.Min, e.Max)
	}
	return fmt.Sprintf("%s: %d words exceeds %d", e.Tier, e.Words, e.Max)
}

func (e *BudgetError) Is(target error) bool { return target == ErrTierBudgetExceeded }

// RollupIntegrityError names the constituents a rollup is still waiting for.
type RollupIntegrityError struct {
	Period  string
	Missing []string
}

func (e *RollupIntegrityError) Error() string {
	return fmt.Sprintf("rollup %s: missing %s", e.Period, strings.Join(e.Missing, ", "))
}

func (e *RollupIntegrityError) Is(target error) bool { return target == ErrRollupIntegrity }

// WordCount counts whitespace-delimited words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
