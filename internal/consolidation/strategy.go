package consolidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// MergeStrategy produces tier text. The pipeline validates every proposal
// against the tier budgets; a strategy only has to aim for them.
type MergeStrategy interface {
	// SummarizeDay condenses one day's transcript.
	SummarizeDay(ctx context.Context, in DayInput) (string, error)
	// SummarizeWeek condenses the seven daily summaries of an ISO week.
	SummarizeWeek(ctx context.Context, week string, dailies []tiers.DailySummary) (string, error)
	// SummarizeMonth condenses the weekly and daily summaries of a month.
	SummarizeMonth(ctx context.Context, month string, parts []tiers.Summary) (string, error)
	// MergePrimary folds a daily summary into the primary context.
	MergePrimary(ctx context.Context, in PrimaryInput) (string, error)
	// MergeShortTerm folds a daily summary into the short-term memory.
	MergeShortTerm(ctx context.Context, in ShortTermInput) (string, error)
	// Resize compresses or expands a proposal that missed its word band.
	Resize(ctx context.Context, in ResizeInput) (string, error)
}

// DayInput is the material for a daily summary.
type DayInput struct {
	Date       time.Time
	Language   string
	Transcript string
	Primary    string // current primary context, for grounding
	MaxWords   int
}

// PrimaryInput is the material for a primary context update.
type PrimaryInput struct {
	Date     time.Time
	Current  string
	Daily    string
	MaxWords int
}

// ShortTermInput is the material for a short-term memory update.
type ShortTermInput struct {
	Date         time.Time
	WindowStart  time.Time
	Current      string
	Daily        string
	Major        string // current primary context, never expires
	RecentWeekly string
	Window       []tiers.DailySummary
	Missing      []string // window dates the previous proposal left out
	MinWords     int
	MaxWords     int
}

// Resize targets.
const (
	TargetPrimary   = "primary"
	TargetShortTerm = "short_term"
)

// ResizeInput asks for text to be brought into [MinWords, MaxWords].
type ResizeInput struct {
	Target      string
	Text        string
	WindowStart time.Time
	MinWords    int
	MaxWords    int
}

// LLMStrategy asks a chat model for every proposal.
type LLMStrategy struct {
	engine engine.Engine
	model  string
}

// NewLLMStrategy creates an LLMStrategy using the given engine and chat model.
func NewLLMStrategy(e engine.Engine, model string) *LLMStrategy {
	return &LLMStrategy{engine: e, model: model}
}

func (s *LLMStrategy) SummarizeDay(ctx context.Context, in DayInput) (string, error) {
	return s.complete(ctx, "daily summary", dailyPrompt(in))
}

func (s *LLMStrategy) SummarizeWeek(ctx context.Context, week string, dailies []tiers.DailySummary) (string, error) {
	return s.complete(ctx, "weekly summary", weeklyPrompt(week, dailies))
}

func (s *LLMStrategy) SummarizeMonth(ctx context.Context, month string, parts []tiers.Summary) (string, error) {
	return s.complete(ctx, "monthly summary", monthlyPrompt(month, parts))
}

func (s *LLMStrategy) MergePrimary(ctx context.Context, in PrimaryInput) (string, error) {
	return s.complete(ctx, "primary context", primaryPrompt(in))
}

func (s *LLMStrategy) MergeShortTerm(ctx context.Context, in ShortTermInput) (string, error) {
	return s.complete(ctx, "short-term memory", shortTermPrompt(in))
}

func (s *LLMStrategy) Resize(ctx context.Context, in ResizeInput) (string, error) {
	return s.complete(ctx, "resize", resizePrompt(in))
}

func (s *LLMStrategy) complete(ctx context.Context, what string, msgs []engine.Message) (string, error) {
	out, err := s.engine.Chat(ctx, s.model, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("generating %s: %w", what, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("generating %s: empty response", what)
	}
	return out, nil
}
