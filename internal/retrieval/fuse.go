package retrieval

import (
	"sort"
	"time"
)

// Candidate is one record's score in a single ranking.
type Candidate struct {
	ID    string
	Score float64
}

// Weights balance vector and lexical evidence in the fused score.
type Weights struct {
	Vector  float64
	Lexical float64
}

// DefaultWeights favors semantic similarity over keyword overlap.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Lexical: 0.3}
}

// Fused is a candidate after score fusion.
type Fused struct {
	ID      string
	Score   float64
	Vector  float64
	Lexical float64
	Date    time.Time
}

// Normalize min-max scales scores into [0, 1]. When every candidate has the
// same score there is no spread to scale; non-zero scores map to 1 and zero
// stays 0.
func Normalize(cands []Candidate) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	lo, hi := cands[0].Score, cands[0].Score
	for _, c := range cands[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}

	out := make([]Candidate, len(cands))
	for i, c := range cands {
		var v float64
		switch {
		case hi > lo:
			v = (c.Score - lo) / (hi - lo)
		case c.Score != 0:
			v = 1
		}
		out[i] = Candidate{ID: c.ID, Score: v}
	}
	return out
}

// Fuse combines normalized vector and lexical candidates. A record missing
// from one ranking contributes 0 for that term. Results are ordered by fused
// score descending, then by more recent date, then by ID.
func Fuse(vector, lexical []Candidate, dates map[string]time.Time, w Weights) []Fused {
	byID := make(map[string]*Fused, len(vector)+len(lexical))
	var order []string
	get := func(id string) *Fused {
		f, ok := byID[id]
		if !ok {
			f = &Fused{ID: id, Date: dates[id]}
			byID[id] = f
			order = append(order, id)
		}
		return f
	}
	for _, c := range vector {
		get(c.ID).Vector = c.Score
	}
	for _, c := range lexical {
		get(c.ID).Lexical = c.Score
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		f := byID[id]
		f.Score = w.Vector*f.Vector + w.Lexical*f.Lexical
		out = append(out, *f)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
