// Package consolidation folds each day's transcript into the memory tiers.
//
// A date moves through a fixed sequence of steps. Each step's output is
// committed together with the step marker, so a failed run resumes after
// the last step that completed and never leaves a half-written tier.
package consolidation

// Steps of a day's consolidation, in order.
const (
	StepTranscribed           = "transcribed"
	StepDailySummarized       = "daily_summarized"
	StepPrimaryContextUpdated = "primary_context_updated"
	StepShortTermUpdated      = "short_term_updated"
	StepEmbedded              = "embedded"
	StepRollupChecked         = "rollup_checked"
	StepCompleted             = "completed"
)

var stepOrder = []string{
	StepTranscribed,
	StepDailySummarized,
	StepPrimaryContextUpdated,
	StepShortTermUpdated,
	StepEmbedded,
	StepRollupChecked,
	StepCompleted,
}

// stepIndex returns the position of step in stepOrder, or -1 for the empty
// step of a run that has not committed anything yet.
func stepIndex(step string) int {
	for i, s := range stepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// Steps returns the step names in execution order.
func Steps() []string {
	out := make([]string, len(stepOrder))
	copy(out, stepOrder)
	return out
}
