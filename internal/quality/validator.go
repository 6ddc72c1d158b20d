// Package quality gates finished renders before they are released to the
// owner. Scoring is heuristic: it flags the mismatches between content risk
// and backend capability that correlate with unusable output.
package quality

import (
	"context"
	"strings"

	"reelgen/internal/domain"
)

// Input is everything the scorer may inspect about a finished job.
type Input struct {
	Script            string
	RiskLevel         domain.RiskLevel
	BackendTags       []string
	RequestedSeconds  int
	DispatchedSeconds int
	ResultURL         string
}

// Scorer assigns a quality score in [0, 1] plus a human-readable issue list.
type Scorer interface {
	Score(ctx context.Context, in Input) (float64, []string, error)
}

// Result is the validation verdict for one job.
type Result struct {
	Score  float64
	Issues []string
	Pass   bool
}

// Validator applies a configured threshold over a Scorer.
type Validator struct {
	scorer   Scorer
	minScore float64
}

// NewValidator builds a validator; scores below minScore fail.
func NewValidator(scorer Scorer, minScore float64) *Validator {
	return &Validator{scorer: scorer, minScore: minScore}
}

// Validate scores the input and applies the threshold.
func (v *Validator) Validate(ctx context.Context, in Input) (Result, error) {
	score, issues, err := v.scorer.Score(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return Result{Score: score, Issues: issues, Pass: score >= v.minScore}, nil
}

// HeuristicScorer is the default scorer. It never fails a render outright;
// it accumulates deductions for known risk/capability mismatches.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(_ context.Context, in Input) (float64, []string, error) {
	score := 1.0
	var issues []string

	if strings.TrimSpace(in.ResultURL) == "" {
		return 0, []string{"no result delivered by provider"}, nil
	}

	tags := make(map[string]bool, len(in.BackendTags))
	for _, t := range in.BackendTags {
		tags[t] = true
	}

	switch in.RiskLevel {
	case domain.RiskHigh:
		if !tags["hands"] && !tags["detail"] {
			score -= 0.4
			issues = append(issues, "fine-motor content rendered without a detail-capable backend")
		}
	case domain.RiskMedium:
		if !tags["text"] && !tags["legibility"] {
			score -= 0.2
			issues = append(issues, "legibility-dependent content rendered without a text-capable backend")
		}
	}

	if in.DispatchedSeconds < in.RequestedSeconds {
		score -= 0.15
		issues = append(issues, "requested duration exceeded backend maximum; delivered a shorter cut")
	}

	if score < 0 {
		score = 0
	}
	return score, issues, nil
}

var _ Scorer = HeuristicScorer{}
