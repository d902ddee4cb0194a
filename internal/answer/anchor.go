package answer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
)

// Tier is the anchor box style selected for a score.
type Tier int

const (
	TierNone Tier = iota // score out of range, nothing drawn
	TierBlank
	TierIncorrect
	TierPartial
	TierCorrect
)

func (t Tier) String() string {
	switch t {
	case TierBlank:
		return "blank"
	case TierIncorrect:
		return "incorrect"
	case TierPartial:
		return "partial"
	case TierCorrect:
		return "correct"
	}
	return "none"
}

// AnchorTier selects the anchor style for a score on the [0, 1] scale.
// Template mode always selects the blank style.
func AnchorTier(score float64, template bool) Tier {
	switch {
	case template:
		return TierBlank
	case math.IsNaN(score) || score < 0 || score > 1:
		return TierNone
	case score == 0:
		return TierIncorrect
	case score < 1:
		return TierPartial
	}
	return TierCorrect
}

func renderAnchor(d *document.Document, a config.Anchors, score float64, template bool) {
	switch AnchorTier(score, template) {
	case TierBlank:
		d.Box(a.Blank, a.Blank.Label)
	case TierIncorrect:
		d.Box(a.Incorrect, a.Incorrect.Label)
	case TierPartial:
		d.Box(a.Partial, fmt.Sprintf("%s (%.2f)", a.Partial.Label, score))
	case TierCorrect:
		d.Box(a.Correct, a.Correct.Label)
	default:
		slog.Warn("score outside [0, 1], anchor box skipped", "score", score)
	}
}
