// internal/align/feedback.go
//
// Feedback tiers over similarity.
// A tier is picked top-down from the similarity alone; the distance is only
// interpolated into the message. Short and long phrases at the same
// similarity therefore get the same wording.

package align

import "fmt"

// Tier is a band of similarity values with its own message.
type Tier int

const (
	TierLow        Tier = iota // < 0.3
	TierKeepTrying             // >= 0.3
	TierGood                   // >= 0.5
	TierVeryGood               // >= 0.7
	TierExcellent              // >= 0.9
	TierPerfect                // == 1.0
)

var tierNames = [...]string{
	TierLow:        "low",
	TierKeepTrying: "keep_trying",
	TierGood:       "good",
	TierVeryGood:   "very_good",
	TierExcellent:  "excellent",
	TierPerfect:    "perfect",
}

// String returns the stable wire name of the tier.
func (t Tier) String() string {
	if t < TierLow || t > TierPerfect {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// MarshalText lets tiers appear by name in JSON.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Classify maps a similarity to exactly one tier.
func Classify(similarity float64) Tier {
	switch {
	case similarity == 1.0:
		return TierPerfect
	case similarity >= 0.9:
		return TierExcellent
	case similarity >= 0.7:
		return TierVeryGood
	case similarity >= 0.5:
		return TierGood
	case similarity >= 0.3:
		return TierKeepTrying
	default:
		return TierLow
	}
}

// Message renders the tier's template for the given distance.
func (t Tier) Message(distance int) string {
	switch t {
	case TierPerfect:
		return "Perfect — correct phrase!"
	case TierExcellent:
		return fmt.Sprintf("Excellent! %d error(s) remaining", distance)
	case TierVeryGood:
		return fmt.Sprintf("Very good! %d error(s) to fix", distance)
	case TierGood:
		return fmt.Sprintf("Good progress! %d error(s) found", distance)
	case TierKeepTrying:
		return fmt.Sprintf("Keep trying! %d error(s) to fix", distance)
	default:
		return fmt.Sprintf("You can do better! %d error(s) found", distance)
	}
}

// Tone is a coarse colour band for rendering feedback.
type Tone string

const (
	TonePerfect Tone = "perfect"
	ToneGood    Tone = "good"
	ToneOK      Tone = "ok"
	ToneBad     Tone = "bad"
)

// ToneFor picks the display tone for a similarity.
// The bands are coarser than the tiers and do not line up with them.
func ToneFor(similarity float64) Tone {
	switch {
	case similarity == 1.0:
		return TonePerfect
	case similarity >= 0.7:
		return ToneGood
	case similarity >= 0.4:
		return ToneOK
	default:
		return ToneBad
	}
}

// Result is the full evaluation of a current phrase against its target.
type Result struct {
	Message    string  `json:"message"`
	Similarity float64 `json:"similarity"`
	Distance   int     `json:"distance"`
	Tier       Tier    `json:"tier"`
	Tone       Tone    `json:"tone"`
}

// Evaluate scores current against target.
func Evaluate(target, current string) Result {
	rt, rc := []rune(target), []rune(current)
	d := distance(rt, rc)
	sim := similarity(rt, rc, d)
	tier := Classify(sim)
	return Result{
		Message:    tier.Message(d),
		Similarity: sim,
		Distance:   d,
		Tier:       tier,
		Tone:       ToneFor(sim),
	}
}

// Feedback returns (message, similarity, distance) for current against target.
func Feedback(target, current string) (string, float64, int) {
	r := Evaluate(target, current)
	return r.Message, r.Similarity, r.Distance
}
