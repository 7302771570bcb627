// internal/game/session.go
//
// Rules for a single phrase scramble round.
// Responsibilities:
//   - Deal a round: shuffle the target at the session's difficulty.
//   - Apply swaps and tile selections, re-scoring after every change.
//   - Track state transitions: playing → won/lost (attempts or time limit).
//   - Suggest a corrective swap.
//
// Notes:
//   - Scoring is delegated to the align package; this file only keeps the
//     bookkeeping around it.
//   - Time is always passed in by the caller so rounds can be replayed in tests.

package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/scramble/apps/go-server/internal/align"
)

// Options configures a new round.
type Options struct {
	PlayerID    string
	Language    string
	Level       string
	Difficulty  float64
	Daily       string
	Target      string
	MaxAttempts int
	TimeLimit   time.Duration
	Rand        align.Rand // nil uses align.SystemRand
	Now         time.Time
}

// New deals a round from opts.
// A shuffle that happens to reproduce the target counts as an immediate win.
func New(opts Options) *Session {
	rng := opts.Rand
	if rng == nil {
		rng = align.SystemRand()
	}
	s := &Session{
		ID:          uuid.NewString(),
		PlayerID:    opts.PlayerID,
		Language:    opts.Language,
		Level:       opts.Level,
		Difficulty:  opts.Difficulty,
		Daily:       opts.Daily,
		MaxAttempts: opts.MaxAttempts,
		TimeLimit:   opts.TimeLimit,
		rng:         rng,
	}
	s.deal(opts.Target, opts.Now)
	return s
}

// Reset starts a new round in the same session with a new target.
func (s *Session) Reset(target string, now time.Time) {
	s.deal(target, now)
}

// SetLevel changes the difficulty used by the next Reset.
func (s *Session) SetLevel(name string, value float64) {
	s.Level, s.Difficulty = name, value
}

func (s *Session) deal(target string, now time.Time) {
	s.RoundID = uuid.NewString()
	s.Target = target
	s.Shuffled = align.Shuffle(target, s.Difficulty, s.rng)
	s.current = []rune(s.Shuffled)
	s.Attempts = 0
	s.StartedAt = now
	s.endedAt = time.Time{}
	s.Selected = -1
	s.Status = StatusPlaying
	s.VictoryTime = 0
	s.Recorded = false
	s.refresh(now)
}

// Current returns the player's working phrase.
func (s *Session) Current() string { return string(s.current) }

// Len is the phrase length in code points (tiles).
func (s *Session) Len() int { return len(s.current) }

// Finished reports whether the round is won or lost.
func (s *Session) Finished() bool { return s.Status != StatusPlaying }

// Swap exchanges the tiles at i and j and re-scores the phrase.
// Every accepted swap counts as one attempt, including i == j.
func (s *Session) Swap(i, j int, now time.Time) error {
	s.Tick(now)
	if s.Finished() {
		return ErrFinished
	}
	if !s.valid(i) || !s.valid(j) {
		return ErrInvalidIndex
	}
	s.current[i], s.current[j] = s.current[j], s.current[i]
	s.Attempts++
	s.Selected = -1
	s.refresh(now)
	return nil
}

// Select handles a tile pick. The first pick marks a tile, a second pick on
// another tile swaps the two, and picking the marked tile again unmarks it.
// Positions outside the phrase are ignored.
func (s *Session) Select(i int, now time.Time) error {
	s.Tick(now)
	if s.Finished() {
		return ErrFinished
	}
	if !s.valid(i) {
		return nil
	}
	switch {
	case s.Selected < 0:
		s.Selected = i
	case s.Selected == i:
		s.Selected = -1
	default:
		return s.Swap(s.Selected, i, now)
	}
	return nil
}

// Tick applies the time limit and returns the elapsed round time. The clock
// stops at the victory time for won rounds and at the moment of loss for
// lost ones.
func (s *Session) Tick(now time.Time) time.Duration {
	switch s.Status {
	case StatusWon:
		return s.VictoryTime
	case StatusLost:
		return s.endedAt.Sub(s.StartedAt)
	}
	elapsed := now.Sub(s.StartedAt)
	if s.TimeLimit > 0 && elapsed > s.TimeLimit {
		s.lose(now)
	}
	return elapsed
}

// Hint suggests a swap that fixes the first misplaced tile without
// disturbing a tile that is already in place, when possible.
func (s *Session) Hint() (i, j int, ok bool) {
	if s.Finished() {
		return 0, 0, false
	}
	target := []rune(s.Target)
	n := min(len(target), len(s.current))
	for i = 0; i < n; i++ {
		if s.current[i] == target[i] {
			continue
		}
		fallback := -1
		for j = i + 1; j < n; j++ {
			if s.current[j] != target[i] {
				continue
			}
			if s.current[j] != target[j] {
				return i, j, true
			}
			if fallback < 0 {
				fallback = j
			}
		}
		if fallback >= 0 {
			return i, fallback, true
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// Snapshot applies the time limit and returns the client view.
func (s *Session) Snapshot(now time.Time) Snapshot {
	elapsed := s.Tick(now)
	tiles := make([]string, len(s.current))
	for k, r := range s.current {
		tiles[k] = string(r)
	}
	snap := Snapshot{
		GameID:           s.ID,
		RoundID:          s.RoundID,
		Language:         s.Language,
		Difficulty:       s.Level,
		DifficultyValue:  s.Difficulty,
		Daily:            s.Daily,
		Current:          string(s.current),
		Tiles:            tiles,
		Attempts:         s.Attempts,
		MaxAttempts:      s.MaxAttempts,
		ElapsedSeconds:   elapsed.Seconds(),
		TimeLimitSeconds: s.TimeLimit.Seconds(),
		Similarity:       s.Eval.Similarity,
		Distance:         s.Eval.Distance,
		Message:          s.Eval.Message,
		Tier:             s.Eval.Tier,
		Tone:             s.Eval.Tone,
		Selected:         s.Selected,
		State:            s.Status,
	}
	if s.Finished() {
		snap.Target = s.Target
	}
	if s.Status == StatusWon {
		snap.VictorySeconds = s.VictoryTime.Seconds()
	}
	return snap
}

// refresh re-scores the working phrase and applies win/loss rules.
func (s *Session) refresh(now time.Time) {
	s.Eval = align.Evaluate(s.Target, string(s.current))
	if s.Status != StatusPlaying {
		return
	}
	if s.Eval.Similarity == 1.0 {
		s.Status = StatusWon
		s.VictoryTime = now.Sub(s.StartedAt)
		s.endedAt = now
		return
	}
	if s.MaxAttempts > 0 && s.Attempts >= s.MaxAttempts {
		s.lose(now)
	}
}

func (s *Session) lose(now time.Time) {
	s.Status = StatusLost
	s.Selected = -1
	s.endedAt = now
}

func (s *Session) valid(i int) bool { return i >= 0 && i < len(s.current) }
