// internal/game/types.go
//
// Core type definitions for a phrase scramble round.
// Defines:
//   - Status: coarse lifecycle of a round (playing/won/lost).
//   - Session: state of a single round, owned by whoever created it.
//   - Snapshot: JSON view of a session handed to clients.

package game

import (
	"errors"
	"time"

	"github.com/robalobadob/scramble/apps/go-server/internal/align"
)

var (
	// ErrFinished is returned for moves on a round that is already won or lost.
	ErrFinished = errors.New("game finished")
	// ErrInvalidIndex is returned by Swap for positions outside the phrase.
	ErrInvalidIndex = errors.New("invalid index")
)

// Status is the lifecycle state of a round.
type Status string

const (
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

// Session holds the state of one round: the target phrase, the player's
// working copy, counters, timers and the latest evaluation.
//
// A Session is not safe for concurrent use. Concurrent mutation of the same
// session without external synchronization is undefined; the session store
// serializes access.
type Session struct {
	ID         string
	RoundID    string // new for every deal; results are keyed by it
	PlayerID   string
	Language   string
	Level      string  // difficulty level name
	Difficulty float64 // shuffle intensity of Level
	Daily      string  // UTC date key for daily rounds, empty otherwise

	Target   string // immutable for the round
	Shuffled string // the dealt arrangement
	current  []rune // code points, mutated by swaps

	Attempts    int
	MaxAttempts int
	TimeLimit   time.Duration
	StartedAt   time.Time
	endedAt     time.Time

	Eval        align.Result
	Selected    int // -1 when no tile is selected
	Status      Status
	VictoryTime time.Duration

	// Recorded is set by the owner once a finished round has been stored.
	Recorded bool

	rng align.Rand
}

// Snapshot is the client-facing view of a session.
// The target is only revealed once the round is over.
type Snapshot struct {
	GameID           string     `json:"gameId"`
	RoundID          string     `json:"roundId"`
	Language         string     `json:"language"`
	Difficulty       string     `json:"difficulty"`
	DifficultyValue  float64    `json:"difficultyValue"`
	Daily            string     `json:"daily,omitempty"`
	Current          string     `json:"current"`
	Tiles            []string   `json:"tiles"`
	Target           string     `json:"target,omitempty"`
	Attempts         int        `json:"attempts"`
	MaxAttempts      int        `json:"maxAttempts"`
	ElapsedSeconds   float64    `json:"elapsedSeconds"`
	TimeLimitSeconds float64    `json:"timeLimitSeconds"`
	Similarity       float64    `json:"similarity"`
	Distance         int        `json:"distance"`
	Message          string     `json:"message"`
	Tier             align.Tier `json:"tier"`
	Tone             align.Tone `json:"tone"`
	Selected         int        `json:"selected"`
	State            Status     `json:"state"`
	VictorySeconds   float64    `json:"victorySeconds,omitempty"`
}
