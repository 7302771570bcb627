// internal/records/records.go
//
// Results of finished rounds: best times per language and difficulty,
// per-player stats, and the daily phrase leaderboard.

package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DefaultLimit is the number of best times returned when none is requested.
const DefaultLimit = 5

// Result is one finished round.
type Result struct {
	GameID     string
	RoundID    string // unique per dealt phrase
	PlayerID   string
	Language   string
	Difficulty string
	Phrase     string
	Won        bool
	Attempts   int
	ElapsedMs  int64
	DailyDate  string // empty for regular rounds
}

// Entry is one leaderboard row.
type Entry struct {
	PlayerID   string `json:"playerId"`
	Language   string `json:"language"`
	Difficulty string `json:"difficulty"`
	Phrase     string `json:"phrase"`
	Attempts   int    `json:"attempts"`
	ElapsedMs  int64  `json:"elapsedMs"`
	CreatedAt  string `json:"createdAt"`
}

// Stats summarizes a player's rounds.
type Stats struct {
	Played    int   `json:"played"`
	Wins      int   `json:"wins"`
	BestMs    int64 `json:"bestMs,omitempty"`
	DailyWins int   `json:"dailyWins"`
}

// Store is the results database.
type Store struct{ db *sql.DB }

// Open opens dsn and applies migrations.
func Open(dsn string) (*Store, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("records: open: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("records: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. For in-memory DSNs this discards all results.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Insert stores a result. A second result for the same round, or a second
// daily result for the same player, date and language, is ignored and
// reported as inserted=false.
func (s *Store) Insert(ctx context.Context, r Result) (bool, error) {
	var daily any
	if r.DailyDate != "" {
		daily = r.DailyDate
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO results
            (game_id, round_id, player_id, language, difficulty, phrase, won, attempts, elapsed_ms, daily_date)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GameID, r.RoundID, r.PlayerID, r.Language, r.Difficulty, r.Phrase, r.Won, r.Attempts, r.ElapsedMs, daily,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Best returns the fastest won rounds, optionally filtered by language and
// difficulty. Ties break on fewer attempts, then earlier rounds.
func (s *Store) Best(ctx context.Context, language, difficulty string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	where := []string{"won = 1"}
	var args []any
	if language != "" {
		where = append(where, "language = ?")
		args = append(args, language)
	}
	if difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, difficulty)
	}
	args = append(args, limit)
	return s.entries(ctx, `
        SELECT player_id, language, difficulty, phrase, attempts, elapsed_ms, created_at
        FROM results
        WHERE `+strings.Join(where, " AND ")+`
        ORDER BY elapsed_ms ASC, attempts ASC, created_at ASC, id ASC
        LIMIT ?`, args...)
}

// PlayerStats summarizes every recorded round of a player.
func (s *Store) PlayerStats(ctx context.Context, playerID string) (Stats, error) {
	var (
		st   Stats
		best sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(1),
               COALESCE(SUM(won), 0),
               MIN(CASE WHEN won = 1 THEN elapsed_ms END),
               COALESCE(SUM(CASE WHEN won = 1 AND daily_date IS NOT NULL THEN 1 ELSE 0 END), 0)
        FROM results
        WHERE player_id = ?`, playerID,
	).Scan(&st.Played, &st.Wins, &best, &st.DailyWins)
	if err != nil {
		return Stats{}, err
	}
	if best.Valid {
		st.BestMs = best.Int64
	}
	return st, nil
}

// DailyPlayed reports whether the player already finished the daily phrase
// of the given date and language.
func (s *Store) DailyPlayed(ctx context.Context, playerID, date, language string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM results WHERE player_id=? AND daily_date=? AND language=?`,
		playerID, date, language,
	).Scan(&cnt)
	return cnt > 0, err
}

// DailyLeaderboard returns the fastest wins of the daily phrase.
func (s *Store) DailyLeaderboard(ctx context.Context, date, language string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.entries(ctx, `
        SELECT player_id, language, difficulty, phrase, attempts, elapsed_ms, created_at
        FROM results
        WHERE daily_date = ? AND language = ? AND won = 1
        ORDER BY elapsed_ms ASC, attempts ASC, created_at ASC, id ASC
        LIMIT ?`, date, language, limit)
}

func (s *Store) entries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PlayerID, &e.Language, &e.Difficulty, &e.Phrase, &e.Attempts, &e.ElapsedMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
