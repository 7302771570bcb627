// internal/httpserver/routes_daily.go
//
// HTTP routes for the daily phrase.
// Exposes two endpoints under /daily:
//   - POST /daily/new         → start today's round (creates or reuses a session)
//   - GET  /daily/leaderboard → fastest wins for a date (default today)
//
// Moves on a daily round go through the regular /game endpoints. Each player
// gets one recorded result per date and language (enforced by the results
// table); the in-memory index only lets a player resume an unfinished round.

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/scramble/apps/go-server/internal/daily"
	"github.com/robalobadob/scramble/apps/go-server/internal/game"
	"github.com/robalobadob/scramble/apps/go-server/internal/phrases"
	"github.com/robalobadob/scramble/apps/go-server/internal/records"
)

// dailyServer tracks the daily rounds in progress.
type dailyServer struct {
	srv      *Server
	salt     string
	sessions map[dailyKey]string // active round ids
	mu       sync.Mutex          // guards sessions
}

type dailyKey struct{ player, date, language string }

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	s.daily = &dailyServer{
		srv:      s,
		salt:     s.cfg.DailySalt,
		sessions: make(map[dailyKey]string),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", s.daily.handleNew)
		r.Get("/leaderboard", s.daily.handleLeaderboard)
	})
}

// phrase returns today's date key and phrase for a language.
func (d *dailyServer) phrase(now time.Time, lang phrases.Language) (string, string, error) {
	idx := daily.PhraseIndex(now, d.salt, lang.Name, len(lang.Phrases))
	p, err := d.srv.table.PhraseAt(lang.Name, idx)
	return daily.DateKey(now), p, err
}

// -----------------------------------------------------------------------------
// /daily/new

type dailyNewRes struct {
	Date   string         `json:"date"`
	Played bool           `json:"played"`
	Game   *game.Snapshot `json:"game,omitempty"`
}

// handleNew starts or resumes the caller's daily round.
//   - Already recorded for today → Played=true, no game.
//   - A round in memory → its snapshot, or Played=true once it is over.
//   - Otherwise a fresh round on today's phrase.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	lang, lvl, ok := d.srv.resolve(w, req.Language, req.Difficulty)
	if !ok {
		return
	}
	uid := playerID(r)
	now := d.srv.now()
	date, target, err := d.phrase(now, lang)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_language")
		return
	}

	played, err := d.srv.records.DailyPlayed(r.Context(), uid, date, lang.Name)
	if err != nil {
		log.Error().Err(err).Msg("daily played")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if played {
		_ = json.NewEncoder(w).Encode(dailyNewRes{Date: date, Played: true})
		return
	}

	key := dailyKey{player: uid, date: date, language: lang.Name}
	d.mu.Lock()
	id, ok := d.sessions[key]
	d.mu.Unlock()
	if ok {
		var (
			snap     game.Snapshot
			finished *records.Result
		)
		err := d.srv.store.Update(r.Context(), id, func(g *game.Session) error {
			snap = g.Snapshot(now)
			finished = takeResult(g, now)
			return nil
		})
		if finished != nil {
			d.srv.record(r, *finished)
		}
		if err == nil {
			res := dailyNewRes{Date: date, Played: snap.State != game.StatusPlaying}
			if !res.Played {
				res.Game = &snap
			}
			_ = json.NewEncoder(w).Encode(res)
			return
		}
	}

	g := d.srv.newSession(uid, lang.Name, lvl, target, date)
	snap, ok := d.srv.start(w, r, g)
	if !ok {
		return
	}
	d.remember(key, g.ID)
	_ = json.NewEncoder(w).Encode(dailyNewRes{Date: date, Game: &snap})
}

// remember indexes a daily round and drops entries of other dates.
func (d *dailyServer) remember(key dailyKey, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.sessions {
		if k.date != key.date {
			delete(d.sessions, k)
		}
	}
	d.sessions[key] = id
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

type lbRes struct {
	Date     string          `json:"date"`
	Language string          `json:"language"`
	Top      []records.Entry `json:"top"`
}

// handleLeaderboard returns the fastest daily wins for a date and language.
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lang, err := d.srv.table.Language(q.Get("language"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_language")
		return
	}
	date := q.Get("date")
	if date == "" {
		date = daily.DateKey(d.srv.now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "bad_date")
		return
	}
	rows, err := d.srv.records.DailyLeaderboard(r.Context(), date, lang.Name, queryLimit(r, 20))
	if err != nil {
		log.Error().Err(err).Msg("daily leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Date: date, Language: lang.Name, Top: rows})
}
