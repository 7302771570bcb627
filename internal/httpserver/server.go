// internal/httpserver/server.go
//
// HTTP server wiring for the phrase scramble backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs,
//     request logging).
//   - Public endpoints: "/", "/health", the phrase catalog, and the stateless
//     scoring and shuffling services.
//   - Game endpoints (player identity attached): create a round, swap or
//     select tiles, hints, restart, difficulty cycling.
//   - Daily phrase endpoints: mounted under /daily.
//   - Results: best times and per-player stats.
//
// Notes:
//   - Sessions are mutated only inside store.Update, which serializes moves
//     on the same round.
//   - A round is recorded in the results database once, when it first
//     finishes (won or lost).

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/scramble/apps/go-server/internal/align"
	"github.com/robalobadob/scramble/apps/go-server/internal/config"
	"github.com/robalobadob/scramble/apps/go-server/internal/game"
	"github.com/robalobadob/scramble/apps/go-server/internal/phrases"
	"github.com/robalobadob/scramble/apps/go-server/internal/records"
	"github.com/robalobadob/scramble/apps/go-server/internal/store"
)

// Server bundles the router, session store, results database and phrase table.
type Server struct {
	r       *chi.Mux
	cfg     config.Config
	store   store.Store
	records *records.Store
	table   *phrases.Table
	daily   *dailyServer

	rng align.Rand
	now func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithRand replaces the random source used to pick and shuffle phrases.
// The source is shared by all requests and must be safe for concurrent use
// unless requests are serialized (as in tests).
func WithRand(rng align.Rand) Option { return func(s *Server) { s.rng = rng } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// New constructs a Server, installs middleware, and registers routes.
func New(cfg config.Config, st store.Store, rec *records.Store, table *phrases.Table, opts ...Option) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     cfg,
		store:   st,
		records: rec,
		table:   table,
		rng:     align.SystemRand(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger)                   // one zerolog line per request
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(limitBody)                       // cap request bodies
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(s.cors)                          // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"scramble-go","endpoints":["/health","/languages","/difficulties","POST /score","POST /game/new","POST /game/swap","/daily/*"]}`))
	})
	s.r.Get("/health", s.handleHealth)

	// --- catalog + stateless engine ---
	s.r.Get("/languages", s.handleLanguages)
	s.r.Get("/difficulties", s.handleDifficulties)
	s.r.Post("/score", s.handleScore)
	s.r.Post("/shuffle", s.handleShuffle)
	s.r.Get("/records", s.handleRecords)

	// --- player-scoped routes ---
	s.r.Group(func(r chi.Router) {
		r.Use(s.withPlayer())
		r.Post("/game/new", s.handleNewGame)
		r.Get("/game/{id}", s.handleGetGame)
		r.Post("/game/swap", s.handleSwap)
		r.Post("/game/select", s.handleSelect)
		r.Post("/game/hint", s.handleHint)
		r.Post("/game/restart", s.handleRestart)
		r.Post("/game/difficulty", s.handleDifficulty)
		r.Get("/players/me", s.handleMe)
		s.mountDaily(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// maxTextRunes bounds the phrases accepted by /score and /shuffle.
const maxTextRunes = 1000

// limitBody caps the request body at maxBodyBytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", playerTokenHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("reqId", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

// ---------------------------- diagnostics ----------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("records ping")
		writeError(w, http.StatusServiceUnavailable, "records_unavailable")
		return
	}
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// ------------------------------ CATALOG ------------------------------------

type languageRes struct {
	Name    string `json:"name"`
	Phrases int    `json:"phrases"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	out := make([]languageRes, 0, len(s.table.Languages))
	for _, l := range s.table.Languages {
		out = append(out, languageRes{Name: l.Name, Phrases: len(l.Phrases)})
	}
	_ = json.NewEncoder(w).Encode(out)
}

type difficultiesRes struct {
	Levels           []phrases.Level `json:"levels"`
	Default          string          `json:"default"`
	MaxAttempts      int             `json:"maxAttempts"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
}

func (s *Server) handleDifficulties(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(difficultiesRes{
		Levels:           s.table.Difficulties,
		Default:          s.table.DefaultDifficulty,
		MaxAttempts:      s.table.MaxAttempts,
		TimeLimitSeconds: s.table.TimeLimitSeconds,
	})
}

// --------------------------- STATELESS ENGINE ------------------------------

type scoreReq struct {
	Target  string `json:"target"`
	Current string `json:"current"`
}

// handleScore evaluates a phrase against a target without any session.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if tooLong(req.Target) || tooLong(req.Current) {
		writeError(w, http.StatusBadRequest, "text_too_long")
		return
	}
	_ = json.NewEncoder(w).Encode(align.Evaluate(req.Target, req.Current))
}

type shuffleReq struct {
	Text       string   `json:"text"`
	Difficulty *float64 `json:"difficulty"` // explicit intensity
	Level      string   `json:"level"`      // or a named level
	Seed       *uint64  `json:"seed"`       // reproducible shuffle
}

type shuffleRes struct {
	Shuffled   string  `json:"shuffled"`
	Difficulty float64 `json:"difficulty"`
	Swaps      int     `json:"swaps"`
}

// handleShuffle scrambles arbitrary text. Without difficulty or level the
// table's default level applies; an explicit difficulty must be in [0, 1].
func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req shuffleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if tooLong(req.Text) {
		writeError(w, http.StatusBadRequest, "text_too_long")
		return
	}
	var d float64
	if req.Difficulty != nil {
		d = *req.Difficulty
		if d < 0 || d > 1 {
			writeError(w, http.StatusBadRequest, "bad_difficulty")
			return
		}
	} else {
		lvl, err := s.table.Level(req.Level)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_difficulty")
			return
		}
		d = lvl.Value
	}
	rng := s.rng
	if req.Seed != nil {
		rng = align.NewRand(*req.Seed)
	}
	_ = json.NewEncoder(w).Encode(shuffleRes{
		Shuffled:   align.Shuffle(req.Text, d, rng),
		Difficulty: d,
		Swaps:      align.SwapCount(len([]rune(req.Text)), d),
	})
}

// ------------------------------- GAME --------------------------------------

type newGameReq struct {
	Language   string `json:"language"`   // default: first language
	Difficulty string `json:"difficulty"` // default: table default level
}

// handleNewGame deals a round with a random phrase of the language.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	lang, lvl, ok := s.resolve(w, req.Language, req.Difficulty)
	if !ok {
		return
	}
	target, err := s.table.Random(lang.Name, s.rng)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_language")
		return
	}
	snap, ok := s.start(w, r, s.newSession(playerID(r), lang.Name, lvl, target, ""))
	if ok {
		_ = json.NewEncoder(w).Encode(snap)
	}
}

// start saves a freshly dealt round and returns its first snapshot. A deal
// that already matches the target is recorded right away.
func (s *Server) start(w http.ResponseWriter, r *http.Request, g *game.Session) (game.Snapshot, bool) {
	now := s.now()
	snap := g.Snapshot(now)
	finished := takeResult(g, now)
	if err := s.store.Save(r.Context(), g); err != nil {
		log.Error().Err(err).Msg("save game")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return game.Snapshot{}, false
	}
	log.Info().
		Str("gameId", g.ID).
		Str("language", g.Language).
		Str("difficulty", g.Level).
		Str("daily", g.Daily).
		Msg("new game")
	return snap, true
}

func (s *Server) newSession(player, language string, lvl phrases.Level, target, dailyDate string) *game.Session {
	return game.New(game.Options{
		PlayerID:    player,
		Language:    language,
		Level:       lvl.Name,
		Difficulty:  lvl.Value,
		Daily:       dailyDate,
		Target:      target,
		MaxAttempts: s.table.MaxAttempts,
		TimeLimit:   s.table.TimeLimit(),
		Rand:        s.rng,
		Now:         s.now(),
	})
}

// resolve looks up language and level, writing a 400 when either is unknown.
func (s *Server) resolve(w http.ResponseWriter, language, level string) (phrases.Language, phrases.Level, bool) {
	lang, err := s.table.Language(language)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_language")
		return phrases.Language{}, phrases.Level{}, false
	}
	lvl, err := s.table.Level(level)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_difficulty")
		return phrases.Language{}, phrases.Level{}, false
	}
	return lang, lvl, true
}

// handleGetGame returns the current snapshot, applying the time limit.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.mutate(w, r, chi.URLParam(r, "id"), func(*game.Session, time.Time) error { return nil })
	if ok {
		_ = json.NewEncoder(w).Encode(snap)
	}
}

type swapReq struct {
	GameID string `json:"gameId"`
	I      int    `json:"i"`
	J      int    `json:"j"`
}

// moveRes is a snapshot plus whether the move was ignored.
type moveRes struct {
	game.Snapshot
	Ignored bool `json:"ignored,omitempty"`
}

// handleSwap swaps two tiles. Out-of-range pairs leave the round untouched
// and are reported as ignored rather than as an error.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	ignored := false
	snap, ok := s.mutate(w, r, req.GameID, func(g *game.Session, now time.Time) error {
		err := g.Swap(req.I, req.J, now)
		if errors.Is(err, game.ErrInvalidIndex) {
			ignored = true
			return nil
		}
		return err
	})
	if ok {
		_ = json.NewEncoder(w).Encode(moveRes{Snapshot: snap, Ignored: ignored})
	}
}

type selectReq struct {
	GameID string `json:"gameId"`
	Index  int    `json:"index"`
}

// handleSelect applies a tile pick (mark, unmark, or swap with the mark).
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	snap, ok := s.mutate(w, r, req.GameID, func(g *game.Session, now time.Time) error {
		return g.Select(req.Index, now)
	})
	if ok {
		_ = json.NewEncoder(w).Encode(moveRes{Snapshot: snap})
	}
}

type gameReq struct {
	GameID string `json:"gameId"`
}

type hintRes struct {
	OK bool `json:"ok"`
	I  int  `json:"i"`
	J  int  `json:"j"`
}

// handleHint suggests a corrective swap without applying it.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req gameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	var res hintRes
	_, ok := s.mutate(w, r, req.GameID, func(g *game.Session, now time.Time) error {
		if g.Tick(now); g.Finished() {
			return game.ErrFinished
		}
		res.I, res.J, res.OK = g.Hint()
		return nil
	})
	if ok {
		_ = json.NewEncoder(w).Encode(res)
	}
}

// errDailyRound blocks re-dealing a daily round.
var errDailyRound = errors.New("daily round")

// handleRestart deals a new phrase with the same language and difficulty.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.redeal(w, r, false)
}

// handleDifficulty moves to the next difficulty level and deals a new phrase.
func (s *Server) handleDifficulty(w http.ResponseWriter, r *http.Request) {
	s.redeal(w, r, true)
}

func (s *Server) redeal(w http.ResponseWriter, r *http.Request, nextLevel bool) {
	var req gameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	snap, ok := s.mutate(w, r, req.GameID, func(g *game.Session, now time.Time) error {
		if g.Daily != "" {
			return errDailyRound
		}
		target, err := s.table.Random(g.Language, s.rng)
		if err != nil {
			return err
		}
		if nextLevel {
			lvl := s.table.NextLevel(g.Level)
			g.SetLevel(lvl.Name, lvl.Value)
		}
		g.Reset(target, now)
		return nil
	})
	if ok {
		_ = json.NewEncoder(w).Encode(snap)
	}
}

// mutate runs fn on a session under the store lock, records the round if it
// has just finished, and returns the resulting snapshot. On failure it writes
// the error response and returns ok=false.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, id string, fn func(*game.Session, time.Time) error) (game.Snapshot, bool) {
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_game_id")
		return game.Snapshot{}, false
	}
	now := s.now()
	var (
		snap     game.Snapshot
		finished *records.Result
	)
	err := s.store.Update(r.Context(), id, func(g *game.Session) error {
		if g.PlayerID != "" && g.PlayerID != playerID(r) {
			return store.ErrNotFound
		}
		err := fn(g, now)
		// fn may have ended the round (time limit) even when it fails.
		finished = takeResult(g, now)
		if err != nil {
			return err
		}
		snap = g.Snapshot(now)
		return nil
	})
	if finished != nil {
		s.record(r, *finished)
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return game.Snapshot{}, false
	case errors.Is(err, game.ErrFinished):
		writeError(w, http.StatusConflict, "game_finished")
		return game.Snapshot{}, false
	case errors.Is(err, errDailyRound):
		writeError(w, http.StatusConflict, "daily_round")
		return game.Snapshot{}, false
	default:
		log.Error().Err(err).Str("gameId", id).Msg("update game")
		writeError(w, http.StatusInternalServerError, "update_failed")
		return game.Snapshot{}, false
	}
	return snap, true
}

// takeResult marks a finished, unrecorded round as recorded and returns its
// result. It must run with exclusive access to g.
func takeResult(g *game.Session, now time.Time) *records.Result {
	if !g.Finished() || g.Recorded {
		return nil
	}
	g.Recorded = true
	return &records.Result{
		GameID:     g.ID,
		RoundID:    g.RoundID,
		PlayerID:   g.PlayerID,
		Language:   g.Language,
		Difficulty: g.Level,
		Phrase:     g.Target,
		Won:        g.Status == game.StatusWon,
		Attempts:   g.Attempts,
		ElapsedMs:  g.Tick(now).Milliseconds(),
		DailyDate:  g.Daily,
	}
}

// record stores a finished round; failures are logged, never surfaced.
func (s *Server) record(r *http.Request, res records.Result) {
	inserted, err := s.records.Insert(r.Context(), res)
	if err != nil {
		log.Warn().Err(err).Str("gameId", res.GameID).Str("roundId", res.RoundID).Msg("record result")
		return
	}
	log.Info().
		Str("gameId", res.GameID).
		Str("roundId", res.RoundID).
		Bool("won", res.Won).
		Bool("inserted", inserted).
		Int("attempts", res.Attempts).
		Int64("elapsedMs", res.ElapsedMs).
		Msg("round finished")
}

// ------------------------------ RESULTS ------------------------------------

type recordsRes struct {
	Language   string          `json:"language,omitempty"`
	Difficulty string          `json:"difficulty,omitempty"`
	Top        []records.Entry `json:"top"`
}

// handleRecords returns the best times, optionally per language/difficulty.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	language, difficulty := q.Get("language"), q.Get("difficulty")
	if language != "" {
		l, err := s.table.Language(language)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_language")
			return
		}
		language = l.Name
	}
	if difficulty != "" {
		l, err := s.table.Level(difficulty)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_difficulty")
			return
		}
		difficulty = l.Name
	}
	top, err := s.records.Best(r.Context(), language, difficulty, queryLimit(r, records.DefaultLimit))
	if err != nil {
		log.Error().Err(err).Msg("best records")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	_ = json.NewEncoder(w).Encode(recordsRes{Language: language, Difficulty: difficulty, Top: top})
}

type meRes struct {
	ID    string        `json:"id"`
	Stats records.Stats `json:"stats"`
}

// handleMe returns the caller's player id and stats.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := playerID(r)
	st, err := s.records.PlayerStats(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("player", id).Msg("player stats")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	_ = json.NewEncoder(w).Encode(meRes{ID: id, Stats: st})
}

// ------------------------------- small util --------------------------------

// writeError writes {"error": code} with the given status.
func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// tooLong reports whether text exceeds maxTextRunes code points.
func tooLong(text string) bool {
	return utf8.RuneCountInString(text) > maxTextRunes
}

// queryLimit reads ?limit=, clamped to [1, 100].
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, 100)
}
