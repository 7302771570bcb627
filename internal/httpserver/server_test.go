package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalobadob/scramble/apps/go-server/internal/align"
	"github.com/robalobadob/scramble/apps/go-server/internal/config"
	"github.com/robalobadob/scramble/apps/go-server/internal/phrases"
	"github.com/robalobadob/scramble/apps/go-server/internal/records"
	"github.com/robalobadob/scramble/apps/go-server/internal/store"
)

var dbSeq atomic.Int64

// testServer drives the router with a fixed clock and a seeded shuffle.
type testServer struct {
	t     *testing.T
	srv   *Server
	now   time.Time
	token string // bearer token of the current player
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	table, err := phrases.Load("")
	if err != nil {
		t.Fatalf("phrases.Load: %v", err)
	}
	rec, err := records.Open(fmt.Sprintf("file:httpserver_test_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	ts := &testServer{t: t, now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	cfg := config.Config{
		ClientOrigin: "http://localhost:5173",
		JWTSecret:    "test_secret",
		TokenTTL:     time.Hour,
		CookieName:   "scramble_player",
		DailySalt:    "test_salt",
	}
	ts.srv = New(cfg, store.NewMemoryStore(time.Hour), rec, table,
		WithRand(align.NewRand(7)),
		WithClock(func() time.Time { return ts.now }),
	)
	return ts
}

// do sends a request as the current player, adopting any token it is issued.
func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rr := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rr, req)
	if tok := rr.Header().Get(playerTokenHeader); tok != "" {
		ts.token = tok
	}
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("status %d, want %d (body %s)", rr.Code, code, rr.Body.String())
	}
}

// snapshot mirrors game.Snapshot with enums as plain strings.
type snapshot struct {
	GameID     string   `json:"gameId"`
	RoundID    string   `json:"roundId"`
	Language   string   `json:"language"`
	Difficulty string   `json:"difficulty"`
	Daily      string   `json:"daily"`
	Current    string   `json:"current"`
	Tiles      []string `json:"tiles"`
	Target     string   `json:"target"`
	Attempts   int      `json:"attempts"`
	Similarity float64  `json:"similarity"`
	Tier       string   `json:"tier"`
	State      string   `json:"state"`
	Ignored    bool     `json:"ignored"`
}

type dailyRes struct {
	Date   string    `json:"date"`
	Played bool      `json:"played"`
	Game   *snapshot `json:"game"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (ts *testServer) newGame(language, difficulty string) snapshot {
	ts.t.Helper()
	rr := ts.do(http.MethodPost, "/game/new", map[string]string{"language": language, "difficulty": difficulty})
	wantStatus(ts.t, rr, http.StatusOK)
	return decode[snapshot](ts.t, rr)
}

// solve plays hinted swaps until the round is over.
func (ts *testServer) solve(id string) snapshot {
	ts.t.Helper()
	rr := ts.do(http.MethodGet, "/game/"+id, nil)
	wantStatus(ts.t, rr, http.StatusOK)
	snap := decode[snapshot](ts.t, rr)
	for range 200 {
		if snap.State != "playing" {
			return snap
		}
		rr = ts.do(http.MethodPost, "/game/hint", map[string]string{"gameId": id})
		wantStatus(ts.t, rr, http.StatusOK)
		h := decode[hintRes](ts.t, rr)
		if !h.OK {
			ts.t.Fatalf("no hint while playing: %+v", snap)
		}
		rr = ts.do(http.MethodPost, "/game/swap", swapReq{GameID: id, I: h.I, J: h.J})
		wantStatus(ts.t, rr, http.StatusOK)
		snap = decode[snapshot](ts.t, rr)
	}
	ts.t.Fatalf("round %s did not finish", id)
	return snap
}

func TestHealthAndCatalog(t *testing.T) {
	ts := newTestServer(t)

	wantStatus(t, ts.do(http.MethodGet, "/health", nil), http.StatusOK)

	rr := ts.do(http.MethodGet, "/languages", nil)
	wantStatus(t, rr, http.StatusOK)
	langs := decode[[]languageRes](t, rr)
	if len(langs) != 3 || langs[0].Name != "Português" || langs[1].Name != "English" {
		t.Fatalf("languages = %+v", langs)
	}

	rr = ts.do(http.MethodGet, "/difficulties", nil)
	wantStatus(t, rr, http.StatusOK)
	d := decode[difficultiesRes](t, rr)
	if d.Default != "Médio" || len(d.Levels) != 3 || d.MaxAttempts != 50 || d.TimeLimitSeconds != 300 {
		t.Fatalf("difficulties = %+v", d)
	}

	rr = ts.do(http.MethodGet, "/nope", nil)
	wantStatus(t, rr, http.StatusNotFound)
	if e := decode[errorBody](t, rr); e.Error != "not_found" {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestScore(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		target, current string
		distance        int
		tier            string
	}{
		{"abc", "abc", 0, "perfect"},
		{"abc", "acb", 2, "keep_trying"},
		{"hello", "helol", 2, "good"},
		{"", "", 0, "perfect"},
	}
	for _, tt := range tests {
		t.Run(tt.target+"/"+tt.current, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/score", scoreReq{Target: tt.target, Current: tt.current})
			wantStatus(t, rr, http.StatusOK)
			got := decode[struct {
				Message  string `json:"message"`
				Distance int    `json:"distance"`
				Tier     string `json:"tier"`
			}](t, rr)
			if got.Distance != tt.distance || got.Tier != tt.tier {
				t.Fatalf("got %+v, want distance %d tier %s", got, tt.distance, tt.tier)
			}
			if want := align.Classify(align.Similarity(tt.target, tt.current)).Message(tt.distance); got.Message != want {
				t.Fatalf("message %q, want %q", got.Message, want)
			}
		})
	}

	long := strings.Repeat("é", maxTextRunes+1)
	wantStatus(t, ts.do(http.MethodPost, "/score", scoreReq{Target: long, Current: "x"}), http.StatusBadRequest)
	huge := strings.Repeat("a", maxBodyBytes+1)
	wantStatus(t, ts.do(http.MethodPost, "/score", scoreReq{Target: huge}), http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rr, req)
	wantStatus(t, rr, http.StatusBadRequest)
}

func TestShuffle(t *testing.T) {
	ts := newTestServer(t)
	seed := uint64(42)
	d := 0.7
	text := "Programming is fun"

	first := decode[shuffleRes](t, ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: text, Difficulty: &d, Seed: &seed}))
	second := decode[shuffleRes](t, ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: text, Difficulty: &d, Seed: &seed}))
	if first.Shuffled != second.Shuffled {
		t.Fatalf("same seed gave %q and %q", first.Shuffled, second.Shuffled)
	}
	if first.Swaps != 12 {
		t.Fatalf("swaps = %d, want 12", first.Swaps)
	}
	a, b := []rune(text), []rune(first.Shuffled)
	slices.Sort(a)
	slices.Sort(b)
	if string(a) != string(b) {
		t.Fatalf("%q is not a permutation of %q", first.Shuffled, text)
	}

	for _, bad := range []float64{-0.1, 1.5, 1e8, 1e300} {
		rr := ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: text, Difficulty: &bad})
		wantStatus(t, rr, http.StatusBadRequest)
		if e := decode[errorBody](t, rr); e.Error != "bad_difficulty" {
			t.Fatalf("difficulty %g: error %q", bad, e.Error)
		}
	}
	one := 1.0
	long := strings.Repeat("a", maxTextRunes+1)
	rr := ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: long, Difficulty: &one})
	wantStatus(t, rr, http.StatusBadRequest)
	if e := decode[errorBody](t, rr); e.Error != "text_too_long" {
		t.Fatalf("long text: error %q", e.Error)
	}
	wantStatus(t, ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: long[1:], Difficulty: &one}), http.StatusOK)

	zero := 0.0
	got := decode[shuffleRes](t, ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: text, Difficulty: &zero}))
	if got.Shuffled != text || got.Swaps != 0 {
		t.Fatalf("difficulty 0 changed text: %+v", got)
	}

	byLevel := decode[shuffleRes](t, ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: text, Level: "Fácil"}))
	if byLevel.Difficulty != 0.3 {
		t.Fatalf("level difficulty = %v", byLevel.Difficulty)
	}
	wantStatus(t, ts.do(http.MethodPost, "/shuffle", shuffleReq{Text: text, Level: "Impossível"}), http.StatusBadRequest)
}

func TestGameRoundIsRecordedOnce(t *testing.T) {
	ts := newTestServer(t)
	snap := ts.newGame("English", "Difícil")
	if ts.token == "" {
		t.Fatal("no player token issued")
	}
	if snap.Language != "English" || snap.Difficulty != "Difícil" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.State == "playing" && snap.Target != "" {
		t.Fatal("target revealed while playing")
	}

	ts.now = ts.now.Add(30 * time.Second)
	final := ts.solve(snap.GameID)
	if final.State != "won" || final.Target == "" || final.Current != final.Target || final.Tier != "perfect" {
		t.Fatalf("final = %+v", final)
	}

	// A finished round rejects moves and is not recorded twice.
	rr := ts.do(http.MethodPost, "/game/swap", swapReq{GameID: snap.GameID, I: 0, J: 1})
	wantStatus(t, rr, http.StatusConflict)
	ts.do(http.MethodGet, "/game/"+snap.GameID, nil)

	rr = ts.do(http.MethodGet, "/records?language=english", nil)
	wantStatus(t, rr, http.StatusOK)
	recs := decode[recordsRes](t, rr)
	if len(recs.Top) != 1 || recs.Language != "English" || recs.Top[0].Phrase != final.Target {
		t.Fatalf("records = %+v", recs)
	}

	rr = ts.do(http.MethodGet, "/players/me", nil)
	wantStatus(t, rr, http.StatusOK)
	me := decode[meRes](t, rr)
	if me.ID == "" || me.Stats.Played != 1 || me.Stats.Wins != 1 {
		t.Fatalf("me = %+v", me)
	}
	if final.Attempts > 0 && me.Stats.BestMs != 30_000 {
		t.Fatalf("best = %d ms, want 30000", me.Stats.BestMs)
	}
}

func TestSwapIgnoresInvalidIndices(t *testing.T) {
	ts := newTestServer(t)
	snap := ts.newGame("", "")
	if snap.State != "playing" {
		t.Skip("deal matched the target")
	}
	for _, p := range [][2]int{{-1, 0}, {0, len(snap.Tiles)}, {len(snap.Tiles) + 3, 1}} {
		rr := ts.do(http.MethodPost, "/game/swap", swapReq{GameID: snap.GameID, I: p[0], J: p[1]})
		wantStatus(t, rr, http.StatusOK)
		got := decode[snapshot](t, rr)
		if !got.Ignored || got.Attempts != 0 || got.Current != snap.Current {
			t.Fatalf("swap %v: %+v", p, got)
		}
	}

	rr := ts.do(http.MethodPost, "/game/select", selectReq{GameID: snap.GameID, Index: 999})
	wantStatus(t, rr, http.StatusOK)
	if got := decode[snapshot](t, rr); got.Attempts != 0 {
		t.Fatalf("select out of range counted: %+v", got)
	}
}

func TestGameErrors(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/game/new", newGameReq{Language: "Klingon"})
	wantStatus(t, rr, http.StatusBadRequest)
	if e := decode[errorBody](t, rr); e.Error != "unknown_language" {
		t.Fatalf("error = %q", e.Error)
	}
	rr = ts.do(http.MethodPost, "/game/new", newGameReq{Difficulty: "Nightmare"})
	wantStatus(t, rr, http.StatusBadRequest)

	wantStatus(t, ts.do(http.MethodGet, "/game/missing", nil), http.StatusNotFound)
	wantStatus(t, ts.do(http.MethodPost, "/game/swap", swapReq{}), http.StatusBadRequest)

	// Another player cannot see or move this round.
	snap := ts.newGame("", "")
	ts.token = ""
	wantStatus(t, ts.do(http.MethodGet, "/game/"+snap.GameID, nil), http.StatusNotFound)
	wantStatus(t, ts.do(http.MethodPost, "/game/swap", swapReq{GameID: snap.GameID, I: 0, J: 1}), http.StatusNotFound)
}

func TestTimeLimitEndsRound(t *testing.T) {
	ts := newTestServer(t)
	snap := ts.newGame("Français", "Fácil")
	if snap.State != "playing" {
		t.Skip("deal matched the target")
	}
	ts.now = ts.now.Add(301 * time.Second)

	rr := ts.do(http.MethodGet, "/game/"+snap.GameID, nil)
	wantStatus(t, rr, http.StatusOK)
	got := decode[snapshot](t, rr)
	if got.State != "lost" || got.Target == "" {
		t.Fatalf("after time limit: %+v", got)
	}
	rr = ts.do(http.MethodPost, "/game/hint", gameReq{GameID: snap.GameID})
	wantStatus(t, rr, http.StatusConflict)

	me := decode[meRes](t, ts.do(http.MethodGet, "/players/me", nil))
	if me.Stats.Played != 1 || me.Stats.Wins != 0 {
		t.Fatalf("stats = %+v", me.Stats)
	}
}

func TestMoveAfterTimeLimitRecordsLoss(t *testing.T) {
	ts := newTestServer(t)
	snap := ts.newGame("English", "Médio")
	if snap.State != "playing" {
		t.Skip("deal matched the target")
	}
	ts.now = ts.now.Add(301 * time.Second)

	rr := ts.do(http.MethodPost, "/game/swap", swapReq{GameID: snap.GameID, I: 0, J: 1})
	wantStatus(t, rr, http.StatusConflict)

	me := decode[meRes](t, ts.do(http.MethodGet, "/players/me", nil))
	if me.Stats.Played != 1 || me.Stats.Wins != 0 {
		t.Fatalf("stats after timed-out swap = %+v", me.Stats)
	}
}

func TestRestartedRoundsAreRecordedSeparately(t *testing.T) {
	ts := newTestServer(t)
	snap := ts.newGame("English", "Fácil")
	first := ts.solve(snap.GameID)
	if first.State != "won" {
		t.Fatalf("first round = %+v", first)
	}

	rr := ts.do(http.MethodPost, "/game/restart", gameReq{GameID: snap.GameID})
	wantStatus(t, rr, http.StatusOK)
	next := decode[snapshot](t, rr)
	if next.GameID != snap.GameID || next.RoundID == first.RoundID {
		t.Fatalf("restart ids: game %s→%s, round %s→%s", snap.GameID, next.GameID, first.RoundID, next.RoundID)
	}
	if second := ts.solve(snap.GameID); second.State != "won" {
		t.Fatalf("second round = %+v", second)
	}

	me := decode[meRes](t, ts.do(http.MethodGet, "/players/me", nil))
	if me.Stats.Played != 2 || me.Stats.Wins != 2 {
		t.Fatalf("stats = %+v, want two recorded rounds", me.Stats)
	}
	recs := decode[recordsRes](t, ts.do(http.MethodGet, "/records?language=English&difficulty=Fácil", nil))
	if len(recs.Top) != 2 {
		t.Fatalf("best times = %+v", recs.Top)
	}
}

func TestRestartAndDifficultyCycle(t *testing.T) {
	ts := newTestServer(t)
	snap := ts.newGame("Português", "Médio")

	rr := ts.do(http.MethodPost, "/game/difficulty", gameReq{GameID: snap.GameID})
	wantStatus(t, rr, http.StatusOK)
	got := decode[snapshot](t, rr)
	if got.GameID != snap.GameID || got.Difficulty != "Difícil" || got.Attempts != 0 {
		t.Fatalf("after difficulty: %+v", got)
	}

	rr = ts.do(http.MethodPost, "/game/difficulty", gameReq{GameID: snap.GameID})
	if got = decode[snapshot](t, rr); got.Difficulty != "Fácil" {
		t.Fatalf("cycle wrapped to %q, want Fácil", got.Difficulty)
	}

	rr = ts.do(http.MethodPost, "/game/restart", gameReq{GameID: snap.GameID})
	wantStatus(t, rr, http.StatusOK)
	if got = decode[snapshot](t, rr); got.Difficulty != "Fácil" || got.Language != "Português" {
		t.Fatalf("after restart: %+v", got)
	}
}

func TestDailyRound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/daily/new", newGameReq{Language: "English"})
	wantStatus(t, rr, http.StatusOK)
	first := decode[dailyRes](t, rr)
	if first.Date != "2024-03-09" || first.Played || first.Game == nil || first.Game.Daily != "2024-03-09" {
		t.Fatalf("first = %+v", first)
	}
	id := first.Game.GameID

	if first.Game.State == "playing" {
		rr = ts.do(http.MethodPost, "/daily/new", newGameReq{Language: "English"})
		again := decode[dailyRes](t, rr)
		if again.Game == nil || again.Game.GameID != id {
			t.Fatalf("daily round not resumed: %+v", again)
		}
		wantStatus(t, ts.do(http.MethodPost, "/game/restart", gameReq{GameID: id}), http.StatusConflict)
	}

	ts.now = ts.now.Add(10 * time.Second)
	final := ts.solve(id)
	if final.State != "won" {
		t.Fatalf("final = %+v", final)
	}

	// Every player gets the same phrase for the date.
	mine := final.Target
	rr = ts.do(http.MethodPost, "/daily/new", newGameReq{Language: "English"})
	if played := decode[dailyRes](t, rr); !played.Played || played.Game != nil {
		t.Fatalf("second daily = %+v", played)
	}

	ts.token = ""
	other := decode[dailyRes](t, ts.do(http.MethodPost, "/daily/new", newGameReq{Language: "English"}))
	if other.Game == nil {
		t.Fatal("other player got no game")
	}
	if final2 := ts.solve(other.Game.GameID); final2.Target != mine {
		t.Fatalf("daily phrase differs between players: %q vs %q", final2.Target, mine)
	}

	rr = ts.do(http.MethodGet, "/daily/leaderboard?language=English", nil)
	wantStatus(t, rr, http.StatusOK)
	lb := decode[lbRes](t, rr)
	if lb.Date != "2024-03-09" || len(lb.Top) != 2 {
		t.Fatalf("leaderboard = %+v", lb)
	}
	if lb.Top[0].ElapsedMs > lb.Top[1].ElapsedMs {
		t.Fatalf("leaderboard not ordered: %+v", lb.Top)
	}

	wantStatus(t, ts.do(http.MethodGet, "/daily/leaderboard?date=yesterday", nil), http.StatusBadRequest)
}

func TestDailyTimeoutCountsAsPlayed(t *testing.T) {
	ts := newTestServer(t)
	first := decode[dailyRes](t, ts.do(http.MethodPost, "/daily/new", newGameReq{Language: "Français"}))
	if first.Game == nil || first.Game.State != "playing" {
		t.Skip("deal matched the target")
	}

	ts.now = ts.now.Add(10 * time.Minute)
	again := decode[dailyRes](t, ts.do(http.MethodPost, "/daily/new", newGameReq{Language: "Français"}))
	if !again.Played || again.Game != nil {
		t.Fatalf("timed-out daily round offered again: %+v", again)
	}
	me := decode[meRes](t, ts.do(http.MethodGet, "/players/me", nil))
	if me.Stats.Played != 1 || me.Stats.DailyWins != 0 {
		t.Fatalf("stats = %+v", me.Stats)
	}
}

func TestPlayerTokenIsReused(t *testing.T) {
	ts := newTestServer(t)
	me := decode[meRes](t, ts.do(http.MethodGet, "/players/me", nil))
	tok := ts.token

	rr := ts.do(http.MethodGet, "/players/me", nil)
	if rr.Header().Get(playerTokenHeader) != "" {
		t.Fatal("valid token was replaced")
	}
	if again := decode[meRes](t, rr); again.ID != me.ID {
		t.Fatalf("id changed: %s → %s", me.ID, again.ID)
	}

	// Cookie transport carries the same identity.
	req := httptest.NewRequest(http.MethodGet, "/players/me", nil)
	req.AddCookie(&http.Cookie{Name: "scramble_player", Value: tok})
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	if got := decode[meRes](t, rec); got.ID != me.ID {
		t.Fatalf("cookie id = %s, want %s", got.ID, me.ID)
	}

	// Expired tokens are replaced by a fresh identity.
	ts.now = ts.now.Add(2 * time.Hour)
	rr = ts.do(http.MethodGet, "/players/me", nil)
	if rr.Header().Get(playerTokenHeader) == "" {
		t.Fatal("expired token accepted")
	}
	if fresh := decode[meRes](t, rr); fresh.ID == me.ID {
		t.Fatal("expired token kept its id")
	}
}
