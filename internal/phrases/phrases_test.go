package phrases

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/robalobadob/scramble/apps/go-server/internal/align"
)

func TestLoadEmbedded(t *testing.T) {
	tbl, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tbl.LanguageNames(); strings.Join(got, ",") != "Português,English,Français" {
		t.Fatalf("languages = %v", got)
	}
	for _, name := range tbl.LanguageNames() {
		l, err := tbl.Language(name)
		if err != nil {
			t.Fatalf("Language(%q): %v", name, err)
		}
		if len(l.Phrases) != 5 {
			t.Fatalf("%s has %d phrases, want 5", name, len(l.Phrases))
		}
	}
	if tbl.MaxAttempts != 50 || tbl.TimeLimit() != 300*time.Second {
		t.Fatalf("limits = %d attempts, %v", tbl.MaxAttempts, tbl.TimeLimit())
	}
	lvl, err := tbl.Level("")
	if err != nil || lvl.Name != "Médio" || lvl.Value != 0.5 {
		t.Fatalf("default level = %+v, %v", lvl, err)
	}
}

func TestPhrasesAreNFC(t *testing.T) {
	// "Permissão" spelled with a combining tilde.
	src := "max_attempts: 3\ntime_limit_seconds: 10\ndifficulties: [{name: x, value: 0.5}]\n" +
		"languages:\n  - name: pt\n    phrases: [\"Permissa\u0303o\"]\n"
	tbl, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, _ := tbl.PhraseAt("pt", 0)
	if p != "Permiss\u00e3o" || utf8.RuneCountInString(p) != 9 {
		t.Fatalf("phrase not composed: %q (%d runes)", p, utf8.RuneCountInString(p))
	}
}

func TestLookups(t *testing.T) {
	tbl, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Language("klingon"); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
	if _, err := tbl.Level("nightmare"); !errors.Is(err, ErrUnknownDifficulty) {
		t.Fatalf("expected ErrUnknownDifficulty, got %v", err)
	}
	if l, err := tbl.Language("english"); err != nil || l.Name != "English" {
		t.Fatalf("case-insensitive lookup failed: %+v %v", l, err)
	}
	if p, _ := tbl.PhraseAt("English", 7); p != "Please proceed." {
		t.Fatalf("PhraseAt wraps: got %q", p)
	}
	p, err := tbl.Random("Français", align.NewRand(3))
	if err != nil {
		t.Fatal(err)
	}
	fr, _ := tbl.Language("Français")
	found := false
	for _, c := range fr.Phrases {
		found = found || c == p
	}
	if !found {
		t.Fatalf("Random returned %q, not a French phrase", p)
	}
}

func TestNextLevelCycles(t *testing.T) {
	tbl, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Médio", "Difícil", "Fácil", "Médio"}
	cur := "Fácil"
	for _, w := range want {
		cur = tbl.NextLevel(cur).Name
		if cur != w {
			t.Fatalf("NextLevel = %q, want %q", cur, w)
		}
	}
	if tbl.NextLevel("bogus").Name != "Fácil" {
		t.Fatal("unknown level should restart the cycle")
	}
}

func TestParseRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"no languages":    "max_attempts: 1\ntime_limit_seconds: 1\ndifficulties: [{name: a, value: 0.5}]\n",
		"bad value":       "max_attempts: 1\ntime_limit_seconds: 1\ndifficulties: [{name: a, value: 1.5}]\nlanguages: [{name: x, phrases: [y]}]\n",
		"empty phrases":   "max_attempts: 1\ntime_limit_seconds: 1\ndifficulties: [{name: a, value: 0.5}]\nlanguages: [{name: x, phrases: []}]\n",
		"zero attempts":   "time_limit_seconds: 1\ndifficulties: [{name: a, value: 0.5}]\nlanguages: [{name: x, phrases: [y]}]\n",
		"unknown default": "max_attempts: 1\ntime_limit_seconds: 1\ndefault_difficulty: z\ndifficulties: [{name: a, value: 0.5}]\nlanguages: [{name: x, phrases: [y]}]\n",
		"not yaml":        "{{",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	src := "max_attempts: 5\ntime_limit_seconds: 60\ndifficulties: [{name: only, value: 1}]\n" +
		"languages: [{name: Deutsch, phrases: [\"Guten Tag!\"]}]\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	if tbl.DefaultDifficulty != "only" || tbl.LanguageNames()[0] != "Deutsch" {
		t.Fatalf("unexpected table %+v", tbl)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
