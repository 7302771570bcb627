// internal/phrases/phrases.go
//
// Phrase table and game rules.
//
// Responsibilities:
//   - Load the table from PHRASES_FILE when set, otherwise from the embedded
//     assets/phrases.yaml.
//   - Normalize every phrase and name to NFC so one accented letter is one
//     code point (one tile) whatever the source encoding was.
//   - Look up languages, pick random or indexed phrases, resolve and cycle
//     difficulty levels.
//
// A Table is immutable after Load and safe for concurrent use.

package phrases

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/robalobadob/scramble/apps/go-server/assets"
	"github.com/robalobadob/scramble/apps/go-server/internal/align"
)

var (
	ErrUnknownLanguage   = errors.New("unknown language")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
)

// Level is a named shuffle difficulty.
type Level struct {
	Name  string  `yaml:"name" json:"name"`
	Value float64 `yaml:"value" json:"value"`
}

// Language is an ordered list of candidate target phrases.
type Language struct {
	Name    string   `yaml:"name" json:"name"`
	Phrases []string `yaml:"phrases" json:"phrases"`
}

// Table is the full set of languages, difficulty levels and limits.
type Table struct {
	MaxAttempts       int        `yaml:"max_attempts"`
	TimeLimitSeconds  int        `yaml:"time_limit_seconds"`
	Difficulties      []Level    `yaml:"difficulties"`
	DefaultDifficulty string     `yaml:"default_difficulty"`
	Languages         []Language `yaml:"languages"`
}

// Load reads the table from path, or the embedded default when path is empty.
func Load(path string) (*Table, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = assets.PhraseTable()
	}
	if err != nil {
		return nil, fmt.Errorf("phrases: read table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML phrase table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("phrases: decode: %w", err)
	}
	t.normalize()
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("phrases: %w", err)
	}
	return &t, nil
}

func (t *Table) normalize() {
	t.DefaultDifficulty = norm.NFC.String(strings.TrimSpace(t.DefaultDifficulty))
	for i := range t.Difficulties {
		t.Difficulties[i].Name = norm.NFC.String(strings.TrimSpace(t.Difficulties[i].Name))
	}
	for i := range t.Languages {
		l := &t.Languages[i]
		l.Name = norm.NFC.String(strings.TrimSpace(l.Name))
		for j, p := range l.Phrases {
			l.Phrases[j] = norm.NFC.String(p)
		}
	}
}

func (t *Table) validate() error {
	if t.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if t.TimeLimitSeconds <= 0 {
		return errors.New("time_limit_seconds must be positive")
	}
	if len(t.Difficulties) == 0 {
		return errors.New("no difficulty levels")
	}
	for _, d := range t.Difficulties {
		if d.Name == "" {
			return errors.New("difficulty without a name")
		}
		if !(d.Value > 0 && d.Value <= 1) {
			return fmt.Errorf("difficulty %q: value %v outside (0, 1]", d.Name, d.Value)
		}
	}
	if t.DefaultDifficulty == "" {
		t.DefaultDifficulty = t.Difficulties[0].Name
	} else if _, ok := t.findLevel(t.DefaultDifficulty); !ok {
		return fmt.Errorf("default_difficulty %q: %w", t.DefaultDifficulty, ErrUnknownDifficulty)
	}
	if len(t.Languages) == 0 {
		return errors.New("no languages")
	}
	for _, l := range t.Languages {
		if l.Name == "" {
			return errors.New("language without a name")
		}
		if len(l.Phrases) == 0 {
			return fmt.Errorf("language %q has no phrases", l.Name)
		}
		for _, p := range l.Phrases {
			if p == "" {
				return fmt.Errorf("language %q has an empty phrase", l.Name)
			}
		}
	}
	return nil
}

// TimeLimit is the per-round time budget.
func (t *Table) TimeLimit() time.Duration {
	return time.Duration(t.TimeLimitSeconds) * time.Second
}

// LanguageNames returns the language names in table order.
func (t *Table) LanguageNames() []string {
	out := make([]string, len(t.Languages))
	for i, l := range t.Languages {
		out[i] = l.Name
	}
	return out
}

// Language resolves a language by name, ignoring case. An empty name
// selects the first language.
func (t *Table) Language(name string) (Language, error) {
	if name == "" {
		return t.Languages[0], nil
	}
	name = norm.NFC.String(strings.TrimSpace(name))
	for _, l := range t.Languages {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return Language{}, fmt.Errorf("%q: %w", name, ErrUnknownLanguage)
}

// Random picks a phrase of the language uniformly with rng.
func (t *Table) Random(lang string, rng align.Rand) (string, error) {
	l, err := t.Language(lang)
	if err != nil {
		return "", err
	}
	if rng == nil {
		rng = align.SystemRand()
	}
	return l.Phrases[rng.IntN(len(l.Phrases))], nil
}

// PhraseAt returns the phrase at idx modulo the language's phrase count.
func (t *Table) PhraseAt(lang string, idx int) (string, error) {
	l, err := t.Language(lang)
	if err != nil {
		return "", err
	}
	n := len(l.Phrases)
	return l.Phrases[((idx%n)+n)%n], nil
}

// Level resolves a difficulty level by name, ignoring case. An empty name
// selects the table default.
func (t *Table) Level(name string) (Level, error) {
	if name == "" {
		name = t.DefaultDifficulty
	}
	if l, ok := t.findLevel(name); ok {
		return l, nil
	}
	return Level{}, fmt.Errorf("%q: %w", name, ErrUnknownDifficulty)
}

// NextLevel returns the level after name, wrapping around. An unknown name
// restarts the cycle at the first level.
func (t *Table) NextLevel(name string) Level {
	name = norm.NFC.String(strings.TrimSpace(name))
	for i, l := range t.Difficulties {
		if strings.EqualFold(l.Name, name) {
			return t.Difficulties[(i+1)%len(t.Difficulties)]
		}
	}
	return t.Difficulties[0]
}

func (t *Table) findLevel(name string) (Level, bool) {
	name = norm.NFC.String(strings.TrimSpace(name))
	for _, l := range t.Difficulties {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Level{}, false
}
