package sentiment

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jonreiter/govader"
)

// ErrLexiconUnavailable is returned when the sentiment lexicon cannot be
// loaded or does not score known words as expected. No session may start
// without it.
var ErrLexiconUnavailable = errors.New("sentiment lexicon unavailable")

// ProvisionHint tells the operator how to restore the lexicon resource.
const ProvisionHint = "the VADER lexicon ships with github.com/jonreiter/govader; run 'go mod download github.com/jonreiter/govader' and rebuild partscout"

// Score is the polarity breakdown of a piece of text. Neg, Neu and Pos are
// proportions summing to 1; Compound is the normalized valence in [-1, 1].
type Score struct {
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
	Compound float64 `json:"compound"`
}

// Neutral is the score assigned to blank text.
func Neutral() Score {
	return Score{Neu: 1}
}

// Scorer computes a Score for a piece of text. Implementations must be
// deterministic and must not fail on empty input.
type Scorer interface {
	Score(text string) Score
}

// analyzer is the subset of the govader analyzer the Lexicon relies on.
type analyzer interface {
	PolarityScores(text string) govader.Sentiment
}

// Lexicon scores text with the VADER lexicon.
type Lexicon struct {
	analyzer analyzer
}

// ensure Lexicon implements Scorer
var _ Scorer = (*Lexicon)(nil)

// NewLexicon loads the VADER lexicon and verifies it can tell a positive
// word from a negative one.
func NewLexicon() (*Lexicon, error) {
	return newLexicon(govader.NewSentimentIntensityAnalyzer())
}

func newLexicon(a analyzer) (l *Lexicon, err error) {
	if a == nil {
		return nil, ErrLexiconUnavailable
	}

	// A missing lexicon inside the analyzer surfaces as a panic on first use.
	defer func() {
		if r := recover(); r != nil {
			l, err = nil, fmt.Errorf("%w: %v", ErrLexiconUnavailable, r)
		}
	}()

	if pos := a.PolarityScores("good"); pos.Compound <= 0 {
		return nil, fmt.Errorf("%w: probe word %q scored %.4f", ErrLexiconUnavailable, "good", pos.Compound)
	}
	if neg := a.PolarityScores("bad"); neg.Compound >= 0 {
		return nil, fmt.Errorf("%w: probe word %q scored %.4f", ErrLexiconUnavailable, "bad", neg.Compound)
	}

	return &Lexicon{analyzer: a}, nil
}

// Score returns the normalized polarity of text. Blank text is neutral.
func (l *Lexicon) Score(text string) Score {
	if strings.TrimSpace(text) == "" {
		return Neutral()
	}
	s := l.analyzer.PolarityScores(text)
	return normalize(Score{
		Neg:      s.Negative,
		Neu:      s.Neutral,
		Pos:      s.Positive,
		Compound: s.Compound,
	})
}

// normalize clamps proportions to [0,1] and compound to [-1,1]. The
// lexicon's rounded proportions are kept as reported, so their sum may
// drift from 1 by a rounding step. A score with no proportions at all is
// neutral.
func normalize(s Score) Score {
	s.Neg = clamp(s.Neg, 0, 1)
	s.Neu = clamp(s.Neu, 0, 1)
	s.Pos = clamp(s.Pos, 0, 1)
	s.Compound = clamp(s.Compound, -1, 1)

	if s.Neg+s.Neu+s.Pos == 0 {
		s.Neu = 1
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
