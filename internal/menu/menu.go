// Package menu normalises heard menu vocabulary to canonical terms.
//
// STT output for order-taking is noisy in a very particular way: drink and
// size names are uncommon words that general speech models mishear
// ("machiato", "cappucino", "venty"). The [Normalizer] maps a heard term to
// its canonical spelling using a three-stage cascade:
//
//  1. Exact match (case-insensitive) — free.
//  2. Double Metaphone — catches phonetic confusions like "expresso".
//  3. Optimal string alignment distance ≤ 2 — catches short typo-like
//     mishearings the phonetic codes miss.
//
// Terms that match no vocabulary entry are passed through unchanged; the
// order record keeps whatever the customer actually said.
package menu

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// maxEditDistance is the OSA distance ceiling for stage 3. Two edits covers
// the common single-transposition-plus-typo mishearings without collapsing
// distinct short words ("tea" / "pea").
const maxEditDistance = 2

// Vocabulary is a named set of canonical terms, e.g. the drink menu.
type Vocabulary struct {
	// Name labels the vocabulary in logs ("drinks", "sizes", "milks").
	Name string

	// Terms are the canonical spellings. Matching is case-insensitive but
	// the canonical casing is what Match returns.
	Terms []string
}

// Normalizer matches heard terms against a set of vocabularies. It is
// read-only after construction and safe for concurrent use.
type Normalizer struct {
	vocabs []vocabulary
}

type vocabulary struct {
	name  string
	terms []term
}

type term struct {
	canonical string
	lower     string
	primary   string // Double Metaphone primary code
	secondary string // Double Metaphone secondary code, may be empty
}

// New builds a Normalizer from the given vocabularies. Empty terms are
// skipped.
func New(vocabs ...Vocabulary) *Normalizer {
	n := &Normalizer{}
	for _, v := range vocabs {
		compiled := vocabulary{name: v.Name}
		for _, t := range v.Terms {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			lower := strings.ToLower(t)
			p, s := matchr.DoubleMetaphone(lower)
			compiled.terms = append(compiled.terms, term{
				canonical: t,
				lower:     lower,
				primary:   p,
				secondary: s,
			})
		}
		n.vocabs = append(n.vocabs, compiled)
	}
	return n
}

// Match resolves heard against all vocabularies and returns the canonical
// term. ok is false when no stage produced a match; heard is then returned
// unchanged so callers can fall through to free-form handling.
func (n *Normalizer) Match(heard string) (canonical string, ok bool) {
	heard = strings.TrimSpace(heard)
	if heard == "" {
		return heard, false
	}
	lower := strings.ToLower(heard)

	// Stage 1: exact.
	for _, v := range n.vocabs {
		for _, t := range v.terms {
			if t.lower == lower {
				return t.canonical, true
			}
		}
	}

	// Stage 2: phonetic.
	p, s := matchr.DoubleMetaphone(lower)
	for _, v := range n.vocabs {
		for _, t := range v.terms {
			if codesOverlap(p, s, t.primary, t.secondary) {
				return t.canonical, true
			}
		}
	}

	// Stage 3: edit distance. Pick the closest term within the ceiling.
	best := term{}
	bestDist := maxEditDistance + 1
	for _, v := range n.vocabs {
		for _, t := range v.terms {
			d := matchr.OSA(lower, t.lower)
			if d < bestDist {
				bestDist = d
				best = t
			}
		}
	}
	if bestDist <= maxEditDistance {
		return best.canonical, true
	}

	return heard, false
}

// codesOverlap reports whether any non-empty Double Metaphone code of the
// input matches any code of the candidate term.
func codesOverlap(p1, s1, p2, s2 string) bool {
	for _, a := range []string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || (s2 != "" && a == s2) {
			return true
		}
	}
	return false
}

// DefaultDrinks is the built-in drink vocabulary for the barista assistant.
func DefaultDrinks() Vocabulary {
	return Vocabulary{Name: "drinks", Terms: []string{
		"espresso", "americano", "latte", "cappuccino", "flat white",
		"macchiato", "mocha", "cold brew", "drip coffee", "hot chocolate",
		"chai latte", "matcha latte", "tea",
	}}
}

// DefaultSizes is the built-in size vocabulary.
func DefaultSizes() Vocabulary {
	return Vocabulary{Name: "sizes", Terms: []string{"small", "medium", "large"}}
}

// DefaultMilks is the built-in milk vocabulary.
func DefaultMilks() Vocabulary {
	return Vocabulary{Name: "milks", Terms: []string{
		"whole", "skim", "oat", "almond", "soy", "coconut", "none",
	}}
}
