// Package tokenizer segments text, including Chinese, into search tokens.
package tokenizer

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
)

// Segmenter wraps a gse dictionary segmenter that is loaded on first use.
// If loading fails the segmenter stays unavailable and Tokenize returns nil.
type Segmenter struct {
	logger *slog.Logger

	once sync.Once
	seg  *gse.Segmenter
}

func New(logger *slog.Logger) *Segmenter {
	return &Segmenter{logger: logger.With("component", "tokenizer")}
}

// Available loads the dictionary if needed and reports whether it succeeded.
func (s *Segmenter) Available() bool {
	s.once.Do(s.load)
	return s.seg != nil
}

func (s *Segmenter) load() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("failed to initialize segmenter", "panic", r)
			s.seg = nil
		}
	}()

	seg, err := gse.New()
	if err != nil {
		s.logger.Error("failed to initialize segmenter", "error", err)
		return
	}
	s.seg = &seg
	s.logger.Info("segmenter initialized")
}

// Tokenize returns the distinct search tokens of text in first-seen order,
// lowercased, without whitespace or punctuation-only tokens.
func (s *Segmenter) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" || !s.Available() {
		return nil
	}
	return normalize(s.seg.CutSearch(text, true))
}

func normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, tok := range raw {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || seen[tok] || !hasWordRune(tok) {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
