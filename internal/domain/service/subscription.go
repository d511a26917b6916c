package service

import (
	"encoding/json"
	"strings"

	"pricestream/internal/domain/model"
)

// Subscription is the ordered set of symbols one connection streams.
type Subscription struct {
	symbols []string
}

func NewSubscription() *Subscription {
	return &Subscription{}
}

// SetSymbols replaces the tracked set in one step. An empty or all-blank
// input clears it. Reports whether the set actually changed.
func (s *Subscription) SetSymbols(list []string) bool {
	next := model.NormalizeSymbols(list)
	if equalSymbols(s.symbols, next) {
		return false
	}
	s.symbols = next
	return true
}

// Symbols returns a copy of the tracked symbols in subscription order.
func (s *Subscription) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *Subscription) Empty() bool { return len(s.symbols) == 0 }

func (s *Subscription) Len() int { return len(s.symbols) }

type subscribeMessage struct {
	Symbols []string `json:"symbols"`
	Ticker  string   `json:"ticker"`
}

// ParseSymbols turns one inbound client message into the requested symbol
// list. Plain text is split on commas, semicolons and whitespace; a JSON
// object with "symbols" or "ticker" is accepted as well.
func ParseSymbols(msg string) []string {
	trimmed := strings.TrimSpace(msg)
	if strings.HasPrefix(trimmed, "{") {
		var m subscribeMessage
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			list := m.Symbols
			if m.Ticker != "" {
				list = append(list, m.Ticker)
			}
			return model.NormalizeSymbols(list)
		}
	}
	tokens := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return model.NormalizeSymbols(tokens)
}

func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
