package quote

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pricestream/internal/application/port"
)

// Settings carries what any provider factory may need.
type Settings struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	HistoryDays int
}

// Factory builds an upstream provider from Settings.
type Factory func(s Settings) (port.QuoteProvider, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a provider factory under name. Provider packages call it
// from init.
func Register(name string, factory Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if factory == nil || name == "" {
		log.Warn().Str("provider", name).Msg("invalid quote provider factory")
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		log.Warn().Str("provider", name).Msg("quote provider factory already registered, overwriting")
	}
	registry[name] = factory
	log.Debug().Str("provider", name).Msg("quote provider factory registered")
}

// Get looks a factory up by name.
func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return factory, ok
}

// Names lists registered providers in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the named provider.
func New(name string, s Settings) (port.QuoteProvider, error) {
	factory, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown quote provider %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(s)
}
