package websocket

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"pricestream/internal/application/port"
)

// Manager tracks live client connections so they can be counted and
// dropped together on shutdown.
type Manager struct {
	mu    sync.Mutex
	conns map[string]port.Conn
	seq   atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{conns: make(map[string]port.Conn)}
}

// Register records conn and returns its session ID.
func (m *Manager) Register(conn port.Conn) string {
	id := fmt.Sprintf("ws-%d", m.seq.Add(1))
	m.mu.Lock()
	m.conns[id] = conn
	n := len(m.conns)
	m.mu.Unlock()
	log.Debug().Str("session", id).Int("active", n).Msg("connection registered")
	return id
}

// Unregister is idempotent.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// CloseAll closes every connection and returns how many there were.
// Each session's reader then exits and unregisters itself.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	conns := make([]port.Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("remote", c.RemoteAddr()).Msg("close connection")
		}
	}
	if len(conns) > 0 {
		log.Info().Int("connections", len(conns)).Msg("closed all websocket connections")
	}
	return len(conns)
}
