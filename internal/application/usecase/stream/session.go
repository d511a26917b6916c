package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
	dsvc "pricestream/internal/domain/service"
)

const inboundBuffer = 16

// Session streams prices to one client connection. It owns the client's
// subscription and change tracker; nothing in it is shared with other
// sessions except the resolver.
type Session struct {
	id       string
	conn     port.Conn
	resolver Resolver
	registry Registry
	cfg      Config

	sub     *dsvc.Subscription
	tracker *dsvc.ChangeTracker
	state   atomic.Int32
	pushed  atomic.Int64

	inbound chan string
	readErr chan error
	logger  zerolog.Logger
}

func NewSession(deps SessionDeps) *Session {
	return &Session{
		conn:     deps.Conn,
		resolver: deps.Resolver,
		registry: deps.Registry,
		cfg:      deps.Config.withDefaults(),
		sub:      dsvc.NewSubscription(),
		tracker:  dsvc.NewChangeTracker(),
		inbound:  make(chan string, inboundBuffer),
		readErr:  make(chan error, 1),
		logger:   log.With().Str("remote", deps.Conn.RemoteAddr()).Logger(),
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// Pushed counts batches written so far.
func (s *Session) Pushed() int64 { return s.pushed.Load() }

// Symbols returns the current subscription.
func (s *Session) Symbols() []string { return s.sub.Symbols() }

func (s *Session) setState(st State) {
	if prev := State(s.state.Swap(int32(st))); prev != st {
		s.logger.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("session state")
	}
}

// Run drives the session until ctx ends or the transport fails. It always
// closes the connection and unregisters before returning. The returned
// error says why the session ended.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.registry != nil {
		s.id = s.registry.Register(s.conn)
		s.logger = s.logger.With().Str("session", s.id).Logger()
	}
	defer s.shutdown()

	s.logger.Info().Msg("session opened")
	go s.readLoop(ctx)

	for {
		if s.sub.Empty() {
			s.setState(StateAwaiting)
			if err := s.awaitSubscription(ctx); err != nil {
				return err
			}
			continue
		}

		s.setState(StateStreaming)
		if err := s.cycle(ctx); err != nil {
			return err
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) shutdown() {
	s.setState(StateClosed)
	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close connection")
	}
	if s.registry != nil {
		s.registry.Unregister(s.id)
	}
	s.logger.Info().Int64("batches", s.Pushed()).Msg("session closed")
}

// readLoop drains the transport so the session loop never blocks on a read.
func (s *Session) readLoop(ctx context.Context) {
	for {
		msg, err := s.conn.ReadText(ctx)
		if err != nil {
			s.readErr <- fmt.Errorf("read: %v: %w", err, model.ErrTransportClosed)
			return
		}
		select {
		case s.inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// apply handles one inbound message and reports whether the subscription
// changed.
func (s *Session) apply(msg string) bool {
	symbols := dsvc.ParseSymbols(msg)
	if !s.sub.SetSymbols(symbols) {
		return false
	}
	current := s.sub.Symbols()
	s.tracker.Forget(current)
	s.logger.Info().Strs("symbols", current).Msg("subscription updated")
	return true
}

// drain applies every message already queued without blocking.
func (s *Session) drain() {
	for {
		select {
		case msg := <-s.inbound:
			s.apply(msg)
		default:
			return
		}
	}
}

func (s *Session) awaitSubscription(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-s.readErr:
		return err
	case msg := <-s.inbound:
		s.apply(msg)
		return nil
	}
}

// wait pauses for one interval. A subscription change ends the pause early
// so the new symbols are served at once.
func (s *Session) wait(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.readErr:
			return err
		case msg := <-s.inbound:
			if s.apply(msg) {
				return nil
			}
		case <-timer.C:
			return nil
		}
	}
}

// cycle resolves every tracked symbol and pushes one batch.
func (s *Session) cycle(ctx context.Context) error {
	s.drain()
	symbols := s.sub.Symbols()
	if len(symbols) == 0 {
		return nil
	}

	bb := NewBatchBuilder(len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sample, err := s.resolver.Resolve(ctx, sym)
		switch {
		case err == nil:
			bb.Add(sample, s.tracker.Update(sample), false)
		case errors.Is(err, model.ErrRateLimited):
			s.addStale(ctx, bb, sym, err)
		default:
			s.logger.Debug().Err(err).Str("symbol", sym).Msg("resolve failed")
			bb.AddError(sym, err)
		}
	}

	return s.push(ctx, bb.Build())
}

// addStale serves the newest known sample when the limiter blocked a
// refresh. A sample the session already delivered keeps its previous
// change; a newer one goes through the tracker.
func (s *Session) addStale(ctx context.Context, bb *BatchBuilder, sym string, cause error) {
	last, lastChange, seen := s.tracker.Last(sym)
	if fb, ok := s.resolver.Fallback(ctx, sym); ok {
		if seen && !fb.CapturedAt.After(last.CapturedAt) {
			bb.Add(last, lastChange, true)
			return
		}
		bb.Add(fb, s.tracker.Update(fb), true)
		return
	}
	if seen {
		bb.Add(last, lastChange, true)
		return
	}
	bb.AddError(sym, cause)
}

func (s *Session) push(ctx context.Context, batch Batch) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.conn.WriteJSON(wctx, batch); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("push: %v: %w", err, model.ErrTransportClosed)
	}
	s.pushed.Add(1)
	s.logger.Debug().
		Int("stocks", len(batch.Stocks)).
		Int("errors", len(batch.Errors)).
		Msg("batch pushed")
	return nil
}
