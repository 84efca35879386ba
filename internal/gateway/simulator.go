package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
)

// WordSource produces n random words.
type WordSource func(n uint32) ([]*uint256.Int, error)

// CryptoWords reads words from crypto/rand.
func CryptoWords(n uint32) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, n)
	buf := make([]byte, 32)
	for i := range out {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("read random bytes: %w", err)
		}
		out[i] = new(uint256.Int).SetBytes(buf)
	}
	return out, nil
}

// #region simulator
// Simulator is a local RandomnessProvider. Each request is fulfilled once,
// from its own goroutine, after the configured delay.
type Simulator struct {
	mu      sync.Mutex
	handler evolution.FulfillmentHandler
	delay   time.Duration
	source  WordSource
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ evolution.RandomnessProvider = (*Simulator)(nil)

// NewSimulator creates a simulator that waits delay before each delivery.
func NewSimulator(delay time.Duration) *Simulator {
	return &Simulator{
		delay:  delay,
		source: CryptoWords,
		done:   make(chan struct{}),
	}
}

// SetHandler registers the fulfillment callback target.
func (s *Simulator) SetHandler(h evolution.FulfillmentHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetSource replaces the random word source.
func (s *Simulator) SetSource(src WordSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == nil {
		src = CryptoWords
	}
	s.source = src
}

// RequestRandomWords implements evolution.RandomnessProvider.
func (s *Simulator) RequestRandomWords(_ context.Context, req evolution.RandomnessRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", apperrors.New(apperrors.CodeExternalUnavailable, "randomness simulator closed")
	}
	if s.handler == nil {
		return "", apperrors.New(apperrors.CodeExternalUnavailable, "randomness simulator has no handler")
	}
	words, err := s.source(req.NumWords)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeExternalUnavailable, "generate random words", err)
	}

	id := uuid.NewString()
	handler := s.handler
	s.wg.Add(1)
	go s.deliver(handler, id, words)
	return id, nil
}

func (s *Simulator) deliver(h evolution.FulfillmentHandler, id string, words []*uint256.Int) {
	defer s.wg.Done()
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.done:
			return
		}
	}
	if _, err := h.OnRandomnessFulfilled(context.Background(), id, words); err != nil {
		log.Printf("simulator: fulfillment %s failed: %v", id, err)
	}
}

// Close drops undelivered requests and waits for in-flight deliveries.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every scheduled delivery has run.
func (s *Simulator) Wait() {
	s.wg.Wait()
}

// #endregion simulator

// #region static-oracle
// StaticOracle serves fixed series values.
type StaticOracle struct {
	mu     sync.RWMutex
	values map[string]int64
}

var _ evolution.OracleFeed = (*StaticOracle)(nil)

// NewStaticOracle creates an oracle with the given initial values.
func NewStaticOracle(values map[string]int64) *StaticOracle {
	o := &StaticOracle{values: make(map[string]int64, len(values))}
	for k, v := range values {
		o.values[k] = v
	}
	return o
}

// Set stores the latest value of series.
func (o *StaticOracle) Set(series string, v int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[series] = v
}

// Clear makes series unavailable.
func (o *StaticOracle) Clear(series string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.values, series)
}

// LatestValue implements evolution.OracleFeed.
func (o *StaticOracle) LatestValue(_ context.Context, series string) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[series]
	if !ok {
		return 0, apperrors.WithMetadata(apperrors.CodeExternalUnavailable, "series "+series+" unavailable",
			map[string]string{"series": series})
	}
	return v, nil
}

// #endregion static-oracle
