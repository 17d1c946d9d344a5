// Package segment turns a stream of transcript fragments into discrete
// utterances. A fragment burst is considered one utterance once no final
// fragment has arrived for the configured silence timeout.
package segment

import (
	"strings"
	"sync"
	"time"
)

// Segmenter accumulates final transcript fragments and emits the joined
// utterance on Utterances after a quiet period. It performs no I/O.
type Segmenter struct {
	timeout time.Duration
	clock   Clock

	mu     sync.Mutex
	buffer string
	timer  Timer
	gen    uint64
	closed bool

	out  chan string
	done chan struct{}
}

// New creates a Segmenter driven by the wall clock.
func New(timeout time.Duration) *Segmenter {
	return NewWithClock(timeout, SystemClock())
}

// NewWithClock creates a Segmenter with an injected clock.
func NewWithClock(timeout time.Duration, clock Clock) *Segmenter {
	return &Segmenter{
		timeout: timeout,
		clock:   clock,
		out:     make(chan string, 8),
		done:    make(chan struct{}),
	}
}

// Utterances delivers each completed utterance exactly once.
func (s *Segmenter) Utterances() <-chan string {
	return s.out
}

// Push feeds one transcript fragment into the state machine. Interim
// fragments exist only for live-caption display and are ignored here; empty
// final fragments neither extend the buffer nor reset the deadline.
func (s *Segmenter) Push(text string, isFinal bool) {
	text = strings.TrimSpace(text)
	if !isFinal || text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	// Providers that emit running transcripts resend the committed words in
	// each snapshot; keep the newest snapshot instead of duplicating them.
	buffered := strings.TrimSpace(s.buffer)
	if buffered != "" && strings.HasPrefix(text, buffered) &&
		(len(text) == len(buffered) || text[len(buffered)] == ' ') {
		s.buffer = " " + text
	} else {
		s.buffer += " " + text
	}

	// Re-arming always supersedes the previous deadline: at most one live
	// deadline per segmenter.
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.timeout, func() { s.deadline(gen) })
}

// deadline fires when the silence timeout elapses with no newer fragment.
// A stale generation means the timer was superseded after it was scheduled.
func (s *Segmenter) deadline(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	utterance := strings.TrimSpace(s.buffer)
	s.buffer = ""
	s.timer = nil
	s.mu.Unlock()

	if utterance == "" {
		return
	}

	select {
	case s.out <- utterance:
	case <-s.done:
	}
}

// Close cancels any pending deadline and releases waiters. Buffered text is
// discarded; a half-spoken utterance has no consumer after teardown.
func (s *Segmenter) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.buffer = ""
	s.mu.Unlock()

	close(s.done)
}
