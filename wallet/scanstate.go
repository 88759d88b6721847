package wallet

import (
	"context"
	"sync"
	"time"
)

// ScanState is a cancellable progress token for a long-running scan
// (spec.md §4.1). The same type backs both a full rescan and a
// routine head update; which orchestrator slot holds it (scan vs
// updateHeadState) is what distinguishes the two uses.
type ScanState struct {
	ctx    context.Context
	cancel context.CancelFunc

	startedAt time.Time

	mu          sync.RWMutex
	sequence    uint64
	endSequence uint64

	done chan struct{}
}

// NewScanState creates a token spanning [sequence, endSequence].
func NewScanState(endSequence uint64) *ScanState {
	ctx, cancel := context.WithCancel(context.Background())
	return &ScanState{
		ctx:         ctx,
		cancel:      cancel,
		startedAt:   time.Now(),
		endSequence: endSequence,
		done:        make(chan struct{}),
	}
}

// Signal updates progress. Per spec.md §9's open question, this is
// called on both the scanTransactions path and the routine updateHead
// path so progress is never silently unset on either.
func (s *ScanState) Signal(seq uint64) {
	s.mu.Lock()
	s.sequence = seq
	s.mu.Unlock()
}

func (s *ScanState) Progress() (sequence, endSequence uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence, s.endSequence
}

// SignalComplete resolves the completion future. Idempotent.
func (s *ScanState) SignalComplete() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Aborted reports whether Abort has been called.
func (s *ScanState) Aborted() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Context is the abort signal consumers should select on.
func (s *ScanState) Context() context.Context { return s.ctx }

// Wait blocks until SignalComplete has been called.
func (s *ScanState) Wait() {
	<-s.done
}

// Abort raises the abort signal and waits for completion.
func (s *ScanState) Abort() {
	s.cancel()
	<-s.done
}

// withAbortSignal returns a context that is done when either ctx or
// the scan state's own abort signal fires, plus a cancel func the
// caller must invoke to release the merging goroutine once the
// operation returns. Go's stdlib has no built-in way to merge two
// independent context.Context values prior to context.AfterFunc
// (added in Go 1.21), so this follows the teacher's general "wrap a
// goroutine around two channels" idiom used e.g. in p2p/server.go's
// shutdown fan-in.
func (s *ScanState) withAbortSignal(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-merged.Done():
		case <-stop:
		}
	}()
	return merged, func() {
		close(stop)
		cancel()
	}
}
