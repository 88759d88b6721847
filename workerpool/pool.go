// Package workerpool implements the WorkerPool contract the wallet
// engine consumes (spec.md §4.4, §4.5, §6): batched note decryption
// and transaction proving, offloaded from the wallet's single-threaded
// control flow onto a pool of goroutine agents.
//
// The shape is lifted from the teacher's work/agent.go CpuAgent agent
// goroutines. Here all decrypt agents read from one shared buffered
// decrypt channel and all prove agents from one shared prove channel;
// each job carries the result channel of the call that submitted it.
// Where the teacher broadcasts one *Task to every registered mining
// agent (because any agent sealing the block first wins), this pool
// hands each job to exactly one agent, whichever is free first, since
// decrypting note A has no relationship to decrypting note B — there
// is nothing to race.
package workerpool

import (
	"context"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"

	"github.com/shieldcoin/walletcore/noteenc"
	"github.com/shieldcoin/walletcore/walletlog"
	"github.com/shieldcoin/walletcore/wallettypes"
)

var (
	decryptCounter = metrics.NewRegisteredCounter("workerpool/notes_decrypted", nil)
	proveCounter   = metrics.NewRegisteredCounter("workerpool/transactions_proved", nil)
)

var logger = walletlog.NewModuleLogger(walletlog.ModuleWorkerPool)

// WorkerPool is the contract the wallet orchestrator depends on
// (spec.md §6 external collaborators). Pool is the only implementation
// in this module; the interface exists so wallet.Wallet can be built
// and tested against a fake.
type WorkerPool interface {
	DecryptNotes(ctx context.Context, payloads []wallettypes.DecryptPayload) ([]*wallettypes.DecryptedNote, error)
	PostTransaction(ctx context.Context, raw *wallettypes.RawTransaction) (*wallettypes.Transaction, error)
	Stop()
}

type decryptJob struct {
	payload wallettypes.DecryptPayload
	resultCh chan<- decryptResult
}

type decryptResult struct {
	note *wallettypes.DecryptedNote
	err  error
}

type proveJob struct {
	raw      *wallettypes.RawTransaction
	resultCh chan<- proveResult
}

type proveResult struct {
	tx  *wallettypes.Transaction
	err error
}

// Pool is a fixed-size goroutine pool backing both decryptNotes and
// postTransaction. It is safe for concurrent use by multiple wallet
// goroutines (the scan coordinator and user-initiated sends may both
// submit work at once), matching spec.md §5's "worker pool is shared
// and thread-safe".
type Pool struct {
	decryptor noteenc.Decryptor
	prover    noteenc.Prover

	decryptCh chan decryptJob
	proveCh   chan proveJob

	stopped int32
	done    chan struct{}
}

// New starts numAgents decrypt agents and numAgents prove agents.
func New(decryptor noteenc.Decryptor, prover noteenc.Prover, numAgents int) *Pool {
	if numAgents < 1 {
		numAgents = 1
	}
	p := &Pool{
		decryptor: decryptor,
		prover:    prover,
		decryptCh: make(chan decryptJob, numAgents*4),
		proveCh:   make(chan proveJob, numAgents*4),
		done:      make(chan struct{}),
	}
	for i := 0; i < numAgents; i++ {
		go p.runDecryptAgent()
		go p.runProveAgent()
	}
	return p
}

func (p *Pool) runDecryptAgent() {
	for {
		select {
		case job := <-p.decryptCh:
			note, err := p.decryptor.TryDecrypt(job.payload)
			if err == nil && note != nil {
				decryptCounter.Inc(1)
			}
			job.resultCh <- decryptResult{note: note, err: err}
		case <-p.done:
			return
		}
	}
}

func (p *Pool) runProveAgent() {
	for {
		select {
		case job := <-p.proveCh:
			tx, err := p.prover.Prove(job.raw)
			if err == nil {
				proveCounter.Inc(1)
			}
			job.resultCh <- proveResult{tx: tx, err: err}
		case <-p.done:
			return
		}
	}
}

// DecryptNotes fans out each payload to an agent and collects the
// results in the order agents finish them (not submission order),
// filtering out (nil, nil) non-matches.
// A single payload error aborts the whole call, matching spec.md §7's
// "external failures propagate unchanged to the caller".
func (p *Pool) DecryptNotes(ctx context.Context, payloads []wallettypes.DecryptPayload) ([]*wallettypes.DecryptedNote, error) {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return nil, errPoolStopped
	}
	resultCh := make(chan decryptResult, len(payloads))
	for _, payload := range payloads {
		job := decryptJob{payload: payload, resultCh: resultCh}
		select {
		case p.decryptCh <- job:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]*wallettypes.DecryptedNote, 0, len(payloads))
	for i := 0; i < len(payloads); i++ {
		select {
		case r := <-resultCh:
			if r.err != nil {
				return nil, r.err
			}
			if r.note != nil {
				out = append(out, r.note)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// PostTransaction delegates proof construction to one prove agent.
func (p *Pool) PostTransaction(ctx context.Context, raw *wallettypes.RawTransaction) (*wallettypes.Transaction, error) {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return nil, errPoolStopped
	}
	resultCh := make(chan proveResult, 1)
	select {
	case p.proveCh <- proveJob{raw: raw, resultCh: resultCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resultCh:
		return r.tx, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop terminates every agent goroutine. It is idempotent.
func (p *Pool) Stop() {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return
	}
	close(p.done)
	logger.Info("worker pool stopped")
}
