// Package executor fans incoming execution requests out to a pool of workers
// that drive the container environment. Completions carry no cross-worker
// ordering; consumers correlate by transaction ID.
package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/metrics"
	"github.com/mpnetwork/mpnode/pkg/types"
)

const (
	defaultQueueSize = 1000
	workerQueueSize  = 100
)

// Config holds bridge configuration
type Config struct {
	// WorkerThreads is the number of concurrent workers, at least 1.
	WorkerThreads int
	// QueueSize bounds the shared request and result channels.
	QueueSize int
}

// Bridge distributes execution requests across workers in strict round-robin
// and funnels results onto a shared output channel.
type Bridge struct {
	engine Engine
	cfg    Config
	logger zerolog.Logger

	requestCh chan ExecutionRequest
	resultCh  chan ExecutionResult

	wg sync.WaitGroup
}

// NewBridge creates a bridge over the given engine.
func NewBridge(engine Engine, cfg Config) *Bridge {
	if cfg.WorkerThreads < 1 {
		cfg.WorkerThreads = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Bridge{
		engine:    engine,
		cfg:       cfg,
		logger:    log.WithComponent("executor"),
		requestCh: make(chan ExecutionRequest, cfg.QueueSize),
		resultCh:  make(chan ExecutionResult, cfg.QueueSize),
	}
}

// Start launches the distributor and workers. Closing the request channel
// (via Stop) ends the distributor; workers drain their sub-channels and
// exit, then the result channel closes.
func (b *Bridge) Start(ctx context.Context) <-chan ExecutionResult {
	workerChs := make([]chan ExecutionRequest, b.cfg.WorkerThreads)
	for i := range workerChs {
		workerChs[i] = make(chan ExecutionRequest, workerQueueSize)
	}

	// Distributor: strict round-robin over the worker sub-channels. A full
	// sub-channel blocks the distributor, applying backpressure upstream.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			for _, ch := range workerChs {
				close(ch)
			}
		}()
		current := 0
		for req := range b.requestCh {
			b.logger.Debug().Str("tx_id", req.TxID.String()).Int("worker", current).Msg("Distributing request")
			workerChs[current] <- req
			current = (current + 1) % len(workerChs)
		}
		b.logger.Debug().Msg("Request channel closed, distributor ending")
	}()

	var workers sync.WaitGroup
	for i := range workerChs {
		workers.Add(1)
		go b.runWorker(ctx, i, workerChs[i], &workers)
	}
	go func() {
		workers.Wait()
		close(b.resultCh)
	}()

	return b.resultCh
}

func (b *Bridge) runWorker(ctx context.Context, index int, requests <-chan ExecutionRequest, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := b.logger.With().Int("worker", index).Logger()
	logger.Debug().Msg("Worker started")

	for req := range requests {
		kindLabel := "request"
		if !req.Kind.IsRequest() {
			kindLabel = string(req.Kind.Verb)
		}
		timer := metrics.NewTimer()
		result, err := b.engine.Execute(ctx, req)
		if err != nil {
			// A worker failure still produces a terminal envelope so the
			// transaction does not linger in processing.
			logger.Error().Err(err).Str("tx_id", req.TxID.String()).Msg("Execution failed")
			metrics.ExecutionsTotal.WithLabelValues("error").Inc()
			result = errorResult(req, err)
		} else {
			metrics.ExecutionsTotal.WithLabelValues("ok").Inc()
		}
		timer.ObserveDurationVec(metrics.ExecutionDuration, kindLabel)

		b.resultCh <- result
	}
	logger.Debug().Msg("Worker channel closed, worker stopping")
}

// Requests returns the bridge input channel.
func (b *Bridge) Requests() chan<- ExecutionRequest {
	return b.requestCh
}

// Submit enqueues a request, honouring context cancellation.
func (b *Bridge) Submit(ctx context.Context, req ExecutionRequest) error {
	select {
	case b.requestCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the input channel and waits for the distributor to finish.
// Workers exit once their sub-channels drain.
func (b *Bridge) Stop() {
	close(b.requestCh)
	b.wg.Wait()
}

// errorResult wraps a worker failure in the standard 500 envelope.
func errorResult(req ExecutionRequest, err error) ExecutionResult {
	status := 500
	msg, _ := json.Marshal(err.Error())
	return ExecutionResult{
		Input: req.Input,
		Output: types.StructuredResponse{
			StatusCode: &status,
			Output:     map[string]json.RawMessage{"error": msg},
		},
		Metadata: ExecutionMetadata{
			TxID:       req.TxID,
			ExecutedAt: time.Now().UTC(),
			GasUsed:    gasPerExecution,
		},
	}
}
