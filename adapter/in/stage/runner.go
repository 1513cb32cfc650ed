// Package stage hosts the per-pipeline-stage worker pool: a
// read-dispatch-ack loop over one input stream/consumer-group, built
// on go-pkgz/pool, generalized from job-type dispatch to the five
// stream-stage services in core/port/in.
package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/pool"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/apperr"
	"github.com/kodelabs/mailrouter/pkg/logger"
	"github.com/kodelabs/mailrouter/pkg/metrics"
)

// Handler processes one stream message's field payload. Every
// core/port/in stage-service method (PollOnce excluded) is adapted to
// this shape by the bootstrap layer.
type Handler func(ctx context.Context, fields map[string]string) error

// ReclaimRunner is satisfied by adapter/out/messaging.Reclaimer; kept
// as a narrow interface here so this package never imports the
// messaging adapter.
type ReclaimRunner interface {
	Run(ctx context.Context, onClaimed func(context.Context, out.StreamMessage) error)
}

// Config controls one stage's runner.
type Config struct {
	Stream       string
	Group        string
	Consumer     string
	MinWorkers   int
	MaxWorkers   int
	BatchSize    int
	ReadCount    int64
	ReadBlockMS  int64
	StageName    string
}

// Runner owns one stage's read-dispatch-ack loop plus its pending
// reclaim sweep.
type Runner struct {
	cfg      Config
	broker   out.Broker
	handler  Handler
	reclaim  ReclaimRunner
	counters *metrics.StageCounters
	log      *logger.Logger

	pool   *pool.WorkerGroup[out.StreamMessage]
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(cfg Config, broker out.Broker, handler Handler, reclaim ReclaimRunner) *Runner {
	return &Runner{
		cfg:      cfg,
		broker:   broker,
		handler:  handler,
		reclaim:  reclaim,
		counters: metrics.Global().For(cfg.StageName),
		log:      logger.Default().WithField("component", cfg.StageName),
	}
}

type streamWorker struct{ r *Runner }

func (w *streamWorker) Do(ctx context.Context, msg out.StreamMessage) error {
	return w.r.process(ctx, msg)
}

// Start creates the consumer group (idempotent), launches the worker
// pool, the reclaim sweep, and the read loop. It returns immediately;
// call Stop to shut down.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.broker.CreateGroup(ctx, r.cfg.Stream, r.cfg.Group); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	worker := &streamWorker{r: r}
	r.pool = pool.New[out.StreamMessage](r.cfg.MaxWorkers, worker).
		WithBatchSize(r.cfg.BatchSize).
		WithContinueOnError()
	if err := r.pool.Go(runCtx); err != nil {
		cancel()
		return err
	}

	if r.reclaim != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.reclaim.Run(runCtx, func(ctx context.Context, msg out.StreamMessage) error {
				return r.process(ctx, msg)
			})
		}()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(runCtx)
	}()

	r.log.WithField("stream", r.cfg.Stream).WithField("group", r.cfg.Group).Info("stage runner started")
	return nil
}

// Stop cancels the read loop and reclaim sweep and waits for the
// worker pool to drain in-flight messages.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.pool != nil {
		return r.pool.Close(ctx)
	}
	return nil
}

func (r *Runner) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batches, err := r.broker.ReadGroup(ctx, r.cfg.Group, r.cfg.Consumer, []string{r.cfg.Stream}, r.cfg.ReadCount, r.cfg.ReadBlockMS)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.WithField("stream", r.cfg.Stream).Warn("read loop error, backing off: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, batch := range batches {
			for _, msg := range batch.Messages {
				r.pool.Submit(msg)
			}
		}
	}
}

// process runs the handler with panic recovery, translating the
// outcome into ack/no-ack: transient errors and panics
// are left un-acked for redelivery; malformed/permanent errors are
// acked and dropped after logging.
func (r *Runner) process(ctx context.Context, msg out.StreamMessage) (procErr error) {
	traceID := msg.Fields["trace_id"]
	log := r.log.WithField("trace_id", traceID).WithField("stream_message_id", msg.ID)

	defer func() {
		if rec := recover(); rec != nil {
			r.counters.IncRedelivered()
			log.Error("panic in stage handler: %v", rec)
			// leave un-acked for redelivery, same as a transient error
			procErr = &apperr.PipelineError{Kind: apperr.KindPanic, Op: "stage.handler", Err: fmt.Errorf("%v", rec)}
		}
	}()

	err := r.handler(ctx, msg.Fields)
	if err == nil {
		if ackErr := r.broker.Ack(ctx, r.cfg.Stream, r.cfg.Group, msg.ID); ackErr != nil {
			log.Warn("ack failed: %v", ackErr)
			return ackErr
		}
		r.counters.IncProcessed()
		log.Info("acked")
		return nil
	}

	pe := apperr.AsPipelineError(err)
	if !pe.Kind.ShouldAck() {
		log.Warn("transient error, leaving un-acked for redelivery: %v", err)
		r.counters.IncRedelivered()
		return err
	}

	if ackErr := r.broker.Ack(ctx, r.cfg.Stream, r.cfg.Group, msg.ID); ackErr != nil {
		log.Warn("ack failed after non-retryable error: %v", ackErr)
		return ackErr
	}
	r.counters.IncDropped()
	log.Warn("dropped after non-retryable error: %v", err)
	return nil
}
