package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tomo/internal/dataset"
	"github.com/born-ml/tomo/internal/logging"
	"github.com/born-ml/tomo/internal/parallel"
	"github.com/born-ml/tomo/internal/slicing"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/tensor"
)

// Runner executes stages over a dataset with a fixed number of workers.
//
// Every worker runs every stage over its own share of chunks. Workers meet
// at a barrier between stages, so stage n+1 never reads a frame stage n has
// not written. If any worker fails the barrier is broken and the run stops.
type Runner struct {
	workers int
	store   store.Store
	dtype   tensor.DataType
	log     *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of workers. The default is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithStore sets where stage outputs are allocated. The default is a
// MemoryStore.
func WithStore(st store.Store) Option {
	return func(r *Runner) { r.store = st }
}

// WithOutputDType sets the element type of stage outputs. The default is
// Float32.
func WithOutputDType(dt tensor.DataType) Option {
	return func(r *Runner) { r.dtype = dt }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		workers: runtime.NumCPU(),
		dtype:   tensor.Float32,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.store == nil {
		r.store = store.NewMemoryStore()
	}
	if r.log == nil {
		r.log = logging.NoopLogger()
	}
	return r
}

// Workers returns the number of workers.
func (r *Runner) Workers() int { return r.workers }

// Result is the outcome of a run.
type Result struct {
	RunID  uuid.UUID
	Output *dataset.Dataset // final stage output; the caller closes it
	Plans  []*Plan
}

// Run executes stages in order over input.
//
// All stages are set up and planned before any frame is processed, so a
// configuration error aborts the run without touching data. Intermediate
// outputs are removed from the store when the run ends; the final output is
// returned open.
func (r *Runner) Run(ctx context.Context, input *dataset.Dataset, stages ...Stage) (*Result, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrConfiguration)
	}
	runID := uuid.New()
	log := r.log.WithRun(runID.String())
	log.InfoContext(ctx, "run started", "input", input.Name(), "stages", len(stages), "workers", r.workers)
	start := time.Now()

	plans, outputs, err := r.prepare(ctx, log, runID, input, stages)
	defer func() {
		for i, out := range outputs {
			if i == len(outputs)-1 && err == nil {
				continue
			}
			_ = out.Close()
			_ = r.store.Remove(context.WithoutCancel(ctx), out.Name())
		}
	}()
	if err != nil {
		return nil, err
	}

	barrier := parallel.NewBarrier(r.workers)
	errs := make([]error, r.workers)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < r.workers; rank++ {
		g.Go(func() error {
			werr := r.work(gctx, log.WithRank(rank), rank, barrier, input, outputs, stages, plans)
			if werr != nil {
				barrier.Break(werr)
			}
			errs[rank] = werr
			return werr
		})
	}
	if err = g.Wait(); err != nil {
		err = rootCause(ctx, errs, err)
		log.ErrorContext(ctx, "run failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}

	log.InfoContext(ctx, "run completed", "elapsed", time.Since(start))
	return &Result{RunID: runID, Output: outputs[len(outputs)-1], Plans: plans}, nil
}

// prepare sets up every stage and allocates its output.
func (r *Runner) prepare(ctx context.Context, log *logging.Logger, runID uuid.UUID, input *dataset.Dataset, stages []Stage) ([]*Plan, []*dataset.Dataset, error) {
	plans := make([]*Plan, 0, len(stages))
	outputs := make([]*dataset.Dataset, 0, len(stages))

	in := input
	for i, st := range stages {
		setup := newSetup(i, in, input)
		if err := st.Setup(setup); err != nil {
			return plans, outputs, &ConfigurationError{Stage: i, Name: st.Name(), Err: err}
		}
		plan, err := buildPlan(st.Name(), setup, r.workers)
		if err != nil {
			if errors.Is(err, parallel.ErrDistributionInvariant) {
				return plans, outputs, err
			}
			return plans, outputs, &ConfigurationError{Stage: i, Name: st.Name(), Err: err}
		}
		log.WithStage(i, st.Name()).LogPlan(ctx, string(plan.Pattern.Name), len(plan.Frames), len(plan.Chunks), r.workers)

		name := fmt.Sprintf("%s-%d-%s", runID.String()[:8], i, st.Name())
		out, err := in.Derive(ctx, r.store, name, r.dtype)
		if err != nil {
			return plans, outputs, fmt.Errorf("stage %d (%s): %w", i, st.Name(), err)
		}
		in.Patterns().Freeze()

		plans = append(plans, plan)
		outputs = append(outputs, out)
		in = out
	}
	return plans, outputs, nil
}

// work runs every stage over the chunks assigned to rank.
func (r *Runner) work(ctx context.Context, log *logging.Logger, rank int, barrier *parallel.Barrier,
	input *dataset.Dataset, outputs []*dataset.Dataset, stages []Stage, plans []*Plan) error {
	in := input
	for i, st := range stages {
		stageLog := log.WithStage(i, st.Name())
		start := time.Now()
		assigned := plans[i].Assignment(rank)

		err := runStage(ctx, stageLog, rank, in, outputs[i], st, plans[i], assigned)
		stageLog.LogStage(ctx, len(assigned), time.Since(start), err)
		if err != nil {
			return err
		}

		waitStart := time.Now()
		gen, err := barrier.Wait(ctx)
		if err != nil {
			return err
		}
		stageLog.LogBarrier(ctx, gen, time.Since(waitStart))
		in = outputs[i]
	}
	return nil
}

// runStage processes the assigned chunks of one stage. The input and output
// accesses are closed on every exit path.
func runStage(ctx context.Context, log *logging.Logger, rank int, input, output *dataset.Dataset, st Stage, plan *Plan, assigned []slicing.Chunk) error {
	in, err := input.OpenForRead()
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := output.OpenForWrite()
	if err != nil {
		return err
	}
	defer out.Close()

	for _, c := range assigned {
		if err := ctx.Err(); err != nil {
			return err
		}
		wrap := func(err error) error {
			return &StageError{Stage: plan.Stage, Name: st.Name(), Rank: rank, Chunk: c.Index, Err: err}
		}
		chunk, err := readChunk(ctx, log, in, plan, c)
		if err != nil {
			return wrap(err)
		}
		results, err := st.Process(ctx, chunk)
		if err != nil {
			return wrap(err)
		}
		if err := writeChunk(ctx, out, chunk, results); err != nil {
			return wrap(err)
		}
	}
	return nil
}

// rootCause picks the error that aborted the run. Workers released by a
// broken barrier or a cancelled group context report secondary errors; the
// first worker error that is neither is the one returned.
func rootCause(ctx context.Context, errs []error, fallback error) error {
	if ctx.Err() != nil {
		return fallback
	}
	for _, err := range errs {
		if err == nil || errors.Is(err, parallel.ErrBarrierBroken) || errors.Is(err, context.Canceled) {
			continue
		}
		return err
	}
	return fallback
}
