package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ocr-lab/contract"
	"ocr-lab/domain"
	"ocr-lab/errors"
	"ocr-lab/ocr"
)

// Ensure *Pool implements the contract.Engine interface at compile time.
var _ contract.Engine = (*Pool)(nil)

type recognizeJob struct {
	job   domain.Job
	reply chan jobReply
}

type jobReply struct {
	words []domain.Word
	err   error
}

// Pool is the native engine: a fixed set of recognition workers drawing from
// a shared job channel. Submitting blocks until a worker picks the job up;
// once dispatched a job runs to completion, there is no mid-flight cancel.
type Pool struct {
	log  *slog.Logger
	size int
	jobs chan recognizeJob
}

func NewPool(log *slog.Logger, size, bufferSize int) *Pool {
	if size <= 0 {
		size = 2
	}
	return &Pool{
		log:  log,
		size: size,
		jobs: make(chan recognizeJob, bufferSize),
	}
}

func (p *Pool) ID() domain.EngineID { return domain.EngineTesseract }

func (p *Pool) Size() int { return p.size }

// Probe reports whether the native recognizer is compiled in and usable.
func (p *Pool) Probe() bool { return ocr.Enabled }

// Workers returns the pool units to hand to the supervisor. Each unit owns
// its own recognizer since the Tesseract client is not concurrency safe.
func (p *Pool) Workers() []contract.Worker {
	units := make([]contract.Worker, p.size)
	for i := range units {
		units[i] = &poolUnitWorker{jobs: p.jobs, recognizer: ocr.New(), log: p.log}
	}
	return units
}

// Invoke schedules the job on the pool and waits for the reply under the
// job's wall-clock budget. The reply channel is buffered so a worker
// finishing after the deadline never blocks.
func (p *Pool) Invoke(ctx context.Context, job domain.Job) (*domain.EngineResult, error) {
	start := time.Now()
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	rj := recognizeJob{job: job, reply: make(chan jobReply, 1)}
	select {
	case p.jobs <- rj:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s queue full after %s", errors.ErrEngineTimeout, p.ID(), timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrEngineTimeout, p.ID(), ctx.Err())
	}

	select {
	case reply := <-rj.reply:
		if reply.err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errors.ErrEngineFailure, p.ID(), reply.err)
		}
		page := domain.AssemblePage(1, reply.words)
		return domain.NewEngineResult(p.ID(), []domain.Page{page}, job.Language, time.Since(start), domain.Metadata{
			CorrelationID: job.CorrelationID,
			Timestamp:     time.Now().UTC(),
		}), nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", errors.ErrEngineTimeout, p.ID(), timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrEngineTimeout, p.ID(), ctx.Err())
	}
}

// Ensure *poolUnitWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*poolUnitWorker)(nil)

type poolUnitWorker struct {
	jobs       chan recognizeJob
	recognizer *ocr.Recognizer
	log        *slog.Logger
}

func (w *poolUnitWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping pool unit")
			return ctx.Err()
		case rj, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Job channel is closed")
				return nil
			}
			words, err := w.recognizer.Recognize(ctx, rj.job.Image, rj.job.Language)
			rj.reply <- jobReply{words: words, err: err}
		}
	}
}
