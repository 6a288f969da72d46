package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"upsmon/internal/observability/metrics"
	"upsmon/internal/storage"
	kit "upsmon/internal/transport"
	logx "upsmon/pkg/logx"
)

// Drainer is the consumer side of the queue. Requeue puts entries back at the
// head when a batch cannot be finished.
type Drainer interface {
	DrainAll(ctx context.Context) ([]storage.Entry, error)
	Requeue(ctx context.Context, entries []storage.Entry) error
}

const requeueTimeout = 5 * time.Second

type Service struct {
	cfg     Config
	queue   Drainer
	sender  kit.Sender
	audit   storage.Audit
	metrics *metrics.Metrics
	log     logx.Logger
	now     func() time.Time

	limiter *rate.Limiter

	// drainMu keeps the interval and watch triggers from delivering
	// concurrently, which would break ordering.
	drainMu sync.Mutex
	// watchPath is the file Run watches; defaults to the queue path when the
	// drainer exposes one.
	watchPath string
}

type Option func(*Service)

func WithAudit(a storage.Audit) Option      { return func(s *Service) { s.audit = a } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWatchPath sets the file whose changes trigger an early drain.
func WithWatchPath(p string) Option { return func(s *Service) { s.watchPath = p } }

func New(cfg Config, queue Drainer, sender kit.Sender, log logx.Logger, opts ...Option) (*Service, error) {
	if queue == nil || sender == nil {
		return nil, errors.New("notifier: queue and sender are required")
	}
	if cfg.Target.ChatID == 0 {
		return nil, errors.New("notifier: target chat id required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:     cfg,
		queue:   queue,
		sender:  sender,
		log:     log,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
	if p, ok := queue.(interface{ Path() string }); ok {
		s.watchPath = p.Path()
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ShutdownGrace is the effective grace period for a running batch.
func (s *Service) ShutdownGrace() time.Duration { return s.cfg.ShutdownGrace }

// DrainOnce empties the queue and delivers what it held. A failed entry does
// not stop the rest and is not re-enqueued.
//
// Once drained, the batch runs on a context detached from ctx. When ctx ends
// the batch gets ShutdownGrace to finish; entries it could not get to (and
// one cut off mid-send) go back to the head of the queue and are counted in
// Result.Requeued. The error is non-nil when the queue could not be drained
// or the batch was cut short.
func (s *Service) DrainOnce(ctx context.Context) (Result, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	entries, err := s.queue.DrainAll(ctx)
	if err != nil {
		s.log.Error("queue drain failed", logx.Err(err))
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{}, nil
	}
	s.metrics.ObserveDrain(len(entries))

	bctx, cancel := s.batchContext(ctx)
	defer cancel()

	var res Result
	for i, e := range entries {
		if err := s.limiter.Wait(bctx); err != nil {
			return s.requeueRest(ctx, res, entries[i:], err)
		}
		ok, attempts, took, err := s.deliver(bctx, e)
		if !ok && bctx.Err() != nil {
			return s.requeueRest(ctx, res, entries[i:], bctx.Err())
		}
		s.record(bctx, e, attempts, took, err)
		if ok {
			res.Delivered++
		} else {
			res.Failed++
		}
	}
	s.log.Info("queue processed", logx.Int("delivered", res.Delivered), logx.Int("failed", res.Failed))
	return res, nil
}

// batchContext outlives ctx by at most ShutdownGrace.
func (s *Service) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		t := time.NewTimer(s.cfg.ShutdownGrace)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-bctx.Done():
		}
	})
	return bctx, func() {
		stop()
		cancel()
	}
}

func (s *Service) requeueRest(ctx context.Context, res Result, rest []storage.Entry, cause error) (Result, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	if err := s.queue.Requeue(rctx, rest); err != nil {
		for _, e := range rest {
			s.record(rctx, e, 0, 0, cause)
		}
		res.Failed += len(rest)
		s.log.Error("drain interrupted; requeue failed, messages dropped", logx.Int("dropped", len(rest)), logx.Err(err))
		return res, errors.Join(cause, err)
	}
	res.Requeued += len(rest)
	s.log.Warn("drain interrupted; messages requeued", logx.Int("requeued", len(rest)), logx.Err(cause))
	return res, cause
}

// deliver sends one entry with retries. Long messages go out as several
// chunks; a retry resumes at the chunk that failed so earlier ones are not
// sent twice.
func (s *Service) deliver(ctx context.Context, e storage.Entry) (ok bool, attempts int, took time.Duration, err error) {
	opt := &kit.SendOptions{ParseMode: s.cfg.ParseMode}
	start := s.now()
	chunks := kit.SplitText(e.Message, kit.TextLimit)
	next := 0

	op := func() error {
		attempts++
		for next < len(chunks) {
			sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
			_, err := s.sender.SendText(sctx, s.cfg.Target, chunks[next], opt)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				s.log.Debug("send attempt failed", logx.String("id", e.ID), logx.Int("attempt", attempts), logx.Int("chunk", next), logx.Err(err))
				return err
			}
			next++
		}
		return nil
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(s.retryPolicy(), uint64(s.cfg.RetryMax)), ctx))
	took = s.now().Sub(start)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("message delivery failed; dropped",
				logx.String("id", e.ID),
				logx.String("type", string(e.Type)),
				logx.Int("attempts", attempts),
				logx.Err(err),
			)
		}
		return false, attempts, took, err
	}
	s.log.Info("message sent", logx.String("id", e.ID), logx.String("type", string(e.Type)), logx.Int("attempts", attempts))
	return true, attempts, took, nil
}

func (s *Service) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBase
	b.MaxInterval = s.cfg.RetryMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Service) record(ctx context.Context, e storage.Entry, attempts int, took time.Duration, err error) {
	var waited time.Duration
	if !e.Timestamp.IsZero() {
		waited = s.now().Sub(e.Timestamp)
	}
	s.metrics.ObserveDelivery(string(e.Type), err == nil, took, waited)

	if s.audit == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:       s.now(),
		EntryID:  e.ID,
		Type:     e.Type,
		QueuedAt: e.Timestamp,
		OK:       err == nil,
		Attempts: attempts,
		TookMS:   took.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	actx := ctx
	if actx.Err() != nil {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(context.Background(), time.Second)
		defer cancel()
	}
	if aerr := s.audit.AppendDelivery(actx, rec); aerr != nil {
		s.log.Warn("audit append failed", logx.String("id", e.ID), logx.Err(aerr))
	}
}

