package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcelsud/webhook-gateway/notify"
	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/rs/zerolog"
)

// DefaultHandlerTimeout bounds a single handler attempt
const DefaultHandlerTimeout = 30 * time.Second

// Recorder persists dispatch progress. webhook.Service satisfies it.
type Recorder interface {
	UpdateStatus(ctx context.Context, provider, eventID string, status webhook.Status) error
	RecordAttempt(ctx context.Context, provider, eventID string, attempt webhook.Attempt) error
}

// Options configures an Engine; zero fields take defaults
type Options struct {
	Executor       Executor
	Observer       notify.Observer
	Logger         zerolog.Logger
	HandlerTimeout time.Duration
	// Sleep waits between attempts; it returns an error when the wait was cut short
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

/* Engine runs the handlers of accepted events
 *
 * Per (event, handler) the state machine is
 *   pending -> running -> success
 *                      -> retryable failure -> pending (after delay)
 *                      -> fatal failure
 * Handlers of one event are independent of each other. The event becomes
 * completed once every handler is terminal, and failed if the engine shut
 * down while some handler still had attempts left.
 */
type Engine struct {
	registry *Registry
	recorder Recorder
	executor Executor
	observer notify.Observer
	logger   zerolog.Logger
	timeout  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
}

// NewEngine creates a dispatch engine
func NewEngine(registry *Registry, recorder Recorder, opts Options) *Engine {
	e := &Engine{
		registry: registry,
		recorder: recorder,
		executor: opts.Executor,
		observer: notify.Safe(opts.Observer),
		logger:   opts.Logger,
		timeout:  opts.HandlerTimeout,
		sleep:    opts.Sleep,
		now:      opts.Now,
		stop:     make(chan struct{}),
	}

	if e.executor == nil {
		e.executor = Inline{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultHandlerTimeout
	}
	if e.sleep == nil {
		e.sleep = e.wait
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}

	return e
}

// Summary describes what Dispatch did before returning
type Summary struct {
	Handlers int
	Async    int
	// Status is the event status when Dispatch returned; async handlers may
	// still be running when it is processing
	Status webhook.Status
}

// Dispatch runs every handler registered for the event. Synchronous handlers
// finish before Dispatch returns; asynchronous ones are handed to the executor.
func (e *Engine) Dispatch(ctx context.Context, event webhook.Event) (Summary, error) {
	// retries outlive the request that triggered them
	ctx = context.WithoutCancel(ctx)

	registrations := e.registry.Resolve(event.Provider, event.EventType)
	summary := Summary{Handlers: len(registrations)}

	// the event is already registered, so a failed status write must not keep
	// its handlers from running; redeliveries would be dropped as duplicates
	if len(registrations) == 0 {
		e.recordStatus(ctx, event, webhook.Completed)
		summary.Status = webhook.Completed
		return summary, nil
	}

	e.recordStatus(ctx, event, webhook.Processing)

	tr := &tracker{remaining: int32(len(registrations))}

	for _, reg := range registrations {
		if !reg.Async {
			e.run(ctx, event, reg, tr)
			continue
		}

		summary.Async++
		e.inflight.Add(1)
		reg := reg
		err := e.executor.Submit(func() {
			defer e.inflight.Done()
			e.run(ctx, event, reg, tr)
		})
		if err != nil {
			e.inflight.Done()
			e.logger.Error().Err(err).
				Str("provider", event.Provider).
				Str("event_id", event.EventID).
				Str("handler", reg.Name).
				Msg("async handler could not be scheduled")
			e.observer.Notify(ctx, notify.Notification{
				Kind:      notify.ActionFailed,
				Provider:  event.Provider,
				EventID:   event.EventID,
				EventType: event.EventType,
				Handler:   reg.Name,
				Final:     true,
				Reason:    "not_scheduled",
				Err:       err,
			})
			e.finish(ctx, event, tr, true)
		}
	}

	summary.Status = tr.status()
	return summary, nil
}

// run drives one handler through its attempts
func (e *Engine) run(ctx context.Context, event webhook.Event, reg Registration, tr *tracker) {
	log := e.logger.With().
		Str("provider", event.Provider).
		Str("event_id", event.EventID).
		Str("handler", reg.Name).
		Logger()

	for attempt := 1; ; attempt++ {
		started := e.now()
		err := e.invoke(ctx, event, reg)
		finished := e.now()

		final := err == nil || IsFatal(err) || attempt >= reg.MaxAttempts
		outcome := webhook.Success
		switch {
		case err == nil:
		case final:
			outcome = webhook.FatalFailure
		default:
			outcome = webhook.RetryableFailure
		}

		record := webhook.Attempt{
			Handler:    reg.Name,
			Number:     attempt,
			Outcome:    outcome,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err != nil {
			record.Error = err.Error()
		}
		if rerr := e.recorder.RecordAttempt(ctx, event.Provider, event.EventID, record); rerr != nil {
			log.Error().Err(rerr).Int("attempt", attempt).Msg("recording attempt")
		}

		n := notify.Notification{
			Provider:  event.Provider,
			EventID:   event.EventID,
			EventType: event.EventType,
			Handler:   reg.Name,
			Attempt:   attempt,
		}

		if err == nil {
			log.Debug().Int("attempt", attempt).Msg("handler succeeded")
			n.Kind = notify.ActionCompleted
			e.observer.Notify(ctx, n)
			e.finish(ctx, event, tr, false)
			return
		}

		n.Kind = notify.ActionFailed
		n.Err = err
		n.Final = final
		e.observer.Notify(ctx, n)

		if final {
			log.Warn().Err(err).Int("attempt", attempt).Msg("handler failed permanently")
			e.finish(ctx, event, tr, false)
			return
		}

		delay := reg.Delay(attempt)
		log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("handler failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("handler abandoned")
			e.observer.Notify(ctx, notify.Notification{
				Kind:      notify.ActionFailed,
				Provider:  event.Provider,
				EventID:   event.EventID,
				EventType: event.EventType,
				Handler:   reg.Name,
				Attempt:   attempt,
				Final:     true,
				Reason:    "abandoned",
				Err:       ErrAbandoned,
			})
			e.finish(ctx, event, tr, true)
			return
		}
	}
}

// invoke runs a single attempt bounded by the handler timeout. A handler that
// ignores its context is left behind once the timeout fires.
func (e *Engine) invoke(ctx context.Context, event webhook.Event, reg Registration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r}
			}
		}()
		done <- reg.Handler.Handle(attemptCtx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("handler %s: %w", reg.Name, attemptCtx.Err())
	}
}

// finish marks one handler terminal and settles the event when it was the last
func (e *Engine) finish(ctx context.Context, event webhook.Event, tr *tracker, abandoned bool) {
	if !tr.done(abandoned) {
		return
	}

	e.recordStatus(ctx, event, tr.status())
}

func (e *Engine) recordStatus(ctx context.Context, event webhook.Event, status webhook.Status) {
	if err := e.recorder.UpdateStatus(ctx, event.Provider, event.EventID, status); err != nil {
		e.logger.Error().Err(err).
			Str("provider", event.Provider).
			Str("event_id", event.EventID).
			Str("status", status.String()).
			Msg("recording event status")
	}
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-e.stop:
			return ErrAbandoned
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-e.stop:
		return ErrAbandoned
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every asynchronous handler submitted so far has finished
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Shutdown stops pending retries and waits for in-flight work or ctx expiry.
// Handlers cut off between attempts leave their event failed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stop) })

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type tracker struct {
	remaining int32
	abandoned atomic.Bool
}

// done returns true for the call that finished the last handler
func (t *tracker) done(abandoned bool) bool {
	if abandoned {
		t.abandoned.Store(true)
	}
	return atomic.AddInt32(&t.remaining, -1) == 0
}

func (t *tracker) status() webhook.Status {
	if atomic.LoadInt32(&t.remaining) > 0 {
		return webhook.Processing
	}
	if t.abandoned.Load() {
		return webhook.Failed
	}
	return webhook.Completed
}

// IsTimeout reports whether err came from the per-attempt timeout
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
