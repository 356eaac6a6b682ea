package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ---------------------------------------------------------------------------
// Async task polling
// Every remote provider follows the same deferred pattern:
// submit → poll by task id until a terminal status → interpret the payload.
// ---------------------------------------------------------------------------

// TaskStatus is the normalized status of a remote task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// RemoteTask is a snapshot of one in-flight external job.
type RemoteTask[T any] struct {
	ID     string
	Status TaskStatus
	Result T      // set when Status == TaskSucceeded
	Error  string // provider-reported reason when Status == TaskFailed
}

var (
	ErrRemoteTaskFailed   = errors.New("remote task failed")
	ErrRemoteTaskTimedOut = errors.New("remote task timed out")
)

// RemoteTaskFailedError carries the provider's reported failure.
type RemoteTaskFailedError struct {
	Provider string
	TaskID   string
	Reason   string
}

func (e *RemoteTaskFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("%s task %s failed: %s", e.Provider, e.TaskID, reason)
}

func (e *RemoteTaskFailedError) Is(target error) bool {
	return target == ErrRemoteTaskFailed
}

// RemoteTaskTimedOutError is returned when the attempt or time budget runs out
// before the task reaches a terminal status. The remote job is abandoned, not cancelled.
type RemoteTaskTimedOutError struct {
	Provider string
	TaskID   string
	Attempts int
	Elapsed  time.Duration
}

func (e *RemoteTaskTimedOutError) Error() string {
	return fmt.Sprintf("%s task %s timed out after %v (polled %d times)",
		e.Provider, e.TaskID, e.Elapsed.Round(time.Second), e.Attempts)
}

func (e *RemoteTaskTimedOutError) Is(target error) bool {
	return target == ErrRemoteTaskTimedOut
}

// Clock abstracts time so poll loops can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// PollConfig bounds one poll loop. Zero MaxAttempts and zero Timeout mean unbounded
// on that axis; at least one should be set.
type PollConfig struct {
	Provider      string        // log tag, e.g. "Runway"
	InitialDelay  time.Duration // wait before the first status query
	Interval      time.Duration // wait between status queries
	MaxInterval   time.Duration // cap when BackoffFactor > 1
	BackoffFactor float64       // <= 1 means fixed interval
	MaxAttempts   int
	Timeout       time.Duration
	Clock         Clock
}

// SubmitFunc starts a remote job and returns its task id.
type SubmitFunc func(ctx context.Context) (string, error)

// StatusFunc queries a remote job by id.
type StatusFunc[T any] func(ctx context.Context, taskID string) (RemoteTask[T], error)

// Poll submits a remote task and waits for it to reach a terminal status.
// The first status query happens after InitialDelay; each subsequent one after Interval.
func Poll[T any](ctx context.Context, cfg PollConfig, submit SubmitFunc, status StatusFunc[T]) (T, error) {
	var zero T

	taskID, err := submit(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to submit %s task: %w", cfg.Provider, err)
	}
	if taskID == "" {
		return zero, fmt.Errorf("%s returned an empty task id", cfg.Provider)
	}

	return Await(ctx, cfg, taskID, status)
}

// Await polls an already-submitted task until it is terminal or the budget is exhausted.
func Await[T any](ctx context.Context, cfg PollConfig, taskID string, status StatusFunc[T]) (T, error) {
	var zero T

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	start := clock.Now()
	attempts := 0

	timedOut := func() error {
		return &RemoteTaskTimedOutError{
			Provider: cfg.Provider,
			TaskID:   taskID,
			Attempts: attempts,
			Elapsed:  clock.Now().Sub(start),
		}
	}

	if cfg.InitialDelay > 0 {
		log.Printf("[%s] Task %s submitted, waiting %v before first poll", cfg.Provider, taskID, cfg.InitialDelay)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s task %s cancelled during initial wait: %w", cfg.Provider, taskID, ctx.Err())
		case <-clock.After(cfg.InitialDelay):
		}
	}

	for {
		if cfg.Timeout > 0 && clock.Now().Sub(start) >= cfg.Timeout {
			return zero, timedOut()
		}

		attempts++
		task, err := status(ctx, taskID)
		if err != nil {
			return zero, fmt.Errorf("failed to poll %s task %s (attempt %d): %w", cfg.Provider, taskID, attempts, err)
		}

		switch task.Status {
		case TaskSucceeded:
			log.Printf("[%s] Poll %d: task %s succeeded", cfg.Provider, attempts, taskID)
			return task.Result, nil
		case TaskFailed:
			return zero, &RemoteTaskFailedError{Provider: cfg.Provider, TaskID: taskID, Reason: task.Error}
		}

		if cfg.MaxAttempts > 0 && attempts >= cfg.MaxAttempts {
			return zero, timedOut()
		}

		log.Printf("[%s] Poll %d: task %s pending (next poll in %v)", cfg.Provider, attempts, taskID, interval)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s task %s cancelled: %w", cfg.Provider, taskID, ctx.Err())
		case <-clock.After(interval):
		}

		if cfg.BackoffFactor > 1 {
			next := time.Duration(float64(interval) * cfg.BackoffFactor)
			if cfg.MaxInterval > 0 && next > cfg.MaxInterval {
				next = cfg.MaxInterval
			}
			interval = next
		}
	}
}
