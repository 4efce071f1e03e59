package videocall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const TypeSchedule = "videocall:schedule"

// NewScheduleTask builds the retry task for req.
func NewScheduleTask(req Request) (*asynq.Task, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSchedule, b), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CallAttacher stores a scheduled call on its booking.
type CallAttacher interface {
	AttachVideoCall(ctx context.Context, bookingID uuid.UUID, callID string) error
}

// Dispatcher schedules calls inline and falls back to the queue on failure.
type Dispatcher struct {
	scheduler Scheduler
	attacher  CallAttacher
	queue     Enqueuer
	maxRetry  int
	logger    zerolog.Logger
}

func NewDispatcher(s Scheduler, a CallAttacher, queue Enqueuer, maxRetry int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{scheduler: s, attacher: a, queue: queue, maxRetry: maxRetry, logger: logger}
}

// Dispatch tries to schedule the call now. On failure it returns a
// *SchedulingError and, when a queue is configured, enqueues a retry. The
// returned error is informational: the booking stays confirmed either way.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Call, error) {
	call, err := d.scheduleAndAttach(ctx, req)
	if err == nil {
		return call, nil
	}
	schedErr := &SchedulingError{BookingID: req.BookingID, Err: err}
	if d.queue == nil {
		return nil, schedErr
	}
	if qerr := d.enqueue(ctx, req); qerr != nil {
		d.logger.Error().Err(qerr).Str("booking_id", req.BookingID.String()).Msg("failed to enqueue video call retry")
	} else {
		d.logger.Info().Str("booking_id", req.BookingID.String()).Msg("video call retry enqueued")
	}
	return nil, schedErr
}

// enqueue keys the task on the booking id so a booking is never queued twice.
func (d *Dispatcher) enqueue(ctx context.Context, req Request) error {
	task, err := NewScheduleTask(req)
	if err != nil {
		return err
	}
	_, err = d.queue.EnqueueContext(ctx, task,
		asynq.TaskID("videocall:"+req.BookingID.String()),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (d *Dispatcher) scheduleAndAttach(ctx context.Context, req Request) (*Call, error) {
	call, err := d.scheduler.Schedule(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := d.attacher.AttachVideoCall(ctx, req.BookingID, call.ID); err != nil {
		return nil, fmt.Errorf("attach call %s: %w", call.ID, err)
	}
	return call, nil
}

// HandleScheduleTask is the worker side of the retry queue.
func (d *Dispatcher) HandleScheduleTask(ctx context.Context, task *asynq.Task) error {
	var req Request
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		d.logger.Error().Err(err).Msg("invalid video call task payload")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	call, err := d.scheduleAndAttach(ctx, req)
	if err != nil {
		d.logger.Warn().Err(err).Str("booking_id", req.BookingID.String()).Msg("video call retry failed")
		return err
	}
	d.logger.Info().
		Str("booking_id", req.BookingID.String()).
		Str("call_id", call.ID).
		Msg("video call scheduled on retry")
	return nil
}

// Register installs the task handlers on mux.
func (d *Dispatcher) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSchedule, d.HandleScheduleTask)
}
