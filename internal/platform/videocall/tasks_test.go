package videocall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

type stubScheduler struct {
	err   error
	calls int
}

func (s *stubScheduler) Schedule(_ context.Context, req Request) (*Call, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Call{ID: "call_" + req.BookingID.String()[:8]}, nil
}

type stubAttacher struct {
	attached map[uuid.UUID]string
}

func (a *stubAttacher) AttachVideoCall(_ context.Context, id uuid.UUID, callID string) error {
	a.attached[id] = callID
	return nil
}

type stubQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *stubQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestDispatcher_Success(t *testing.T) {
	s := &stubScheduler{}
	a := &stubAttacher{attached: map[uuid.UUID]string{}}
	q := &stubQueue{}
	d := NewDispatcher(s, a, q, 5, zerolog.Nop())

	req := testRequest()
	call, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.attached[req.BookingID] != call.ID {
		t.Errorf("expected call attached to booking")
	}
	if len(q.tasks) != 0 {
		t.Error("no retry expected on success")
	}
}

func TestDispatcher_FailureEnqueuesRetry(t *testing.T) {
	s := &stubScheduler{err: fmt.Errorf("provider down")}
	q := &stubQueue{}
	d := NewDispatcher(s, &stubAttacher{attached: map[uuid.UUID]string{}}, q, 5, zerolog.Nop())

	req := testRequest()
	_, err := d.Dispatch(context.Background(), req)
	var se *SchedulingError
	if !errors.As(err, &se) || se.BookingID != req.BookingID {
		t.Fatalf("expected SchedulingError, got %v", err)
	}
	if len(q.tasks) != 1 || q.tasks[0].Type() != TypeSchedule {
		t.Fatalf("expected one %s task, got %d", TypeSchedule, len(q.tasks))
	}
	var payload Request
	if err := json.Unmarshal(q.tasks[0].Payload(), &payload); err != nil || payload.BookingID != req.BookingID {
		t.Errorf("unexpected task payload %s", q.tasks[0].Payload())
	}
}

func TestDispatcher_FailureWithoutQueue(t *testing.T) {
	d := NewDispatcher(&stubScheduler{err: fmt.Errorf("down")}, &stubAttacher{attached: map[uuid.UUID]string{}}, nil, 5, zerolog.Nop())
	_, err := d.Dispatch(context.Background(), testRequest())
	var se *SchedulingError
	if !errors.As(err, &se) {
		t.Errorf("expected SchedulingError, got %v", err)
	}
}

func TestDispatcher_DuplicateEnqueueIgnored(t *testing.T) {
	q := &stubQueue{err: asynq.ErrTaskIDConflict}
	d := NewDispatcher(&stubScheduler{err: fmt.Errorf("down")}, &stubAttacher{attached: map[uuid.UUID]string{}}, q, 5, zerolog.Nop())
	if err := d.enqueue(context.Background(), testRequest()); err != nil {
		t.Errorf("task id conflict should be ignored, got %v", err)
	}
}

func TestDispatcher_HandleScheduleTask(t *testing.T) {
	a := &stubAttacher{attached: map[uuid.UUID]string{}}
	d := NewDispatcher(&stubScheduler{}, a, nil, 5, zerolog.Nop())

	req := testRequest()
	task, err := NewScheduleTask(req)
	if err != nil {
		t.Fatalf("NewScheduleTask: %v", err)
	}
	if err := d.HandleScheduleTask(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.attached[req.BookingID]; !ok {
		t.Error("expected call to be attached")
	}
}

func TestDispatcher_HandleScheduleTask_BadPayload(t *testing.T) {
	d := NewDispatcher(&stubScheduler{}, &stubAttacher{attached: map[uuid.UUID]string{}}, nil, 5, zerolog.Nop())
	err := d.HandleScheduleTask(context.Background(), asynq.NewTask(TypeSchedule, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
}

func TestDispatcher_HandleScheduleTask_RetriesOnFailure(t *testing.T) {
	d := NewDispatcher(&stubScheduler{err: fmt.Errorf("down")}, &stubAttacher{attached: map[uuid.UUID]string{}}, nil, 5, zerolog.Nop())
	task, _ := NewScheduleTask(testRequest())
	err := d.HandleScheduleTask(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected retryable error, got %v", err)
	}
}
