package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

type scriptedQueue struct {
	ch       chan queueMessage
	deleted  int
	delMutex sync.Mutex
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{ch: make(chan queueMessage, 10)}
}

func (s *scriptedQueue) enqueue(msg queueMessage) {
	s.ch <- msg
}

func (s *scriptedQueue) Send(context.Context, string) error {
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []queueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(context.Context, string) error {
	s.delMutex.Lock()
	s.deleted++
	s.delMutex.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	return s.deleted
}

type recordingHandler struct {
	mu     sync.Mutex
	reqs   []conversation.MessageRequest
	result *Result
}

func (h *recordingHandler) HandleIncomingMessage(_ context.Context, req conversation.MessageRequest) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	if h.result != nil {
		return h.result, nil
	}
	return &Result{Success: true, Type: TypeText}, nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reqs)
}

type stubJobUpdater struct {
	mu        sync.Mutex
	completed []string
	failed    map[string]string
}

func (s *stubJobUpdater) MarkCompleted(_ context.Context, jobID string, _ *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	return nil
}

func (s *stubJobUpdater) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = make(map[string]string)
	}
	s.failed[jobID] = errMsg
	return nil
}

func (s *stubJobUpdater) snapshot() ([]string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make(map[string]string, len(s.failed))
	for k, v := range s.failed {
		failed[k] = v
	}
	return append([]string(nil), s.completed...), failed
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func enqueueJob(t *testing.T, q *scriptedQueue, payload queuePayload, handle string) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	q.enqueue(queueMessage{ID: "msg-" + handle, Body: string(body), ReceiptHandle: handle})
}

func TestWorkerProcessesMessages(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{}
	store := &stubJobUpdater{}
	worker := NewWorker(handler, queue, store, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	enqueueJob(t, queue, queuePayload{
		ID:          "job-1",
		Kind:        jobTypeMessage,
		TrackStatus: true,
		Message:     conversation.MessageRequest{ConversationID: "conv-1", LeadID: 42, Prompt: "hola"},
	}, "rh-1")

	waitFor(func() bool { return queue.deletedCount() > 0 }, time.Second, t)
	cancel()
	worker.Wait()

	if handler.count() != 1 || handler.reqs[0].LeadID != 42 {
		t.Fatalf("expected one handled message for lead 42, got %#v", handler.reqs)
	}
	completed, _ := store.snapshot()
	if len(completed) != 1 || completed[0] != "job-1" {
		t.Fatalf("expected job completion to be recorded, got %#v", completed)
	}
}

func TestWorkerMarksUnsuccessfulResultsFailed(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{result: &Result{Type: TypeTextError, Error: "kommo: 502"}}
	store := &stubJobUpdater{}
	worker := NewWorker(handler, queue, store, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	enqueueJob(t, queue, queuePayload{ID: "job-2", Kind: jobTypeMessage, TrackStatus: true}, "rh-2")
	waitFor(func() bool { return queue.deletedCount() > 0 }, time.Second, t)
	cancel()
	worker.Wait()

	_, failed := store.snapshot()
	if failed["job-2"] != "text-error: kommo: 502" {
		t.Fatalf("unexpected failure record %#v", failed)
	}
}

func TestWorkerSkipsUntrackedAndUnknownJobs(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{}
	store := &stubJobUpdater{}
	worker := NewWorker(handler, queue, store, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	enqueueJob(t, queue, queuePayload{ID: "job-3", Kind: jobTypeMessage}, "rh-3")
	enqueueJob(t, queue, queuePayload{ID: "job-4", Kind: "mystery", TrackStatus: true}, "rh-4")
	queue.enqueue(queueMessage{ID: "bad", Body: "{not json", ReceiptHandle: "rh-5"})

	waitFor(func() bool { return queue.deletedCount() == 3 }, time.Second, t)
	cancel()
	worker.Wait()

	completed, failed := store.snapshot()
	if len(completed) != 0 {
		t.Fatalf("untracked job should not be recorded, got %#v", completed)
	}
	if _, ok := failed["job-4"]; !ok || len(failed) != 1 {
		t.Fatalf("expected only the unknown job to fail, got %#v", failed)
	}
	if handler.count() != 1 {
		t.Fatalf("expected one handled message, got %d", handler.count())
	}
}

func TestPublisherAndMemoryQueueRoundTrip(t *testing.T) {
	queue := NewMemoryQueue(4)
	publisher := NewPublisher(queue, logging.Default())
	ctx := context.Background()

	req := conversation.MessageRequest{ConversationID: "conv-9", LeadID: 9, Prompt: "hola"}
	if err := publisher.EnqueueMessage(ctx, "job-9", req, WithoutJobTracking()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one queued message, got %d", queue.Len())
	}

	msgs, err := queue.Receive(ctx, 5, 1)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("receive: %v (%d messages)", err, len(msgs))
	}
	var payload queuePayload
	if err := json.Unmarshal([]byte(msgs[0].Body), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.ID != "job-9" || payload.Kind != jobTypeMessage || payload.TrackStatus {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Message.LeadID != 9 || payload.ReceivedAt.IsZero() {
		t.Fatalf("unexpected message %#v", payload)
	}
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	queue := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msgs, err := queue.Receive(ctx, 1, 0)
	if err == nil || len(msgs) != 0 {
		t.Fatalf("expected context error on empty queue, got %v / %d", err, len(msgs))
	}
}
