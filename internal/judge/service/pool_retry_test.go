package service

import (
	"context"
	"testing"
	"time"

	"codearena/internal/common/mq"
	appErr "codearena/pkg/errors"
)

type publishedMessage struct {
	topic string
	msg   *mq.Message
}

type fakeQueue struct {
	published []publishedMessage
	publishFn func(ctx context.Context, topic string, msg *mq.Message) error
}

func (f *fakeQueue) Publish(ctx context.Context, topic string, msg *mq.Message) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, topic, msg)
	}
	f.published = append(f.published, publishedMessage{topic: topic, msg: msg})
	return nil
}

func (f *fakeQueue) Subscribe(ctx context.Context, topic string, handler mq.HandlerFunc) error {
	return nil
}

func (f *fakeQueue) SubscribeWithOptions(ctx context.Context, topic string, handler mq.HandlerFunc, opts *mq.SubscribeOptions) error {
	return nil
}

func (f *fakeQueue) Start() error { return nil }
func (f *fakeQueue) Stop() error  { return nil }

func (f *fakeQueue) Ping(ctx context.Context) error { return nil }

func (f *fakeQueue) Close() error { return nil }

func TestParsePoolRetryCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{name: "nil headers", headers: nil, want: 0},
		{name: "missing header", headers: map[string]string{"other": "1"}, want: 0},
		{name: "valid count", headers: map[string]string{poolRetryHeader: "3"}, want: 3},
		{name: "garbage value", headers: map[string]string{poolRetryHeader: "abc"}, want: 0},
		{name: "negative value", headers: map[string]string{poolRetryHeader: "-2"}, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParsePoolRetryCount(tt.headers); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputePoolBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		retryCount int
		base       time.Duration
		max        time.Duration
		want       time.Duration
	}{
		{name: "first attempt", retryCount: 0, base: time.Second, max: 30 * time.Second, want: time.Second},
		{name: "second attempt doubles", retryCount: 1, base: time.Second, max: 30 * time.Second, want: 2 * time.Second},
		{name: "third attempt doubles again", retryCount: 2, base: time.Second, max: 30 * time.Second, want: 4 * time.Second},
		{name: "capped at max", retryCount: 10, base: time.Second, max: 30 * time.Second, want: 30 * time.Second},
		{name: "zero base disables backoff", retryCount: 3, base: 0, max: 30 * time.Second, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ComputePoolBackoff(tt.retryCount, tt.base, tt.max); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloneMessageForRetryKeepsIdentity(t *testing.T) {
	t.Parallel()
	msg := mq.NewMessage([]byte("payload"))
	msg.ID = "sub-123"
	msg.SetHeader("trace_id", "t-1")

	out := CloneMessageForRetry(msg, 2)
	if out.ID != "sub-123" {
		t.Fatalf("expected message id preserved, got %q", out.ID)
	}
	if got := out.Headers[poolRetryHeader]; got != "2" {
		t.Fatalf("expected retry header 2, got %q", got)
	}
	if got := out.Headers["trace_id"]; got != "t-1" {
		t.Fatalf("expected trace header preserved, got %q", got)
	}
	if out.RetryCount != 0 {
		t.Fatalf("expected consumer retry count reset, got %d", out.RetryCount)
	}
}

func TestRequeueForPoolFull(t *testing.T) {
	t.Parallel()
	queue := &fakeQueue{}
	msg := mq.NewMessage([]byte("task"))
	msg.ID = "sub-1"
	msg.SetHeader(poolRetryHeader, "1")

	err := RequeueForPoolFull(context.Background(), queue, "judge.tasks.retry", "judge.tasks.dead", 5, 0, 0, msg)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(queue.published))
	}
	got := queue.published[0]
	if got.topic != "judge.tasks.retry" {
		t.Fatalf("expected retry topic, got %q", got.topic)
	}
	if got.msg.ID != "sub-1" {
		t.Fatalf("expected message id preserved, got %q", got.msg.ID)
	}
	if got.msg.Headers[poolRetryHeader] != "2" {
		t.Fatalf("expected retry header incremented to 2, got %q", got.msg.Headers[poolRetryHeader])
	}
}

func TestRequeueForPoolFullDeadLetter(t *testing.T) {
	t.Parallel()
	queue := &fakeQueue{}
	msg := mq.NewMessage([]byte("task"))
	msg.ID = "sub-2"
	msg.SetHeader(poolRetryHeader, "5")

	err := RequeueForPoolFull(context.Background(), queue, "judge.tasks.retry", "judge.tasks.dead", 5, 0, 0, msg)
	if err != nil {
		t.Fatalf("dead letter publish failed: %v", err)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(queue.published))
	}
	got := queue.published[0]
	if got.topic != "judge.tasks.dead" {
		t.Fatalf("expected dead letter topic, got %q", got.topic)
	}
	if got.msg.Headers[poolRetryHeader] != "5" {
		t.Fatalf("expected retry header unchanged at 5, got %q", got.msg.Headers[poolRetryHeader])
	}
}

func TestRequeueForPoolFullMisconfigured(t *testing.T) {
	t.Parallel()
	msg := mq.NewMessage([]byte("task"))
	if err := RequeueForPoolFull(context.Background(), nil, "judge.tasks.retry", "", 5, 0, 0, msg); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable for nil queue, got %v", err)
	}
	if err := RequeueForPoolFull(context.Background(), &fakeQueue{}, "judge.tasks.retry", "", 5, 0, 0, nil); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams for nil message, got %v", err)
	}
}
