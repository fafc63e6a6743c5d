package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uemerson/tokenrelay/internal/pubsub"
	"github.com/uemerson/tokenrelay/internal/queue"
	logpkg "github.com/uemerson/tokenrelay/pkg/log"
)

const testCID = "7f9c24e8-b467-4d3f-b2a9-6b3f1b0c9d21"

type captureSink struct {
	mu       sync.Mutex
	frames   []Frame
	failSend bool
}

func (c *captureSink) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("client gone")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *captureSink) Flush() error { return nil }

func (c *captureSink) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func (c *captureSink) terminals() int {
	n := 0
	for _, f := range c.snapshot() {
		if f.Kind != FrameMessage {
			n++
		}
	}
	return n
}

type enqueueFunc func(ctx context.Context, job queue.Job) error

func (f enqueueFunc) Enqueue(ctx context.Context, job queue.Job) error { return f(ctx, job) }

func newServiceForTest(t *testing.T, opts Options) (*Service, *pubsub.Memory, *queue.Memory) {
	t.Helper()
	bus := pubsub.NewMemory()
	q := queue.NewMemory()
	svc := New(bus, q, opts, logpkg.Discard())
	return svc, bus, q
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestSubmitAndStreamCompletes(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: time.Second})
	sink := &captureSink{}
	done := make(chan State, 1)
	go func() {
		st, err := svc.SubmitAndStream(context.Background(), Request{Query: "Hello world", CorrelationID: testCID}, sink)
		if err != nil {
			t.Errorf("submit: %v", err)
		}
		done <- st
	}()

	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "subscription open")
	for i := 0; i < 5; i++ {
		if err := bus.Publish(context.Background(), ch, pubsub.Token(fmt.Sprintf("w%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := bus.Publish(context.Background(), ch, pubsub.Done()); err != nil {
		t.Fatalf("publish done: %v", err)
	}

	st := <-done
	if st != StateCompleted {
		t.Fatalf("state: %v", st)
	}
	frames := sink.snapshot()
	if len(frames) != 6 {
		t.Fatalf("frames: %d", len(frames))
	}
	for i := 0; i < 5; i++ {
		if frames[i].Kind != FrameMessage || frames[i].Data != fmt.Sprintf("w%d", i) {
			t.Fatalf("frame %d out of order: %+v", i, frames[i])
		}
	}
	if frames[5].Kind != FrameDone {
		t.Fatalf("terminal frame: %+v", frames[5])
	}
	if sink.terminals() != 1 {
		t.Fatalf("terminal frames: %d", sink.terminals())
	}
	if bus.SubscriberCount(ch) != 0 {
		t.Fatalf("subscription leaked")
	}
	if svc.ActiveSessions() != 0 {
		t.Fatalf("session leaked")
	}
}

func TestSubscribeHappensBeforeEnqueue(t *testing.T) {
	// A worker that picks the job up instantly publishes tokens during
	// Enqueue itself; the subscription must already exist.
	bus := pubsub.NewMemory()
	enq := enqueueFunc(func(ctx context.Context, job queue.Job) error {
		ch := pubsub.Channel(job.UUID)
		if bus.SubscriberCount(ch) != 1 {
			return fmt.Errorf("no subscriber at enqueue time")
		}
		for i := 0; i < 3; i++ {
			if err := bus.Publish(ctx, ch, pubsub.Token(fmt.Sprintf("t%d", i))); err != nil {
				return err
			}
		}
		return bus.Publish(ctx, ch, pubsub.Done())
	})
	svc := New(bus, enq, Options{IdleTimeout: time.Second}, logpkg.Discard())

	sink := &captureSink{}
	st, err := svc.SubmitAndStream(context.Background(), Request{Query: "hi"}, sink)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st != StateCompleted {
		t.Fatalf("state: %v", st)
	}
	frames := sink.snapshot()
	if len(frames) != 4 {
		t.Fatalf("missed early tokens: %d frames", len(frames))
	}
	for i := 0; i < 3; i++ {
		if frames[i].Data != fmt.Sprintf("t%d", i) {
			t.Fatalf("frame %d: %+v", i, frames[i])
		}
	}
}

func TestInvalidRequests(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: time.Second})
	sink := &captureSink{}

	if _, err := svc.SubmitAndStream(context.Background(), Request{Query: "  "}, sink); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty query err: %v", err)
	}
	if _, err := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: "has space"}, sink); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("unsafe id err: %v", err)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatalf("frames sent on rejected request")
	}
	if bus.SubscriberCount(pubsub.Channel("has space")) != 0 {
		t.Fatalf("subscription leaked on rejection")
	}
}

// Correlation ids are opaque caller tokens; nothing requires UUID form.
func TestOpaqueCallerIDStreams(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: time.Second})
	sink := &captureSink{}
	done := make(chan State, 1)
	go func() {
		st, err := svc.SubmitAndStream(context.Background(), Request{Query: "Hello world", CorrelationID: "abc-123"}, sink)
		if err != nil {
			t.Errorf("submit: %v", err)
		}
		done <- st
	}()

	ch := pubsub.Channel("abc-123")
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "subscription open")
	_ = bus.Publish(context.Background(), ch, pubsub.Token("Hello"))
	_ = bus.Publish(context.Background(), ch, pubsub.Token("world"))
	_ = bus.Publish(context.Background(), ch, pubsub.Done())

	if st := <-done; st != StateCompleted {
		t.Fatalf("state: %v", st)
	}
	frames := sink.snapshot()
	if len(frames) != 3 || frames[0].Data != "Hello" || frames[1].Data != "world" || frames[2].Kind != FrameDone {
		t.Fatalf("frames: %+v", frames)
	}
}

func TestDuplicateCorrelationIDRejected(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: time.Second})
	first := make(chan State, 1)
	go func() {
		st, _ := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, &captureSink{})
		first <- st
	}()
	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "first stream open")

	if _, err := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, &captureSink{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("duplicate id err: %v", err)
	}

	_ = bus.Publish(context.Background(), ch, pubsub.Done())
	if st := <-first; st != StateCompleted {
		t.Fatalf("first stream state: %v", st)
	}
}

func TestQueueUnavailableLeaksNothing(t *testing.T) {
	svc, bus, q := newServiceForTest(t, Options{IdleTimeout: time.Second})
	q.SetDown(true)
	sink := &captureSink{}
	_, err := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, sink)
	if !errors.Is(err, queue.ErrQueueUnavailable) {
		t.Fatalf("err: %v", err)
	}
	if len(sink.snapshot()) != 0 {
		t.Fatalf("partial stream started")
	}
	if bus.SubscriberCount(pubsub.Channel(testCID)) != 0 {
		t.Fatalf("subscription leaked")
	}
	if svc.ActiveSessions() != 0 {
		t.Fatalf("session leaked")
	}
}

func TestIdleTimeout(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: 30 * time.Millisecond})
	sink := &captureSink{}
	st, err := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, sink)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st != StateTimedOut {
		t.Fatalf("state: %v", st)
	}
	frames := sink.snapshot()
	if len(frames) != 1 || frames[0].Kind != FrameTimeout {
		t.Fatalf("frames: %+v", frames)
	}
	if bus.SubscriberCount(pubsub.Channel(testCID)) != 0 {
		t.Fatalf("subscription leaked after timeout")
	}
}

func TestIdleTimerResetsOnActivity(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: 80 * time.Millisecond})
	sink := &captureSink{}
	done := make(chan State, 1)
	go func() {
		st, _ := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, sink)
		done <- st
	}()
	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "stream open")

	// Keep publishing under the idle window for longer than the window.
	for i := 0; i < 5; i++ {
		time.Sleep(40 * time.Millisecond)
		_ = bus.Publish(context.Background(), ch, pubsub.Token("tick"))
	}
	_ = bus.Publish(context.Background(), ch, pubsub.Done())
	if st := <-done; st != StateCompleted {
		t.Fatalf("state: %v (idle timer fired despite activity)", st)
	}
}

func TestCancellationReleasesPromptly(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	sink := &captureSink{}
	done := make(chan State, 1)
	go func() {
		st, _ := svc.SubmitAndStream(ctx, Request{Query: "hi", CorrelationID: testCID}, sink)
		done <- st
	}()
	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "stream open")

	cancel()
	select {
	case st := <-done:
		if st != StateCancelled {
			t.Fatalf("state: %v", st)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancellation not detected promptly")
	}
	if len(sink.snapshot()) != 0 {
		t.Fatalf("frames sent after cancellation: %+v", sink.snapshot())
	}
	if bus.SubscriberCount(ch) != 0 {
		t.Fatalf("subscription leaked after cancel")
	}
}

func TestWorkerFailureMarker(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: time.Second})
	sink := &captureSink{}
	done := make(chan State, 1)
	go func() {
		st, _ := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, sink)
		done <- st
	}()
	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "stream open")

	_ = bus.Publish(context.Background(), ch, pubsub.Token("partial"))
	_ = bus.Publish(context.Background(), ch, pubsub.Event{Event: pubsub.KindError})

	if st := <-done; st != StateUpstreamError {
		t.Fatalf("state: %v", st)
	}
	frames := sink.snapshot()
	if len(frames) != 2 || frames[1].Kind != FrameError {
		t.Fatalf("frames: %+v", frames)
	}
	if sink.terminals() != 1 {
		t.Fatalf("terminal frames: %d", sink.terminals())
	}
}

func TestSubscriptionDropIsUpstreamError(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: 10 * time.Second})
	sink := &captureSink{}
	done := make(chan State, 1)
	go func() {
		st, _ := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, sink)
		done <- st
	}()
	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "stream open")

	bus.DropChannel(ch)
	if st := <-done; st != StateUpstreamError {
		t.Fatalf("state: %v", st)
	}
	frames := sink.snapshot()
	if len(frames) != 1 || frames[0].Kind != FrameError {
		t.Fatalf("frames: %+v", frames)
	}
}

func TestSinkWriteFailureIsCancelled(t *testing.T) {
	svc, bus, _ := newServiceForTest(t, Options{IdleTimeout: time.Second})
	sink := &captureSink{failSend: true}
	done := make(chan State, 1)
	go func() {
		st, _ := svc.SubmitAndStream(context.Background(), Request{Query: "hi", CorrelationID: testCID}, sink)
		done <- st
	}()
	ch := pubsub.Channel(testCID)
	waitFor(t, func() bool { return bus.SubscriberCount(ch) == 1 }, "stream open")

	_ = bus.Publish(context.Background(), ch, pubsub.Token("x"))
	if st := <-done; st != StateCancelled {
		t.Fatalf("state: %v", st)
	}
}
