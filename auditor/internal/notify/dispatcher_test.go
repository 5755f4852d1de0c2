package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type outcomes struct {
	mu   sync.Mutex
	errs map[int64]error
}

func (o *outcomes) record(m Message, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.errs == nil {
		o.errs = map[int64]error{}
	}
	o.errs[m.EventID] = err
}

func (o *outcomes) get(id int64) (error, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	err, ok := o.errs[id]
	return err, ok
}

func (o *outcomes) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errs)
}

func msg(id int64) Message {
	m := testMessage()
	m.EventID = id
	return m
}

func TestDispatcher_SendIsNonBlocking(t *testing.T) {
	slow := &fakeSender{name: "slow", wait: time.Hour}
	d := NewDispatcher(slow, 4, time.Second, nil)

	start := time.Now()
	for i := int64(0); i < 3; i++ {
		if err := d.Send(context.Background(), msg(i)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Send should return immediately without a running drain loop")
	}
	if d.Pending() != 3 {
		t.Errorf("Pending = %d, want 3", d.Pending())
	}
	if d.Name() != "async:slow" {
		t.Errorf("Name = %q", d.Name())
	}
}

func TestDispatcher_DropsOldestWhenFull(t *testing.T) {
	var got outcomes
	d := NewDispatcher(&fakeSender{name: "f"}, 2, time.Second, got.record)

	for i := int64(1); i <= 3; i++ {
		_ = d.Send(context.Background(), msg(i))
	}

	err, ok := got.get(1)
	if !ok || !errors.Is(err, ErrDropped) {
		t.Fatalf("event 1 outcome = %v (reported %v), want ErrDropped", err, ok)
	}
	if d.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", d.Pending())
	}
}

func TestDispatcher_RunDeliversAndReports(t *testing.T) {
	var got outcomes
	ok := &fakeSender{name: "ok"}
	d := NewDispatcher(ok, 8, time.Second, got.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := int64(1); i <= 3; i++ {
		_ = d.Send(ctx, msg(i))
	}

	deadline := time.After(2 * time.Second)
	for got.len() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d outcomes reported", got.len())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if n := len(ok.messages()); n != 3 {
		t.Errorf("delivered %d messages, want 3", n)
	}
	for i := int64(1); i <= 3; i++ {
		if err, _ := got.get(i); err != nil {
			t.Errorf("event %d: unexpected error %v", i, err)
		}
	}
}

func TestDispatcher_ReportsFailures(t *testing.T) {
	var got outcomes
	d := NewDispatcher(&fakeSender{name: "bad", err: errors.New("smtp down")}, 2, time.Second, got.record)
	_ = d.Send(context.Background(), msg(9))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx) // cancelled: flushes what is queued, then returns

	err, ok := got.get(9)
	if !ok || err == nil || err.Error() != "smtp down" {
		t.Fatalf("outcome = %v (reported %v), want smtp down", err, ok)
	}
}

func TestDispatcher_TimeoutBoundsEachSend(t *testing.T) {
	var got outcomes
	d := NewDispatcher(&fakeSender{name: "slow", wait: time.Hour}, 1, 20*time.Millisecond, got.record)
	_ = d.Send(context.Background(), msg(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	d.Run(ctx)

	if time.Since(start) > time.Second {
		t.Fatal("flush should be bounded by the per-message timeout")
	}
	if err, _ := got.get(1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("outcome = %v, want deadline exceeded", err)
	}
}

func TestHold_QueuesOnlyAfterRelease(t *testing.T) {
	d := NewDispatcher(&fakeSender{name: "f"}, 4, time.Second, nil)
	ctx, hold := WithHold(context.Background())
	timed, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	_ = d.Send(timed, msg(1))
	_ = d.Send(ctx, msg(2))
	if d.Pending() != 0 || hold.Len() != 2 {
		t.Fatalf("Pending = %d, held = %d; want 0 and 2", d.Pending(), hold.Len())
	}

	hold.Release()
	if d.Pending() != 2 || hold.Len() != 0 {
		t.Fatalf("after Release: Pending = %d, held = %d; want 2 and 0", d.Pending(), hold.Len())
	}
	if first := <-d.buf; first.EventID != 1 {
		t.Errorf("first queued event = %d, want 1", first.EventID)
	}

	_ = d.Send(ctx, msg(3))
	hold.Release()
	if d.Pending() != 2 {
		t.Errorf("send after Release should queue directly: Pending = %d", d.Pending())
	}
}

func TestObserved_ReportsOutcome(t *testing.T) {
	var got []error
	o := Observed{
		Sender: &fakeSender{name: "smtp", err: errors.New("down")},
		Done:   func(_ Message, err error) { got = append(got, err) },
	}
	err := o.Send(context.Background(), Message{EventID: 1})
	if err == nil || len(got) != 1 || got[0] != err {
		t.Fatalf("Send err = %v, reported %v", err, got)
	}
	if o.Name() != "smtp" {
		t.Errorf("Name = %q", o.Name())
	}
}
