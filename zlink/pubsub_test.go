package zlink

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zlinklabs/zlink-go/internal/mesh"
)

func testSession(t *testing.T, m *mesh.Mesh) *Session {
	t.Helper()
	s, err := NewSession().withMesh(m).Build()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitSample(t *testing.T, ch <-chan *Sample) *Sample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
		return nil
	}
}

func TestPubSubRoundTrip(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 1)
	sub, err := s.DeclareSubscriber("demo/room/*").
		WithCallback(func(smp *Sample) { samples <- smp }).
		Build()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Undeclare()

	pub, err := s.DeclarePublisher("demo/room/temp").
		WithEncoding(EncodingTextPlain).
		WithPriority(PriorityDataHigh).
		WithExpress().
		Build()
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	defer pub.Undeclare()

	if err := pub.Put([]byte("21.5")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got := waitSample(t, samples)
	defer got.Release()
	if got.KeyExpr != "demo/room/temp" {
		t.Errorf("KeyExpr = %q", got.KeyExpr)
	}
	if got.Kind != KindPut {
		t.Errorf("Kind = %v, want PUT", got.Kind)
	}
	if got.Payload.String() != "21.5" {
		t.Errorf("Payload = %q", got.Payload.String())
	}
	if got.Attachment != nil {
		t.Errorf("Attachment should be nil when none was sent")
	}
	if got.Encoding != EncodingTextPlain {
		t.Errorf("Encoding = %v, want text/plain", got.Encoding)
	}
	if got.Priority != PriorityDataHigh {
		t.Errorf("Priority = %v", got.Priority)
	}
	if !got.Express {
		t.Error("Express flag should survive the trip")
	}
	if got.Timestamp == 0 {
		t.Error("Timestamp should be stamped at routing")
	}
}

func TestPutEmptyPayload(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 1)
	sub, err := s.DeclareSubscriber("demo/empty").
		WithCallback(func(smp *Sample) { samples <- smp }).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	if err := s.Put("demo/empty", nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	got := waitSample(t, samples)
	defer got.Release()
	if got.Kind != KindPut {
		t.Errorf("Kind = %v, want PUT for an empty put", got.Kind)
	}
	if got.Payload.Len() != 0 {
		t.Errorf("Payload length = %d, want 0", got.Payload.Len())
	}
	if got.Payload.Released() {
		t.Error("empty payload must still be a valid owned buffer")
	}
}

func TestDelete(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 1)
	sub, err := s.DeclareSubscriber("demo/gone").
		WithCallback(func(smp *Sample) { samples <- smp }).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	if err := s.Delete("demo/gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := waitSample(t, samples)
	defer got.Release()
	if got.Kind != KindDelete {
		t.Errorf("Kind = %v, want DELETE", got.Kind)
	}
	if got.Payload.Len() != 0 {
		t.Errorf("delete payload length = %d, want 0", got.Payload.Len())
	}
}

func TestPutWithAttachment(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 1)
	sub, err := s.DeclareSubscriber("demo/attach").
		WithCallback(func(smp *Sample) { samples <- smp }).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	err = s.PutWith("demo/attach", []byte("body"), &PutOptions{
		Attachment: []byte("meta"),
		Encoding:   EncodingApplicationJSON,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got := waitSample(t, samples)
	defer got.Release()
	if got.Attachment.String() != "meta" {
		t.Errorf("Attachment = %q", got.Attachment.String())
	}
	if got.Encoding != EncodingApplicationJSON {
		t.Errorf("Encoding = %v", got.Encoding)
	}
}

func TestPutWithInheritsDeclaredOptions(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 1)
	sub, err := s.DeclareSubscriber("demo/inherit").
		WithCallback(func(smp *Sample) { samples <- smp }).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	pub, err := s.DeclarePublisher("demo/inherit").
		WithEncoding(EncodingApplicationJSON).
		WithCongestionControl(CongestionDrop).
		WithPriority(PriorityInteractiveHigh).
		WithExpress().
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Undeclare()

	// Only the attachment is set per call; everything else must come
	// from the declared options.
	if err := pub.PutWith([]byte("body"), &PutOptions{Attachment: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	got := waitSample(t, samples)
	defer got.Release()
	if got.Encoding != EncodingApplicationJSON {
		t.Errorf("Encoding = %s, want declared application/json", got.Encoding)
	}
	if got.Congestion != CongestionDrop {
		t.Errorf("Congestion = %d, want declared CongestionDrop", got.Congestion)
	}
	if got.Priority != PriorityInteractiveHigh {
		t.Errorf("Priority = %d, want declared priority", got.Priority)
	}
	if !got.Express {
		t.Error("Express = false, want declared express flag")
	}
	if got.Attachment.String() != "a" {
		t.Errorf("Attachment = %q, want per-call attachment", got.Attachment.String())
	}

	// An explicit per-call value overrides the declared one.
	if err := pub.PutWith([]byte("body"), &PutOptions{Encoding: EncodingTextPlain}); err != nil {
		t.Fatal(err)
	}
	got = waitSample(t, samples)
	defer got.Release()
	if got.Encoding != EncodingTextPlain {
		t.Errorf("Encoding = %s, want per-call text/plain", got.Encoding)
	}
	if got.Priority != PriorityInteractiveHigh {
		t.Errorf("Priority = %d, declared priority should still apply", got.Priority)
	}
}

func TestPutDefaultEquivalence(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 2)
	sub, err := s.DeclareSubscriber("demo/equiv").
		WithCallback(func(smp *Sample) { samples <- smp }).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	pub, err := s.DeclarePublisher("demo/equiv").Build()
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Undeclare()

	payload := []byte("same")
	if err := pub.Put(payload); err != nil {
		t.Fatal(err)
	}
	defaults := DefaultPutOptions()
	if err := pub.PutWith(payload, &defaults); err != nil {
		t.Fatal(err)
	}

	plain := waitSample(t, samples)
	defer plain.Release()
	explicit := waitSample(t, samples)
	defer explicit.Release()

	if plain.Payload.String() != explicit.Payload.String() {
		t.Errorf("Payload differs: %q vs %q", plain.Payload.String(), explicit.Payload.String())
	}
	if plain.KeyExpr != explicit.KeyExpr {
		t.Errorf("KeyExpr differs: %q vs %q", plain.KeyExpr, explicit.KeyExpr)
	}
	if plain.Kind != explicit.Kind {
		t.Errorf("Kind differs: %v vs %v", plain.Kind, explicit.Kind)
	}
	if plain.Encoding != explicit.Encoding {
		t.Errorf("Encoding differs: %s vs %s", plain.Encoding, explicit.Encoding)
	}
	if plain.Priority != explicit.Priority {
		t.Errorf("Priority differs: %d vs %d", plain.Priority, explicit.Priority)
	}
	if plain.Congestion != explicit.Congestion {
		t.Errorf("Congestion differs: %d vs %d", plain.Congestion, explicit.Congestion)
	}
	if plain.Express != explicit.Express {
		t.Errorf("Express differs: %v vs %v", plain.Express, explicit.Express)
	}
	if (plain.Attachment == nil) != (explicit.Attachment == nil) {
		t.Error("Attachment presence differs")
	}
}

func TestBasicCallbackShape(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	type basicEvent struct {
		key        string
		payload    string
		kind       SampleKind
		attachment string
	}
	events := make(chan basicEvent, 1)
	sub, err := s.DeclareSubscriber("demo/basic").
		WithDataCallback(func(key string, payload *OwnedBytes, kind SampleKind, attachment string) {
			events <- basicEvent{key, payload.String(), kind, attachment}
			payload.Release()
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	err = s.PutWith("demo/basic", []byte("v"), &PutOptions{Attachment: []byte("side")})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.key != "demo/basic" || ev.payload != "v" || ev.kind != KindPut || ev.attachment != "side" {
			t.Errorf("basic callback got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for basic callback")
	}
}

func TestExactlyOneCallbackShape(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	if _, err := s.DeclareSubscriber("demo/none").Build(); !errors.Is(err, ErrDeclareFailed) {
		t.Errorf("no callback shape = %v, want ErrDeclareFailed", err)
	}
	_, err := s.DeclareSubscriber("demo/both").
		WithCallback(func(*Sample) {}).
		WithDataCallback(func(string, *OwnedBytes, SampleKind, string) {}).
		Build()
	if !errors.Is(err, ErrDeclareFailed) {
		t.Errorf("two callback shapes = %v, want ErrDeclareFailed", err)
	}
}

func TestSubscriberHandlerChannel(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	handler := NewFifoChannel[*Sample](8)
	sub, err := s.DeclareSubscriber("demo/chan").WithHandler(handler).Build()
	if err != nil {
		t.Fatal(err)
	}
	_, _, receiver := handler.Callbacks()

	for i := 0; i < 3; i++ {
		if err := s.Put("demo/chan", []byte{byte('a' + i)}); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	for i := 0; i < 3; i++ {
		smp := waitSample(t, receiver)
		got = append(got, smp.Payload.String())
		smp.Release()
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("per-subscription order violated: %v", got)
	}

	// Undeclare closes the channel, terminating a range loop.
	sub.Undeclare()
	select {
	case _, ok := <-receiver:
		if ok {
			t.Error("channel should be closed, not deliver")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after undeclare")
	}
}

func TestUndeclareBarrier(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	var undeclared atomic.Bool
	sub, err := s.DeclareSubscriber("demo/barrier").
		WithCallback(func(smp *Sample) {
			if undeclared.Load() {
				t.Error("callback began after Undeclare returned")
			}
			smp.Release()
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	stopPub := make(chan struct{})
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		for {
			select {
			case <-stopPub:
				return
			default:
				_ = s.Put("demo/barrier", []byte("x"))
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := sub.Undeclare(); err != nil {
		t.Fatal(err)
	}
	undeclared.Store(true)
	close(stopPub)
	<-pubDone

	if err := sub.Undeclare(); err != nil {
		t.Errorf("second Undeclare: %v", err)
	}
}

func TestContextSurfacedOnSamples(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	samples := make(chan *Sample, 1)
	sub, err := s.DeclareSubscriber("demo/ctx").
		WithCallback(func(smp *Sample) { samples <- smp }).
		WithContext("host-state").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	if err := s.Put("demo/ctx", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got := waitSample(t, samples)
	defer got.Release()
	if got.Context != "host-state" {
		t.Errorf("Context = %v, want host-state", got.Context)
	}
}

func TestPanickingCallbackDoesNotKillDelivery(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	delivered := make(chan string, 2)
	var first atomic.Bool
	sub, err := s.DeclareSubscriber("demo/panic").
		WithCallback(func(smp *Sample) {
			if first.CompareAndSwap(false, true) {
				panic("host bug")
			}
			delivered <- smp.Payload.String()
			smp.Release()
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	if err := s.Put("demo/panic", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("demo/panic", []byte("two")); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-delivered:
		if got != "two" {
			t.Errorf("delivered %q, want the sample after the panic", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery died after a callback panic")
	}
}

func TestPublisherUndeclareStopsPuts(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	pub, err := s.DeclarePublisher("demo/stopped").Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Undeclare(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Put([]byte("v")); !errors.Is(err, ErrPutFailed) {
		t.Errorf("Put after undeclare = %v, want ErrPutFailed", err)
	}
	if err := pub.Delete(); !errors.Is(err, ErrDeleteFailed) {
		t.Errorf("Delete after undeclare = %v, want ErrDeleteFailed", err)
	}
	var nilPub *Publisher
	if err := nilPub.Undeclare(); err != nil {
		t.Errorf("nil Undeclare: %v", err)
	}
}

func TestWildcardRouting(t *testing.T) {
	m := mesh.New()
	s := testSession(t, m)

	var hits atomic.Int32
	sub, err := s.DeclareSubscriber("fleet/**/status").
		WithCallback(func(smp *Sample) {
			hits.Add(1)
			smp.Release()
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Undeclare()

	other := make(chan *Sample, 1)
	sink, err := s.DeclareSubscriber("fleet/eu/v1/status").
		WithCallback(func(smp *Sample) { other <- smp }).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Undeclare()

	if err := s.Put("fleet/eu/v1/status", []byte("ok")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("fleet/eu/v1/metrics", []byte("ignored")); err != nil {
		t.Fatal(err)
	}

	got := waitSample(t, other)
	got.Release()
	// The literal subscriber has seen the status sample; by then the
	// wildcard subscriber has been offered both publications.
	deadline := time.After(2 * time.Second)
	for hits.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("wildcard subscriber never saw the status sample")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := hits.Load(); n != 1 {
		t.Errorf("wildcard subscriber hits = %d, want 1", n)
	}
}
