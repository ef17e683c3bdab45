package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dudu/facemesh/internal/landmark"
)

// fakeSource produces n empty frames, then io.EOF or err
type fakeSource struct {
	n      int
	err    error
	next   int
	closed bool
}

func (s *fakeSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next == s.n {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := &Frame{Index: s.next, Result: &landmark.Result{TimestampUs: int64(s.next)}}
	s.next++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// endlessSource never runs out
type endlessSource struct {
	fakeSource
}

func (s *endlessSource) Next(ctx context.Context) (*Frame, error) {
	s.n = s.next + 1
	return s.fakeSource.Next(ctx)
}

// fakeSurface records frame indices. It stops after stopAfter frames when
// set, optionally returning err.
type fakeSurface struct {
	mu        sync.Mutex
	seen      []int
	stopAfter int
	err       error
	delay     time.Duration
}

func (s *fakeSurface) Run(ctx context.Context, frames <-chan *Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.seen = append(s.seen, f.Index)
			n := len(s.seen)
			s.mu.Unlock()
			f.Close()
			if s.delay > 0 {
				time.Sleep(s.delay)
			}
			if s.stopAfter > 0 && n == s.stopAfter {
				return s.err
			}
		}
	}
}

func TestRunDeliversAllFramesInOrder(t *testing.T) {
	src := &fakeSource{n: 25}
	surf := &fakeSurface{}
	p := New(src, surf, Options{QueueSize: 2})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(surf.seen) != 25 {
		t.Fatalf("surface saw %d frames, want 25", len(surf.seen))
	}
	for i, idx := range surf.seen {
		if idx != i {
			t.Fatalf("frame %d has index %d, frames out of order", i, idx)
		}
	}
	if st := p.Stats(); st.Produced != 25 || st.Dropped != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRunStopsWhenSurfaceQuits(t *testing.T) {
	src := &endlessSource{}
	surf := &fakeSurface{stopAfter: 5}
	p := New(src, surf, Options{QueueSize: 3})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on user quit", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the surface quit")
	}
}

func TestRunSourceError(t *testing.T) {
	boom := errors.New("camera unplugged")
	p := New(&fakeSource{n: 3, err: boom}, &fakeSurface{}, Options{QueueSize: 1})

	err := p.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Run returned %v, want wrapped source error", err)
	}
}

func TestRunSurfaceError(t *testing.T) {
	boom := errors.New("shader compile failed")
	p := New(&endlessSource{}, &fakeSurface{stopAfter: 1, err: boom}, Options{QueueSize: 1})

	err := p.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Run returned %v, want wrapped surface error", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := New(&endlessSource{}, &fakeSurface{delay: time.Millisecond}, Options{QueueSize: 2})
	if err := p.Run(ctx); err != nil {
		t.Errorf("Run returned %v after cancellation, want nil", err)
	}
}

func TestDropLateKeepsNewest(t *testing.T) {
	src := &fakeSource{n: 50}
	surf := &fakeSurface{delay: 2 * time.Millisecond}
	p := New(src, surf, Options{QueueSize: 1, DropLate: true})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	st := p.Stats()
	if st.Produced != 50 {
		t.Errorf("produced %d, want 50", st.Produced)
	}
	if int64(len(surf.seen))+st.Dropped != 50 {
		t.Errorf("seen %d + dropped %d != 50", len(surf.seen), st.Dropped)
	}
	if last := surf.seen[len(surf.seen)-1]; last != 49 {
		t.Errorf("last frame shown %d, want newest (49)", last)
	}
	for i := 1; i < len(surf.seen); i++ {
		if surf.seen[i] <= surf.seen[i-1] {
			t.Fatalf("frames out of order: %v", surf.seen)
		}
	}
}

func TestCloseClosesSource(t *testing.T) {
	src := &fakeSource{}
	p := New(src, &fakeSurface{}, Options{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !src.closed {
		t.Error("source not closed")
	}
}
