package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/pipeline"
)

// stubSource yields n frames, then err or io.EOF
type stubSource struct {
	n   int
	err error
}

func (s *stubSource) Next(ctx context.Context) (*pipeline.Frame, error) {
	if s.n == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	s.n--
	return &pipeline.Frame{Result: &landmark.Result{}}, nil
}

func (s *stubSource) Close() error { return nil }

// drainSurface consumes frames until the channel closes
type drainSurface struct{}

func (drainSurface) Run(ctx context.Context, frames <-chan *pipeline.Frame) error {
	for f := range frames {
		f.Close()
	}
	return nil
}

func TestRunShutsDownRuntime(t *testing.T) {
	released := errors.New("runtime released")
	unplugged := errors.New("camera unplugged")

	tests := []struct {
		name string
		src  *stubSource
		want []error
	}{
		{"clean end", &stubSource{n: 2}, []error{released}},
		{"source error", &stubSource{n: 1, err: unplugged}, []error{unplugged, released}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			orig := shutdownRuntime
			shutdownRuntime = func() error {
				calls++
				return released
			}
			t.Cleanup(func() { shutdownRuntime = orig })

			err := run(context.Background(), tt.src, drainSurface{}, false)
			if calls != 1 {
				t.Errorf("runtime shut down %d times, want 1", calls)
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("run returned %v, want it to include %v", err, want)
				}
			}
		})
	}
}
