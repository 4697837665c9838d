package logstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan string, timeout time.Duration) []string {
	t.Helper()
	var out []string
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, line)
		case <-time.After(timeout):
			return out
		}
	}
}

func TestSubscribeReplaysBufferedLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Write(ctx, "exec-1", "line 1")
	s.Write(ctx, "exec-1", "line 2")

	ch, cancel := s.Subscribe(ctx, "exec-1")
	defer cancel()
	s.Complete("exec-1")

	lines := drain(t, ch, 100*time.Millisecond)
	require.Equal(t, []string{"line 1", "line 2"}, lines)
}

func TestSubscribeSeesLiveLinesAfterReplay(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Write(ctx, "exec-1", "before")

	ch, cancel := s.Subscribe(ctx, "exec-1")
	defer cancel()

	s.Write(ctx, "exec-1", "after")
	s.Complete("exec-1")

	lines := drain(t, ch, 100*time.Millisecond)
	require.Equal(t, []string{"before", "after"}, lines)
}

func TestReplayBufferCapsAtSixtyFourLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		s.Write(ctx, "exec-1", "line")
	}
	ch, cancel := s.Subscribe(ctx, "exec-1")
	defer cancel()
	s.Complete("exec-1")

	lines := drain(t, ch, 100*time.Millisecond)
	require.Len(t, lines, ReplayBufferSize)
}

func TestMultipleSubscribersEachSeeFullStream(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Write(ctx, "exec-1", "line 1")

	ch1, cancel1 := s.Subscribe(ctx, "exec-1")
	defer cancel1()
	ch2, cancel2 := s.Subscribe(ctx, "exec-1")
	defer cancel2()

	s.Write(ctx, "exec-1", "line 2")
	s.Complete("exec-1")

	require.Equal(t, []string{"line 1", "line 2"}, drain(t, ch1, 100*time.Millisecond))
	require.Equal(t, []string{"line 1", "line 2"}, drain(t, ch2, 100*time.Millisecond))
}

func TestSubscribeAfterCompleteYieldsReplayThenCloses(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Write(ctx, "exec-1", "line 1")
	s.Complete("exec-1")

	ch, cancel := s.Subscribe(ctx, "exec-1")
	defer cancel()

	lines := drain(t, ch, 100*time.Millisecond)
	require.Equal(t, []string{"line 1"}, lines)
}

func TestWriteAfterCompleteIsNoop(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Complete("exec-1")
	s.Write(ctx, "exec-1", "too late")

	ch, cancel := s.Subscribe(ctx, "exec-1")
	defer cancel()
	lines := drain(t, ch, 100*time.Millisecond)
	require.Empty(t, lines)
}
