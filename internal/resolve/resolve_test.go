package resolve

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmark/internal/warn"
)

func placeholders(n int) []Placeholder {
	out := make([]Placeholder, n)
	for i := range out {
		out[i] = Placeholder{
			ID:   fmt.Sprintf("img-%d", i+1),
			Name: fmt.Sprintf("image%d.png", i+1),
			Data: []byte{byte(i)},
			MIME: "image/png",
		}
	}
	return out
}

// latencyDescriber answers after a per-image delay chosen by the first data byte.
type latencyDescriber struct {
	delays   []time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	order    []int
}

func (l *latencyDescriber) DescribeAsync(ctx context.Context, data []byte, _, _ string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	idx := int(data[0])
	go func() {
		n := l.inflight.Add(1)
		for {
			p := l.peak.Load()
			if n <= p || l.peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer l.inflight.Add(-1)
		select {
		case <-time.After(l.delays[idx]):
			l.mu.Lock()
			l.order = append(l.order, idx)
			l.mu.Unlock()
			ch <- Outcome{Text: fmt.Sprintf("description %d", idx+1)}
		case <-ctx.Done():
			ch <- Outcome{Err: ctx.Err()}
		}
	}()
	return ch
}

func TestResolveConcurrent_WallTimeAndOrder(t *testing.T) {
	const n = 10
	d := &latencyDescriber{delays: make([]time.Duration, n)}
	var longest time.Duration
	for i := range d.delays {
		// Reverse latencies so completion order differs from placeholder order.
		d.delays[i] = time.Duration(n-i) * 20 * time.Millisecond
		if d.delays[i] > longest {
			longest = d.delays[i]
		}
	}

	c := New(placeholders(n), "")
	start := time.Now()
	res := c.ResolveConcurrent(context.Background(), d)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, longest+150*time.Millisecond, "calls must overlap")
	assert.Equal(t, int32(n), d.peak.Load())
	assert.NotEqual(t, 0, d.order[0], "completion order should not be placeholder order")

	all := res.All()
	require.Len(t, all, n)
	for i, r := range all {
		assert.Equal(t, fmt.Sprintf("img-%d", i+1), r.ID)
		assert.Equal(t, Resolved, r.State)
		assert.Equal(t, fmt.Sprintf("description %d", i+1), r.Description)
	}
	assert.Empty(t, res.Warnings)
}

func TestResolveSequential_InOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var active atomic.Int32
	d := DescriberFunc(func(_ context.Context, data []byte, mime, prompt string) (string, error) {
		require.Equal(t, int32(1), active.Add(1))
		defer active.Add(-1)
		assert.Equal(t, DefaultPrompt, prompt)
		assert.Equal(t, "image/png", mime)
		mu.Lock()
		seen = append(seen, fmt.Sprint(data[0]))
		mu.Unlock()
		return fmt.Sprintf(" alt %d ", data[0]), nil
	})
	res := New(placeholders(3), "").ResolveSequential(context.Background(), d)
	assert.Equal(t, []string{"0", "1", "2"}, seen)
	alt, ok := res.Alt("img-2")
	assert.True(t, ok)
	assert.Equal(t, "alt 1", alt)
}

func TestResolve_FailuresBecomeWarnings(t *testing.T) {
	phs := placeholders(4)
	phs[2].Skipped = true
	phs[3].Data = nil
	d := DescriberFunc(func(_ context.Context, data []byte, _, _ string) (string, error) {
		switch data[0] {
		case 0:
			return "", errors.New("model overloaded")
		default:
			return "   ", nil
		}
	})
	for name, resolve := range map[string]func(*Coordinator) *Results{
		"sequential": func(c *Coordinator) *Results { return c.ResolveSequential(context.Background(), d) },
		"concurrent": func(c *Coordinator) *Results { return c.ResolveConcurrent(context.Background(), Async(d)) },
	} {
		t.Run(name, func(t *testing.T) {
			res := resolve(New(phs, ""))
			assert.Equal(t, 2, res.Count(Failed))
			assert.Equal(t, 2, res.Count(Skipped))
			_, ok := res.Alt("img-1")
			assert.False(t, ok)

			require.Len(t, res.Warnings, 2)
			assert.Equal(t, warn.UnsupportedFeature, res.Warnings[0].Code)
			assert.Equal(t, "image1.png", res.Warnings[0].Location)
			assert.Contains(t, res.Warnings[0].Message, "model overloaded")
			assert.Equal(t, "image2.png", res.Warnings[1].Location)
		})
	}
}

func TestResolveConcurrent_Cancellation(t *testing.T) {
	d := &latencyDescriber{delays: []time.Duration{time.Millisecond, time.Hour, time.Hour}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := New(placeholders(3), "").ResolveConcurrent(ctx, d)
	assert.Less(t, time.Since(start), 5*time.Second)

	r1, _ := res.Get("img-1")
	assert.Equal(t, Resolved, r1.State)
	for _, id := range []string{"img-2", "img-3"} {
		r, _ := res.Get(id)
		assert.Equal(t, Failed, r.State, id)
		assert.True(t, errors.Is(r.Err, context.DeadlineExceeded), id)
	}
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0].Message, "cancelled")
}

func TestResolveSequential_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	d := DescriberFunc(func(context.Context, []byte, string, string) (string, error) {
		called = true
		return "x", nil
	})
	res := New(placeholders(2), "").ResolveSequential(ctx, d)
	assert.False(t, called)
	assert.Equal(t, 2, res.Count(Failed))
}

func TestSniffMIME(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var pngBuf, gifBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	require.NoError(t, gif.Encode(&gifBuf, img, nil))
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"image1.bin", pngBuf.Bytes(), "image/png"},
		{"anim.png", gifBuf.Bytes(), "image/gif"},
		{"photo.JPG", []byte("not really"), "image/jpeg"},
		{"vector.emf", nil, "image/emf"},
		{"mystery", []byte("??"), "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SniffMIME(tt.name, tt.data), tt.name)
	}
}
