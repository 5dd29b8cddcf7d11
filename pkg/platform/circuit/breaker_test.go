package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	fail       bool
	wantOpen   bool
	wantOpened bool
	wantClosed bool
}

func TestBreakerTransitions(t *testing.T) {
	cases := map[string]struct {
		opts  []Option
		steps []step
	}{
		"opens on the threshold failure": {
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true},
				{fail: true},
				{fail: true, wantOpen: true, wantOpened: true},
				{fail: true, wantOpen: true},
			},
		},
		"a success between failures restarts the count": {
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{fail: true},
				{},
				{fail: true},
				{fail: true, wantOpen: true, wantOpened: true},
			},
		},
		"closes after consecutive trial successes": {
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, wantOpen: true, wantOpened: true},
				{wantOpen: true},
				{wantClosed: true},
				{},
			},
		},
		"a failed trial restarts recovery": {
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, wantOpen: true, wantOpened: true},
				{wantOpen: true},
				{fail: true, wantOpen: true},
				{wantOpen: true},
				{wantClosed: true},
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b := New("audit-outbox", tc.opts...)
			for i, s := range tc.steps {
				var change Change
				if s.fail {
					_, change = b.RecordFailure()
				} else {
					_, change = b.RecordSuccess()
				}
				assert.Equal(t, s.wantOpen, b.IsOpen(), "step %d open", i)
				assert.Equal(t, s.wantOpened, change.Opened, "step %d opened", i)
				assert.Equal(t, s.wantClosed, change.Closed, "step %d closed", i)
			}
		})
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := New("audit-outbox", WithFailureThreshold(0), WithSuccessThreshold(-1))
	assert.Equal(t, "audit-outbox", b.Name())
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < defaultFailureThreshold-1; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen())
	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback)
}

func TestBreakerReset(t *testing.T) {
	b := New("audit-outbox", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.False(t, change.Closed)
}

func TestBreakerOpensOnceUnderConcurrentFailures(t *testing.T) {
	b := New("audit-outbox", WithFailureThreshold(5))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opened)
	assert.True(t, b.IsOpen())
}
