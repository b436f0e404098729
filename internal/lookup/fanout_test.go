package lookup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFanOut_PreservesIndexOrder(t *testing.T) {
	got := fanOut(context.Background(), 3, 6, func(_ context.Context, i int) int {
		// Later indexes finish first.
		time.Sleep(time.Duration(6-i) * time.Millisecond)
		return i * 10
	})
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50}, got)
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var inFlight, peak int32
	fanOut(context.Background(), 2, 10, func(_ context.Context, i int) struct{} {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestFanOut_Empty(t *testing.T) {
	got := fanOut(context.Background(), 4, 0, func(context.Context, int) int { return 1 })
	assert.Empty(t, got)
}

func TestPageSpan(t *testing.T) {
	assert.Equal(t, []int{150, 151, 152}, pageSpan(150, 153))
	assert.Nil(t, pageSpan(5, 5))
}
