package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestMockStatsUpdater_Count(t *testing.T) {
	tcases := []struct {
		name   string
		method string
		metric string
		want   int
	}{
		{name: "incr", method: "Incr", metric: EventsAppended, want: 50},
		{name: "decr", method: "Decr", metric: NumActiveClients, want: 50},
		{name: "other metric", method: "Incr", metric: PollErrors, want: 0},
		{name: "other method", method: "Decr", metric: EventsAppended, want: 0},
	}

	su := &MockStatsUpdater{}
	su.On("Incr", mock.Anything)
	su.On("Decr", mock.Anything)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			su.Incr(EventsAppended)
		}()
		go func() {
			defer wg.Done()
			su.Decr(NumActiveClients)
			// read while writers are still running
			_ = su.Count("Incr", EventsAppended)
		}()
	}
	wg.Wait()

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, su.Count(tc.method, tc.metric))
		})
	}
}
