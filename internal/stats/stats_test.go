package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	su := NewStatsUpdater()
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")

	for _, name := range defaultMetrics {
		assert.NotNil(t, su.vars.Get(name), "expected metric %s to be registered", name)
	}
	assert.NotNil(t, su.vars.Get("Uptime"), "expected Uptime to be registered")
}

func TestStatsUpdater_Handler(t *testing.T) {
	su := NewStatsUpdater()
	su.Run()
	defer su.Stop()

	su.Incr(NumActiveClients)
	su.Decr(NumActiveClients)
	su.Incr(EventsAppended)
	su.Incr(EventsAppended)

	assert.Eventually(t, func() bool {
		return su.vars.Get(EventsAppended).String() == "2"
	}, time.Second, 10*time.Millisecond, "expected updates to be applied")

	rr := httptest.NewRecorder()
	su.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body[EventsAppended])
	assert.Equal(t, float64(0), body[NumActiveClients])
	assert.Contains(t, body, "Uptime")
}

func TestStatsUpdater_Stop(t *testing.T) {
	tcases := []struct {
		name   string
		run    bool
		update func(su *StatsUpdater)
	}{
		{name: "incr after stop", run: true, update: func(su *StatsUpdater) { su.Incr(EventsAppended) }},
		{name: "decr after stop", run: true, update: func(su *StatsUpdater) { su.Decr(NumActiveClients) }},
		{name: "stop without run", update: func(su *StatsUpdater) { su.Incr(PollTicks) }},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			su := NewStatsUpdater()
			if tc.run {
				su.Run()
			}

			su.Stop()
			su.Stop()

			if tc.run {
				select {
				case <-su.done:
				case <-time.After(time.Second):
					t.Fatal("expected the update goroutine to exit")
				}
			}

			finished := make(chan struct{})
			go func() {
				// more than the buffer holds
				for range cap(su.updateChan) + 1 {
					tc.update(su)
				}
				close(finished)
			}()

			select {
			case <-finished:
			case <-time.After(time.Second):
				t.Fatal("expected updates after stop not to block")
			}
		})
	}
}
