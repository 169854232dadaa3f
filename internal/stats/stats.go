package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	NumActiveClients = "NumActiveClients"
	EventsAppended   = "EventsAppended"
	PollTicks        = "PollTicks"
	PollErrors       = "PollErrors"
	CorruptEvents    = "CorruptEvents"
	PulsesSent       = "PulsesSent"
)

var defaultMetrics = []string{
	NumActiveClients,
	EventsAppended,
	PollTicks,
	PollErrors,
	CorruptEvents,
	PulsesSent,
}

// StatsProvider is the counter surface components update.
type StatsProvider interface {
	Incr(name string)
	Decr(name string)
}

var _ StatsProvider = (*StatsUpdater)(nil)

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value int
}

// Handler serves the counters as a JSON object.
func (su *StatsUpdater) Handler() http.Handler {
	return http.HandlerFunc(su.expvarHandler)
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewStatsUpdater creates a new stats updater instance with the chat
// counters registered.
func NewStatsUpdater() *StatsUpdater {
	su := &StatsUpdater{
		updateChan: make(chan *metricsUpdateReq, 512),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		vars:       new(expvar.Map).Init(),
	}
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	for _, name := range defaultMetrics {
		su.RegisterMetric(name)
	}
}

// Publish exposes the counters through the process-wide expvar registry
// under "nodechat-stats". It must be called at most once per process.
func (su *StatsUpdater) Publish() {
	expvar.Publish("nodechat-stats", su.vars)
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)

	for {
		select {
		case req := <-su.updateChan:
			metric := su.vars.Get(req.name)
			if metric == nil {
				panic("metric not found: " + req.name)
			}

			metric.(*expvar.Int).Add(int64(req.value))
		case <-su.stop:
			return
		}
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.update(&metricsUpdateReq{name: name, value: 1})
}

func (su *StatsUpdater) Decr(name string) {
	su.update(&metricsUpdateReq{name: name, value: -1})
}

// update is a no-op once the updater has stopped.
func (su *StatsUpdater) update(req *metricsUpdateReq) {
	select {
	case <-su.stop:
		return
	default:
	}

	select {
	case su.updateChan <- req:
	case <-su.stop:
	}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop ends the update goroutine. Updates made afterwards are discarded, so
// components still shutting down can keep counting.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.stop) })
}
