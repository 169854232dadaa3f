package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/nodechat/internal/cursor"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/types"
)

const pollTimeout = 10 * time.Second

type EventSource interface {
	ReadSince(ctx context.Context, cursor int64) ([]types.Event, int64, error)
}

type UserLister interface {
	List(ctx context.Context) ([]string, error)
}

type Broadcaster interface {
	Broadcast(snap types.Snapshot)
}

// Poller reads new events and the present users once per interval and
// broadcasts them. Only the poller advances the cursor. It runs a single
// fetch at a time; ticks that arrive while a fetch is running are dropped.
type Poller struct {
	events   EventSource
	users    UserLister
	out      Broadcaster
	cursor   *cursor.Tracker
	interval time.Duration
	log      *log.Logger
	stats    stats.StatsProvider
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewPoller(events EventSource, users UserLister, out Broadcaster, cur *cursor.Tracker, interval time.Duration, logger *log.Logger, su stats.StatsProvider) *Poller {
	return &Poller{
		events:   events,
		users:    users,
		out:      out,
		cursor:   cur,
		interval: interval,
		log:      logger,
		stats:    su,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Poller) Run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
			if err := p.Poll(ctx); err != nil {
				p.log.Println("poll:", err)
			}
			cancel()
		case <-p.stop:
			return
		}
	}
}

// Poll performs one fetch and broadcast. On error nothing is broadcast and
// the cursor is left where it was.
func (p *Poller) Poll(ctx context.Context) error {
	p.stats.Incr(stats.PollTicks)

	events, next, err := p.events.ReadSince(ctx, p.cursor.Get())
	if err != nil {
		p.stats.Incr(stats.PollErrors)
		return err
	}

	users, err := p.users.List(ctx)
	if err != nil {
		p.stats.Incr(stats.PollErrors)
		return err
	}

	p.cursor.Advance(next)
	p.out.Broadcast(types.NewSnapshot(events, users))

	return nil
}

// Stop ends the loop after any fetch in progress has finished.
func (p *Poller) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop poller: %w", ctx.Err())
	}
}
