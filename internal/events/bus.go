package events

import (
	"sync"

	"github.com/shrimpsizemoose/trekker/logger"
)

type Kind string

const (
	KindSolve   Kind = "solve"
	KindHint    Kind = "hint"
	KindAccrual Kind = "accrual"
)

// ScoreChanged is the delta a committed transaction contributed to one
// team's score. Delta is positive for solves and accruals, negative for
// hint unlocks. SolvedAt is set only for solves.
type ScoreChanged struct {
	Kind     Kind
	TeamID   int64
	Delta    int
	SolvedAt int64
	At       int64
}

// Bus is a small buffered fan-out. Publish never blocks the caller: a
// subscriber that cannot keep up has events dropped on the floor and must
// rely on the periodic reconciliation sweep to catch back up.
type Bus struct {
	mu   sync.RWMutex
	subs []chan ScoreChanged
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(buffer int) <-chan ScoreChanged {
	ch := make(chan ScoreChanged, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *Bus) Publish(ev ScoreChanged) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Error.Printf("event bus: dropping %s event for team %d, subscriber is behind", ev.Kind, ev.TeamID)
		}
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
