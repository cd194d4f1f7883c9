package leaderboard

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/metrics"
	"github.com/shrimpsizemoose/kungsborg/internal/scoring"
	"github.com/shrimpsizemoose/kungsborg/internal/store"
)

const redisSnapshotKey = "kungsborg:leaderboard"

// Entry is one row of the ranked projection. Derived state only: nothing
// ever writes scores back through the cache.
type Entry struct {
	Rank      int    `json:"rank"`
	TeamID    int64  `json:"team_id"`
	TeamName  string `json:"team_name"`
	Score     int    `json:"score"`
	LastSolve *int64 `json:"last_solve,omitempty"`
}

// Cache keeps a read-optimized ranking of all teams. It refreshes on
// score-changed events, debounced, and on a fixed timer as a safety net
// against missed invalidations. Reads lag committed state by at most
// debounce + refresh interval.
type Cache struct {
	agg      *scoring.Aggregator
	store    store.LedgerStore
	redis    *redis.Client
	debounce time.Duration
	interval time.Duration

	mu        sync.RWMutex
	entries   []Entry
	rebuiltAt time.Time
}

// NewCache wires the projection. The redis client may be nil; snapshots
// are then kept in-process only.
func NewCache(agg *scoring.Aggregator, ledger store.LedgerStore, rdb *redis.Client, debounce, interval time.Duration) *Cache {
	return &Cache{
		agg:      agg,
		store:    ledger,
		redis:    rdb,
		debounce: debounce,
		interval: interval,
	}
}

// RankedTeams returns the current snapshot. The slice is shared; callers
// must not mutate it.
func (c *Cache) RankedTeams() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

func (c *Cache) RebuiltAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rebuiltAt
}

// Run consumes score-changed events until ctx is done or the channel
// closes. Bursts collapse into one rebuild per debounce window; the
// ticker catches anything the bus dropped.
func (c *Cache) Run(ctx context.Context, ch <-chan events.ScoreChanged) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if pending == nil {
				pending = time.After(c.debounce)
			}
		case <-pending:
			pending = nil
			c.rebuild(ctx)
		case <-ticker.C:
			c.rebuild(ctx)
		}
	}
}

// Rebuild refreshes the snapshot immediately. Exposed for startup and
// tests; steady-state refreshes come from Run.
func (c *Cache) Rebuild(ctx context.Context) error {
	return c.rebuild(ctx)
}

func (c *Cache) rebuild(ctx context.Context) error {
	started := time.Now()
	defer func() {
		metrics.LeaderboardRebuildDuration.Observe(time.Since(started).Seconds())
	}()

	standings, err := c.agg.AllStandings(ctx)
	if err != nil {
		logger.Error.Printf("leaderboard rebuild failed: %v", err)
		return err
	}

	teams, err := c.store.ListTeams(ctx)
	if err != nil {
		logger.Error.Printf("leaderboard rebuild failed to list teams: %v", err)
		return err
	}
	names := make(map[int64]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	SortStandings(standings)

	entries := make([]Entry, 0, len(standings))
	rank := 0
	for i, s := range standings {
		// Dense ranks: a tie in both score and last-solve shares a rank.
		if i == 0 || !sameRankKey(standings[i-1], s) {
			rank++
		}
		entries = append(entries, Entry{
			Rank:      rank,
			TeamID:    s.TeamID,
			TeamName:  names[s.TeamID],
			Score:     s.Score,
			LastSolve: s.LastSolve,
		})
	}

	c.mu.Lock()
	c.entries = entries
	c.rebuiltAt = time.Now()
	c.mu.Unlock()

	c.publishSnapshot(ctx, entries)
	return nil
}

// publishSnapshot mirrors the ranking to redis for external renderers.
// Strictly one-directional and best-effort.
func (c *Cache) publishSnapshot(ctx context.Context, entries []Entry) {
	if c.redis == nil {
		return
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		logger.Error.Printf("failed to marshal leaderboard snapshot: %v", err)
		return
	}
	if err := c.redis.Set(ctx, redisSnapshotKey, payload, 0).Err(); err != nil {
		logger.Debug.Printf("failed to publish leaderboard snapshot: %v", err)
	}
}

// SortStandings orders by the ranking rule: higher score first, earlier
// last solve breaks ties, teams with no solves rank below every team
// that has one (absent last-solve reads as infinitely late).
func SortStandings(standings []scoring.Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.LastSolve == nil && b.LastSolve == nil:
			return a.TeamID < b.TeamID
		case a.LastSolve == nil:
			return false
		case b.LastSolve == nil:
			return true
		case *a.LastSolve != *b.LastSolve:
			return *a.LastSolve < *b.LastSolve
		}
		return a.TeamID < b.TeamID
	})
}

func sameRankKey(a, b scoring.Standing) bool {
	if a.Score != b.Score {
		return false
	}
	if (a.LastSolve == nil) != (b.LastSolve == nil) {
		return false
	}
	if a.LastSolve == nil {
		return true
	}
	return *a.LastSolve == *b.LastSolve
}
