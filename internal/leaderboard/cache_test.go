package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/scoring"
	"github.com/shrimpsizemoose/kungsborg/internal/store/sqlite"
)

func solveAt(ts int64) *int64 {
	return &ts
}

func TestSortStandings(t *testing.T) {
	testCases := []struct {
		name     string
		in       []scoring.Standing
		expected []int64
	}{
		{
			name: "higher score first",
			in: []scoring.Standing{
				{TeamID: 1, Score: 300, LastSolve: solveAt(100)},
				{TeamID: 2, Score: 500, LastSolve: solveAt(200)},
			},
			expected: []int64{2, 1},
		},
		{
			name: "earlier last solve breaks the tie",
			in: []scoring.Standing{
				{TeamID: 1, Score: 500, LastSolve: solveAt(200)},
				{TeamID: 2, Score: 500, LastSolve: solveAt(100)},
			},
			expected: []int64{2, 1},
		},
		{
			name: "no solves ranks below solves at equal score",
			in: []scoring.Standing{
				{TeamID: 1, Score: 0},
				{TeamID: 2, Score: 0, LastSolve: solveAt(300)},
			},
			expected: []int64{2, 1},
		},
		{
			name: "equal score and equal last solve fall back to team id",
			in: []scoring.Standing{
				{TeamID: 9, Score: 500, LastSolve: solveAt(100)},
				{TeamID: 3, Score: 500, LastSolve: solveAt(100)},
			},
			expected: []int64{3, 9},
		},
		{
			name: "full board",
			in: []scoring.Standing{
				{TeamID: 3, Score: 300},
				{TeamID: 2, Score: 500, LastSolve: solveAt(200)},
				{TeamID: 1, Score: 500, LastSolve: solveAt(100)},
			},
			expected: []int64{1, 2, 3},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			SortStandings(tc.in)
			got := make([]int64, 0, len(tc.in))
			for _, s := range tc.in {
				got = append(got, s.TeamID)
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func setupBoard(t *testing.T) (*sqlite.SQLiteStore, *Cache, []models.Team) {
	s, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)
	s.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	teams := []models.Team{
		{Name: "alpha", RegisteredAt: 1700000000},
		{Name: "bravo", RegisteredAt: 1700000100},
		{Name: "charlie", RegisteredAt: 1700000200},
		{Name: "dugout", RegisteredAt: 1700000300},
	}
	for i := range teams {
		require.NoError(t, s.CreateTeam(ctx, &teams[i]))
	}

	_, err = s.DB.Exec(`
		INSERT INTO challenges (id, title, value, flag) VALUES
		(1, 'one', 500, 'flag{one}'),
		(2, 'two', 300, 'flag{two}')`)
	require.NoError(t, err)

	agg := scoring.NewAggregator(s)
	cache := NewCache(agg, s, nil, 10*time.Millisecond, time.Hour)
	return s, cache, teams
}

func TestCacheRebuildRanks(t *testing.T) {
	s, cache, teams := setupBoard(t)
	ctx := context.Background()

	award := func(team, challenge int64, value int, at int64) {
		inserted, err := s.InsertAward(ctx, &models.Award{
			TeamID: team, ChallengeID: challenge, Value: value, AwardedAt: at,
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// alpha and bravo tie on points, alpha solved earlier. charlie trails,
	// dugout never solved anything.
	award(teams[0].ID, 1, 500, 1700001000)
	award(teams[1].ID, 1, 500, 1700002000)
	award(teams[2].ID, 2, 300, 1700001500)

	require.NoError(t, cache.Rebuild(ctx))

	entries := cache.RankedTeams()
	require.Len(t, entries, 4)

	assert.Equal(t, []string{"alpha", "bravo", "charlie", "dugout"}, []string{
		entries[0].TeamName, entries[1].TeamName, entries[2].TeamName, entries[3].TeamName,
	})
	assert.Equal(t, []int{1, 2, 3, 4}, []int{
		entries[0].Rank, entries[1].Rank, entries[2].Rank, entries[3].Rank,
	})
	assert.Nil(t, entries[3].LastSolve)
}

func TestCacheDenseRanks(t *testing.T) {
	s, cache, teams := setupBoard(t)
	ctx := context.Background()

	// A genuine tie: same score, same solve time.
	for _, team := range teams[:2] {
		inserted, err := s.InsertAward(ctx, &models.Award{
			TeamID: team.ID, ChallengeID: 1, Value: 500, AwardedAt: 1700001000,
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}
	inserted, err := s.InsertAward(ctx, &models.Award{
		TeamID: teams[2].ID, ChallengeID: 2, Value: 300, AwardedAt: 1700002000,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	require.NoError(t, cache.Rebuild(ctx))

	entries := cache.RankedTeams()
	require.Len(t, entries, 4)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 1, entries[1].Rank, "tied teams share a rank")
	assert.Equal(t, 2, entries[2].Rank, "ranks stay dense after a tie")
	assert.Equal(t, 3, entries[3].Rank)
}

func TestCacheDebouncedRefresh(t *testing.T) {
	s, cache, teams := setupBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch := bus.Subscribe(16)
	go cache.Run(ctx, ch)

	inserted, err := s.InsertAward(ctx, &models.Award{
		TeamID: teams[0].ID, ChallengeID: 1, Value: 500, AwardedAt: 1700001000,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	// A burst of events collapses into one debounced rebuild.
	for i := 0; i < 5; i++ {
		bus.Publish(events.ScoreChanged{Kind: events.KindSolve, TeamID: teams[0].ID, Delta: 100})
	}

	require.Eventually(t, func() bool {
		entries := cache.RankedTeams()
		return len(entries) == 4 && entries[0].Score == 500
	}, 2*time.Second, 10*time.Millisecond, "rebuild should land within the debounce window")
}
