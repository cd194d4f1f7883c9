package koth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
	"github.com/shrimpsizemoose/kungsborg/internal/store/sqlite"
)

type arbiterFixture struct {
	store   *sqlite.SQLiteStore
	bus     *events.Bus
	arbiter *Arbiter
	clock   int64
	alpha   int64
	bravo   int64
}

func setupArbiter(t *testing.T) (*arbiterFixture, func()) {
	s, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)
	s.DB.SetMaxOpenConns(1)
	ctx := context.Background()

	alpha := &models.Team{Name: "alpha", RegisteredAt: 1700000000}
	require.NoError(t, s.CreateTeam(ctx, alpha))
	bravo := &models.Team{Name: "bravo", RegisteredAt: 1700000100}
	require.NoError(t, s.CreateTeam(ctx, bravo))

	_, err = s.DB.Exec(`
		INSERT INTO koth_targets (id, title, host, port, status, accrual_per_minute) VALUES
		(1, 'fortress', '10.0.0.5', 31337, 'open', 10),
		(2, 'outpost', '10.0.0.6', 31338, 'closed', 10)`)
	require.NoError(t, err)

	f := &arbiterFixture{
		store: s,
		bus:   events.NewBus(),
		clock: 1700001000,
		alpha: alpha.ID,
		bravo: bravo.ID,
	}
	f.arbiter = NewArbiter(s, f.bus, nil)
	f.arbiter.now = func() int64 { return f.clock }

	cleanup := func() {
		require.NoError(t, s.Close())
	}
	return f, cleanup
}

func TestArbiter_ClaimUnowned(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	result, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)
	assert.Equal(t, ClaimTaken, result.Status)
	assert.Equal(t, f.alpha, result.OwnerTeamID)

	open, err := f.store.GetOpenClaim(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, f.alpha, open.TeamID)
}

func TestArbiter_ClaimAlreadyOwner(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	_, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)

	result, err := f.arbiter.Claim(ctx, 1, f.alpha, "pwn-proof")
	require.NoError(t, err)
	assert.Equal(t, ClaimAlreadyOwner, result.Status)
	assert.Equal(t, f.alpha, result.OwnerTeamID)
}

func TestArbiter_UnknownTarget(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()

	_, err := f.arbiter.Claim(context.Background(), 99, f.alpha, "")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestArbiter_ClosedTarget(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()

	result, err := f.arbiter.Claim(context.Background(), 2, f.alpha, "pwn-proof")
	require.NoError(t, err)
	assert.Equal(t, ClaimRejected, result.Status)
}

func TestArbiter_TakeoverNeedsProof(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	_, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)

	result, err := f.arbiter.Claim(ctx, 1, f.bravo, "")
	require.NoError(t, err)
	assert.Equal(t, ClaimRejected, result.Status)
	assert.Equal(t, f.alpha, result.OwnerTeamID, "the rejected challenger learns who owns the target")

	open, err := f.store.GetOpenClaim(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, f.alpha, open.TeamID, "ownership is untouched by a rejected takeover")
}

func TestArbiter_TakeoverCreditsOldOwner(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()
	ch := f.bus.Subscribe(4)

	_, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)

	// Alpha holds the fortress for 150 seconds before bravo kicks them off.
	f.clock += 150
	result, err := f.arbiter.Claim(ctx, 1, f.bravo, "pwn-proof")
	require.NoError(t, err)
	assert.Equal(t, ClaimTaken, result.Status)
	assert.Equal(t, f.bravo, result.OwnerTeamID)

	// 150s at 10 points/minute: the full span pays out on the close.
	ev := <-ch
	assert.Equal(t, events.KindAccrual, ev.Kind)
	assert.Equal(t, f.alpha, ev.TeamID)
	assert.Equal(t, 25, ev.Delta)

	fold, err := f.store.FetchScoreFold(ctx, f.alpha)
	require.NoError(t, err)
	assert.Equal(t, 25, fold.AccrualPoints)

	open, err := f.store.GetOpenClaim(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, f.bravo, open.TeamID)
}

func TestArbiter_AccrueOpenWholeMinutesOnly(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	_, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)

	f.clock += 150
	require.NoError(t, f.arbiter.AccrueOpen(ctx))

	fold, err := f.store.FetchScoreFold(ctx, f.alpha)
	require.NoError(t, err)
	assert.Equal(t, 20, fold.AccrualPoints, "150s pays two whole minutes, the dust waits")

	t.Run("immediate resweep credits nothing", func(t *testing.T) {
		require.NoError(t, f.arbiter.AccrueOpen(ctx))

		fold, err := f.store.FetchScoreFold(ctx, f.alpha)
		require.NoError(t, err)
		assert.Equal(t, 20, fold.AccrualPoints)
	})

	t.Run("takeover pays out the remainder", func(t *testing.T) {
		result, err := f.arbiter.Claim(ctx, 1, f.bravo, "pwn-proof")
		require.NoError(t, err)
		assert.Equal(t, ClaimTaken, result.Status)

		// 30 uncredited seconds at 10/minute.
		fold, err := f.store.FetchScoreFold(ctx, f.alpha)
		require.NoError(t, err)
		assert.Equal(t, 25, fold.AccrualPoints)
	})
}

func TestArbiter_CloseAll(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	_, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)

	f.clock += 120
	require.NoError(t, f.arbiter.CloseAll(ctx))

	t.Run("open claim was settled", func(t *testing.T) {
		open, err := f.store.GetOpenClaim(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, open)

		fold, err := f.store.FetchScoreFold(ctx, f.alpha)
		require.NoError(t, err)
		assert.Equal(t, 20, fold.AccrualPoints)
	})

	t.Run("further claims are rejected", func(t *testing.T) {
		result, err := f.arbiter.Claim(ctx, 1, f.bravo, "pwn-proof")
		require.NoError(t, err)
		assert.Equal(t, ClaimRejected, result.Status)
	})

	t.Run("targets are marked closed", func(t *testing.T) {
		target, err := f.store.GetKothTarget(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, models.KothStatusClosed, target.Status)
	})
}

func TestArbiter_SweepRacingCloseCreditsOnce(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	// A second arbiter over the same ledger stands in for the scheduled
	// sweep racing the shutdown in another goroutine.
	sweeper := NewArbiter(f.store, f.bus, nil)
	sweeper.now = func() int64 { return f.clock }

	_, err := f.arbiter.Claim(ctx, 1, f.alpha, "")
	require.NoError(t, err)
	f.clock += 120

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		assert.NoError(t, sweeper.AccrueOpen(ctx))
	}()
	go func() {
		defer wg.Done()
		<-start
		assert.NoError(t, f.arbiter.CloseAll(ctx))
	}()
	close(start)
	wg.Wait()

	// 120s at 10 points/minute is worth 20, no matter which of the two
	// crediting paths gets there first, or whether both try.
	fold, err := f.store.FetchScoreFold(ctx, f.alpha)
	require.NoError(t, err)
	assert.Equal(t, 20, fold.AccrualPoints, "a held span is paid exactly once")
}

func TestArbiter_ClaimSlippingPastCloseEarnsNothing(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, f.arbiter.CloseAll(ctx))

	// A claim that passed the status checks before the shutdown can still
	// land its insert afterwards. It must never earn a point.
	straggler := &models.KothClaim{TargetID: 1, TeamID: f.bravo, ClaimedAt: f.clock}
	inserted, err := f.store.OpenClaim(ctx, straggler)
	require.NoError(t, err)
	require.True(t, inserted)

	f.clock += 600
	require.NoError(t, f.arbiter.AccrueOpen(ctx))

	// A sweep in a process that never saw the shutdown still skips the
	// closed target.
	latecomer := NewArbiter(f.store, f.bus, nil)
	latecomer.now = func() int64 { return f.clock }
	require.NoError(t, latecomer.AccrueOpen(ctx))

	fold, err := f.store.FetchScoreFold(ctx, f.bravo)
	require.NoError(t, err)
	assert.Equal(t, 0, fold.AccrualPoints)
}

func TestArbiter_ConcurrentFirstClaims(t *testing.T) {
	f, cleanup := setupArbiter(t)
	defer cleanup()
	ctx := context.Background()

	teams := make([]int64, 6)
	teams[0], teams[1] = f.alpha, f.bravo
	for i := 2; i < len(teams); i++ {
		team := &models.Team{Name: string(rune('a'+i)) + "-squad", RegisteredAt: 1700000000}
		require.NoError(t, f.store.CreateTeam(ctx, team))
		teams[i] = team.ID
	}

	results := make([]*ClaimResult, len(teams))
	var wg sync.WaitGroup
	for i, team := range teams {
		wg.Add(1)
		go func(i int, team int64) {
			defer wg.Done()
			result, err := f.arbiter.Claim(ctx, 1, team, "")
			assert.NoError(t, err)
			results[i] = result
		}(i, team)
	}
	wg.Wait()

	winners := 0
	for _, result := range results {
		require.NotNil(t, result)
		if result.Status == ClaimTaken {
			winners++
		} else {
			assert.Equal(t, ClaimRejected, result.Status)
		}
	}
	assert.Equal(t, 1, winners, "one target, one owner, no matter how many race")
}
