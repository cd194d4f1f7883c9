package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/kungsborg/internal/events"
	"github.com/shrimpsizemoose/kungsborg/internal/models"
)

func testHintLedger(s *MockStore) (*HintLedger, *events.Bus) {
	bus := events.NewBus()
	l := NewHintLedger(s, bus)
	l.now = func() int64 { return 1700000000 }
	return l, bus
}

func challengeHints() []models.Hint {
	return []models.Hint{
		{ID: 10, ChallengeID: 1, Rank: 0, Text: "look closer", Cost: 25},
		{ID: 11, ChallengeID: 1, Rank: 1, Text: "much closer", Cost: 50},
		{ID: 12, ChallengeID: 1, Rank: 2, Text: "the answer", Cost: 100},
	}
}

func TestHintLedger_Unlock_FirstHint(t *testing.T) {
	s := new(MockStore)
	s.On("GetHint", int64(10)).Return(&challengeHints()[0], nil)
	s.On("GetTeam", int64(1)).Return(&models.Team{ID: 1, Name: "alpha"}, nil)
	s.On("ListChallengeHints", int64(1)).Return(challengeHints(), nil)
	s.On("ListTeamUnlocksForChallenge", int64(1), int64(1)).Return([]models.HintUnlock{}, nil)
	s.On("InsertHintUnlock", mock.MatchedBy(func(u *models.HintUnlock) bool {
		return u.TeamID == 1 && u.HintID == 10 && u.Cost == 25
	})).Return(true, nil)

	l, bus := testHintLedger(s)
	ch := bus.Subscribe(1)

	result, err := l.Unlock(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, UnlockDone, result.Status)
	assert.Equal(t, 25, result.Cost)
	require.NotNil(t, result.Hint)
	assert.Equal(t, "look closer", result.Hint.Text)

	ev := <-ch
	assert.Equal(t, events.KindHint, ev.Kind)
	assert.Equal(t, -25, ev.Delta)
}

func TestHintLedger_Unlock_OutOfOrder(t *testing.T) {
	s := new(MockStore)
	s.On("GetHint", int64(11)).Return(&challengeHints()[1], nil)
	s.On("GetTeam", int64(1)).Return(&models.Team{ID: 1, Name: "alpha"}, nil)
	s.On("ListChallengeHints", int64(1)).Return(challengeHints(), nil)
	s.On("ListTeamUnlocksForChallenge", int64(1), int64(1)).Return([]models.HintUnlock{}, nil)

	l, _ := testHintLedger(s)

	result, err := l.Unlock(context.Background(), 1, 11)
	require.NoError(t, err)
	assert.Equal(t, UnlockOutOfOrder, result.Status)

	// Nothing was charged.
	s.AssertNotCalled(t, "InsertHintUnlock", mock.Anything)
}

func TestHintLedger_Unlock_InOrderAfterLowerRank(t *testing.T) {
	s := new(MockStore)
	s.On("GetHint", int64(11)).Return(&challengeHints()[1], nil)
	s.On("GetTeam", int64(1)).Return(&models.Team{ID: 1, Name: "alpha"}, nil)
	s.On("ListChallengeHints", int64(1)).Return(challengeHints(), nil)
	s.On("ListTeamUnlocksForChallenge", int64(1), int64(1)).Return([]models.HintUnlock{
		{TeamID: 1, HintID: 10, Cost: 25, UnlockedAt: 1699999000},
	}, nil)
	s.On("InsertHintUnlock", mock.Anything).Return(true, nil)

	l, _ := testHintLedger(s)

	result, err := l.Unlock(context.Background(), 1, 11)
	require.NoError(t, err)
	assert.Equal(t, UnlockDone, result.Status)
	assert.Equal(t, 50, result.Cost)
}

func TestHintLedger_Unlock_AlreadyUnlocked(t *testing.T) {
	s := new(MockStore)
	s.On("GetHint", int64(10)).Return(&challengeHints()[0], nil)
	s.On("GetTeam", int64(1)).Return(&models.Team{ID: 1, Name: "alpha"}, nil)
	s.On("ListChallengeHints", int64(1)).Return(challengeHints(), nil)
	s.On("ListTeamUnlocksForChallenge", int64(1), int64(1)).Return([]models.HintUnlock{}, nil)
	// Lost the insert race: someone on the team paid a moment earlier.
	s.On("InsertHintUnlock", mock.Anything).Return(false, nil)

	l, bus := testHintLedger(s)
	ch := bus.Subscribe(1)

	result, err := l.Unlock(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, UnlockAlreadyUnlocked, result.Status)
	assert.Zero(t, result.Cost)
	require.NotNil(t, result.Hint, "text is still revealed on a duplicate unlock")

	select {
	case ev := <-ch:
		t.Fatalf("no deduction event expected, got %+v", ev)
	default:
	}
}

func TestHintLedger_Unlock_UnknownHint(t *testing.T) {
	s := new(MockStore)
	s.On("GetHint", int64(99)).Return(nil, nil)

	l, _ := testHintLedger(s)

	_, err := l.Unlock(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrUnknownHint)
}

func TestHintLedger_UnlockedHints(t *testing.T) {
	s := new(MockStore)
	s.On("ListChallengeHints", int64(1)).Return(challengeHints(), nil)
	s.On("ListTeamUnlocksForChallenge", int64(1), int64(1)).Return([]models.HintUnlock{
		{TeamID: 1, HintID: 11},
		{TeamID: 1, HintID: 10},
	}, nil)

	l, _ := testHintLedger(s)

	hints, err := l.UnlockedHints(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, hints, 2)
	// Rank order regardless of unlock order.
	assert.Equal(t, int64(10), hints[0].ID)
	assert.Equal(t, int64(11), hints[1].ID)
}
