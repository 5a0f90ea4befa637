package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhrulSergey/league-core/models"
)

// buildSeries кладёт в хранилище серию с соперниками для указанных заявок.
// ID соперников: seriesID*10 + порядковый номер.
func buildSeries(db *memDB, id int, proposalIDs ...int) *models.TournamentSeries {
	series := &models.TournamentSeries{
		ID:      id,
		RoundID: 1,
		Name:    "Series",
		Status:  models.StatusStarted,
	}
	for i, proposalID := range proposalIDs {
		series.Rivals = append(series.Rivals, &models.TournamentSeriesRival{
			ID:         id*10 + i + 1,
			SeriesID:   id,
			ProposalID: proposalID,
			Status:     models.StatusStarted,
		})
	}
	db.series[id] = series
	return series
}

// addMatch добавляет серии матч. winnerProposalID == nil при finished
// означает матч без победителя.
func addMatch(db *memDB, series *models.TournamentSeries, matchID int, winnerProposalID *int, finished bool) *models.TournamentMatch {
	match := &models.TournamentMatch{
		ID:          matchID,
		SeriesID:    series.ID,
		MatchNumber: len(db.matches) + 1,
		Status:      models.StatusStarted,
	}
	for i, rival := range series.Rivals {
		match.Rivals = append(match.Rivals, &models.TournamentMatchRival{
			ID:         matchID*10 + i + 1,
			MatchID:    matchID,
			ProposalID: rival.ProposalID,
			Status:     models.StatusStarted,
		})
	}
	if finished {
		match.Status = models.StatusFinished
		if winnerProposalID == nil {
			match.HasNoWinner = true
		} else {
			for _, matchRival := range match.Rivals {
				if matchRival.ProposalID == *winnerProposalID {
					winnerID := matchRival.ID
					match.WinnerRivalID = &winnerID
				}
			}
		}
	}
	db.matches[matchID] = match
	return match
}

func intPtr(v int) *int { return &v }

func TestChangeSeriesStatusComputesWinner(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	addMatch(db, series, 12, intPtr(102), true)
	addMatch(db, series, 13, intPtr(101), true)

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	updated, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFinished, updated.Status)
	assert.False(t, updated.HasNoWinner)
	require.NotNil(t, updated.WinnerRivalID)
	assert.Equal(t, 11, *updated.WinnerRivalID) // соперник заявки 101

	winner := updated.WinnerRival()
	require.NotNil(t, winner)
	require.NotNil(t, winner.WonPlace)
	assert.Equal(t, models.PlaceFirst, *winner.WonPlace)

	loser := updated.RivalByProposal(102)
	require.NotNil(t, loser.WonPlace)
	assert.Equal(t, models.PlaceSecond, *loser.WonPlace)
}

func TestChangeSeriesStatusDeferredWhileMatchesRunning(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	addMatch(db, series, 12, intPtr(102), true)
	addMatch(db, series, 13, nil, false) // решающий матч ещё идёт

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	_, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	assert.ErrorIs(t, err, ErrSeriesWinnerUndetermined)
	assert.Equal(t, models.StatusStarted, db.series[1].Status)
}

func TestCalculateSeriesWinner(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	addMatch(db, series, 12, intPtr(102), true)
	unfinished := addMatch(db, series, 13, nil, false)
	series.Matches = []*models.TournamentMatch{db.matches[11], db.matches[12], unfinished}

	_, _, computable := CalculateSeriesWinner(series)
	assert.False(t, computable, "итог не считается, пока есть незавершённые матчи")

	// Третий матч завершился вничью: победителя нет.
	unfinished.Status = models.StatusFinished
	unfinished.HasNoWinner = true

	winner, hasNoWinner, computable := CalculateSeriesWinner(series)
	assert.True(t, computable)
	assert.True(t, hasNoWinner)
	assert.Nil(t, winner)

	// Переигровка с победителем даёт строгий максимум.
	decider := addMatch(db, series, 14, intPtr(102), true)
	series.Matches = append(series.Matches, decider)

	winner, hasNoWinner, computable = CalculateSeriesWinner(series)
	assert.True(t, computable)
	assert.False(t, hasNoWinner)
	require.NotNil(t, winner)
	assert.Equal(t, 102, winner.ProposalID)
}

func TestChangeSeriesStatusTieFinishesWithoutWinner(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	addMatch(db, series, 12, intPtr(102), true)

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	updated, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	require.NoError(t, err)
	assert.True(t, updated.HasNoWinner)
	assert.Nil(t, updated.WinnerRivalID)
}

func TestChangeSeriesStatusTieAwardsNoFirstPlace(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	addMatch(db, series, 12, intPtr(102), true)

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	updated, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	require.NoError(t, err)

	// Без победителя первое место остаётся незанятым: соперники
	// ранжируются начиная со второго.
	assert.Nil(t, updated.RivalByPlace(models.PlaceFirst))
	for _, rival := range updated.Rivals {
		require.NotNil(t, rival.WonPlace)
		assert.NotEqual(t, models.PlaceFirst, *rival.WonPlace)
	}
	second := updated.RivalByPlace(models.PlaceSecond)
	third := updated.RivalByPlace(models.PlaceThird)
	require.NotNil(t, second)
	require.NotNil(t, third)
	assert.Less(t, second.ID, third.ID)
}

func TestChangeSeriesStatusExplicitWinner(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	addMatch(db, series, 12, intPtr(102), true)

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	// Неизвестный соперник отклоняется.
	_, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, intPtr(999), false)
	assert.ErrorIs(t, err, ErrWinnerRivalUnknown)

	// Явный победитель имеет приоритет над подсчётом (матчи дали ничью).
	updated, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, intPtr(series.Rivals[1].ID), false)
	require.NoError(t, err)
	assert.False(t, updated.HasNoWinner)
	require.NotNil(t, updated.WinnerRivalID)
	assert.Equal(t, series.Rivals[1].ID, *updated.WinnerRivalID)
}

func TestChangeSeriesStatusDeletedSeries(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	series.Status = models.StatusDeleted

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	_, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	assert.ErrorIs(t, err, ErrSeriesDeleted)
}

func TestChangeSeriesStatusRefinishIsIdempotent(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102)
	addMatch(db, series, 11, intPtr(101), true)
	series.Status = models.StatusFinished
	winnerID := series.Rivals[0].ID
	series.WinnerRivalID = &winnerID

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	updated, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	require.NoError(t, err)
	assert.Equal(t, winnerID, *updated.WinnerRivalID)
}

func TestAssignSeriesPlacesRanksByWins(t *testing.T) {
	db := newMemDB()
	series := buildSeries(db, 1, 101, 102, 103, 104)
	addMatch(db, series, 11, intPtr(103), true)
	addMatch(db, series, 12, intPtr(103), true)
	addMatch(db, series, 13, intPtr(104), true)

	svc := NewSeriesService(&fakeSeriesRepo{db}, &fakeMatchRepo{db})

	updated, err := svc.ChangeSeriesStatus(context.Background(), 1, models.StatusFinished, nil, false)
	require.NoError(t, err)

	byProposal := func(proposalID int) models.SeriesRivalPlace {
		rival := updated.RivalByProposal(proposalID)
		require.NotNil(t, rival)
		require.NotNil(t, rival.WonPlace)
		return *rival.WonPlace
	}

	// 103 — два выигрыша, победитель. 104 — один, затем 101 и 102 без
	// побед делятся по возрастанию id соперника.
	assert.Equal(t, models.PlaceFirst, byProposal(103))
	assert.Equal(t, models.PlaceSecond, byProposal(104))
	assert.Equal(t, models.PlaceThird, byProposal(101))
	assert.Equal(t, models.PlaceFourth, byProposal(102))
}
