package brackets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhrulSergey/league-core/models"
)

func survivalTournament(matchRivalCount int) *models.Tournament {
	tournament := testTournament(models.SystemSurvivalElimination)
	tournament.Settings.MatchRivalCount = matchRivalCount
	return tournament
}

func TestSurvivalEliminationInitiateFirstRoundOnly(t *testing.T) {
	gen := NewSurvivalEliminationGenerator()
	tournament := survivalTournament(4)

	rounds, err := gen.InitiateBracketsWithRounds(context.Background(), tournament, testProposals(8))
	require.NoError(t, err)
	// Скелет вперёд не строится: только первый раунд.
	require.Len(t, rounds, 1)

	round := rounds[0]
	assert.Equal(t, models.StatusStarted, round.Status)
	assert.False(t, round.IsLast)
	require.Len(t, round.Series, 2)

	// Раздача без возвращения: каждая заявка ровно в одной серии.
	seen := make(map[int]bool)
	for _, series := range round.Series {
		require.Len(t, series.Rivals, 4)
		require.Len(t, series.Matches, 3)
		assert.Len(t, series.Matches[0].Rivals, 4)
		for _, rival := range series.Rivals {
			assert.False(t, seen[rival.ProposalID], "proposal %d assigned twice", rival.ProposalID)
			seen[rival.ProposalID] = true
		}
	}
	assert.Len(t, seen, 8)
}

func TestSurvivalEliminationRejectsNonReduciblePool(t *testing.T) {
	gen := NewSurvivalEliminationGenerator()
	ctx := context.Background()

	// 12 / 4 = 3 — не степень двойки, пул не сводится к одной серии.
	_, err := gen.InitiateBracketsWithRounds(ctx, survivalTournament(4), testProposals(12))
	assert.ErrorIs(t, err, ErrIncompatibleRivalCount)

	_, err = gen.InitiateBracketsWithRounds(ctx, survivalTournament(4), testProposals(2))
	assert.ErrorIs(t, err, ErrNotEnoughRivals)

	_, err = gen.InitiateBracketsWithRounds(ctx, survivalTournament(1), testProposals(8))
	assert.ErrorIs(t, err, ErrSettingsRequired)
}

// survivalSeries — завершённая серия на 4 соперников с местами по порядку.
func survivalSeries(id int, proposalIDs ...int) *models.TournamentSeries {
	series := &models.TournamentSeries{
		ID:     id,
		Status: models.StatusFinished,
	}
	for rank, proposalID := range proposalIDs {
		place := models.PlaceByRank(rank)
		series.Rivals = append(series.Rivals, &models.TournamentSeriesRival{
			ID:         id*10 + rank,
			SeriesID:   id,
			ProposalID: proposalID,
			WonPlace:   &place,
		})
	}
	return series
}

func TestSurvivalEliminationComposeNextRoundCreatesRound(t *testing.T) {
	gen := NewSurvivalEliminationGenerator()
	tournament := survivalTournament(4)
	tournament.Settings.RoundSettings = map[int]int{1: 2, 2: 3}
	tournament.Rounds = []*models.TournamentRound{
		{
			ID: 1, RoundNumber: 1, Status: models.StatusFinished,
			Series: []*models.TournamentSeries{
				survivalSeries(11, 101, 102, 103, 104),
				survivalSeries(12, 105, 106, 107, 108),
			},
		},
	}

	next, err := gen.ComposeNextRound(context.Background(), tournament)
	require.NoError(t, err)
	assert.Equal(t, 2, next.RoundNumber)
	assert.True(t, next.IsLast)
	assert.Equal(t, models.StatusStarted, next.Status)
	require.Len(t, next.Series, 1)

	// Из каждой серии продвигаются len(rivals) - eliminated = 2 лучших.
	merged := next.Series[0]
	assert.Equal(t, []int64{11, 12}, []int64(merged.ParentSeriesIDs))
	require.Len(t, merged.Rivals, 4)
	proposalIDs := make([]int, 0, 4)
	for _, rival := range merged.Rivals {
		proposalIDs = append(proposalIDs, rival.ProposalID)
	}
	assert.ElementsMatch(t, []int{101, 102, 105, 106}, proposalIDs)
	require.Len(t, merged.Matches, 3)
}

func TestSurvivalEliminationComposeNextRoundDetectsCorruption(t *testing.T) {
	gen := NewSurvivalEliminationGenerator()
	tournament := survivalTournament(4)
	tournament.Settings.RoundSettings = map[int]int{1: 2}

	// У одного из продвигающихся место не выставлено: вычисленное число
	// победителей разойдётся с ожидаемым.
	broken := survivalSeries(11, 101, 102, 103, 104)
	broken.Rivals[1].WonPlace = nil
	tournament.Rounds = []*models.TournamentRound{
		{
			ID: 1, RoundNumber: 1, Status: models.StatusFinished,
			Series: []*models.TournamentSeries{
				broken,
				survivalSeries(12, 105, 106, 107, 108),
			},
		},
	}

	_, err := gen.ComposeNextRound(context.Background(), tournament)
	assert.ErrorIs(t, err, ErrBracketCorrupted)
}

func TestSurvivalEliminationComposeSettingsDefaults(t *testing.T) {
	gen := NewSurvivalEliminationGenerator()
	tournament := survivalTournament(4)

	settings, err := gen.ComposeAdditionalTournamentSettings(tournament, 16)
	require.NoError(t, err)
	// По умолчанию выбывает половина состава серии.
	assert.Equal(t, map[int]int{1: 2, 2: 2, 3: 2}, settings.RoundSettings)
}
