package brackets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhrulSergey/league-core/models"
)

func testTournament(system models.TournamentSystemType) *models.Tournament {
	return &models.Tournament{
		ID:         1,
		SystemType: system,
		Status:     models.StatusStarted,
		Settings: &models.TournamentSettings{
			TournamentID:        1,
			MatchCountPerSeries: 3,
			MatchRivalCount:     2,
		},
	}
}

func testProposals(n int) []*models.TournamentTeamProposal {
	proposals := make([]*models.TournamentTeamProposal, 0, n)
	for i := 1; i <= n; i++ {
		proposals = append(proposals, &models.TournamentTeamProposal{
			ID:           100 + i,
			TournamentID: 1,
			TeamID:       i,
			State:        models.ProposalApproved,
		})
	}
	return proposals
}

func TestSingleEliminationInitiateBuildsFullSkeleton(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	tournament := testTournament(models.SystemSingleElimination)

	rounds, err := gen.InitiateBracketsWithRounds(context.Background(), tournament, testProposals(8))
	require.NoError(t, err)
	require.Len(t, rounds, 3)

	// Число серий раунда i равно 8 / 2^i.
	assert.Len(t, rounds[0].Series, 4)
	assert.Len(t, rounds[1].Series, 2)
	assert.Len(t, rounds[2].Series, 1)

	assert.Equal(t, models.StatusStarted, rounds[0].Status)
	assert.Equal(t, models.StatusCreated, rounds[1].Status)
	assert.Equal(t, models.StatusCreated, rounds[2].Status)

	assert.False(t, rounds[0].IsLast)
	assert.False(t, rounds[1].IsLast)
	assert.True(t, rounds[2].IsLast)
	assert.Equal(t, "Final", rounds[2].Name)

	// Первый раунд засеян парами в порядке пула, матчи созданы сразу.
	first := rounds[0].Series[0]
	require.Len(t, first.Rivals, 2)
	assert.Equal(t, 101, first.Rivals[0].ProposalID)
	assert.Equal(t, 102, first.Rivals[1].ProposalID)
	require.Len(t, first.Matches, 3)
	assert.Len(t, first.Matches[0].Rivals, 2)

	// Последующие раунды — пустые слоты со ссылками на родителей.
	semifinal := rounds[1].Series[0]
	assert.Empty(t, semifinal.Rivals)
	assert.Empty(t, semifinal.Matches)
	assert.Equal(t, []string{"R1S1", "R1S2"}, semifinal.ParentGenUIDs)

	final := rounds[2].Series[0]
	assert.Equal(t, []string{"R2S1", "R2S2"}, final.ParentGenUIDs)
}

func TestSingleEliminationInitiateRejectsBadPool(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	ctx := context.Background()

	_, err := gen.InitiateBracketsWithRounds(ctx, testTournament(models.SystemSingleElimination), testProposals(6))
	assert.ErrorIs(t, err, ErrIncompatibleRivalCount)

	_, err = gen.InitiateBracketsWithRounds(ctx, testTournament(models.SystemSingleElimination), testProposals(1))
	assert.ErrorIs(t, err, ErrNotEnoughRivals)

	withRounds := testTournament(models.SystemSingleElimination)
	withRounds.Rounds = []*models.TournamentRound{{RoundNumber: 1}}
	_, err = gen.InitiateBracketsWithRounds(ctx, withRounds, testProposals(4))
	assert.ErrorIs(t, err, ErrRoundsAlreadyExist)

	finished := testTournament(models.SystemSingleElimination)
	finished.Status = models.StatusFinished
	_, err = gen.InitiateBracketsWithRounds(ctx, finished, testProposals(4))
	assert.ErrorIs(t, err, ErrTournamentNotActive)
}

// finishedSeries собирает завершённую серию с расставленными местами.
func finishedSeries(id, winnerProposalID, loserProposalID int) *models.TournamentSeries {
	first := models.PlaceFirst
	second := models.PlaceSecond
	winner := &models.TournamentSeriesRival{ID: id*10 + 1, SeriesID: id, ProposalID: winnerProposalID, WonPlace: &first}
	loser := &models.TournamentSeriesRival{ID: id*10 + 2, SeriesID: id, ProposalID: loserProposalID, WonPlace: &second}
	return &models.TournamentSeries{
		ID:            id,
		Status:        models.StatusFinished,
		BracketType:   models.BracketUpper,
		WinnerRivalID: &winner.ID,
		Rivals:        []*models.TournamentSeriesRival{winner, loser},
	}
}

func TestSingleEliminationComposeNextRoundPopulatesSkeleton(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	tournament := testTournament(models.SystemSingleElimination)

	child := &models.TournamentSeries{
		ID:              21,
		Status:          models.StatusCreated,
		BracketType:     models.BracketUpper,
		ParentSeriesIDs: []int64{11, 12},
	}
	tournament.Rounds = []*models.TournamentRound{
		{
			ID: 1, RoundNumber: 1, Status: models.StatusFinished,
			Series: []*models.TournamentSeries{
				finishedSeries(11, 101, 102),
				finishedSeries(12, 104, 103),
			},
		},
		{
			ID: 2, RoundNumber: 2, IsLast: true, Status: models.StatusCreated,
			Series: []*models.TournamentSeries{child},
		},
	}

	next, err := gen.ComposeNextRound(context.Background(), tournament)
	require.NoError(t, err)
	assert.Equal(t, 2, next.RoundNumber)
	assert.Equal(t, models.StatusStarted, next.Status)

	require.Len(t, child.Rivals, 2)
	assert.Equal(t, 101, child.Rivals[0].ProposalID)
	assert.Equal(t, 104, child.Rivals[1].ProposalID)
	require.Len(t, child.Matches, 3)
	assert.Len(t, child.Matches[0].Rivals, 2)
}

func TestSingleEliminationComposeNextRoundGuards(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	ctx := context.Background()

	notFinished := testTournament(models.SystemSingleElimination)
	notFinished.Rounds = []*models.TournamentRound{
		{RoundNumber: 1, Status: models.StatusStarted},
	}
	_, err := gen.ComposeNextRound(ctx, notFinished)
	assert.ErrorIs(t, err, ErrPreviousRoundNotFinished)

	lastDone := testTournament(models.SystemSingleElimination)
	lastDone.Rounds = []*models.TournamentRound{
		{RoundNumber: 1, IsLast: true, Status: models.StatusFinished},
	}
	_, err = gen.ComposeNextRound(ctx, lastDone)
	assert.ErrorIs(t, err, ErrLastRoundReached)
}

func TestSingleEliminationComposeNextRoundRejectsSeriesWithoutFirstPlace(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	tournament := testTournament(models.SystemSingleElimination)

	// Серия завершилась без победителя: первого места нет ни у кого.
	second := models.PlaceSecond
	third := models.PlaceThird
	tied := &models.TournamentSeries{
		ID:          11,
		Status:      models.StatusFinished,
		BracketType: models.BracketUpper,
		Rivals: []*models.TournamentSeriesRival{
			{ID: 111, SeriesID: 11, ProposalID: 101, WonPlace: &second},
			{ID: 112, SeriesID: 11, ProposalID: 102, WonPlace: &third},
		},
	}
	child := &models.TournamentSeries{
		ID:              21,
		Status:          models.StatusCreated,
		BracketType:     models.BracketUpper,
		ParentSeriesIDs: []int64{11, 12},
	}
	tournament.Rounds = []*models.TournamentRound{
		{
			ID: 1, RoundNumber: 1, Status: models.StatusFinished,
			Series: []*models.TournamentSeries{
				tied,
				finishedSeries(12, 104, 103),
			},
		},
		{
			ID: 2, RoundNumber: 2, IsLast: true, Status: models.StatusCreated,
			Series: []*models.TournamentSeries{child},
		},
	}

	_, err := gen.ComposeNextRound(context.Background(), tournament)
	assert.ErrorIs(t, err, ErrBracketCorrupted)
}

func TestSingleEliminationComposeSettingsIsIdempotent(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	tournament := testTournament(models.SystemSingleElimination)
	tournament.Settings.RoundSettings = map[int]int{1: 2}

	settings, err := gen.ComposeAdditionalTournamentSettings(tournament, 8)
	require.NoError(t, err)
	// Существующая настройка не перезаписана, недостающие добавлены.
	assert.Equal(t, map[int]int{1: 2, 2: 1, 3: 1}, settings.RoundSettings)
}
