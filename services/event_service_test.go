package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhrulSergey/league-core/models"
)

type harness struct {
	db      *memDB
	finance *fakeFinance

	tournaments TournamentService
	rounds      RoundService
	series      SeriesService
	matches     MatchService
	proposals   ProposalService
	events      *eventService
}

// newHarness собирает сервисный слой поверх in-memory репозиториев
// тем же порядком, что и cmd/main.go.
func newHarness(captains map[int]int) *harness {
	db := newMemDB()
	tournamentRepo := &fakeTournamentRepo{db}
	roundRepo := &fakeRoundRepo{db}
	seriesRepo := &fakeSeriesRepo{db}
	matchRepo := &fakeMatchRepo{db}
	proposalRepo := &fakeProposalRepo{db}
	txRunner := fakeTxRunner{}
	financeProvider := &fakeFinance{}

	tournaments := NewTournamentService(tournamentRepo, roundRepo, seriesRepo, matchRepo, proposalRepo, fakeUserProvider{}, txRunner)
	rounds := NewRoundService(roundRepo, seriesRepo, matchRepo, txRunner)
	series := NewSeriesService(seriesRepo, matchRepo)
	matches := NewMatchService(matchRepo)
	proposals := NewProposalService(proposalRepo, tournamentRepo, fakeUserProvider{}, fakeTeamProvider{captainByTeam: captains}, txRunner)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	events := NewTournamentEventService(logger, tournamentRepo, roundRepo, proposalRepo,
		tournaments, rounds, series, proposals, financeProvider, nil, time.Second)

	tournaments.AttachEventService(events)
	rounds.AttachEventService(events)
	series.AttachEventService(events)
	matches.AttachEventService(events)
	proposals.AttachEventService(events)

	return &harness{
		db:          db,
		finance:     financeProvider,
		tournaments: tournaments,
		rounds:      rounds,
		series:      series,
		matches:     matches,
		proposals:   proposals,
		events:      events,
	}
}

// seedFinalRound готовит турнир с единственным последним раундом
// и одной серией заявок 101 против 102.
func seedFinalRound(db *memDB) (*models.Tournament, *models.TournamentRound, *models.TournamentSeries) {
	tournament := &models.Tournament{
		ID:         1,
		Name:       "Spring Cup",
		SystemType: models.SystemSingleElimination,
		AccessType: models.AccessFree,
		Status:     models.StatusStarted,
		Settings: &models.TournamentSettings{
			TournamentID:        1,
			MatchCountPerSeries: 1,
			MatchRivalCount:     2,
		},
	}
	db.tournaments[1] = tournament

	round := &models.TournamentRound{
		ID:           2,
		TournamentID: 1,
		RoundNumber:  1,
		Name:         "Final",
		Status:       models.StatusStarted,
		IsLast:       true,
	}
	db.rounds[2] = round

	series := buildSeries(db, 3, 101, 102)
	series.RoundID = round.ID
	return tournament, round, series
}

func TestMatchResultCascadesToTournamentFinish(t *testing.T) {
	h := newHarness(nil)
	tournament, round, series := seedFinalRound(h.db)
	match := addMatch(h.db, series, 40, nil, false)

	// Победа заявки 101 в единственном матче финала.
	_, err := h.matches.SetMatchResult(context.Background(), match.ID, intPtr(match.Rivals[0].ID), false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFinished, series.Status)
	require.NotNil(t, series.WinnerRivalID)
	assert.Equal(t, series.RivalByProposal(101).ID, *series.WinnerRivalID)

	assert.Equal(t, models.StatusFinished, round.Status)

	assert.Equal(t, models.StatusFinished, tournament.Status)
	assert.False(t, tournament.IsForcedFinished)
	require.NotNil(t, tournament.FinishedDate)

	winners := h.db.winners[tournament.ID]
	require.Len(t, winners, 1)
	assert.Equal(t, 101, winners[0].ProposalID)
	assert.Equal(t, models.PlaceFirst, winners[0].Place)
}

func TestUndeterminableWinnerPausesTournament(t *testing.T) {
	h := newHarness(nil)
	tournament, _, series := seedFinalRound(h.db)
	match := addMatch(h.db, series, 40, nil, false)

	// Финальный матч завершён без победителя.
	_, err := h.matches.SetMatchResult(context.Background(), match.ID, nil, true)
	require.NoError(t, err)

	assert.True(t, series.HasNoWinner)
	assert.Equal(t, models.StatusPaused, tournament.Status)
	assert.Empty(t, h.db.winners[tournament.ID])
	// Откат в паузу снимает отметки завершения.
	assert.Nil(t, tournament.FinishedDate)
	assert.False(t, tournament.IsForcedFinished)
}

func paidTournament() *models.Tournament {
	return &models.Tournament{
		ID:          1,
		Name:        "Paid Cup",
		SystemType:  models.SystemSingleElimination,
		AccessType:  models.AccessPaid,
		Status:      models.StatusSignUp,
		CreatedByID: 55,
		Settings: &models.TournamentSettings{
			TournamentID:        1,
			ParticipationFee:    10,
			OrganizerCommission: 20,
		},
	}
}

func TestChargeParticipationFeeSplitsCommission(t *testing.T) {
	h := newHarness(nil)
	tournament := paidTournament()
	h.db.tournaments[1] = tournament
	proposal := &models.TournamentTeamProposal{
		ID:               77,
		TournamentID:     1,
		CaptainUserID:    9,
		State:            models.ProposalCreated,
		ParticipationFee: 30, // 10 за игрока, состав из трёх
	}
	h.db.proposals[77] = proposal

	err := h.events.ProcessProposalStateChange(context.Background(), nil, tournament, proposal, models.ProposalCreated)
	require.NoError(t, err)

	require.Len(t, h.finance.applied, 2)
	fee, commission := h.finance.applied[0], h.finance.applied[1]

	assert.Equal(t, models.TemplateParticipationFee, fee.Template)
	assert.Equal(t, 24.0, fee.Amount)
	assert.Equal(t, fmt.Sprintf("%s-%d", models.HolderUser, 9), fee.SourceGUID)
	assert.Equal(t, fmt.Sprintf("%s-%d", models.HolderTournament, 1), fee.TargetGUID)

	assert.Equal(t, models.TemplateCommissionFee, commission.Template)
	assert.Equal(t, 6.0, commission.Amount)
	assert.Equal(t, fmt.Sprintf("%s-%d", models.HolderUser, 55), commission.TargetGUID)

	require.Len(t, proposal.Transactions, 2)
	for _, txn := range proposal.Transactions {
		assert.Equal(t, 77, txn.ProposalID)
		assert.Equal(t, models.TransactionFinished, txn.Status)
		assert.Contains(t, h.db.transactions, txn.GUID)
	}
}

func TestChargeParticipationFeeWithoutCommission(t *testing.T) {
	h := newHarness(nil)
	tournament := paidTournament()
	tournament.Settings.OrganizerCommission = 0
	h.db.tournaments[1] = tournament
	proposal := &models.TournamentTeamProposal{
		ID: 77, TournamentID: 1, CaptainUserID: 9,
		State: models.ProposalCreated, ParticipationFee: 30,
	}
	h.db.proposals[77] = proposal

	err := h.events.ProcessProposalStateChange(context.Background(), nil, tournament, proposal, models.ProposalCreated)
	require.NoError(t, err)

	require.Len(t, h.finance.applied, 1)
	assert.Equal(t, 30.0, h.finance.applied[0].Amount)
	assert.Len(t, proposal.Transactions, 1)
}

func TestCommissionFailureCompensatesFeeLeg(t *testing.T) {
	h := newHarness(nil)
	h.finance.rejectTemplate = models.TemplateCommissionFee
	tournament := paidTournament()
	h.db.tournaments[1] = tournament
	proposal := &models.TournamentTeamProposal{
		ID: 77, TournamentID: 1, CaptainUserID: 9,
		State: models.ProposalCreated, ParticipationFee: 30,
	}
	h.db.proposals[77] = proposal

	err := h.events.ProcessProposalStateChange(context.Background(), nil, tournament, proposal, models.ProposalCreated)
	require.ErrorIs(t, err, ErrPaymentFailed)

	// Проведённый взнос компенсирован, в БД не записано ничего.
	require.Len(t, h.finance.aborted, 1)
	assert.Equal(t, models.TemplateParticipationFee, h.finance.aborted[0].Template)
	assert.Empty(t, h.db.transactions)
	assert.Empty(t, proposal.Transactions)
}

func TestRefundParticipationFeeExactlyOnce(t *testing.T) {
	h := newHarness(nil)
	tournament := paidTournament()
	h.db.tournaments[1] = tournament
	proposal := &models.TournamentTeamProposal{
		ID: 77, TournamentID: 1, CaptainUserID: 9,
		State: models.ProposalCreated, ParticipationFee: 30,
	}
	h.db.proposals[77] = proposal

	ctx := context.Background()
	require.NoError(t, h.events.ProcessProposalStateChange(ctx, nil, tournament, proposal, models.ProposalCreated))
	require.Len(t, proposal.Transactions, 2)

	prev := models.ProposalApproved
	proposal.PrevState = &prev
	require.NoError(t, h.events.ProcessProposalStateChange(ctx, nil, tournament, proposal, models.ProposalCancelled))

	assert.Len(t, h.finance.aborted, 2)
	for _, txn := range proposal.Transactions {
		assert.Equal(t, models.TransactionAborted, txn.Status)
		assert.Equal(t, models.TransactionAborted, h.db.transactions[txn.GUID].Status)
	}

	// Повторная деактивация не трогает уже отменённые транзакции.
	require.NoError(t, h.events.ProcessProposalStateChange(ctx, nil, tournament, proposal, models.ProposalCancelled))
	assert.Len(t, h.finance.aborted, 2)
}

func TestFreeTournamentSkipsPayments(t *testing.T) {
	h := newHarness(nil)
	tournament := paidTournament()
	tournament.AccessType = models.AccessFree
	h.db.tournaments[1] = tournament
	proposal := &models.TournamentTeamProposal{
		ID: 77, TournamentID: 1, CaptainUserID: 9,
		State: models.ProposalCreated, ParticipationFee: 30,
	}
	h.db.proposals[77] = proposal

	err := h.events.ProcessProposalStateChange(context.Background(), nil, tournament, proposal, models.ProposalCreated)
	require.NoError(t, err)
	assert.Empty(t, h.finance.applied)
}

func TestRunStatusSweepAdvancesByCalendar(t *testing.T) {
	h := newHarness(nil)
	now := time.Now()
	h.db.tournaments[1] = &models.Tournament{
		ID:               1,
		Status:           models.StatusCreated,
		SignUpStartDate:  now.Add(-time.Hour),
		SignUpEndDate:    now.Add(time.Hour),
		PlannedStartDate: now.Add(2 * time.Hour),
	}

	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	assert.Equal(t, models.StatusSignUp, h.db.tournaments[1].Status)
	assert.Equal(t, 1, h.db.tournamentStatusUpdates)

	// Повторный проход в той же эпохе и после её сброса ничего не дублирует:
	// следующая календарная дата ещё не наступила.
	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	assert.Equal(t, models.StatusSignUp, h.db.tournaments[1].Status)
	assert.Equal(t, 1, h.db.tournamentStatusUpdates)
}

func TestRunStatusSweepAdvancesOneStagePerPass(t *testing.T) {
	h := newHarness(nil)
	now := time.Now()
	h.db.tournaments[1] = &models.Tournament{
		ID:               1,
		Status:           models.StatusCreated,
		IsAutoStart:      true,
		SignUpStartDate:  now.Add(-3 * time.Hour),
		SignUpEndDate:    now.Add(-2 * time.Hour),
		PlannedStartDate: now.Add(-time.Hour),
	}

	// Все даты давно позади, но турнир проходит жизненный цикл по
	// одной стадии за проход, не перескакивая запись и сверку сетки.
	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	assert.Equal(t, models.StatusSignUp, h.db.tournaments[1].Status)

	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	assert.Equal(t, models.StatusAdjustment, h.db.tournaments[1].Status)

	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	assert.Equal(t, models.StatusStarted, h.db.tournaments[1].Status)
	assert.Equal(t, 3, h.db.tournamentStatusUpdates)
}

func TestRunStatusSweepAutoStart(t *testing.T) {
	h := newHarness(nil)
	now := time.Now()
	h.db.tournaments[1] = &models.Tournament{
		ID:               1,
		Status:           models.StatusAdjustment,
		IsAutoStart:      true,
		SignUpStartDate:  now.Add(-3 * time.Hour),
		SignUpEndDate:    now.Add(-2 * time.Hour),
		PlannedStartDate: now.Add(-time.Hour),
	}

	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	assert.Equal(t, models.StatusStarted, h.db.tournaments[1].Status)
}

func TestRunStatusSweepRequiresAutoStartFlag(t *testing.T) {
	h := newHarness(nil)
	now := time.Now()
	h.db.tournaments[1] = &models.Tournament{
		ID:               1,
		Status:           models.StatusAdjustment,
		IsAutoStart:      false,
		SignUpStartDate:  now.Add(-3 * time.Hour),
		SignUpEndDate:    now.Add(-2 * time.Hour),
		PlannedStartDate: now.Add(-time.Hour),
	}

	require.NoError(t, h.events.RunStatusSweep(context.Background()))
	// Без автостарта турнир остаётся ждать ручного запуска.
	assert.Equal(t, models.StatusAdjustment, h.db.tournaments[1].Status)
	assert.Equal(t, 0, h.db.tournamentStatusUpdates)
}
