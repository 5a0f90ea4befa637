package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/KhrulSergey/league-core/clients"
	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// memDB — общее in-memory хранилище для фейковых репозиториев.
// Указатели разделяются с вызывающим кодом: для тестов этого достаточно.
type memDB struct {
	mu sync.Mutex

	tournaments  map[int]*models.Tournament
	rounds       map[int]*models.TournamentRound
	series       map[int]*models.TournamentSeries
	matches      map[int]*models.TournamentMatch
	proposals    map[int]*models.TournamentTeamProposal
	transactions map[string]*models.AccountTransaction
	organizers   map[int][]int
	winners      map[int][]*models.TournamentWinner

	nextID int

	tournamentStatusUpdates int
}

func newMemDB() *memDB {
	return &memDB{
		tournaments:  make(map[int]*models.Tournament),
		rounds:       make(map[int]*models.TournamentRound),
		series:       make(map[int]*models.TournamentSeries),
		matches:      make(map[int]*models.TournamentMatch),
		proposals:    make(map[int]*models.TournamentTeamProposal),
		transactions: make(map[string]*models.AccountTransaction),
		organizers:   make(map[int][]int),
		winners:      make(map[int][]*models.TournamentWinner),
		nextID:       1000,
	}
}

func (db *memDB) id() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	return db.nextID
}

type fakeTxRunner struct{}

func (fakeTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type fakeTournamentRepo struct{ db *memDB }

func (r *fakeTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	t.ID = r.db.id()
	r.db.tournaments[t.ID] = t
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, ok := r.db.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return t, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	var out []models.Tournament
	for _, t := range r.db.tournaments {
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, t *models.Tournament) error {
	if _, ok := r.db.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	r.db.tournaments[t.ID] = t
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	t, ok := r.db.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	r.db.tournamentStatusUpdates++
	return nil
}

func (r *fakeTournamentRepo) MarkFinished(ctx context.Context, exec repositories.SQLExecutor, id int, finishedAt time.Time, forced bool) error {
	t, ok := r.db.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.StatusFinished
	t.FinishedDate = &finishedAt
	t.IsForcedFinished = forced
	r.db.tournamentStatusUpdates++
	return nil
}

func (r *fakeTournamentRepo) UnmarkFinished(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	t, ok := r.db.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	t.FinishedDate = nil
	t.IsForcedFinished = false
	r.db.tournamentStatusUpdates++
	return nil
}

func (r *fakeTournamentRepo) ListActive(ctx context.Context) ([]*models.Tournament, error) {
	var out []*models.Tournament
	for _, t := range r.db.tournaments {
		if t.Status.IsActive() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTournamentRepo) SaveSettings(ctx context.Context, exec repositories.SQLExecutor, settings *models.TournamentSettings) error {
	t, ok := r.db.tournaments[settings.TournamentID]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Settings = settings
	return nil
}

func (r *fakeTournamentRepo) GetSettings(ctx context.Context, tournamentID int) (*models.TournamentSettings, error) {
	t, ok := r.db.tournaments[tournamentID]
	if !ok || t.Settings == nil {
		return nil, repositories.ErrTournamentNotFound
	}
	return t.Settings, nil
}

func (r *fakeTournamentRepo) AddOrganizer(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) error {
	r.db.organizers[tournamentID] = append(r.db.organizers[tournamentID], userID)
	return nil
}

func (r *fakeTournamentRepo) ListOrganizerIDs(ctx context.Context, tournamentID int) ([]int, error) {
	return r.db.organizers[tournamentID], nil
}

func (r *fakeTournamentRepo) AddWinner(ctx context.Context, exec repositories.SQLExecutor, winner *models.TournamentWinner) error {
	winner.ID = r.db.id()
	r.db.winners[winner.TournamentID] = append(r.db.winners[winner.TournamentID], winner)
	return nil
}

func (r *fakeTournamentRepo) ListWinners(ctx context.Context, tournamentID int) ([]*models.TournamentWinner, error) {
	return r.db.winners[tournamentID], nil
}

type fakeRoundRepo struct{ db *memDB }

func (r *fakeRoundRepo) Create(ctx context.Context, exec repositories.SQLExecutor, round *models.TournamentRound) error {
	round.ID = r.db.id()
	r.db.rounds[round.ID] = round
	return nil
}

func (r *fakeRoundRepo) GetByID(ctx context.Context, id int) (*models.TournamentRound, error) {
	round, ok := r.db.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return round, nil
}

func (r *fakeRoundRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentRound, error) {
	var out []*models.TournamentRound
	for _, round := range r.db.rounds {
		if round.TournamentID == tournamentID {
			out = append(out, round)
		}
	}
	return out, nil
}

func (r *fakeRoundRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	round, ok := r.db.rounds[id]
	if !ok {
		return repositories.ErrRoundNotFound
	}
	round.Status = status
	return nil
}

func (r *fakeRoundRepo) GetActiveRound(ctx context.Context, tournamentID int) (*models.TournamentRound, error) {
	var active *models.TournamentRound
	for _, round := range r.db.rounds {
		if round.TournamentID != tournamentID || !round.Status.IsActive() {
			continue
		}
		if active == nil || round.RoundNumber > active.RoundNumber {
			active = round
		}
	}
	if active == nil {
		return nil, repositories.ErrRoundNotFound
	}
	return active, nil
}

type fakeSeriesRepo struct{ db *memDB }

func (r *fakeSeriesRepo) Create(ctx context.Context, exec repositories.SQLExecutor, series *models.TournamentSeries) error {
	series.ID = r.db.id()
	r.db.series[series.ID] = series
	return nil
}

func (r *fakeSeriesRepo) GetByID(ctx context.Context, id int) (*models.TournamentSeries, error) {
	series, ok := r.db.series[id]
	if !ok {
		return nil, repositories.ErrSeriesNotFound
	}
	return series, nil
}

func (r *fakeSeriesRepo) ListByRound(ctx context.Context, roundID int) ([]*models.TournamentSeries, error) {
	var out []*models.TournamentSeries
	for _, series := range r.db.series {
		if series.RoundID == roundID {
			out = append(out, series)
		}
	}
	return out, nil
}

func (r *fakeSeriesRepo) Update(ctx context.Context, exec repositories.SQLExecutor, series *models.TournamentSeries) error {
	if _, ok := r.db.series[series.ID]; !ok {
		return repositories.ErrSeriesNotFound
	}
	r.db.series[series.ID] = series
	return nil
}

func (r *fakeSeriesRepo) UpdateParentLinks(ctx context.Context, exec repositories.SQLExecutor, id int, parentIDs pq.Int64Array) error {
	series, ok := r.db.series[id]
	if !ok {
		return repositories.ErrSeriesNotFound
	}
	series.ParentSeriesIDs = parentIDs
	return nil
}

func (r *fakeSeriesRepo) CreateRival(ctx context.Context, exec repositories.SQLExecutor, rival *models.TournamentSeriesRival) error {
	rival.ID = r.db.id()
	series, ok := r.db.series[rival.SeriesID]
	if !ok {
		return repositories.ErrSeriesNotFound
	}
	for _, existing := range series.Rivals {
		if existing == rival {
			return nil // генератор уже держит соперника в серии
		}
	}
	series.Rivals = append(series.Rivals, rival)
	return nil
}

func (r *fakeSeriesRepo) UpdateRival(ctx context.Context, exec repositories.SQLExecutor, rival *models.TournamentSeriesRival) error {
	return nil // соперники разделяются по указателям, обновлять нечего
}

func (r *fakeSeriesRepo) ListRivalsBySeries(ctx context.Context, seriesID int) ([]*models.TournamentSeriesRival, error) {
	series, ok := r.db.series[seriesID]
	if !ok {
		return nil, repositories.ErrSeriesNotFound
	}
	return series.Rivals, nil
}

type fakeMatchRepo struct{ db *memDB }

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.TournamentMatch) error {
	match.ID = r.db.id()
	for _, rival := range match.Rivals {
		rival.ID = r.db.id()
		rival.MatchID = match.ID
	}
	r.db.matches[match.ID] = match
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.TournamentMatch, error) {
	match, ok := r.db.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return match, nil
}

func (r *fakeMatchRepo) ListBySeries(ctx context.Context, seriesID int) ([]*models.TournamentMatch, error) {
	var out []*models.TournamentMatch
	for _, match := range r.db.matches {
		if match.SeriesID == seriesID {
			out = append(out, match)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) Update(ctx context.Context, exec repositories.SQLExecutor, match *models.TournamentMatch) error {
	if _, ok := r.db.matches[match.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	r.db.matches[match.ID] = match
	return nil
}

func (r *fakeMatchRepo) ReplaceRivalParticipants(ctx context.Context, exec repositories.SQLExecutor, matchRivalID int, teamParticipantIDs []int) error {
	return nil
}

type fakeProposalRepo struct{ db *memDB }

func (r *fakeProposalRepo) Create(ctx context.Context, exec repositories.SQLExecutor, proposal *models.TournamentTeamProposal) error {
	proposal.ID = r.db.id()
	for _, participant := range proposal.Participants {
		participant.ID = r.db.id()
		participant.ProposalID = proposal.ID
	}
	r.db.proposals[proposal.ID] = proposal
	return nil
}

func (r *fakeProposalRepo) GetByID(ctx context.Context, id int) (*models.TournamentTeamProposal, error) {
	proposal, ok := r.db.proposals[id]
	if !ok {
		return nil, repositories.ErrProposalNotFound
	}
	return proposal, nil
}

func (r *fakeProposalRepo) FindByTeamAndTournament(ctx context.Context, teamID, tournamentID int) (*models.TournamentTeamProposal, error) {
	for _, proposal := range r.db.proposals {
		if proposal.TeamID == teamID && proposal.TournamentID == tournamentID {
			return proposal, nil
		}
	}
	return nil, repositories.ErrProposalNotFound
}

func (r *fakeProposalRepo) ListByTournament(ctx context.Context, tournamentID int, states []models.ProposalState) ([]*models.TournamentTeamProposal, error) {
	var out []*models.TournamentTeamProposal
	for _, proposal := range r.db.proposals {
		if proposal.TournamentID != tournamentID {
			continue
		}
		if len(states) > 0 {
			matched := false
			for _, state := range states {
				if proposal.State == state {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, proposal)
	}
	return out, nil
}

func (r *fakeProposalRepo) UpdateStateGuarded(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.ProposalState) error {
	proposal, ok := r.db.proposals[id]
	if !ok {
		return repositories.ErrProposalNotFound
	}
	if proposal.State != from {
		return repositories.ErrProposalStateConflict
	}
	prev := proposal.State
	proposal.PrevState = &prev
	proposal.State = to
	return nil
}

func (r *fakeProposalRepo) SetConfirmed(ctx context.Context, exec repositories.SQLExecutor, id int, confirmed bool) error {
	proposal, ok := r.db.proposals[id]
	if !ok {
		return repositories.ErrProposalNotFound
	}
	proposal.Confirmed = confirmed
	return nil
}

func (r *fakeProposalRepo) AddTransaction(ctx context.Context, exec repositories.SQLExecutor, txn *models.AccountTransaction) error {
	txn.ID = r.db.id()
	r.db.transactions[txn.GUID] = txn
	return nil
}

func (r *fakeProposalRepo) UpdateTransactionStatus(ctx context.Context, exec repositories.SQLExecutor, guid string, status models.TransactionStatus) error {
	txn, ok := r.db.transactions[guid]
	if !ok {
		return repositories.ErrTransactionNotFound
	}
	txn.Status = status
	return nil
}

func (r *fakeProposalRepo) ListTransactions(ctx context.Context, proposalID int) ([]*models.AccountTransaction, error) {
	var out []*models.AccountTransaction
	for _, txn := range r.db.transactions {
		if txn.ProposalID == proposalID {
			out = append(out, txn)
		}
	}
	return out, nil
}

// fakeFinance считает платёжные вызовы; rejectTemplate позволяет
// симулировать отказ на конкретном шаблоне перевода.
type fakeFinance struct {
	mu             sync.Mutex
	applied        []*models.AccountTransaction
	aborted        []*models.AccountTransaction
	rejectTemplate models.TransactionTemplateType
	nextGUID       int
}

func (f *fakeFinance) GetAccountByHolder(ctx context.Context, holderID int, holderType models.AccountHolderType) (*models.Account, error) {
	return &models.Account{
		GUID:       fmt.Sprintf("%s-%d", holderType, holderID),
		HolderID:   holderID,
		HolderType: holderType,
	}, nil
}

func (f *fakeFinance) CreateAccountByHolder(ctx context.Context, holderID int, holderType models.AccountHolderType, name string) (*models.Account, error) {
	return f.GetAccountByHolder(ctx, holderID, holderType)
}

func (f *fakeFinance) ApplyPurchaseTransaction(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectTemplate != "" && txn.Template == f.rejectTemplate {
		return nil, fmt.Errorf("transfer rejected by provider")
	}
	f.nextGUID++
	applied := *txn
	applied.GUID = fmt.Sprintf("txn-%d", f.nextGUID)
	f.applied = append(f.applied, &applied)
	return &applied, nil
}

func (f *fakeFinance) AbortTransaction(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, txn)
	return txn, nil
}

type fakeUserProvider struct{}

func (fakeUserProvider) GetUserByID(ctx context.Context, userID int) (*clients.User, error) {
	return &clients.User{ID: userID, Username: fmt.Sprintf("user-%d", userID)}, nil
}

type fakeTeamProvider struct{ captainByTeam map[int]int }

func (f fakeTeamProvider) GetTeamByID(ctx context.Context, teamID int) (*clients.Team, error) {
	captain, ok := f.captainByTeam[teamID]
	if !ok {
		return nil, clients.ErrTeamNotFound
	}
	return &clients.Team{ID: teamID, CaptainUserID: captain}, nil
}

type noopNotifier struct{}

func (noopNotifier) SendEvent(ctx context.Context, event models.StatusChangeEvent) error {
	return nil
}
