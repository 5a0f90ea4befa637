package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/KhrulSergey/league-core/brackets"
	"github.com/KhrulSergey/league-core/events"
	"github.com/KhrulSergey/league-core/finance"
	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// TournamentEventService — оркестратор смены статусов. Принимает событие
// с одного уровня (матч, серия, раунд, турнир, заявка), решает, что
// должно произойти уровнем выше, и выполняет это через профильные сервисы.
// Сами сервисы никогда не зовут друг друга напрямую.
type TournamentEventService interface {
	ProcessMatchStatusChange(ctx context.Context, match *models.TournamentMatch, newStatus models.TournamentStatus) error
	ProcessSeriesStatusChange(ctx context.Context, series *models.TournamentSeries, newStatus models.TournamentStatus) error
	ProcessRoundStatusChange(ctx context.Context, round *models.TournamentRound, newStatus models.TournamentStatus) error
	ProcessTournamentStatusChange(ctx context.Context, tournament *models.Tournament, newStatus models.TournamentStatus) error

	// ProcessProposalStateChange выполняет денежные движения перехода
	// заявки. Вызывается внутри транзакции перехода: ошибка платежа
	// откатывает и сам переход.
	ProcessProposalStateChange(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, proposal *models.TournamentTeamProposal, newState models.ProposalState) error

	// RunStatusSweep — один проход планировщика по активным турнирам:
	// продвигает статусы, у которых наступила календарная дата.
	RunStatusSweep(ctx context.Context) error
}

type eventService struct {
	logger *slog.Logger

	tournamentRepo repositories.TournamentRepository
	roundRepo      repositories.RoundRepository
	proposalRepo   repositories.ProposalRepository

	tournaments TournamentService
	rounds      RoundService
	series      SeriesService
	proposals   ProposalService

	finance  finance.Provider
	notifier events.Notifier

	// collabTimeout ограничивает каждый вызов внешнего коллаборатора,
	// чтобы зависший платёжный шлюз не держал каскад бесконечно.
	collabTimeout time.Duration

	// processedSweep — турниры, уже обработанные в текущей эпохе
	// планировщика. Сбрасывается, когда покрывает все активные турниры.
	mu             sync.Mutex
	processedSweep map[int]bool
}

func NewTournamentEventService(
	logger *slog.Logger,
	tournamentRepo repositories.TournamentRepository,
	roundRepo repositories.RoundRepository,
	proposalRepo repositories.ProposalRepository,
	tournaments TournamentService,
	rounds RoundService,
	series SeriesService,
	proposals ProposalService,
	financeProvider finance.Provider,
	notifier events.Notifier,
	collabTimeout time.Duration,
) *eventService {
	return &eventService{
		logger:         logger,
		tournamentRepo: tournamentRepo,
		roundRepo:      roundRepo,
		proposalRepo:   proposalRepo,
		tournaments:    tournaments,
		rounds:         rounds,
		series:         series,
		proposals:      proposals,
		finance:        financeProvider,
		notifier:       notifier,
		collabTimeout:  collabTimeout,
		processedSweep: make(map[int]bool),
	}
}

func (s *eventService) ProcessMatchStatusChange(ctx context.Context, match *models.TournamentMatch, newStatus models.TournamentStatus) error {
	series, err := s.series.GetSeries(ctx, match.SeriesID)
	if err != nil {
		return err
	}
	round, err := s.roundRepo.GetByID(ctx, series.RoundID)
	if err != nil {
		return err
	}
	s.emitStatusChange(models.EntityMatch, match.ID, round.TournamentID, string(newStatus))

	if !newStatus.IsFinished() {
		return nil
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, round.TournamentID)
	if err != nil {
		return err
	}
	if !tournament.SystemType.AutoFinishSeriesEnabled() {
		return nil
	}
	if series.Status.IsFinished() || !series.IsAllMatchesFinished() {
		return nil
	}

	_, err = s.series.ChangeSeriesStatus(ctx, series.ID, models.StatusFinished, nil, false)
	if err != nil {
		return fmt.Errorf("failed to auto-finish series %d: %w", series.ID, err)
	}
	return nil
}

func (s *eventService) ProcessSeriesStatusChange(ctx context.Context, series *models.TournamentSeries, newStatus models.TournamentStatus) error {
	round, err := s.rounds.GetRound(ctx, series.RoundID)
	if err != nil {
		return err
	}
	s.emitStatusChange(models.EntitySeries, series.ID, round.TournamentID, string(newStatus))

	if !newStatus.IsFinished() {
		return nil
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, round.TournamentID)
	if err != nil {
		return err
	}

	// Последовательный режим: победители продвигаются в дочерние серии
	// сразу по завершении родителя, не дожидаясь конца раунда.
	if tournament.Settings != nil && tournament.Settings.IsSequentialSeries && !round.IsLast {
		if err := s.composeChildSeries(ctx, tournament, series); err != nil {
			return err
		}
	}

	if !tournament.SystemType.AutoFinishRoundEnabled() {
		return nil
	}
	if round.Status.IsFinished() || !round.IsAllSeriesFinished() {
		return nil
	}
	if _, err := s.rounds.ChangeRoundStatus(ctx, round.ID, models.StatusFinished); err != nil {
		return fmt.Errorf("failed to auto-finish round %d: %w", round.ID, err)
	}
	return nil
}

func (s *eventService) composeChildSeries(ctx context.Context, tournament *models.Tournament, parent *models.TournamentSeries) error {
	full, err := s.tournaments.GetFullTournament(ctx, tournament.ID)
	if err != nil {
		return err
	}
	generator, err := generatorFor(full)
	if err != nil {
		return err
	}
	children, err := generator.ComposeRivalForChildSeries(ctx, full, parent)
	if err != nil {
		// У выживания следующий раунд ещё не создан: продвижение
		// произойдёт при составлении раунда.
		if errors.Is(err, brackets.ErrChildSeriesNotComposed) {
			return nil
		}
		return fmt.Errorf("failed to compose child series of %d: %w", parent.ID, err)
	}
	return s.rounds.SaveComposedSeries(ctx, children)
}

func (s *eventService) ProcessRoundStatusChange(ctx context.Context, round *models.TournamentRound, newStatus models.TournamentStatus) error {
	s.emitStatusChange(models.EntityRound, round.ID, round.TournamentID, string(newStatus))
	if !newStatus.IsFinished() {
		return nil
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, round.TournamentID)
	if err != nil {
		return err
	}
	if !tournament.SystemType.GenerationEnabled() {
		return nil
	}

	if round.IsLast {
		if _, err := s.tournaments.ChangeTournamentStatus(ctx, tournament.ID, models.StatusFinished, false); err != nil {
			return fmt.Errorf("failed to finish tournament %d after last round: %w", tournament.ID, err)
		}
		return nil
	}

	if tournament.Settings != nil && tournament.Settings.IsSequentialSeries {
		// Дочерние серии заполнены по ходу раунда, осталось открыть
		// следующий раунд.
		return s.startNextRound(ctx, tournament.ID, round.RoundNumber)
	}

	full, err := s.tournaments.GetFullTournament(ctx, tournament.ID)
	if err != nil {
		return err
	}
	generator, err := generatorFor(full)
	if err != nil {
		return err
	}
	next, err := generator.ComposeNextRound(ctx, full)
	if err != nil {
		return fmt.Errorf("failed to compose round after %d: %w", round.RoundNumber, err)
	}
	next.TournamentID = tournament.ID
	if err := s.rounds.SaveComposedRound(ctx, next); err != nil {
		return err
	}
	s.emitStatusChange(models.EntityRound, next.ID, tournament.ID, string(next.Status))
	return nil
}

func (s *eventService) startNextRound(ctx context.Context, tournamentID, finishedRoundNumber int) error {
	full, err := s.tournaments.GetFullTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	next := full.RoundByNumber(finishedRoundNumber + 1)
	if next == nil || !next.Status.Before(models.StatusStarted) {
		return nil
	}
	return s.roundRepo.UpdateStatus(ctx, nil, next.ID, models.StatusStarted)
}

func (s *eventService) ProcessTournamentStatusChange(ctx context.Context, tournament *models.Tournament, newStatus models.TournamentStatus) error {
	s.emitStatusChange(models.EntityTournament, tournament.ID, tournament.ID, string(newStatus))

	switch {
	case newStatus == models.StatusCreated:
		s.createTournamentAccountAsync(tournament)
		return nil

	case newStatus.IsFinished() && !tournament.IsForcedFinished:
		return s.defineTournamentWinners(ctx, tournament)

	case newStatus.IsCanceled() && tournament.IsPaid():
		return s.cancelActiveProposals(ctx, tournament)
	}
	return nil
}

// createTournamentAccountAsync заводит счёт турнира в финансовой подсистеме.
// Fire-and-forget: сбой логируется, создание турнира не блокируется.
func (s *eventService) createTournamentAccountAsync(tournament *models.Tournament) {
	if s.finance == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.collabTimeout)
		defer cancel()
		if _, err := s.finance.CreateAccountByHolder(ctx, tournament.ID, models.HolderTournament, tournament.Name); err != nil {
			s.logger.Error("failed to create tournament account",
				"tournament_id", tournament.ID, "error", err)
		}
	}()
}

// defineTournamentWinners определяет победителя по единственной серии
// последнего раунда. Если итог не определён, турнир уводится в PAUSE —
// громкий откат вместо молчаливого завершения без победителя.
func (s *eventService) defineTournamentWinners(ctx context.Context, tournament *models.Tournament) error {
	full, err := s.tournaments.GetFullTournament(ctx, tournament.ID)
	if err != nil {
		return err
	}

	winner := finalSeriesWinner(full)
	if winner == nil {
		s.logger.Error("tournament finished without a determinable winner, pausing",
			"tournament_id", tournament.ID)
		if _, err := s.tournaments.ChangeTournamentStatus(ctx, tournament.ID, models.StatusPaused, false); err != nil {
			return fmt.Errorf("%w: failed to pause tournament %d", err, tournament.ID)
		}
		return nil
	}

	record := &models.TournamentWinner{
		TournamentID: tournament.ID,
		ProposalID:   winner.ProposalID,
		Place:        models.PlaceFirst,
	}
	if err := s.tournaments.AddTournamentWinner(ctx, record); err != nil {
		return fmt.Errorf("failed to record tournament %d winner: %w", tournament.ID, err)
	}
	tournament.Winners = append(tournament.Winners, record)
	return nil
}

// finalSeriesWinner возвращает победителя финальной серии или nil,
// если структура финала не позволяет однозначно его назвать.
func finalSeriesWinner(full *models.Tournament) *models.TournamentSeriesRival {
	last := full.LastRound()
	if last == nil || !last.IsLast || !last.Status.IsFinished() {
		return nil
	}
	if len(last.Series) != 1 {
		return nil
	}
	final := last.Series[0]
	if !final.Status.IsFinished() || final.HasNoWinner {
		return nil
	}
	return final.WinnerRival()
}

// cancelActiveProposals отменяет все активные заявки отменяемого
// платного турнира, возвращая взносы.
func (s *eventService) cancelActiveProposals(ctx context.Context, tournament *models.Tournament) error {
	proposals, err := s.proposalRepo.ListByTournament(ctx, tournament.ID, models.ActiveProposalStateList)
	if err != nil {
		return err
	}
	var firstErr error
	for _, proposal := range proposals {
		if err := s.proposals.CancelProposal(ctx, proposal.ID); err != nil {
			s.logger.Error("failed to cancel proposal of cancelled tournament",
				"tournament_id", tournament.ID, "proposal_id", proposal.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *eventService) ProcessProposalStateChange(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, proposal *models.TournamentTeamProposal, newState models.ProposalState) error {
	s.emitStatusChange(models.EntityProposal, proposal.ID, tournament.ID, string(newState))

	if !tournament.IsPaid() || proposal.ParticipationFee <= 0 {
		return nil
	}

	prev := proposal.PrevState
	activated := newState.IsActive() && (prev == nil || prev.IsDisabled())
	deactivated := newState.IsDisabled() && prev != nil && prev.IsActive()

	switch {
	case activated:
		return s.chargeParticipationFee(ctx, exec, tournament, proposal)
	case deactivated:
		return s.refundParticipationFee(ctx, exec, proposal)
	}
	return nil
}

// chargeParticipationFee проводит оплату двумя переводами: взнос на счёт
// турнира и комиссия на счёт организатора. Сбой второго перевода
// компенсируется отменой первого.
func (s *eventService) chargeParticipationFee(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, proposal *models.TournamentTeamProposal) error {
	captainAccount, err := s.accountFor(ctx, proposal.CaptainUserID, models.HolderUser)
	if err != nil {
		return err
	}
	tournamentAccount, err := s.accountFor(ctx, tournament.ID, models.HolderTournament)
	if err != nil {
		return err
	}

	commissionPercent := 0.0
	if tournament.Settings != nil {
		commissionPercent = tournament.Settings.OrganizerCommission
	}
	commissionAmount := roundMoney(proposal.ParticipationFee * commissionPercent / 100)
	feeAmount := roundMoney(proposal.ParticipationFee - commissionAmount)

	feeLeg, err := s.applyTransfer(ctx, &models.AccountTransaction{
		ProposalID: proposal.ID,
		SourceGUID: captainAccount.GUID,
		TargetGUID: tournamentAccount.GUID,
		Amount:     feeAmount,
		Template:   models.TemplateParticipationFee,
	})
	if err != nil {
		return err
	}

	var commissionLeg *models.AccountTransaction
	if commissionAmount > 0 {
		organizerAccount, err := s.accountFor(ctx, tournament.CreatedByID, models.HolderUser)
		if err != nil {
			s.abortTransfer(feeLeg)
			return err
		}
		commissionLeg, err = s.applyTransfer(ctx, &models.AccountTransaction{
			ProposalID: proposal.ID,
			SourceGUID: captainAccount.GUID,
			TargetGUID: organizerAccount.GUID,
			Amount:     commissionAmount,
			Template:   models.TemplateCommissionFee,
		})
		if err != nil {
			// Компенсация: взнос без комиссии не остаётся проведённым.
			s.abortTransfer(feeLeg)
			return err
		}
	}

	for _, leg := range []*models.AccountTransaction{feeLeg, commissionLeg} {
		if leg == nil {
			continue
		}
		leg.Status = models.TransactionFinished
		if err := s.proposalRepo.AddTransaction(ctx, exec, leg); err != nil {
			return fmt.Errorf("failed to record transaction %s: %w", leg.GUID, err)
		}
		proposal.Transactions = append(proposal.Transactions, leg)
	}
	return nil
}

// refundParticipationFee отменяет все проведённые транзакции заявки.
// Уже отменённые пропускаются: возврат выполняется ровно один раз.
func (s *eventService) refundParticipationFee(ctx context.Context, exec repositories.SQLExecutor, proposal *models.TournamentTeamProposal) error {
	transactions := proposal.Transactions
	if len(transactions) == 0 {
		loaded, err := s.proposalRepo.ListTransactions(ctx, proposal.ID)
		if err != nil {
			return err
		}
		transactions = loaded
	}

	for _, txn := range transactions {
		if txn.Status != models.TransactionFinished {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, s.collabTimeout)
		_, err := s.finance.AbortTransaction(callCtx, txn)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: transaction %s of proposal %d: %v", ErrRefundFailed, txn.GUID, proposal.ID, err)
		}
		if err := s.proposalRepo.UpdateTransactionStatus(ctx, exec, txn.GUID, models.TransactionAborted); err != nil {
			return err
		}
		txn.Status = models.TransactionAborted
	}
	return nil
}

func (s *eventService) accountFor(ctx context.Context, holderID int, holderType models.AccountHolderType) (*models.Account, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.collabTimeout)
	defer cancel()
	account, err := s.finance.GetAccountByHolder(callCtx, holderID, holderType)
	if err != nil {
		return nil, fmt.Errorf("%w: account of %s %d: %v", ErrPaymentFailed, holderType, holderID, err)
	}
	return account, nil
}

func (s *eventService) applyTransfer(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.collabTimeout)
	defer cancel()
	applied, err := s.finance.ApplyPurchaseTransaction(callCtx, txn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %.2f: %v", ErrPaymentFailed, txn.Template, txn.Amount, err)
	}
	if applied == nil || applied.GUID == "" {
		return nil, fmt.Errorf("%w: %s: empty transaction result", ErrPaymentFailed, txn.Template)
	}
	return applied, nil
}

func (s *eventService) abortTransfer(txn *models.AccountTransaction) {
	ctx, cancel := context.WithTimeout(context.Background(), s.collabTimeout)
	defer cancel()
	if _, err := s.finance.AbortTransaction(ctx, txn); err != nil {
		s.logger.Error("failed to abort compensating transaction",
			"transaction_guid", txn.GUID, "error", err)
	}
}

// RunStatusSweep продвигает активные турниры по календарю. Каждый турнир
// обрабатывается не чаще раза за эпоху: множество обработанных id
// сбрасывается, когда покрывает все активные турниры.
func (s *eventService) RunStatusSweep(ctx context.Context) error {
	active, err := s.tournamentRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("status sweep failed to list active tournaments: %w", err)
	}

	s.mu.Lock()
	allProcessed := len(active) > 0
	for _, t := range active {
		if !s.processedSweep[t.ID] {
			allProcessed = false
			break
		}
	}
	if allProcessed {
		s.processedSweep = make(map[int]bool)
	}
	pending := make([]*models.Tournament, 0, len(active))
	for _, t := range active {
		if s.processedSweep[t.ID] {
			continue
		}
		s.processedSweep[t.ID] = true
		pending = append(pending, t)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, tournament := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, ok := dueStatusTarget(tournament, now)
		if !ok {
			continue
		}
		if _, err := s.tournaments.ChangeTournamentStatus(ctx, tournament.ID, target, false); err != nil {
			s.logger.Error("scheduled status transition failed",
				"tournament_id", tournament.ID, "target_status", target, "error", err)
		} else {
			s.logger.Info("scheduled status transition applied",
				"tournament_id", tournament.ID, "target_status", target)
		}
	}
	return nil
}

// dueStatusTarget возвращает статус, до которого турниру пора дорасти
// по календарю. Автостарт требует включённого IsAutoStart.
func dueStatusTarget(t *models.Tournament, now time.Time) (models.TournamentStatus, bool) {
	// Проверки идут от ранней стадии к поздней: за один проход турнир
	// продвигается ровно на одну стадию, даже если все даты уже в прошлом.
	if !now.Before(t.SignUpStartDate) && t.Status.Before(models.StatusSignUp) {
		return models.StatusSignUp, true
	}
	if !now.Before(t.SignUpEndDate) && t.Status.Before(models.StatusAdjustment) {
		return models.StatusAdjustment, true
	}
	if t.IsAutoStart && !now.Before(t.PlannedStartDate) && t.Status.Before(models.StatusStarted) {
		return models.StatusStarted, true
	}
	return "", false
}

// emitStatusChange рассылает уведомление о смене статуса. Best-effort:
// доставка не влияет на состояние, ошибка только логируется.
func (s *eventService) emitStatusChange(entityType models.EventEntityType, entityID, tournamentID int, newStatus string) {
	if s.notifier == nil {
		return
	}
	event := models.StatusChangeEvent{
		EntityType:   entityType,
		EntityID:     entityID,
		TournamentID: tournamentID,
		NewStatus:    newStatus,
		OccurredAt:   time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.collabTimeout)
		defer cancel()
		if err := s.notifier.SendEvent(ctx, event); err != nil {
			s.logger.Warn("status change notification failed",
				"entity_type", event.EntityType, "entity_id", event.EntityID, "error", err)
		}
	}()
}

func roundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}
