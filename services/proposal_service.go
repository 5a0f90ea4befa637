package services

import (
	"context"
	"errors"

	"github.com/KhrulSergey/league-core/clients"
	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// ProposalService управляет заявками команд: регистрация, check-in,
// выход и отмена. Все денежные движения идут через оркестратор
// до фиксации состояния: неудавшийся платёж отменяет переход целиком.
type ProposalService interface {
	// AddProposal регистрирует команду в турнире. Для команды
	// с отключённой заявкой выполняется повторная активация.
	AddProposal(ctx context.Context, tournamentID, teamID, captainUserID int, participantUserIDs []int) (*models.TournamentTeamProposal, error)

	GetProposal(ctx context.Context, id int) (*models.TournamentTeamProposal, error)
	GetProposalByTeam(ctx context.Context, teamID, tournamentID int) (*models.TournamentTeamProposal, error)
	ListProposals(ctx context.Context, tournamentID int, states []models.ProposalState) ([]*models.TournamentTeamProposal, error)

	// CheckInProposal подтверждает участие (CREATED -> APPROVE).
	// Доступно капитану в окне check-in турнира.
	CheckInProposal(ctx context.Context, proposalID, userID int) error

	// QuitProposal — добровольный выход капитана. Взнос возвращается.
	// Выход со штрафом не реализован и отклоняется явно.
	QuitProposal(ctx context.Context, proposalID, userID int, withPenalty bool) error

	// CancelProposal — отмена заявки организатором или системой.
	CancelProposal(ctx context.Context, proposalID int) error

	// RejectProposal — отклонение заявки организатором.
	RejectProposal(ctx context.Context, proposalID int) error
}

type proposalService struct {
	proposalRepo   repositories.ProposalRepository
	tournamentRepo repositories.TournamentRepository
	users          clients.UserProvider
	teams          clients.TeamProvider
	txRunner       repositories.TxRunner
	events         TournamentEventService
}

func NewProposalService(
	proposalRepo repositories.ProposalRepository,
	tournamentRepo repositories.TournamentRepository,
	users clients.UserProvider,
	teams clients.TeamProvider,
	txRunner repositories.TxRunner,
) *proposalService {
	return &proposalService{
		proposalRepo:   proposalRepo,
		tournamentRepo: tournamentRepo,
		users:          users,
		teams:          teams,
		txRunner:       txRunner,
	}
}

func (s *proposalService) AttachEventService(events TournamentEventService) {
	s.events = events
}

// CalculateTeamParticipationFee — взнос команды: ставка за игрока,
// умноженная на размер заявленного состава.
func CalculateTeamParticipationFee(settings *models.TournamentSettings, participantCount int) float64 {
	if settings == nil {
		return 0
	}
	return settings.ParticipationFee * float64(participantCount)
}

func (s *proposalService) AddProposal(ctx context.Context, tournamentID, teamID, captainUserID int, participantUserIDs []int) (*models.TournamentTeamProposal, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.StatusSignUp {
		return nil, ErrRegistrationNotOpen
	}
	if len(participantUserIDs) == 0 {
		validation := NewValidationError()
		validation.Add("participant_user_ids", "proposal roster cannot be empty")
		return nil, validation
	}

	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainUserID != captainUserID {
		return nil, ErrUserMustBeCaptain
	}
	if _, err := s.users.GetUserByID(ctx, captainUserID); err != nil {
		return nil, err
	}

	existing, err := s.proposalRepo.FindByTeamAndTournament(ctx, teamID, tournamentID)
	if err != nil && !errors.Is(err, repositories.ErrProposalNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.State.IsActive() {
			return nil, ErrProposalAlreadyRegistered
		}
		return s.reactivateProposal(ctx, tournament, existing)
	}

	proposal := &models.TournamentTeamProposal{
		TournamentID:     tournamentID,
		TeamID:           teamID,
		CaptainUserID:    captainUserID,
		State:            models.ProposalCreated,
		ParticipationFee: CalculateTeamParticipationFee(tournament.Settings, len(participantUserIDs)),
	}
	for _, userID := range participantUserIDs {
		proposal.Participants = append(proposal.Participants, &models.TournamentTeamParticipant{UserID: userID})
	}

	// Заявка и оплата фиксируются одной транзакцией: отказ платёжной
	// подсистемы откатывает и саму запись заявки.
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.proposalRepo.Create(ctx, exec, proposal); err != nil {
			return err
		}
		return s.notifyStateChange(ctx, exec, tournament, proposal, models.ProposalCreated)
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// reactivateProposal возвращает отключённую заявку в CREATED.
// Взнос взимается заново, по зафиксированной в заявке сумме.
func (s *proposalService) reactivateProposal(ctx context.Context, tournament *models.Tournament, proposal *models.TournamentTeamProposal) (*models.TournamentTeamProposal, error) {
	// Отмена и выход терминальны, назад открывается только REJECTED.
	if proposal.State != models.ProposalRejected {
		return nil, ErrProposalAlreadyDisabled
	}
	prevState := proposal.State
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.proposalRepo.UpdateStateGuarded(ctx, exec, proposal.ID, prevState, models.ProposalCreated); err != nil {
			return err
		}
		proposal.PrevState = &prevState
		proposal.State = models.ProposalCreated
		return s.notifyStateChange(ctx, exec, tournament, proposal, models.ProposalCreated)
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

func (s *proposalService) GetProposal(ctx context.Context, id int) (*models.TournamentTeamProposal, error) {
	return s.proposalRepo.GetByID(ctx, id)
}

func (s *proposalService) GetProposalByTeam(ctx context.Context, teamID, tournamentID int) (*models.TournamentTeamProposal, error) {
	return s.proposalRepo.FindByTeamAndTournament(ctx, teamID, tournamentID)
}

func (s *proposalService) ListProposals(ctx context.Context, tournamentID int, states []models.ProposalState) ([]*models.TournamentTeamProposal, error) {
	return s.proposalRepo.ListByTournament(ctx, tournamentID, states)
}

func (s *proposalService) CheckInProposal(ctx context.Context, proposalID, userID int) error {
	proposal, tournament, err := s.loadProposalWithTournament(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.CaptainUserID != userID {
		return ErrUserMustBeCaptain
	}
	if !statusInList(tournament.Status, models.CheckInStatusList) {
		return ErrCheckInWindowClosed
	}
	if proposal.State != models.ProposalCreated {
		if proposal.State.IsDisabled() {
			return ErrProposalNotActive
		}
		return nil // уже подтверждена
	}

	return s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.proposalRepo.UpdateStateGuarded(ctx, exec, proposalID, models.ProposalCreated, models.ProposalApproved); err != nil {
			return err
		}
		if err := s.proposalRepo.SetConfirmed(ctx, exec, proposalID, true); err != nil {
			return err
		}
		prevState := proposal.State
		proposal.PrevState = &prevState
		proposal.State = models.ProposalApproved
		proposal.Confirmed = true
		return s.notifyStateChange(ctx, exec, tournament, proposal, models.ProposalApproved)
	})
}

func (s *proposalService) QuitProposal(ctx context.Context, proposalID, userID int, withPenalty bool) error {
	if withPenalty {
		return ErrPenaltyNotSupported
	}
	proposal, tournament, err := s.loadProposalWithTournament(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.CaptainUserID != userID {
		return ErrUserMustBeCaptain
	}
	if !statusInList(tournament.Status, models.CheckInStatusList) {
		return ErrCheckInWindowClosed
	}
	return s.disableProposal(ctx, tournament, proposal, models.ProposalQuit)
}

func (s *proposalService) CancelProposal(ctx context.Context, proposalID int) error {
	proposal, tournament, err := s.loadProposalWithTournament(ctx, proposalID)
	if err != nil {
		return err
	}
	return s.disableProposal(ctx, tournament, proposal, models.ProposalCancelled)
}

func (s *proposalService) RejectProposal(ctx context.Context, proposalID int) error {
	proposal, tournament, err := s.loadProposalWithTournament(ctx, proposalID)
	if err != nil {
		return err
	}
	return s.disableProposal(ctx, tournament, proposal, models.ProposalRejected)
}

// disableProposal переводит активную заявку в отключённое состояние
// и возвращает взнос. CAS-условие на state отсекает повторную отмену
// и, как следствие, повторный возврат.
func (s *proposalService) disableProposal(ctx context.Context, tournament *models.Tournament, proposal *models.TournamentTeamProposal, newState models.ProposalState) error {
	if proposal.State.IsDisabled() {
		return ErrProposalAlreadyDisabled
	}
	prevState := proposal.State
	return s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.proposalRepo.UpdateStateGuarded(ctx, exec, proposal.ID, prevState, newState); err != nil {
			return err
		}
		proposal.PrevState = &prevState
		proposal.State = newState
		return s.notifyStateChange(ctx, exec, tournament, proposal, newState)
	})
}

func (s *proposalService) notifyStateChange(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, proposal *models.TournamentTeamProposal, newState models.ProposalState) error {
	if s.events == nil {
		return nil
	}
	return s.events.ProcessProposalStateChange(ctx, exec, tournament, proposal, newState)
}

func (s *proposalService) loadProposalWithTournament(ctx context.Context, proposalID int) (*models.TournamentTeamProposal, *models.Tournament, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, proposal.TournamentID)
	if err != nil {
		return nil, nil, err
	}
	return proposal, tournament, nil
}

func statusInList(status models.TournamentStatus, list []models.TournamentStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
