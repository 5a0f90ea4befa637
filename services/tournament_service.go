package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KhrulSergey/league-core/brackets"
	"github.com/KhrulSergey/league-core/clients"
	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// TournamentService — операции над турниром целиком: CRUD, статусы,
// инициализация сетки.
type TournamentService interface {
	CreateTournament(ctx context.Context, tournament *models.Tournament) (*models.Tournament, error)
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)

	// GetFullTournament возвращает турнир со всеми раундами, сериями,
	// матчами, организаторами и победителями.
	GetFullTournament(ctx context.Context, id int) (*models.Tournament, error)

	ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	EditTournament(ctx context.Context, tournament *models.Tournament) (*models.Tournament, error)

	// ChangeTournamentStatus переводит турнир в новый статус и отдаёт
	// переход оркестратору. forced помечает завершение принудительным:
	// автоматическое определение победителей при этом пропускается.
	ChangeTournamentStatus(ctx context.Context, id int, newStatus models.TournamentStatus, forced bool) (*models.Tournament, error)

	// DeleteTournament — мягкое удаление через статус DELETED.
	DeleteTournament(ctx context.Context, id int) error

	// InitiateBrackets генерирует и сохраняет сетку турнира
	// из одобренных заявок.
	InitiateBrackets(ctx context.Context, id int) (*models.Tournament, error)

	AddTournamentWinner(ctx context.Context, winner *models.TournamentWinner) error
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	roundRepo      repositories.RoundRepository
	seriesRepo     repositories.SeriesRepository
	matchRepo      repositories.MatchRepository
	proposalRepo   repositories.ProposalRepository
	users          clients.UserProvider
	txRunner       repositories.TxRunner
	events         TournamentEventService
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	roundRepo repositories.RoundRepository,
	seriesRepo repositories.SeriesRepository,
	matchRepo repositories.MatchRepository,
	proposalRepo repositories.ProposalRepository,
	users clients.UserProvider,
	txRunner repositories.TxRunner,
) *tournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		roundRepo:      roundRepo,
		seriesRepo:     seriesRepo,
		matchRepo:      matchRepo,
		proposalRepo:   proposalRepo,
		users:          users,
		txRunner:       txRunner,
	}
}

func (s *tournamentService) AttachEventService(events TournamentEventService) {
	s.events = events
}

func (s *tournamentService) CreateTournament(ctx context.Context, tournament *models.Tournament) (*models.Tournament, error) {
	if err := s.validateTournament(ctx, tournament); err != nil {
		return nil, err
	}
	tournament.Status = models.StatusCreated

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.Create(ctx, exec, tournament); err != nil {
			return err
		}
		if tournament.Settings != nil {
			tournament.Settings.TournamentID = tournament.ID
			if err := s.tournamentRepo.SaveSettings(ctx, exec, tournament.Settings); err != nil {
				return err
			}
		}
		organizers := tournament.OrganizerIDs
		if len(organizers) == 0 {
			organizers = []int{tournament.CreatedByID}
			tournament.OrganizerIDs = organizers
		}
		for _, userID := range organizers {
			if err := s.tournamentRepo.AddOrganizer(ctx, exec, tournament.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		if err := s.events.ProcessTournamentStatusChange(ctx, tournament, models.StatusCreated); err != nil {
			return nil, err
		}
	}
	return tournament, nil
}

// validateTournament проверяет поля до записи; организаторы проверяются
// параллельно во внешней пользовательской подсистеме.
func (s *tournamentService) validateTournament(ctx context.Context, t *models.Tournament) error {
	validation := NewValidationError()
	if t.Name == "" {
		validation.Add("name", "required")
	}
	if !t.SystemType.Known() {
		validation.Add("system_type", "unknown tournament system type")
	}
	if t.AccessType != models.AccessFree && t.AccessType != models.AccessPaid {
		validation.Add("access_type", "unknown access type")
	}
	if t.CreatedByID <= 0 {
		validation.Add("created_by_id", "required")
	}
	if t.SignUpEndDate.Before(t.SignUpStartDate) {
		validation.Add("sign_up_end_date", "must not precede sign_up_start_date")
	}
	if t.PlannedStartDate.Before(t.SignUpEndDate) {
		validation.Add("planned_start_date", "must not precede sign_up_end_date")
	}
	if t.Settings != nil {
		if t.Settings.MatchCountPerSeries <= 0 {
			validation.Add("settings.match_count_per_series", "must be positive")
		}
		if t.Settings.MatchRivalCount < 2 {
			validation.Add("settings.match_rival_count", "at least two rivals per match")
		}
		if t.Settings.OrganizerCommission < 0 || t.Settings.OrganizerCommission > 100 {
			validation.Add("settings.organizer_commission", "percent out of range 0..100")
		}
		if t.Settings.ParticipationFee < 0 {
			validation.Add("settings.participation_fee", "must not be negative")
		}
	} else if t.IsPaid() {
		validation.Add("settings", "paid tournament requires settings with a participation fee")
	}
	if validation.HasErrors() {
		return validation
	}

	if s.users == nil {
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, userID := range append([]int{t.CreatedByID}, t.OrganizerIDs...) {
		userID := userID
		group.Go(func() error {
			if _, err := s.users.GetUserByID(groupCtx, userID); err != nil {
				return fmt.Errorf("organizer %d: %w", userID, err)
			}
			return nil
		})
	}
	return group.Wait()
}

func (s *tournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	return s.tournamentRepo.GetByID(ctx, id)
}

func (s *tournamentService) GetFullTournament(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		rounds, err := s.roundRepo.ListByTournament(groupCtx, id)
		if err != nil {
			return err
		}
		roundGroup, roundCtx := errgroup.WithContext(groupCtx)
		for _, round := range rounds {
			round := round
			roundGroup.Go(func() error {
				return s.loadRoundContent(roundCtx, round)
			})
		}
		if err := roundGroup.Wait(); err != nil {
			return err
		}
		tournament.Rounds = rounds
		return nil
	})
	group.Go(func() error {
		organizers, err := s.tournamentRepo.ListOrganizerIDs(groupCtx, id)
		if err != nil {
			return err
		}
		tournament.OrganizerIDs = organizers
		return nil
	})
	group.Go(func() error {
		winners, err := s.tournamentRepo.ListWinners(groupCtx, id)
		if err != nil {
			return err
		}
		tournament.Winners = winners
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load tournament %d: %w", id, err)
	}
	return tournament, nil
}

func (s *tournamentService) loadRoundContent(ctx context.Context, round *models.TournamentRound) error {
	series, err := s.seriesRepo.ListByRound(ctx, round.ID)
	if err != nil {
		return err
	}
	for _, one := range series {
		matches, err := s.matchRepo.ListBySeries(ctx, one.ID)
		if err != nil {
			return err
		}
		one.Matches = matches
	}
	round.Series = series
	return nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

func (s *tournamentService) EditTournament(ctx context.Context, tournament *models.Tournament) (*models.Tournament, error) {
	current, err := s.tournamentRepo.GetByID(ctx, tournament.ID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsFinished() || current.Status.IsCanceled() {
		return nil, ErrInvalidStatusTransition
	}
	tournament.Status = current.Status
	if err := s.validateTournament(ctx, tournament); err != nil {
		return nil, err
	}

	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.Update(ctx, tournament); err != nil {
			return err
		}
		if tournament.Settings != nil {
			tournament.Settings.TournamentID = tournament.ID
			return s.tournamentRepo.SaveSettings(ctx, exec, tournament.Settings)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) ChangeTournamentStatus(ctx context.Context, id int, newStatus models.TournamentStatus, forced bool) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tournament.Status == newStatus {
		return tournament, nil
	}
	// Из терминальных статусов пути нет, кроме административного удаления
	// и отката FINISHED -> PAUSE, когда итог завершения не подтвердился.
	switch {
	case tournament.Status.IsCanceled() && newStatus != models.StatusDeleted:
		return nil, ErrInvalidStatusTransition
	case tournament.Status.IsFinished() && newStatus != models.StatusDeleted && newStatus != models.StatusPaused:
		return nil, ErrInvalidStatusTransition
	}

	switch {
	case newStatus.IsFinished():
		now := time.Now()
		if err := s.tournamentRepo.MarkFinished(ctx, nil, id, now, forced); err != nil {
			return nil, err
		}
		tournament.FinishedDate = &now
		tournament.IsForcedFinished = forced
	case tournament.Status.IsFinished() && newStatus == models.StatusPaused:
		// Откат завершения: отметки финиша снимаются вместе со статусом,
		// иначе турнир на паузе выглядит завершённым.
		if err := s.tournamentRepo.UnmarkFinished(ctx, nil, id, newStatus); err != nil {
			return nil, err
		}
		tournament.FinishedDate = nil
		tournament.IsForcedFinished = false
	default:
		if err := s.tournamentRepo.UpdateStatus(ctx, nil, id, newStatus); err != nil {
			return nil, err
		}
	}
	tournament.Status = newStatus

	if s.events != nil {
		if err := s.events.ProcessTournamentStatusChange(ctx, tournament, newStatus); err != nil {
			return nil, err
		}
	}
	return tournament, nil
}

func (s *tournamentService) DeleteTournament(ctx context.Context, id int) error {
	_, err := s.ChangeTournamentStatus(ctx, id, models.StatusDeleted, false)
	return err
}

func (s *tournamentService) InitiateBrackets(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.GetFullTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	generator, err := generatorFor(tournament)
	if err != nil {
		return nil, err
	}
	proposals, err := s.proposalRepo.ListByTournament(ctx, id, []models.ProposalState{models.ProposalApproved})
	if err != nil {
		return nil, fmt.Errorf("failed to load approved proposals: %w", err)
	}

	settings, err := generator.ComposeAdditionalTournamentSettings(tournament, len(proposals))
	if err != nil {
		return nil, err
	}
	tournament.Settings = settings

	rounds, err := generator.InitiateBracketsWithRounds(ctx, tournament, proposals)
	if err != nil {
		return nil, err
	}

	// Двухпроходное сохранение: сначала раунды и серии получают id,
	// затем UID-ссылки родителей превращаются в ссылки по id.
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.SaveSettings(ctx, exec, settings); err != nil {
			return err
		}
		idByUID := make(map[string]int)
		for _, round := range rounds {
			round.TournamentID = id
			if err := s.roundRepo.Create(ctx, exec, round); err != nil {
				return err
			}
			for _, series := range round.Series {
				series.RoundID = round.ID
				if err := s.seriesRepo.Create(ctx, exec, series); err != nil {
					return err
				}
				if series.GenUID != "" {
					idByUID[series.GenUID] = series.ID
				}
				for _, rival := range series.Rivals {
					rival.SeriesID = series.ID
					if err := s.seriesRepo.CreateRival(ctx, exec, rival); err != nil {
						return err
					}
				}
				for _, match := range series.Matches {
					match.SeriesID = series.ID
					if err := s.matchRepo.Create(ctx, exec, match); err != nil {
						return err
					}
				}
			}
		}
		for _, round := range rounds {
			for _, series := range round.Series {
				if len(series.ParentGenUIDs) == 0 {
					continue
				}
				parentIDs := make([]int64, 0, len(series.ParentGenUIDs))
				for _, uid := range series.ParentGenUIDs {
					parentID, ok := idByUID[uid]
					if !ok {
						return fmt.Errorf("generated series %q references unknown parent %q", series.GenUID, uid)
					}
					parentIDs = append(parentIDs, int64(parentID))
				}
				series.ParentSeriesIDs = parentIDs
				if err := s.seriesRepo.UpdateParentLinks(ctx, exec, series.ID, series.ParentSeriesIDs); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist generated brackets: %w", err)
	}

	tournament.Rounds = rounds
	return tournament, nil
}

func (s *tournamentService) AddTournamentWinner(ctx context.Context, winner *models.TournamentWinner) error {
	return s.tournamentRepo.AddWinner(ctx, nil, winner)
}

func generatorFor(t *models.Tournament) (brackets.TournamentGenerator, error) {
	return brackets.ByType(t.SystemType)
}
