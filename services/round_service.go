package services

import (
	"context"
	"fmt"

	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// RoundService управляет раундами и сохраняет результаты генерации сетки.
type RoundService interface {
	// GetRound возвращает раунд с сериями и их соперниками.
	GetRound(ctx context.Context, id int) (*models.TournamentRound, error)

	// GetActiveRound возвращает текущий (самый поздний активный) раунд турнира.
	GetActiveRound(ctx context.Context, tournamentID int) (*models.TournamentRound, error)

	ChangeRoundStatus(ctx context.Context, roundID int, newStatus models.TournamentStatus) (*models.TournamentRound, error)

	// SaveComposedRound сохраняет раунд, полученный от генератора.
	// Для раунда без id создаётся запись раунда и всех его серий;
	// для уже существующего дозаписываются новые соперники и матчи.
	SaveComposedRound(ctx context.Context, round *models.TournamentRound) error

	// SaveComposedSeries дозаписывает соперников и матчи, добавленные
	// генератором к уже существующим сериям.
	SaveComposedSeries(ctx context.Context, series []*models.TournamentSeries) error
}

type roundService struct {
	roundRepo  repositories.RoundRepository
	seriesRepo repositories.SeriesRepository
	matchRepo  repositories.MatchRepository
	txRunner   repositories.TxRunner
	events     TournamentEventService
}

func NewRoundService(roundRepo repositories.RoundRepository, seriesRepo repositories.SeriesRepository, matchRepo repositories.MatchRepository, txRunner repositories.TxRunner) *roundService {
	return &roundService{
		roundRepo:  roundRepo,
		seriesRepo: seriesRepo,
		matchRepo:  matchRepo,
		txRunner:   txRunner,
	}
}

func (s *roundService) AttachEventService(events TournamentEventService) {
	s.events = events
}

func (s *roundService) GetRound(ctx context.Context, id int) (*models.TournamentRound, error) {
	round, err := s.roundRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := s.seriesRepo.ListByRound(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load series of round %d: %w", id, err)
	}
	round.Series = series
	return round, nil
}

func (s *roundService) GetActiveRound(ctx context.Context, tournamentID int) (*models.TournamentRound, error) {
	round, err := s.roundRepo.GetActiveRound(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return s.GetRound(ctx, round.ID)
}

func (s *roundService) ChangeRoundStatus(ctx context.Context, roundID int, newStatus models.TournamentStatus) (*models.TournamentRound, error) {
	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status.IsFinished() && newStatus.IsFinished() {
		return round, nil
	}
	if round.Status == models.StatusDeleted {
		return nil, ErrInvalidStatusTransition
	}

	if err := s.roundRepo.UpdateStatus(ctx, nil, roundID, newStatus); err != nil {
		return nil, err
	}
	round.Status = newStatus

	if s.events != nil {
		if err := s.events.ProcessRoundStatusChange(ctx, round, newStatus); err != nil {
			return nil, err
		}
	}
	return round, nil
}

func (s *roundService) SaveComposedRound(ctx context.Context, round *models.TournamentRound) error {
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if round.ID == 0 {
			if err := s.roundRepo.Create(ctx, exec, round); err != nil {
				return err
			}
		} else if err := s.roundRepo.UpdateStatus(ctx, exec, round.ID, round.Status); err != nil {
			return err
		}
		for _, series := range round.Series {
			if series.ID == 0 {
				series.RoundID = round.ID
				if err := s.seriesRepo.Create(ctx, exec, series); err != nil {
					return err
				}
			}
			if err := s.saveSeriesAdditions(ctx, exec, series); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save composed round %d: %w", round.RoundNumber, err)
	}
	return nil
}

func (s *roundService) SaveComposedSeries(ctx context.Context, series []*models.TournamentSeries) error {
	return s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		for _, one := range series {
			if err := s.saveSeriesAdditions(ctx, exec, one); err != nil {
				return fmt.Errorf("failed to save composed series %d: %w", one.ID, err)
			}
		}
		return nil
	})
}

// saveSeriesAdditions записывает соперников и матчи серии, ещё не имеющие id.
func (s *roundService) saveSeriesAdditions(ctx context.Context, exec repositories.SQLExecutor, series *models.TournamentSeries) error {
	for _, rival := range series.Rivals {
		if rival.ID != 0 {
			continue
		}
		rival.SeriesID = series.ID
		if err := s.seriesRepo.CreateRival(ctx, exec, rival); err != nil {
			return err
		}
	}
	for _, match := range series.Matches {
		if match.ID != 0 {
			continue
		}
		match.SeriesID = series.ID
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return err
		}
	}
	return nil
}
