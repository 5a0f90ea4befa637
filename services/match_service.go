package services

import (
	"context"
	"fmt"

	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// MatchService управляет матчами: результаты, статусы, составы на матч.
// Завершение матча отдаётся оркестратору, который решает, двигать ли серию.
type MatchService interface {
	GetMatch(ctx context.Context, id int) (*models.TournamentMatch, error)
	ListMatchesBySeries(ctx context.Context, seriesID int) ([]*models.TournamentMatch, error)

	// SetMatchResult фиксирует исход и переводит матч в FINISHED.
	// Либо winnerRivalID принадлежит матчу, либо матч помечается безвыигрышным.
	SetMatchResult(ctx context.Context, matchID int, winnerRivalID *int, hasNoWinner bool) (*models.TournamentMatch, error)

	ChangeMatchStatus(ctx context.Context, matchID int, newStatus models.TournamentStatus) (*models.TournamentMatch, error)

	// EditMatchRivalParticipants заменяет заявленный состав соперника.
	// Разрешено только до старта матча.
	EditMatchRivalParticipants(ctx context.Context, matchID, matchRivalID int, teamParticipantIDs []int) error
}

type matchService struct {
	matchRepo repositories.MatchRepository
	events    TournamentEventService
}

func NewMatchService(matchRepo repositories.MatchRepository) *matchService {
	return &matchService{matchRepo: matchRepo}
}

// AttachEventService связывает сервис с оркестратором. Вызывается один раз
// при сборке приложения, до обработки запросов.
func (s *matchService) AttachEventService(events TournamentEventService) {
	s.events = events
}

func (s *matchService) GetMatch(ctx context.Context, id int) (*models.TournamentMatch, error) {
	return s.matchRepo.GetByID(ctx, id)
}

func (s *matchService) ListMatchesBySeries(ctx context.Context, seriesID int) ([]*models.TournamentMatch, error) {
	return s.matchRepo.ListBySeries(ctx, seriesID)
}

func (s *matchService) SetMatchResult(ctx context.Context, matchID int, winnerRivalID *int, hasNoWinner bool) (*models.TournamentMatch, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status.IsFinished() {
		return nil, ErrMatchAlreadyFinished
	}
	if match.Status == models.StatusDeleted {
		return nil, ErrInvalidStatusTransition
	}

	if hasNoWinner {
		match.HasNoWinner = true
		match.WinnerRivalID = nil
	} else {
		if winnerRivalID == nil {
			validation := NewValidationError()
			validation.Add("winner_rival_id", "required when the match has a winner")
			return nil, validation
		}
		if !matchHasRival(match, *winnerRivalID) {
			return nil, ErrWinnerRivalUnknown
		}
		match.HasNoWinner = false
		match.WinnerRivalID = winnerRivalID
	}
	match.Status = models.StatusFinished

	if err := s.matchRepo.Update(ctx, nil, match); err != nil {
		return nil, fmt.Errorf("failed to save match result: %w", err)
	}

	if s.events != nil {
		if err := s.events.ProcessMatchStatusChange(ctx, match, models.StatusFinished); err != nil {
			return nil, fmt.Errorf("match %d finished, but cascade processing failed: %w", match.ID, err)
		}
	}
	return match, nil
}

func (s *matchService) ChangeMatchStatus(ctx context.Context, matchID int, newStatus models.TournamentStatus) (*models.TournamentMatch, error) {
	if newStatus.IsFinished() {
		return nil, fmt.Errorf("%w: finishing a match requires an explicit result", ErrInvalidStatusTransition)
	}
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status.IsFinished() {
		return nil, ErrMatchAlreadyFinished
	}
	if match.Status == newStatus {
		return match, nil
	}

	match.Status = newStatus
	if err := s.matchRepo.Update(ctx, nil, match); err != nil {
		return nil, fmt.Errorf("failed to update match status: %w", err)
	}
	if s.events != nil {
		if err := s.events.ProcessMatchStatusChange(ctx, match, newStatus); err != nil {
			return nil, err
		}
	}
	return match, nil
}

func (s *matchService) EditMatchRivalParticipants(ctx context.Context, matchID, matchRivalID int, teamParticipantIDs []int) error {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if !match.Status.Before(models.StatusStarted) {
		return ErrMatchAlreadyStarted
	}
	if !matchHasRival(match, matchRivalID) {
		return ErrWinnerRivalUnknown
	}
	if len(teamParticipantIDs) == 0 {
		validation := NewValidationError()
		validation.Add("team_participant_ids", "match lineup cannot be empty")
		return validation
	}
	return s.matchRepo.ReplaceRivalParticipants(ctx, nil, matchRivalID, teamParticipantIDs)
}

func matchHasRival(match *models.TournamentMatch, rivalID int) bool {
	for _, r := range match.Rivals {
		if r.ID == rivalID {
			return true
		}
	}
	return false
}
