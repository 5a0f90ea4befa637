package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
)

// SeriesService управляет сериями: статусы, подсчёт победителя и мест.
type SeriesService interface {
	// GetSeries возвращает серию с соперниками и матчами.
	GetSeries(ctx context.Context, id int) (*models.TournamentSeries, error)

	// ChangeSeriesStatus переводит серию в новый статус. При переходе
	// в FINISHED победитель либо задан явно (explicitWinnerRivalID /
	// explicitNoWinner), либо вычисляется из результатов матчей.
	ChangeSeriesStatus(ctx context.Context, seriesID int, newStatus models.TournamentStatus, explicitWinnerRivalID *int, explicitNoWinner bool) (*models.TournamentSeries, error)

	// GenerateOmtForSeries добавляет к серии матч переигровки (OMT)
	// и сохраняет его.
	GenerateOmtForSeries(ctx context.Context, tournament *models.Tournament, seriesID int) (*models.TournamentMatch, error)
}

type seriesService struct {
	seriesRepo repositories.SeriesRepository
	matchRepo  repositories.MatchRepository
	events     TournamentEventService
}

func NewSeriesService(seriesRepo repositories.SeriesRepository, matchRepo repositories.MatchRepository) *seriesService {
	return &seriesService{seriesRepo: seriesRepo, matchRepo: matchRepo}
}

func (s *seriesService) AttachEventService(events TournamentEventService) {
	s.events = events
}

func (s *seriesService) GetSeries(ctx context.Context, id int) (*models.TournamentSeries, error) {
	series, err := s.seriesRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListBySeries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches of series %d: %w", id, err)
	}
	series.Matches = matches
	return series, nil
}

func (s *seriesService) ChangeSeriesStatus(ctx context.Context, seriesID int, newStatus models.TournamentStatus, explicitWinnerRivalID *int, explicitNoWinner bool) (*models.TournamentSeries, error) {
	series, err := s.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if series.Status == models.StatusDeleted {
		return nil, ErrSeriesDeleted
	}
	if series.Status.IsFinished() && newStatus.IsFinished() {
		return series, nil
	}

	if err := validateSeriesRivalConsistency(series); err != nil {
		return nil, err
	}

	if newStatus.IsFinished() {
		if err := resolveSeriesWinner(series, explicitWinnerRivalID, explicitNoWinner); err != nil {
			return nil, err
		}
		assignSeriesPlaces(series)
	}
	series.Status = newStatus

	if err := s.seriesRepo.Update(ctx, nil, series); err != nil {
		return nil, fmt.Errorf("failed to save series %d: %w", seriesID, err)
	}
	if newStatus.IsFinished() {
		for _, rival := range series.Rivals {
			if err := s.seriesRepo.UpdateRival(ctx, nil, rival); err != nil {
				return nil, fmt.Errorf("failed to save rival %d of series %d: %w", rival.ID, seriesID, err)
			}
		}
	}

	if s.events != nil {
		if err := s.events.ProcessSeriesStatusChange(ctx, series, newStatus); err != nil {
			return nil, err
		}
	}
	return series, nil
}

func (s *seriesService) GenerateOmtForSeries(ctx context.Context, tournament *models.Tournament, seriesID int) (*models.TournamentMatch, error) {
	generator, err := generatorFor(tournament)
	if err != nil {
		return nil, err
	}
	series, err := s.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if series.Status.IsFinished() || series.Status == models.StatusDeleted {
		return nil, ErrInvalidStatusTransition
	}
	match, err := generator.GenerateOmtForSeries(ctx, series)
	if err != nil {
		return nil, err
	}
	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		return nil, fmt.Errorf("failed to save overtime match: %w", err)
	}
	return match, nil
}

// resolveSeriesWinner выставляет WinnerRivalID/HasNoWinner завершаемой серии.
// Явный победитель имеет приоритет над вычислением.
func resolveSeriesWinner(series *models.TournamentSeries, explicitWinnerRivalID *int, explicitNoWinner bool) error {
	if explicitNoWinner {
		series.HasNoWinner = true
		series.WinnerRivalID = nil
		return nil
	}
	if explicitWinnerRivalID != nil {
		rival := seriesRivalByID(series, *explicitWinnerRivalID)
		if rival == nil {
			return ErrWinnerRivalUnknown
		}
		series.HasNoWinner = false
		series.WinnerRivalID = explicitWinnerRivalID
		return nil
	}

	winner, hasNoWinner, computable := CalculateSeriesWinner(series)
	if !computable {
		return ErrSeriesWinnerUndetermined
	}
	if hasNoWinner {
		series.HasNoWinner = true
		series.WinnerRivalID = nil
		return nil
	}
	series.HasNoWinner = false
	series.WinnerRivalID = &winner.ID
	return nil
}

// CalculateSeriesWinner считает победителя по завершённым матчам серии.
// Возвращает computable=false, пока остаются незавершённые матчи: до этого
// момента итог серии не определён и подсчёт откладывается.
// hasNoWinner=true — серия без победителя: ничья по победам или ни одной.
func CalculateSeriesWinner(series *models.TournamentSeries) (winner *models.TournamentSeriesRival, hasNoWinner bool, computable bool) {
	if len(series.Matches) == 0 {
		return nil, true, true
	}
	wins := make(map[int]int) // proposalID -> победы
	for _, match := range series.Matches {
		if !match.Status.IsFinished() {
			return nil, false, false
		}
		if proposalID := match.WinnerProposalID(); proposalID != nil {
			wins[*proposalID]++
		}
	}

	maxWins, maxProposalID, atMax := 0, 0, 0
	for proposalID, count := range wins {
		switch {
		case count > maxWins:
			maxWins, maxProposalID, atMax = count, proposalID, 1
		case count == maxWins:
			atMax++
		}
	}
	// Победитель только при строгом максимуме хотя бы в одну победу.
	if maxWins == 0 || atMax > 1 {
		return nil, true, true
	}
	rival := series.RivalByProposal(maxProposalID)
	if rival == nil {
		return nil, true, true
	}
	return rival, false, true
}

// assignSeriesPlaces раздаёт места всем соперникам завершаемой серии.
// Победитель (если есть) получает FIRST, остальные ранжируются по числу
// побед по убыванию; равные делятся по возрастанию id соперника.
func assignSeriesPlaces(series *models.TournamentSeries) {
	wins := make(map[int]int)
	for _, match := range series.Matches {
		if !match.Status.IsFinished() {
			continue
		}
		if proposalID := match.WinnerProposalID(); proposalID != nil {
			wins[*proposalID]++
		}
	}

	rest := make([]*models.TournamentSeriesRival, 0, len(series.Rivals))
	for _, rival := range series.Rivals {
		if series.WinnerRivalID != nil && rival.ID == *series.WinnerRivalID {
			place := models.PlaceFirst
			rival.WonPlace = &place
			continue
		}
		rest = append(rest, rival)
	}
	sort.Slice(rest, func(i, j int) bool {
		wi, wj := wins[rest[i].ProposalID], wins[rest[j].ProposalID]
		if wi != wj {
			return wi > wj
		}
		return rest[i].ID < rest[j].ID
	})

	// Первое место держит только победитель. Серия без победителя
	// не присуждает FIRST никому: ранжирование начинается со второго.
	for i, rival := range rest {
		place := models.PlaceByRank(i + 1)
		rival.WonPlace = &place
	}
}

// validateSeriesRivalConsistency проверяет, что соперники матчей — подмножество
// соперников серии. Нарушение означает повреждение сетки.
func validateSeriesRivalConsistency(series *models.TournamentSeries) error {
	proposals := make(map[int]bool, len(series.Rivals))
	for _, rival := range series.Rivals {
		proposals[rival.ProposalID] = true
	}
	for _, match := range series.Matches {
		for _, rival := range match.Rivals {
			if !proposals[rival.ProposalID] {
				return fmt.Errorf("match %d references proposal %d unknown to series %d", match.ID, rival.ProposalID, series.ID)
			}
		}
	}
	return nil
}

func seriesRivalByID(series *models.TournamentSeries, rivalID int) *models.TournamentSeriesRival {
	for _, rival := range series.Rivals {
		if rival.ID == rivalID {
			return rival
		}
	}
	return nil
}
