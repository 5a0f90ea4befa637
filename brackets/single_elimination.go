package brackets

import (
	"context"
	"fmt"

	"github.com/KhrulSergey/league-core/models"
)

// SingleEliminationGenerator строит олимпийскую систему: скелет всех раундов
// генерируется сразу, соперники расставляются по мере завершения родительских
// серий. Посев — порядок одобренных заявок.
type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() *SingleEliminationGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) InitiateBracketsWithRounds(ctx context.Context, tournament *models.Tournament, proposals []*models.TournamentTeamProposal) ([]*models.TournamentRound, error) {
	if err := checkInitiatePreconditions(tournament); err != nil {
		return nil, err
	}
	n := len(proposals)
	if n < 2 {
		return nil, ErrNotEnoughRivals
	}
	if !isPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: single elimination requires a power-of-two pool, got %d", ErrIncompatibleRivalCount, n)
	}

	totalRounds := log2(n)
	rounds := make([]*models.TournamentRound, 0, totalRounds)

	for r := 1; r <= totalRounds; r++ {
		seriesCount := n >> uint(r)
		round := &models.TournamentRound{
			TournamentID: tournament.ID,
			RoundNumber:  r,
			IsLast:       seriesCount == 1,
			Status:       models.StatusCreated,
		}
		round.Name = roundName(r, round.IsLast)
		if r == 1 {
			// Единственный открытый раунд турнира.
			round.Status = models.StatusStarted
		}

		for i := 0; i < seriesCount; i++ {
			series := &models.TournamentSeries{
				Name:        fmt.Sprintf("Series %d", i+1),
				Status:      models.StatusCreated,
				BracketType: models.BracketUpper,
				GenUID:      seriesGenUID(r, i),
			}
			if r == 1 {
				series.Rivals = append(series.Rivals,
					newSeriesRival(proposals[2*i].ID),
					newSeriesRival(proposals[2*i+1].ID),
				)
				buildSeriesMatches(series, tournament.Settings.MatchCountPerSeries)
			} else {
				series.ParentGenUIDs = []string{
					seriesGenUID(r-1, 2*i),
					seriesGenUID(r-1, 2*i+1),
				}
			}
			round.Series = append(round.Series, series)
		}
		rounds = append(rounds, round)
	}

	return rounds, nil
}

func (g *SingleEliminationGenerator) ComposeNextRound(ctx context.Context, tournament *models.Tournament) (*models.TournamentRound, error) {
	next, err := nextPreGeneratedRound(tournament)
	if err != nil {
		return nil, err
	}
	if err := populatePreGeneratedRound(tournament, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (g *SingleEliminationGenerator) ComposeRivalForChildSeries(ctx context.Context, tournament *models.Tournament, parent *models.TournamentSeries) ([]*models.TournamentSeries, error) {
	return composeRivalsForChildren(tournament, parent)
}

func (g *SingleEliminationGenerator) GenerateOmtForSeries(ctx context.Context, series *models.TournamentSeries) (*models.TournamentMatch, error) {
	return generateOmt(series)
}

func (g *SingleEliminationGenerator) ComposeAdditionalTournamentSettings(tournament *models.Tournament, proposalCount int) (*models.TournamentSettings, error) {
	if tournament.Settings == nil {
		return nil, ErrSettingsRequired
	}
	if proposalCount < 2 || !isPowerOfTwo(proposalCount) {
		return nil, fmt.Errorf("%w: single elimination requires a power-of-two pool, got %d", ErrIncompatibleRivalCount, proposalCount)
	}
	// Из серии на две заявки всегда выбывает одна.
	fillRoundSettings(tournament.Settings, log2(proposalCount), 1)
	return tournament.Settings, nil
}

func seriesGenUID(round, index int) string {
	return fmt.Sprintf("R%dS%d", round, index+1)
}

// nextPreGeneratedRound находит раунд, следующий за последним завершённым,
// в заранее сгенерированном скелете.
func nextPreGeneratedRound(t *models.Tournament) (*models.TournamentRound, error) {
	prev := lastFinishedRound(t)
	if prev == nil {
		return nil, ErrPreviousRoundNotFinished
	}
	if prev.IsLast {
		return nil, ErrLastRoundReached
	}
	next := t.RoundByNumber(prev.RoundNumber + 1)
	if next == nil {
		return nil, fmt.Errorf("%w: round %d finished but round %d is missing from the skeleton",
			ErrBracketCorrupted, prev.RoundNumber, prev.RoundNumber+1)
	}
	if next.Status.IsFinished() {
		return nil, fmt.Errorf("%w: round %d is already finished", ErrBracketCorrupted, next.RoundNumber)
	}
	return next, nil
}

// populatePreGeneratedRound расставляет продвигающихся соперников по сериям
// заранее созданного раунда. Каждая родительская серия обязана отдать ровно
// одного соперника; расхождение — фатальная порча сетки.
func populatePreGeneratedRound(t *models.Tournament, round *models.TournamentRound) error {
	for _, series := range round.Series {
		expected := len(series.ParentSeriesIDs)
		if expected == 0 {
			return fmt.Errorf("%w: series %d of round %d has no parent links", ErrBracketCorrupted, series.ID, round.RoundNumber)
		}
		for _, parentID := range series.ParentSeriesIDs {
			parent := t.SeriesByID(int(parentID))
			if parent == nil {
				return fmt.Errorf("%w: parent series %d not found", ErrBracketCorrupted, parentID)
			}
			if !parent.Status.IsFinished() {
				return fmt.Errorf("%w: parent series %d of series %d", ErrPreviousRoundNotFinished, parent.ID, series.ID)
			}
			rival, err := advancingRival(parent, series)
			if err != nil {
				return err
			}
			if series.RivalByProposal(rival.ProposalID) == nil {
				series.Rivals = append(series.Rivals, newSeriesRival(rival.ProposalID))
			}
		}
		if len(series.Rivals) != expected {
			return fmt.Errorf("%w: series %d expected %d rivals, composed %d",
				ErrBracketCorrupted, series.ID, expected, len(series.Rivals))
		}
		if len(series.Matches) == 0 {
			matchCount := 1
			if t.Settings != nil {
				matchCount = t.Settings.MatchCountPerSeries
			}
			buildSeriesMatches(series, matchCount)
		}
	}
	round.Status = models.StatusStarted
	return nil
}

// composeRivalsForChildren — последовательный режим: победитель (а для нижней
// сетки и проигравший) завершённой серии немедленно занимает слоты в дочерних.
func composeRivalsForChildren(t *models.Tournament, parent *models.TournamentSeries) ([]*models.TournamentSeries, error) {
	if !parent.Status.IsFinished() {
		return nil, fmt.Errorf("series %d is not finished, cannot advance its rivals", parent.ID)
	}
	childIDs := childSeriesIDs(t, parent.ID)
	if len(childIDs) == 0 {
		return nil, ErrChildSeriesNotComposed
	}
	var updated []*models.TournamentSeries
	for _, childID := range childIDs {
		child := t.SeriesByID(childID)
		if child == nil {
			return nil, fmt.Errorf("%w: child series %d not found", ErrBracketCorrupted, childID)
		}
		rival, err := advancingRival(parent, child)
		if err != nil {
			return nil, err
		}
		if child.RivalByProposal(rival.ProposalID) != nil {
			continue
		}
		child.Rivals = append(child.Rivals, newSeriesRival(rival.ProposalID))
		if len(child.Rivals) == len(child.ParentSeriesIDs) && len(child.Matches) == 0 {
			matchCount := 1
			if t.Settings != nil {
				matchCount = t.Settings.MatchCountPerSeries
			}
			buildSeriesMatches(child, matchCount)
		}
		updated = append(updated, child)
	}
	return updated, nil
}

// childSeriesIDs собирает дочерние серии по ссылкам родителей (arena-обход).
func childSeriesIDs(t *models.Tournament, parentID int) []int {
	var ids []int
	for _, round := range t.Rounds {
		for _, series := range round.Series {
			for _, pid := range series.ParentSeriesIDs {
				if int(pid) == parentID {
					ids = append(ids, series.ID)
				}
			}
		}
	}
	return ids
}
