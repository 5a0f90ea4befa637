package brackets

import (
	"context"
	"fmt"

	"github.com/KhrulSergey/league-core/models"
)

// DoubleEliminationGenerator строит сетку с нижней сеткой в сжатой форме:
// в раунде r >= 3 каждая нижняя серия собирает двух победителей нижних серий
// и двух проигравших верхних серий предыдущего раунда. Последний раунд —
// гранд-финал победителей верхней и нижней сеток.
type DoubleEliminationGenerator struct {
}

func NewDoubleEliminationGenerator() *DoubleEliminationGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

func (g *DoubleEliminationGenerator) InitiateBracketsWithRounds(ctx context.Context, tournament *models.Tournament, proposals []*models.TournamentTeamProposal) ([]*models.TournamentRound, error) {
	if err := checkInitiatePreconditions(tournament); err != nil {
		return nil, err
	}
	n := len(proposals)
	if n < 4 {
		return nil, fmt.Errorf("%w: double elimination requires at least 4 proposals, got %d", ErrNotEnoughRivals, n)
	}
	if !isPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: double elimination requires a power-of-two pool, got %d", ErrIncompatibleRivalCount, n)
	}

	upperRounds := log2(n)
	rounds := make([]*models.TournamentRound, 0, upperRounds+1)

	for r := 1; r <= upperRounds; r++ {
		upperCount := n >> uint(r)
		round := &models.TournamentRound{
			TournamentID: tournament.ID,
			RoundNumber:  r,
			Name:         fmt.Sprintf("Round %d", r),
			Status:       models.StatusCreated,
		}
		if r == 1 {
			round.Status = models.StatusStarted
		}
		if r == upperRounds {
			round.Name = "Finals"
		}

		for i := 0; i < upperCount; i++ {
			series := &models.TournamentSeries{
				Name:        fmt.Sprintf("Upper Series %d", i+1),
				Status:      models.StatusCreated,
				BracketType: models.BracketUpper,
				GenUID:      upperGenUID(r, i),
			}
			if r == 1 {
				series.Rivals = append(series.Rivals,
					newSeriesRival(proposals[2*i].ID),
					newSeriesRival(proposals[2*i+1].ID),
				)
				buildSeriesMatches(series, tournament.Settings.MatchCountPerSeries)
			} else {
				series.ParentGenUIDs = []string{
					upperGenUID(r-1, 2*i),
					upperGenUID(r-1, 2*i+1),
				}
			}
			round.Series = append(round.Series, series)
		}

		// Нижняя сетка появляется со второго раунда.
		if r >= 2 {
			lowerCount := n >> uint(r)
			for i := 0; i < lowerCount; i++ {
				series := &models.TournamentSeries{
					Name:        fmt.Sprintf("Lower Series %d", i+1),
					Status:      models.StatusCreated,
					BracketType: models.BracketLower,
					GenUID:      lowerGenUID(r, i),
				}
				if r == 2 {
					series.ParentGenUIDs = []string{
						upperGenUID(1, 2*i),
						upperGenUID(1, 2*i+1),
					}
				} else {
					series.ParentGenUIDs = []string{
						lowerGenUID(r-1, 2*i),
						lowerGenUID(r-1, 2*i+1),
						upperGenUID(r-1, 2*i),
						upperGenUID(r-1, 2*i+1),
					}
				}
				round.Series = append(round.Series, series)
			}
		}
		rounds = append(rounds, round)
	}

	grandFinal := &models.TournamentRound{
		TournamentID: tournament.ID,
		RoundNumber:  upperRounds + 1,
		Name:         "Grand Final",
		Status:       models.StatusCreated,
		IsLast:       true,
		Series: []*models.TournamentSeries{{
			Name:        "Grand Final",
			Status:      models.StatusCreated,
			BracketType: models.BracketUpper,
			GenUID:      upperGenUID(upperRounds+1, 0),
			ParentGenUIDs: []string{
				upperGenUID(upperRounds, 0),
				lowerGenUID(upperRounds, 0),
			},
		}},
	}
	rounds = append(rounds, grandFinal)

	return rounds, nil
}

func (g *DoubleEliminationGenerator) ComposeNextRound(ctx context.Context, tournament *models.Tournament) (*models.TournamentRound, error) {
	next, err := nextPreGeneratedRound(tournament)
	if err != nil {
		return nil, err
	}
	if err := populatePreGeneratedRound(tournament, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (g *DoubleEliminationGenerator) ComposeRivalForChildSeries(ctx context.Context, tournament *models.Tournament, parent *models.TournamentSeries) ([]*models.TournamentSeries, error) {
	return composeRivalsForChildren(tournament, parent)
}

func (g *DoubleEliminationGenerator) GenerateOmtForSeries(ctx context.Context, series *models.TournamentSeries) (*models.TournamentMatch, error) {
	return generateOmt(series)
}

func (g *DoubleEliminationGenerator) ComposeAdditionalTournamentSettings(tournament *models.Tournament, proposalCount int) (*models.TournamentSettings, error) {
	if tournament.Settings == nil {
		return nil, ErrSettingsRequired
	}
	if proposalCount < 4 || !isPowerOfTwo(proposalCount) {
		return nil, fmt.Errorf("%w: double elimination requires a power-of-two pool of at least 4, got %d", ErrIncompatibleRivalCount, proposalCount)
	}
	fillRoundSettings(tournament.Settings, log2(proposalCount)+1, 1)
	return tournament.Settings, nil
}

func upperGenUID(round, index int) string {
	return fmt.Sprintf("R%dU%d", round, index+1)
}

func lowerGenUID(round, index int) string {
	return fmt.Sprintf("R%dL%d", round, index+1)
}
