package brackets

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/KhrulSergey/league-core/models"
)

// SurvivalEliminationGenerator — выживание: серии вмещают matchRivalCount
// соперников, из каждой серии по настройке раунда выбывает часть состава.
// Скелет вперёд не строится, каждый следующий раунд создаётся по факту
// завершения предыдущего. Раздача соперников по сериям первого раунда
// случайна (равномерная выборка без возвращения).
type SurvivalEliminationGenerator struct {
}

func NewSurvivalEliminationGenerator() *SurvivalEliminationGenerator {
	return &SurvivalEliminationGenerator{}
}

func (g *SurvivalEliminationGenerator) GetName() string {
	return "SurvivalElimination"
}

// checkPoolSize: размер пула обязан делиться на вместимость матча,
// а частное — сводиться к единице повторным делением пополам.
func (g *SurvivalEliminationGenerator) checkPoolSize(proposalCount, matchRivalCount int) error {
	if matchRivalCount < 2 {
		return fmt.Errorf("%w: match rival count must be at least 2, got %d", ErrSettingsRequired, matchRivalCount)
	}
	if proposalCount < matchRivalCount {
		return ErrNotEnoughRivals
	}
	if proposalCount%matchRivalCount != 0 || !isPowerOfTwo(proposalCount/matchRivalCount) {
		return fmt.Errorf("%w: %d proposals cannot be halved down to one series of %d rivals",
			ErrIncompatibleRivalCount, proposalCount, matchRivalCount)
	}
	return nil
}

func (g *SurvivalEliminationGenerator) InitiateBracketsWithRounds(ctx context.Context, tournament *models.Tournament, proposals []*models.TournamentTeamProposal) ([]*models.TournamentRound, error) {
	if err := checkInitiatePreconditions(tournament); err != nil {
		return nil, err
	}
	m := tournament.Settings.MatchRivalCount
	if err := g.checkPoolSize(len(proposals), m); err != nil {
		return nil, err
	}

	// Равномерная случайная раздача без возвращения. Генерация комбинаций
	// последовательна: перемешанный пул потребляется слева направо.
	shuffled := make([]*models.TournamentTeamProposal, len(proposals))
	copy(shuffled, proposals)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	seriesCount := len(proposals) / m
	round := &models.TournamentRound{
		TournamentID: tournament.ID,
		RoundNumber:  1,
		IsLast:       seriesCount == 1,
		Status:       models.StatusStarted,
	}
	round.Name = roundName(1, round.IsLast)

	pool := shuffled
	for i := 0; i < seriesCount; i++ {
		series := &models.TournamentSeries{
			Name:   fmt.Sprintf("Series %d", i+1),
			Status: models.StatusCreated,
			GenUID: seriesGenUID(1, i),
		}
		for j := 0; j < m; j++ {
			series.Rivals = append(series.Rivals, newSeriesRival(pool[0].ID))
			pool = pool[1:]
		}
		buildSeriesMatches(series, tournament.Settings.MatchCountPerSeries)
		round.Series = append(round.Series, series)
	}

	return []*models.TournamentRound{round}, nil
}

func (g *SurvivalEliminationGenerator) ComposeNextRound(ctx context.Context, tournament *models.Tournament) (*models.TournamentRound, error) {
	prev := lastFinishedRound(tournament)
	if prev == nil {
		return nil, ErrPreviousRoundNotFinished
	}
	if prev.IsLast {
		return nil, ErrLastRoundReached
	}
	if len(prev.Series)%2 != 0 {
		return nil, fmt.Errorf("%w: round %d has odd series count %d", ErrBracketCorrupted, prev.RoundNumber, len(prev.Series))
	}

	advancingBySeries := make(map[int][]*models.TournamentSeriesRival, len(prev.Series))
	for _, series := range prev.Series {
		advancing, err := g.advancingRivals(tournament, prev, series)
		if err != nil {
			return nil, err
		}
		advancingBySeries[series.ID] = advancing
	}

	seriesCount := len(prev.Series) / 2
	next := &models.TournamentRound{
		TournamentID: tournament.ID,
		RoundNumber:  prev.RoundNumber + 1,
		IsLast:       seriesCount == 1,
		Status:       models.StatusStarted,
	}
	next.Name = roundName(next.RoundNumber, next.IsLast)

	// Серия i нового раунда наследует родительские серии 2i и 2i+1.
	for i := 0; i < seriesCount; i++ {
		left := prev.Series[2*i]
		right := prev.Series[2*i+1]
		series := &models.TournamentSeries{
			Name:            fmt.Sprintf("Series %d", i+1),
			Status:          models.StatusCreated,
			GenUID:          seriesGenUID(next.RoundNumber, i),
			ParentSeriesIDs: []int64{int64(left.ID), int64(right.ID)},
		}
		for _, rival := range advancingBySeries[left.ID] {
			series.Rivals = append(series.Rivals, newSeriesRival(rival.ProposalID))
		}
		for _, rival := range advancingBySeries[right.ID] {
			series.Rivals = append(series.Rivals, newSeriesRival(rival.ProposalID))
		}
		buildSeriesMatches(series, tournament.Settings.MatchCountPerSeries)
		next.Series = append(next.Series, series)
	}

	return next, nil
}

// advancingRivals вычисляет продвигающихся из серии соперников по настройке
// «сколько выбывает из серии» для раунда. Несовпадение вычисленного
// и ожидаемого количества — фатальная порча сетки.
func (g *SurvivalEliminationGenerator) advancingRivals(t *models.Tournament, round *models.TournamentRound, series *models.TournamentSeries) ([]*models.TournamentSeriesRival, error) {
	if t.Settings == nil {
		return nil, ErrSettingsRequired
	}
	eliminated, ok := t.Settings.RoundSettings[round.RoundNumber]
	if !ok {
		return nil, fmt.Errorf("%w: no eliminated-per-series setting for round %d", ErrSettingsRequired, round.RoundNumber)
	}
	expected := len(series.Rivals) - eliminated
	if expected < 1 {
		return nil, fmt.Errorf("%w: round %d eliminates %d of %d rivals per series",
			ErrSettingsRequired, round.RoundNumber, eliminated, len(series.Rivals))
	}

	var advancing []*models.TournamentSeriesRival
	for _, rival := range series.Rivals {
		if rival.WonPlace != nil && rival.WonPlace.Rank() < expected {
			advancing = append(advancing, rival)
		}
	}
	if len(advancing) != expected {
		return nil, fmt.Errorf("%w: series %d computed %d advancing rivals, expected %d",
			ErrBracketCorrupted, series.ID, len(advancing), expected)
	}
	return advancing, nil
}

// ComposeRivalForChildSeries в survival-системе работает только если
// следующий раунд уже создан: серии здесь не генерируются заранее.
func (g *SurvivalEliminationGenerator) ComposeRivalForChildSeries(ctx context.Context, tournament *models.Tournament, parent *models.TournamentSeries) ([]*models.TournamentSeries, error) {
	childIDs := childSeriesIDs(tournament, parent.ID)
	if len(childIDs) == 0 {
		return nil, ErrChildSeriesNotComposed
	}
	parentRound := roundForSeries(tournament, parent.ID)
	if parentRound == nil {
		return nil, fmt.Errorf("%w: series %d belongs to no round", ErrBracketCorrupted, parent.ID)
	}
	advancing, err := g.advancingRivals(tournament, parentRound, parent)
	if err != nil {
		return nil, err
	}

	var updated []*models.TournamentSeries
	for _, childID := range childIDs {
		child := tournament.SeriesByID(childID)
		if child == nil {
			return nil, fmt.Errorf("%w: child series %d not found", ErrBracketCorrupted, childID)
		}
		changed := false
		for _, rival := range advancing {
			if child.RivalByProposal(rival.ProposalID) == nil {
				child.Rivals = append(child.Rivals, newSeriesRival(rival.ProposalID))
				changed = true
			}
		}
		if changed {
			updated = append(updated, child)
		}
	}
	return updated, nil
}

func (g *SurvivalEliminationGenerator) GenerateOmtForSeries(ctx context.Context, series *models.TournamentSeries) (*models.TournamentMatch, error) {
	return generateOmt(series)
}

func (g *SurvivalEliminationGenerator) ComposeAdditionalTournamentSettings(tournament *models.Tournament, proposalCount int) (*models.TournamentSettings, error) {
	if tournament.Settings == nil {
		return nil, ErrSettingsRequired
	}
	m := tournament.Settings.MatchRivalCount
	if err := g.checkPoolSize(proposalCount, m); err != nil {
		return nil, err
	}
	totalRounds := log2(proposalCount/m) + 1
	// По умолчанию серия теряет половину состава: пул сокращается вдвое
	// за раунд, число серий — тоже.
	fillRoundSettings(tournament.Settings, totalRounds, m-m/2)
	return tournament.Settings, nil
}

func roundForSeries(t *models.Tournament, seriesID int) *models.TournamentRound {
	for _, round := range t.Rounds {
		for _, series := range round.Series {
			if series.ID == seriesID {
				return round
			}
		}
	}
	return nil
}
