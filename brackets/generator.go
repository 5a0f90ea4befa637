package brackets

import (
	"context"
	"errors"
	"fmt"

	"github.com/KhrulSergey/league-core/models"
)

var (
	// Ошибки входных данных: пул заявок несовместим с алгоритмом.
	ErrNotEnoughRivals        = errors.New("not enough approved proposals to generate a bracket")
	ErrIncompatibleRivalCount = errors.New("proposal count is incompatible with the elimination algorithm")
	ErrRoundsAlreadyExist     = errors.New("tournament already has generated rounds")
	ErrTournamentNotActive    = errors.New("tournament is not in an active status")
	ErrSettingsRequired       = errors.New("tournament settings are required for bracket generation")

	// Ошибки состояния сетки при генерации следующего раунда.
	ErrPreviousRoundNotFinished = errors.New("previous round is not finished")
	ErrLastRoundReached         = errors.New("last round already generated, nothing to compose")
	ErrChildSeriesNotComposed   = errors.New("child series slot does not exist for this series")

	// ErrBracketCorrupted — инвариант генерации нарушен: вычисленное число
	// продвигающихся соперников не совпало с ожидаемым. Это порча сетки,
	// а не плохой ввод; операция обязана прерваться целиком.
	ErrBracketCorrupted = errors.New("bracket invariant violation: computed winners do not match expected count")
)

// TournamentGenerator — закрытый контракт семейства алгоритмов генерации.
// Реализации чистые: никакой персистентности и побочных эффектов,
// сохранение результата — забота вызывающего сервиса.
type TournamentGenerator interface {
	// InitiateBracketsWithRounds строит начальный скелет сетки.
	// Пул соперников — одобренные заявки; порядок пула трактуется как посев
	// для single/double elimination, survival раздаёт слоты случайно.
	InitiateBracketsWithRounds(ctx context.Context, tournament *models.Tournament, proposals []*models.TournamentTeamProposal) ([]*models.TournamentRound, error)

	// ComposeNextRound составляет раунд, следующий за последним завершённым.
	// Для survival elimination раунд создаётся с нуля, для single/double
	// заполняются соперники заранее сгенерированного скелета.
	ComposeNextRound(ctx context.Context, tournament *models.Tournament) (*models.TournamentRound, error)

	// ComposeRivalForChildSeries продвигает соперников завершённой серии
	// в её дочерние серии (последовательный режим). Возвращает изменённые
	// дочерние серии.
	ComposeRivalForChildSeries(ctx context.Context, tournament *models.Tournament, parent *models.TournamentSeries) ([]*models.TournamentSeries, error)

	// GenerateOmtForSeries добавляет к серии один дополнительный матч
	// для разрешения ничьей.
	GenerateOmtForSeries(ctx context.Context, series *models.TournamentSeries) (*models.TournamentMatch, error)

	// ComposeAdditionalTournamentSettings дополняет настройки турнира
	// недостающими счётчиками выбывания по раундам. Идемпотентна:
	// существующие записи не перезаписываются.
	ComposeAdditionalTournamentSettings(tournament *models.Tournament, proposalCount int) (*models.TournamentSettings, error)

	GetName() string
}

// Выбор стратегии по типу системы турнира — таблица, а не switch по месту.
var generatorsBySystemType = map[models.TournamentSystemType]TournamentGenerator{
	models.SystemSingleElimination:   NewSingleEliminationGenerator(),
	models.SystemDoubleElimination:   NewDoubleEliminationGenerator(),
	models.SystemSurvivalElimination: NewSurvivalEliminationGenerator(),
}

// ByType возвращает генератор для типа системы турнира.
func ByType(systemType models.TournamentSystemType) (TournamentGenerator, error) {
	g, ok := generatorsBySystemType[systemType]
	if !ok {
		return nil, fmt.Errorf("unsupported tournament system type %q", systemType)
	}
	return g, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func log2(n int) int {
	k := 0
	for n > 1 {
		n >>= 1
		k++
	}
	return k
}

func checkInitiatePreconditions(t *models.Tournament) error {
	if !t.Status.IsActive() {
		return ErrTournamentNotActive
	}
	if len(t.Rounds) > 0 {
		return ErrRoundsAlreadyExist
	}
	if t.Settings == nil {
		return ErrSettingsRequired
	}
	return nil
}

// lastFinishedRound возвращает завершённый раунд с максимальным номером.
func lastFinishedRound(t *models.Tournament) *models.TournamentRound {
	var last *models.TournamentRound
	for _, r := range t.Rounds {
		if r.Status.IsFinished() && (last == nil || r.RoundNumber > last.RoundNumber) {
			last = r
		}
	}
	return last
}

func newSeriesRival(proposalID int) *models.TournamentSeriesRival {
	return &models.TournamentSeriesRival{
		ProposalID: proposalID,
		Status:     models.StatusCreated,
	}
}

// buildSeriesMatches создаёт матчи серии, зеркалируя её соперников.
// Вызывается, когда состав серии известен.
func buildSeriesMatches(series *models.TournamentSeries, matchCount int) {
	if matchCount < 1 {
		matchCount = 1
	}
	for number := 1; number <= matchCount; number++ {
		match := &models.TournamentMatch{
			SeriesID:    series.ID,
			MatchNumber: number,
			Status:      models.StatusCreated,
		}
		for _, rival := range series.Rivals {
			match.Rivals = append(match.Rivals, &models.TournamentMatchRival{
				ProposalID: rival.ProposalID,
				Status:     models.StatusCreated,
			})
		}
		series.Matches = append(series.Matches, match)
	}
}

// generateOmt — общая для всех стратегий генерация дополнительного матча.
func generateOmt(series *models.TournamentSeries) (*models.TournamentMatch, error) {
	if len(series.Rivals) == 0 {
		return nil, fmt.Errorf("series %d has no rivals to compose one more match for", series.ID)
	}
	match := &models.TournamentMatch{
		SeriesID:    series.ID,
		MatchNumber: len(series.Matches) + 1,
		Status:      models.StatusCreated,
	}
	for _, rival := range series.Rivals {
		match.Rivals = append(match.Rivals, &models.TournamentMatchRival{
			ProposalID: rival.ProposalID,
			Status:     models.StatusCreated,
		})
	}
	series.Matches = append(series.Matches, match)
	return match, nil
}

// advancingRival выбирает соперника, продвигающегося из родительской серии
// в дочернюю. В нижнюю сетку из верхней спускается проигравший (SECOND),
// во всех остальных связях продвигается победитель.
func advancingRival(parent, child *models.TournamentSeries) (*models.TournamentSeriesRival, error) {
	wantPlace := models.PlaceFirst
	if child.BracketType == models.BracketLower && parent.BracketType == models.BracketUpper {
		wantPlace = models.PlaceSecond
	}
	rival := parent.RivalByPlace(wantPlace)
	if rival == nil {
		return nil, fmt.Errorf("%w: series %d has no rival with place %s", ErrBracketCorrupted, parent.ID, wantPlace)
	}
	return rival, nil
}

// fillRoundSettings проставляет недостающие счётчики выбывания.
func fillRoundSettings(settings *models.TournamentSettings, totalRounds, eliminatedPerSeries int) {
	if settings.RoundSettings == nil {
		settings.RoundSettings = make(map[int]int, totalRounds)
	}
	for round := 1; round <= totalRounds; round++ {
		if _, ok := settings.RoundSettings[round]; !ok {
			settings.RoundSettings[round] = eliminatedPerSeries
		}
	}
}

func roundName(number int, isLast bool) string {
	if isLast {
		return "Final"
	}
	return fmt.Sprintf("Round %d", number)
}
