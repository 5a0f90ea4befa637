package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/KhrulSergey/league-core/models"
	"github.com/lib/pq"
)

var (
	ErrSeriesNotFound      = errors.New("tournament series not found")
	ErrSeriesRivalNotFound = errors.New("tournament series rival not found")
)

type SeriesRepository interface {
	Create(ctx context.Context, exec SQLExecutor, series *models.TournamentSeries) error
	GetByID(ctx context.Context, id int) (*models.TournamentSeries, error)
	ListByRound(ctx context.Context, roundID int) ([]*models.TournamentSeries, error)
	Update(ctx context.Context, exec SQLExecutor, series *models.TournamentSeries) error
	UpdateParentLinks(ctx context.Context, exec SQLExecutor, id int, parentIDs pq.Int64Array) error

	CreateRival(ctx context.Context, exec SQLExecutor, rival *models.TournamentSeriesRival) error
	UpdateRival(ctx context.Context, exec SQLExecutor, rival *models.TournamentSeriesRival) error
	ListRivalsBySeries(ctx context.Context, seriesID int) ([]*models.TournamentSeriesRival, error)
}

type postgresSeriesRepository struct {
	db *sql.DB
}

func NewPostgresSeriesRepository(db *sql.DB) SeriesRepository {
	return &postgresSeriesRepository{db: db}
}

func (r *postgresSeriesRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const seriesColumns = `id, round_id, name, status, bracket_type, parent_series_ids, has_no_winner, winner_rival_id`

func scanSeries(scanner interface{ Scan(...interface{}) error }, s *models.TournamentSeries) error {
	return scanner.Scan(
		&s.ID, &s.RoundID, &s.Name, &s.Status, &s.BracketType,
		&s.ParentSeriesIDs, &s.HasNoWinner, &s.WinnerRivalID,
	)
}

func (r *postgresSeriesRepository) Create(ctx context.Context, exec SQLExecutor, series *models.TournamentSeries) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_series (round_id, name, status, bracket_type, parent_series_ids, has_no_winner)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return executor.QueryRowContext(ctx, query,
		series.RoundID, series.Name, series.Status, series.BracketType,
		series.ParentSeriesIDs, series.HasNoWinner,
	).Scan(&series.ID)
}

func (r *postgresSeriesRepository) GetByID(ctx context.Context, id int) (*models.TournamentSeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM tournament_series WHERE id = $1`
	series := &models.TournamentSeries{}
	if err := scanSeries(r.db.QueryRowContext(ctx, query, id), series); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}

	rivals, err := r.ListRivalsBySeries(ctx, id)
	if err != nil {
		return nil, err
	}
	series.Rivals = rivals
	return series, nil
}

func (r *postgresSeriesRepository) ListByRound(ctx context.Context, roundID int) ([]*models.TournamentSeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM tournament_series WHERE round_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seriesList []*models.TournamentSeries
	for rows.Next() {
		series := &models.TournamentSeries{}
		if err := scanSeries(rows, series); err != nil {
			return nil, err
		}
		seriesList = append(seriesList, series)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, series := range seriesList {
		rivals, err := r.ListRivalsBySeries(ctx, series.ID)
		if err != nil {
			return nil, err
		}
		series.Rivals = rivals
	}
	return seriesList, nil
}

func (r *postgresSeriesRepository) Update(ctx context.Context, exec SQLExecutor, series *models.TournamentSeries) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournament_series SET
			name = $1,
			status = $2,
			has_no_winner = $3,
			winner_rival_id = $4
		WHERE id = $5`
	result, err := executor.ExecContext(ctx, query,
		series.Name, series.Status, series.HasNoWinner, series.WinnerRivalID, series.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeriesNotFound)
}

func (r *postgresSeriesRepository) UpdateParentLinks(ctx context.Context, exec SQLExecutor, id int, parentIDs pq.Int64Array) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournament_series SET parent_series_ids = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, parentIDs, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeriesNotFound)
}

func (r *postgresSeriesRepository) CreateRival(ctx context.Context, exec SQLExecutor, rival *models.TournamentSeriesRival) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_series_rivals (series_id, proposal_id, status, won_place)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return executor.QueryRowContext(ctx, query,
		rival.SeriesID, rival.ProposalID, rival.Status, rival.WonPlace,
	).Scan(&rival.ID)
}

func (r *postgresSeriesRepository) UpdateRival(ctx context.Context, exec SQLExecutor, rival *models.TournamentSeriesRival) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournament_series_rivals SET status = $1, won_place = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, rival.Status, rival.WonPlace, rival.ID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeriesRivalNotFound)
}

func (r *postgresSeriesRepository) ListRivalsBySeries(ctx context.Context, seriesID int) ([]*models.TournamentSeriesRival, error) {
	query := `
		SELECT id, series_id, proposal_id, status, won_place
		FROM tournament_series_rivals
		WHERE series_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rivals []*models.TournamentSeriesRival
	for rows.Next() {
		rival := &models.TournamentSeriesRival{}
		if err := rows.Scan(&rival.ID, &rival.SeriesID, &rival.ProposalID, &rival.Status, &rival.WonPlace); err != nil {
			return nil, err
		}
		rivals = append(rivals, rival)
	}
	return rivals, rows.Err()
}
