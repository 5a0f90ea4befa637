package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/KhrulSergey/league-core/models"
	"github.com/lib/pq"
)

var ErrRoundNotFound = errors.New("tournament round not found")

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.TournamentRound) error
	GetByID(ctx context.Context, id int) (*models.TournamentRound, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentRound, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error

	// GetActiveRound — раунд с максимальным номером в активном статусе.
	GetActiveRound(ctx context.Context, tournamentID int) (*models.TournamentRound, error)
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const roundColumns = `id, tournament_id, round_number, name, status, is_last`

func scanRound(scanner interface{ Scan(...interface{}) error }, round *models.TournamentRound) error {
	return scanner.Scan(&round.ID, &round.TournamentID, &round.RoundNumber, &round.Name, &round.Status, &round.IsLast)
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, round *models.TournamentRound) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_rounds (tournament_id, round_number, name, status, is_last)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return executor.QueryRowContext(ctx, query,
		round.TournamentID, round.RoundNumber, round.Name, round.Status, round.IsLast,
	).Scan(&round.ID)
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, id int) (*models.TournamentRound, error) {
	query := `SELECT ` + roundColumns + ` FROM tournament_rounds WHERE id = $1`
	round := &models.TournamentRound{}
	if err := scanRound(r.db.QueryRowContext(ctx, query, id), round); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return round, nil
}

func (r *postgresRoundRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentRound, error) {
	query := `SELECT ` + roundColumns + ` FROM tournament_rounds WHERE tournament_id = $1 ORDER BY round_number`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []*models.TournamentRound
	for rows.Next() {
		round := &models.TournamentRound{}
		if err := scanRound(rows, round); err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func (r *postgresRoundRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournament_rounds SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

func (r *postgresRoundRepository) GetActiveRound(ctx context.Context, tournamentID int) (*models.TournamentRound, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM tournament_rounds
		WHERE tournament_id = $1 AND status = ANY($2)
		ORDER BY round_number DESC
		LIMIT 1`

	statuses := make([]string, 0, len(models.ActiveStatusList))
	for _, s := range models.ActiveStatusList {
		statuses = append(statuses, string(s))
	}

	round := &models.TournamentRound{}
	err := scanRound(r.db.QueryRowContext(ctx, query, tournamentID, pq.Array(statuses)), round)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return round, nil
}
