package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/KhrulSergey/league-core/models"
	"github.com/lib/pq"
)

var (
	ErrProposalNotFound = errors.New("team proposal not found")
	ErrProposalConflict = errors.New("team already has a proposal for this tournament")

	// ErrProposalStateConflict — CAS-защита: состояние заявки изменилось
	// под конкурентным запросом, переход не применён.
	ErrProposalStateConflict = errors.New("proposal state was changed concurrently")

	ErrTransactionNotFound = errors.New("proposal transaction not found")
)

type ProposalRepository interface {
	Create(ctx context.Context, exec SQLExecutor, proposal *models.TournamentTeamProposal) error
	GetByID(ctx context.Context, id int) (*models.TournamentTeamProposal, error)
	FindByTeamAndTournament(ctx context.Context, teamID, tournamentID int) (*models.TournamentTeamProposal, error)
	ListByTournament(ctx context.Context, tournamentID int, states []models.ProposalState) ([]*models.TournamentTeamProposal, error)

	// UpdateStateGuarded применяет переход state: from -> to атомарно.
	// Если текущее состояние уже не from — ErrProposalStateConflict.
	UpdateStateGuarded(ctx context.Context, exec SQLExecutor, id int, from, to models.ProposalState) error
	SetConfirmed(ctx context.Context, exec SQLExecutor, id int, confirmed bool) error

	AddTransaction(ctx context.Context, exec SQLExecutor, txn *models.AccountTransaction) error
	UpdateTransactionStatus(ctx context.Context, exec SQLExecutor, guid string, status models.TransactionStatus) error
	ListTransactions(ctx context.Context, proposalID int) ([]*models.AccountTransaction, error)
}

type postgresProposalRepository struct {
	db *sql.DB
}

func NewPostgresProposalRepository(db *sql.DB) ProposalRepository {
	return &postgresProposalRepository{db: db}
}

func (r *postgresProposalRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const proposalColumns = `
	id, tournament_id, team_id, captain_user_id, state, prev_state,
	confirmed, participation_fee, created_at`

func scanProposal(scanner interface{ Scan(...interface{}) error }, p *models.TournamentTeamProposal) error {
	return scanner.Scan(
		&p.ID, &p.TournamentID, &p.TeamID, &p.CaptainUserID, &p.State, &p.PrevState,
		&p.Confirmed, &p.ParticipationFee, &p.CreatedAt,
	)
}

func (r *postgresProposalRepository) Create(ctx context.Context, exec SQLExecutor, proposal *models.TournamentTeamProposal) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO team_proposals (
			tournament_id, team_id, captain_user_id, state, prev_state, confirmed, participation_fee
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		proposal.TournamentID, proposal.TeamID, proposal.CaptainUserID,
		proposal.State, proposal.PrevState, proposal.Confirmed, proposal.ParticipationFee,
	).Scan(&proposal.ID, &proposal.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrProposalConflict
		}
		return err
	}

	for _, participant := range proposal.Participants {
		participant.ProposalID = proposal.ID
		participantQuery := `
			INSERT INTO team_proposal_participants (proposal_id, user_id)
			VALUES ($1, $2)
			RETURNING id`
		if err := executor.QueryRowContext(ctx, participantQuery,
			participant.ProposalID, participant.UserID,
		).Scan(&participant.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresProposalRepository) GetByID(ctx context.Context, id int) (*models.TournamentTeamProposal, error) {
	query := `SELECT` + proposalColumns + ` FROM team_proposals WHERE id = $1`
	proposal := &models.TournamentTeamProposal{}
	if err := scanProposal(r.db.QueryRowContext(ctx, query, id), proposal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	if err := r.loadRelations(ctx, proposal); err != nil {
		return nil, err
	}
	return proposal, nil
}

func (r *postgresProposalRepository) FindByTeamAndTournament(ctx context.Context, teamID, tournamentID int) (*models.TournamentTeamProposal, error) {
	query := `SELECT` + proposalColumns + ` FROM team_proposals WHERE team_id = $1 AND tournament_id = $2`
	proposal := &models.TournamentTeamProposal{}
	if err := scanProposal(r.db.QueryRowContext(ctx, query, teamID, tournamentID), proposal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, err
	}
	if err := r.loadRelations(ctx, proposal); err != nil {
		return nil, err
	}
	return proposal, nil
}

func (r *postgresProposalRepository) ListByTournament(ctx context.Context, tournamentID int, states []models.ProposalState) ([]*models.TournamentTeamProposal, error) {
	query := `SELECT` + proposalColumns + ` FROM team_proposals WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	if len(states) > 0 {
		stateStrings := make([]string, 0, len(states))
		for _, s := range states {
			stateStrings = append(stateStrings, string(s))
		}
		query += ` AND state = ANY($2)`
		args = append(args, pq.Array(stateStrings))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []*models.TournamentTeamProposal
	for rows.Next() {
		proposal := &models.TournamentTeamProposal{}
		if err := scanProposal(rows, proposal); err != nil {
			return nil, err
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, proposal := range proposals {
		if err := r.loadRelations(ctx, proposal); err != nil {
			return nil, err
		}
	}
	return proposals, nil
}

func (r *postgresProposalRepository) UpdateStateGuarded(ctx context.Context, exec SQLExecutor, id int, from, to models.ProposalState) error {
	executor := r.getExecutor(exec)
	query := `UPDATE team_proposals SET state = $1, prev_state = $2 WHERE id = $3 AND state = $2`
	result, err := executor.ExecContext(ctx, query, to, from, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrProposalStateConflict)
}

func (r *postgresProposalRepository) SetConfirmed(ctx context.Context, exec SQLExecutor, id int, confirmed bool) error {
	executor := r.getExecutor(exec)
	query := `UPDATE team_proposals SET confirmed = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, confirmed, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrProposalNotFound)
}

func (r *postgresProposalRepository) AddTransaction(ctx context.Context, exec SQLExecutor, txn *models.AccountTransaction) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO proposal_transactions (guid, proposal_id, source_guid, target_guid, amount, template, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	return executor.QueryRowContext(ctx, query,
		txn.GUID, txn.ProposalID, txn.SourceGUID, txn.TargetGUID, txn.Amount, txn.Template, txn.Status,
	).Scan(&txn.ID)
}

func (r *postgresProposalRepository) UpdateTransactionStatus(ctx context.Context, exec SQLExecutor, guid string, status models.TransactionStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE proposal_transactions SET status = $1 WHERE guid = $2`
	result, err := executor.ExecContext(ctx, query, status, guid)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTransactionNotFound)
}

func (r *postgresProposalRepository) ListTransactions(ctx context.Context, proposalID int) ([]*models.AccountTransaction, error) {
	query := `
		SELECT id, guid, proposal_id, source_guid, target_guid, amount, template, status
		FROM proposal_transactions
		WHERE proposal_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.AccountTransaction
	for rows.Next() {
		txn := &models.AccountTransaction{}
		if err := rows.Scan(
			&txn.ID, &txn.GUID, &txn.ProposalID, &txn.SourceGUID, &txn.TargetGUID,
			&txn.Amount, &txn.Template, &txn.Status,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

func (r *postgresProposalRepository) loadRelations(ctx context.Context, proposal *models.TournamentTeamProposal) error {
	participantsQuery := `
		SELECT id, proposal_id, user_id
		FROM team_proposal_participants
		WHERE proposal_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, participantsQuery, proposal.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	proposal.Participants = nil
	for rows.Next() {
		participant := &models.TournamentTeamParticipant{}
		if err := rows.Scan(&participant.ID, &participant.ProposalID, &participant.UserID); err != nil {
			return err
		}
		proposal.Participants = append(proposal.Participants, participant)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	transactions, err := r.ListTransactions(ctx, proposal.ID)
	if err != nil {
		return err
	}
	proposal.Transactions = transactions
	return nil
}
