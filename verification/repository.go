package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSellerNotFound signals no seller profile exists for the identifier.
	ErrSellerNotFound = errors.New("verification: seller not found")
	// ErrNotPending is returned when a decision targets a seller that already
	// left the pending state; callers surface it as a conflict, not a retry.
	ErrNotPending = errors.New("verification: seller not pending")
)

// Repository is the data access surface the service and the dispute resolver
// depend on. ApplyStrikes is tx-scoped so a caller can bundle the strike
// increment with its own writes.
type Repository interface {
	CreateSeller(ctx context.Context, userID string) (Seller, error)
	GetSeller(ctx context.Context, sellerID string) (Seller, error)
	AppendDocument(ctx context.Context, doc Document) (Document, error)
	DocumentTypes(ctx context.Context, ownerID string) ([]DocumentType, error)
	ApplyDecision(ctx context.Context, params DecisionParams) (Seller, error)
	SetStanding(ctx context.Context, sellerID string, standing Standing) error
	ApplyStrikes(ctx context.Context, tx pgx.Tx, sellerID string, strikes int) (StrikeResult, error)
}

// DecisionParams carries an admin verdict into storage.
type DecisionParams struct {
	SellerID  string
	Decision  Decision
	Tier      *Tier
	Notes     *string
	DecidedBy string
	DecidedAt time.Time
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const sellerColumns = `id, user_id, verification_status::text, seller_tier, standing::text, strike_count, notes, decided_by, decided_at, created_at, updated_at`

func (r *PGRepository) CreateSeller(ctx context.Context, userID string) (Seller, error) {
	query := fmt.Sprintf(`
		INSERT INTO seller_profiles (user_id)
		VALUES ($1)
		RETURNING %s
	`, sellerColumns)

	seller, err := scanSeller(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return Seller{}, fmt.Errorf("verification: create seller: %w", err)
	}
	return seller, nil
}

func (r *PGRepository) GetSeller(ctx context.Context, sellerID string) (Seller, error) {
	query := fmt.Sprintf(`SELECT %s FROM seller_profiles WHERE id = $1`, sellerColumns)

	seller, err := scanSeller(r.pool.QueryRow(ctx, query, sellerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Seller{}, ErrSellerNotFound
		}
		return Seller{}, fmt.Errorf("verification: get seller: %w", err)
	}
	return seller, nil
}

func (r *PGRepository) AppendDocument(ctx context.Context, doc Document) (Document, error) {
	const query = `
		INSERT INTO seller_documents (id, owner_id, document_type, file_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING submitted_at
	`

	if err := r.pool.QueryRow(ctx, query, doc.ID, doc.OwnerID, doc.Type, doc.FileRef).Scan(&doc.SubmittedAt); err != nil {
		return Document{}, fmt.Errorf("verification: append document: %w", err)
	}
	return doc, nil
}

func (r *PGRepository) DocumentTypes(ctx context.Context, ownerID string) ([]DocumentType, error) {
	const query = `
		SELECT DISTINCT document_type::text
		FROM seller_documents
		WHERE owner_id = $1
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("verification: document types: %w", err)
	}
	defer rows.Close()

	types := make([]DocumentType, 0, 4)
	for rows.Next() {
		var dt DocumentType
		if err := rows.Scan(&dt); err != nil {
			return nil, fmt.Errorf("verification: scan document type: %w", err)
		}
		types = append(types, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verification: iterate document types: %w", err)
	}
	return types, nil
}

// ApplyDecision flips a pending seller to the verdict. The WHERE clause is the
// compare-and-swap: a seller already decided matches no row.
func (r *PGRepository) ApplyDecision(ctx context.Context, params DecisionParams) (Seller, error) {
	query := fmt.Sprintf(`
		UPDATE seller_profiles
		SET verification_status = $2::verification_status,
		    seller_tier = $3,
		    notes = COALESCE($4, notes),
		    decided_by = $5,
		    decided_at = $6,
		    updated_at = now()
		WHERE id = $1 AND verification_status = 'pending'
		RETURNING %s
	`, sellerColumns)

	seller, err := scanSeller(r.pool.QueryRow(ctx, query,
		params.SellerID,
		string(params.Decision),
		params.Tier,
		params.Notes,
		params.DecidedBy,
		params.DecidedAt,
	))
	if err == nil {
		return seller, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Seller{}, fmt.Errorf("verification: apply decision: %w", err)
	}

	// No row matched: diagnose missing seller vs already-decided conflict.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM seller_profiles WHERE id = $1)`, params.SellerID).Scan(&exists); err != nil {
		return Seller{}, fmt.Errorf("verification: decision fetch: %w", err)
	}
	if !exists {
		return Seller{}, ErrSellerNotFound
	}
	return Seller{}, ErrNotPending
}

func (r *PGRepository) SetStanding(ctx context.Context, sellerID string, standing Standing) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE seller_profiles
		SET standing = $2::seller_standing, updated_at = now()
		WHERE id = $1
	`, sellerID, standing)
	if err != nil {
		return fmt.Errorf("verification: set standing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSellerNotFound
	}
	return nil
}

// ApplyStrikes increments the strike count and recomputes standing inside the
// caller's transaction, against a locked row, so no observer can see the new
// count with a stale standing.
func (r *PGRepository) ApplyStrikes(ctx context.Context, tx pgx.Tx, sellerID string, strikes int) (StrikeResult, error) {
	var (
		count    int
		standing Standing
	)
	if err := tx.QueryRow(ctx, `
		SELECT strike_count, standing::text
		FROM seller_profiles
		WHERE id = $1
		FOR UPDATE
	`, sellerID).Scan(&count, &standing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StrikeResult{}, ErrSellerNotFound
		}
		return StrikeResult{}, fmt.Errorf("verification: lock seller: %w", err)
	}

	count += strikes
	standing = standingFor(count, standing)

	if _, err := tx.Exec(ctx, `
		UPDATE seller_profiles
		SET strike_count = $2, standing = $3::seller_standing, updated_at = now()
		WHERE id = $1
	`, sellerID, count, standing); err != nil {
		return StrikeResult{}, fmt.Errorf("verification: apply strikes: %w", err)
	}

	return StrikeResult{StrikeCount: count, Standing: standing}, nil
}

func scanSeller(row pgx.Row) (Seller, error) {
	var s Seller
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Status,
		&s.Tier,
		&s.Standing,
		&s.StrikeCount,
		&s.Notes,
		&s.DecidedBy,
		&s.DecidedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return Seller{}, err
	}
	return s, nil
}
