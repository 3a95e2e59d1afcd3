package repository

import (
	"context"

	"github.com/topcity/ticket-service/internal/domain"
)

type verificationRepository struct {
	db DBTX
}

// NewVerificationRepository builds the append-only scan log.
func NewVerificationRepository(db DBTX) VerificationRepository {
	return &verificationRepository{db: db}
}

func (r *verificationRepository) Append(ctx context.Context, record *domain.VerificationRecord) error {
	const query = `
        INSERT INTO verifications (event_id, code, outcome, reason, verified_by, verified_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	err := r.db.QueryRow(ctx, query,
		record.EventID,
		record.Code,
		record.Outcome,
		record.Reason,
		record.VerifiedBy,
		record.VerifiedAt,
	).Scan(&record.ID)
	return classify(err)
}

func (r *verificationRepository) ListByCode(ctx context.Context, code string) ([]domain.VerificationRecord, error) {
	const query = `
        SELECT id, event_id, code, outcome, reason, verified_by, verified_at
        FROM verifications WHERE code=$1 ORDER BY verified_at ASC`
	rows, err := r.db.Query(ctx, query, code)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.VerificationRecord
	for rows.Next() {
		var record domain.VerificationRecord
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.Code,
			&record.Outcome,
			&record.Reason,
			&record.VerifiedBy,
			&record.VerifiedAt,
		); err != nil {
			return nil, classify(err)
		}
		result = append(result, record)
	}
	return result, classify(rows.Err())
}
