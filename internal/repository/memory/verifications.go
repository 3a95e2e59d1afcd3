package memory

import (
	"context"

	"github.com/topcity/ticket-service/internal/domain"
)

type verificationRepository struct {
	s *Store
}

func (r *verificationRepository) Append(_ context.Context, record *domain.VerificationRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = newID()
	if record.VerifiedAt.IsZero() {
		record.VerifiedAt = s.now()
	}
	s.verifications = append(s.verifications, *record)
	return nil
}

func (r *verificationRepository) ListByCode(_ context.Context, code string) ([]domain.VerificationRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.VerificationRecord
	for _, record := range s.verifications {
		if record.Code == code {
			result = append(result, record)
		}
	}
	return result, nil
}
