package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/topcity/ticket-service/internal/domain"
)

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

const (
	constraintTicketCode   = "tickets_code_key"
	constraintTicketUnit   = "tickets_order_unit_key"
	constraintOrderIdemKey = "orders_idempotency_key_key"
)

// classify maps driver errors onto the domain taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// An id that does not parse as a UUID cannot name a stored row.
		if pgErr.Code == invalidTextRepresentation {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.Message)
		}
		if pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case constraintTicketCode:
				return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, pgErr.Detail)
			case constraintTicketUnit:
				return fmt.Errorf("%w: %s", domain.ErrDuplicateUnit, pgErr.Detail)
			case constraintOrderIdemKey:
				return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, pgErr.Detail)
			}
		}
		return err
	}
	if unreachable(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func unreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
