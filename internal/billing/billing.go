package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notify-fanout/internal/db"
)

// Service holds, captures, and releases per-recipient send credits around a
// job's delivery attempt, adapted from the teacher's per-message billing
// (originally keyed on an SMS message ID) to a per-job hold sized by
// recipient count — WorkerManager charges one hold per claimed job rather
// than per individual send.
type Service struct {
	db     *db.PostgresDB
	logger *zap.Logger
}

func NewService(db *db.PostgresDB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// HoldCredits deducts amount from clientID's balance and records a HELD
// lock keyed by itemID (a job ID in this repo, a message ID in the
// teacher's).
func (s *Service) HoldCredits(ctx context.Context, clientID, itemID uuid.UUID, amount int64) (*CreditLock, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE clients SET credit_cents = credit_cents - $1 WHERE id = $2 AND credit_cents >= $1", amount, clientID)
	if err != nil {
		return nil, err
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("insufficient credits")
	}

	lock := &CreditLock{
		ID:       uuid.New(),
		ClientID: clientID,
		ItemID:   itemID,
		Amount:   amount,
		State:    "HELD",
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO credit_locks (id, client_id, item_id, amount_cents, state) VALUES ($1, $2, $3, $4, $5)",
		lock.ID, lock.ClientID, lock.ItemID, lock.Amount, lock.State)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("credits held", zap.String("client", clientID.String()), zap.Int64("amount_cents", amount))
	return lock, nil
}

// CaptureCredits converts itemID's HELD lock to CAPTURED, finalizing the
// charge after a successful send.
func (s *Service) CaptureCredits(ctx context.Context, itemID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "UPDATE credit_locks SET state = 'CAPTURED' WHERE item_id = $1 AND state = 'HELD'", itemID)
	if err != nil {
		return err
	}
	s.logger.Info("credits captured", zap.String("item_id", itemID.String()))
	return nil
}

// ReleaseCredits refunds itemID's HELD lock back to the client's balance,
// used when a send fails entirely.
func (s *Service) ReleaseCredits(ctx context.Context, itemID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lock CreditLock
	err = tx.QueryRowContext(ctx, "SELECT id, client_id, amount_cents FROM credit_locks WHERE item_id = $1 AND state = 'HELD'", itemID).
		Scan(&lock.ID, &lock.ClientID, &lock.Amount)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "UPDATE clients SET credit_cents = credit_cents + $1 WHERE id = $2", lock.Amount, lock.ClientID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "UPDATE credit_locks SET state = 'RELEASED' WHERE id = $1", lock.ID)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("credits released", zap.String("client", lock.ClientID.String()), zap.Int64("amount_cents", lock.Amount))
	return nil
}

func (s *Service) GetCredits(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var credits int64
	err := s.db.QueryRowContext(ctx, "SELECT credit_cents FROM clients WHERE id = $1", clientID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("client not found")
	}
	return credits, err
}

func (s *Service) AddCredits(ctx context.Context, clientID uuid.UUID, amount int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE clients SET credit_cents = credit_cents + $1 WHERE id = $2", amount, clientID)
	if err != nil {
		return err
	}
	s.logger.Info("credits added", zap.String("client", clientID.String()), zap.Int64("amount_cents", amount))
	return nil
}

// CreditLock is one hold against a client's balance, pending capture or
// release.
type CreditLock struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`
	ItemID   uuid.UUID `json:"item_id"`
	Amount   int64     `json:"amount"`
	State    string    `json:"state"`
}
