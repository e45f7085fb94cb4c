package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// GetOutstanding returns pending debts ordered by debt date then ID.
func (t *sqliteTx) GetOutstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	return selectDebts(ctx, t.q, kind, debtorID, true)
}

// ApplyAllocation writes the allocation result, guarded by each record's version.
func (t *sqliteTx) ApplyAllocation(ctx context.Context, kind models.DebtorKind, updated []models.DebtRecord) error {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, debt := range updated {
		if err := storage.CheckTransition(debt); err != nil {
			return fmt.Errorf("debt %s: %w", debt.ID, err)
		}

		// Compare against the stored row: the new remaining amount may
		// never exceed the current one.
		var current string
		var status models.DebtStatus
		var version int64
		err := t.q.QueryRowContext(ctx,
			`SELECT remaining_amount, status, version FROM `+tables.Debts+` WHERE id = ? AND debtor_id = ?`,
			debt.ID, debt.DebtorID,
		).Scan(&current, &status, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("debt %s: %w", debt.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load debt %s: %w", debt.ID, err)
		}
		if version != debt.Version || status != models.DebtPending {
			return fmt.Errorf("debt %s: %w", debt.ID, storage.ErrConflict)
		}
		currentAmount, err := decimal.NewFromString(current)
		if err != nil {
			return fmt.Errorf("failed to parse remaining amount of debt %s: %w", debt.ID, err)
		}
		if debt.RemainingAmount.GreaterThan(currentAmount) {
			return fmt.Errorf("debt %s: remaining amount would increase: %w", debt.ID, storage.ErrInvariant)
		}

		res, err := t.q.ExecContext(ctx,
			`UPDATE `+tables.Debts+`
			 SET remaining_amount = ?, status = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ? AND status = 'pending'`,
			debt.RemainingAmount.StringFixed(2), string(debt.Status), now, debt.ID, debt.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update debt %s: %w", debt.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check debt update %s: %w", debt.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("debt %s: %w", debt.ID, storage.ErrConflict)
		}
	}

	return nil
}

// CreateDebt inserts a new pending debt record.
func (t *sqliteTx) CreateDebt(ctx context.Context, kind models.DebtorKind, debtorID string, date time.Time, amount decimal.Decimal) (models.DebtRecord, error) {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return models.DebtRecord{}, err
	}
	if !amount.IsPositive() {
		return models.DebtRecord{}, fmt.Errorf("debt amount must be positive, got %s: %w", amount, storage.ErrInvariant)
	}

	now := time.Now().Unix()
	debt := models.DebtRecord{
		ID:              uuid.New().String(),
		DebtorKind:      kind,
		DebtorID:        debtorID,
		DebtDate:        models.Day(date),
		OriginalAmount:  models.Round(amount),
		RemainingAmount: models.Round(amount),
		Status:          models.DebtPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = t.q.ExecContext(ctx,
		`INSERT INTO `+tables.Debts+` (id, debtor_id, debt_date, amount, remaining_amount, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		debt.ID, debt.DebtorID, debt.DebtDate.Format(models.DateLayout),
		debt.OriginalAmount.StringFixed(2), debt.RemainingAmount.StringFixed(2),
		string(debt.Status), debt.Version, debt.CreatedAt, debt.UpdatedAt,
	)
	if err != nil {
		return models.DebtRecord{}, fmt.Errorf("failed to insert debt: %w", err)
	}

	return debt, nil
}

// selectDebts loads the debts of a debtor ordered oldest first.
func selectDebts(ctx context.Context, q querier, kind models.DebtorKind, debtorID string, pendingOnly bool) ([]models.DebtRecord, error) {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, debtor_id, debt_date, amount, remaining_amount, status, version, created_at, updated_at
		FROM ` + tables.Debts + ` WHERE debtor_id = ?`
	if pendingOnly {
		query += ` AND status = 'pending'`
	}
	query += ` ORDER BY debt_date ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, debtorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	defer rows.Close()

	var debts []models.DebtRecord
	for rows.Next() {
		var (
			debt      models.DebtRecord
			debtDate  string
			original  string
			remaining string
		)
		if err := rows.Scan(&debt.ID, &debt.DebtorID, &debtDate, &original, &remaining,
			&debt.Status, &debt.Version, &debt.CreatedAt, &debt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}

		debt.DebtorKind = kind
		if debt.DebtDate, err = time.Parse(models.DateLayout, debtDate); err != nil {
			return nil, fmt.Errorf("failed to parse debt date %q: %w", debtDate, err)
		}
		if debt.OriginalAmount, err = decimal.NewFromString(original); err != nil {
			return nil, fmt.Errorf("failed to parse debt amount: %w", err)
		}
		if debt.RemainingAmount, err = decimal.NewFromString(remaining); err != nil {
			return nil, fmt.Errorf("failed to parse remaining amount: %w", err)
		}

		debts = append(debts, debt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}

	return debts, nil
}
