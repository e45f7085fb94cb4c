package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// RecordSettlement appends a settlement transaction to the debtor's log.
func (t *sqliteTx) RecordSettlement(ctx context.Context, st *models.SettlementTransaction) error {
	tables, err := storage.TablesFor(st.DebtorKind)
	if err != nil {
		return err
	}

	// Generate ID if not set
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.TransactionDate == 0 {
		st.TransactionDate = time.Now().Unix()
	}

	var notes interface{} = nil
	if st.Notes != "" {
		notes = st.Notes
	}

	_, err = t.q.ExecContext(ctx,
		`INSERT INTO `+tables.Settlements+` (id, debtor_id, kind, transaction_date, expected_total, amount_received,
		   resulting_new_debt, amount_applied_to_old_debts, operator_id, period_start, period_end, order_count, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.DebtorID, string(st.Kind), st.TransactionDate,
		st.ExpectedTotal.StringFixed(2), st.AmountReceived.StringFixed(2),
		st.ResultingNewDebt.StringFixed(2), st.AmountAppliedToOldDebts.StringFixed(2),
		st.OperatorID, st.PeriodStart, st.PeriodEnd, st.OrderCount, notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}

	return nil
}

// selectSettlements retrieves the settlement log of a debtor, newest first.
func selectSettlements(ctx context.Context, q querier, kind models.DebtorKind, debtorID string) ([]*models.SettlementTransaction, error) {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, debtor_id, kind, transaction_date, expected_total, amount_received, resulting_new_debt,
		        amount_applied_to_old_debts, operator_id, period_start, period_end, order_count, notes
		 FROM `+tables.Settlements+` WHERE debtor_id = ? ORDER BY seq DESC`,
		debtorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*models.SettlementTransaction
	for rows.Next() {
		st := &models.SettlementTransaction{DebtorKind: kind}
		var (
			expected, received, newDebt, applied string
			notes                                sql.NullString
		)

		if err := rows.Scan(&st.ID, &st.DebtorID, &st.Kind, &st.TransactionDate,
			&expected, &received, &newDebt, &applied,
			&st.OperatorID, &st.PeriodStart, &st.PeriodEnd, &st.OrderCount, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}

		amounts := []struct {
			raw string
			dst *decimal.Decimal
		}{
			{expected, &st.ExpectedTotal},
			{received, &st.AmountReceived},
			{newDebt, &st.ResultingNewDebt},
			{applied, &st.AmountAppliedToOldDebts},
		}
		for _, a := range amounts {
			if *a.dst, err = decimal.NewFromString(a.raw); err != nil {
				return nil, fmt.Errorf("failed to parse settlement amount %q: %w", a.raw, err)
			}
		}

		if notes.Valid {
			st.Notes = notes.String
		}

		settlements = append(settlements, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, nil
}
