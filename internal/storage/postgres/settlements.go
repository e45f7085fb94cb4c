package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

// RecordSettlement appends a settlement transaction to the debtor's log.
func (t *pgTx) RecordSettlement(ctx context.Context, st *models.SettlementTransaction) error {
	tables, err := storage.TablesFor(st.DebtorKind)
	if err != nil {
		return err
	}

	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.TransactionDate == 0 {
		st.TransactionDate = time.Now().Unix()
	}

	var notes *string
	if st.Notes != "" {
		notes = &st.Notes
	}

	_, err = t.q.Exec(ctx,
		`INSERT INTO `+tables.Settlements+` (id, debtor_id, kind, transaction_date, expected_total, amount_received,
		   resulting_new_debt, amount_applied_to_old_debts, operator_id, period_start, period_end, order_count, notes)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13)`,
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

func selectSettlements(ctx context.Context, q querier, kind models.DebtorKind, debtorID string) ([]*models.SettlementTransaction, error) {
	tables, err := storage.TablesFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT id, debtor_id, kind, transaction_date, expected_total::text, amount_received::text,
		        resulting_new_debt::text, amount_applied_to_old_debts::text,
		        operator_id, period_start, period_end, order_count, notes
		 FROM `+tables.Settlements+` WHERE debtor_id = $1 ORDER BY seq DESC`,
		debtorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}

	settlements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.SettlementTransaction, error) {
		st := &models.SettlementTransaction{DebtorKind: kind}
		var (
			kindText                             string
			expected, received, newDebt, applied string
			notes                                *string
		)
		if err := row.Scan(&st.ID, &st.DebtorID, &kindText, &st.TransactionDate,
			&expected, &received, &newDebt, &applied,
			&st.OperatorID, &st.PeriodStart, &st.PeriodEnd, &st.OrderCount, &notes); err != nil {
			return nil, err
		}
		st.Kind = models.SettlementKind(kindText)
		if notes != nil {
			st.Notes = *notes
		}

		var err error
		if st.ExpectedTotal, err = decimal.NewFromString(expected); err != nil {
			return nil, err
		}
		if st.AmountReceived, err = decimal.NewFromString(received); err != nil {
			return nil, err
		}
		if st.ResultingNewDebt, err = decimal.NewFromString(newDebt); err != nil {
			return nil, err
		}
		if st.AmountAppliedToOldDebts, err = decimal.NewFromString(applied); err != nil {
			return nil, err
		}
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan settlements: %w", err)
	}
	return settlements, nil
}
