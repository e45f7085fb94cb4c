package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/storage"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "cashledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func createDebt(t *testing.T, store *SQLiteStore, kind models.DebtorKind, debtorID, date, amount string) models.DebtRecord {
	t.Helper()

	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}

	var debt models.DebtRecord
	err = store.InTx(context.Background(), func(tx storage.Tx) error {
		var err error
		debt, err = tx.CreateDebt(context.Background(), kind, debtorID, d, amt(amount))
		return err
	})
	if err != nil {
		t.Fatalf("CreateDebt failed: %v", err)
	}
	return debt
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateDebt generates ID and pending status", func(t *testing.T) {
		debt := createDebt(t, store, models.DebtorCourier, "courier-a", "2024-05-01", "300")

		if debt.ID == "" {
			t.Error("Expected debt ID to be generated")
		}
		if debt.Status != models.DebtPending {
			t.Errorf("Status = %s, want pending", debt.Status)
		}
		if !debt.RemainingAmount.Equal(debt.OriginalAmount) {
			t.Errorf("Remaining %s != original %s", debt.RemainingAmount, debt.OriginalAmount)
		}
		if debt.Version != 1 {
			t.Errorf("Version = %d, want 1", debt.Version)
		}
	})

	t.Run("CreateDebt rejects non-positive amounts", func(t *testing.T) {
		err := store.InTx(ctx, func(tx storage.Tx) error {
			_, err := tx.CreateDebt(ctx, models.DebtorCourier, "courier-a", time.Now(), decimal.Zero)
			return err
		})
		if !errors.Is(err, storage.ErrInvariant) {
			t.Errorf("expected ErrInvariant, got %v", err)
		}
	})

	t.Run("Outstanding is ordered oldest first", func(t *testing.T) {
		createDebt(t, store, models.DebtorCourier, "courier-b", "2024-05-03", "20")
		createDebt(t, store, models.DebtorCourier, "courier-b", "2024-05-01", "50")
		createDebt(t, store, models.DebtorCourier, "courier-b", "2024-05-02", "30")

		debts, err := store.Outstanding(ctx, models.DebtorCourier, "courier-b")
		if err != nil {
			t.Fatalf("Outstanding failed: %v", err)
		}
		if len(debts) != 3 {
			t.Fatalf("Expected 3 debts, got %d", len(debts))
		}
		wantDates := []string{"2024-05-01", "2024-05-02", "2024-05-03"}
		for i, d := range debts {
			if got := d.DebtDate.Format(models.DateLayout); got != wantDates[i] {
				t.Errorf("debt %d date = %s, want %s", i, got, wantDates[i])
			}
		}

		total, err := store.TotalOutstanding(ctx, models.DebtorCourier, "courier-b")
		if err != nil {
			t.Fatalf("TotalOutstanding failed: %v", err)
		}
		if !total.Equal(amt("100")) {
			t.Errorf("TotalOutstanding = %s, want 100", total)
		}
	})

	t.Run("ledgers are separated by debtor kind", func(t *testing.T) {
		createDebt(t, store, models.DebtorRestaurant, "shared-id", "2024-05-01", "75")

		courierDebts, err := store.Outstanding(ctx, models.DebtorCourier, "shared-id")
		if err != nil {
			t.Fatalf("Outstanding failed: %v", err)
		}
		if len(courierDebts) != 0 {
			t.Errorf("courier ledger has %d debts, want 0", len(courierDebts))
		}

		restaurantDebts, err := store.Outstanding(ctx, models.DebtorRestaurant, "shared-id")
		if err != nil {
			t.Fatalf("Outstanding failed: %v", err)
		}
		if len(restaurantDebts) != 1 {
			t.Errorf("restaurant ledger has %d debts, want 1", len(restaurantDebts))
		}
	})

	t.Run("ApplyAllocation persists and bumps version", func(t *testing.T) {
		debt := createDebt(t, store, models.DebtorCourier, "courier-c", "2024-05-01", "40")
		debt.RemainingAmount = amt("15")

		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{debt})
		})
		if err != nil {
			t.Fatalf("ApplyAllocation failed: %v", err)
		}

		debts, err := store.Outstanding(ctx, models.DebtorCourier, "courier-c")
		if err != nil {
			t.Fatalf("Outstanding failed: %v", err)
		}
		if len(debts) != 1 {
			t.Fatalf("Expected 1 debt, got %d", len(debts))
		}
		if !debts[0].RemainingAmount.Equal(amt("15")) {
			t.Errorf("Remaining = %s, want 15", debts[0].RemainingAmount)
		}
		if debts[0].Version != 2 {
			t.Errorf("Version = %d, want 2", debts[0].Version)
		}
	})

	t.Run("ApplyAllocation with stale version conflicts", func(t *testing.T) {
		debt := createDebt(t, store, models.DebtorCourier, "courier-d", "2024-05-01", "40")

		first := debt
		first.RemainingAmount = amt("30")
		if err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{first})
		}); err != nil {
			t.Fatalf("first ApplyAllocation failed: %v", err)
		}

		stale := debt
		stale.RemainingAmount = amt("20")
		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{stale})
		})
		if !errors.Is(err, storage.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("ApplyAllocation refuses to raise remaining amount", func(t *testing.T) {
		debt := createDebt(t, store, models.DebtorCourier, "courier-e", "2024-05-01", "40")
		debt.RemainingAmount = amt("10")
		if err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{debt})
		}); err != nil {
			t.Fatalf("ApplyAllocation failed: %v", err)
		}

		debt.Version = 2
		debt.RemainingAmount = amt("25")
		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{debt})
		})
		if !errors.Is(err, storage.ErrInvariant) {
			t.Errorf("expected ErrInvariant, got %v", err)
		}
	})

	t.Run("paid debts cannot be reopened", func(t *testing.T) {
		debt := createDebt(t, store, models.DebtorCourier, "courier-f", "2024-05-01", "40")
		debt.RemainingAmount = decimal.Zero
		debt.Status = models.DebtPaid
		if err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{debt})
		}); err != nil {
			t.Fatalf("ApplyAllocation failed: %v", err)
		}

		debt.Version = 2
		debt.RemainingAmount = decimal.Zero
		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{debt})
		})
		if !errors.Is(err, storage.ErrConflict) {
			t.Errorf("expected ErrConflict for paid record, got %v", err)
		}

		all, err := store.ListDebts(ctx, models.DebtorCourier, "courier-f")
		if err != nil {
			t.Fatalf("ListDebts failed: %v", err)
		}
		if len(all) != 1 || all[0].Status != models.DebtPaid {
			t.Errorf("ListDebts = %+v, want one paid record", all)
		}
	})

	t.Run("failed batch rolls back every update", func(t *testing.T) {
		a := createDebt(t, store, models.DebtorCourier, "courier-g", "2024-05-01", "10")
		b := createDebt(t, store, models.DebtorCourier, "courier-g", "2024-05-02", "10")

		a.RemainingAmount = decimal.Zero
		a.Status = models.DebtPaid
		b.RemainingAmount = amt("5")
		b.Version = 99 // stale

		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyAllocation(ctx, models.DebtorCourier, []models.DebtRecord{a, b})
		})
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		debts, err := store.Outstanding(ctx, models.DebtorCourier, "courier-g")
		if err != nil {
			t.Fatalf("Outstanding failed: %v", err)
		}
		if len(debts) != 2 {
			t.Fatalf("Expected both debts still pending, got %d", len(debts))
		}
		for _, d := range debts {
			if !d.RemainingAmount.Equal(amt("10")) {
				t.Errorf("debt %s remaining = %s, want 10", d.ID, d.RemainingAmount)
			}
		}
	})
}

func TestSettlementLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, received := range []string{"700", "1000"} {
		st := &models.SettlementTransaction{
			DebtorKind:              models.DebtorCourier,
			DebtorID:                "courier-1",
			Kind:                    models.SettlementEndOfDay,
			ExpectedTotal:           amt("1000"),
			AmountReceived:          amt(received),
			ResultingNewDebt:        amt("1000").Sub(amt(received)),
			AmountAppliedToOldDebts: decimal.Zero,
			OperatorID:              "admin-1",
			OrderCount:              i + 1,
		}
		if i == 0 {
			st.Notes = "short by 300"
		}
		if err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.RecordSettlement(ctx, st)
		}); err != nil {
			t.Fatalf("RecordSettlement failed: %v", err)
		}
		if st.ID == "" || st.TransactionDate == 0 {
			t.Errorf("Expected ID and TransactionDate to be generated, got %q/%d", st.ID, st.TransactionDate)
		}
	}

	history, err := store.ListSettlements(ctx, models.DebtorCourier, "courier-1")
	if err != nil {
		t.Fatalf("ListSettlements failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 settlements, got %d", len(history))
	}
	if !history[0].AmountReceived.Equal(amt("1000")) {
		t.Errorf("newest first: got received %s, want 1000", history[0].AmountReceived)
	}
	if history[1].Notes != "short by 300" {
		t.Errorf("Notes = %q, want %q", history[1].Notes, "short by 300")
	}
	if !history[1].ResultingNewDebt.Equal(amt("300")) {
		t.Errorf("ResultingNewDebt = %s, want 300", history[1].ResultingNewDebt)
	}

	other, err := store.ListSettlements(ctx, models.DebtorRestaurant, "courier-1")
	if err != nil {
		t.Fatalf("ListSettlements failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("restaurant log has %d entries, want 0", len(other))
	}
}

func TestOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	orders := []*models.Order{
		{CourierID: "c1", RestaurantID: "r1", Amount: amt("100"), PaymentMethod: models.PaymentCash, DeliveredAt: now.Add(-2 * time.Hour).Unix()},
		{CourierID: "c1", RestaurantID: "r1", Amount: amt("50"), PaymentMethod: models.PaymentCard, DeliveredAt: now.Add(-time.Hour).Unix()},
		{CourierID: "c1", RestaurantID: "r2", Amount: amt("25.50"), PaymentMethod: models.PaymentCash, DeliveredAt: now.Add(-48 * time.Hour).Unix()},
	}
	for _, o := range orders {
		if err := store.InsertOrder(ctx, o); err != nil {
			t.Fatalf("InsertOrder failed: %v", err)
		}
	}

	t.Run("courier totals only count cash", func(t *testing.T) {
		err := store.InTx(ctx, func(tx storage.Tx) error {
			got, err := tx.UnsettledOrders(ctx, models.DebtorCourier, "c1", models.Period{})
			if err != nil {
				return err
			}
			if len(got) != 2 {
				t.Errorf("got %d cash orders, want 2", len(got))
			}
			for _, o := range got {
				if o.PaymentMethod != models.PaymentCash {
					t.Errorf("order %s has method %s", o.ID, o.PaymentMethod)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}
	})

	t.Run("period bounds filter orders", func(t *testing.T) {
		period := models.Period{From: now.Add(-24 * time.Hour)}
		err := store.InTx(ctx, func(tx storage.Tx) error {
			got, err := tx.UnsettledOrders(ctx, models.DebtorRestaurant, "r1", period)
			if err != nil {
				return err
			}
			if len(got) != 2 {
				t.Errorf("got %d restaurant orders, want 2", len(got))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}
	})

	t.Run("orders settle at most once", func(t *testing.T) {
		ids := []string{orders[0].ID, orders[1].ID}
		if err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.MarkOrdersSettled(ctx, models.DebtorRestaurant, ids, now)
		}); err != nil {
			t.Fatalf("MarkOrdersSettled failed: %v", err)
		}

		err := store.InTx(ctx, func(tx storage.Tx) error {
			return tx.MarkOrdersSettled(ctx, models.DebtorRestaurant, ids, now)
		})
		if !errors.Is(err, storage.ErrConflict) {
			t.Errorf("expected ErrConflict on second settle, got %v", err)
		}

		// Restaurant settlement does not settle the courier side.
		err = store.InTx(ctx, func(tx storage.Tx) error {
			got, err := tx.UnsettledOrders(ctx, models.DebtorCourier, "c1", models.Period{})
			if err != nil {
				return err
			}
			if len(got) != 2 {
				t.Errorf("courier still has %d unsettled cash orders, want 2", len(got))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}
	})
}
