package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cashledger/internal/auth"
	"github.com/mmynk/cashledger/internal/middleware"
	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/settlement"
	"github.com/mmynk/cashledger/internal/storage"
	"github.com/mmynk/cashledger/internal/storage/sqlite"
	"github.com/mmynk/cashledger/pkg/ledgerapi"
)

const testSecret = "test-secret"

type testServer struct {
	client *ledgerapi.SettlementServiceClient
	store  *sqlite.SQLiteStore
	token  string
}

// setupTestServer creates a test server backed by a temp SQLite database.
// limiter may be nil.
func setupTestServer(t *testing.T, limiter *middleware.OperatorLimiter) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	jwtManager := auth.NewJWTManager(testSecret, time.Hour)
	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(nil),
		limiter.Interceptor(),
	)

	svc := NewSettlementService(settlement.NewEngine(store, nil))
	path, handler := ledgerapi.NewSettlementServiceHandler(svc, interceptors)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	token, err := jwtManager.Generate("admin-1", "Test Admin")
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	return &testServer{
		client: ledgerapi.NewSettlementServiceClient(http.DefaultClient, server.URL),
		store:  store,
		token:  token,
	}
}

// authed wraps msg in a request carrying the server's bearer token.
func authed[T any](ts *testServer, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+ts.token)
	return req
}

func (ts *testServer) seedOrder(t *testing.T, courierID, restaurantID, amount string, method models.PaymentMethod) {
	t.Helper()
	err := ts.store.InsertOrder(context.Background(), &models.Order{
		CourierID:     courierID,
		RestaurantID:  restaurantID,
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: method,
		DeliveredAt:   time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Errorf("expected code %v, got %v (%v)", code, got, err)
	}
}

func TestRunEndOfDaySettlement(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	ts.seedOrder(t, "courier-1", "restaurant-1", "600", models.PaymentCash)
	ts.seedOrder(t, "courier-1", "restaurant-1", "400", models.PaymentCash)

	resp, err := ts.client.RunEndOfDaySettlement(ctx, authed(ts, &ledgerapi.RunEndOfDaySettlementRequest{
		CourierID:      "courier-1",
		AmountReceived: "700",
		Notes:          "short at handover",
	}))
	if err != nil {
		t.Fatalf("RunEndOfDaySettlement failed: %v", err)
	}

	got := resp.Msg
	if got.ExpectedTotal != "1000.00" || got.Difference != "300.00" || got.NewDebtAmount != "300.00" {
		t.Errorf("unexpected figures: %+v", got)
	}
	if got.Classification != "shortfall" || got.OrderCount != 2 {
		t.Errorf("classification %q with %d orders, want shortfall with 2", got.Classification, got.OrderCount)
	}

	debts, err := ts.client.GetOutstandingDebts(ctx, authed(ts, &ledgerapi.GetOutstandingDebtsRequest{
		DebtorKind: "courier",
		DebtorID:   "courier-1",
	}))
	if err != nil {
		t.Fatalf("GetOutstandingDebts failed: %v", err)
	}
	if debts.Msg.TotalOutstanding != "300.00" || len(debts.Msg.Debts) != 1 {
		t.Errorf("outstanding = %s over %d debts, want 300.00 over 1", debts.Msg.TotalOutstanding, len(debts.Msg.Debts))
	}

	history, err := ts.client.GetSettlementHistory(ctx, authed(ts, &ledgerapi.GetSettlementHistoryRequest{
		DebtorKind: "courier",
		DebtorID:   "courier-1",
	}))
	if err != nil {
		t.Fatalf("GetSettlementHistory failed: %v", err)
	}
	if len(history.Msg.Settlements) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(history.Msg.Settlements))
	}
	st := history.Msg.Settlements[0]
	if st.OperatorID != "admin-1" || st.Notes != "short at handover" || st.Kind != "end_of_day" {
		t.Errorf("unexpected settlement: %+v", st)
	}
}

func TestPayDebtDirectly(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	ts.seedOrder(t, "courier-1", "restaurant-1", "100", models.PaymentCash)
	if _, err := ts.client.RunEndOfDaySettlement(ctx, authed(ts, &ledgerapi.RunEndOfDaySettlementRequest{
		CourierID:      "courier-1",
		AmountReceived: "0",
	})); err != nil {
		t.Fatalf("RunEndOfDaySettlement failed: %v", err)
	}

	_, err := ts.client.PayDebtDirectly(ctx, authed(ts, &ledgerapi.PayDebtDirectlyRequest{
		DebtorKind: "courier",
		DebtorID:   "courier-1",
		Amount:     "150",
	}))
	wantCode(t, err, connect.CodeInvalidArgument)

	resp, err := ts.client.PayDebtDirectly(ctx, authed(ts, &ledgerapi.PayDebtDirectlyRequest{
		DebtorKind: "courier",
		DebtorID:   "courier-1",
		Amount:     "40",
	}))
	if err != nil {
		t.Fatalf("PayDebtDirectly failed: %v", err)
	}
	if resp.Msg.PaidAmount != "40.00" || resp.Msg.RemainingDebt != "60.00" {
		t.Errorf("paid %s remaining %s, want 40.00/60.00", resp.Msg.PaidAmount, resp.Msg.RemainingDebt)
	}

	history, err := ts.client.GetSettlementHistory(ctx, authed(ts, &ledgerapi.GetSettlementHistoryRequest{
		DebtorKind: "courier",
		DebtorID:   "courier-1",
	}))
	if err != nil {
		t.Fatalf("GetSettlementHistory failed: %v", err)
	}
	if len(history.Msg.Settlements) != 2 || history.Msg.Settlements[0].Kind != "direct_payment" {
		t.Errorf("expected direct payment first in history, got %+v", history.Msg.Settlements)
	}

	all, err := ts.client.GetOutstandingDebts(ctx, authed(ts, &ledgerapi.GetOutstandingDebtsRequest{
		DebtorKind:  "courier",
		DebtorID:    "courier-1",
		IncludePaid: true,
	}))
	if err != nil {
		t.Fatalf("GetOutstandingDebts failed: %v", err)
	}
	if len(all.Msg.Debts) != 1 || all.Msg.Debts[0].RemainingAmount != "60.00" || all.Msg.Debts[0].Version != 2 {
		t.Errorf("unexpected debts: %+v", all.Msg.Debts)
	}
}

func TestRunInvoiceSettlement_Overpayment(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	ts.seedOrder(t, "courier-1", "restaurant-1", "250", models.PaymentCard)

	_, err := ts.client.RunInvoiceSettlement(ctx, authed(ts, &ledgerapi.RunInvoiceSettlementRequest{
		RestaurantID: "restaurant-1",
		AmountPaid:   "300",
	}))
	wantCode(t, err, connect.CodeInvalidArgument)

	resp, err := ts.client.RunInvoiceSettlement(ctx, authed(ts, &ledgerapi.RunInvoiceSettlementRequest{
		RestaurantID: "restaurant-1",
		AmountPaid:   "250.00",
		Period:       &ledgerapi.Period{From: time.Now().Add(-24 * time.Hour).Format(time.RFC3339)},
	}))
	if err != nil {
		t.Fatalf("RunInvoiceSettlement failed: %v", err)
	}
	if resp.Msg.Classification != "exact" || resp.Msg.OrderCount != 1 {
		t.Errorf("got %+v, want exact over 1 order", resp.Msg)
	}
}

func TestInvalidRequests(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"non-numeric amount", func() error {
			_, err := ts.client.RunEndOfDaySettlement(ctx, authed(ts, &ledgerapi.RunEndOfDaySettlementRequest{
				CourierID: "courier-1", AmountReceived: "ten",
			}))
			return err
		}},
		{"negative amount", func() error {
			_, err := ts.client.RunInvoiceSettlement(ctx, authed(ts, &ledgerapi.RunInvoiceSettlementRequest{
				RestaurantID: "restaurant-1", AmountPaid: "-1",
			}))
			return err
		}},
		{"bad period", func() error {
			_, err := ts.client.RunEndOfDaySettlement(ctx, authed(ts, &ledgerapi.RunEndOfDaySettlementRequest{
				CourierID: "courier-1", AmountReceived: "1", Period: &ledgerapi.Period{From: "yesterday"},
			}))
			return err
		}},
		{"unknown debtor kind", func() error {
			_, err := ts.client.GetOutstandingDebts(ctx, authed(ts, &ledgerapi.GetOutstandingDebtsRequest{
				DebtorKind: "driver", DebtorID: "x",
			}))
			return err
		}},
		{"zero direct payment", func() error {
			_, err := ts.client.PayDebtDirectly(ctx, authed(ts, &ledgerapi.PayDebtDirectlyRequest{
				DebtorKind: "restaurant", DebtorID: "restaurant-1", Amount: "0",
			}))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, tt.call(), connect.CodeInvalidArgument)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupTestServer(t, nil)
	ctx := context.Background()

	_, err := ts.client.GetSettlementHistory(ctx, connect.NewRequest(&ledgerapi.GetSettlementHistoryRequest{
		DebtorKind: "courier", DebtorID: "courier-1",
	}))
	wantCode(t, err, connect.CodeUnauthenticated)

	req := connect.NewRequest(&ledgerapi.GetSettlementHistoryRequest{DebtorKind: "courier", DebtorID: "courier-1"})
	req.Header().Set("Authorization", "Bearer not-a-token")
	_, err = ts.client.GetSettlementHistory(ctx, req)
	wantCode(t, err, connect.CodeUnauthenticated)
}

func TestRateLimitedMutations(t *testing.T) {
	ts := setupTestServer(t, middleware.NewOperatorLimiter(0.001, 1, ledgerapi.IsMutation))
	ctx := context.Background()

	pay := func() error {
		_, err := ts.client.RunEndOfDaySettlement(ctx, authed(ts, &ledgerapi.RunEndOfDaySettlementRequest{
			CourierID: "courier-1", AmountReceived: "0",
		}))
		return err
	}

	if err := pay(); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}
	err := pay()
	wantCode(t, err, connect.CodeResourceExhausted)
	var cerr *connect.Error
	if errors.As(err, &cerr) && cerr.Meta().Get("Retry-After") == "" {
		t.Error("throttled response carries no Retry-After hint")
	}

	// Reads are not limited.
	for i := 0; i < 3; i++ {
		if _, err := ts.client.GetSettlementHistory(ctx, authed(ts, &ledgerapi.GetSettlementHistoryRequest{
			DebtorKind: "courier", DebtorID: "courier-1",
		})); err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
	}
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{&settlement.ValidationError{Field: "amount", Message: "bad"}, connect.CodeInvalidArgument},
		{&settlement.ConflictError{Op: "pay debt"}, connect.CodeAborted},
		{&settlement.PersistenceError{Op: "list debts", Err: errors.New("disk full")}, connect.CodeInternal},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), connect.CodeDeadlineExceeded},
		{errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := connect.CodeOf(toConnectError(tt.err)); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

// debtAfterListStore books a new debt for the debtor right after each debt
// listing returns, as a concurrent settlement committing in between would.
type debtAfterListStore struct {
	storage.Store
	amount string
}

func (s *debtAfterListStore) bookDebt(ctx context.Context, kind models.DebtorKind, debtorID string) error {
	return s.Store.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDebt(ctx, kind, debtorID, time.Now(), decimal.RequireFromString(s.amount))
		return err
	})
}

func (s *debtAfterListStore) Outstanding(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	debts, err := s.Store.Outstanding(ctx, kind, debtorID)
	if err != nil {
		return nil, err
	}
	return debts, s.bookDebt(ctx, kind, debtorID)
}

func (s *debtAfterListStore) ListDebts(ctx context.Context, kind models.DebtorKind, debtorID string) ([]models.DebtRecord, error) {
	debts, err := s.Store.ListDebts(ctx, kind, debtorID)
	if err != nil {
		return nil, err
	}
	return debts, s.bookDebt(ctx, kind, debtorID)
}

func TestOutstandingTotalMatchesListedDebts(t *testing.T) {
	for _, includePaid := range []bool{false, true} {
		t.Run(fmt.Sprintf("include_paid=%v", includePaid), func(t *testing.T) {
			base, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
			if err != nil {
				t.Fatalf("failed to create store: %v", err)
			}
			t.Cleanup(func() { base.Close() })
			ctx := context.Background()

			err = base.InTx(ctx, func(tx storage.Tx) error {
				_, err := tx.CreateDebt(ctx, models.DebtorCourier, "courier-1", time.Now().AddDate(0, 0, -1), decimal.RequireFromString("100"))
				return err
			})
			if err != nil {
				t.Fatalf("failed to seed debt: %v", err)
			}

			svc := NewSettlementService(settlement.NewEngine(&debtAfterListStore{Store: base, amount: "40"}, nil))
			resp, err := svc.GetOutstandingDebts(ctx, connect.NewRequest(&ledgerapi.GetOutstandingDebtsRequest{
				DebtorKind:  "courier",
				DebtorID:    "courier-1",
				IncludePaid: includePaid,
			}))
			if err != nil {
				t.Fatalf("GetOutstandingDebts failed: %v", err)
			}

			sum := decimal.Zero
			for _, d := range resp.Msg.Debts {
				if d.Status == string(models.DebtPending) {
					sum = sum.Add(decimal.RequireFromString(d.RemainingAmount))
				}
			}
			if len(resp.Msg.Debts) != 1 || resp.Msg.TotalOutstanding != sum.StringFixed(2) {
				t.Errorf("total %s over %d debts, listed pending sum %s", resp.Msg.TotalOutstanding, len(resp.Msg.Debts), sum.StringFixed(2))
			}
			if resp.Msg.TotalOutstanding != "100.00" {
				t.Errorf("total = %s, want 100.00", resp.Msg.TotalOutstanding)
			}
		})
	}
}
