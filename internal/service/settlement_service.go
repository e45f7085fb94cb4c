package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/cashledger/internal/calculator"
	"github.com/mmynk/cashledger/internal/middleware"
	"github.com/mmynk/cashledger/internal/models"
	"github.com/mmynk/cashledger/internal/settlement"
	"github.com/mmynk/cashledger/pkg/ledgerapi"
)

// SettlementService implements the Connect SettlementService.
type SettlementService struct {
	engine *settlement.Engine
}

var _ ledgerapi.SettlementServiceHandler = (*SettlementService)(nil)

// NewSettlementService creates a new SettlementService running on engine.
func NewSettlementService(engine *settlement.Engine) *SettlementService {
	return &SettlementService{engine: engine}
}

// RunEndOfDaySettlement reconciles the cash a courier hands over at the end of a shift.
func (s *SettlementService) RunEndOfDaySettlement(ctx context.Context, req *connect.Request[ledgerapi.RunEndOfDaySettlementRequest]) (*connect.Response[ledgerapi.SettlementResult], error) {
	amount, err := settlement.ParseAmount("amount_received", req.Msg.AmountReceived)
	if err != nil {
		return nil, toConnectError(err)
	}
	period, err := parsePeriod(req.Msg.Period)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Debug("RunEndOfDaySettlement",
		"courier_id", req.Msg.CourierID,
		"amount_received", amount.StringFixed(2),
	)

	res, err := s.engine.RunEndOfDay(ctx, operator(ctx), settlement.Request{
		DebtorID: req.Msg.CourierID,
		Amount:   amount,
		Period:   period,
		Notes:    req.Msg.Notes,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(settlementResult(res)), nil
}

// RunInvoiceSettlement settles a payment made to a restaurant.
func (s *SettlementService) RunInvoiceSettlement(ctx context.Context, req *connect.Request[ledgerapi.RunInvoiceSettlementRequest]) (*connect.Response[ledgerapi.SettlementResult], error) {
	amount, err := settlement.ParseAmount("amount_paid", req.Msg.AmountPaid)
	if err != nil {
		return nil, toConnectError(err)
	}
	period, err := parsePeriod(req.Msg.Period)
	if err != nil {
		return nil, toConnectError(err)
	}

	res, err := s.engine.RunInvoice(ctx, operator(ctx), settlement.Request{
		DebtorID: req.Msg.RestaurantID,
		Amount:   amount,
		Period:   period,
		Notes:    req.Msg.Notes,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(settlementResult(res)), nil
}

// PayDebtDirectly applies a payment to existing debts outside any settlement period.
func (s *SettlementService) PayDebtDirectly(ctx context.Context, req *connect.Request[ledgerapi.PayDebtDirectlyRequest]) (*connect.Response[ledgerapi.PayDebtDirectlyResponse], error) {
	kind, err := parseKind(req.Msg.DebtorKind)
	if err != nil {
		return nil, toConnectError(err)
	}
	amount, err := settlement.ParseAmount("amount", req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}

	res, err := s.engine.PayDebt(ctx, operator(ctx), kind, req.Msg.DebtorID, amount)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ledgerapi.PayDebtDirectlyResponse{
		SettlementID:  res.SettlementID,
		PaidAmount:    res.PaidAmount.StringFixed(2),
		RemainingDebt: res.RemainingDebt.StringFixed(2),
	}), nil
}

// GetOutstandingDebts lists a debtor's pending debts, oldest first.
func (s *SettlementService) GetOutstandingDebts(ctx context.Context, req *connect.Request[ledgerapi.GetOutstandingDebtsRequest]) (*connect.Response[ledgerapi.GetOutstandingDebtsResponse], error) {
	kind, err := parseKind(req.Msg.DebtorKind)
	if err != nil {
		return nil, toConnectError(err)
	}

	var debts []models.DebtRecord
	if req.Msg.IncludePaid {
		debts, err = s.engine.Debts(ctx, kind, req.Msg.DebtorID)
	} else {
		debts, err = s.engine.Outstanding(ctx, kind, req.Msg.DebtorID)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	// The total is summed from the listed rows so it always matches them.
	total := calculator.TotalRemaining(debts)

	resp := &ledgerapi.GetOutstandingDebtsResponse{
		Debts:            make([]ledgerapi.Debt, len(debts)),
		TotalOutstanding: total.StringFixed(2),
	}
	for i, d := range debts {
		resp.Debts[i] = ledgerapi.Debt{
			ID:              d.ID,
			DebtDate:        d.DebtDate.Format(models.DateLayout),
			OriginalAmount:  d.OriginalAmount.StringFixed(2),
			RemainingAmount: d.RemainingAmount.StringFixed(2),
			Status:          string(d.Status),
			Version:         d.Version,
		}
	}

	return connect.NewResponse(resp), nil
}

// GetSettlementHistory lists a debtor's settlement transactions, newest first.
func (s *SettlementService) GetSettlementHistory(ctx context.Context, req *connect.Request[ledgerapi.GetSettlementHistoryRequest]) (*connect.Response[ledgerapi.GetSettlementHistoryResponse], error) {
	kind, err := parseKind(req.Msg.DebtorKind)
	if err != nil {
		return nil, toConnectError(err)
	}

	history, err := s.engine.History(ctx, kind, req.Msg.DebtorID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &ledgerapi.GetSettlementHistoryResponse{
		Settlements: make([]ledgerapi.Settlement, len(history)),
	}
	for i, st := range history {
		resp.Settlements[i] = ledgerapi.Settlement{
			ID:                      st.ID,
			Kind:                    string(st.Kind),
			TransactionDate:         formatUnix(st.TransactionDate),
			ExpectedTotal:           st.ExpectedTotal.StringFixed(2),
			AmountReceived:          st.AmountReceived.StringFixed(2),
			ResultingNewDebt:        st.ResultingNewDebt.StringFixed(2),
			AmountAppliedToOldDebts: st.AmountAppliedToOldDebts.StringFixed(2),
			OperatorID:              st.OperatorID,
			PeriodStart:             formatUnix(st.PeriodStart),
			PeriodEnd:               formatUnix(st.PeriodEnd),
			OrderCount:              st.OrderCount,
			Notes:                   st.Notes,
		}
	}

	return connect.NewResponse(resp), nil
}

// operator reads the authenticated operator placed in ctx by RequireAuth.
func operator(ctx context.Context) settlement.Operator {
	return settlement.Operator{ID: middleware.GetOperatorID(ctx)}
}

func settlementResult(res *settlement.Result) *ledgerapi.SettlementResult {
	return &ledgerapi.SettlementResult{
		SettlementID:            res.SettlementID,
		ExpectedTotal:           res.ExpectedTotal.StringFixed(2),
		PeriodTotal:             res.PeriodTotal.StringFixed(2),
		OldDebt:                 res.OldDebt.StringFixed(2),
		AmountReceived:          res.AmountReceived.StringFixed(2),
		Difference:              res.Difference.StringFixed(2),
		NewDebtAmount:           res.NewDebt.StringFixed(2),
		NewDebtID:               res.NewDebtID,
		AmountAppliedToOldDebts: res.AppliedToOld.StringFixed(2),
		Classification:          string(res.Classification),
		OrderCount:              res.OrderCount,
	}
}

func parseKind(s string) (models.DebtorKind, error) {
	kind, err := models.ParseDebtorKind(s)
	if err != nil {
		return "", &settlement.ValidationError{Field: "debtor_kind", Message: err.Error()}
	}
	return kind, nil
}

func parsePeriod(p *ledgerapi.Period) (models.Period, error) {
	var period models.Period
	if p == nil {
		return period, nil
	}
	var err error
	if p.From != "" {
		if period.From, err = time.Parse(time.RFC3339, p.From); err != nil {
			return period, &settlement.ValidationError{Field: "period.from", Message: fmt.Sprintf("%q is not an RFC 3339 timestamp", p.From)}
		}
	}
	if p.To != "" {
		if period.To, err = time.Parse(time.RFC3339, p.To); err != nil {
			return period, &settlement.ValidationError{Field: "period.to", Message: fmt.Sprintf("%q is not an RFC 3339 timestamp", p.To)}
		}
	}
	return period, nil
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// toConnectError maps settlement errors onto Connect codes.
func toConnectError(err error) error {
	var (
		verr *settlement.ValidationError
		cerr *settlement.ConflictError
		perr *settlement.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return connect.NewError(connect.CodeInvalidArgument, verr)
	case errors.As(err, &cerr):
		return connect.NewError(connect.CodeAborted, cerr)
	case errors.As(err, &perr):
		slog.Error("Ledger persistence failed", "op", perr.Op, "error", perr.Err)
		return connect.NewError(connect.CodeInternal, fmt.Errorf("failed to %s", perr.Op))
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
