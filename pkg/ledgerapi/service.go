package ledgerapi

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// SettlementServiceName is the fully-qualified name of the service.
const SettlementServiceName = "ledger.v1.SettlementService"

// Procedure paths, used for routing and in interceptors.
const (
	RunEndOfDaySettlementProcedure = "/" + SettlementServiceName + "/RunEndOfDaySettlement"
	RunInvoiceSettlementProcedure  = "/" + SettlementServiceName + "/RunInvoiceSettlement"
	PayDebtDirectlyProcedure       = "/" + SettlementServiceName + "/PayDebtDirectly"
	GetOutstandingDebtsProcedure   = "/" + SettlementServiceName + "/GetOutstandingDebts"
	GetSettlementHistoryProcedure  = "/" + SettlementServiceName + "/GetSettlementHistory"
)

// IsMutation reports whether procedure writes to the ledger.
func IsMutation(procedure string) bool {
	switch procedure {
	case RunEndOfDaySettlementProcedure, RunInvoiceSettlementProcedure, PayDebtDirectlyProcedure:
		return true
	}
	return false
}

// SettlementServiceHandler is implemented by the ledger server.
type SettlementServiceHandler interface {
	RunEndOfDaySettlement(context.Context, *connect.Request[RunEndOfDaySettlementRequest]) (*connect.Response[SettlementResult], error)
	RunInvoiceSettlement(context.Context, *connect.Request[RunInvoiceSettlementRequest]) (*connect.Response[SettlementResult], error)
	PayDebtDirectly(context.Context, *connect.Request[PayDebtDirectlyRequest]) (*connect.Response[PayDebtDirectlyResponse], error)
	GetOutstandingDebts(context.Context, *connect.Request[GetOutstandingDebtsRequest]) (*connect.Response[GetOutstandingDebtsResponse], error)
	GetSettlementHistory(context.Context, *connect.Request[GetSettlementHistoryRequest]) (*connect.Response[GetSettlementHistoryResponse], error)
}

// NewSettlementServiceHandler builds an HTTP handler serving svc.
// It returns the path prefix to mount the handler on.
func NewSettlementServiceHandler(svc SettlementServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(Codec{}))

	mux := http.NewServeMux()
	mux.Handle(RunEndOfDaySettlementProcedure, connect.NewUnaryHandler(RunEndOfDaySettlementProcedure, svc.RunEndOfDaySettlement, opts...))
	mux.Handle(RunInvoiceSettlementProcedure, connect.NewUnaryHandler(RunInvoiceSettlementProcedure, svc.RunInvoiceSettlement, opts...))
	mux.Handle(PayDebtDirectlyProcedure, connect.NewUnaryHandler(PayDebtDirectlyProcedure, svc.PayDebtDirectly, opts...))
	mux.Handle(GetOutstandingDebtsProcedure, connect.NewUnaryHandler(GetOutstandingDebtsProcedure, svc.GetOutstandingDebts, opts...))
	mux.Handle(GetSettlementHistoryProcedure, connect.NewUnaryHandler(GetSettlementHistoryProcedure, svc.GetSettlementHistory, opts...))

	return "/" + SettlementServiceName + "/", mux
}

// SettlementServiceClient calls a ledger server.
type SettlementServiceClient struct {
	runEndOfDay *connect.Client[RunEndOfDaySettlementRequest, SettlementResult]
	runInvoice  *connect.Client[RunInvoiceSettlementRequest, SettlementResult]
	payDebt     *connect.Client[PayDebtDirectlyRequest, PayDebtDirectlyResponse]
	outstanding *connect.Client[GetOutstandingDebtsRequest, GetOutstandingDebtsResponse]
	history     *connect.Client[GetSettlementHistoryRequest, GetSettlementHistoryResponse]
}

// NewSettlementServiceClient creates a client for the server at baseURL.
func NewSettlementServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SettlementServiceClient {
	opts = append(opts, connect.WithCodec(Codec{}))
	return &SettlementServiceClient{
		runEndOfDay: connect.NewClient[RunEndOfDaySettlementRequest, SettlementResult](httpClient, baseURL+RunEndOfDaySettlementProcedure, opts...),
		runInvoice:  connect.NewClient[RunInvoiceSettlementRequest, SettlementResult](httpClient, baseURL+RunInvoiceSettlementProcedure, opts...),
		payDebt:     connect.NewClient[PayDebtDirectlyRequest, PayDebtDirectlyResponse](httpClient, baseURL+PayDebtDirectlyProcedure, opts...),
		outstanding: connect.NewClient[GetOutstandingDebtsRequest, GetOutstandingDebtsResponse](httpClient, baseURL+GetOutstandingDebtsProcedure, opts...),
		history:     connect.NewClient[GetSettlementHistoryRequest, GetSettlementHistoryResponse](httpClient, baseURL+GetSettlementHistoryProcedure, opts...),
	}
}

func (c *SettlementServiceClient) RunEndOfDaySettlement(ctx context.Context, req *connect.Request[RunEndOfDaySettlementRequest]) (*connect.Response[SettlementResult], error) {
	return c.runEndOfDay.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) RunInvoiceSettlement(ctx context.Context, req *connect.Request[RunInvoiceSettlementRequest]) (*connect.Response[SettlementResult], error) {
	return c.runInvoice.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) PayDebtDirectly(ctx context.Context, req *connect.Request[PayDebtDirectlyRequest]) (*connect.Response[PayDebtDirectlyResponse], error) {
	return c.payDebt.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) GetOutstandingDebts(ctx context.Context, req *connect.Request[GetOutstandingDebtsRequest]) (*connect.Response[GetOutstandingDebtsResponse], error) {
	return c.outstanding.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) GetSettlementHistory(ctx context.Context, req *connect.Request[GetSettlementHistoryRequest]) (*connect.Response[GetSettlementHistoryResponse], error) {
	return c.history.CallUnary(ctx, req)
}
