package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Fully-qualified service names.
const (
	PlanServiceName    = "pledgeledger.v1.PlanService"
	PaymentServiceName = "pledgeledger.v1.PaymentService"
	PledgeServiceName  = "pledgeledger.v1.PledgeService"
)

// Procedure paths.
const (
	CreatePlanProcedure    = "/" + PlanServiceName + "/CreatePlan"
	GetPlanProcedure       = "/" + PlanServiceName + "/GetPlan"
	UpdatePlanProcedure    = "/" + PlanServiceName + "/UpdatePlan"
	DeletePlanProcedure    = "/" + PlanServiceName + "/DeletePlan"
	CreatePaymentProcedure = "/" + PaymentServiceName + "/CreatePayment"
	UpdatePaymentProcedure = "/" + PaymentServiceName + "/UpdatePayment"
	DeletePaymentProcedure = "/" + PaymentServiceName + "/DeletePayment"
	GetPledgeProcedure     = "/" + PledgeServiceName + "/GetPledge"
)

// IsProcedure reports whether path addresses one of the RPC services.
func IsProcedure(path string) bool {
	return strings.HasPrefix(path, "/pledgeledger.v1.")
}

// handlerOptions prepends the JSON codec so callers' options still apply.
func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
}

// serviceHandler routes a service's procedures, returning the mount path.
func serviceHandler(name string, routes map[string]http.Handler) (string, http.Handler) {
	mux := http.NewServeMux()
	for procedure, h := range routes {
		mux.Handle(procedure, h)
	}
	return "/" + name + "/", mux
}

// NewPlanServiceHandler builds an HTTP handler for the plan procedures.
func NewPlanServiceHandler(svc *PlanService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return serviceHandler(PlanServiceName, map[string]http.Handler{
		CreatePlanProcedure: connect.NewUnaryHandler(CreatePlanProcedure, svc.CreatePlan, opts...),
		GetPlanProcedure:    connect.NewUnaryHandler(GetPlanProcedure, svc.GetPlan, opts...),
		UpdatePlanProcedure: connect.NewUnaryHandler(UpdatePlanProcedure, svc.UpdatePlan, opts...),
		DeletePlanProcedure: connect.NewUnaryHandler(DeletePlanProcedure, svc.DeletePlan, opts...),
	})
}

// NewPaymentServiceHandler builds an HTTP handler for the payment procedures.
func NewPaymentServiceHandler(svc *PaymentService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return serviceHandler(PaymentServiceName, map[string]http.Handler{
		CreatePaymentProcedure: connect.NewUnaryHandler(CreatePaymentProcedure, svc.CreatePayment, opts...),
		UpdatePaymentProcedure: connect.NewUnaryHandler(UpdatePaymentProcedure, svc.UpdatePayment, opts...),
		DeletePaymentProcedure: connect.NewUnaryHandler(DeletePaymentProcedure, svc.DeletePayment, opts...),
	})
}

// NewPledgeServiceHandler builds an HTTP handler for the pledge procedures.
func NewPledgeServiceHandler(svc *PledgeService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return serviceHandler(PledgeServiceName, map[string]http.Handler{
		GetPledgeProcedure: connect.NewUnaryHandler(GetPledgeProcedure, svc.GetPledge, opts...),
	})
}

// PlanServiceClient calls the plan procedures.
type PlanServiceClient struct {
	createPlan *connect.Client[CreatePlanRequest, PlanResponse]
	getPlan    *connect.Client[GetPlanRequest, PlanResponse]
	updatePlan *connect.Client[UpdatePlanRequest, PlanResponse]
	deletePlan *connect.Client[DeletePlanRequest, DeletePlanResponse]
}

// NewPlanServiceClient creates a client for the server at baseURL.
func NewPlanServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlanServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &PlanServiceClient{
		createPlan: connect.NewClient[CreatePlanRequest, PlanResponse](httpClient, baseURL+CreatePlanProcedure, opts...),
		getPlan:    connect.NewClient[GetPlanRequest, PlanResponse](httpClient, baseURL+GetPlanProcedure, opts...),
		updatePlan: connect.NewClient[UpdatePlanRequest, PlanResponse](httpClient, baseURL+UpdatePlanProcedure, opts...),
		deletePlan: connect.NewClient[DeletePlanRequest, DeletePlanResponse](httpClient, baseURL+DeletePlanProcedure, opts...),
	}
}

func (c *PlanServiceClient) CreatePlan(ctx context.Context, req *connect.Request[CreatePlanRequest]) (*connect.Response[PlanResponse], error) {
	return c.createPlan.CallUnary(ctx, req)
}

func (c *PlanServiceClient) GetPlan(ctx context.Context, req *connect.Request[GetPlanRequest]) (*connect.Response[PlanResponse], error) {
	return c.getPlan.CallUnary(ctx, req)
}

func (c *PlanServiceClient) UpdatePlan(ctx context.Context, req *connect.Request[UpdatePlanRequest]) (*connect.Response[PlanResponse], error) {
	return c.updatePlan.CallUnary(ctx, req)
}

func (c *PlanServiceClient) DeletePlan(ctx context.Context, req *connect.Request[DeletePlanRequest]) (*connect.Response[DeletePlanResponse], error) {
	return c.deletePlan.CallUnary(ctx, req)
}

// PaymentServiceClient calls the payment procedures.
type PaymentServiceClient struct {
	createPayment *connect.Client[CreatePaymentRequest, PaymentResponse]
	updatePayment *connect.Client[UpdatePaymentRequest, PaymentResponse]
	deletePayment *connect.Client[DeletePaymentRequest, DeletePaymentResponse]
}

// NewPaymentServiceClient creates a client for the server at baseURL.
func NewPaymentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PaymentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &PaymentServiceClient{
		createPayment: connect.NewClient[CreatePaymentRequest, PaymentResponse](httpClient, baseURL+CreatePaymentProcedure, opts...),
		updatePayment: connect.NewClient[UpdatePaymentRequest, PaymentResponse](httpClient, baseURL+UpdatePaymentProcedure, opts...),
		deletePayment: connect.NewClient[DeletePaymentRequest, DeletePaymentResponse](httpClient, baseURL+DeletePaymentProcedure, opts...),
	}
}

func (c *PaymentServiceClient) CreatePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	return c.createPayment.CallUnary(ctx, req)
}

func (c *PaymentServiceClient) UpdatePayment(ctx context.Context, req *connect.Request[UpdatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	return c.updatePayment.CallUnary(ctx, req)
}

func (c *PaymentServiceClient) DeletePayment(ctx context.Context, req *connect.Request[DeletePaymentRequest]) (*connect.Response[DeletePaymentResponse], error) {
	return c.deletePayment.CallUnary(ctx, req)
}

// PledgeServiceClient calls the pledge procedures.
type PledgeServiceClient struct {
	getPledge *connect.Client[GetPledgeRequest, GetPledgeResponse]
}

// NewPledgeServiceClient creates a client for the server at baseURL.
func NewPledgeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PledgeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &PledgeServiceClient{
		getPledge: connect.NewClient[GetPledgeRequest, GetPledgeResponse](httpClient, baseURL+GetPledgeProcedure, clientOptions(opts)...),
	}
}

func (c *PledgeServiceClient) GetPledge(ctx context.Context, req *connect.Request[GetPledgeRequest]) (*connect.Response[GetPledgeResponse], error) {
	return c.getPledge.CallUnary(ctx, req)
}
