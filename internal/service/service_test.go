package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/auth"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/ledger"
	"github.com/mmynk/pledgeledger/internal/metrics"
	"github.com/mmynk/pledgeledger/internal/middleware"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/storage/sqlite"
)

type testEnv struct {
	store    *sqlite.SQLiteStore
	plans    *PlanServiceClient
	payments *PaymentServiceClient
	pledges  *PledgeServiceClient
}

// setupTestServer creates a test server over a temporary SQLite database.
func setupTestServer(t *testing.T, interceptors ...connect.Interceptor) (*testEnv, func()) {
	t.Helper()

	// Create temp database
	tmpFile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	engine := ledger.NewEngine(store, fx.NewResolver(store), ledger.DefaultConfig(), nil)
	opts := []connect.HandlerOption{connect.WithInterceptors(interceptors...)}

	mux := http.NewServeMux()
	mux.Handle(NewPlanServiceHandler(NewPlanService(engine), opts...))
	mux.Handle(NewPaymentServiceHandler(NewPaymentService(engine), opts...))
	mux.Handle(NewPledgeServiceHandler(NewPledgeService(store), opts...))

	server := httptest.NewServer(mux)

	env := &testEnv{
		store:    store,
		plans:    NewPlanServiceClient(http.DefaultClient, server.URL),
		payments: NewPaymentServiceClient(http.DefaultClient, server.URL),
		pledges:  NewPledgeServiceClient(http.DefaultClient, server.URL),
	}

	cleanup := func() {
		server.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	}

	return env, cleanup
}

// createPledge stores a USD pledge; pledges are owned outside the RPC surface.
func (e *testEnv) createPledge(t *testing.T, amount string) string {
	t.Helper()
	ctx := context.Background()

	contact := &models.Contact{Name: "donor"}
	if err := e.store.CreateContact(ctx, contact); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	d := decimal.RequireFromString(amount)
	pledge := &models.Pledge{
		ContactID:         contact.ID,
		OriginalAmount:    d,
		OriginalAmountUSD: decimal.NullDecimal{Decimal: d, Valid: true},
		Currency:          models.USD,
		Balance:           d,
		BalanceUSD:        decimal.NullDecimal{Decimal: d, Valid: true},
	}
	if err := e.store.CreatePledge(ctx, pledge); err != nil {
		t.Fatalf("CreatePledge failed: %v", err)
	}
	return pledge.ID
}

func (e *testEnv) createPlan(t *testing.T, pledgeID, total string, n int) *PlanResponse {
	t.Helper()
	resp, err := e.plans.CreatePlan(context.Background(), connect.NewRequest(&CreatePlanRequest{
		PledgeID:             pledgeID,
		Frequency:            "monthly",
		DistributionType:     "fixed",
		TotalPlannedAmount:   total,
		NumberOfInstallments: n,
		StartDate:            "2030-02-01",
	}))
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	return resp.Msg
}

func (e *testEnv) getPledge(t *testing.T, id string) *Pledge {
	t.Helper()
	resp, err := e.pledges.GetPledge(context.Background(), connect.NewRequest(&GetPledgeRequest{ID: id}))
	if err != nil {
		t.Fatalf("GetPledge failed: %v", err)
	}
	return resp.Msg.Pledge
}

func connectCode(t *testing.T, err error) *connect.Error {
	t.Helper()
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect error, got %v", err)
	}
	return connectErr
}

func TestCreatePlan(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	pledgeID := env.createPledge(t, "1000")
	plan := env.createPlan(t, pledgeID, "1000", 3)

	if plan.Plan.PlanStatus != "active" {
		t.Errorf("PlanStatus = %q, want active", plan.Plan.PlanStatus)
	}
	if plan.Plan.RemainingAmount != "1000.00" {
		t.Errorf("RemainingAmount = %q, want 1000.00", plan.Plan.RemainingAmount)
	}
	if len(plan.Installments) != 3 {
		t.Fatalf("got %d installments, want 3", len(plan.Installments))
	}

	wantAmounts := []string{"333.33", "333.33", "333.34"}
	wantDates := []string{"2030-02-01", "2030-03-01", "2030-04-01"}
	for i, inst := range plan.Installments {
		if inst.InstallmentAmount != wantAmounts[i] {
			t.Errorf("installment %d amount = %q, want %q", i, inst.InstallmentAmount, wantAmounts[i])
		}
		if inst.InstallmentDate != wantDates[i] {
			t.Errorf("installment %d date = %q, want %q", i, inst.InstallmentDate, wantDates[i])
		}
		if inst.Status != "pending" {
			t.Errorf("installment %d status = %q, want pending", i, inst.Status)
		}
	}

	if len(plan.Payments) != 3 {
		t.Fatalf("got %d payments, want 3", len(plan.Payments))
	}
	for _, p := range plan.Payments {
		if p.Status != "pending" {
			t.Errorf("payment %s status = %q, want pending", p.ID, p.Status)
		}
	}

	got, err := env.plans.GetPlan(context.Background(), connect.NewRequest(&GetPlanRequest{ID: plan.Plan.ID}))
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.Msg.Plan.ID != plan.Plan.ID || len(got.Msg.Installments) != 3 {
		t.Errorf("GetPlan returned %+v", got.Msg.Plan)
	}
}

func TestCreatePlan_InvalidArgument(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	pledgeID := env.createPledge(t, "1000")

	tests := []struct {
		name  string
		req   *CreatePlanRequest
		field string
	}{
		{
			name:  "malformed total",
			req:   &CreatePlanRequest{PledgeID: pledgeID, Frequency: "monthly", TotalPlannedAmount: "ten", NumberOfInstallments: 2, StartDate: "2030-01-01"},
			field: "totalPlannedAmount",
		},
		{
			name:  "malformed date",
			req:   &CreatePlanRequest{PledgeID: pledgeID, Frequency: "monthly", TotalPlannedAmount: "100", NumberOfInstallments: 2, StartDate: "01/02/2030"},
			field: "startDate",
		},
		{
			name:  "unknown frequency",
			req:   &CreatePlanRequest{PledgeID: pledgeID, Frequency: "daily", TotalPlannedAmount: "100", NumberOfInstallments: 2, StartDate: "2030-01-01"},
			field: "frequency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.plans.CreatePlan(context.Background(), connect.NewRequest(tt.req))
			connectErr := connectCode(t, err)
			if connectErr.Code() != connect.CodeInvalidArgument {
				t.Errorf("code = %v, want InvalidArgument", connectErr.Code())
			}
			if got := connectErr.Meta().Get(FieldHeader); got != tt.field {
				t.Errorf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

func TestGetPlan_NotFound(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	_, err := env.plans.GetPlan(context.Background(), connect.NewRequest(&GetPlanRequest{ID: "missing"}))
	if code := connectCode(t, err).Code(); code != connect.CodeNotFound {
		t.Errorf("code = %v, want NotFound", code)
	}
}

func TestCreatePlan_SecondOpenPlanConflicts(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	pledgeID := env.createPledge(t, "1000")
	env.createPlan(t, pledgeID, "1000", 2)

	_, err := env.plans.CreatePlan(context.Background(), connect.NewRequest(&CreatePlanRequest{
		PledgeID:             pledgeID,
		Frequency:            "monthly",
		TotalPlannedAmount:   "500",
		NumberOfInstallments: 1,
		StartDate:            "2030-06-01",
	}))
	if code := connectCode(t, err).Code(); code != connect.CodeFailedPrecondition {
		t.Errorf("code = %v, want FailedPrecondition", code)
	}
}

func TestSplitPayment(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()

	a := env.createPledge(t, "500")
	b := env.createPledge(t, "500")

	resp, err := env.payments.CreatePayment(ctx, connect.NewRequest(&CreatePaymentRequest{
		Allocations: []Allocation{
			{PledgeID: a, AllocatedAmount: "60"},
			{PledgeID: b, AllocatedAmount: "40"},
		},
		Amount:      "100",
		Currency:    "USD",
		PaymentDate: "2030-01-15",
	}))
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if resp.Msg.Payment.Status != "completed" {
		t.Errorf("Status = %q, want completed", resp.Msg.Payment.Status)
	}
	if resp.Msg.Payment.PledgeID != "" {
		t.Errorf("split payment has PledgeID %q", resp.Msg.Payment.PledgeID)
	}
	if len(resp.Msg.Allocations) != 2 || len(resp.Msg.AffectedPledges) != 2 {
		t.Fatalf("got %d allocations, %d affected pledges; want 2, 2",
			len(resp.Msg.Allocations), len(resp.Msg.AffectedPledges))
	}

	pa := env.getPledge(t, a)
	if pa.TotalPaid != "60.00" || pa.Balance != "440.00" {
		t.Errorf("pledge a totals = %s paid, %s balance; want 60.00, 440.00", pa.TotalPaid, pa.Balance)
	}
	pb := env.getPledge(t, b)
	if pb.TotalPaid != "40.00" || pb.BalanceUSD != "460.00" {
		t.Errorf("pledge b totals = %s paid, %s balance USD; want 40.00, 460.00", pb.TotalPaid, pb.BalanceUSD)
	}

	del, err := env.payments.DeletePayment(ctx, connect.NewRequest(&DeletePaymentRequest{ID: resp.Msg.Payment.ID}))
	if err != nil {
		t.Fatalf("DeletePayment failed: %v", err)
	}
	if del.Msg.PaymentID != resp.Msg.Payment.ID {
		t.Errorf("deleted %q, want %q", del.Msg.PaymentID, resp.Msg.Payment.ID)
	}
	if got := env.getPledge(t, a).Balance; got != "500.00" {
		t.Errorf("balance after delete = %s, want 500.00", got)
	}
}

func TestSplitPayment_SumMismatch(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()

	a := env.createPledge(t, "500")
	b := env.createPledge(t, "500")

	_, err := env.payments.CreatePayment(context.Background(), connect.NewRequest(&CreatePaymentRequest{
		Allocations: []Allocation{
			{PledgeID: a, AllocatedAmount: "60"},
			{PledgeID: b, AllocatedAmount: "30"},
		},
		Amount:      "100",
		Currency:    "USD",
		PaymentDate: "2030-01-15",
	}))
	connectErr := connectCode(t, err)
	if connectErr.Code() != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", connectErr.Code())
	}
	if got := connectErr.Meta().Get(DetailHeaderPrefix + "discrepancy"); got != "10.00" {
		t.Errorf("discrepancy = %q, want 10.00", got)
	}
}

func TestUpdatePayment_CompletesInstallment(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()

	pledgeID := env.createPledge(t, "600")
	plan := env.createPlan(t, pledgeID, "600", 2)
	stub := plan.Payments[0]

	status := "completed"
	if _, err := env.payments.UpdatePayment(ctx, connect.NewRequest(&UpdatePaymentRequest{
		ID:     stub.ID,
		Status: &status,
	})); err != nil {
		t.Fatalf("UpdatePayment failed: %v", err)
	}

	got, err := env.plans.GetPlan(ctx, connect.NewRequest(&GetPlanRequest{ID: plan.Plan.ID}))
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.Msg.Plan.InstallmentsPaid != 1 || got.Msg.Plan.TotalPaid != "300.00" {
		t.Errorf("plan = %d paid installments, %s paid; want 1, 300.00",
			got.Msg.Plan.InstallmentsPaid, got.Msg.Plan.TotalPaid)
	}
	if got.Msg.Installments[0].Status != "paid" || got.Msg.Installments[0].PaidDate == "" {
		t.Errorf("installment = %+v, want paid with a paid date", got.Msg.Installments[0])
	}
	if got.Msg.Plan.NextPaymentDate != "2030-03-01" {
		t.Errorf("NextPaymentDate = %q, want 2030-03-01", got.Msg.Plan.NextPaymentDate)
	}

	// A plan with a settled payment cannot be deleted.
	_, err = env.plans.DeletePlan(ctx, connect.NewRequest(&DeletePlanRequest{ID: plan.Plan.ID}))
	if code := connectCode(t, err).Code(); code != connect.CodeFailedPrecondition {
		t.Errorf("DeletePlan code = %v, want FailedPrecondition", code)
	}
}

func TestUpdatePlan_Restructure(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()

	pledgeID := env.createPledge(t, "1200")
	plan := env.createPlan(t, pledgeID, "1200", 4)

	n := 2
	notes := "stretched"
	resp, err := env.plans.UpdatePlan(ctx, connect.NewRequest(&UpdatePlanRequest{
		ID:                   plan.Plan.ID,
		NumberOfInstallments: &n,
		Notes:                &notes,
	}))
	if err != nil {
		t.Fatalf("UpdatePlan failed: %v", err)
	}
	if resp.Msg.Plan.Notes != notes {
		t.Errorf("Notes = %q, want %q", resp.Msg.Plan.Notes, notes)
	}

	var pending, cancelled int
	for _, inst := range resp.Msg.Installments {
		switch inst.Status {
		case "pending":
			pending++
			if inst.InstallmentAmount != "600.00" {
				t.Errorf("pending installment amount = %s, want 600.00", inst.InstallmentAmount)
			}
		case "cancelled":
			cancelled++
		}
	}
	if pending != 2 || cancelled != 4 {
		t.Errorf("got %d pending, %d cancelled; want 2, 4", pending, cancelled)
	}
}

func TestDeletePlan(t *testing.T) {
	env, cleanup := setupTestServer(t)
	defer cleanup()
	ctx := context.Background()

	pledgeID := env.createPledge(t, "1000")
	plan := env.createPlan(t, pledgeID, "1000", 2)

	resp, err := env.plans.DeletePlan(ctx, connect.NewRequest(&DeletePlanRequest{ID: plan.Plan.ID}))
	if err != nil {
		t.Fatalf("DeletePlan failed: %v", err)
	}
	if resp.Msg.PledgeID != pledgeID {
		t.Errorf("PledgeID = %q, want %q", resp.Msg.PledgeID, pledgeID)
	}

	pledge, err := env.pledges.GetPledge(ctx, connect.NewRequest(&GetPledgeRequest{ID: pledgeID}))
	if err != nil {
		t.Fatalf("GetPledge failed: %v", err)
	}
	if len(pledge.Msg.Plans) != 0 {
		t.Errorf("pledge still lists %d plans", len(pledge.Msg.Plans))
	}
}

func TestRequireAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	env, cleanup := setupTestServer(t, middleware.RequireAuth(jwtManager))
	defer cleanup()
	ctx := context.Background()

	pledgeID := env.createPledge(t, "100")

	_, err := env.pledges.GetPledge(ctx, connect.NewRequest(&GetPledgeRequest{ID: pledgeID}))
	if code := connectCode(t, err).Code(); code != connect.CodeUnauthenticated {
		t.Errorf("code = %v, want Unauthenticated", code)
	}

	token, err := jwtManager.Generate("ops", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	req := connect.NewRequest(&GetPledgeRequest{ID: pledgeID})
	req.Header().Set("Authorization", "Bearer "+token)
	if _, err := env.pledges.GetPledge(ctx, req); err != nil {
		t.Errorf("GetPledge with token failed: %v", err)
	}
}

func TestLoggingInterceptor_CountsRequests(t *testing.T) {
	env, cleanup := setupTestServer(t, middleware.LoggingInterceptor(nil))
	defer cleanup()

	counter := metrics.RPCRequests.WithLabelValues(GetPledgeProcedure, connect.CodeNotFound.String())
	before := testutil.ToFloat64(counter)

	_, err := env.pledges.GetPledge(context.Background(), connect.NewRequest(&GetPledgeRequest{ID: "missing"}))
	if code := connectCode(t, err).Code(); code != connect.CodeNotFound {
		t.Fatalf("code = %v, want NotFound", code)
	}

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("rpc counter = %v, want %v", got, before+1)
	}
}
