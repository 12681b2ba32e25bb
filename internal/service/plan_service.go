package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/pledgeledger/internal/ledger"
	"github.com/mmynk/pledgeledger/internal/models"
)

// PlanService implements the Connect PlanService.
type PlanService struct {
	plans *ledger.PlanCoordinator
}

// NewPlanService creates a PlanService backed by the engine's plan coordinator.
func NewPlanService(engine *ledger.Engine) *PlanService {
	return &PlanService{plans: engine.Plans}
}

// CreatePlan expands a plan into its installment schedule.
func (s *PlanService) CreatePlan(ctx context.Context, req *connect.Request[CreatePlanRequest]) (*connect.Response[PlanResponse], error) {
	in, err := createPlanInput(req.Msg)
	if err != nil {
		return nil, toConnectError(CreatePlanProcedure, err)
	}

	res, err := s.plans.CreatePlan(ctx, in)
	if err != nil {
		return nil, toConnectError(CreatePlanProcedure, err)
	}
	slog.Info("Plan created", "plan_id", res.Plan.ID, "pledge_id", res.Plan.PledgeID, "installments", len(res.Installments))
	return connect.NewResponse(planResponse(res)), nil
}

// GetPlan returns a plan with its installments and payments.
func (s *PlanService) GetPlan(ctx context.Context, req *connect.Request[GetPlanRequest]) (*connect.Response[PlanResponse], error) {
	res, err := s.plans.GetPlan(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(GetPlanProcedure, err)
	}
	return connect.NewResponse(planResponse(res)), nil
}

// UpdatePlan applies a partial update, restructuring the schedule when the
// amounts or cadence change.
func (s *PlanService) UpdatePlan(ctx context.Context, req *connect.Request[UpdatePlanRequest]) (*connect.Response[PlanResponse], error) {
	in, err := updatePlanInput(req.Msg)
	if err != nil {
		return nil, toConnectError(UpdatePlanProcedure, err)
	}

	res, err := s.plans.UpdatePlan(ctx, req.Msg.ID, in)
	if err != nil {
		return nil, toConnectError(UpdatePlanProcedure, err)
	}
	slog.Info("Plan updated", "plan_id", res.Plan.ID, "status", res.Plan.PlanStatus)
	return connect.NewResponse(planResponse(res)), nil
}

// DeletePlan soft-deletes a plan without settled payments.
func (s *PlanService) DeletePlan(ctx context.Context, req *connect.Request[DeletePlanRequest]) (*connect.Response[DeletePlanResponse], error) {
	res, err := s.plans.DeletePlan(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(DeletePlanProcedure, err)
	}
	slog.Info("Plan deleted", "plan_id", res.PlanID, "pledge_id", res.PledgeID)
	return connect.NewResponse(&DeletePlanResponse{PlanID: res.PlanID, PledgeID: res.PledgeID}), nil
}

func planResponse(res *ledger.PlanResult) *PlanResponse {
	return &PlanResponse{
		Plan:         toPlan(res.Plan),
		Installments: mapSlice(res.Installments, toInstallment),
		Payments:     mapSlice(res.Payments, toPayment),
	}
}

func createPlanInput(m *CreatePlanRequest) (ledger.CreatePlanInput, error) {
	total, err := parseAmount("totalPlannedAmount", m.TotalPlannedAmount)
	if err != nil {
		return ledger.CreatePlanInput{}, err
	}
	rate, err := parseNullAmount("exchangeRate", m.ExchangeRate)
	if err != nil {
		return ledger.CreatePlanInput{}, err
	}
	installment, err := parseNullAmount("installmentAmount", m.InstallmentAmount)
	if err != nil {
		return ledger.CreatePlanInput{}, err
	}
	start, err := parseDate("startDate", m.StartDate)
	if err != nil {
		return ledger.CreatePlanInput{}, err
	}
	custom, err := parseCustom(m.CustomInstallments)
	if err != nil {
		return ledger.CreatePlanInput{}, err
	}

	return ledger.CreatePlanInput{
		PledgeID:             m.PledgeID,
		Frequency:            models.Frequency(m.Frequency),
		DistributionType:     models.DistributionType(m.DistributionType),
		TotalPlannedAmount:   total,
		Currency:             m.Currency,
		ExchangeRate:         rate,
		InstallmentAmount:    installment,
		NumberOfInstallments: m.NumberOfInstallments,
		StartDate:            start,
		CustomInstallments:   custom,
		PlanStatus:           models.PlanStatus(m.PlanStatus),
		IsThirdParty:         m.IsThirdParty,
		PayerContactID:       m.PayerContactID,
		Notes:                m.Notes,
	}, nil
}

func updatePlanInput(m *UpdatePlanRequest) (ledger.UpdatePlanInput, error) {
	var in ledger.UpdatePlanInput
	var err error

	if in.TotalPlannedAmount, err = optAmount("totalPlannedAmount", m.TotalPlannedAmount); err != nil {
		return in, err
	}
	if in.ExchangeRate, err = optRate("exchangeRate", m.ExchangeRate); err != nil {
		return in, err
	}
	if in.InstallmentAmount, err = optAmount("installmentAmount", m.InstallmentAmount); err != nil {
		return in, err
	}
	if in.StartDate, err = optDate("startDate", m.StartDate); err != nil {
		return in, err
	}
	if m.CustomInstallments != nil {
		if in.CustomInstallments, err = parseCustom(m.CustomInstallments); err != nil {
			return in, err
		}
	}

	in.Frequency = optString[models.Frequency](m.Frequency)
	in.DistributionType = optString[models.DistributionType](m.DistributionType)
	in.PlanStatus = optString[models.PlanStatus](m.PlanStatus)
	in.Currency = m.Currency
	in.NumberOfInstallments = m.NumberOfInstallments
	in.IsThirdParty = m.IsThirdParty
	in.PayerContactID = m.PayerContactID
	in.Notes = m.Notes
	return in, nil
}
