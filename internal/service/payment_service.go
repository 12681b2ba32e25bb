package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/pledgeledger/internal/ledger"
	"github.com/mmynk/pledgeledger/internal/models"
)

// PaymentService implements the Connect PaymentService.
type PaymentService struct {
	payments *ledger.PaymentCoordinator
}

// NewPaymentService creates a PaymentService backed by the engine's payment coordinator.
func NewPaymentService(engine *ledger.Engine) *PaymentService {
	return &PaymentService{payments: engine.Payments}
}

// CreatePayment records a direct or split payment.
func (s *PaymentService) CreatePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	in, err := paymentInput(req.Msg)
	if err != nil {
		return nil, toConnectError(CreatePaymentProcedure, err)
	}

	res, err := s.payments.CreatePayment(ctx, in)
	if err != nil {
		return nil, toConnectError(CreatePaymentProcedure, err)
	}
	slog.Info("Payment created",
		"payment_id", res.Payment.ID,
		"split", res.Payment.IsSplit(),
		"affected_pledges", res.AffectedPledges,
	)
	return connect.NewResponse(paymentResponse(res)), nil
}

// UpdatePayment applies a partial update and reconciles allocations.
func (s *PaymentService) UpdatePayment(ctx context.Context, req *connect.Request[UpdatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	patch, err := paymentPatch(req.Msg)
	if err != nil {
		return nil, toConnectError(UpdatePaymentProcedure, err)
	}

	res, err := s.payments.UpdatePayment(ctx, req.Msg.ID, patch)
	if err != nil {
		return nil, toConnectError(UpdatePaymentProcedure, err)
	}
	slog.Info("Payment updated", "payment_id", res.Payment.ID, "affected_pledges", res.AffectedPledges)
	return connect.NewResponse(paymentResponse(res)), nil
}

// DeletePayment removes a payment and its allocations.
func (s *PaymentService) DeletePayment(ctx context.Context, req *connect.Request[DeletePaymentRequest]) (*connect.Response[DeletePaymentResponse], error) {
	res, err := s.payments.DeletePayment(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(DeletePaymentProcedure, err)
	}
	slog.Info("Payment deleted", "payment_id", res.PaymentID, "affected_pledges", res.AffectedPledges)
	return connect.NewResponse(&DeletePaymentResponse{
		PaymentID:       res.PaymentID,
		AffectedPledges: res.AffectedPledges,
		AffectedPlan:    res.AffectedPlan,
	}), nil
}

func paymentResponse(res *ledger.PaymentResult) *PaymentResponse {
	return &PaymentResponse{
		Payment:         toPayment(res.Payment),
		Allocations:     mapSlice(res.Allocations, toAllocation),
		AffectedPledges: res.AffectedPledges,
		AffectedPlans:   res.AffectedPlans,
	}
}

func paymentInput(m *CreatePaymentRequest) (ledger.PaymentInput, error) {
	amt, err := parseAmount("amount", m.Amount)
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	rate, err := parseNullAmount("exchangeRate", m.ExchangeRate)
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	pledgeRate, err := parseNullAmount("pledgeCurrencyExchangeRate", m.PledgeCurrencyExchangeRate)
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	paid, err := parseDate("paymentDate", m.PaymentDate)
	if err != nil {
		return ledger.PaymentInput{}, err
	}
	allocs, err := parseAllocations(m.Allocations)
	if err != nil {
		return ledger.PaymentInput{}, err
	}

	return ledger.PaymentInput{
		PledgeID:                   m.PledgeID,
		Allocations:                allocs,
		PaymentPlanID:              m.PaymentPlanID,
		InstallmentScheduleID:      m.InstallmentScheduleID,
		Amount:                     amt,
		Currency:                   m.Currency,
		ExchangeRate:               rate,
		PledgeCurrencyExchangeRate: pledgeRate,
		PaymentDate:                paid,
		Status:                     models.PaymentStatus(m.Status),
		IsThirdParty:               m.IsThirdParty,
		PayerContactID:             m.PayerContactID,
		Notes:                      m.Notes,
	}, nil
}

func paymentPatch(m *UpdatePaymentRequest) (ledger.PaymentPatch, error) {
	var p ledger.PaymentPatch
	var err error

	if p.Amount, err = optAmount("amount", m.Amount); err != nil {
		return p, err
	}
	if p.ExchangeRate, err = optRate("exchangeRate", m.ExchangeRate); err != nil {
		return p, err
	}
	if p.PledgeCurrencyExchangeRate, err = optRate("pledgeCurrencyExchangeRate", m.PledgeCurrencyExchangeRate); err != nil {
		return p, err
	}
	if p.PaymentDate, err = optDate("paymentDate", m.PaymentDate); err != nil {
		return p, err
	}
	if m.Allocations != nil {
		if p.Allocations, err = parseAllocations(m.Allocations); err != nil {
			return p, err
		}
	}

	p.Status = optString[models.PaymentStatus](m.Status)
	p.Currency = m.Currency
	p.PledgeID = m.PledgeID
	p.PaymentPlanID = m.PaymentPlanID
	p.InstallmentScheduleID = m.InstallmentScheduleID
	p.IsThirdParty = m.IsThirdParty
	p.PayerContactID = m.PayerContactID
	p.Notes = m.Notes
	return p, nil
}
