// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/pledgeledger/internal/models"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines per-entity CRUD operations used by the engine.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the engine. Implementations are not required to offer
// multi-statement transactions; the engine compensates on partial failure.
//
// Create methods populate ID, CreatedAt and UpdatedAt when unset.
type Store interface {
	PledgeStore
	ContactStore
	PlanStore
	InstallmentStore
	PaymentStore
	AllocationStore
	RateStore
	ConversionLogStore

	// Close releases any resources held by the store.
	Close() error
}

// PledgeStore persists pledges. Only derived totals are updated by the engine.
type PledgeStore interface {
	CreatePledge(ctx context.Context, pledge *models.Pledge) error
	GetPledge(ctx context.Context, pledgeID string) (*models.Pledge, error)
	UpdatePledgeTotals(ctx context.Context, pledge *models.Pledge) error
}

// ContactStore answers contact existence checks.
type ContactStore interface {
	CreateContact(ctx context.Context, contact *models.Contact) error
	ContactExists(ctx context.Context, contactID string) (bool, error)
}

// PlanStore persists payment plans.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *models.PaymentPlan) error

	// GetPlan returns the plan, including soft-deleted ones.
	GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error)

	// ListPlansByPledge returns the non-deleted plans of a pledge.
	ListPlansByPledge(ctx context.Context, pledgeID string) ([]*models.PaymentPlan, error)

	UpdatePlan(ctx context.Context, plan *models.PaymentPlan) error

	// DeletePlan hard-deletes a plan row. Used for compensation only.
	DeletePlan(ctx context.Context, planID string) error
}

// InstallmentStore persists installment schedules.
type InstallmentStore interface {
	CreateInstallment(ctx context.Context, inst *models.InstallmentSchedule) error
	GetInstallment(ctx context.Context, installmentID string) (*models.InstallmentSchedule, error)

	// ListInstallmentsByPlan returns installments ordered by date.
	ListInstallmentsByPlan(ctx context.Context, planID string) ([]*models.InstallmentSchedule, error)

	UpdateInstallment(ctx context.Context, inst *models.InstallmentSchedule) error
	DeleteInstallment(ctx context.Context, installmentID string) error
}

// PaymentStore persists payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)

	// ListPaymentsByPledge returns the direct payments of a pledge.
	ListPaymentsByPledge(ctx context.Context, pledgeID string) ([]*models.Payment, error)

	// ListPaymentsByPlan returns every payment attached to a plan.
	ListPaymentsByPlan(ctx context.Context, planID string) ([]*models.Payment, error)

	UpdatePayment(ctx context.Context, payment *models.Payment) error
	DeletePayment(ctx context.Context, paymentID string) error
}

// AllocationStore persists split-payment allocations.
type AllocationStore interface {
	CreateAllocation(ctx context.Context, alloc *models.PaymentAllocation) error
	ListAllocationsByPayment(ctx context.Context, paymentID string) ([]*models.PaymentAllocation, error)

	// ListAllocationsByPledge returns allocations targeting a pledge with
	// PaymentStatus populated from the parent payment.
	ListAllocationsByPledge(ctx context.Context, pledgeID string) ([]*models.PaymentAllocation, error)

	UpdateAllocation(ctx context.Context, alloc *models.PaymentAllocation) error
	DeleteAllocation(ctx context.Context, allocationID string) error
}

// RateStore is the currency-rate store. Rows are owned by an external
// collaborator; the engine only reads them.
type RateStore interface {
	// RateOn returns the row for (base, target) effective exactly on date.
	RateOn(ctx context.Context, base, target string, date time.Time) (*models.ExchangeRate, error)

	// LatestRate returns the most recent row for (base, target) on or before date.
	LatestRate(ctx context.Context, base, target string, onOrBefore time.Time) (*models.ExchangeRate, error)

	// UpsertRate inserts or replaces the row for (base, target, date).
	UpsertRate(ctx context.Context, rate *models.ExchangeRate) error
}

// ConversionLogStore is the append-only conversion audit sink.
type ConversionLogStore interface {
	AppendConversionLog(ctx context.Context, entry *models.ConversionLog) error
	ListConversionLogs(ctx context.Context, paymentID string) ([]*models.ConversionLog, error)
}
