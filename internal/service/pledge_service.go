package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// PledgeService implements the read-only Connect PledgeService.
type PledgeService struct {
	store storage.Store
}

// NewPledgeService creates a PledgeService with the given storage backend.
func NewPledgeService(store storage.Store) *PledgeService {
	return &PledgeService{store: store}
}

// GetPledge returns a pledge's stored totals and its live plans.
func (s *PledgeService) GetPledge(ctx context.Context, req *connect.Request[GetPledgeRequest]) (*connect.Response[GetPledgeResponse], error) {
	if req.Msg.ID == "" {
		return nil, toConnectError(GetPledgeProcedure, apperr.Validation("id", "pledge id is required"))
	}

	pledge, err := s.store.GetPledge(ctx, req.Msg.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, toConnectError(GetPledgeProcedure, apperr.NotFound("pledge", req.Msg.ID))
		}
		return nil, toConnectError(GetPledgeProcedure, apperr.Persistence("load pledge", err))
	}

	plans, err := s.store.ListPlansByPledge(ctx, pledge.ID)
	if err != nil {
		return nil, toConnectError(GetPledgeProcedure, apperr.Persistence("list plans", err))
	}

	return connect.NewResponse(&GetPledgeResponse{
		Pledge: toPledge(pledge),
		Plans:  mapSlice(plans, toPlan),
	}), nil
}
