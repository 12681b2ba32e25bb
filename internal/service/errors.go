package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/pledgeledger/internal/apperr"
)

// Response metadata keys carrying the structured parts of an engine error.
const (
	FieldHeader        = "Pledgeledger-Field"
	DetailHeaderPrefix = "Pledgeledger-Detail-"
)

// codeFor maps an engine error kind to a connect code.
func codeFor(kind apperr.Kind) connect.Code {
	switch kind {
	case apperr.KindValidation:
		return connect.CodeInvalidArgument
	case apperr.KindNotFound:
		return connect.CodeNotFound
	case apperr.KindConflict:
		return connect.CodeFailedPrecondition
	default:
		return connect.CodeInternal
	}
}

// toConnectError converts an engine error for the wire. The offending field
// and any details travel as error metadata.
func toConnectError(procedure string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("Unclassified error", "procedure", procedure, "error", err)
		return connect.NewError(connect.CodeInternal, err)
	}

	code := codeFor(appErr.Kind)
	if code == connect.CodeInternal {
		slog.Error(procedure+" failed", "error", err)
	}
	cerr := connect.NewError(code, err)
	if appErr.Field != "" {
		cerr.Meta().Set(FieldHeader, appErr.Field)
	}
	for k, v := range appErr.Details {
		cerr.Meta().Set(DetailHeaderPrefix+k, v)
	}
	return cerr
}
