package server

import (
	"context"
	"errors"

	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[gameerr.Kind]codes.Code{
	gameerr.KindValidation: codes.InvalidArgument,
	gameerr.KindConflict:   codes.FailedPrecondition,
	gameerr.KindNotFound:   codes.NotFound,
	gameerr.KindTransition: codes.FailedPrecondition,
	gameerr.KindInternal:   codes.Internal,
}

// toStatus maps an error to a gRPC status. Internal errors never leak their message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	var gerr *gameerr.Error
	if !errors.As(err, &gerr) {
		return status.Error(codes.Internal, "internal server error")
	}
	code := kindCodes[gerr.Kind]
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, gerr.Error())
}
