// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var e *Error
	if errors.As(err, &e) {
		return status.Error(grpcCode(e.Kind), e.Msg)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func grpcCode(k Kind) codes.Code {
	switch k {
	case KindInvalidArgument:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindForbidden:
		return codes.PermissionDenied
	case KindConflict:
		return codes.Aborted
	case KindTransient:
		return codes.Unavailable
	case KindUnauthenticated:
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}

// HTTPStatus is the HTTP gateway's counterpart of Map. It also returns the
// client-facing message.
func HTTPStatus(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindInvalidArgument:
			return http.StatusBadRequest, e.Msg
		case KindNotFound:
			return http.StatusNotFound, e.Msg
		case KindForbidden:
			return http.StatusForbidden, e.Msg
		case KindConflict:
			return http.StatusConflict, e.Msg
		case KindTransient:
			return http.StatusServiceUnavailable, e.Msg
		case KindUnauthenticated:
			return http.StatusUnauthorized, e.Msg
		}
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "record not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	}
	return http.StatusInternalServerError, "internal error"
}
