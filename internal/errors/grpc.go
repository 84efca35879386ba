package errors

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HandleError converts domain errors to gRPC status for client responses.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.ToGRPCStatus()
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	// Unknown error - return internal with generic message
	return status.Error(codes.Internal, "an unexpected error occurred")
}

// FromStatus recovers a domain error from a gRPC status produced by HandleError.
// Statuses without domain details are classified by their gRPC code.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == Domain {
			return &Error{Code: Code(info.Reason), Message: st.Message(), Metadata: info.Metadata}
		}
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return Wrap(CodeExternalUnavailable, "remote call failed", err)
	case codes.NotFound:
		return Wrap(CodeNotFound, st.Message(), err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return Wrap(CodeUnauthorized, st.Message(), err)
	case codes.InvalidArgument:
		return Wrap(CodeInvalidArgument, st.Message(), err)
	default:
		return Wrap(CodeInternal, st.Message(), err)
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// KindOf returns the failure category for any error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return GetCode(err).Kind()
}

// GetMetadata extracts metadata from an error if present.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
