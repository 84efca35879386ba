package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotStaked, "asset is not staked")
	err := fmt.Errorf("unstake: %w", New(CodeNotStaked, "asset 7 is not staked"))

	if !errors.Is(err, sentinel) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(err, New(CodeNotFound, "x")) {
		t.Fatal("expected mismatch for different code")
	}
}

func TestKindMapping(t *testing.T) {
	tests := []struct {
		code Code
		want Kind
	}{
		{CodeNotFound, KindNotFound},
		{CodeUnauthorized, KindUnauthorized},
		{CodeOverflow, KindInvalidArgument},
		{CodeRequirementsNotMet, KindPreconditionFailed},
		{CodeNotOwner, KindPreconditionFailed},
		{CodeRequestStale, KindPreconditionFailed},
		{CodeAlreadyFulfilled, KindAlreadyProcessed},
		{CodeAlreadyStaked, KindAlreadyProcessed},
		{CodeExternalUnavailable, KindExternalUnavailable},
		{CodeUnknown, KindInternal},
	}
	for _, tt := range tests {
		if got := tt.code.Kind(); got != tt.want {
			t.Errorf("%s.Kind() = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestHandleErrorRoundTrip(t *testing.T) {
	err := WithMetadata(CodePoolInactive, "pool 2 is inactive", map[string]string{"pool_id": "2"})

	grpcErr := HandleError(err)
	st, ok := status.FromError(grpcErr)
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %s", st.Code())
	}

	back := FromStatus(grpcErr)
	if GetCode(back) != CodePoolInactive {
		t.Fatalf("expected POOL_INACTIVE, got %s", GetCode(back))
	}
	if GetMetadata(back)["pool_id"] != "2" {
		t.Fatalf("expected metadata to survive, got %v", GetMetadata(back))
	}
}

func TestHandleErrorUnknown(t *testing.T) {
	st, _ := status.FromError(HandleError(errors.New("boom")))
	if st.Code() != codes.Internal {
		t.Fatalf("expected Internal, got %s", st.Code())
	}
	if HandleError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestFromStatusUnavailable(t *testing.T) {
	err := FromStatus(status.Error(codes.Unavailable, "connection refused"))
	if KindOf(err) != KindExternalUnavailable {
		t.Fatalf("expected external unavailable, got %s", KindOf(err))
	}
}
