package api

import (
	"context"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

// #region field-tests
func TestUintField(t *testing.T) {
	in := mustStruct(t, map[string]interface{}{
		"n":        42,
		"s":        "18446744073709551615",
		"neg":      -1,
		"frac":     1.5,
		"bad":      "twelve",
		"wrongish": true,
	})
	if v, err := uintField(in, "n"); err != nil || v != 42 {
		t.Fatalf("expected 42, got %d (%v)", v, err)
	}
	if v, err := uintField(in, "s"); err != nil || v != ^uint64(0) {
		t.Fatalf("expected max uint64, got %d (%v)", v, err)
	}
	for _, name := range []string{"neg", "frac", "bad", "wrongish", "missing"} {
		if _, err := uintField(in, name); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
			t.Fatalf("%s: expected INVALID_ARGUMENT, got %v", name, err)
		}
	}
	if v, err := optionalUint(in, "missing"); err != nil || v != 0 {
		t.Fatalf("optional missing field: %d (%v)", v, err)
	}
}

func TestTraitListAndHash(t *testing.T) {
	in := mustStruct(t, map[string]interface{}{
		"traits": []interface{}{1, "2", 3},
		"hash":   "0xab" + strings.Repeat("00", 31),
		"short":  "abcd",
	})
	traits, err := traitList(in, "traits")
	if err != nil {
		t.Fatalf("traitList: %v", err)
	}
	if len(traits) != 3 || traits[1] != 2 {
		t.Fatalf("unexpected traits %v", traits)
	}
	h, err := hashField(in, "hash")
	if err != nil {
		t.Fatalf("hashField: %v", err)
	}
	if h[0] != 0xab || h[31] != 0 {
		t.Fatalf("unexpected hash %x", h)
	}
	if _, err := hashField(in, "short"); err == nil {
		t.Fatal("expected error for short hash")
	}
	if h, err := hashField(in, "absent"); err != nil || h != [32]byte{} {
		t.Fatalf("absent hash should be zero, got %x (%v)", h, err)
	}
}

func TestDurationField(t *testing.T) {
	in := mustStruct(t, map[string]interface{}{"ok": "36h", "neg": "-1s", "junk": "soon"})
	if d, err := durationField(in, "ok"); err != nil || d.Hours() != 36 {
		t.Fatalf("expected 36h, got %v (%v)", d, err)
	}
	for _, name := range []string{"neg", "junk"} {
		if _, err := durationField(in, name); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if d, err := durationField(in, "absent"); err != nil || d != 0 {
		t.Fatalf("absent duration should be zero, got %v (%v)", d, err)
	}
}

func TestCallerFrom(t *testing.T) {
	if got := CallerFrom(context.Background()); got != "" {
		t.Fatalf("expected empty caller, got %q", got)
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(CallerKey, " alice "))
	if got := CallerFrom(ctx); got != auth.Identity("alice") {
		t.Fatalf("expected alice, got %q", got)
	}
}

// #endregion field-tests

// #region desc-tests
func TestServiceDescCoversEveryMethod(t *testing.T) {
	if len(serviceDesc.Methods) != len(methods) {
		t.Fatalf("descriptor has %d methods, table has %d", len(serviceDesc.Methods), len(methods))
	}
	seen := map[string]bool{}
	for _, m := range serviceDesc.Methods {
		if seen[m.MethodName] {
			t.Fatalf("duplicate method %s", m.MethodName)
		}
		seen[m.MethodName] = true
	}
	if !seen["FulfillRandomWords"] {
		t.Fatal("FulfillRandomWords not exposed")
	}
	if FullMethod("Mint") != "/evonft.v1.EvoService/Mint" {
		t.Fatalf("unexpected full method %s", FullMethod("Mint"))
	}
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	svc := NewService(Backend{})
	var handler grpc.MethodHandler
	for _, m := range serviceDesc.Methods {
		if m.MethodName == "Mint" {
			handler = m.Handler
		}
	}
	// Missing owner fails validation before the backend is touched.
	_, err := handler(svc, context.Background(), func(interface{}) error { return nil }, nil)
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument status, got %v", err)
	}
	if !apperrors.IsCode(apperrors.FromStatus(err), apperrors.CodeInvalidArgument) {
		t.Fatalf("status lost the domain code: %v", err)
	}
}

// #endregion desc-tests
