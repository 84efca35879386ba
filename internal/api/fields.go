package api

import (
	"context"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Jenola344/EvoNFT/internal/asset"
	"github.com/Jenola344/EvoNFT/internal/auth"
	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

// CallerKey is the metadata key carrying the caller identity.
const CallerKey = "x-evonft-caller"

// CallerFrom returns the caller identity from incoming metadata, or the zero
// identity when none is present.
func CallerFrom(ctx context.Context) auth.Identity {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(CallerKey)
	if len(vals) == 0 {
		return ""
	}
	return auth.Identity(strings.TrimSpace(vals[0]))
}

// WithCaller attaches caller to outgoing metadata.
func WithCaller(ctx context.Context, caller auth.Identity) context.Context {
	return metadata.AppendToOutgoingContext(ctx, CallerKey, string(caller))
}

// #region decode
func badField(name, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, "field "+name+" "+reason,
		map[string]string{"field": name})
}

// uintField accepts a non-negative integral number or a decimal string.
func uintField(in *structpb.Struct, name string) (uint64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, badField(name, "is required")
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f >= 1<<64 {
			return 0, badField(name, "must be a non-negative integer")
		}
		return uint64(f), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, badField(name, "must be a non-negative integer")
		}
		return n, nil
	default:
		return 0, badField(name, "must be a number or decimal string")
	}
}

func optionalUint(in *structpb.Struct, name string) (uint64, error) {
	if _, ok := in.GetFields()[name]; !ok {
		return 0, nil
	}
	return uintField(in, name)
}

func assetField(in *structpb.Struct) (asset.ID, error) {
	n, err := uintField(in, "asset_id")
	return asset.ID(n), err
}

func stringField(in *structpb.Struct, name string) (string, error) {
	s := strings.TrimSpace(in.GetFields()[name].GetStringValue())
	if s == "" {
		return "", badField(name, "is required")
	}
	return s, nil
}

func boolField(in *structpb.Struct, name string) (bool, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return false, badField(name, "is required")
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, badField(name, "must be a boolean")
	}
	return b.BoolValue, nil
}

func uintList(in *structpb.Struct, name string) ([]uint64, error) {
	list := in.GetFields()[name].GetListValue()
	if list == nil {
		return nil, badField(name, "must be a list")
	}
	out := make([]uint64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		wrapped := &structpb.Struct{Fields: map[string]*structpb.Value{name: v}}
		n, err := uintField(wrapped, name)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func traitList(in *structpb.Struct, name string) ([]uint32, error) {
	vals, err := uintList(in, name)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(vals))
	for i, v := range vals {
		if v > math.MaxUint32 {
			return nil, badField(name, "holds a value out of range")
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// hashField parses an optional 32-byte hex hash.
func hashField(in *structpb.Struct, name string) ([32]byte, error) {
	var out [32]byte
	s := strings.TrimPrefix(strings.TrimSpace(in.GetFields()[name].GetStringValue()), "0x")
	if s == "" {
		return out, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, badField(name, "must be 32 bytes of hex")
	}
	copy(out[:], b)
	return out, nil
}

func durationField(in *structpb.Struct, name string) (time.Duration, error) {
	s := strings.TrimSpace(in.GetFields()[name].GetStringValue())
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, badField(name, "must be a non-negative duration")
	}
	return d, nil
}

// #endregion decode

// #region encode
func amount(n uint64) string { return strconv.FormatUint(n, 10) }

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func numbers[T ~uint32 | ~uint64](vals []T) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}

// #endregion encode
