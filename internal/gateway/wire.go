// Package gateway adapts the external randomness and oracle services: a gRPC
// client for a remote gateway, a local asynchronous simulator and a static
// oracle feed. The wire contract is proto/evonft/gateway/v1/gateway.proto.
package gateway

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire-names
const (
	ServiceName = "evonft.gateway.v1.RandomnessGateway"

	MethodRequestRandomWords = "/" + ServiceName + "/RequestRandomWords"
	MethodLatestValue        = "/" + ServiceName + "/LatestValue"
)

// #endregion wire-names

// #region words
// EncodeWords renders random words as decimal strings.
func EncodeWords(words []*uint256.Int) *structpb.ListValue {
	values := make([]*structpb.Value, len(words))
	for i, w := range words {
		if w == nil {
			w = new(uint256.Int)
		}
		values[i] = structpb.NewStringValue(w.Dec())
	}
	return &structpb.ListValue{Values: values}
}

// DecodeWords parses decimal or 0x-prefixed hex strings into random words.
func DecodeWords(list *structpb.ListValue) ([]*uint256.Int, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]*uint256.Int, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("word %d: expected string", i)
		}
		w, err := parseWord(s.StringValue)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}

func parseWord(s string) (*uint256.Int, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

// #endregion words

// #region server-desc
// Server is implemented by a randomness gateway.
type Server interface {
	RequestRandomWords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	LatestValue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterServer registers a gateway implementation on s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestRandomWords", Handler: unaryHandler(MethodRequestRandomWords, Server.RequestRandomWords)},
		{MethodName: "LatestValue", Handler: unaryHandler(MethodLatestValue, Server.LatestValue)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "evonft/gateway/v1/gateway.proto",
}

func unaryHandler(method string, call func(Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(Server), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion server-desc
