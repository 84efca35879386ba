package gateway

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
)

// #region service
// Service is the client side of the gateway RPCs.
type Service interface {
	RequestRandomWords(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LatestValue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type serviceClient struct {
	cc grpc.ClientConnInterface
}

// NewServiceClient returns a Service that invokes the gateway over cc.
func NewServiceClient(cc grpc.ClientConnInterface) Service {
	return &serviceClient{cc: cc}
}

func (c *serviceClient) RequestRandomWords(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRequestRandomWords, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *serviceClient) LatestValue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodLatestValue, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service

// #region client-struct
// Client talks to a remote randomness gateway. It is both the machine's
// RandomnessProvider and its OracleFeed.
type Client struct {
	conn *grpc.ClientConn
	svc  Service
}

var (
	_ evolution.RandomnessProvider = (*Client)(nil)
	_ evolution.OracleFeed         = (*Client)(nil)
)

// #endregion client-struct

// #region constructor
// NewClient connects to the gateway at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, svc: NewServiceClient(conn)}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
func NewClientWithService(svc Service) *Client {
	return &Client{svc: svc}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region request-random-words
// RequestRandomWords implements evolution.RandomnessProvider.
func (c *Client) RequestRandomWords(ctx context.Context, req evolution.RandomnessRequest) (string, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"num_words":     float64(req.NumWords),
		"confirmations": float64(req.Confirmations),
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.svc.RequestRandomWords(ctx, in)
	if err != nil {
		return "", unavailable("request random words rpc", err)
	}
	id := resp.GetFields()["request_id"].GetStringValue()
	if id == "" {
		return "", apperrors.New(apperrors.CodeExternalUnavailable, "gateway returned an empty request id")
	}
	return id, nil
}

// #endregion request-random-words

// #region latest-value
// LatestValue implements evolution.OracleFeed.
func (c *Client) LatestValue(ctx context.Context, series string) (int64, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"series": series})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.svc.LatestValue(ctx, in)
	if err != nil {
		return 0, unavailable("latest value rpc", err)
	}
	fields := resp.GetFields()
	if !fields["available"].GetBoolValue() {
		return 0, apperrors.WithMetadata(apperrors.CodeExternalUnavailable, "series "+series+" unavailable",
			map[string]string{"series": series})
	}
	v, err := strconv.ParseInt(fields["value"].GetStringValue(), 10, 64)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeExternalUnavailable, "series "+series+" returned a malformed value", err)
	}
	return v, nil
}

// #endregion latest-value

func unavailable(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeExternalUnavailable, op, apperrors.FromStatus(err))
}
