package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
	"github.com/Jenola344/EvoNFT/internal/evolution"
)

// #region mock
type mockService struct {
	requestResp *structpb.Struct
	requestErr  error
	requestIn   *structpb.Struct

	valueResp *structpb.Struct
	valueErr  error
}

func (m *mockService) RequestRandomWords(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.requestIn = in
	return m.requestResp, m.requestErr
}

func (m *mockService) LatestValue(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return m.valueResp, m.valueErr
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

// #endregion mock

// #region client-tests
func TestRequestRandomWords_Success(t *testing.T) {
	mock := &mockService{requestResp: mustStruct(t, map[string]interface{}{"request_id": "abc"})}
	c := NewClientWithService(mock)

	id, err := c.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2, Confirmations: 3})
	if err != nil {
		t.Fatalf("RequestRandomWords: %v", err)
	}
	if id != "abc" {
		t.Fatalf("expected abc, got %s", id)
	}
	if got := mock.requestIn.GetFields()["num_words"].GetNumberValue(); got != 2 {
		t.Fatalf("expected num_words 2, got %v", got)
	}
	if got := mock.requestIn.GetFields()["confirmations"].GetNumberValue(); got != 3 {
		t.Fatalf("expected confirmations 3, got %v", got)
	}
}

func TestRequestRandomWords_Error(t *testing.T) {
	c := NewClientWithService(&mockService{requestErr: status.Error(codes.Unavailable, "down")})
	_, err := c.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2})
	if !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}
}

func TestRequestRandomWords_EmptyID(t *testing.T) {
	c := NewClientWithService(&mockService{requestResp: mustStruct(t, map[string]interface{}{})})
	_, err := c.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2})
	if !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}
}

func TestLatestValue(t *testing.T) {
	c := NewClientWithService(&mockService{
		valueResp: mustStruct(t, map[string]interface{}{"available": true, "value": "-12"}),
	})
	v, err := c.LatestValue(context.Background(), "weather")
	if err != nil {
		t.Fatalf("LatestValue: %v", err)
	}
	if v != -12 {
		t.Fatalf("expected -12, got %d", v)
	}

	c = NewClientWithService(&mockService{valueResp: mustStruct(t, map[string]interface{}{"available": false})})
	if _, err := c.LatestValue(context.Background(), "weather"); !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}

	c = NewClientWithService(&mockService{valueErr: errors.New("boom")})
	if _, err := c.LatestValue(context.Background(), "weather"); !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}
}

func TestNewClientLazyDial(t *testing.T) {
	c, err := NewClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer c.Close()
}

// #endregion client-tests

// #region loopback-tests
type fakeGateway struct {
	values map[string]string
}

func (f *fakeGateway) RequestRandomWords(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n := int(req.GetFields()["num_words"].GetNumberValue())
	return structpb.NewStruct(map[string]interface{}{"request_id": "remote-" + string(rune('0'+n))})
}

func (f *fakeGateway) LatestValue(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := f.values[req.GetFields()["series"].GetStringValue()]
	return structpb.NewStruct(map[string]interface{}{"available": ok, "value": v})
}

func TestClientLoopback(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterServer(srv, &fakeGateway{values: map[string]string{"weather": "33"}})
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	c := NewClientWithService(NewServiceClient(conn))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := c.RequestRandomWords(ctx, evolution.RandomnessRequest{NumWords: 2})
	if err != nil {
		t.Fatalf("RequestRandomWords: %v", err)
	}
	if id != "remote-2" {
		t.Fatalf("expected remote-2, got %s", id)
	}
	v, err := c.LatestValue(ctx, "weather")
	if err != nil {
		t.Fatalf("LatestValue: %v", err)
	}
	if v != 33 {
		t.Fatalf("expected 33, got %d", v)
	}
	if _, err := c.LatestValue(ctx, "humidity"); !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}
}

// #endregion loopback-tests

// #region words-tests
func TestWordsRoundTrip(t *testing.T) {
	in := []*uint256.Int{uint256.NewInt(0), uint256.NewInt(12345), new(uint256.Int).SetAllOne()}
	out, err := DecodeWords(EncodeWords(in))
	if err != nil {
		t.Fatalf("DecodeWords: %v", err)
	}
	for i := range in {
		if !in[i].Eq(out[i]) {
			t.Fatalf("word %d: expected %s, got %s", i, in[i].Dec(), out[i].Dec())
		}
	}
}

func TestDecodeWordsHexAndErrors(t *testing.T) {
	list := &structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("0xff")}}
	out, err := DecodeWords(list)
	if err != nil {
		t.Fatalf("DecodeWords: %v", err)
	}
	if out[0].Uint64() != 255 {
		t.Fatalf("expected 255, got %d", out[0].Uint64())
	}

	bad := &structpb.ListValue{Values: []*structpb.Value{structpb.NewNumberValue(1)}}
	if _, err := DecodeWords(bad); err == nil {
		t.Fatal("expected error for non-string word")
	}
	bad = &structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("not a number")}}
	if _, err := DecodeWords(bad); err == nil {
		t.Fatal("expected error for malformed word")
	}
}

// #endregion words-tests

// #region simulator-tests
type recordingHandler struct {
	mu    sync.Mutex
	calls map[string][]*uint256.Int
	done  chan string
}

func (r *recordingHandler) OnRandomnessFulfilled(_ context.Context, id string, words []*uint256.Int) (evolution.Outcome, error) {
	r.mu.Lock()
	r.calls[id] = words
	r.mu.Unlock()
	r.done <- id
	return evolution.Outcome{RequestID: id}, nil
}

func TestSimulatorDeliversOnce(t *testing.T) {
	h := &recordingHandler{calls: map[string][]*uint256.Int{}, done: make(chan string, 4)}
	sim := NewSimulator(0)
	sim.SetHandler(h)
	sim.SetSource(func(n uint32) ([]*uint256.Int, error) {
		out := make([]*uint256.Int, n)
		for i := range out {
			out[i] = uint256.NewInt(uint64(i + 7))
		}
		return out, nil
	})
	defer sim.Close()

	id, err := sim.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2})
	if err != nil {
		t.Fatalf("RequestRandomWords: %v", err)
	}
	select {
	case got := <-h.done:
		if got != id {
			t.Fatalf("delivered %s, expected %s", got, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fulfillment not delivered")
	}
	sim.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) != 1 || len(h.calls[id]) != 2 || h.calls[id][0].Uint64() != 7 {
		t.Fatalf("unexpected deliveries %+v", h.calls)
	}
}

func TestSimulatorCloseDropsPending(t *testing.T) {
	h := &recordingHandler{calls: map[string][]*uint256.Int{}, done: make(chan string, 4)}
	sim := NewSimulator(time.Hour)
	sim.SetHandler(h)

	if _, err := sim.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2}); err != nil {
		t.Fatalf("RequestRandomWords: %v", err)
	}
	sim.Close()
	if len(h.calls) != 0 {
		t.Fatal("closed simulator delivered a fulfillment")
	}
	if _, err := sim.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2}); !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE after close, got %v", err)
	}
}

func TestSimulatorWithoutHandler(t *testing.T) {
	sim := NewSimulator(0)
	defer sim.Close()
	if _, err := sim.RequestRandomWords(context.Background(), evolution.RandomnessRequest{NumWords: 2}); !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}
}

func TestCryptoWords(t *testing.T) {
	words, err := CryptoWords(3)
	if err != nil {
		t.Fatalf("CryptoWords: %v", err)
	}
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(words))
	}
}

// #endregion simulator-tests

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(map[string]int64{"weather": 70})
	ctx := context.Background()

	if v, err := o.LatestValue(ctx, "weather"); err != nil || v != 70 {
		t.Fatalf("expected 70, got %d (%v)", v, err)
	}
	o.Set("weather", 12)
	if v, _ := o.LatestValue(ctx, "weather"); v != 12 {
		t.Fatalf("expected 12, got %d", v)
	}
	o.Clear("weather")
	if _, err := o.LatestValue(ctx, "weather"); !apperrors.IsCode(err, apperrors.CodeExternalUnavailable) {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %v", err)
	}
}
