package evolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	apperrors "github.com/Jenola344/EvoNFT/internal/errors"
)

func TestSelectNextStageModulo(t *testing.T) {
	path := []uint64{2, 3, 4}
	cases := map[uint64]uint64{0: 2, 1: 3, 2: 4, 3: 2, 10: 3}
	for word, want := range cases {
		if got := SelectNextStage(path, uint256.NewInt(word)); got != want {
			t.Fatalf("word %d: expected stage %d, got %d", word, want, got)
		}
	}
}

func TestSelectNextStageLargeWord(t *testing.T) {
	// 2^256 - 1 mod 2 = 1
	allOnes := new(uint256.Int).SetAllOne()
	if got := SelectNextStage([]uint64{10, 11}, allOnes); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestDeriveTraitsSlicesWord(t *testing.T) {
	// 16-bit fields, low to high: 5, 199, 0, 65535; bit 64 field is 42.
	word := new(uint256.Int).SetUint64(5 | 199<<16 | 0<<32 | 65535<<48)
	high := new(uint256.Int).Lsh(uint256.NewInt(42), 64)
	word.Or(word, high)

	traits := DeriveTraits(word, 8)
	want := []uint32{6, 100, 1, 36, 51}
	for i, v := range want {
		if traits[i] != v {
			t.Fatalf("trait %d: expected %d, got %d (all %v)", i, v, traits[i], traits)
		}
	}
}

func TestDeriveTraitsBounded(t *testing.T) {
	inputs := []*uint256.Int{
		uint256.NewInt(0),
		new(uint256.Int).SetAllOne(),
		uint256.NewInt(0xDEADBEEFCAFEBABE),
	}
	for _, w := range inputs {
		for _, v := range DeriveTraits(w, 9223372036854775807) {
			if v < 1 || v > 100 {
				t.Fatalf("trait %d out of range for word %s", v, w.Hex())
			}
		}
	}
}

func TestNormalizeWeather(t *testing.T) {
	if NormalizeWeather(73, nil) != 73 {
		t.Fatal("positive reading should pass through")
	}
	if NormalizeWeather(0, nil) != NeutralWeather {
		t.Fatal("zero reading should fall back")
	}
	if NormalizeWeather(-4, nil) != NeutralWeather {
		t.Fatal("negative reading should fall back")
	}
	if NormalizeWeather(90, errors.New("timeout")) != NeutralWeather {
		t.Fatal("failed reading should fall back")
	}
}

func TestMemoryRequestStore(t *testing.T) {
	s := NewMemoryRequestStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Put(ctx, Request{ID: "b", AssetID: 2, CreatedAt: t0.Add(time.Second)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, Request{ID: "a", AssetID: 1, CreatedAt: t0}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, Request{ID: "a"}); !apperrors.IsCode(err, apperrors.CodeDuplicateRequest) {
		t.Fatalf("expected DUPLICATE_REQUEST, got %v", err)
	}

	pending, _ := s.Pending(ctx)
	if len(pending) != 2 || pending[0].ID != "a" {
		t.Fatalf("expected pending ordered by creation, got %+v", pending)
	}

	if err := s.MarkFulfilled(ctx, "a", t0); err != nil {
		t.Fatalf("MarkFulfilled: %v", err)
	}
	if err := s.MarkFulfilled(ctx, "a", t0); !apperrors.IsCode(err, apperrors.CodeAlreadyFulfilled) {
		t.Fatalf("expected ALREADY_FULFILLED, got %v", err)
	}
	if err := s.Reopen(ctx, "a"); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if req, _ := s.Get(ctx, "a"); req.Fulfilled {
		t.Fatal("reopened request should be pending")
	}
	if _, err := s.Get(ctx, "zzz"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
