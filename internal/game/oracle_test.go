package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"testing"
)

func mustOracle(t testing.TB, secret string) *Oracle {
	t.Helper()
	o, err := NewOracle([]byte(secret))
	if err != nil {
		t.Fatalf("NewOracle() error = %v", err)
	}
	return o
}

func TestNewOracle_MissingSecret(t *testing.T) {
	if _, err := NewOracle(nil); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("NewOracle(nil) error = %v, want ErrMissingSecret", err)
	}
	if _, err := NewOracle([]byte{}); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("NewOracle(empty) error = %v, want ErrMissingSecret", err)
	}
}

func TestNewInsecureOracle_Flagged(t *testing.T) {
	o, err := NewInsecureOracle([]byte("dev-only"))
	if err != nil {
		t.Fatalf("NewInsecureOracle() error = %v", err)
	}
	if !o.Insecure() {
		t.Error("insecure oracle not flagged")
	}
	if mustOracle(t, "prod-secret").Insecure() {
		t.Error("regular oracle flagged insecure")
	}
}

func TestOracle_MatchesHMACFirstByteParity(t *testing.T) {
	secret := "verification_test_seed"
	o := mustOracle(t, secret)

	for roundID := int64(0); roundID < 200; roundID++ {
		h := hmac.New(sha256.New, []byte(secret))
		h.Write([]byte(strconv.FormatInt(roundID, 10)))
		want := SideTail
		if h.Sum(nil)[0]%2 == 0 {
			want = SideHead
		}
		if got := o.ResultFor(roundID); got != want {
			t.Fatalf("ResultFor(%d) = %v, want %v", roundID, got, want)
		}
	}
}

func TestOracle_Deterministic(t *testing.T) {
	o := mustOracle(t, "deterministic_test_seed")
	other := mustOracle(t, "deterministic_test_seed")

	for _, roundID := range []int64{0, 1, 100000, 170000000, 1 << 50} {
		first := o.ResultFor(roundID)
		for i := 0; i < 3; i++ {
			if got := o.ResultFor(roundID); got != first {
				t.Fatalf("ResultFor(%d) changed between calls", roundID)
			}
		}
		if got := other.ResultFor(roundID); got != first {
			t.Errorf("same secret, different result for round %d", roundID)
		}
	}
}

func TestOracle_SecretChangesMapping(t *testing.T) {
	a := mustOracle(t, "secret-a")
	b := mustOracle(t, "secret-b")

	differ := 0
	for roundID := int64(0); roundID < 256; roundID++ {
		if a.ResultFor(roundID) != b.ResultFor(roundID) {
			differ++
		}
	}
	if differ == 0 {
		t.Error("different secrets produced identical outcomes for 256 rounds")
	}
	if a.Digest(42) == b.Digest(42) {
		t.Error("different secrets produced the same digest")
	}
}

func TestOracle_Distribution(t *testing.T) {
	o := mustOracle(t, "distribution-test")
	const total = 10000

	heads := 0
	for roundID := int64(0); roundID < total; roundID++ {
		if o.ResultFor(roundID) == SideHead {
			heads++
		}
	}

	// HMAC output is uniform; 10 sigma either side.
	if heads < 4500 || heads > 5500 {
		t.Errorf("heads = %d/%d, outside expected range", heads, total)
	}
}

func TestOracle_DigestAndVerify(t *testing.T) {
	o := mustOracle(t, "audit")

	digest := o.Digest(100000)
	if len(digest) != 64 {
		t.Errorf("Digest() length = %d, want 64", len(digest))
	}

	outcome := o.ResultFor(100000)
	if !o.Verify(100000, outcome) {
		t.Error("Verify() rejected the real outcome")
	}
	opposite := SideHead
	if outcome == SideHead {
		opposite = SideTail
	}
	if o.Verify(100000, opposite) {
		t.Error("Verify() accepted the wrong outcome")
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		raw     string
		want    Side
		wantErr bool
	}{
		{raw: "head", want: SideHead},
		{raw: "tail", want: SideTail},
		{raw: " Head ", want: SideHead},
		{raw: "TAIL", want: SideTail},
		{raw: "heads", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "edge", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSide(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBet) {
					t.Errorf("ParseSide(%q) error = %v, want ErrInvalidBet", tt.raw, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseSide(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
			}
		})
	}
}

func BenchmarkOracle_ResultFor(b *testing.B) {
	o := mustOracle(b, "benchmark_server_seed")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o.ResultFor(int64(i))
	}
}

func TestOracle_Commitment(t *testing.T) {
	o := mustOracle(t, "commit-me")
	want := sha256.Sum256([]byte("commit-me"))

	if got := o.Commitment(); got != hex.EncodeToString(want[:]) {
		t.Errorf("Commitment() = %s", got)
	}
	if o.Commitment() == mustOracle(t, "other").Commitment() {
		t.Error("different secrets share a commitment")
	}
}
