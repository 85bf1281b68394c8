package auth

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testCodec() *KeyCodec {
	return NewKeyCodec(bcrypt.MinCost)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy pool closed") }

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func TestGenerate(t *testing.T) {
	c := testCodec()

	t.Run("returns three non-empty values", func(t *testing.T) {
		k, err := c.Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if k.Plaintext == "" || k.Hash == "" || k.Prefix == "" {
			t.Errorf("Generate() returned empty field: %+v", k)
		}
	})

	t.Run("key has pst_ scheme and fixed length", func(t *testing.T) {
		k, err := c.Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if !strings.HasPrefix(k.Plaintext, "pst_") {
			t.Errorf("key = %q, want prefix %q", k.Plaintext, "pst_")
		}
		if len(k.Plaintext) != 47 {
			t.Errorf("len(key) = %d, want 47", len(k.Plaintext))
		}
		if len(k.Plaintext) != KeyLength {
			t.Errorf("KeyLength = %d, generated %d", KeyLength, len(k.Plaintext))
		}
		if strings.ContainsAny(k.Plaintext[4:], "+/=") {
			t.Errorf("random part %q is not unpadded base64url", k.Plaintext[4:])
		}
	})

	t.Run("prefix is first eight characters", func(t *testing.T) {
		k, err := c.Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if k.Prefix != k.Plaintext[:8] {
			t.Errorf("prefix = %q, want %q", k.Prefix, k.Plaintext[:8])
		}
	})

	t.Run("hash verifies and differs from plaintext", func(t *testing.T) {
		k, err := c.Generate()
		if err != nil {
			t.Fatalf("Generate() error: %v", err)
		}
		if k.Hash == k.Plaintext {
			t.Error("hash equals plaintext")
		}
		if !c.Verify(k.Plaintext, k.Hash) {
			t.Error("Verify() = false for freshly generated key")
		}
		cost, err := bcrypt.Cost([]byte(k.Hash))
		if err != nil {
			t.Fatalf("bcrypt.Cost() error: %v", err)
		}
		if cost != bcrypt.MinCost {
			t.Errorf("hash cost = %d, want %d", cost, bcrypt.MinCost)
		}
	})

	t.Run("rng failure surfaces ErrRNGUnavailable", func(t *testing.T) {
		bad := NewKeyCodec(bcrypt.MinCost).WithRandom(failingReader{})
		_, err := bad.Generate()
		if !errors.Is(err, ErrRNGUnavailable) {
			t.Errorf("Generate() error = %v, want ErrRNGUnavailable", err)
		}
	})

	t.Run("short read surfaces ErrRNGUnavailable", func(t *testing.T) {
		bad := NewKeyCodec(bcrypt.MinCost).WithRandom(io.LimitReader(bytes.NewReader(make([]byte, 64)), 5))
		_, err := bad.NewPlaintext()
		if !errors.Is(err, ErrRNGUnavailable) {
			t.Errorf("NewPlaintext() error = %v, want ErrRNGUnavailable", err)
		}
	})
}

func TestNewPlaintext_Unique(t *testing.T) {
	c := testCodec()
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		p, err := c.NewPlaintext()
		if err != nil {
			t.Fatalf("NewPlaintext() error: %v", err)
		}
		if _, dup := seen[p]; dup {
			t.Fatalf("collision after %d generations: %q", i, p)
		}
		seen[p] = struct{}{}
	}
}

func TestNewKeyCodec_CostBounds(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultBcryptCost},
		{-1, DefaultBcryptCost},
		{bcrypt.MaxCost + 1, DefaultBcryptCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{10, 10},
	}
	for _, tt := range tests {
		if got := NewKeyCodec(tt.in).Cost(); got != tt.want {
			t.Errorf("NewKeyCodec(%d).Cost() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerify(t *testing.T) {
	c := testCodec()
	k, err := c.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	tests := []struct {
		name      string
		candidate string
		hash      string
		want      bool
	}{
		{"correct key", k.Plaintext, k.Hash, true},
		{"wrong key", "pst_wrongkey", k.Hash, false},
		{"empty candidate", "", k.Hash, false},
		{"empty hash", k.Plaintext, "", false},
		{"both empty", "", "", false},
		{"malformed hash", k.Plaintext, "not-a-bcrypt-hash", false},
		{"truncated hash", k.Plaintext, k.Hash[:20], false},
		{"plaintext as hash", k.Plaintext, k.Plaintext, false},
		{"over-long candidate", strings.Repeat("x", 200), k.Hash, false},
		{"binary junk", "\x00\xff\xfe", "$2a$04$\x00\x01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Verify(tt.candidate, tt.hash); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDummyHash(t *testing.T) {
	c := testCodec()
	h1 := c.DummyHash()
	h2 := c.DummyHash()
	if h1 == "" {
		t.Fatal("DummyHash() returned empty string")
	}
	if h1 != h2 {
		t.Error("DummyHash() is not stable across calls")
	}
	if cost, err := bcrypt.Cost([]byte(h1)); err != nil || cost != c.Cost() {
		t.Errorf("DummyHash() cost = %d (err %v), want %d", cost, err, c.Cost())
	}

	k, _ := c.Generate()
	if c.Verify(k.Plaintext, h1) {
		t.Error("generated key verified against the dummy hash")
	}
}

func TestDummyHash_FollowsStoredCost(t *testing.T) {
	c := NewKeyCodec(bcrypt.MinCost)
	before := c.DummyHash()

	legacy, err := bcrypt.GenerateFromPassword([]byte("pst_legacy"), bcrypt.MinCost+2)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	c.ObserveStoredHash(string(legacy))

	after := c.DummyHash()
	if after == before {
		t.Fatal("DummyHash() was not recomputed after a higher stored cost was observed")
	}
	if cost, _ := bcrypt.Cost([]byte(after)); cost != bcrypt.MinCost+2 {
		t.Errorf("DummyHash() cost = %d, want %d", cost, bcrypt.MinCost+2)
	}
	if c.Cost() != bcrypt.MinCost {
		t.Errorf("Cost() = %d, new keys must keep the configured cost", c.Cost())
	}

	// lower costs and junk never pull it back down
	low, _ := bcrypt.GenerateFromPassword([]byte("pst_low"), bcrypt.MinCost)
	c.ObserveStoredHash(string(low))
	c.ObserveStoredHash("not-a-hash")
	c.ObserveStoredHash("")
	if got := c.DummyHash(); got != after {
		t.Error("DummyHash() changed after observing a lower cost or a malformed hash")
	}
}

// ---------------------------------------------------------------------------
// ExtractAPIKeyFromHeader
// ---------------------------------------------------------------------------

func TestExtractAPIKeyFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer token", "Bearer pst_abc123xyz", "pst_abc123xyz"},
		{"lowercase bearer", "bearer pst_abc123xyz", "pst_abc123xyz"},
		{"mixed case bearer", "BeArEr pst_abc123xyz", "pst_abc123xyz"},
		{"padded with extra spaces", "  Bearer   pst_abc123  ", "pst_abc123"},
		{"tab after scheme", "Bearer\tpst_abc123", "pst_abc123"},
		{"bare key", "pst_abc123", "pst_abc123"},
		{"bare key padded", "  pst_abc123\n", "pst_abc123"},
		{"empty header", "", ""},
		{"whitespace only", "   \t ", ""},
		{"scheme without separator is verbatim", "Bearerpst_abc", "Bearerpst_abc"},
		{"scheme alone is verbatim", "Bearer", "Bearer"},
		{"scheme with trailing spaces is verbatim", "Bearer   ", "Bearer"},
		{"other scheme is verbatim", "Basic dXNlcjpwYXNz", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractAPIKeyFromHeader(tt.header); got != tt.want {
				t.Errorf("ExtractAPIKeyFromHeader(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestExtractAPIKeyFromHeader_BearerAndBareAgree(t *testing.T) {
	for _, k := range []string{"pst_abc", " pst_abc ", "x", "a b"} {
		withScheme := ExtractAPIKeyFromHeader("Bearer " + k)
		bare := ExtractAPIKeyFromHeader(k)
		if withScheme != bare || bare != strings.TrimSpace(k) {
			t.Errorf("k=%q: bearer=%q bare=%q want %q", k, withScheme, bare, strings.TrimSpace(k))
		}
	}
}

func TestPrefixOf(t *testing.T) {
	if got := PrefixOf("pst_abcdefgh"); got != "pst_abcd" {
		t.Errorf("PrefixOf() = %q, want pst_abcd", got)
	}
	if got := PrefixOf("pst"); got != "pst" {
		t.Errorf("PrefixOf(short) = %q, want pst", got)
	}
}
