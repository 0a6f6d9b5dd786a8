package token

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestMintLengthAndAlphabet(t *testing.T) {
	raw, err := Mint(32)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if strings.ContainsAny(raw, "+/=") {
		t.Fatalf("token must be base64url without padding: %q", raw)
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(b) != 32 {
		t.Fatalf("want 32 bytes, got %d", len(b))
	}
}

func TestMintIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		raw, err := Mint(DefaultBytes)
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := seen[raw]; dup {
			t.Fatalf("duplicate token after %d mints", i)
		}
		seen[raw] = struct{}{}
	}
}

func TestDigestDeterministicAndPeppered(t *testing.T) {
	a := Digest("tok", []byte("pepper-a"))
	if a != Digest("tok", []byte("pepper-a")) {
		t.Fatalf("digest must be deterministic")
	}
	if a == Digest("tok", []byte("pepper-b")) {
		t.Fatalf("different pepper must change the digest")
	}
	if a == Digest("tok2", []byte("pepper-a")) {
		t.Fatalf("different token must change the digest")
	}
	if len(a) != 64 {
		t.Fatalf("hex sha256 expected, got len %d", len(a))
	}
}

func TestCodecMintMatchesDigest(t *testing.T) {
	c := NewCodec("pep", 0)
	raw, digest, err := c.Mint()
	if err != nil {
		t.Fatal(err)
	}
	if digest != c.Digest(raw) || digest != Digest(raw, []byte("pep")) {
		t.Fatalf("codec digest mismatch")
	}
	if digest == raw {
		t.Fatalf("digest must not equal raw token")
	}
}
