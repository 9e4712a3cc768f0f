package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	p := NewDefaultProvider()
	key := make([]byte, p.KeySize())
	nonce := make([]byte, p.NonceSize())
	if err := p.Random(key); err != nil {
		t.Fatalf("Random key: %v", err)
	}
	if err := p.Random(nonce); err != nil {
		t.Fatalf("Random nonce: %v", err)
	}

	plaintext := []byte("hello vault")
	ad := []byte("tx-id-123")

	ct, err := p.Seal(key, nonce, plaintext, ad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	pt, err := p.Open(key, nonce, ct, ad)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("Open = %q, want %q", pt, plaintext)
	}
}

func TestOpenWrongKeyFails(t *testing.T) {
	p := NewDefaultProvider()
	key := make([]byte, p.KeySize())
	wrongKey := make([]byte, p.KeySize())
	nonce := make([]byte, p.NonceSize())
	p.Random(key)
	p.Random(wrongKey)
	p.Random(nonce)

	ct, err := p.Seal(key, nonce, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := p.Open(wrongKey, nonce, ct, nil); err != ErrAuthFailed {
		t.Fatalf("Open with wrong key: err = %v, want ErrAuthFailed", err)
	}
}

func TestOpenWrongAssociatedDataFails(t *testing.T) {
	p := NewDefaultProvider()
	key := make([]byte, p.KeySize())
	nonce := make([]byte, p.NonceSize())
	p.Random(key)
	p.Random(nonce)

	ct, err := p.Seal(key, nonce, []byte("secret"), []byte("ad-a"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := p.Open(key, nonce, ct, []byte("ad-b")); err != ErrAuthFailed {
		t.Fatalf("Open with wrong AD: err = %v, want ErrAuthFailed", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	p := NewDefaultProvider()
	chainCode := bytes.Repeat([]byte{0x01}, 32)
	parentKey := bytes.Repeat([]byte{0x02}, 32)

	k1, c1, err := p.DeriveKey(chainCode, parentKey, 0)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, c2, err := p.DeriveKey(chainCode, parentKey, 0)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(k1, k2) || !bytes.Equal(c1, c2) {
		t.Fatal("DeriveKey is not deterministic for identical inputs")
	}

	k3, _, err := p.DeriveKey(chainCode, parentKey, 1)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if bytes.Equal(k1, k3) {
		t.Fatal("DeriveKey produced identical children for different indices")
	}
}

func TestEd25519SignVerify(t *testing.T) {
	p := NewDefaultProvider()
	seed := make([]byte, 32)
	p.Random(seed)

	pub, err := p.Ed25519PublicKey(seed)
	if err != nil {
		t.Fatalf("Ed25519PublicKey: %v", err)
	}
	sig, err := p.Ed25519Sign(seed, []byte("message"))
	if err != nil {
		t.Fatalf("Ed25519Sign: %v", err)
	}
	if len(pub) != 32 || len(sig) != 64 {
		t.Fatalf("unexpected lengths: pub=%d sig=%d", len(pub), len(sig))
	}
}

func TestHMACDeterministic(t *testing.T) {
	p := NewDefaultProvider()
	key := []byte("key")
	a, err := p.HMAC(key, []byte("data"))
	if err != nil {
		t.Fatalf("HMAC: %v", err)
	}
	b, _ := p.HMAC(key, []byte("data"))
	if !bytes.Equal(a, b) {
		t.Fatal("HMAC not deterministic")
	}
}
