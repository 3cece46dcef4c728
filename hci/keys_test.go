package hci

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// Vectors from the core specification crypto sample data [Vol 3,
// Part H, Appendix D]. The functions take wire (little endian)
// buffers, so the MSB-first spec values are reversed on the way in
// and out.
func s2le(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return swapBuf(b)
}

func TestConfirmValue(t *testing.T) {
	u := s2le(t, "20b003d2f297be2c5e2c83a7e9f9a5b9eff49111acf4fddbcc0301480e359de6")
	v := s2le(t, "55188b3d32f6bb9a900afcfbeed4e72a59cb9ac2f19d7cfb6b4fdd49f47fc5fd")
	x := s2le(t, "d5cb8454d177733effffb2ec712baeab")
	want := s2le(t, "f2c916f107a9bd1cf1eda1bea974872d")

	got, err := confirmValue(u, v, x, 0x00)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("confirm = %x, want %x", got, want)
	}
}

func TestDeriveKeys(t *testing.T) {
	w := s2le(t, "ec0234a357c8ad05341010a60a397d9b99796b13b4f866f1868d34f373bfa698")
	n1 := s2le(t, "d5cb8454d177733effffb2ec712baeab")
	n2 := s2le(t, "a6e8e7cc25a75f6e216583f7ff3dc4cf")
	a1 := s2le(t, "0056123737bfce")
	a2 := s2le(t, "00a71370f58b13")

	wantMacKey := s2le(t, "2965f176a1084a02fd3f6a20ce636e20")
	wantKey := s2le(t, "6986791169d7cd23980522b594750a38")

	macKey, key, err := deriveKeys(w, n1, n2, a1, a2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(macKey, wantMacKey) {
		t.Fatalf("macKey = %x, want %x", macKey, wantMacKey)
	}
	if !bytes.Equal(key, wantKey) {
		t.Fatalf("key = %x, want %x", key, wantKey)
	}
}

func TestNumericValue(t *testing.T) {
	u := s2le(t, "20b003d2f297be2c5e2c83a7e9f9a5b9eff49111acf4fddbcc0301480e359de6")
	v := s2le(t, "55188b3d32f6bb9a900afcfbeed4e72a59cb9ac2f19d7cfb6b4fdd49f47fc5fd")
	x := s2le(t, "d5cb8454d177733effffb2ec712baeab")
	y := s2le(t, "a6e8e7cc25a75f6e216583f7ff3dc4cf")

	got, err := numericValue(u, v, x, y)
	if err != nil {
		t.Fatal(err)
	}
	// g2 = 0x2f9ed5ba; the displayed value is its six last digits
	if got != 0x2f9ed5ba%1000000 {
		t.Fatalf("numeric value = %d", got)
	}
}

func TestECDHSharedSecretAgrees(t *testing.T) {
	a, err := generateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	// exchange through the wire form
	apub, ok := unmarshalPublicKey(marshalPublicKeyXY(a.public))
	if !ok {
		t.Fatal("can't unmarshal a's public key")
	}
	bpub, ok := unmarshalPublicKey(marshalPublicKeyXY(b.public))
	if !ok {
		t.Fatal("can't unmarshal b's public key")
	}

	s1, err := sharedSecret(a.private, bpub)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := sharedSecret(b.private, apub)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s1, s2) {
		t.Fatalf("secrets differ: %x vs %x", s1, s2)
	}
}

func TestGenerateOOBData(t *testing.T) {
	kp, err := generateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	d, err := generateOOBData(kp)
	if err != nil {
		t.Fatal(err)
	}

	// the commitment must verify against our own public key
	pk := marshalPublicKeyXY(kp.public)
	c, err := confirmValue(pk[:32], pk[:32], d.R[:], 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c, d.C[:]) {
		t.Fatal("oob commitment does not verify")
	}
}
