package hci

import (
	"crypto"
	"crypto/aes"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
	ecdh "github.com/wsddn/go-ecdh"
)

// Secure Connections key material. The controller runs the pairing
// protocol itself; the host side only needs the P-256 key pair and
// the AES-CMAC based functions for out-of-band data and key
// derivation checks.

type keyPair struct {
	public  crypto.PublicKey
	private crypto.PrivateKey
}

func generateKeyPair() (*keyPair, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	prv, pub, err := e.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate p256 key pair")
	}
	return &keyPair{public: pub, private: prv}, nil
}

// marshalPublicKeyXY returns X || Y, each coordinate little endian
// as it goes on the air.
func marshalPublicKeyXY(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	ba := e.Marshal(k)
	ba = ba[1:] // strip the uncompressed point header
	x := swapBuf(ba[:32])
	y := swapBuf(ba[32:])
	return append(x, y...)
}

func unmarshalPublicKey(b []byte) (crypto.PublicKey, bool) {
	if len(b) != 64 {
		return nil, false
	}
	e := ecdh.NewEllipticECDH(elliptic.P256())
	xs := swapBuf(b[:32])
	ys := swapBuf(b[32:])
	r := append([]byte{0x04}, xs...)
	r = append(r, ys...)
	return e.Unmarshal(r)
}

func sharedSecret(prv crypto.PrivateKey, pub crypto.PublicKey) ([]byte, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	b, err := e.GenerateSharedSecret(prv, pub)
	if err != nil {
		return nil, errors.Wrap(err, "ecdh shared secret")
	}
	return swapBuf(b), nil
}

// confirmValue computes the commitment C = f4(U, V, X, Z) used for
// out-of-band authentication data.
func confirmValue(u, v, x []byte, z uint8) ([]byte, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 {
		return nil, errors.New("length error")
	}
	m := []byte{z}
	m = append(m, v...)
	m = append(m, u...)
	return aesCMAC(x, m)
}

// deriveKeys computes (MacKey, key) = f5(W, N1, N2, A1, A2) from the
// DH secret and the exchanged nonces and addresses.
func deriveKeys(w, n1, n2, a1, a2 []byte) ([]byte, []byte, error) {
	switch {
	case len(w) != 32:
		return nil, nil, errors.New("length error w")
	case len(n1) != 16:
		return nil, nil, errors.New("length error n1")
	case len(n2) != 16:
		return nil, nil, errors.New("length error n2")
	case len(a1) != 7:
		return nil, nil, errors.New("length error a1")
	case len(a2) != 7:
		return nil, nil, errors.New("length error a2")
	}

	keyID := []byte{0x65, 0x6c, 0x74, 0x62}
	salt := []byte{0xbe, 0x83, 0x60, 0x5a, 0xdb, 0x0b, 0x37, 0x60,
		0x38, 0xa5, 0xf5, 0xaa, 0x91, 0x83, 0x88, 0x6c}
	length := []byte{0x00, 0x01}

	t, err := aesCMAC(salt, w)
	if err != nil {
		return nil, nil, err
	}

	m := length
	m = append(m, a2...)
	m = append(m, a1...)
	m = append(m, n2...)
	m = append(m, n1...)
	m = append(m, keyID...)
	m = append(m, 0x00)

	macKey, err := aesCMAC(t, m)
	if err != nil {
		return nil, nil, err
	}

	m[52] = 0x01
	key, err := aesCMAC(t, m)
	if err != nil {
		return nil, nil, err
	}
	return macKey, key, nil
}

// numericValue computes g2(U, V, X, Y) mod 10^6, the six digit
// number both sides display for numeric comparison.
func numericValue(u, v, x, y []byte) (uint32, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 || len(y) != 16 {
		return 0, errors.New("length error")
	}
	m := append(y, v...)
	m = append(m, u...)

	h, err := aesCMAC(x, m)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(h[:4]) % 1000000, nil
}

// aesCMAC runs AES-CMAC over little endian buffers, swapping in and
// out of the MSB-first order the cipher wants.
func aesCMAC(key, msg []byte) ([]byte, error) {
	c, err := aes.NewCipher(swapBuf(key))
	if err != nil {
		return nil, err
	}
	mac, err := cmac.New(c)
	if err != nil {
		return nil, err
	}
	mac.Write(swapBuf(msg))
	return swapBuf(mac.Sum(nil)), nil
}

func swapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}
	return a
}

// OOBData is the out-of-band authentication block a caller can hand
// to a peer over another channel: the 16 byte randomizer R and the
// commitment C over our public key.
type OOBData struct {
	R [16]byte
	C [16]byte
}

func generateOOBData(kp *keyPair) (*OOBData, error) {
	d := &OOBData{}
	if _, err := rand.Read(d.R[:]); err != nil {
		return nil, errors.Wrap(err, "oob randomizer")
	}
	pk := marshalPublicKeyXY(kp.public)
	c, err := confirmValue(pk[:32], pk[:32], d.R[:], 0)
	if err != nil {
		return nil, err
	}
	copy(d.C[:], c)
	return d, nil
}
