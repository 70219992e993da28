package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 32
	NonceSize = 16
	// HandCiphertextSize is a 32 byte word plus the GCM tag.
	HandCiphertextSize = 32 + 16
)

var (
	ErrInvalidPeerKey       = errors.New("invalid peer public key")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

var sessionKeyInfo = []byte("card-shuffler session key v1")

type PublicKey [KeySize]byte

func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// ParsePublicKey checks the length only. Curve validity is checked when the
// key is used in DeriveSessionKey.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var key PublicKey
	if len(b) != KeySize {
		return key, errors.Wrapf(ErrInvalidPeerKey, "key is %d bytes", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// KeyPair is an ephemeral X25519 key pair. The private half never leaves the
// process that generated it.
type KeyPair struct {
	private [KeySize]byte
	Public  PublicKey
}

func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.private[:]); err != nil {
		return nil, errors.Wrap(err, "Unable to generate private key")
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive public key")
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// SessionKey is the symmetric key shared with the compute cluster. It is
// never persisted.
type SessionKey [KeySize]byte

// Nonce must be unique for every message encrypted under one SessionKey.
// Nothing here detects reuse.
type Nonce [NonceSize]byte

// DeriveSessionKey runs X25519 against the peer's public key and expands the
// shared secret with HKDF-SHA256.
func (kp *KeyPair) DeriveSessionKey(peer PublicKey) (SessionKey, error) {
	return DeriveSessionKey(kp.private, peer)
}

func DeriveSessionKey(private [KeySize]byte, peer PublicKey) (SessionKey, error) {
	var key SessionKey
	secret, err := curve25519.X25519(private[:], peer[:])
	if err != nil {
		// low order points produce an all zero secret and are rejected here
		return key, errors.Wrap(ErrInvalidPeerKey, err.Error())
	}
	kdf := hkdf.New(sha256.New, secret, nil, sessionKeyInfo)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, errors.Wrap(err, "Unable to expand shared secret")
	}
	return key, nil
}

func newHandCipher(key SessionKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create GCM")
	}
	return gcm, nil
}

// EncryptHand encrypts a packed hand as a 32 byte big-endian word.
func EncryptHand(key SessionKey, nonce Nonce, value *uint256.Int) ([]byte, error) {
	if value == nil {
		return nil, errors.New("nil hand value")
	}
	gcm, err := newHandCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext := value.Bytes32()
	return gcm.Seal(nil, nonce[:], plaintext[:], nil), nil
}

// DecryptHand fails with ErrAuthenticationFailed unless ciphertext was
// produced by EncryptHand under the same key and nonce.
func DecryptHand(key SessionKey, nonce Nonce, ciphertext []byte) (*uint256.Int, error) {
	if len(ciphertext) != HandCiphertextSize {
		return nil, errors.Wrapf(ErrAuthenticationFailed, "ciphertext is %d bytes", len(ciphertext))
	}
	gcm, err := newHandCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return new(uint256.Int).SetBytes(plaintext), nil
}
