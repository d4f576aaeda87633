// Package keys is the server-side half of the end-to-end encryption
// lifecycle: public-key bookkeeping, version stamping, and wrapping of
// per-message symmetric keys. Private keys are handed to the caller once at
// generation time and never stored; the server never decrypts content.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrKeyUnavailable = errors.New("no usable public key")
	ErrBadPublicKey   = errors.New("invalid public key material")
	ErrBadWrappedKey  = errors.New("invalid wrapped key material")
)

// hkdfInfo binds derived wrap keys to this protocol.
const hkdfInfo = "campuslink keywrap v1"

// KeyRecord is one version of a user's asymmetric key pair, public half only.
type KeyRecord struct {
	UserID      uuid.UUID `json:"userId"`
	PublicKey   []byte    `json:"publicKey"`
	Version     int       `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// GeneratedPair is returned when a pair is created or rotated. PrivateKey is
// only populated at that moment; it is the caller's job to deliver it to the
// client and forget it.
type GeneratedPair struct {
	KeyRecord
	PrivateKey []byte `json:"privateKey,omitempty"`
	Created    bool   `json:"created"`
}

// WrappedKey is a symmetric key sealed to one recipient: an ephemeral X25519
// public key plus an XChaCha20-Poly1305 box over the raw key.
type WrappedKey struct {
	EphemeralPublic []byte `json:"ephemeralPublic"`
	Nonce           []byte `json:"nonce"`
	Ciphertext      []byte `json:"ciphertext"`
}

// Store persists public key records. Implementations may be backed by the
// document store; a nil Store keeps the ring memory-only.
type Store interface {
	SaveKeyRecord(rec KeyRecord) error
}

// Ring generates, versions and resolves user key pairs.
type Ring struct {
	mu      sync.RWMutex
	records map[uuid.UUID][]KeyRecord
	store   Store
}

func NewRing(store Store) *Ring {
	return &Ring{
		records: make(map[uuid.UUID][]KeyRecord),
		store:   store,
	}
}

// EnsureKeyPair generates an X25519 pair for the user on first call. Later
// calls return the current record with Created=false and no private key.
func (r *Ring) EnsureKeyPair(userID uuid.UUID) (*GeneratedPair, error) {
	r.mu.RLock()
	existing := r.records[userID]
	r.mu.RUnlock()
	if len(existing) > 0 {
		cur := existing[len(existing)-1]
		return &GeneratedPair{KeyRecord: copyRecord(cur)}, nil
	}
	return r.generate(userID, 1)
}

// RotateKey issues a new pair with an incremented version. Old versions stay
// resolvable so envelopes pinned to them keep validating; rotation never
// blocks delivery of messages wrapped under an earlier version.
func (r *Ring) RotateKey(userID uuid.UUID) (*GeneratedPair, error) {
	r.mu.RLock()
	existing := r.records[userID]
	r.mu.RUnlock()
	if len(existing) == 0 {
		return nil, ErrKeyUnavailable
	}
	next := existing[len(existing)-1].Version + 1
	return r.generate(userID, next)
}

// PublicKey resolves a user's key record. Version 0 means latest.
func (r *Ring) PublicKey(userID uuid.UUID, version int) (*KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.records[userID]
	if len(recs) == 0 {
		return nil, ErrKeyUnavailable
	}
	if version == 0 {
		rec := copyRecord(recs[len(recs)-1])
		return &rec, nil
	}
	for i := range recs {
		if recs[i].Version == version {
			rec := copyRecord(recs[i])
			return &rec, nil
		}
	}
	return nil, ErrKeyUnavailable
}

// CurrentVersion returns the latest key version for a user, zero if none.
func (r *Ring) CurrentVersion(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.records[userID]
	if len(recs) == 0 {
		return 0
	}
	return recs[len(recs)-1].Version
}

func (r *Ring) generate(userID uuid.UUID, version int) (*GeneratedPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	rec := KeyRecord{
		UserID:      userID,
		PublicKey:   pub,
		Version:     version,
		GeneratedAt: time.Now(),
	}

	r.mu.Lock()
	// Another caller may have won the race; in that case return theirs and
	// discard ours.
	if recs := r.records[userID]; len(recs) > 0 && recs[len(recs)-1].Version >= version {
		cur := copyRecord(recs[len(recs)-1])
		r.mu.Unlock()
		return &GeneratedPair{KeyRecord: cur}, nil
	}
	r.records[userID] = append(r.records[userID], rec)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveKeyRecord(rec); err != nil {
			return nil, err
		}
	}

	return &GeneratedPair{
		KeyRecord:  copyRecord(rec),
		PrivateKey: priv,
		Created:    true,
	}, nil
}

// WrapSymmetricKey seals a raw symmetric key to a recipient public key:
// ephemeral X25519 ECDH, HKDF-SHA256 to a wrap key, XChaCha20-Poly1305 over
// the raw key. Group sends call this once per member with the same raw key.
func WrapSymmetricKey(recipientPublic, rawKey []byte) (*WrappedKey, error) {
	if len(recipientPublic) != curve25519.PointSize {
		return nil, ErrBadPublicKey
	}

	ephPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephPriv); err != nil {
		return nil, err
	}
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	wrapKey, err := deriveWrapKey(ephPriv, recipientPublic)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &WrappedKey{
		EphemeralPublic: ephPub,
		Nonce:           nonce,
		Ciphertext:      aead.Seal(nil, nonce, rawKey, ephPub),
	}, nil
}

// UnwrapSymmetricKey reverses WrapSymmetricKey given the recipient private
// key. Production clients do this on their side; the server only needs it
// for tests and recovery tooling.
func UnwrapSymmetricKey(recipientPrivate []byte, wk *WrappedKey) ([]byte, error) {
	if len(recipientPrivate) != curve25519.ScalarSize {
		return nil, ErrBadPublicKey
	}
	if wk == nil || len(wk.EphemeralPublic) != curve25519.PointSize ||
		len(wk.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrBadWrappedKey
	}

	wrapKey, err := deriveWrapKey(recipientPrivate, wk.EphemeralPublic)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, err
	}
	raw, err := aead.Open(nil, wk.Nonce, wk.Ciphertext, wk.EphemeralPublic)
	if err != nil {
		return nil, ErrBadWrappedKey
	}
	return raw, nil
}

// NewSymmetricKey returns a fresh random 32-byte per-message content key.
func NewSymmetricKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func deriveWrapKey(scalar, point []byte) ([]byte, error) {
	shared, err := curve25519.X25519(scalar, point)
	if err != nil {
		return nil, err
	}
	kdf := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	wrapKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, wrapKey); err != nil {
		return nil, err
	}
	return wrapKey, nil
}

func copyRecord(rec KeyRecord) KeyRecord {
	rec.PublicKey = append([]byte(nil), rec.PublicKey...)
	return rec
}
