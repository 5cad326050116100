package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownMerchant is returned for merchants without a registered key.
var ErrUnknownMerchant = errors.New("unknown merchant")

// APIKeyVerifier checks merchant application keys against bcrypt hashes.
type APIKeyVerifier struct {
	hashes map[string][]byte
	// dummy is compared for unknown merchants so the response time does
	// not reveal which merchant ids exist.
	dummy   []byte
	compare func(hash, key []byte) error
}

// NewAPIKeyVerifier takes merchant id to bcrypt hash pairs.
func NewAPIKeyVerifier(hashes map[string]string) *APIKeyVerifier {
	v := &APIKeyVerifier{
		hashes:  make(map[string][]byte, len(hashes)),
		compare: bcrypt.CompareHashAndPassword,
	}
	cost := bcrypt.DefaultCost
	for merchantID, hash := range hashes {
		v.hashes[merchantID] = []byte(hash)
		if c, err := bcrypt.Cost([]byte(hash)); err == nil {
			cost = c
		}
	}
	v.dummy, _ = bcrypt.GenerateFromPassword([]byte("unknown-merchant"), cost)
	return v
}

// Verify returns nil when key belongs to merchantID.
func (v *APIKeyVerifier) Verify(merchantID, key string) error {
	hash, ok := v.hashes[merchantID]
	if !ok {
		_ = v.compare(v.dummy, []byte(key))
		return ErrUnknownMerchant
	}
	return v.compare(hash, []byte(key))
}

// HashAPIKey hashes a plaintext key for AUTH_MERCHANT_KEYS.
func HashAPIKey(key string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
