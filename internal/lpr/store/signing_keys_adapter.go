package store

import (
	"context"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
)

// KeyStoreAdapter adapts SigningKeys to the jwtx.KeyStore interface so jwtx
// can load database-held keys without depending on the domain package.
type KeyStoreAdapter struct {
	keys SigningKeys
}

// NewKeyStoreAdapter creates a new adapter that implements jwtx.KeyStore.
func NewKeyStoreAdapter(keys SigningKeys) *KeyStoreAdapter {
	return &KeyStoreAdapter{keys: keys}
}

// ListSigningKeys returns every stored key, including retired ones still
// inside their grace window.
func (a *KeyStoreAdapter) ListSigningKeys(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.keys.ListSigningKeys(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]jwtx.SigningKeyRecord, len(keys))
	for i, key := range keys {
		records[i] = jwtx.SigningKeyRecord{
			ID:                  key.ID,
			Kid:                 key.Kid,
			Algorithm:           key.Algorithm,
			PrivateKeyEncrypted: key.PrivateKeyEncrypted,
			CreatedAt:           key.CreatedAt,
			RetiredAt:           key.RetiredAt,
			ExpiresAt:           key.ExpiresAt,
		}
	}
	return records, nil
}

// SigningKeyFromRecord converts a sealed jwtx record into a domain key.
func SigningKeyFromRecord(record jwtx.SigningKeyRecord) domain.SigningKey {
	return domain.SigningKey{
		ID:                  record.ID,
		Kid:                 record.Kid,
		Algorithm:           record.Algorithm,
		PrivateKeyEncrypted: record.PrivateKeyEncrypted,
		CreatedAt:           record.CreatedAt,
		RetiredAt:           record.RetiredAt,
		ExpiresAt:           record.ExpiresAt,
	}
}
