package credential

import (
	"context"
	"encoding/base64"

	"github.com/zalando/go-keyring"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
)

// KeyringStore stores credentials in the desktop Secret Service
// (GNOME Keyring, KWallet, KeePassXC via the Secret Service D-Bus API)
// through zalando/go-keyring. Values are base64-encoded since the
// Secret Service item payload here is treated as a string.
type KeyringStore struct {
	service string
}

// NewKeyringStore verifies the Secret Service is reachable by probing a
// throwaway key, so backend selection can fall back cleanly if no
// keyring daemon is running.
func NewKeyringStore(service string) (*KeyringStore, error) {
	const probeKey = "__wayrdpd_probe__"
	if err := keyring.Set(service, probeKey, "probe"); err != nil {
		return nil, err
	}
	_ = keyring.Delete(service, probeKey)
	return &KeyringStore{service: service}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Save(ctx context.Context, key string, value []byte) error {
	encoded := base64.StdEncoding.EncodeToString(value)
	if err := keyring.Set(k.service, key, encoded); err != nil {
		return wrap(errs.KindCredentialBackend, "keyring.Save", err)
	}
	return nil
}

func (k *KeyringStore) Load(ctx context.Context, key string) ([]byte, error) {
	encoded, err := keyring.Get(k.service, key)
	if err == keyring.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(errs.KindCredentialBackend, "keyring.Load", err)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, wrap(errs.KindCrypto, "keyring.Load", err)
	}
	return value, nil
}

func (k *KeyringStore) Delete(ctx context.Context, key string) error {
	if err := keyring.Delete(k.service, key); err != nil && err != keyring.ErrNotFound {
		return wrap(errs.KindCredentialBackend, "keyring.Delete", err)
	}
	return nil
}
