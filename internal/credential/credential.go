// Package credential implements the Credential Store (spec §4.A):
// uniform opaque-blob save/load/delete over a TPM, a desktop keyring,
// the Flatpak secret portal, or a machine-bound encrypted file, with a
// deterministic fallback to the encrypted-file backend on any other
// backend's initialization failure.
package credential

import (
	"context"
	"errors"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
)

// ErrNotFound is returned by Load when key has no stored value.
var ErrNotFound = errors.New("credential: not found")

// Store is the uniform interface every backend implements.
type Store interface {
	// Name identifies the backend for logging (e.g. "tpm", "keyring").
	Name() string
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Backend enumerates the selectable backend kinds.
type Backend int

const (
	BackendAuto Backend = iota
	BackendTPM
	BackendKeyring
	BackendPortalSecret
	BackendFile
)

func wrap(kind errs.Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.New(kind, op, err)
}
