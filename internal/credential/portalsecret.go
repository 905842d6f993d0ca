package credential

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
)

// PortalSecretStore stores credentials via the Flatpak
// org.freedesktop.portal.Secret interface, the only backend reachable
// from inside a Flatpak sandbox that doesn't need filesystem access
// outside the app's data directory. The portal hands back a pipe fd
// that the caller writes/reads the secret through.
type PortalSecretStore struct {
	client *portal.Client
	dir    string
}

// NewPortalSecretStore verifies the Secret portal interface is present
// before returning, so callers can fall back when running outside a
// Flatpak sandbox (the interface simply won't exist there).
func NewPortalSecretStore(ctx context.Context, client *portal.Client, dir string) (*PortalSecretStore, error) {
	obj := client.Object(portal.ObjPath)
	var introspection string
	if err := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&introspection); err != nil {
		return nil, fmt.Errorf("credential: portal introspect: %w", err)
	}
	if !strings.Contains(introspection, portal.IfaceSecret) {
		return nil, fmt.Errorf("credential: portal does not expose %s", portal.IfaceSecret)
	}
	return &PortalSecretStore{client: client, dir: dir}, nil
}

func (p *PortalSecretStore) Name() string { return "portal-secret" }

// masterSecret retrieves the portal-managed per-app secret over a pipe,
// following the Secret interface's fd-based RetrieveSecret contract.
// The returned bytes key the AES-GCM file layer below, so the blob on
// disk is useless without the sandboxed app's portal-bound identity.
func (p *PortalSecretStore) masterSecret(ctx context.Context) ([]byte, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	obj := p.client.Object(portal.ObjPath)
	call := obj.Call(portal.IfaceSecret+".RetrieveSecret", 0, dbus.UnixFD(w.Fd()), map[string]dbus.Variant{})
	w.Close()
	if call.Err != nil {
		return nil, call.Err
	}

	secret, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("credential: empty secret from portal")
	}
	return secret, nil
}

func (p *PortalSecretStore) fileStore(ctx context.Context) (*FileStore, error) {
	secret, err := p.masterSecret(ctx)
	if err != nil {
		return nil, wrap(errs.KindCredentialBackend, "portalsecret", err)
	}
	return newFileStoreWithKey(p.dir, sha256.Sum256(secret))
}

func (p *PortalSecretStore) Save(ctx context.Context, key string, value []byte) error {
	store, err := p.fileStore(ctx)
	if err != nil {
		return err
	}
	return store.Save(ctx, key, value)
}

func (p *PortalSecretStore) Load(ctx context.Context, key string) ([]byte, error) {
	store, err := p.fileStore(ctx)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, key)
}

func (p *PortalSecretStore) Delete(ctx context.Context, key string) error {
	store, err := p.fileStore(ctx)
	if err != nil {
		return err
	}
	return store.Delete(ctx, key)
}
