package credential

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
)

// FileStore is the machine-bound AES-256-GCM encrypted-file backend,
// the deterministic fallback every other backend's init failure lands
// on. Exactly spec §4.A: random 96-bit nonce prepended to ciphertext,
// key derived from SHA-256(machine-id || application-salt), 0600 file
// mode, a sibling .json metadata file kept for diagnostics only and
// never consulted for decryption.
type FileStore struct {
	dir  string
	key  [32]byte
}

// machineIDFallbackChain is tried in order; the first readable source
// wins. Each downgrade below /etc/machine-id is logged at warn level
// since it weakens the key's binding to this specific machine.
var machineIDFallbackChain = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

func readMachineID() (string, string) {
	for _, path := range machineIDFallbackChain {
		b, err := os.ReadFile(path)
		if err == nil && len(bytes.TrimSpace(b)) > 0 {
			return string(bytes.TrimSpace(b)), path
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		log.Warn().Msg("credential: no machine-id file found, deriving key from hostname (weaker binding)")
		return host, "hostname"
	}
	log.Warn().Msg("credential: no machine-id or hostname available, using static salt (weakest binding)")
	return "wayrdp-static-salt", "static"
}

// NewFileStore opens (creating if absent) the encrypted-file backend
// rooted at dir.
func NewFileStore(dir, applicationSalt string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credential: mkdir %s: %w", dir, err)
	}
	machineID, source := readMachineID()
	if source != "/etc/machine-id" {
		log.Warn().Str("source", source).Msg("credential: machine-id fallback in use, security level downgraded")
	}
	key := sha256.Sum256([]byte(machineID + "||" + applicationSalt))
	return &FileStore{dir: dir, key: key}, nil
}

// newFileStoreWithKey builds a FileStore around an already-derived key,
// bypassing the machine-id derivation — used by PortalSecretStore, which
// derives its key from the portal's per-app master secret instead.
func newFileStoreWithKey(dir string, key [32]byte) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credential: mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, key: key}, nil
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) tokenPath(key string) string    { return filepath.Join(f.dir, key+".token") }
func (f *FileStore) metadataPath(key string) string { return filepath.Join(f.dir, key+".json") }

type fileMetadata struct {
	StoredAt       string `json:"stored_at"`
	StorageMethod  string `json:"storage_method"`
	Encryption     string `json:"encryption"`
}

func (f *FileStore) Save(ctx context.Context, key string, value []byte) error {
	block, err := aes.NewCipher(f.key[:])
	if err != nil {
		return wrap(errs.KindCrypto, "file.Save", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return wrap(errs.KindCrypto, "file.Save", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return wrap(errs.KindCrypto, "file.Save", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, value, nil)

	if err := atomicWriteFile(f.tokenPath(key), ciphertext, 0o600); err != nil {
		return wrap(errs.KindCredentialBackend, "file.Save", err)
	}

	meta := fileMetadata{
		StoredAt:      time.Now().UTC().Format(time.RFC3339),
		StorageMethod: "file",
		Encryption:    "aes-256-gcm",
	}
	metaBytes, _ := json.Marshal(meta)
	_ = atomicWriteFile(f.metadataPath(key), metaBytes, 0o600) // diagnostics only, best-effort
	return nil
}

func (f *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	ciphertext, err := os.ReadFile(f.tokenPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(errs.KindCredentialBackend, "file.Load", err)
	}

	block, err := aes.NewCipher(f.key[:])
	if err != nil {
		return nil, wrap(errs.KindCrypto, "file.Load", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wrap(errs.KindCrypto, "file.Load", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, wrap(errs.KindCrypto, "file.Load", fmt.Errorf("ciphertext too short"))
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, wrap(errs.KindCrypto, "file.Load", err)
	}
	return plaintext, nil
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(f.tokenPath(key)); err != nil && !os.IsNotExist(err) {
		return wrap(errs.KindCredentialBackend, "file.Delete", err)
	}
	_ = os.Remove(f.metadataPath(key))
	return nil
}

// atomicWriteFile writes data to a temp file in the same directory then
// renames it over path, so a crash mid-write never corrupts the
// existing record.
func atomicWriteFile(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
