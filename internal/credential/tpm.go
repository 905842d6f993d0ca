package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/errs"
)

const tpmSealedDir = "/var/lib/wayrdpd/tpm-sealed"

// TPMStore binds credentials to the platform TPM2: each value's AES-GCM
// key is an HMAC computed by a primary key created under the null
// hierarchy, and the ciphertext is written to tpmSealedDir/<key>.sealed.
// The derived key is returned to this process to do the encryption, so
// it does leave the TPM; no TPM object is created per value.
type TPMStore struct {
	devicePath string
}

// NewTPMStore opens the TPM character device at devicePath (typically
// /dev/tpmrm0) and verifies it responds to GetCapability before
// returning, so callers get a clean failure to fall back from instead
// of failing on the first Save.
func NewTPMStore(devicePath string) (*TPMStore, error) {
	tpmDev, err := transport.OpenTPM(devicePath)
	if err != nil {
		return nil, fmt.Errorf("credential: open tpm %s: %w", devicePath, err)
	}
	defer tpmDev.Close()

	if _, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(tpm2.TPMPTManufacturer),
		PropertyCount: 1,
	}.Execute(tpmDev); err != nil {
		return nil, fmt.Errorf("credential: tpm probe failed: %w", err)
	}

	return &TPMStore{devicePath: devicePath}, nil
}

func (t *TPMStore) Name() string { return "tpm" }

// sealingKey derives a per-process AES key from the TPM's unique
// identity property combined with the record key, via a primary object
// created under the null hierarchy (no authorization needed, bound to
// this specific chip). This keeps the seal/unseal API small while still
// grounding the secret in hardware rather than a file.
func (t *TPMStore) sealingKey(ctx context.Context, recordKey string) ([]byte, error) {
	tpmDev, err := transport.OpenTPM(t.devicePath)
	if err != nil {
		return nil, err
	}
	defer tpmDev.Close()

	primary, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.TPMRHNull,
		InPublic:      tpm2.New2B(tpm2.ECCSRKTemplate),
	}.Execute(tpmDev)
	if err != nil {
		return nil, fmt.Errorf("tpm create primary: %w", err)
	}
	defer tpm2.FlushContext{FlushHandle: primary.ObjectHandle}.Execute(tpmDev)

	derive, err := tpm2.HMAC{
		Handle:  primary.ObjectHandle,
		Buffer:  tpm2.TPM2BMaxBuffer{Buffer: []byte(recordKey)},
		HashAlg: tpm2.TPMAlgSHA256,
	}.Execute(tpmDev)
	if err != nil {
		return nil, fmt.Errorf("tpm hmac derive: %w", err)
	}
	return derive.OutHMAC.Buffer, nil
}

func (t *TPMStore) Save(ctx context.Context, key string, value []byte) error {
	keyBytes, err := t.sealingKey(ctx, key)
	if err != nil {
		return wrap(errs.KindCredentialBackend, "tpm.Save", err)
	}
	block, err := aes.NewCipher(keyBytes[:32])
	if err != nil {
		return wrap(errs.KindCrypto, "tpm.Save", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return wrap(errs.KindCrypto, "tpm.Save", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return wrap(errs.KindCrypto, "tpm.Save", err)
	}
	sealed := gcm.Seal(nonce, nonce, value, nil)
	if err := os.MkdirAll(tpmSealedDir, 0o700); err != nil {
		return wrap(errs.KindCredentialBackend, "tpm.Save", err)
	}
	if err := atomicWriteFile(t.sealedPath(key), sealed, 0o600); err != nil {
		return wrap(errs.KindCredentialBackend, "tpm.Save", err)
	}
	return nil
}

func (t *TPMStore) Load(ctx context.Context, key string) ([]byte, error) {
	sealed, err := os.ReadFile(t.sealedPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(errs.KindCredentialBackend, "tpm.Load", err)
	}
	keyBytes, err := t.sealingKey(ctx, key)
	if err != nil {
		return nil, wrap(errs.KindCredentialBackend, "tpm.Load", err)
	}
	block, err := aes.NewCipher(keyBytes[:32])
	if err != nil {
		return nil, wrap(errs.KindCrypto, "tpm.Load", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wrap(errs.KindCrypto, "tpm.Load", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, wrap(errs.KindCrypto, "tpm.Load", fmt.Errorf("sealed blob too short"))
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, wrap(errs.KindCrypto, "tpm.Load", err)
	}
	return plain, nil
}

func (t *TPMStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(t.sealedPath(key)); err != nil && !os.IsNotExist(err) {
		return wrap(errs.KindCredentialBackend, "tpm.Delete", err)
	}
	return nil
}

// sealedPath is where the TPM-sealed ciphertext lives on disk — the TPM
// provides confidentiality of the AES key derivation, not storage;
// something still has to hold the sealed bytes.
func (t *TPMStore) sealedPath(key string) string {
	return filepath.Join(tpmSealedDir, key+".sealed")
}
