package credential

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/metrics"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
)

// DeploymentContext mirrors capability.DeploymentContext without
// importing that package, to avoid a dependency cycle (capability
// depends on credential's probe result, not the other way around).
type DeploymentContext int

const (
	DeploymentNative DeploymentContext = iota
	DeploymentFlatpak
	DeploymentSystemdUser
	DeploymentSystemdSystem
	DeploymentInitD
)

// Select picks one backend at construction time. If the preferred
// backend's initialization fails, it falls back deterministically to
// the machine-bound encrypted file backend — never to a different
// hardware/keyring backend, so the fallback chain stays predictable.
func Select(ctx context.Context, deploy DeploymentContext, dataDir string, portalClient *portal.Client) Store {
	fileDir := filepath.Join(dataDir, "sessions")

	var preferred Store
	var err error

	switch {
	case deploy == DeploymentFlatpak:
		preferred, err = NewPortalSecretStore(ctx, portalClient, fileDir)
	case deploy == DeploymentSystemdSystem || deploy == DeploymentInitD:
		preferred, err = NewTPMStore("/dev/tpmrm0")
	default:
		preferred, err = NewKeyringStore("wayrdpd")
	}

	if err != nil {
		log.Warn().Err(err).Msg("credential: preferred backend unavailable, falling back to encrypted file")
		metrics.Session.CredentialLoadErrors.Inc()
		fallback, ferr := NewFileStore(fileDir, "wayrdpd-v1")
		if ferr != nil {
			log.Error().Err(ferr).Msg("credential: encrypted-file fallback also failed; credentials will not persist")
			metrics.Session.CredentialLoadErrors.Inc()
			return nil
		}
		return fallback
	}

	return preferred
}
