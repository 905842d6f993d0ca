package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capability"
	wconfig "github.com/lamco-admin/wayland-rdp-sub001/internal/config"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/credential"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/portal"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/strategy"
)

// deployment bundles everything session establishment and credential
// selection need that isn't owned by a single package, built once at
// process start and reused by both "serve" and "strategy probe".
type deployment struct {
	cfg      wconfig.Config
	client   *portal.Client
	registry *capability.Registry
	tokens   credential.Store
	dataDir  string
}

func newDeployment(ctx context.Context) (*deployment, error) {
	cfg, err := wconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	client, err := portal.Connect(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("wayrdpd: portal connection failed, proceeding with degraded capability detection")
	}

	snap := capability.Detect(ctx, client)
	registry := capability.NewRegistry(snap)

	dataDir := cfg.Server.XDGDataHome
	if dataDir == "" {
		dataDir = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	dataDir = filepath.Join(dataDir, cfg.Server.AppID)

	tokens := credential.Select(ctx, credentialDeployment(snap.Deployment), dataDir, client)

	return &deployment{cfg: cfg, client: client, registry: registry, tokens: tokens, dataDir: dataDir}, nil
}

// credentialDeployment translates capability's DeploymentContext into
// credential's own copy of the same enum; the two packages deliberately
// don't share the type to avoid a dependency cycle (see
// internal/credential/select.go's doc comment).
func credentialDeployment(d capability.DeploymentContext) credential.DeploymentContext {
	switch d {
	case capability.DeploymentFlatpak:
		return credential.DeploymentFlatpak
	case capability.DeploymentSystemdUser:
		return credential.DeploymentSystemdUser
	case capability.DeploymentSystemdSystem:
		return credential.DeploymentSystemdSystem
	case capability.DeploymentInitD:
		return credential.DeploymentInitD
	default:
		return credential.DeploymentNative
	}
}

func (d *deployment) establishSession(ctx context.Context, width, height int) (strategy.Session, error) {
	deps := strategy.Deps{Registry: d.registry, Client: d.client, Tokens: d.tokens}
	return strategy.Select(ctx, deps, width, height)
}

// waitOrDeadline is a small helper the probe/show commands use so a
// hung D-Bus call can't wedge the CLI forever.
func waitOrDeadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

const probeTimeout = 10 * time.Second
