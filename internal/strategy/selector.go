package strategy

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/capability"
	"github.com/lamco-admin/wayland-rdp-sub001/internal/metrics"
)

// Select runs the fixed five-strategy priority ladder, generalized
// verbatim from selector.rs's select_strategy: deployment-context
// restriction first (Flatpak and systemd-system are portal-only), then
// DirectMutter, WlrNative, Libei, PortalToken in that order, each
// re-verified live via Available before being committed to, and
// PortalBasic last, established without a registry check or probe.
func Select(ctx context.Context, deps Deps, screenWidth, screenHeight int) (Session, error) {
	snap := deps.Registry.Snapshot()
	log.Info().
		Str("deployment", snap.Deployment.String()).
		Str("session_persistence", deps.Registry.Level(capability.SessionPersistence).String()).
		Str("direct_compositor_api", deps.Registry.Level(capability.DirectCompositorAPI).String()).
		Msg("strategy: selecting session strategy")

	switch snap.Deployment {
	case capability.DeploymentFlatpak:
		log.Info().Msg("strategy: flatpak deployment, restricted to portal-token")
		if !snap.Portal.HasRestoreToken {
			log.Warn().Msg("strategy: portal version < 4, restore tokens unsupported — dialog will appear every start")
		}
		return NewPortalToken(deps).Establish(ctx)

	case capability.DeploymentSystemdSystem, capability.DeploymentInitD:
		log.Warn().Msg("strategy: system-service deployment, restricted to portal-token; a systemd user service is recommended instead")
		return NewPortalToken(deps).Establish(ctx)
	}

	candidates := []Strategy{
		NewDirectMutter(deps),
		NewWlrNative(deps, screenWidth, screenHeight),
		NewLibei(deps),
		NewPortalToken(deps),
	}

	for _, s := range candidates {
		if !strategyRegistryAllows(deps.Registry, s.Kind()) {
			continue
		}
		if !s.Available(ctx) {
			log.Debug().Str("strategy", s.Kind().String()).Msg("strategy: registry allows but live probe failed")
			continue
		}
		sess, err := s.Establish(ctx)
		if err != nil {
			log.Warn().Err(err).Str("strategy", s.Kind().String()).Msg("strategy: establish failed, falling back")
			metrics.Session.StrategyFallbacks.Inc()
			continue
		}
		log.Info().Str("strategy", s.Kind().String()).Msg("strategy: selected")
		return sess, nil
	}

	log.Warn().Msg("strategy: no preferred strategy available, falling back to portal-basic (dialog every start)")
	metrics.Session.StrategyFallbacks.Inc()
	return NewPortalBasic(deps).Establish(ctx)
}

// strategyRegistryAllows is the registry-level pre-filter before the
// live Available() probe, so a compositor the registry already knows
// lacks the prerequisite service doesn't pay for a probe attempt.
func strategyRegistryAllows(reg *capability.Registry, kind Kind) bool {
	switch kind {
	case KindDirectMutter:
		return reg.Level(capability.DirectCompositorAPI) >= capability.LevelBestEffort
	case KindWlrNative:
		return reg.Snapshot().Compositor.IsWlrootsBased()
	case KindLibei:
		return reg.Snapshot().Compositor.IsWlrootsBased() && reg.Has(capability.RemoteInput)
	case KindPortalToken:
		return reg.Snapshot().HasSessionDBus
	case KindPortalBasic:
		return reg.Snapshot().HasSessionDBus
	default:
		return false
	}
}
