package capability

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Registry holds the translated services for one detected Snapshot and
// answers the lookups the strategy selector and clipboard/capture
// subsystems need at runtime.
type Registry struct {
	snapshot Snapshot
	services map[ServiceID]AdvertisedService
	ordered  []AdvertisedService
}

// NewRegistry translates a Snapshot into the fixed service table. This is
// the only entry point; every AdvertisedService it returns traces back
// to a single translate* function in translation.go.
func NewRegistry(snap Snapshot) *Registry {
	ordered := translate(snap)
	services := make(map[ServiceID]AdvertisedService, len(ordered))
	for _, s := range ordered {
		services[s.ID] = s
	}
	return &Registry{snapshot: snap, services: services, ordered: ordered}
}

// Has reports whether id is available at any level above Unavailable.
func (r *Registry) Has(id ServiceID) bool {
	return r.Level(id) > LevelUnavailable
}

// Level returns Unavailable for any id not present in the table.
func (r *Registry) Level(id ServiceID) ServiceLevel {
	if s, ok := r.services[id]; ok {
		return s.Level
	}
	return LevelUnavailable
}

// Get returns the full AdvertisedService row, and whether it exists.
func (r *Registry) Get(id ServiceID) (AdvertisedService, bool) {
	s, ok := r.services[id]
	return s, ok
}

// All returns every service in the registry's fixed iteration order.
func (r *Registry) All() []AdvertisedService {
	out := make([]AdvertisedService, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// AtLevel returns every service at or above min.
func (r *Registry) AtLevel(min ServiceLevel) []AdvertisedService {
	var out []AdvertisedService
	for _, s := range r.ordered {
		if s.Level >= min {
			out = append(out, s)
		}
	}
	return out
}

// Guaranteed is a shorthand for AtLevel(LevelGuaranteed).
func (r *Registry) Guaranteed() []AdvertisedService { return r.AtLevel(LevelGuaranteed) }

// Usable is a shorthand for AtLevel(LevelDegraded), i.e. anything the
// caller can fall back onto rather than treat as absent.
func (r *Registry) Usable() []AdvertisedService { return r.AtLevel(LevelDegraded) }

// Snapshot returns the detection facts the registry was built from.
func (r *Registry) Snapshot() Snapshot { return r.snapshot }

// CompositorName returns the human-readable compositor identity used in
// logging and diagnostics.
func (r *Registry) CompositorName() string {
	if r.snapshot.CompositorVersion != "" {
		return fmt.Sprintf("%s/%s", r.snapshot.Compositor, r.snapshot.CompositorVersion)
	}
	return r.snapshot.Compositor.String()
}

// Counts tallies services by level, for summary logging and metrics.
type Counts struct {
	Guaranteed, BestEffort, Degraded, Unavailable int
}

func (r *Registry) Counts() Counts {
	var c Counts
	for _, s := range r.ordered {
		switch s.Level {
		case LevelGuaranteed:
			c.Guaranteed++
		case LevelBestEffort:
			c.BestEffort++
		case LevelDegraded:
			c.Degraded++
		default:
			c.Unavailable++
		}
	}
	return c
}

// LogSummary emits one structured log line per service plus a totals
// line, the Go-idiomatic equivalent of the teacher's startup capability
// dump (helixml-helix logs compositor/session facts once at session
// start rather than per-request).
func (r *Registry) LogSummary() {
	counts := r.Counts()
	ev := log.Info().
		Str("compositor", r.CompositorName()).
		Int("guaranteed", counts.Guaranteed).
		Int("best_effort", counts.BestEffort).
		Int("degraded", counts.Degraded).
		Int("unavailable", counts.Unavailable)
	ev.Msg("capability: service registry built")

	for _, s := range r.ordered {
		e := log.Debug().Str("service", s.ID.String()).Str("level", s.Level.String())
		if s.FeatureDescriptor != "" {
			e = e.Str("feature", s.FeatureDescriptor)
		}
		if s.RDPCapabilityHint != "" {
			e = e.Str("rdp_hint", s.RDPCapabilityHint)
		}
		if s.Note != "" {
			e = e.Str("note", s.Note)
		}
		e.Msg("capability: service")
	}
}
