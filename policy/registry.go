package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoEffectivePolicy is returned when no registered version covers the
	// requested timestamp. Fatal for any dependent calculation.
	ErrNoEffectivePolicy = errors.New("no effective policy version")

	// ErrVersionExists is returned when registering a version id that is
	// already present. Versions are immutable once registered.
	ErrVersionExists = errors.New("policy version already registered")
)

// ResolutionError reports a failed effective-date lookup.
type ResolutionError struct {
	At time.Time
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no policy version effective at %s", e.At.Format(time.RFC3339))
}

func (e *ResolutionError) Unwrap() error { return ErrNoEffectivePolicy }

// =============================================================================
// REGISTRY - Effective-dated version lookup
// =============================================================================

// Registry resolves which Config version governs a given instant.
// Exactly one version is effective for any timestamp at or after the first
// registered EffectiveAt: the latest version whose EffectiveAt is not after
// the requested time.
type Registry struct {
	mu       sync.RWMutex
	versions []Config // sorted by EffectiveAt ascending
}

// NewRegistry creates a registry seeded with the given versions.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{}
	for _, c := range configs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a new immutable version. Re-registering an existing version
// id fails: referenced versions must never be replaced.
func (r *Registry) Register(c Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.versions {
		if existing.Version == c.Version {
			return fmt.Errorf("%w: %s", ErrVersionExists, c.Version)
		}
	}

	r.versions = append(r.versions, c.clone())
	sort.SliceStable(r.versions, func(i, j int) bool {
		return r.versions[i].EffectiveAt.Before(r.versions[j].EffectiveAt)
	})
	return nil
}

// Resolve returns the version in effect at the given instant.
func (r *Registry) Resolve(at time.Time) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.versions) - 1; i >= 0; i-- {
		if !r.versions[i].EffectiveAt.After(at) {
			return r.versions[i].clone(), nil
		}
	}
	return Config{}, &ResolutionError{At: at}
}

// Get returns a specific version by id, for decision replay.
func (r *Registry) Get(version string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.versions {
		if c.Version == version {
			return c.clone(), nil
		}
	}
	return Config{}, fmt.Errorf("%w: version %s", ErrNoEffectivePolicy, version)
}

// Versions lists all registered versions, oldest first.
func (r *Registry) Versions() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, len(r.versions))
	for i, c := range r.versions {
		out[i] = c.clone()
	}
	return out
}
