package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"ocr-lab/contract"
	"ocr-lab/domain"
	ocrerrors "ocr-lab/errors"
)

const defaultProbeTimeout = 5 * time.Second

// RegistryConfig describes the engines to bring up.
type RegistryConfig struct {
	PoolSize       int
	PoolBufferSize int
	Bridges        []BridgeConfig
	ProbeTimeout   time.Duration
}

// Ensure *Registry implements the contract.IRegistry interface at compile time.
var _ contract.IRegistry = (*Registry)(nil)

// Registry owns engine lifecycle and capability discovery. The engine maps
// are mutated only during Initialize and Dispose; during normal operation
// they are read behind an RWMutex that is effectively uncontended.
type Registry struct {
	mu   sync.RWMutex
	log  *slog.Logger
	cfg  RegistryConfig
	pool *Pool

	engines map[domain.EngineID]contract.Engine
	caps    map[domain.EngineID]domain.Capabilities
	bridges map[domain.EngineID]*Bridge

	disposeOnce sync.Once
}

func NewRegistry(log *slog.Logger, cfg RegistryConfig) *Registry {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Registry{
		log:     log,
		cfg:     cfg,
		engines: make(map[domain.EngineID]contract.Engine),
		caps:    make(map[domain.EngineID]domain.Capabilities),
		bridges: make(map[domain.EngineID]*Bridge),
	}
}

// Add integrates an engine with its capabilities. Exposed so tests and
// alternative backends can register engines directly.
func (r *Registry) Add(e contract.Engine, caps domain.Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ID()] = e
	r.caps[e.ID()] = caps
}

// Initialize starts the native pool and spawns+probes every bridged engine.
// An engine that fails to start or to probe is omitted from the available
// set but never fails initialization: partial availability is expected.
func (r *Registry) Initialize(ctx context.Context) error {
	r.pool = NewPool(r.log, r.cfg.PoolSize, r.cfg.PoolBufferSize)
	if r.pool.Probe() {
		r.Add(r.pool, domain.Capabilities{
			Languages: []string{"eng", "fra", "deu", "spa"},
			Formats:   []string{"png", "jpeg", "tiff", "bmp"},
			Features:  []string{"word-boxes", "multi-language"},
		})
	} else {
		r.log.Warn("Native recognizer not compiled in, engine omitted", "engine", domain.EngineTesseract)
	}

	for _, cfg := range r.cfg.Bridges {
		bridge, err := StartBridge(ctx, cfg, r.log)
		if err != nil {
			r.log.Warn("Bridge failed to start, engine omitted", "engine", cfg.ID, "error", err)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
		alive := bridge.Probe(probeCtx, r.cfg.ProbeTimeout)
		cancel()
		if !alive {
			r.log.Warn("Bridge failed probe, engine omitted", "engine", cfg.ID)
			_ = bridge.Terminate()
			continue
		}

		r.mu.Lock()
		r.bridges[cfg.ID] = bridge
		r.engines[cfg.ID] = bridge
		r.caps[cfg.ID] = domain.Capabilities{
			Languages: cfg.Languages,
			Formats:   cfg.Formats,
			Features:  cfg.Features,
		}
		r.mu.Unlock()
		r.log.Info("Engine available", "engine", cfg.ID, "pid", bridge.PID())
	}

	available := r.AvailableEngines()
	r.log.Info(fmt.Sprintf("%d engines available [%s]",
		len(available), strings.Join(lo.Map(available, func(id domain.EngineID, _ int) string { return string(id) }), ",")))
	return nil
}

// Workers returns the supervised workers the registry needs running: the
// native pool units. Empty when the native engine is disabled.
func (r *Registry) Workers() []contract.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pool == nil || !r.pool.Probe() {
		return nil
	}
	return r.pool.Workers()
}

// AvailableEngines returns the dispatchable engines, tainted bridges excluded.
func (r *Registry) AvailableEngines() []domain.EngineID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []domain.EngineID
	for id := range r.engines {
		if bridge, ok := r.bridges[id]; ok && bridge.Tainted() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) CapabilitiesOf(id domain.EngineID) (domain.Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.caps[id]
	return caps, ok
}

func (r *Registry) Engine(id domain.EngineID) (contract.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bridge, ok := r.bridges[id]; ok && bridge.Tainted() {
		return nil, false
	}
	e, ok := r.engines[id]
	return e, ok
}

// BridgePIDs exposes the live bridge processes for resource telemetry.
func (r *Registry) BridgePIDs() map[domain.EngineID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pids := make(map[domain.EngineID]int, len(r.bridges))
	for id, bridge := range r.bridges {
		pids[id] = bridge.PID()
	}
	return pids
}

// ReapTainted terminates and evicts bridges tainted by a timeout. Called
// periodically by the health monitoring worker; a reaped engine simply
// disappears from the available set.
func (r *Registry) ReapTainted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, bridge := range r.bridges {
		if !bridge.Tainted() {
			continue
		}
		r.log.Warn("Evicting tainted bridge", "engine", id, "pid", bridge.PID())
		_ = bridge.Terminate()
		delete(r.bridges, id)
		delete(r.engines, id)
		delete(r.caps, id)
	}
}

// Health reports the snapshot consumed by the facade's health endpoint.
func (r *Registry) Health() domain.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make(map[domain.EngineID]bool, len(r.engines))
	healthy := false
	for id := range r.engines {
		up := true
		if bridge, ok := r.bridges[id]; ok {
			up = !bridge.Tainted()
		}
		engines[id] = up
		healthy = healthy || up
	}

	status := domain.StatusUnhealthy
	if healthy {
		status = domain.StatusHealthy
	}

	poolSize := 0
	if r.pool != nil && r.pool.Probe() {
		poolSize = r.pool.Size()
	}

	return domain.HealthStatus{
		Status:             status,
		Engines:            engines,
		WorkerPoolSize:     poolSize,
		BridgeProcessCount: len(r.bridges),
	}
}

// Dispose terminates every bridged process. Idempotent, best-effort: each
// failure is collected and reported, none prevents terminating the rest.
func (r *Registry) Dispose() error {
	var errs []error
	r.disposeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, bridge := range r.bridges {
			if err := bridge.Terminate(); err != nil {
				errs = append(errs, fmt.Errorf("terminate %s: %w", id, err))
			}
			delete(r.bridges, id)
			delete(r.engines, id)
			delete(r.caps, id)
		}
		r.log.Info("Registry disposed")
	})
	return errors.Join(errs...)
}

// Resolve maps an engine selector to concrete dispatch targets.
func (r *Registry) Resolve(opts domain.Options) ([]domain.EngineID, error) {
	available := r.AvailableEngines()
	if len(available) == 0 {
		return nil, fmt.Errorf("%w: no engine available", ocrerrors.ErrEngineUnavailable)
	}

	if opts.Ensemble() {
		return available, nil
	}
	if len(opts.Engines) == 0 {
		// Prefer the native engine when present.
		if lo.Contains(available, domain.EngineTesseract) {
			return []domain.EngineID{domain.EngineTesseract}, nil
		}
		return available[:1], nil
	}

	for _, id := range opts.Engines {
		if !id.Dispatchable() {
			return nil, fmt.Errorf("%w: %s is not a dispatch target", ocrerrors.ErrValidation, id)
		}
	}
	return opts.Engines, nil
}
