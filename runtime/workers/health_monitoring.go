package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/process"

	"ocr-lab/domain"
	"ocr-lab/domain/event"
)

// BridgeTracker is the slice of the registry the monitor needs: the live
// bridge processes and the ability to evict tainted ones.
type BridgeTracker interface {
	BridgePIDs() map[domain.EngineID]int
	ReapTainted()
}

// EventEmitter publishes telemetry without blocking.
type EventEmitter interface {
	Emit(e event.Event)
}

// HealthMonitoringWorker samples CPU/RAM of every bridged engine process on
// an interval and reaps bridges tainted by a timeout. A vanished process is
// only reported; the registry notices it on the next probe or invocation.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	tracker        BridgeTracker
	emitter        EventEmitter
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	tracker BridgeTracker,
	emitter EventEmitter,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		tracker:        tracker,
		emitter:        emitter,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.tracker.ReapTainted()
			w.sample()
		}
	}
}

func (w *HealthMonitoringWorker) sample() {
	for engine, pid := range w.tracker.BridgePIDs() {
		if pid == 0 {
			continue
		}
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			w.log.Debug("Bridge process has left the party", "engine", engine, "pid", pid, "err", err)
			continue
		}
		status, err := p.Status()
		if err != nil {
			w.log.Error("Error while finding process status", "engine", engine, "err", err)
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			w.log.Error("Error while finding process cpu usage", "engine", engine, "err", err)
			continue
		}
		ram, err := p.MemoryPercent()
		if err != nil {
			w.log.Error("Error while finding process ram usage", "engine", engine, "err", err)
			continue
		}
		w.emitter.Emit(event.New(event.Telemetry, "", event.ProcessTracker{
			Engine: engine,
			PID:    pid,
			Status: status,
			CPU:    cpu,
			RAM:    ram,
		}))
	}
}
