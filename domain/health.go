package domain

// HealthStatus is the snapshot reported by the registry.
type HealthStatus struct {
	Status             string            `json:"status"`
	Engines            map[EngineID]bool `json:"engines"`
	WorkerPoolSize     int               `json:"workerPoolSize"`
	BridgeProcessCount int               `json:"bridgeProcessCount"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)
