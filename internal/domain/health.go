package domain

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status  string            `json:"status"`
	Backend string            `json:"backend"`
	Checks  map[string]string `json:"checks,omitempty"`
}
