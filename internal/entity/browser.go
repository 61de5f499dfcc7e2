package entity

import "time"

// BrowserInstanceInfo is a point-in-time view of one pooled browser process.
type BrowserInstanceInfo struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Args       []string  `json:"args,omitempty"`
	Tabs       int       `json:"tabs"`
	Healthy    bool      `json:"healthy"`
	Ready      bool      `json:"ready"`
	LaunchedAt time.Time `json:"launched_at"`
}

// SessionInfo is a point-in-time view of one checked-out tab.
type SessionInfo struct {
	ID             string          `json:"id"`
	InstanceID     string          `json:"instance_id"`
	State          NavigationState `json:"state"`
	URL            string          `json:"url,omitempty"`
	LastNavigation time.Duration   `json:"last_navigation"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PoolStats reports pool occupancy.
type PoolStats struct {
	MaxInstances    int                   `json:"max_instances"`
	TabsPerInstance int                   `json:"tabs_per_instance"`
	Capacity        int                   `json:"capacity"`
	InUse           int                   `json:"in_use"`
	Instances       []BrowserInstanceInfo `json:"instances"`
	Sessions        []SessionInfo         `json:"sessions"`
}
