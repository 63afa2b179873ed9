package model

import "time"

// InstanceRole declares which operations a backend instance accepts
type InstanceRole string

const (
	RoleRead  InstanceRole = "read"
	RoleWrite InstanceRole = "write"
	RoleMixed InstanceRole = "mixed"
)

// Valid checks if the instance role is one of the known values
func (r InstanceRole) Valid() bool {
	switch r {
	case RoleRead, RoleWrite, RoleMixed:
		return true
	default:
		return false
	}
}

// Serves reports whether an instance with this role can serve the given
// operation role. Mixed instances serve both.
func (r InstanceRole) Serves(want InstanceRole) bool {
	return r == want || r == RoleMixed
}

// HealthState represents the monitored health of a backend instance
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// BackendInstance is a statically configured backend storage endpoint.
// All fields are immutable after configuration; health state lives in the
// health monitor, not here.
type BackendInstance struct {
	ID      string        `mapstructure:"id" yaml:"id"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Role    InstanceRole  `mapstructure:"role" yaml:"role"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries int           `mapstructure:"retries" yaml:"retries"`
}
