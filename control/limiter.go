// Package control runs the omnibase control loop: velocity limiting, command dispatch to the
// controller and dead-reckoning odometry from the telegrams it returns.
package control

import (
	"math"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"

	"omnibase/protocol"
)

// Speed limit defaults for the omnibase.
const (
	DefaultMaxSpeedLinear  = 0.5  // m/s
	DefaultMaxSpeedAngular = 1.2  // rad/s
	DefaultMaxSpeedError   = 0.01 // speed may be 1% greater than the maximum
)

// VelocityCommand is a requested base velocity in the robot frame.
type VelocityCommand struct {
	Linear  r3.Vector // m/s; x forward, y left
	Angular float64   // rad/s about z
}

// command drops the components the controller does not take.
func (v VelocityCommand) command() protocol.Command {
	return protocol.Command{VX: v.Linear.X, VY: v.Linear.Y, Omega: v.Angular}
}

// SpeedLimits bound the commanded speeds. Tolerance is the fraction by which a speed may
// exceed its maximum before it is capped.
type SpeedLimits struct {
	MaxLinear  float64 `json:"max_speed_linear" yaml:"maxSpeedLinear"`
	MaxAngular float64 `json:"max_speed_angular" yaml:"maxSpeedAngular"`
	Tolerance  float64 `json:"max_speed_error" yaml:"maxSpeedError"`
}

// DefaultSpeedLimits returns the stock limits.
func DefaultSpeedLimits() SpeedLimits {
	return SpeedLimits{
		MaxLinear:  DefaultMaxSpeedLinear,
		MaxAngular: DefaultMaxSpeedAngular,
		Tolerance:  DefaultMaxSpeedError,
	}
}

// Limiter caps velocity commands to the configured speed limits.
type Limiter struct {
	limits atomic.Pointer[SpeedLimits]
	logger logging.Logger
}

// NewLimiter returns a limiter enforcing limits.
func NewLimiter(limits SpeedLimits, logger logging.Logger) *Limiter {
	l := &Limiter{logger: logger}
	l.SetLimits(limits)
	return l
}

// Limits returns the limits currently enforced.
func (l *Limiter) Limits() SpeedLimits {
	return *l.limits.Load()
}

// SetLimits replaces the enforced limits.
func (l *Limiter) SetLimits(limits SpeedLimits) {
	l.limits.Store(&limits)
}

// Clamp returns cmd with its linear speed and angular speed capped to the limits, and whether
// either cap applied. Speeds within the tolerance band pass through untouched.
func (s SpeedLimits) Clamp(cmd VelocityCommand) (VelocityCommand, bool) {
	capped := false

	if speed := cmd.Linear.Norm(); speed > s.MaxLinear*(1+s.Tolerance) {
		cmd.Linear = cmd.Linear.Mul(s.MaxLinear / speed)
		capped = true
	}
	if math.Abs(cmd.Angular) > s.MaxAngular*(1+s.Tolerance) {
		cmd.Angular = math.Copysign(s.MaxAngular, cmd.Angular)
		capped = true
	}
	return cmd, capped
}

// Limit clamps cmd to the enforced limits and warns about every cap that applied.
func (l *Limiter) Limit(cmd VelocityCommand) (VelocityCommand, bool) {
	limits := l.Limits()
	limited, capped := limits.Clamp(cmd)

	if limited.Linear != cmd.Linear {
		l.logger.Warnw("maximum linear speed exceeded, capping",
			"speed_mps", cmd.Linear.Norm(),
			"capped_mps", limits.MaxLinear,
		)
	}
	if limited.Angular != cmd.Angular {
		l.logger.Warnw("maximum angular speed exceeded, capping",
			"speed_radps", cmd.Angular,
			"capped_radps", limits.MaxAngular,
		)
	}
	return limited, capped
}
