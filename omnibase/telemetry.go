package omnibase

import (
	"context"
	"sync"
	"time"

	"omnibase/control"
)

const (
	telemOdometry  = "odometry"
	telemCurrent   = "current"
	telemReports   = "reports"
	telemLimits    = "speed_limits"
	telemIsMoving  = "is_moving"
	telemLoopError = "loop_error"
)

// telemetry keeps the latest loop reports for DoCommand.
type telemetry struct {
	mu      sync.RWMutex
	odom    *control.OdometryReport
	current *control.CurrentReport
	reports uint64
}

func (t *telemetry) ReportOdometry(_ context.Context, odom control.OdometryReport) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.odom = &odom
	t.reports++
	return nil
}

// ReportTransform is a no-op; the odometry report already carries the transform.
func (t *telemetry) ReportTransform(context.Context, control.TransformReport) error {
	return nil
}

func (t *telemetry) ReportCurrent(_ context.Context, current control.CurrentReport) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &current
	return nil
}

func (t *telemetry) odometry() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.odom == nil {
		return map[string]interface{}{"valid": false}
	}
	odom := t.odom
	return map[string]interface{}{
		"valid":          true,
		"stamp":          odom.Stamp.Format(time.RFC3339Nano),
		"frame_id":       odom.FrameID,
		"child_frame_id": odom.ChildFrameID,
		"x":              odom.Pose.X,
		"y":              odom.Pose.Y,
		"theta":          odom.Pose.Theta,
		"qw":             odom.Orientation.Real,
		"qx":             odom.Orientation.Imag,
		"qy":             odom.Orientation.Jmag,
		"qz":             odom.Orientation.Kmag,
		"vx":             odom.Twist.VX,
		"vy":             odom.Twist.VY,
		"vtheta":         odom.Twist.VTheta,
	}
}

func (t *telemetry) currents() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return map[string]interface{}{"valid": false}
	}
	return map[string]interface{}{
		"valid":    true,
		"stamp":    t.current.Stamp.Format(time.RFC3339Nano),
		"frame_id": t.current.FrameID,
		"i_x":      t.current.IX,
		"i_y":      t.current.IY,
		"i_theta":  t.current.ITheta,
	}
}

func (t *telemetry) reportCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reports
}
