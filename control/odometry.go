package control

import (
	"math"

	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"

	"omnibase/protocol"
)

// RobotSample is a position in the robot's own odometry frame, as tracked by the controller.
type RobotSample struct {
	X     float64
	Y     float64
	Theta float64
}

// sampleFromTelegram extracts the pose fields of a telegram.
func sampleFromTelegram(tg protocol.Telegram) RobotSample {
	return RobotSample{X: tg.X, Y: tg.Y, Theta: tg.Theta}
}

// WorldPose is the accumulated pose of the base in the world (odometry) frame.
type WorldPose struct {
	X     float64
	Y     float64
	Theta float64
}

// Quaternion returns the yaw-only orientation of the pose.
func (p WorldPose) Quaternion() quat.Number {
	return (&spatialmath.EulerAngles{Yaw: p.Theta}).Quaternion()
}

// Twist is the velocity of the base over the last update.
type Twist struct {
	VX     float64
	VY     float64
	VTheta float64
}

// PoseIntegrator turns successive robot-frame samples into a world-frame pose by dead
// reckoning. Velocities are differenced in the robot frame and rotated by the integrated world
// heading.
type PoseIntegrator struct {
	tracking bool
	last     RobotSample
	current  RobotSample
	pose     WorldPose
}

// NewPoseIntegrator returns an integrator at the world origin. With seedFromFirst the first
// sample only initialises the robot-frame reference; otherwise the reference starts at zero and
// the first sample is integrated against it.
func NewPoseIntegrator(seedFromFirst bool) *PoseIntegrator {
	return &PoseIntegrator{tracking: !seedFromFirst}
}

// Pose returns the accumulated world pose.
func (p *PoseIntegrator) Pose() WorldPose {
	return p.pose
}

// Tracking reports whether the integrator has a reference sample.
func (p *PoseIntegrator) Tracking() bool {
	return p.tracking
}

// Update integrates sample, taken dt seconds after the previous one. It reports false, and
// changes nothing, when dt is not positive; it also reports false for the seeding sample.
func (p *PoseIntegrator) Update(sample RobotSample, dt float64) (Twist, bool) {
	if !(dt > 0) {
		return Twist{}, false
	}

	if !p.tracking {
		p.last = sample
		p.current = sample
		p.tracking = true
		return Twist{}, false
	}

	p.last = p.current
	p.current = sample

	twist := Twist{
		VX:     (p.current.X - p.last.X) / dt,
		VY:     (p.current.Y - p.last.Y) / dt,
		VTheta: (p.current.Theta - p.last.Theta) / dt,
	}

	sin, cos := math.Sincos(p.pose.Theta)
	p.pose.X += (twist.VX*cos - twist.VY*sin) * dt
	p.pose.Y += (twist.VX*sin + twist.VY*cos) * dt
	p.pose.Theta += twist.VTheta * dt

	return twist, true
}
