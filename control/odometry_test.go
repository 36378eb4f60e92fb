package control

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestPoseIntegratorSeedsFromFirstSample(t *testing.T) {
	p := NewPoseIntegrator(true)
	test.That(t, p.Tracking(), test.ShouldBeFalse)

	_, ok := p.Update(RobotSample{X: 5, Y: -3, Theta: 1}, 0.1)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, p.Tracking(), test.ShouldBeTrue)
	test.That(t, p.Pose(), test.ShouldResemble, WorldPose{})

	twist, ok := p.Update(RobotSample{X: 5.1, Y: -3, Theta: 1}, 0.5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, twist.VX, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, twist.VY, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, twist.VTheta, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, p.Pose().X, test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, p.Pose().Y, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, p.Pose().Theta, test.ShouldAlmostEqual, 0.0, 1e-9)
}

func TestPoseIntegratorZeroSeed(t *testing.T) {
	p := NewPoseIntegrator(false)
	test.That(t, p.Tracking(), test.ShouldBeTrue)

	twist, ok := p.Update(RobotSample{X: 0.1}, 0.5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, twist.VX, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, p.Pose().X, test.ShouldAlmostEqual, 0.1, 1e-9)
}

func TestPoseIntegratorZeroMotion(t *testing.T) {
	p := NewPoseIntegrator(true)
	sample := RobotSample{X: 1.0, Y: 2.0, Theta: 0.5}

	p.Update(sample, 0.005)
	twist, ok := p.Update(sample, 0.005)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, twist, test.ShouldResemble, Twist{})
	test.That(t, p.Pose(), test.ShouldResemble, WorldPose{})
}

func TestPoseIntegratorSkipsNonPositiveDt(t *testing.T) {
	p := NewPoseIntegrator(true)

	_, ok := p.Update(RobotSample{}, 0)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, p.Tracking(), test.ShouldBeFalse)

	p.Update(RobotSample{}, 0.1)
	p.Update(RobotSample{X: 0.1}, 0.5)
	before := *p

	for _, dt := range []float64{0, -0.1, math.NaN()} {
		_, ok := p.Update(RobotSample{X: 9, Y: 9, Theta: 9}, dt)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, *p, test.ShouldResemble, before)
	}

	// The skipped sample never became the reference.
	twist, ok := p.Update(RobotSample{X: 0.2}, 0.5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, twist.VX, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, p.Pose().X, test.ShouldAlmostEqual, 0.2, 1e-9)
}

func TestPoseIntegratorRotatesByWorldHeading(t *testing.T) {
	p := NewPoseIntegrator(true)
	p.Update(RobotSample{}, 0.1)

	twist, ok := p.Update(RobotSample{Theta: math.Pi / 2}, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, twist.VTheta, test.ShouldAlmostEqual, math.Pi/2, 1e-9)
	test.That(t, p.Pose().Theta, test.ShouldAlmostEqual, math.Pi/2, 1e-9)

	// Robot-frame forward motion becomes world +y once the heading is a quarter turn.
	p.Update(RobotSample{X: 0.1, Theta: math.Pi / 2}, 1)
	test.That(t, p.Pose().X, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, p.Pose().Y, test.ShouldAlmostEqual, 0.1, 1e-9)

	// And robot-frame left motion becomes world -x.
	p.Update(RobotSample{X: 0.1, Y: 0.2, Theta: math.Pi / 2}, 1)
	test.That(t, p.Pose().X, test.ShouldAlmostEqual, -0.2, 1e-9)
	test.That(t, p.Pose().Y, test.ShouldAlmostEqual, 0.1, 1e-9)
}

func TestWorldPoseQuaternion(t *testing.T) {
	q := WorldPose{}.Quaternion()
	test.That(t, q.Real, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, q.Imag, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, q.Jmag, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, q.Kmag, test.ShouldAlmostEqual, 0.0, 1e-9)

	q = WorldPose{Theta: math.Pi / 2}.Quaternion()
	test.That(t, q.Real, test.ShouldAlmostEqual, math.Sqrt2/2, 1e-9)
	test.That(t, q.Imag, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, q.Jmag, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, q.Kmag, test.ShouldAlmostEqual, math.Sqrt2/2, 1e-9)
}
