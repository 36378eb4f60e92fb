package control

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"
)

// Default frame identifiers for published reports.
const (
	DefaultOdomFrame = "odom"
	DefaultBaseFrame = "base_link"
)

// OdometryReport is the world pose and velocity of the base after a telegram.
type OdometryReport struct {
	Stamp        time.Time
	FrameID      string
	ChildFrameID string

	Pose        WorldPose
	Orientation quat.Number
	Twist       Twist
}

// TransformReport is the odom -> base transform after a telegram.
type TransformReport struct {
	Stamp        time.Time
	FrameID      string
	ChildFrameID string

	X, Y, Z  float64
	Rotation quat.Number
}

// CurrentReport carries the effort values from a telegram.
type CurrentReport struct {
	Stamp   time.Time
	FrameID string

	IX     float64
	IY     float64
	ITheta float64
}

// Reporter receives the loop's outputs. Implementations must not block for long; the loop
// calls them inline.
type Reporter interface {
	ReportOdometry(ctx context.Context, odom OdometryReport) error
	ReportTransform(ctx context.Context, tf TransformReport) error
	ReportCurrent(ctx context.Context, current CurrentReport) error
}

// Reporters fans every report out to each of its members.
type Reporters []Reporter

// ReportOdometry implements Reporter.
func (rs Reporters) ReportOdometry(ctx context.Context, odom OdometryReport) error {
	var err error
	for _, r := range rs {
		err = multierr.Append(err, r.ReportOdometry(ctx, odom))
	}
	return err
}

// ReportTransform implements Reporter.
func (rs Reporters) ReportTransform(ctx context.Context, tf TransformReport) error {
	var err error
	for _, r := range rs {
		err = multierr.Append(err, r.ReportTransform(ctx, tf))
	}
	return err
}

// ReportCurrent implements Reporter.
func (rs Reporters) ReportCurrent(ctx context.Context, current CurrentReport) error {
	var err error
	for _, r := range rs {
		err = multierr.Append(err, r.ReportCurrent(ctx, current))
	}
	return err
}
