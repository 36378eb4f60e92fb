package mqttbridge

import (
	"encoding/json"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"omnibase/control"
)

// The payloads follow the field layout of the ROS messages the robot used to publish, so
// existing consumers only need a JSON decoder.

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func quaternionFrom(q quat.Number) Quaternion {
	return Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Twist is geometry_msgs/Twist.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Stamp is a ROS time.
type Stamp struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

func stampFrom(t time.Time) Stamp {
	return Stamp{Secs: t.Unix(), Nsecs: int64(t.Nanosecond())}
}

// Header is std_msgs/Header without the sequence number.
type Header struct {
	Stamp   Stamp  `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Odometry is nav_msgs/Odometry without covariances.
type Odometry struct {
	Header       Header `json:"header"`
	ChildFrameID string `json:"child_frame_id"`
	Pose         struct {
		Pose Pose `json:"pose"`
	} `json:"pose"`
	Twist struct {
		Twist Twist `json:"twist"`
	} `json:"twist"`
}

// Transform is geometry_msgs/Transform.
type Transform struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// TransformStamped is geometry_msgs/TransformStamped.
type TransformStamped struct {
	Header       Header    `json:"header"`
	ChildFrameID string    `json:"child_frame_id"`
	Transform    Transform `json:"transform"`
}

// ControlEffort carries the controller's effort values.
type ControlEffort struct {
	Header Header  `json:"header"`
	IX     float64 `json:"I_x"`
	IY     float64 `json:"I_y"`
	ITh    float64 `json:"I_th"`
}

func odometryMessage(odom control.OdometryReport) Odometry {
	var msg Odometry
	msg.Header = Header{Stamp: stampFrom(odom.Stamp), FrameID: odom.FrameID}
	msg.ChildFrameID = odom.ChildFrameID
	msg.Pose.Pose = Pose{
		Position:    Vector3{X: odom.Pose.X, Y: odom.Pose.Y},
		Orientation: quaternionFrom(odom.Orientation),
	}
	msg.Twist.Twist = Twist{
		Linear:  Vector3{X: odom.Twist.VX, Y: odom.Twist.VY},
		Angular: Vector3{Z: odom.Twist.VTheta},
	}
	return msg
}

func transformMessage(tf control.TransformReport) TransformStamped {
	return TransformStamped{
		Header:       Header{Stamp: stampFrom(tf.Stamp), FrameID: tf.FrameID},
		ChildFrameID: tf.ChildFrameID,
		Transform: Transform{
			Translation: Vector3{X: tf.X, Y: tf.Y, Z: tf.Z},
			Rotation:    quaternionFrom(tf.Rotation),
		},
	}
}

func currentMessage(current control.CurrentReport) ControlEffort {
	return ControlEffort{
		Header: Header{Stamp: stampFrom(current.Stamp), FrameID: current.FrameID},
		IX:     current.IX,
		IY:     current.IY,
		ITh:    current.ITheta,
	}
}

// DecodeTwist reads a Twist payload into a velocity command. Only linear x/y/z and angular z
// are used.
func DecodeTwist(payload []byte) (control.VelocityCommand, error) {
	var twist Twist
	if err := json.Unmarshal(payload, &twist); err != nil {
		return control.VelocityCommand{}, errors.Wrap(err, "invalid twist payload")
	}
	cmd := control.VelocityCommand{
		Linear:  r3.Vector{X: twist.Linear.X, Y: twist.Linear.Y, Z: twist.Linear.Z},
		Angular: twist.Angular.Z,
	}
	// Finite components can still overflow the norm the limiter scales by.
	if math.IsInf(cmd.Linear.Norm(), 0) {
		return control.VelocityCommand{}, errors.New("linear twist magnitude overflows")
	}
	return cmd, nil
}
