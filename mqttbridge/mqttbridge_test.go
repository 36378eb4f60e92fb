package mqttbridge

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"omnibase/control"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool {
	return !t.timeout
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return !t.timeout
}

func (t *fakeToken) Error() error {
	return t.err
}

func (t *fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	if !t.timeout {
		close(done)
	}
	return done
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	token *fakeToken
	sent  []published
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if p.token == nil {
		return &fakeToken{}
	}
	return p.token
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	test.That(t, opts.Broker, test.ShouldEqual, DefaultBroker)
	test.That(t, opts.ClientID, test.ShouldEqual, DefaultClientID)
	test.That(t, opts.CommandTopic, test.ShouldEqual, "pico/cmd_vel")
	test.That(t, opts.OdomTopic, test.ShouldEqual, "pico/odom")
	test.That(t, opts.TransformTopic, test.ShouldEqual, "pico/tf")
	test.That(t, opts.CurrentTopic, test.ShouldEqual, "pico/controlEffort")
	test.That(t, opts.PublishTimeout, test.ShouldEqual, DefaultPublishTimeout)

	opts = Options{Broker: "tcp://broker:1883", OdomTopic: "robot/odom"}.WithDefaults()
	test.That(t, opts.Broker, test.ShouldEqual, "tcp://broker:1883")
	test.That(t, opts.OdomTopic, test.ShouldEqual, "robot/odom")
}

func TestDecodeTwist(t *testing.T) {
	cmd, err := DecodeTwist([]byte(`{"linear":{"x":0.2,"y":-0.1,"z":0.05},"angular":{"x":1,"y":2,"z":0.7}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmd.Linear.X, test.ShouldEqual, 0.2)
	test.That(t, cmd.Linear.Y, test.ShouldEqual, -0.1)
	test.That(t, cmd.Linear.Z, test.ShouldEqual, 0.05)
	test.That(t, cmd.Angular, test.ShouldEqual, 0.7)

	cmd, err = DecodeTwist([]byte(`{"linear":{"x":0.3}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmd.Linear.X, test.ShouldEqual, 0.3)
	test.That(t, cmd.Angular, test.ShouldEqual, 0.0)

	_, err = DecodeTwist([]byte(`not json`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DecodeTwist([]byte(`{"linear":{"x":"fast"}}`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DecodeTwist([]byte(`{"angular":{"z":1e400}}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeTwistRejectsOverflowingMagnitude(t *testing.T) {
	_, err := DecodeTwist([]byte(`{"linear":{"x":1e200,"y":1e200}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "overflows")

	cmd, err := DecodeTwist([]byte(`{"linear":{"x":1e150},"angular":{"z":1e300}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmd.Linear.X, test.ShouldEqual, 1e150)
	test.That(t, cmd.Angular, test.ShouldEqual, 1e300)
}

func TestHandleCommandPostsLatest(t *testing.T) {
	commands := &control.Mailbox[control.VelocityCommand]{}
	b := &Bridge{opts: Options{}.WithDefaults(), commands: commands, logger: logging.NewTestLogger(t)}

	b.handleCommand(nil, fakeMessage{topic: DefaultCommandTopic, payload: []byte(`{"linear":{"x":0.1}}`)})
	b.handleCommand(nil, fakeMessage{topic: DefaultCommandTopic, payload: []byte(`{"angular":{"z":-0.5}}`)})
	b.handleCommand(nil, fakeMessage{topic: DefaultCommandTopic, payload: []byte(`{broken`)})

	cmd, ok := commands.Take()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Linear.X, test.ShouldEqual, 0.0)
	test.That(t, cmd.Angular, test.ShouldEqual, -0.5)
	test.That(t, commands.Pending(), test.ShouldBeFalse)
}

type fakeClient struct {
	mqtt.Client
	connected   bool
	disconnects int
}

func (c *fakeClient) IsConnected() bool {
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnects++
}

func TestCloseDisconnectsWhileReconnecting(t *testing.T) {
	client := &fakeClient{}
	b := &Bridge{client: client, opts: Options{}.WithDefaults(), logger: logging.NewTestLogger(t)}

	b.Close()
	test.That(t, client.disconnects, test.ShouldEqual, 1)
}

func TestConnectRequiresMailbox(t *testing.T) {
	_, err := Connect(Options{}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReporterPublishesOdometry(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter(pub, Options{}, logging.NewTestLogger(t))
	stamp := time.Unix(1700000000, 250000000)
	half := math.Sqrt2 / 2

	err := r.ReportOdometry(context.Background(), control.OdometryReport{
		Stamp:        stamp,
		FrameID:      "odom",
		ChildFrameID: "base_link",
		Pose:         control.WorldPose{X: 1, Y: 2, Theta: math.Pi / 2},
		Orientation:  quat.Number{Real: half, Kmag: half},
		Twist:        control.Twist{VX: 0.2, VY: -0.1, VTheta: 0.3},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(pub.sent), test.ShouldEqual, 1)
	test.That(t, pub.sent[0].topic, test.ShouldEqual, "pico/odom")
	test.That(t, pub.sent[0].qos, test.ShouldEqual, byte(0))
	test.That(t, pub.sent[0].retained, test.ShouldBeFalse)

	var msg Odometry
	test.That(t, json.Unmarshal(pub.sent[0].payload, &msg), test.ShouldBeNil)
	test.That(t, msg.Header.Stamp, test.ShouldResemble, Stamp{Secs: 1700000000, Nsecs: 250000000})
	test.That(t, msg.Header.FrameID, test.ShouldEqual, "odom")
	test.That(t, msg.ChildFrameID, test.ShouldEqual, "base_link")
	test.That(t, msg.Pose.Pose.Position, test.ShouldResemble, Vector3{X: 1, Y: 2})
	test.That(t, msg.Pose.Pose.Orientation, test.ShouldResemble, Quaternion{Z: half, W: half})
	test.That(t, msg.Twist.Twist, test.ShouldResemble, Twist{
		Linear:  Vector3{X: 0.2, Y: -0.1},
		Angular: Vector3{Z: 0.3},
	})

	var raw map[string]interface{}
	test.That(t, json.Unmarshal(pub.sent[0].payload, &raw), test.ShouldBeNil)
	test.That(t, raw, test.ShouldContainKey, "child_frame_id")
	test.That(t, raw["pose"], test.ShouldContainKey, "pose")
}

func TestReporterPublishesTransformAndCurrent(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter(pub, Options{TransformTopic: "robot/tf"}, logging.NewTestLogger(t))
	ctx := context.Background()

	test.That(t, r.ReportTransform(ctx, control.TransformReport{
		FrameID:      "odom",
		ChildFrameID: "base_link",
		X:            0.5,
		Y:            -0.5,
		Rotation:     quat.Number{Real: 1},
	}), test.ShouldBeNil)
	test.That(t, r.ReportCurrent(ctx, control.CurrentReport{FrameID: "current", IX: 1.5, IY: 2.5, ITheta: -0.5}), test.ShouldBeNil)
	test.That(t, len(pub.sent), test.ShouldEqual, 2)

	test.That(t, pub.sent[0].topic, test.ShouldEqual, "robot/tf")
	var tf TransformStamped
	test.That(t, json.Unmarshal(pub.sent[0].payload, &tf), test.ShouldBeNil)
	test.That(t, tf.ChildFrameID, test.ShouldEqual, "base_link")
	test.That(t, tf.Transform.Translation, test.ShouldResemble, Vector3{X: 0.5, Y: -0.5})
	test.That(t, tf.Transform.Rotation, test.ShouldResemble, Quaternion{W: 1})

	test.That(t, pub.sent[1].topic, test.ShouldEqual, "pico/controlEffort")
	var raw map[string]interface{}
	test.That(t, json.Unmarshal(pub.sent[1].payload, &raw), test.ShouldBeNil)
	test.That(t, raw["I_x"], test.ShouldEqual, 1.5)
	test.That(t, raw["I_y"], test.ShouldEqual, 2.5)
	test.That(t, raw["I_th"], test.ShouldEqual, -0.5)
}

func TestReporterPublishFailures(t *testing.T) {
	errBroker := errors.New("not connected")
	pub := &fakePublisher{token: &fakeToken{err: errBroker}}
	r := NewReporter(pub, Options{}, logging.NewTestLogger(t))

	err := r.ReportCurrent(context.Background(), control.CurrentReport{})
	test.That(t, errors.Is(err, errBroker), test.ShouldBeTrue)

	pub.token = &fakeToken{timeout: true}
	err = r.ReportOdometry(context.Background(), control.OdometryReport{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timed out")
}
