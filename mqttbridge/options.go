// Package mqttbridge connects the control loop to an MQTT broker: velocity commands arrive
// on one topic and odometry, transform and current reports leave on others.
package mqttbridge

import "time"

// Topic and connection defaults, mirroring the pico robot's ROS topic names.
const (
	DefaultBroker         = "tcp://localhost:1883"
	DefaultClientID       = "omnibase"
	DefaultCommandTopic   = "pico/cmd_vel"
	DefaultOdomTopic      = "pico/odom"
	DefaultTransformTopic = "pico/tf"
	DefaultCurrentTopic   = "pico/controlEffort"
	DefaultPublishTimeout = 100 * time.Millisecond
)

// Options configures the MQTT connection and topics.
type Options struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	CommandTopic   string `yaml:"commandTopic"`
	OdomTopic      string `yaml:"odomTopic"`
	TransformTopic string `yaml:"transformTopic"`
	CurrentTopic   string `yaml:"currentTopic"`

	// PublishTimeout bounds how long a report may hold up the control loop.
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// WithDefaults returns o with every unset field filled in.
func (o Options) WithDefaults() Options {
	if o.Broker == "" {
		o.Broker = DefaultBroker
	}
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.CommandTopic == "" {
		o.CommandTopic = DefaultCommandTopic
	}
	if o.OdomTopic == "" {
		o.OdomTopic = DefaultOdomTopic
	}
	if o.TransformTopic == "" {
		o.TransformTopic = DefaultTransformTopic
	}
	if o.CurrentTopic == "" {
		o.CurrentTopic = DefaultCurrentTopic
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	return o
}
