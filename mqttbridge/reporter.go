package mqttbridge

import (
	"context"
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"omnibase/control"
)

// Publisher is the part of an MQTT client the reporter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Reporter publishes loop reports as JSON, fire-and-forget (QoS 0).
type Reporter struct {
	client Publisher
	opts   Options
	logger logging.Logger
}

// NewReporter returns a reporter publishing through client.
func NewReporter(client Publisher, opts Options, logger logging.Logger) *Reporter {
	return &Reporter{client: client, opts: opts.WithDefaults(), logger: logger}
}

func (r *Reporter) ReportOdometry(_ context.Context, odom control.OdometryReport) error {
	return r.publishJSON(r.opts.OdomTopic, odometryMessage(odom))
}

func (r *Reporter) ReportTransform(_ context.Context, tf control.TransformReport) error {
	return r.publishJSON(r.opts.TransformTopic, transformMessage(tf))
}

func (r *Reporter) ReportCurrent(_ context.Context, current control.CurrentReport) error {
	return r.publishJSON(r.opts.CurrentTopic, currentMessage(current))
}

func (r *Reporter) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s message", topic)
	}

	token := r.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(r.opts.PublishTimeout) {
		return errors.Errorf("timed out publishing to %s", topic)
	}
	return errors.Wrapf(token.Error(), "failed to publish to %s", topic)
}
