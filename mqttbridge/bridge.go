package mqttbridge

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"omnibase/control"
)

// Bridge owns the MQTT connection. It posts decoded commands to the loop's mailbox.
type Bridge struct {
	client   mqtt.Client
	opts     Options
	commands *control.Mailbox[control.VelocityCommand]
	logger   logging.Logger
}

// Connect dials the broker and subscribes to the command topic. The subscription is renewed
// on every reconnect.
func Connect(opts Options, commands *control.Mailbox[control.VelocityCommand], logger logging.Logger) (*Bridge, error) {
	if commands == nil {
		return nil, errors.New("mqtt bridge requires a command mailbox")
	}
	opts = opts.WithDefaults()

	b := &Bridge{
		opts:     opts,
		commands: commands,
		logger:   logger,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)
	clientOpts.SetOnConnectHandler(b.onConnect)
	clientOpts.SetConnectionLostHandler(b.onConnectionLost)

	b.client = mqtt.NewClient(clientOpts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "failed to connect to MQTT broker %s", opts.Broker)
	}
	return b, nil
}

// Reporter returns a reporter publishing on this bridge's connection.
func (b *Bridge) Reporter() *Reporter {
	return NewReporter(b.client, b.opts, b.logger)
}

// Close disconnects from the broker and stops any reconnect in progress.
func (b *Bridge) Close() {
	wasConnected := b.client.IsConnected()
	b.client.Disconnect(250)
	b.logger.Infow("MQTT client disconnected", "was_connected", wasConnected)
}

func (b *Bridge) onConnect(client mqtt.Client) {
	b.logger.Infow("connected to MQTT broker", "broker", b.opts.Broker)
	if token := client.Subscribe(b.opts.CommandTopic, 0, b.handleCommand); token.Wait() && token.Error() != nil {
		b.logger.Errorw("failed to subscribe to command topic", "topic", b.opts.CommandTopic, "error", token.Error())
		return
	}
	b.logger.Infow("subscribed to command topic", "topic", b.opts.CommandTopic)
}

func (b *Bridge) onConnectionLost(_ mqtt.Client, err error) {
	b.logger.Warnw("MQTT connection lost, reconnecting", "error", err)
}

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := DecodeTwist(msg.Payload())
	if err != nil {
		b.logger.Warnw("dropping velocity command", "topic", msg.Topic(), "error", err)
		return
	}
	b.commands.Post(cmd)
}
