// Package app wires the standalone omnibase node: serial link, control loop, MQTT bridge and
// the optional Redis pose cache.
package app

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"omnibase/control"
	"omnibase/mqttbridge"
	"omnibase/posecache"
	"omnibase/serialport"
)

// Time the loop gets to write its stop frame before the port is closed under it.
const stopGracePeriod = 250 * time.Millisecond

// Run serves until ctx is cancelled or the control loop fails. A loop failure is returned so
// the process exits non-zero and its supervisor can restart it.
func Run(ctx context.Context, config *Config, logger logging.Logger) (err error) {
	conn, err := serialport.Open(config.Serial.Path, config.Serial.PortOptions)
	if err != nil {
		return err
	}

	commands := &control.Mailbox[control.VelocityCommand]{}
	bridge, err := mqttbridge.Connect(config.MQTT, commands, logger)
	if err != nil {
		return multierr.Combine(err, conn.Close())
	}
	defer bridge.Close()

	reporters := control.Reporters{bridge.Reporter()}
	if config.Redis.Enabled {
		cache, cacheErr := posecache.Connect(ctx, config.Redis.Options)
		if cacheErr != nil {
			return multierr.Combine(cacheErr, conn.Close())
		}
		defer func() {
			err = multierr.Append(err, cache.Close())
		}()
		reporters = append(reporters, cache)
		logger.Infow("caching pose in Redis", "address", config.Redis.WithDefaults().Address)
	}

	loop, err := control.NewLoop(config.LoopConfig(), conn, commands, reporters, clock.New(), logger)
	if err != nil {
		return multierr.Combine(err, conn.Close())
	}

	logger.Infow("omnibase node running", "serial_path", config.Serial.Path, "command_topic", config.MQTT.WithDefaults().CommandTopic)
	return runLoop(ctx, loop, conn, stopGracePeriod, logger)
}

// runLoop runs loop until it returns. Once ctx is done the loop has grace to halt the base,
// after which conn is closed to release a read that is still blocked.
func runLoop(ctx context.Context, loop *control.Loop, conn io.Closer, grace time.Duration, logger logging.Logger) error {
	done := make(chan struct{})
	closed := make(chan error, 1)

	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			select {
			case <-done:
			case <-time.After(grace):
				logger.Debugw("control loop still reading, closing port")
			}
		}
		closed <- conn.Close()
	}()

	err := loop.Run(ctx)
	close(done)
	return multierr.Combine(err, <-closed)
}
