// Package omnibase exposes the omnibase control loop as a Viam base component.
package omnibase

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	viamutils "go.viam.com/utils"

	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	rdkutils "go.viam.com/rdk/utils"

	"omnibase/control"
	"omnibase/serialport"
)

// Model is the Viam model of the serial omnibase.
var Model = resource.NewModel("omnibase", "serial", "omni")

// Time the loop gets to write its stop frame before the port is closed under it.
const (
	stopGracePeriod      = 250 * time.Millisecond
	dispatchPollInterval = 5 * time.Millisecond
)

func init() {
	resource.RegisterComponent(base.API, Model, resource.Registration[base.Base, *Config]{
		Constructor: newBase,
	})
}

// transport is the serial connection as the base uses it.
type transport interface {
	control.Transport
	Close() error
}

type omniBase struct {
	resource.Named

	mu                       sync.Mutex
	conf                     *Config
	geometries               []spatialmath.Geometry
	widthMeters              float64
	wheelCircumferenceMeters float64
	loopErr                  error

	logger    logging.Logger
	conn      transport
	loop      *control.Loop
	commands  *control.Mailbox[control.VelocityCommand]
	telemetry *telemetry

	isMoving                atomic.Bool
	stopGrace               time.Duration
	loopDone                chan struct{}
	activeBackgroundWorkers sync.WaitGroup
	cancel                  func()
}

// newBase opens the serial port and starts the control loop in the background.
func newBase(ctx context.Context, _ resource.Dependencies, conf resource.Config, logger logging.Logger) (base.Base, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	conn, err := serialport.Open(newConf.SerialPath, newConf.portOptions())
	if err != nil {
		return nil, err
	}

	b, err := newOmniBase(conf, conn, clock.New(), logger)
	if err != nil {
		return nil, multierr.Combine(err, conn.Close())
	}
	logger.Infow("omnibase started", "serial_path", newConf.SerialPath)
	return b, nil
}

func newOmniBase(conf resource.Config, conn transport, clk clock.Clock, logger logging.Logger) (*omniBase, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	geometries, err := parseGeometries(conf)
	if err != nil {
		return nil, err
	}

	commands := &control.Mailbox[control.VelocityCommand]{}
	telem := &telemetry{}
	loop, err := control.NewLoop(newConf.loopConfig(), conn, commands, telem, clk, logger)
	if err != nil {
		return nil, errors.Wrap(err, "invalid loop configuration")
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	b := &omniBase{
		Named:      conf.ResourceName().AsNamed(),
		conf:       newConf,
		geometries: geometries,
		logger:     logger,
		conn:       conn,
		loop:       loop,
		commands:   commands,
		telemetry:  telem,
		stopGrace:  stopGracePeriod,
		loopDone:   make(chan struct{}),
		cancel:     cancel,
	}
	b.widthMeters, b.wheelCircumferenceMeters = newConf.properties()

	b.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		if err := loop.Run(cancelCtx); err != nil {
			logger.Errorw("control loop failed", "error", err)
			b.setLoopError(err)
		}
	}, func() {
		close(b.loopDone)
		b.activeBackgroundWorkers.Done()
	})

	return b, nil
}

func parseGeometries(conf resource.Config) ([]spatialmath.Geometry, error) {
	geometries := []spatialmath.Geometry{}
	if conf.Frame == nil {
		return geometries, nil
	}
	frame, err := conf.Frame.ParseConfig()
	if err != nil {
		return nil, err
	}
	if g := frame.Geometry(); g != nil {
		geometries = append(geometries, g)
	}
	return geometries, nil
}

func (b *omniBase) setLoopError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loopErr = err
	b.isMoving.Store(false)
}

func (b *omniBase) loopError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loopErr
}

// velocityFromViam converts a Viam base velocity (mm/s with +Y forward and +X right, deg/s)
// into a robot frame command (m/s with x forward and y left, rad/s).
func velocityFromViam(linear, angular r3.Vector) control.VelocityCommand {
	return control.VelocityCommand{
		Linear:  r3.Vector{X: linear.Y / 1000, Y: -linear.X / 1000},
		Angular: rdkutils.DegToRad(angular.Z),
	}
}

func (b *omniBase) warnUnusedAxes(linear, angular r3.Vector) {
	// Some vector components do not apply to a 2D base
	if linear.Z != 0 {
		b.logger.Warnw("Linear Z command non-zero and has no effect")
	}
	if angular.X != 0 {
		b.logger.Warnw("Angular X command non-zero and has no effect")
	}
	if angular.Y != 0 {
		b.logger.Warnw("Angular Y command non-zero and has no effect")
	}
}

// setNextCommand hands cmd to the loop, replacing any command not yet dispatched.
func (b *omniBase) setNextCommand(ctx context.Context, cmd control.VelocityCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.loopError(); err != nil {
		return errors.Wrap(err, "control loop is not running")
	}
	b.commands.Post(cmd)
	b.isMoving.Store(cmd != control.VelocityCommand{})
	return nil
}

// MoveStraight drives forward (or backward) for distanceMm at mmPerSec, then stops. The
// duration follows the speed the loop will actually command after limiting.
func (b *omniBase) MoveStraight(ctx context.Context, distanceMm int, mmPerSec float64, extra map[string]interface{}) error {
	if distanceMm == 0 || mmPerSec == 0 {
		return b.Stop(ctx, extra)
	}

	speed := math.Abs(mmPerSec)
	if (distanceMm < 0) != (mmPerSec < 0) {
		speed = -speed
	}
	cmd, _ := b.loop.SpeedLimits().Clamp(velocityFromViam(r3.Vector{Y: speed}, r3.Vector{}))
	if cmd.Linear.Norm() == 0 {
		return errors.New("cannot move straight with a zero linear speed limit")
	}
	distance := math.Abs(float64(distanceMm)) / 1000
	return b.moveFor(ctx, cmd, secondsToDuration(distance/cmd.Linear.Norm()))
}

// Spin turns by angleDeg at degsPerSec, then stops. The duration follows the limited rate.
func (b *omniBase) Spin(ctx context.Context, angleDeg, degsPerSec float64, extra map[string]interface{}) error {
	if angleDeg == 0 || degsPerSec == 0 {
		return b.Stop(ctx, extra)
	}

	rate := math.Abs(degsPerSec)
	if (angleDeg < 0) != (degsPerSec < 0) {
		rate = -rate
	}
	cmd, _ := b.loop.SpeedLimits().Clamp(velocityFromViam(r3.Vector{}, r3.Vector{Z: rate}))
	if cmd.Angular == 0 {
		return errors.New("cannot spin with a zero angular speed limit")
	}
	angle := math.Abs(rdkutils.DegToRad(angleDeg))
	return b.moveFor(ctx, cmd, secondsToDuration(angle/math.Abs(cmd.Angular)))
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// moveFor runs cmd for duration, timed from the moment the loop takes it from the mailbox.
func (b *omniBase) moveFor(ctx context.Context, cmd control.VelocityCommand, duration time.Duration) error {
	if err := b.setNextCommand(ctx, cmd); err != nil {
		return err
	}

	defer func() {
		b.commands.Post(control.VelocityCommand{})
		b.isMoving.Store(false)
	}()

	for b.commands.Pending() {
		if err := b.loopError(); err != nil {
			return errors.Wrap(err, "control loop is not running")
		}
		if !viamutils.SelectContextOrWait(ctx, dispatchPollInterval) {
			return ctx.Err()
		}
	}

	if !viamutils.SelectContextOrWait(ctx, duration) {
		return ctx.Err()
	}
	return nil
}

// SetPower sets the linear and angular [-1, 1] drive power as a fraction of the speed limits.
func (b *omniBase) SetPower(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.warnUnusedAxes(linear, angular)

	limits := b.loop.SpeedLimits()
	return b.setNextCommand(ctx, control.VelocityCommand{
		Linear:  r3.Vector{X: linear.Y * limits.MaxLinear, Y: -linear.X * limits.MaxLinear},
		Angular: angular.Z * limits.MaxAngular,
	})
}

// SetVelocity sets the linear (mmPerSec) and angular (degsPerSec) velocity.
func (b *omniBase) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.warnUnusedAxes(linear, angular)
	return b.setNextCommand(ctx, velocityFromViam(linear, angular))
}

func (b *omniBase) Stop(ctx context.Context, extra map[string]interface{}) error {
	b.isMoving.Store(false)
	if err := b.loopError(); err != nil {
		return errors.Wrap(err, "control loop is not running")
	}
	b.commands.Post(control.VelocityCommand{})
	return nil
}

func (b *omniBase) IsMoving(ctx context.Context) (bool, error) {
	return b.isMoving.Load(), nil
}

func (b *omniBase) Properties(ctx context.Context, extra map[string]interface{}) (base.Properties, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return base.Properties{
		WidthMeters:              b.widthMeters,
		WheelCircumferenceMeters: b.wheelCircumferenceMeters,
	}, nil
}

func (b *omniBase) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.geometries, nil
}

// DoCommand exposes the loop's odometry and limits beyond the Base interface.
func (b *omniBase) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"]
	if !ok {
		return nil, errors.New("missing 'command' value")
	}
	switch name {
	case "get_odometry":
		return b.telemetry.odometry(), nil

	case "get_current":
		return b.telemetry.currents(), nil

	case "get_telemetry":
		loopErr := ""
		if err := b.loopError(); err != nil {
			loopErr = err.Error()
		}
		return map[string]interface{}{
			telemOdometry:  b.telemetry.odometry(),
			telemCurrent:   b.telemetry.currents(),
			telemReports:   b.telemetry.reportCount(),
			telemLimits:    limitsToMap(b.loop.SpeedLimits()),
			telemIsMoving:  b.isMoving.Load(),
			telemLoopError: loopErr,
		}, nil

	case "set_speed_limits":
		limits := b.loop.SpeedLimits()
		for key, dst := range map[string]*float64{
			"max_speed_linear":  &limits.MaxLinear,
			"max_speed_angular": &limits.MaxAngular,
			"max_speed_error":   &limits.Tolerance,
		} {
			raw, ok := cmd[key]
			if !ok {
				continue
			}
			value, ok := raw.(float64)
			if !ok {
				return nil, errors.Errorf("%s value must be a float but is type %T", key, raw)
			}
			*dst = value
		}
		if err := b.loop.SetSpeedLimits(limits); err != nil {
			return nil, err
		}
		b.logger.Infow("speed limits updated",
			"max_speed_linear", limits.MaxLinear,
			"max_speed_angular", limits.MaxAngular,
			"max_speed_error", limits.Tolerance,
		)
		return limitsToMap(limits), nil

	default:
		return nil, errors.Errorf("no such command: %s", name)
	}
}

func limitsToMap(limits control.SpeedLimits) map[string]interface{} {
	return map[string]interface{}{
		"max_speed_linear":  limits.MaxLinear,
		"max_speed_angular": limits.MaxAngular,
		"max_speed_error":   limits.Tolerance,
	}
}

// Reconfigure applies new speed limits, dimensions and frame in place. Anything that touches
// the serial link or the loop timing needs a rebuild.
func (b *omniBase) Reconfigure(ctx context.Context, deps resource.Dependencies, conf resource.Config) error {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if rebuildRequired(b.conf, newConf) {
		return resource.NewMustRebuildError(conf.ResourceName())
	}

	geometries, err := parseGeometries(conf)
	if err != nil {
		return err
	}
	if err := b.loop.SetSpeedLimits(newConf.loopConfig().Limits); err != nil {
		return err
	}

	b.conf = newConf
	b.geometries = geometries
	b.widthMeters, b.wheelCircumferenceMeters = newConf.properties()
	return nil
}

func rebuildRequired(oldConf, newConf *Config) bool {
	if oldConf.SerialPath != newConf.SerialPath || oldConf.portOptions() != newConf.portOptions() {
		return true
	}
	oldLoop, newLoop := oldConf.loopConfig(), newConf.loopConfig()
	oldLoop.Limits, newLoop.Limits = control.SpeedLimits{}, control.SpeedLimits{}
	return oldLoop != newLoop
}

// Close stops the loop and releases the serial port. The loop gets a short grace period to
// write its stop frame; closing the port then unblocks a read that is still pending.
func (b *omniBase) Close(ctx context.Context) error {
	b.cancel()

	select {
	case <-b.loopDone:
	case <-ctx.Done():
	case <-time.After(b.stopGrace):
		b.logger.Debugw("control loop still reading, closing port")
	}

	err := b.conn.Close()
	b.activeBackgroundWorkers.Wait()
	b.isMoving.Store(false)
	return err
}
