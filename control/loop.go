package control

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"omnibase/protocol"
)

// Loop rate defaults.
const (
	DefaultRateHz         = 200.0
	DefaultDispatchRateHz = 10.0
	DefaultCurrentFrame   = "current"
)

// LoopConfig configures a Loop.
type LoopConfig struct {
	RateHz         float64
	DispatchRateHz float64
	Limits         SpeedLimits

	OdomFrame    string
	BaseFrame    string
	CurrentFrame string

	// SeedFromFirstTelegram makes the first telegram a reference only. When false the first
	// telegram is integrated against a zero reference.
	SeedFromFirstTelegram bool
	// StopOnExit writes a zero velocity frame when the loop is cancelled.
	StopOnExit bool
}

// DefaultLoopConfig returns the stock loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		RateHz:                DefaultRateHz,
		DispatchRateHz:        DefaultDispatchRateHz,
		Limits:                DefaultSpeedLimits(),
		OdomFrame:             DefaultOdomFrame,
		BaseFrame:             DefaultBaseFrame,
		CurrentFrame:          DefaultCurrentFrame,
		SeedFromFirstTelegram: true,
		StopOnExit:            true,
	}
}

// Validate checks that the configuration can drive a loop.
func (c LoopConfig) Validate() error {
	if !(c.RateHz > 0) {
		return errors.Errorf("loop rate must be positive, got %v", c.RateHz)
	}
	if !(c.DispatchRateHz > 0) {
		return errors.Errorf("dispatch rate must be positive, got %v", c.DispatchRateHz)
	}
	if c.OdomFrame == "" || c.BaseFrame == "" || c.CurrentFrame == "" {
		return errors.New("frame ids must not be empty")
	}
	return c.Limits.Validate()
}

// Validate checks that the limits are usable.
func (s SpeedLimits) Validate() error {
	if s.MaxLinear < 0 {
		return errors.Errorf("max_speed_linear must not be negative, got %v", s.MaxLinear)
	}
	if s.MaxAngular < 0 {
		return errors.Errorf("max_speed_angular must not be negative, got %v", s.MaxAngular)
	}
	if s.Tolerance < 0 {
		return errors.Errorf("max_speed_error must not be negative, got %v", s.Tolerance)
	}
	return nil
}

// Transport is the line oriented link to the controller.
type Transport interface {
	// ReadLine blocks until one line has been read.
	ReadLine() (string, error)
	// WriteFrame writes a complete frame.
	WriteFrame(frame []byte) error
}

// Loop is the fixed rate control loop. Each iteration it dispatches the latest pending
// velocity command (at most DispatchRateHz), reads one telegram and publishes the resulting
// odometry. A Loop owns its transport for writing and must only be Run once.
type Loop struct {
	cfg       LoopConfig
	transport Transport
	commands  *Mailbox[VelocityCommand]
	reporter  Reporter
	clock     clock.Clock
	logger    logging.Logger

	limiter    *Limiter
	integrator *PoseIntegrator

	period         time.Duration
	dispatchPeriod time.Duration
	lastIteration  time.Time
	lastDispatch   time.Time
}

// NewLoop builds a loop. A nil reporter discards reports and a nil clock uses wall time.
func NewLoop(
	cfg LoopConfig,
	transport Transport,
	commands *Mailbox[VelocityCommand],
	reporter Reporter,
	clk clock.Clock,
	logger logging.Logger,
) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New("loop requires a transport")
	}
	if commands == nil {
		return nil, errors.New("loop requires a command mailbox")
	}
	if reporter == nil {
		reporter = Reporters{}
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Loop{
		cfg:            cfg,
		transport:      transport,
		commands:       commands,
		reporter:       reporter,
		clock:          clk,
		logger:         logger,
		limiter:        NewLimiter(cfg.Limits, logger),
		integrator:     NewPoseIntegrator(cfg.SeedFromFirstTelegram),
		period:         rateToPeriod(cfg.RateHz),
		dispatchPeriod: rateToPeriod(cfg.DispatchRateHz),
	}, nil
}

func rateToPeriod(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// SpeedLimits returns the limits currently applied to commands.
func (l *Loop) SpeedLimits() SpeedLimits {
	return l.limiter.Limits()
}

// SetSpeedLimits replaces the limits applied to commands. It is safe to call while the loop
// is running.
func (l *Loop) SetSpeedLimits(limits SpeedLimits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	l.limiter.SetLimits(limits)
	return nil
}

// Run drives the loop until ctx is done or the transport fails. Cancellation is a clean exit
// and returns nil; transport errors are returned.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.Ticker(l.period)
	defer ticker.Stop()

	l.start(l.clock.Now())
	l.logger.Infow("control loop started", "rate_hz", l.cfg.RateHz, "dispatch_rate_hz", l.cfg.DispatchRateHz)

	for {
		if ctx.Err() != nil {
			return l.halt()
		}

		now := l.clock.Now()
		dt := now.Sub(l.lastIteration).Seconds()
		l.lastIteration = now

		if err := l.step(ctx, now, dt); err != nil {
			if ctx.Err() != nil {
				return l.halt()
			}
			return err
		}

		select {
		case <-ctx.Done():
			return l.halt()
		case <-ticker.C:
		}
	}
}

// start resets the iteration and dispatch timers.
func (l *Loop) start(now time.Time) {
	l.lastIteration = now
	l.lastDispatch = now
}

// step runs one iteration at time now, dt seconds after the previous one.
func (l *Loop) step(ctx context.Context, now time.Time, dt float64) error {
	if err := l.dispatch(now); err != nil {
		return err
	}

	line, err := l.transport.ReadLine()
	if err != nil {
		return errors.Wrap(err, "failed to read telegram")
	}

	tg, ok := protocol.ParseTelegram(line)
	if !ok {
		l.logger.Debugw("discarding malformed telegram", "line", line)
		return nil
	}
	if !(dt > 0) {
		l.logger.Debugw("skipping telegram with non-positive dt", "dt", dt)
		return nil
	}

	twist, ok := l.integrator.Update(sampleFromTelegram(tg), dt)
	if !ok {
		return nil
	}
	l.publish(ctx, now, tg, twist)
	return nil
}

// dispatch sends the pending command if the dispatch period has elapsed.
func (l *Loop) dispatch(now time.Time) error {
	if now.Before(l.lastDispatch.Add(l.dispatchPeriod)) {
		return nil
	}
	cmd, ok := l.commands.Take()
	if !ok {
		return nil
	}

	cmd, _ = l.limiter.Limit(cmd)
	if err := l.transport.WriteFrame(cmd.command().Frame()); err != nil {
		return errors.Wrap(err, "failed to write velocity command")
	}
	l.lastDispatch = now
	return nil
}

func (l *Loop) publish(ctx context.Context, now time.Time, tg protocol.Telegram, twist Twist) {
	pose := l.integrator.Pose()
	orientation := pose.Quaternion()

	if err := l.reporter.ReportOdometry(ctx, OdometryReport{
		Stamp:        now,
		FrameID:      l.cfg.OdomFrame,
		ChildFrameID: l.cfg.BaseFrame,
		Pose:         pose,
		Orientation:  orientation,
		Twist:        twist,
	}); err != nil {
		l.logger.Errorw("odometry report failed", "error", err)
	}

	if err := l.reporter.ReportTransform(ctx, TransformReport{
		Stamp:        now,
		FrameID:      l.cfg.OdomFrame,
		ChildFrameID: l.cfg.BaseFrame,
		X:            pose.X,
		Y:            pose.Y,
		Rotation:     orientation,
	}); err != nil {
		l.logger.Errorw("transform report failed", "error", err)
	}

	if err := l.reporter.ReportCurrent(ctx, CurrentReport{
		Stamp:   now,
		FrameID: l.cfg.CurrentFrame,
		IX:      tg.IX,
		IY:      tg.IY,
		ITheta:  tg.ITheta,
	}); err != nil {
		l.logger.Errorw("current report failed", "error", err)
	}
}

// halt leaves the base stationary on shutdown.
func (l *Loop) halt() error {
	defer l.logger.Infow("control loop stopped")
	if !l.cfg.StopOnExit {
		return nil
	}
	if err := l.transport.WriteFrame(VelocityCommand{}.command().Frame()); err != nil {
		l.logger.Warnw("failed to write stop command on exit", "error", err)
	}
	return nil
}
