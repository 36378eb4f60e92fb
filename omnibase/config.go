package omnibase

import (
	"math"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"omnibase/control"
	"omnibase/serialport"
)

// Physical defaults reported through Properties.
const (
	DefaultWidthMeters              = 0.35
	DefaultWheelCircumferenceMeters = 2 * math.Pi * 0.03
)

// Config is the attribute set of an omnibase component.
type Config struct {
	SerialPath     string `json:"serial_path"`
	SerialBaudRate int    `json:"serial_baud_rate,omitempty"`
	DataBits       int    `json:"data_bits,omitempty"`
	Parity         string `json:"parity,omitempty"`
	StopBits       int    `json:"stop_bits,omitempty"`
	ReadTimeoutMs  int    `json:"read_timeout_ms,omitempty"`

	LoopRateHz     float64 `json:"loop_rate_hz,omitempty"`
	DispatchRateHz float64 `json:"dispatch_rate_hz,omitempty"`

	MaxSpeedLinear  float64 `json:"max_speed_linear,omitempty"`  // m/s
	MaxSpeedAngular float64 `json:"max_speed_angular,omitempty"` // rad/s
	MaxSpeedError   float64 `json:"max_speed_error,omitempty"`

	OdomFrame    string `json:"odom_frame,omitempty"`
	BaseFrame    string `json:"base_frame,omitempty"`
	CurrentFrame string `json:"current_frame,omitempty"`

	SeedFromFirstTelegram *bool `json:"seed_from_first_telegram,omitempty"`
	StopOnExit            *bool `json:"stop_on_exit,omitempty"`

	WidthMeters              float64 `json:"width_meters,omitempty"`
	WheelCircumferenceMeters float64 `json:"wheel_circumference_meters,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) ([]string, error) {
	if c.SerialPath == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "serial_path")
	}
	if c.ReadTimeoutMs < 0 {
		return nil, errors.Errorf("%s: read_timeout_ms must not be negative", path)
	}
	if c.WidthMeters < 0 || c.WheelCircumferenceMeters < 0 {
		return nil, errors.Errorf("%s: base dimensions must not be negative", path)
	}
	if _, err := c.portOptions().Normalize(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	if err := c.loopConfig().Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return nil, nil
}

func (c *Config) portOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate:    c.SerialBaudRate,
		DataBits:    c.DataBits,
		StopBits:    c.StopBits,
		Parity:      c.Parity,
		ReadTimeout: time.Duration(c.ReadTimeoutMs) * time.Millisecond,
	}
}

// loopConfig fills every unset attribute from the loop defaults.
func (c *Config) loopConfig() control.LoopConfig {
	cfg := control.DefaultLoopConfig()
	if c.LoopRateHz != 0 {
		cfg.RateHz = c.LoopRateHz
	}
	if c.DispatchRateHz != 0 {
		cfg.DispatchRateHz = c.DispatchRateHz
	}
	if c.MaxSpeedLinear != 0 {
		cfg.Limits.MaxLinear = c.MaxSpeedLinear
	}
	if c.MaxSpeedAngular != 0 {
		cfg.Limits.MaxAngular = c.MaxSpeedAngular
	}
	if c.MaxSpeedError != 0 {
		cfg.Limits.Tolerance = c.MaxSpeedError
	}
	if c.OdomFrame != "" {
		cfg.OdomFrame = c.OdomFrame
	}
	if c.BaseFrame != "" {
		cfg.BaseFrame = c.BaseFrame
	}
	if c.CurrentFrame != "" {
		cfg.CurrentFrame = c.CurrentFrame
	}
	if c.SeedFromFirstTelegram != nil {
		cfg.SeedFromFirstTelegram = *c.SeedFromFirstTelegram
	}
	if c.StopOnExit != nil {
		cfg.StopOnExit = *c.StopOnExit
	}
	return cfg
}

func (c *Config) properties() (width, wheelCircumference float64) {
	width, wheelCircumference = c.WidthMeters, c.WheelCircumferenceMeters
	if width == 0 {
		width = DefaultWidthMeters
	}
	if wheelCircumference == 0 {
		wheelCircumference = DefaultWheelCircumferenceMeters
	}
	return width, wheelCircumference
}
