package app

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"omnibase/control"
	"omnibase/mqttbridge"
	"omnibase/posecache"
	"omnibase/serialport"
)

// Config is the node configuration file.
type Config struct {
	Serial SerialSettings     `yaml:"serial"`
	Loop   LoopSettings       `yaml:"loop"`
	MQTT   mqttbridge.Options `yaml:"mqtt"`
	Redis  RedisSettings      `yaml:"redis"`
}

// SerialSettings names the controller's serial device.
type SerialSettings struct {
	Path                   string `yaml:"path"`
	serialport.PortOptions `yaml:",inline"`
}

// LoopSettings configures the control loop. Zero values take the loop defaults.
type LoopSettings struct {
	RateHz              float64 `yaml:"rateHz"`
	DispatchRateHz      float64 `yaml:"dispatchRateHz"`
	control.SpeedLimits `yaml:",inline"`

	OdomFrame    string `yaml:"odomFrame"`
	BaseFrame    string `yaml:"baseFrame"`
	CurrentFrame string `yaml:"currentFrame"`

	SeedFromFirstTelegram *bool `yaml:"seedFromFirstTelegram"`
	StopOnExit            *bool `yaml:"stopOnExit"`
}

// RedisSettings enables the pose cache.
type RedisSettings struct {
	Enabled           bool `yaml:"enabled"`
	posecache.Options `yaml:",inline"`
}

// LoadConfig reads the YAML file at path, if any, then applies overrides from the environment.
// envFile is loaded into the environment first when it exists.
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read configuration file")
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Serial.Path, "OMNIBASE_SERIAL_PATH")
	if err := setInt(&c.Serial.BaudRate, "OMNIBASE_SERIAL_BAUD_RATE"); err != nil {
		return err
	}

	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&c.MQTT.Username, "MQTT_USERNAME")
	setString(&c.MQTT.Password, "MQTT_PASSWORD")

	setString(&c.Redis.Address, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("REDIS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "REDIS_ENABLED")
		}
		c.Redis.Enabled = enabled
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrap(err, key)
	}
	*dst = n
	return nil
}

// Validate checks the configuration can start a node.
func (c *Config) Validate() error {
	if c.Serial.Path == "" {
		return errors.New("serial.path is required")
	}
	if _, err := c.Serial.PortOptions.Normalize(); err != nil {
		return errors.Wrap(err, "serial")
	}
	if err := c.LoopConfig().Validate(); err != nil {
		return errors.Wrap(err, "loop")
	}
	return nil
}

// LoopConfig returns the loop configuration with defaults applied.
func (c *Config) LoopConfig() control.LoopConfig {
	cfg := control.DefaultLoopConfig()
	s := c.Loop
	if s.RateHz != 0 {
		cfg.RateHz = s.RateHz
	}
	if s.DispatchRateHz != 0 {
		cfg.DispatchRateHz = s.DispatchRateHz
	}
	if s.MaxLinear != 0 {
		cfg.Limits.MaxLinear = s.MaxLinear
	}
	if s.MaxAngular != 0 {
		cfg.Limits.MaxAngular = s.MaxAngular
	}
	if s.Tolerance != 0 {
		cfg.Limits.Tolerance = s.Tolerance
	}
	if s.OdomFrame != "" {
		cfg.OdomFrame = s.OdomFrame
	}
	if s.BaseFrame != "" {
		cfg.BaseFrame = s.BaseFrame
	}
	if s.CurrentFrame != "" {
		cfg.CurrentFrame = s.CurrentFrame
	}
	if s.SeedFromFirstTelegram != nil {
		cfg.SeedFromFirstTelegram = *s.SeedFromFirstTelegram
	}
	if s.StopOnExit != nil {
		cfg.StopOnExit = *s.StopOnExit
	}
	return cfg
}
