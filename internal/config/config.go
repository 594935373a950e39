// Package config loads the gate configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/gate-opener/internal/door"
	"github.com/sweeney/gate-opener/internal/gpio"
)

// Defaults applied to keys left out of the file.
const (
	DefaultName           = "Gate"
	DefaultGPIOChip       = "gpiochip0"
	DefaultPressTimeMs    = 1000
	DefaultPollMs         = 4000
	DefaultOpensInSeconds = 30
	DefaultClientID       = "gate-opener"
	DefaultTopicPrefix    = "home/garage/gate"
)

// ActiveValue is the raw pin level that means "on" for a relay or
// "triggered" for a sensor. Unset means active-high.
type ActiveValue int

const (
	activeUnset ActiveValue = iota
	ActiveHigh
	ActiveLow
)

// High reports whether the active level is high.
func (v ActiveValue) High() bool { return v != ActiveLow }

func (v ActiveValue) String() string {
	if v.High() {
		return "ACTIVE_HIGH"
	}
	return "ACTIVE_LOW"
}

// UnmarshalYAML accepts 1/0, high/low and active-high/active-low.
func (v *ActiveValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case int:
		switch t {
		case 1:
			*v = ActiveHigh
			return nil
		case 0:
			*v = ActiveLow
			return nil
		}
	case bool:
		// yaml.v2 reads on/off and yes/no as booleans
		if t {
			*v = ActiveHigh
		} else {
			*v = ActiveLow
		}
		return nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "high", "active-high", "active_high":
			*v = ActiveHigh
			return nil
		case "0", "low", "active-low", "active_low":
			*v = ActiveLow
			return nil
		}
	}
	return fmt.Errorf("invalid active value %v (want 1, 0, high, low, active-high or active-low)", raw)
}

// MQTTConfig holds the MQTT client identity and topic layout.
type MQTTConfig struct {
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Config is the gate configuration file.
type Config struct {
	Name     string `yaml:"name"`
	GPIOChip string `yaml:"gpio_chip"`

	SwitchPin         *int        `yaml:"switch_pin"`
	SwitchActiveValue ActiveValue `yaml:"switch_active_value"`
	SwitchPressTimeMs int         `yaml:"switch_press_time_ms"`

	ClosedSensorPin         *int        `yaml:"closed_sensor_pin"`
	DoorSensorPin           *int        `yaml:"door_sensor_pin"` // legacy name for closed_sensor_pin
	ClosedSensorActiveValue ActiveValue `yaml:"closed_sensor_active_value"`

	OpenSensorPin         *int        `yaml:"open_sensor_pin"`
	OpenSensorActiveValue ActiveValue `yaml:"open_sensor_active_value"`

	PollMs         int  `yaml:"poll_ms"`
	OpensInSeconds int  `yaml:"opens_in_seconds"`
	Debug          bool `yaml:"debug"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ClosedSensorPin != nil && cfg.DoorSensorPin != nil {
		return nil, errors.New("closed_sensor_pin and door_sensor_pin are both set")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.GPIOChip == "" {
		c.GPIOChip = DefaultGPIOChip
	}
	if c.ClosedSensorPin == nil {
		c.ClosedSensorPin = c.DoorSensorPin
	}
	c.DoorSensorPin = nil
	if c.SwitchPressTimeMs == 0 {
		c.SwitchPressTimeMs = DefaultPressTimeMs
	}
	if c.PollMs == 0 {
		c.PollMs = DefaultPollMs
	}
	if c.OpensInSeconds == 0 && !c.HasSensors() {
		c.OpensInSeconds = DefaultOpensInSeconds
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
}

// Validate checks required keys, ranges and pin conflicts.
func (c *Config) Validate() error {
	if c.SwitchPin == nil {
		return errors.New("switch_pin is required")
	}

	pins := map[int]string{}
	for _, p := range []struct {
		key string
		pin *int
	}{
		{"switch_pin", c.SwitchPin},
		{"closed_sensor_pin", c.ClosedSensorPin},
		{"open_sensor_pin", c.OpenSensorPin},
	} {
		if p.pin == nil {
			continue
		}
		if *p.pin < 0 {
			return fmt.Errorf("%s: invalid pin %d", p.key, *p.pin)
		}
		if other, ok := pins[*p.pin]; ok {
			return fmt.Errorf("%s: pin %d already used by %s", p.key, *p.pin, other)
		}
		pins[*p.pin] = p.key
	}

	if c.SwitchPressTimeMs < 0 {
		return fmt.Errorf("switch_press_time_ms: must be positive, got %d", c.SwitchPressTimeMs)
	}
	if c.PollMs < 0 {
		return fmt.Errorf("poll_ms: must be positive, got %d", c.PollMs)
	}
	if c.OpensInSeconds < 0 {
		return fmt.Errorf("opens_in_seconds: must be positive, got %d", c.OpensInSeconds)
	}
	if c.OpensInSeconds == 0 {
		return errors.New("opens_in_seconds is required when a sensor is configured")
	}
	return nil
}

// HasSensors reports whether at least one sensor pin is configured.
func (c *Config) HasSensors() bool {
	return c.ClosedSensorPin != nil || c.DoorSensorPin != nil || c.OpenSensorPin != nil
}

// PollInterval is the sensor poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

// DoorConfig converts the file settings into the controller configuration.
func (c *Config) DoorConfig() door.Config {
	dc := door.Config{
		Name:             c.Name,
		SwitchPin:        *c.SwitchPin,
		SwitchActiveHigh: c.SwitchActiveValue.High(),
		PulseDuration:    time.Duration(c.SwitchPressTimeMs) * time.Millisecond,
		TravelTime:       time.Duration(c.OpensInSeconds) * time.Second,
	}
	if c.OpenSensorPin != nil {
		dc.OpenSensor = &door.Sensor{Pin: *c.OpenSensorPin, ActiveHigh: c.OpenSensorActiveValue.High()}
	}
	if c.ClosedSensorPin != nil {
		dc.ClosedSensor = &door.Sensor{Pin: *c.ClosedSensorPin, ActiveHigh: c.ClosedSensorActiveValue.High()}
	}
	return dc
}

// Inputs lists the sensor lines to request.
func (c *Config) Inputs() []gpio.Input {
	var in []gpio.Input
	if c.ClosedSensorPin != nil {
		in = append(in, gpio.Input{Pin: *c.ClosedSensorPin, ActiveHigh: c.ClosedSensorActiveValue.High()})
	}
	if c.OpenSensorPin != nil {
		in = append(in, gpio.Input{Pin: *c.OpenSensorPin, ActiveHigh: c.OpenSensorActiveValue.High()})
	}
	return in
}

// Outputs lists the relay line to request, initially released.
func (c *Config) Outputs() []gpio.Output {
	return []gpio.Output{{Pin: *c.SwitchPin, Initial: !c.SwitchActiveValue.High()}}
}
