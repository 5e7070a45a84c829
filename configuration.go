package astidrone

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The drone lands on its own after this much silence
const autoLandDelay = 15 * time.Second

// Configuration configures a Drone
type Configuration struct {
	CommandAddr       string            `yaml:"command_addr"`
	KeepAliveInterval time.Duration     `yaml:"keep_alive_interval"`
	LocalCommandAddr  string            `yaml:"local_command_addr"`
	MaxTimeout        time.Duration     `yaml:"max_timeout"`
	MQTT              MQTTConfiguration `yaml:"mqtt"`
	Attempts          int               `yaml:"attempts"`
	Policy            string            `yaml:"policy"`
	StateAddr         string            `yaml:"state_addr"`
	VideoAddr         string            `yaml:"video_addr"`
}

// MQTTConfiguration configures the MQTT bridge
type MQTTConfiguration struct {
	Broker            string        `yaml:"broker"`
	CertCheck         bool          `yaml:"cert_check"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`
	DroneID           string        `yaml:"drone_id"`
	Password          string        `yaml:"password"`
	TopicPrefix       string        `yaml:"topic_prefix"`
	Username          string        `yaml:"username"`
}

// DefaultConfiguration returns the configuration matching the drone's factory settings
func DefaultConfiguration() Configuration {
	return Configuration{
		Attempts:          1,
		CommandAddr:       DefaultCommandAddr,
		KeepAliveInterval: DefaultKeepAliveInterval,
		LocalCommandAddr:  DefaultLocalCommandAddr,
		MQTT: MQTTConfiguration{
			ConnectTimeout:    5 * time.Second,
			DisconnectTimeout: time.Second,
			DroneID:           "tello",
			TopicPrefix:       "drone",
		},
		Policy:    FlightGating.String(),
		StateAddr: DefaultStateAddr,
		VideoAddr: DefaultVideoAddr,
	}
}

// LoadConfiguration loads the defaults, then the YAML file at path if any, then the
// environment, and validates the result. A missing file is not an error.
func LoadConfiguration(path string) (c Configuration, err error) {
	// Defaults
	c = DefaultConfiguration()

	// File
	if path != "" {
		var b []byte
		if b, err = os.ReadFile(path); err != nil && !os.IsNotExist(err) {
			err = errors.Wrapf(err, "astidrone: reading %s failed", path)
			return
		} else if err == nil {
			if err = yaml.Unmarshal(b, &c); err != nil {
				err = errors.Wrapf(err, "astidrone: unmarshaling %s failed", path)
				return
			}
		}
		err = nil
	}

	// Environment
	applyEnv(&c)

	// Validate
	if err = c.Validate(); err != nil {
		err = errors.Wrap(err, "astidrone: validating configuration failed")
		return
	}
	return
}

func applyEnv(c *Configuration) {
	for k, v := range map[string]*string{
		"ASTIDRONE_COMMAND_ADDR":  &c.CommandAddr,
		"ASTIDRONE_MQTT_BROKER":   &c.MQTT.Broker,
		"ASTIDRONE_MQTT_DRONE_ID": &c.MQTT.DroneID,
		"ASTIDRONE_POLICY":        &c.Policy,
		"ASTIDRONE_STATE_ADDR":    &c.StateAddr,
		"ASTIDRONE_VIDEO_ADDR":    &c.VideoAddr,
	} {
		if e := os.Getenv(k); e != "" {
			*v = e
		}
	}
}

// Validate checks the configuration
func (c Configuration) Validate() error {
	if c.CommandAddr == "" {
		return errors.New("astidrone: command addr is empty")
	}
	if c.Attempts < 1 {
		return fmt.Errorf("astidrone: attempts %d < 1", c.Attempts)
	}
	if c.KeepAliveInterval <= 0 || c.KeepAliveInterval >= autoLandDelay {
		return fmt.Errorf("astidrone: keep alive interval %s not in ]0, %s[", c.KeepAliveInterval, autoLandDelay)
	}
	if c.MaxTimeout < 0 {
		return fmt.Errorf("astidrone: max timeout %s < 0", c.MaxTimeout)
	}
	if _, err := ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.MQTT.Broker != "" && c.MQTT.DroneID == "" {
		return errors.New("astidrone: mqtt drone id is empty")
	}
	return nil
}

// ControllerOptions returns the flight controller options described by the configuration
func (c Configuration) ControllerOptions() ControllerOptions {
	p, _ := ParsePolicy(c.Policy)
	return ControllerOptions{
		KeepAliveInterval: c.KeepAliveInterval,
		Policy:            p,
	}
}

// UDPLinkOptions returns the UDP link options described by the configuration
func (c Configuration) UDPLinkOptions() UDPLinkOptions {
	return UDPLinkOptions{
		Addr:       c.CommandAddr,
		Attempts:   c.Attempts,
		LocalAddr:  c.LocalCommandAddr,
		MaxTimeout: c.MaxTimeout,
	}
}
