package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Backend   BackendConfig   `yaml:"backend"`
	Relays    RelaysConfig    `yaml:"relays"`
	Sounds    SoundsConfig    `yaml:"sounds"`
	Alert     AlertConfig     `yaml:"alert"`
	Detection DetectionConfig `yaml:"detection"`
	Camera    CameraConfig    `yaml:"camera"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Notify    NotifyConfig    `yaml:"notify"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
}

type DeviceConfig struct {
	ID string `yaml:"id"`
}

type BackendConfig struct {
	URL             string `yaml:"url"`
	Timeout         string `yaml:"timeout"`
	DownloadTimeout string `yaml:"download_timeout"`
}

type RelaysConfig struct {
	Driver string      `yaml:"driver"`
	Siren  RelayConfig `yaml:"siren"`
	Motor  RelayConfig `yaml:"motor"`
}

type RelayConfig struct {
	Pin          string `yaml:"pin"`
	Polarity     string `yaml:"polarity"`
	DefaultState string `yaml:"default_state"`
}

type SoundsConfig struct {
	Dir              string `yaml:"dir"`
	Fallback         string `yaml:"fallback"`
	OverrideDuration string `yaml:"override_duration"`
}

type AlertConfig struct {
	Duration     string `yaml:"duration"`
	Player       string `yaml:"player"`
	MixerControl string `yaml:"mixer_control"`
}

type DetectionConfig struct {
	TargetClass string   `yaml:"target_class"`
	Hits        int      `yaml:"hits"`
	RunTimeout  string   `yaml:"run_timeout"`
	Detector    string   `yaml:"detector"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	Model       string   `yaml:"model"`
	Labels      string   `yaml:"labels"`
	Source      string   `yaml:"source"`
}

type CameraConfig struct {
	Source       string      `yaml:"source"`
	Backoff      string      `yaml:"backoff"`
	PullTimeout  string      `yaml:"pull_timeout"`
	MessageLimit int         `yaml:"message_limit"`
	ONVIF        ONVIFConfig `yaml:"onvif"`
	MQTT         MQTTConfig  `yaml:"mqtt"`
}

type ONVIFConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	EventsPath  string `yaml:"events_path"`
	TopicFilter string `yaml:"topic_filter"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

type ScheduleConfig struct {
	Poll      string `yaml:"poll"`
	Heartbeat string `yaml:"heartbeat"`
	Settings  string `yaml:"settings"`
	Sounds    string `yaml:"sounds"`
}

type NotifyConfig struct {
	MQTTTopic string         `yaml:"mqtt_topic"`
	Pushover  PushoverConfig `yaml:"pushover"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type StatusConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Backend.Timeout == "" {
		c.Backend.Timeout = "5s"
	}
	if c.Backend.DownloadTimeout == "" {
		c.Backend.DownloadTimeout = "10s"
	}
	if c.Relays.Driver == "" {
		c.Relays.Driver = "periph"
	}
	if c.Relays.Siren.Pin == "" {
		c.Relays.Siren.Pin = "GPIO18"
	}
	if c.Relays.Siren.Polarity == "" {
		c.Relays.Siren.Polarity = "active_low"
	}
	if c.Relays.Motor.Pin == "" {
		c.Relays.Motor.Pin = "GPIO17"
	}
	if c.Relays.Motor.Polarity == "" {
		c.Relays.Motor.Polarity = "active_low"
	}
	if c.Relays.Motor.DefaultState == "" {
		c.Relays.Motor.DefaultState = "OFF"
	}
	if c.Sounds.Dir == "" {
		c.Sounds.Dir = "./sounds"
	}
	if c.Sounds.Fallback == "" {
		c.Sounds.Fallback = "alert.wav"
	}
	if c.Sounds.OverrideDuration == "" {
		c.Sounds.OverrideDuration = "120s"
	}
	if c.Alert.Duration == "" {
		c.Alert.Duration = "20s"
	}
	if c.Alert.Player == "" {
		c.Alert.Player = "aplay"
	}
	if c.Alert.MixerControl == "" {
		c.Alert.MixerControl = "Master"
	}
	if c.Detection.TargetClass == "" {
		c.Detection.TargetClass = "monkey"
	}
	if c.Detection.Hits == 0 {
		c.Detection.Hits = 3
	}
	if c.Detection.RunTimeout == "" {
		c.Detection.RunTimeout = "60s"
	}
	if c.Detection.Detector == "" {
		c.Detection.Detector = "process"
	}
	if c.Camera.Source == "" {
		c.Camera.Source = "onvif"
	}
	if c.Camera.Backoff == "" {
		c.Camera.Backoff = "3s"
	}
	if c.Camera.PullTimeout == "" {
		c.Camera.PullTimeout = "5s"
	}
	if c.Camera.MessageLimit == 0 {
		c.Camera.MessageLimit = 10
	}
	if c.Camera.ONVIF.Port == 0 {
		c.Camera.ONVIF.Port = 80
	}
	if c.Camera.ONVIF.EventsPath == "" {
		c.Camera.ONVIF.EventsPath = "/onvif/event_service"
	}
	if c.Camera.MQTT.ClientID == "" {
		c.Camera.MQTT.ClientID = "farmguard-" + c.Device.ID
	}
	if c.Schedule.Poll == "" {
		c.Schedule.Poll = "1s"
	}
	if c.Schedule.Heartbeat == "" {
		c.Schedule.Heartbeat = "10s"
	}
	if c.Schedule.Settings == "" {
		c.Schedule.Settings = "60s"
	}
	if c.Schedule.Sounds == "" {
		c.Schedule.Sounds = "300s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Detection.Hits < 1 {
		return fmt.Errorf("detection.hits must be positive, got %d", c.Detection.Hits)
	}
	return nil
}

// Duration parses a configured duration, falling back to def when the value
// is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AlertDuration is the configured alert duration clamped to [20s, 30s].
func (c AlertConfig) AlertDuration() time.Duration {
	d := Duration(c.Duration, 20*time.Second)
	if d < 20*time.Second {
		return 20 * time.Second
	}
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
