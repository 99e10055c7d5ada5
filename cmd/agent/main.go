package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"farmguard/config"
	"farmguard/internal/application"
	"farmguard/internal/domain"
	"farmguard/internal/infra/audio"
	"farmguard/internal/infra/backend"
	"farmguard/internal/infra/detector"
	"farmguard/internal/infra/gpio"
	"farmguard/internal/infra/mqtt"
	"farmguard/internal/infra/onvif"
	"farmguard/internal/infra/pushover"
	"farmguard/internal/infra/status"
)

type outputDriver interface {
	application.OutputDriver
	io.Closer
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client := backend.NewClientWithTimeouts(
		cfg.Backend.URL,
		cfg.Device.ID,
		config.Duration(cfg.Backend.Timeout, backend.DefaultTimeout),
		config.Duration(cfg.Backend.DownloadTimeout, backend.DefaultDownloadTimeout),
	)

	driver, err := createDriver(cfg.Relays, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("releasing gpio", "error", err)
		}
	}()

	relays, err := relayConfigs(cfg.Relays)
	if err != nil {
		return err
	}
	actuators := application.NewActuatorController(driver, client, relays, logger)

	settings := application.NewSettingsStore(client, logger,
		application.WithOverrideDuration(config.Duration(cfg.Sounds.OverrideDuration, application.DefaultOverrideDuration)),
	)
	sounds := application.NewSoundManager(cfg.Sounds.Dir, cfg.Sounds.Fallback, client, client, settings, logger)

	player := createPlayer(cfg.Alert, logger)
	defer func() {
		if c, ok := player.(io.Closer); ok {
			c.Close()
		}
	}()
	alert := application.NewAlertController(actuators, player, settings, sounds, logger,
		application.WithAlertDuration(cfg.Alert.AlertDuration()),
	)

	var mqttClient *mqtt.Client
	if cfg.Camera.Source == "mqtt" || cfg.Notify.MQTTTopic != "" {
		mqttClient = mqtt.NewClient(mqtt.Config{
			Broker:   cfg.Camera.MQTT.Broker,
			ClientID: cfg.Camera.MQTT.ClientID,
			User:     cfg.Camera.MQTT.User,
			Password: cfg.Camera.MQTT.Password,
		}, logger)
		defer mqttClient.Disconnect()

		if cfg.Notify.MQTTTopic != "" {
			if err := mqttClient.Connect(ctx); err != nil {
				logger.Warn("mqtt broker unreachable, detection events will not be published", "error", err)
			}
		}
	}

	var agent *application.Agent
	sources := []application.CommandSource{client}

	var statusServer *status.Server
	if cfg.Status.Addr != "" {
		statusServer = status.NewServer(cfg.Status.Addr, cfg.Status.AuthToken, func() domain.AgentStatus {
			return agent.Snapshot()
		}, logger)
		sources = append(sources, statusServer)
	}

	poller := application.NewCommandPoller(actuators, settings, sounds, alert, logger, sources...)

	scheduler := application.NewScheduler(logger, nil)
	scheduler.Add("heartbeat", config.Duration(cfg.Schedule.Heartbeat, 10*time.Second), client.Heartbeat)
	scheduler.Add("settings", config.Duration(cfg.Schedule.Settings, 60*time.Second), settings.Sync)
	scheduler.Add("sounds", config.Duration(cfg.Schedule.Sounds, 300*time.Second), sounds.PublishInventory)

	camera := application.NewCameraSession(
		createMotionSource(cfg.Camera, mqttClient, logger),
		logger,
		application.WithReconnectBackOff(backoff.NewConstantBackOff(config.Duration(cfg.Camera.Backoff, application.DefaultReconnectDelay))),
		application.WithPull(config.Duration(cfg.Camera.PullTimeout, application.DefaultPullTimeout), cfg.Camera.MessageLimit),
	)

	notifiers := application.MultiNotifier{client}
	if mqttClient != nil && cfg.Notify.MQTTTopic != "" {
		notifiers = append(notifiers, mqtt.NewNotifier(mqttClient, cfg.Notify.MQTTTopic))
	}
	if cfg.Notify.Pushover.Enabled {
		notifiers = append(notifiers, pushover.NewClient(cfg.Notify.Pushover.Token, cfg.Notify.Pushover.UserKey))
	}

	poll := config.Duration(cfg.Schedule.Poll, application.DefaultCycleInterval)
	runner := application.NewDetectionRunner(
		cfg.Device.ID,
		createDetector(cfg.Detection, logger),
		application.NewDebouncer(cfg.Detection.TargetClass, cfg.Detection.Hits),
		settings,
		alert,
		notifiers,
		config.Duration(cfg.Detection.RunTimeout, application.DefaultDetectionRunTimeout),
		poll,
		logger,
	)

	motorDefault, ok := domain.ParseRelayState(cfg.Relays.Motor.DefaultState)
	if !ok {
		logger.Warn("invalid motor default state, using OFF", "value", cfg.Relays.Motor.DefaultState)
		motorDefault = domain.RelayOff
	}

	agent = application.NewAgent(application.AgentDeps{
		DeviceID:     cfg.Device.ID,
		Actuators:    actuators,
		Settings:     settings,
		Sounds:       sounds,
		Alert:        alert,
		Poller:       poller,
		Scheduler:    scheduler,
		Camera:       camera,
		Runner:       runner,
		Interval:     poll,
		MotorDefault: motorDefault,
	}, logger)

	if statusServer != nil {
		if err := statusServer.Start(ctx); err != nil {
			return fmt.Errorf("starting status server: %w", err)
		}
		defer statusServer.Stop()
	}

	logger.Info("starting farmguard agent",
		"device_id", cfg.Device.ID,
		"camera", cfg.Camera.Source,
		"detector", cfg.Detection.Detector,
		"player", cfg.Alert.Player,
	)

	return agent.Run(ctx)
}

func relayConfigs(cfg config.RelaysConfig) (map[domain.Relay]application.RelayConfig, error) {
	sirenPolarity, err := domain.ParsePolarity(cfg.Siren.Polarity)
	if err != nil {
		return nil, fmt.Errorf("siren relay: %w", err)
	}
	motorPolarity, err := domain.ParsePolarity(cfg.Motor.Polarity)
	if err != nil {
		return nil, fmt.Errorf("motor relay: %w", err)
	}

	return map[domain.Relay]application.RelayConfig{
		domain.RelaySiren: {Pin: cfg.Siren.Pin, Polarity: sirenPolarity},
		domain.RelayMotor: {Pin: cfg.Motor.Pin, Polarity: motorPolarity, Reported: true},
	}, nil
}

func createDriver(cfg config.RelaysConfig, logger *slog.Logger) (outputDriver, error) {
	switch cfg.Driver {
	case "log":
		return gpio.NewLogDriver(logger), nil
	case "periph":
		driver, err := gpio.NewPeriphDriver(logger)
		if err != nil {
			return nil, err
		}
		return driver, nil
	default:
		logger.Warn("unknown relay driver, using periph", "driver", cfg.Driver)
		driver, err := gpio.NewPeriphDriver(logger)
		if err != nil {
			return nil, err
		}
		return driver, nil
	}
}

func createPlayer(cfg config.AlertConfig, logger *slog.Logger) application.AudioPlayer {
	switch cfg.Player {
	case "portaudio":
		return audio.NewPortAudioPlayer(logger)
	case "aplay":
		return audio.NewProcessPlayer(cfg.MixerControl, logger)
	default:
		logger.Warn("unknown audio player, using aplay", "player", cfg.Player)
		return audio.NewProcessPlayer(cfg.MixerControl, logger)
	}
}

func createMotionSource(cfg config.CameraConfig, client *mqtt.Client, logger *slog.Logger) application.MotionSource {
	switch cfg.Source {
	case "mqtt":
		return mqtt.NewMotionSource(client, cfg.MQTT.Topic, logger)
	case "onvif":
		return onvif.NewMotionSource(onvifConfig(cfg.ONVIF), logger)
	default:
		logger.Warn("unknown camera source, using onvif", "source", cfg.Source)
		return onvif.NewMotionSource(onvifConfig(cfg.ONVIF), logger)
	}
}

func onvifConfig(cfg config.ONVIFConfig) onvif.Config {
	return onvif.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		EventsPath:  cfg.EventsPath,
		TopicFilter: cfg.TopicFilter,
	}
}

func createDetector(cfg config.DetectionConfig, logger *slog.Logger) application.Detector {
	switch cfg.Detector {
	case "gocv":
		return detector.NewGoCVDetector(detector.GoCVConfig{
			Source: cfg.Source,
			Model:  cfg.Model,
			Labels: cfg.Labels,
		}, logger)
	case "process":
		return detector.NewProcessDetector(processConfig(cfg), logger)
	default:
		logger.Warn("unknown detector, using process", "detector", cfg.Detector)
		return detector.NewProcessDetector(processConfig(cfg), logger)
	}
}

func processConfig(cfg config.DetectionConfig) detector.ProcessConfig {
	return detector.ProcessConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Source:  cfg.Source,
		Model:   cfg.Model,
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
