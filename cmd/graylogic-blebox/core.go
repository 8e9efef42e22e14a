package main

import (
	"fmt"

	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/mqtt"
)

// core is the device layer shared by serve and scan.
type core struct {
	scheduler *blebox.Scheduler
	registry  *blebox.Registry
	scanner   *blebox.Scanner
}

// buildCore creates the scheduler, registry and scanner from config.
// The caller owns scheduler.Close.
func buildCore(cfg config.BleBoxConfig, log blebox.Logger) (*core, error) {
	sched := blebox.NewScheduler(blebox.SchedulerConfig{
		Client:  blebox.NewHTTPClient(),
		Timeout: cfg.RequestTimeout,
		Pacing:  cfg.RequestPacing,
		Logger:  log,
	})

	registry, err := blebox.NewRegistry(blebox.RegistryOptions{
		Submitter:  sched,
		MaxDevices: cfg.MaxDevices,
		Monitor: blebox.MonitorConfig{
			GeneralInterval:  cfg.GeneralPollInterval,
			SpecificInterval: cfg.SpecificPollInterval,
			Jitter:           cfg.Jitter,
			FailureThreshold: cfg.FailureThreshold,
		},
		Logger: log,
	})
	if err != nil {
		sched.Close()
		return nil, fmt.Errorf("creating registry: %w", err)
	}

	scanner, err := blebox.NewScanner(blebox.ScannerOptions{
		Config:    scannerConfig(cfg),
		Submitter: sched,
		Resolver:  registry,
		Logger:    log,
	})
	if err != nil {
		sched.Close()
		return nil, fmt.Errorf("creating scanner: %w", err)
	}

	return &core{scheduler: sched, registry: registry, scanner: scanner}, nil
}

func scannerConfig(cfg config.BleBoxConfig) blebox.ScannerConfig {
	return blebox.ScannerConfig{
		Pacing:         cfg.ScanPacing,
		RescanDelay:    cfg.RescanDelay,
		Bounds:         blebox.MaskBounds{Min: cfg.MinMaskBits, Max: cfg.MaxMaskBits},
		Interfaces:     cfg.Interfaces,
		ExtraAddresses: cfg.ExtraAddresses,
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Bridge handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
