package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/itohio/doorbell/pkg/adc"
	"github.com/itohio/doorbell/pkg/alert"
	"github.com/itohio/doorbell/pkg/config"
	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/latest"
	"github.com/itohio/doorbell/pkg/led"
	"github.com/itohio/doorbell/pkg/metrics"
	"github.com/itohio/doorbell/pkg/notify"
	"github.com/itohio/doorbell/pkg/sample"
	"github.com/itohio/doorbell/pkg/store"
	"github.com/itohio/doorbell/pkg/supervisor"
	"github.com/itohio/doorbell/pkg/telemetry"
	"github.com/itohio/doorbell/pkg/watchdog"
	"github.com/itohio/doorbell/pkg/wifi"
)

// restartGrace bounds how long a requested restart may take before the
// process exits anyway.
const restartGrace = 5 * time.Second

type runOptions struct {
	port string
	mock bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the doorbell monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.port != "" {
				root.cfg.Serial.Port = opts.port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, root.cfg, root.configPath, opts.mock, root.logger)
		},
	}
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Serial port override (e.g. /dev/ttyACM0)")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "Use a simulated sensor and radio")
	return cmd
}

// daemon holds everything run wires together.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	mock   bool

	db    *store.SQLite
	aps   *wifi.APStore
	src   adc.Source
	radio wifi.Radio

	stats *latest.Cell[detector.Stats]
	wifi  *latest.Cell[wifi.State]
	scans *latest.Cell[[]wifi.AccessPoint]
}

func run(ctx context.Context, cfg *config.Config, configPath string, mock bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Init(reg)

	d := &daemon{
		cfg:    cfg,
		logger: logger,
		mock:   mock,
		stats:  latest.New[detector.Stats](),
		wifi:   latest.New[wifi.State](),
		scans:  latest.New[[]wifi.AccessPoint](),
	}

	db, err := store.OpenSQLite(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	d.db = db
	d.aps = wifi.NewAPStore(db)

	mqttCfg, pushCfg, err := loadCredentials(db)
	if err != nil {
		return err
	}

	if err := d.openSource(); err != nil {
		return err
	}
	defer d.src.Close()

	if err := d.openRadio(); err != nil {
		return err
	}

	var restarting atomic.Bool
	restarter := supervisor.NewOnceRestarter(supervisor.RestarterFunc(func(reason string) {
		restarting.Store(true)
		cancel()
		time.AfterFunc(restartGrace, func() {
			logger.Error("restart did not complete in time, exiting", "reason", reason)
			os.Exit(exitRestart)
		})
	}), logger)

	wd, soft, err := d.openWatchdog(restarter)
	if err != nil {
		return err
	}
	defer func() {
		if restarting.Load() && !soft {
			logger.Warn("leaving hardware watchdog armed for restart")
			return
		}
		if err := wd.Close(); err != nil {
			logger.Error("failed to close watchdog", "error", err)
		}
	}()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	indicator := led.NewTask(led.PixelFunc(d.src.SetLED), led.Options{
		Blink:  cfg.LED.Blink,
		Linger: cfg.LED.Linger,
		Logger: logger,
	})

	events := make(chan detector.RingMessage, 16)
	sampler := sample.NewSampler(d.src, detector.New(), sample.Options{
		FrameLen:    cfg.Sampler.FrameLen,
		FullScale:   cfg.Sampler.FullScale,
		ReadTimeout: cfg.Sampler.ReadTimeout,
		BurstSize:   cfg.Sampler.BurstSize,
		Debug:       cfg.Sampler.Debug,
		Stats:       d.stats,
		Events:      events,
		Logger:      logger,
	})

	worker := alert.NewWorker(alert.WorkerOptions{
		Mqtt:     mqttCfg,
		Notifier: notify.NewPushover(pushCfg, notify.WithLogger(logger)),
		Stats:    d.stats,
		Wifi:     d.wifi,
		Logger:   logger,
	})

	workers := []*supervisor.Task{
		supervisor.Go(workerCtx, "sampler", sampler.Run, logger),
		supervisor.Go(workerCtx, "alert", worker.Run, logger),
		supervisor.Go(workerCtx, "led", indicator.Run, logger),
	}

	if cfg.Telemetry.Listen != "" {
		srv := telemetry.New(cfg.Telemetry.Listen, telemetry.Sources{
			Stats: d.stats,
			Scans: d.scans,
			Wifi:  d.wifi,
			Debug: sampler.SetDebug,
		}, reg, logger)
		supervisor.Go(workerCtx, "telemetry", srv.Run, logger)
	}

	if cfg.Supervisor.WatchFiles {
		paths := []string{configPath, cfg.Store.Path}
		supervisor.Go(workerCtx, "watch", func(ctx context.Context) error {
			return supervisor.WatchFiles(ctx, paths, func(path string) {
				restarter.Restart("changed: " + path)
			}, logger)
		}, logger)
	}

	manager := wifi.NewManager(d.radio, wifi.ManagerOptions{
		PollInterval: cfg.Wifi.PollInterval,
		Scans:        d.scans,
		State:        d.wifi,
		Logger:       logger,
	})

	orch := supervisor.NewOrchestrator(supervisor.Options{
		Network:        manager,
		KnownAPs:       d.aps.List,
		Fallback:       fallbackAP(cfg.Wifi),
		ConnectTimeout: cfg.Wifi.ConnectTimeout,
		ReconnectEvery: cfg.Wifi.ReconnectEvery,
		Tick:           cfg.Supervisor.Tick,
		EventTimeout:   cfg.Supervisor.EventTimeout,
		StatusEvery:    statusEvery(cfg.Supervisor),
		Events:         events,
		LED:            indicator,
		Alerts:         worker,
		StartUplink: func(ctx context.Context) (supervisor.Uplink, error) {
			if !mqttCfg.Enabled {
				logger.Info("mqtt disabled")
				return nil, nil
			}
			up, err := alert.StartUplink(ctx, mqttCfg, indicator, logger)
			if err != nil {
				return nil, err
			}
			worker.SetPublisher(up.Client())
			return up, nil
		},
		Watchdog:  wd,
		Restarter: restarter,
		Workers:   workers,
		Logger:    logger,
	})

	logger.Info("doorbell started", "version", version, "mock", mock, "store", cfg.Store.Path)
	err = orch.Run(ctx)
	stopWorkers()
	for _, t := range workers {
		<-t.Done()
	}

	if restarting.Load() {
		return supervisor.ErrRestart
	}
	if ctx.Err() != nil {
		logger.Info("doorbell stopped")
		return nil
	}
	return err
}

func loadCredentials(s store.Store) (alert.MqttConfig, notify.PushoverConfig, error) {
	var (
		mqttCfg alert.MqttConfig
		pushCfg notify.PushoverConfig
	)
	if _, err := s.Get(alert.ConfigKey, &mqttCfg); err != nil {
		return mqttCfg, pushCfg, fmt.Errorf("failed to load mqtt settings: %w", err)
	}
	if _, err := s.Get(notify.ConfigKey, &pushCfg); err != nil {
		return mqttCfg, pushCfg, fmt.Errorf("failed to load pushover settings: %w", err)
	}
	return mqttCfg.WithDefaults(), pushCfg.WithDefaults(), nil
}

func (d *daemon) openSource() error {
	if d.mock {
		d.src = adc.NewMock(&d.cfg.Mock, d.logger)
	} else {
		d.src = adc.New(d.cfg.Serial.Port, d.cfg.Serial.BaudRate, adc.DefaultBufferSize, d.logger)
	}
	if err := d.src.Connect(); err != nil {
		return fmt.Errorf("failed to connect to sensor: %w", err)
	}
	return nil
}

// openRadio picks nmcli on a real device. In mock mode every known AP is
// simulated in range so the station path can be exercised end to end.
func (d *daemon) openRadio() error {
	if !d.mock {
		d.radio = wifi.NewNMCLI(d.cfg.Wifi.Interface, nil, d.logger)
		return nil
	}

	known, err := d.aps.List()
	if err != nil {
		return err
	}
	networks := make([]wifi.SimNetwork, 0, len(known))
	rssi := -40
	for _, ap := range known {
		networks = append(networks, wifi.SimNetwork{
			AccessPoint: wifi.AccessPoint{SSID: ap.SSID, RSSI: rssi, Channel: 6, Security: "WPA2"},
			Password:    ap.Password,
		})
		rssi -= 5
	}
	d.radio = wifi.NewSimRadio(2, networks...)
	return nil
}

func (d *daemon) openWatchdog(r supervisor.Restarter) (wd watchdog.Watchdog, soft bool, err error) {
	if d.mock || d.cfg.Watchdog.Device == "" {
		return watchdog.NewSoft(d.cfg.Watchdog.Timeout, func() {
			r.Restart("watchdog expired")
		}, d.logger), true, nil
	}
	dev, err := watchdog.OpenDevice(d.cfg.Watchdog.Device, d.cfg.Watchdog.Timeout, d.logger)
	if err != nil {
		return nil, false, err
	}
	return dev, false, nil
}

func fallbackAP(cfg config.WifiConfig) *wifi.APConfig {
	if cfg.DisableFallback || cfg.FallbackSSID == "" {
		return nil
	}
	return &wifi.APConfig{SSID: cfg.FallbackSSID, Password: cfg.FallbackPassword}
}

// statusEvery converts the status interval into connected loop iterations.
// A connected iteration lasts at most one event timeout.
func statusEvery(cfg config.SupervisorConfig) int {
	if cfg.EventTimeout <= 0 {
		return 1
	}
	n := int(cfg.StatusInterval / cfg.EventTimeout)
	if n < 1 {
		n = 1
	}
	return n
}
