// Command button-hub classifies button presses from wireless remotes and
// wired GPIO buttons into gestures and publishes them as MQTT trigger cards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/button-hub/internal/adapter"
	"github.com/sweeney/button-hub/internal/config"
	"github.com/sweeney/button-hub/internal/gpio"
	"github.com/sweeney/button-hub/internal/hub"
	"github.com/sweeney/button-hub/internal/metrics"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/mqtt"
	"github.com/sweeney/button-hub/internal/profile"
	"github.com/sweeney/button-hub/internal/status"
	"github.com/sweeney/button-hub/internal/store"
	"github.com/sweeney/button-hub/internal/trigger"
	"github.com/sweeney/button-hub/internal/web"
)

type options struct {
	configPath  string
	broker      string
	clientID    string
	topicPrefix string
	redisAddr   string
	httpAddr    string
	heartbeat   time.Duration
	modeTimeout time.Duration
	gpioChip    string
	gpioPins    []int
	gpioDevice  string
	poll        time.Duration
	printState  bool
}

func main() {
	var o options
	var pins, level string
	flag.StringVar(&o.configPath, "config", "", "YAML config file (devices, profiles, cards)")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.clientID, "client-id", "button-hub", "MQTT client id")
	flag.StringVar(&o.topicPrefix, "topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	flag.StringVar(&o.redisAddr, "redis", "", "Redis address for persisted modes (empty to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.DurationVar(&o.modeTimeout, "mode-timeout", 5*time.Second, "Timeout for one mode read or write")
	flag.StringVar(&o.gpioChip, "gpio-chip", gpio.DefaultChip, "GPIO chip for wired buttons")
	flag.StringVar(&pins, "gpio-pins", "", "Comma separated BCM pins of wired buttons (empty to disable)")
	flag.StringVar(&o.gpioDevice, "gpio-device", gpio.DefaultDevice, "Device id wired buttons report as")
	flag.DurationVar(&o.poll, "poll", 20*time.Millisecond, "GPIO polling interval")
	flag.StringVar(&level, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&o.printState, "print-state", false, "Print wired button states and exit")

	flag.Parse()

	logger, err := newLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if o.gpioPins, err = parsePins(pins); err != nil {
		logger.Error("bad --gpio-pins", "error", err)
		os.Exit(2)
	}

	if err := run(o, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// parsePins converts "17,27" into pin numbers. Empty means no pins.
func parsePins(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > hub.MaxButtons {
		return nil, fmt.Errorf("at most %d pins supported, got %d", hub.MaxButtons, len(parts))
	}
	pins := make([]int, 0, len(parts))
	seen := make(map[int]bool)
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid pin %q", p)
		}
		if seen[n] {
			return nil, fmt.Errorf("pin %d listed twice", n)
		}
		seen[n] = true
		pins = append(pins, n)
	}
	return pins, nil
}

func run(o options, logger *slog.Logger) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize GPIO
	var reader gpio.Reader
	if len(o.gpioPins) > 0 {
		r, err := gpio.NewRealReader(o.gpioChip, o.gpioPins)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		reader = r
	}

	// Print state mode
	if o.printState {
		if reader == nil {
			return errors.New("--print-state needs --gpio-pins")
		}
		values, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		for i, v := range values {
			fmt.Printf("pin %d (button %d): %s\n", o.gpioPins[i], i+1, pressedString(v))
		}
		return nil
	}

	// Initialize MQTT
	topics := mqtt.NewTopics(o.topicPrefix)
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:   o.broker,
		ClientID: o.clientID,
		Topics:   topics,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()
	modeIO := mqtt.NewModeClient(client, topics, o.modeTimeout, logger)

	var modeStore mode.Store
	if o.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		defer rdb.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, modes will renegotiate until it is", "addr", o.redisAddr, "error", err)
		}
		cancel()
		modeStore = store.NewModeStore(rdb, 30*24*time.Hour)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      o.poll.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		TopicPrefix: topics.Prefix,
		HTTPAddr:    o.httpAddr,
		Redis:       o.redisAddr,
		GPIOPins:    o.gpioPins,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	h := hub.New(hub.Config{
		Timing:    cfg.Timing,
		Reverify:  cfg.Reverify,
		Resolver:  profile.NewResolver(cfg.Profiles...),
		Router:    adapter.NewRouter(logger),
		Emitter:   trigger.NewEmitter(client, cfg.Cards, logger),
		ModeIO:    modeIO,
		ModeStore: modeStore,
		Devices:   cfg.Devices,
		Observer:  hub.Observers{tracker, m},
		Logger:    logger,
	})
	defer h.Close()
	tracker.SetDeviceSource(h.Devices)

	handler := &mqtt.Handler{
		Topics:     topics,
		Deliver:    h.Deliver,
		Remove:     h.Remove,
		ModeResult: modeIO.HandleResult,
		Logger:     logger,
	}
	if err := client.Subscribe(handler.HandleMessage); err != nil {
		logger.Warn("subscribe failed, retrying on reconnect", "error", err)
	}

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(client.IsConnected())
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, m)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", o.httpAddr)
	}

	l := loop{
		publisher:  client,
		mqttStatus: client,
		buffered:   client.Buffered,
		tracker:    tracker,
		logger:     logger,
		now:        time.Now,
	}

	var tick <-chan time.Time
	if reader != nil {
		l.source = &gpio.Source{
			DeviceID: o.gpioDevice,
			Reader:   reader,
			Deliver:  h.Deliver,
			Logger:   logger,
		}
		ticker := time.NewTicker(o.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	var heartbeat <-chan time.Time
	if o.heartbeat > 0 {
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	logger.Info("started",
		"broker", o.broker,
		"prefix", topics.Prefix,
		"devices", len(cfg.Devices),
		"profiles", len(cfg.Profiles),
		"gpio_pins", o.gpioPins,
		"heartbeat", o.heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(l, tick, heartbeat, sigCh)
}

// loop holds what runLoop needs. source is nil without wired buttons.
type loop struct {
	source     *gpio.Source
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	buffered   func() int
	tracker    *status.Tracker
	logger     *slog.Logger
	now        func() time.Time
}

func (l loop) refresh() {
	if l.tracker == nil {
		return
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	if l.buffered != nil {
		l.tracker.SetMQTTBuffered(l.buffered())
	}
}

func (l loop) systemEvent(event, reason string, retained bool) mqtt.SystemEvent {
	ev := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if l.tracker != nil {
		l.refresh()
		ev.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), event, reason)
	}
	return ev
}

func runLoop(l loop, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.logger.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if err := l.publisher.PublishSystem(l.systemEvent("SHUTDOWN", signalName, true)); err != nil {
				l.logger.Warn("failed to publish shutdown event", "error", err)
			} else {
				l.logger.Info("published shutdown event")
			}
			return nil

		case <-heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil && l.tracker != nil {
				l.tracker.SetNetwork(net)
			}
			ev := l.systemEvent("HEARTBEAT", "", false)
			l.logger.Info("heartbeat")
			if err := l.publisher.PublishSystem(ev); err != nil {
				l.logger.Warn("heartbeat publish error", "error", err)
			}

		case <-tick:
			if l.source == nil {
				continue
			}
			n, err := l.source.Poll()
			if err != nil {
				l.logger.Warn("gpio read error", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Debug("gpio change", "events", n)
			}
			l.refresh()
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func pressedString(on bool) string {
	if on {
		return "PRESSED"
	}
	return "RELEASED"
}
