package main

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/elijahnyp/node1_dashboard/api"
	"github.com/elijahnyp/node1_dashboard/dashboard"
	"github.com/elijahnyp/node1_dashboard/push"
	"github.com/elijahnyp/node1_dashboard/state"
	. "github.com/elijahnyp/node1_dashboard/util"
	"github.com/elijahnyp/node1_dashboard/view"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

var logOut io.Writer

// configureLogging sends logs to log_file while the terminal view owns the
// screen. The destination is picked once; the level follows the config.
func configureLogging() {
	if logOut == nil {
		logOut = os.Stderr
		if Config.GetBool("tui") {
			logOut = OpenLogFile(Config.GetString("log_file"))
		}
	}
	LogInitTo(logOut, Config.GetString("log_level"))
}

func tlsConfig() *tls.Config {
	if !Config.GetBool("insecure_tls") {
		return nil
	}
	Logger.Debug().Msg("disabling tls verification")
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // intentional for test devices
}

func httpClient() *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = base.Clone()
	} else {
		Logger.Warn().Msg("default transport is not an *http.Transport, using a plain one")
	}
	transport.TLSClientConfig = tlsConfig()
	return &http.Client{
		Timeout:   Config.GetDuration("http_timeout"),
		Transport: transport,
	}
}

func pushOptions() push.Options {
	opts := push.DefaultOptions()
	opts.Logger = Logger.With().Str("component", "push").Logger()
	opts.Path = Config.GetString("socket_path")
	opts.Namespace = Config.GetString("namespace")
	opts.Reconnection = Config.GetBool("reconnection")
	opts.ReconnectionAttempts = Config.GetInt("reconnection_attempts")
	opts.ReconnectionDelay = Config.GetDuration("reconnection_delay")
	opts.ReconnectionDelayMax = Config.GetDuration("reconnection_delay_max")
	opts.RandomizationFactor = Config.GetFloat64("randomization_factor")
	opts.Dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  tlsConfig(),
	}
	return opts
}

// opener dials the push channel for the dashboard.
func opener(ctx context.Context, base string) dashboard.Opener {
	return func(h push.Handler) (io.Closer, error) {
		s, err := push.Dial(ctx, base, pushOptions(), h)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func snapshotSource(store *state.Store) SnapshotSource {
	return func() ([]byte, error) {
		return view.SnapshotJPEG(store.Snapshot())
	}
}

func main() {
	LogInit("info")
	if err := ParseFlags(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		Logger.Fatal().Msgf("%v", err)
	}
	SetupConfig()
	configureLogging()
	RegisterNewConfigListener(configureLogging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.NewStore()
	client := api.NewClient(Config.GetString("api_url"), httpClient())
	d := dashboard.New(store, client, opener(ctx, client.Base()),
		Logger.With().Str("component", "dashboard").Logger())

	bridge := NewMQTTBridge(ctx, Config.GetString("topic_base"), store, d)
	detachBridge := bridge.Register()
	RegisterNewConfigListener(MqttInit)
	OnNewConfig()

	var monitor *MonitorServer
	if Config.GetBool("web") {
		web := NewWebUI(ctx, store, d)
		monitor = NewMonitorServer()
		web.Routes(monitor)
		web.Start(ctx)
		if err := monitor.Start(); err != nil {
			Logger.Error().Msgf("Error starting monitor server: %v", err)
		}
		RegisterNewConfigListener(func() { monitor.Restart() })
	}

	forwarder := NewForwarder(bridge.Topic("snapshot"),
		time.Duration(Config.GetInt("snapshot_frequency"))*time.Second, snapshotSource(store))
	if Config.GetBool("mqtt") {
		forwarder.Start()
		go OnlinePinger(ctx)
		if Config.GetBool("ha_discovery") {
			go HAAdvertiser(ctx, bridge)
		}
	}

	if err := d.Mount(ctx); err != nil {
		Logger.Error().Msgf("Error mounting dashboard: %v", err)
	}
	Logger.Info().Msgf("ready, device at %s", client.Base())

	if Config.GetBool("tui") {
		if err := view.Run(ctx, d, store, tea.WithAltScreen()); err != nil {
			Logger.Error().Msgf("terminal view failed: %v", err)
		}
		stop()
	} else {
		<-ctx.Done()
	}

	Logger.Info().Msg("shutting down")
	if err := d.Teardown(); err != nil {
		Logger.Warn().Msgf("%v", err)
	}
	forwarder.Stop()
	detachBridge()
	if monitor != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := monitor.Stop(sctx); err != nil {
			Logger.Warn().Msgf("Error stopping monitor server: %v", err)
		}
		cancel()
	}
	if MQTTConnected() {
		Client.Publish(OnlineTopic(), 0, false, "offline").WaitTimeout(publishWait)
		Client.Disconnect(250)
	}
}
