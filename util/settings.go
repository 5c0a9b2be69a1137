package util

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "NODE1"

var Config = viper.New()

var config_listeners []func()

func RegisterNewConfigListener(new_listener func()) {
	for _, listener := range config_listeners {
		if reflect.ValueOf(new_listener).Pointer() == reflect.ValueOf(listener).Pointer() {
			Logger.Warn().Msg("config listener already registered")
			return
		}
	}
	config_listeners = append(config_listeners, new_listener)
}

func OnNewConfig() {
	for _, listener := range config_listeners {
		listener()
	}
}

func GetRandString(n int) string {
	// using crypto/rand for better security
	const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		randBytes := make([]byte, 1)
		if _, err := rand.Read(randBytes); err != nil {
			// fallback to a simple approach if crypto/rand fails
			b[i] = letterBytes[i%len(letterBytes)]
		} else {
			b[i] = letterBytes[int(randBytes[0])%len(letterBytes)]
		}
	}
	return string(b)
}

func SetDefaults() {
	// device
	Config.SetDefault("api_url", "http://localhost:5000")
	Config.SetDefault("socket_path", "/socket.io/")
	Config.SetDefault("namespace", "/")
	Config.SetDefault("http_timeout", 10*time.Second)
	Config.SetDefault("insecure_tls", false)

	// push channel reconnection
	Config.SetDefault("reconnection", true)
	Config.SetDefault("reconnection_attempts", 0)
	Config.SetDefault("reconnection_delay", time.Second)
	Config.SetDefault("reconnection_delay_max", 5*time.Second)
	Config.SetDefault("randomization_factor", 0.5)

	// views
	Config.SetDefault("log_level", "info")
	Config.SetDefault("log_file", "node1_dashboard.log")
	Config.SetDefault("tui", true)
	Config.SetDefault("web", true)
	Config.SetDefault("web_port", 8080)

	// mqtt
	Config.SetDefault("mqtt", false)
	Config.SetDefault("broker_uri", "tcp://mqtt")
	Config.SetDefault("cleansess", false)
	Config.SetDefault("id_base", "node1_dashboard")
	Config.SetDefault("username", "")
	Config.SetDefault("password", "")
	Config.SetDefault("topic_base", "node1")
	Config.SetDefault("ha_discovery", true)
	Config.SetDefault("snapshot_frequency", 60)
}

// ParseFlags binds command line flags into Config. Flags win over the
// config file and the environment.
func ParseFlags(args []string) error {
	flags := pflag.NewFlagSet("node1_dashboard", pflag.ContinueOnError)
	flags.String("config", "", "path to a config file")
	flags.String("api-url", "http://localhost:5000", "base URL of the Node1 device")
	flags.String("log-level", "info", "trace, debug, info, warn or error")
	flags.Bool("tui", true, "run the terminal dashboard")
	flags.Bool("web", true, "serve the browser dashboard")
	flags.Int("web-port", 8080, "port for the browser dashboard")
	flags.Bool("mqtt", false, "bridge state and commands to MQTT")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr := Config.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); bindErr != nil {
			err = bindErr
		}
	})
	return err
}

func SetupConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		Logger.Warn().Msgf("unable to read .env: %v", err)
	}
	Config.SetEnvPrefix(ENV_PREFIX)
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	SetDefaults()

	// config file
	if path := Config.GetString("config"); path != "" {
		Config.SetConfigFile(path)
	} else {
		Config.SetConfigName("node1_dashboard")
		Config.AddConfigPath("/")
		Config.AddConfigPath("./")
		Config.AddConfigPath("./config")
		Config.AddConfigPath("/etc")
		Config.AddConfigPath("/node1_dashboard")
		Config.AddConfigPath("/node1_dashboard/config")
	}

	err := Config.ReadInConfig()
	if err != nil {
		Logger.Error().Msgf("unable to read config file: %v", fmt.Errorf("%v", err))
	}

	// environment variables
	Config.AutomaticEnv()

	// watch for changes
	if Config.ConfigFileUsed() != "" {
		Config.WatchConfig()
		Config.OnConfigChange(func(e fsnotify.Event) {
			Logger.Info().Msgf("Config file changed: %v", e.Name)
			Logger.Debug().Msgf("Config Additional Info: %v", e.String())
			OnNewConfig()
		})
	}
}
