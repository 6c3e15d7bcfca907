package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath      = "/data/options.json"
	DefaultPort            = 80
	DefaultReconnectTime   = 5 * time.Second
	DefaultPollingInterval = 300 * time.Millisecond
	DefaultRequestTimeout  = 10 * time.Second
	DefaultEmptyConfigWait = 5 * time.Minute
	DefaultLogLevel        = "INFO"

	ProfileMissingRetry   = "retry"
	ProfileMissingAbandon = "abandon"

	EmptyConfigFail = "fail"
	EmptyConfigWait = "wait"
)

// CameraConfig is the normalized configuration of one monitored device. It is never modified after loading.
type CameraConfig struct {
	Name                 string
	Model                string
	Address              string
	Port                 int
	Username             string
	Password             string
	IgnoreSSL            bool
	DigestAuth           bool
	ReconnectTime        time.Duration
	PollingInterval      time.Duration
	FastPollOnMove       bool
	RequestTimeout       time.Duration
	PositionTolerance    float64
	RequireIdleStatus    bool
	ProfileMissingPolicy string
}

type StaticConfig struct {
	Cameras           []CameraConfig
	LogLevel          string
	LogDir            string
	StatusListen      string
	EmptyConfigPolicy string
	EmptyConfigWait   time.Duration
}

// rawCamera accepts the field names of both options file layouts in circulation
// (camera_name/host and name/ip_address).
type rawCamera struct {
	CameraName           string   `mapstructure:"camera_name"`
	Name                 string   `mapstructure:"name"`
	Host                 string   `mapstructure:"host"`
	IPAddress            string   `mapstructure:"ip_address"`
	Model                string   `mapstructure:"model"`
	Port                 int      `mapstructure:"port"`
	Username             string   `mapstructure:"username"`
	Password             string   `mapstructure:"password"`
	IgnoreSSL            bool     `mapstructure:"ignore_ssl"`
	HttpDigestAuth       bool     `mapstructure:"http_digest_auth"`
	ReconnectTime        *float64 `mapstructure:"reconnect_time"`
	PollingInterval      *float64 `mapstructure:"polling_interval"`
	FastPollOnMove       *bool    `mapstructure:"fast_poll_on_move"`
	RequestTimeout       *float64 `mapstructure:"request_timeout"`
	PositionTolerance    float64  `mapstructure:"position_tolerance"`
	RequireIdleStatus    bool     `mapstructure:"require_idle_status"`
	ProfileMissingPolicy string   `mapstructure:"profile_missing_policy"`
}

type rawOptions struct {
	Cameras           []rawCamera `mapstructure:"cameras"`
	LogLevel          string      `mapstructure:"log_level"`
	MinLogLevel       string      `mapstructure:"min_log_level"`
	LogDir            string      `mapstructure:"log_dir"`
	StatusListen      string      `mapstructure:"status_listen"`
	EmptyConfigPolicy string      `mapstructure:"empty_config_policy"`
	EmptyConfigWait   *float64    `mapstructure:"empty_config_wait"`
}

// envOptions is the single camera fallback used when no options file exists.
type envOptions struct {
	CameraName        string  `envconfig:"CAMERA_NAME"`
	Host              string  `envconfig:"HOST"`
	IPAddress         string  `envconfig:"IP_ADDRESS"`
	Model             string  `envconfig:"MODEL"`
	Port              int     `envconfig:"PORT" default:"80"`
	Username          string  `envconfig:"USERNAME"`
	Password          string  `envconfig:"PASSWORD"`
	IgnoreSSL         bool    `envconfig:"IGNORE_SSL" default:"false"`
	HttpDigestAuth    bool    `envconfig:"HTTP_DIGEST_AUTH" default:"false"`
	ReconnectTime     float64 `envconfig:"RECONNECT_TIME" default:"5"`
	PollingInterval   float64 `envconfig:"POLLING_INTERVAL" default:"0.3"`
	FastPollOnMove    bool    `envconfig:"FAST_POLL_ON_MOVE" default:"true"`
	RequestTimeout    float64 `envconfig:"REQUEST_TIMEOUT" default:"10"`
	PositionTolerance float64 `envconfig:"POSITION_TOLERANCE" default:"0"`
	RequireIdleStatus bool    `envconfig:"REQUIRE_IDLE_STATUS" default:"false"`
	ProfileMissing    string  `envconfig:"PROFILE_MISSING_POLICY" default:"retry"`
	LogLevel          string  `envconfig:"LOG_LEVEL" default:"INFO"`
	LogDir            string  `envconfig:"LOG_DIR"`
	StatusListen      string  `envconfig:"STATUS_LISTEN"`
	EmptyConfigPolicy string  `envconfig:"EMPTY_CONFIG_POLICY" default:"fail"`
	EmptyConfigWait   float64 `envconfig:"EMPTY_CONFIG_WAIT" default:"300"`
}

// LoadConfig reads the options file at path, or the environment when the file does not exist.
func LoadConfig(path string) (*StaticConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return LoadConfigFromEnv()
		}
		return nil, errors.Wrapf(err, "can't stat config file %s", path)
	}
	return LoadConfigFile(path)
}

// LoadConfigFile reads a JSON or YAML options file.
func LoadConfigFile(path string) (*StaticConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return decodeSettings(v.AllSettings())
}

func decodeSettings(settings map[string]interface{}) (*StaticConfig, error) {
	var raw rawOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, errors.Wrap(err, "incorrect config file format")
	}
	return raw.normalize()
}

func (raw *rawOptions) normalize() (*StaticConfig, error) {
	config := &StaticConfig{
		LogLevel:          firstNonEmpty(raw.LogLevel, raw.MinLogLevel, DefaultLogLevel),
		LogDir:            raw.LogDir,
		StatusListen:      raw.StatusListen,
		EmptyConfigPolicy: firstNonEmpty(raw.EmptyConfigPolicy, EmptyConfigFail),
		EmptyConfigWait:   secondsOr(raw.EmptyConfigWait, DefaultEmptyConfigWait),
	}
	for _, rc := range raw.Cameras {
		address := firstNonEmpty(rc.Host, rc.IPAddress)
		cam := CameraConfig{
			Name:                 firstNonEmpty(rc.CameraName, rc.Name, address),
			Model:                rc.Model,
			Address:              address,
			Port:                 rc.Port,
			Username:             rc.Username,
			Password:             rc.Password,
			IgnoreSSL:            rc.IgnoreSSL,
			DigestAuth:           rc.HttpDigestAuth,
			ReconnectTime:        secondsOr(rc.ReconnectTime, DefaultReconnectTime),
			PollingInterval:      secondsOr(rc.PollingInterval, DefaultPollingInterval),
			FastPollOnMove:       rc.FastPollOnMove == nil || *rc.FastPollOnMove,
			RequestTimeout:       secondsOr(rc.RequestTimeout, DefaultRequestTimeout),
			PositionTolerance:    rc.PositionTolerance,
			RequireIdleStatus:    rc.RequireIdleStatus,
			ProfileMissingPolicy: firstNonEmpty(rc.ProfileMissingPolicy, ProfileMissingRetry),
		}
		if cam.Port == 0 {
			cam.Port = DefaultPort
		}
		config.Cameras = append(config.Cameras, cam)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFromEnv builds a single camera configuration from environment variables.
// No camera is configured when neither HOST nor IP_ADDRESS is set.
func LoadConfigFromEnv() (*StaticConfig, error) {
	var env envOptions
	if err := envconfig.Process("", &env); err != nil {
		return nil, errors.Wrap(err, "failed to read environment configuration")
	}
	raw := rawOptions{
		LogLevel:          env.LogLevel,
		LogDir:            env.LogDir,
		StatusListen:      env.StatusListen,
		EmptyConfigPolicy: env.EmptyConfigPolicy,
		EmptyConfigWait:   &env.EmptyConfigWait,
	}
	if env.Host != "" || env.IPAddress != "" {
		raw.Cameras = []rawCamera{{
			CameraName:           env.CameraName,
			Host:                 env.Host,
			IPAddress:            env.IPAddress,
			Model:                env.Model,
			Port:                 env.Port,
			Username:             env.Username,
			Password:             env.Password,
			IgnoreSSL:            env.IgnoreSSL,
			HttpDigestAuth:       env.HttpDigestAuth,
			ReconnectTime:        &env.ReconnectTime,
			PollingInterval:      &env.PollingInterval,
			FastPollOnMove:       &env.FastPollOnMove,
			RequestTimeout:       &env.RequestTimeout,
			PositionTolerance:    env.PositionTolerance,
			RequireIdleStatus:    env.RequireIdleStatus,
			ProfileMissingPolicy: env.ProfileMissing,
		}}
	}
	return raw.normalize()
}

func (c *StaticConfig) Validate() error {
	switch c.EmptyConfigPolicy {
	case EmptyConfigFail, EmptyConfigWait:
	default:
		return fmt.Errorf("unknown empty_config_policy %q", c.EmptyConfigPolicy)
	}
	names := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if names[cam.Name] {
			return fmt.Errorf("camera %d: duplicate camera name %q, set camera_name to tell cameras apart", i, cam.Name)
		}
		names[cam.Name] = true
		if cam.Address == "" {
			return fmt.Errorf("camera %d (%s): address is not set", i, cam.Name)
		}
		if cam.Port < 0 || cam.Port > 65535 {
			return fmt.Errorf("camera %s: invalid port %d", cam.Name, cam.Port)
		}
		if cam.ReconnectTime < 0 || cam.PollingInterval < 0 || cam.RequestTimeout < 0 {
			return fmt.Errorf("camera %s: durations must not be negative", cam.Name)
		}
		if cam.PositionTolerance < 0 {
			return fmt.Errorf("camera %s: position_tolerance must not be negative", cam.Name)
		}
		switch cam.ProfileMissingPolicy {
		case ProfileMissingRetry, ProfileMissingAbandon:
		default:
			return fmt.Errorf("camera %s: unknown profile_missing_policy %q", cam.Name, cam.ProfileMissingPolicy)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func secondsOr(seconds *float64, def time.Duration) time.Duration {
	if seconds == nil {
		return def
	}
	return time.Duration(*seconds * float64(time.Second))
}
