// Package config loads this gateway's runtime configuration (spec.md
// section 6): listener ports, SIP timers, the media candidate address,
// the RTMP output URL template, the HEVC gate, and the log level.
// Grounded on the pack sibling firestige-Otus's viper-backed loader
// (internal/otus/config/loader.go): a YAML file plus environment
// override through the same viper instance, unmarshaled into a typed
// struct rather than read key-by-key.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gb28181gw/gateway/gbgwerrors"
	"github.com/gb28181gw/gateway/log"
	"github.com/gb28181gw/gateway/session"
)

// envPrefix mirrors the teacher sibling's OTUS_ prefix convention,
// adapted to this gateway's own name.
const envPrefix = "GBGW"

// Config is the full on-disk/env configuration surface.
type Config struct {
	SIPHost   string `mapstructure:"sip_host"`
	SIPPort   int    `mapstructure:"sip_port"`
	MediaPort int    `mapstructure:"media_port"`
	GatewayID string `mapstructure:"gateway_id"`

	// Candidate is a literal IP, or "*" to discover the outbound IP at
	// load time (spec.md section 6).
	Candidate string `mapstructure:"candidate"`

	OutputURLTemplate string `mapstructure:"output_url_template"`

	SIPTimeoutSeconds   int  `mapstructure:"sip_timeout_seconds"`
	ReinviteWaitSeconds int  `mapstructure:"reinvite_wait_seconds"`
	HEVCEnabled         bool `mapstructure:"hevc_enabled"`

	// Log is nested rather than flattened (unlike the other fields) so
	// its own mapstructure tags don't collide with LogLevel's, which
	// predates this struct and stays for backward-compatible flat
	// "log_level" config files; Load reconciles the two below.
	Log log.Config `mapstructure:"log"`

	LogLevel string `mapstructure:"log_level"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// defaults applied by Load before the file/env values are merged in,
// following applyDefaults in the teacher sibling's loader.
func setDefaults(v *viper.Viper) {
	v.SetDefault("sip_port", 5060)
	v.SetDefault("media_port", 8000)
	v.SetDefault("gateway_id", "34020000002000000001")
	v.SetDefault("candidate", "*")
	v.SetDefault("output_url_template", "rtmp://localhost/live/[stream]")
	v.SetDefault("sip_timeout_seconds", 10)
	v.SetDefault("reinvite_wait_seconds", 30)
	v.SetDefault("hevc_enabled", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", ":9090")
}

// Load reads path (a YAML file) through viper, with GBGW_-prefixed
// environment variables overriding matching keys, validates the result,
// and returns the typed Config.
func Load(path string) (*Config, error) {
	v := viper.New()

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)

	v.SetConfigName(nameWithoutExt)
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.AddConfigPath(dir)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, gbgwerrors.New(gbgwerrors.Config, "config.Load", fmt.Errorf("reading %s: %w", path, err))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, gbgwerrors.New(gbgwerrors.Config, "config.Load", fmt.Errorf("unmarshaling: %w", err))
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = cfg.LogLevel
	}

	if err := cfg.resolveCandidate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces spec.md section 6/7's invalid-configuration failure:
// both TCP listeners need a usable port, and the gateway needs an
// identity to build outbound SIP messages with. There is no SIP on/off
// setting to check.
func (c *Config) Validate() error {
	if c.SIPPort <= 0 || c.SIPPort > 65535 {
		return gbgwerrors.New(gbgwerrors.Config, "config.Validate",
			fmt.Errorf("sip_port %d is not a usable TCP port", c.SIPPort))
	}
	if c.MediaPort <= 0 || c.MediaPort > 65535 {
		return gbgwerrors.New(gbgwerrors.Config, "config.Validate",
			fmt.Errorf("media_port %d is not a usable TCP port", c.MediaPort))
	}
	if c.GatewayID == "" {
		return gbgwerrors.New(gbgwerrors.Config, "config.Validate", fmt.Errorf("gateway_id must not be empty"))
	}
	if c.Candidate == "" || c.Candidate == "*" {
		return gbgwerrors.New(gbgwerrors.Config, "config.Validate",
			fmt.Errorf("candidate could not be resolved to a usable address"))
	}
	return nil
}

// resolveCandidate replaces a "*" candidate with the machine's outbound
// IP, discovered the standard way: dialing UDP (no packet ever sent)
// and reading the local address the kernel picked for the default
// route. Literal candidates are left untouched.
func (c *Config) resolveCandidate() error {
	if c.Candidate != "*" {
		return nil
	}
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return gbgwerrors.New(gbgwerrors.Config, "config.resolveCandidate",
			fmt.Errorf("discovering outbound IP: %w", err))
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return gbgwerrors.New(gbgwerrors.Config, "config.resolveCandidate",
			fmt.Errorf("unexpected local address type %T", conn.LocalAddr()))
	}
	c.Candidate = local.IP.String()
	return nil
}

// ToSessionConfig converts the loaded Config to the subset session.Manager
// needs, translating the on-disk second-granularity timers into
// time.Duration.
func (c *Config) ToSessionConfig() session.Config {
	return session.Config{
		SIPHost:           c.Candidate,
		SIPPort:           c.SIPPort,
		MediaPort:         c.MediaPort,
		GatewayID:         c.GatewayID,
		Candidate:         c.Candidate,
		OutputURLTemplate: c.OutputURLTemplate,
		SIPTimeout:        time.Duration(c.SIPTimeoutSeconds) * time.Second,
		ReinviteWait:      time.Duration(c.ReinviteWaitSeconds) * time.Second,
		HEVCEnabled:       c.HEVCEnabled,
	}
}

// OutputURL substitutes deviceID for the "[stream]" token in the
// configured output URL template (spec.md section 6).
func (c *Config) OutputURL(deviceID string) string {
	return strings.ReplaceAll(c.OutputURLTemplate, "[stream]", deviceID)
}
