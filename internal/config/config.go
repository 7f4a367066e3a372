// Package config
// Author: momentics <momentics@gmail.com>
//
// Layered configuration for the talkd binary: defaults, an optional config
// file, TALK_* environment variables and explicit flag overrides, in
// increasing priority. Backed by viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/momentics/hioload-talk/control"
	"github.com/momentics/hioload-talk/server"
)

// EnvPrefix namespaces environment overrides, e.g. TALK_LISTEN_ADDR.
const EnvPrefix = "TALK"

// Keys.
const (
	KeyListenAddr        = "listen_addr"
	KeyReadTimeout       = "read_timeout"
	KeyWriteTimeout      = "write_timeout"
	KeyHandshakeTimeout  = "handshake_timeout"
	KeyShutdownTimeout   = "shutdown_timeout"
	KeyMaxFramePayload   = "max_frame_payload"
	KeyMaxMessagePayload = "max_message_payload"
	KeyReusePort         = "reuse_port"
	KeyNoDelay           = "no_delay"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyMetricsInterval   = "metrics_interval"
)

// Settings is the decoded configuration.
type Settings struct {
	Server          server.Config
	LogLevel        string
	LogFormat       string
	MetricsInterval time.Duration
}

// Loader owns a viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader installs defaults and environment binding.
func NewLoader() *Loader {
	v := viper.New()
	d := server.DefaultConfig()
	v.SetDefault(KeyListenAddr, d.ListenAddr)
	v.SetDefault(KeyReadTimeout, d.ReadTimeout)
	v.SetDefault(KeyWriteTimeout, d.WriteTimeout)
	v.SetDefault(KeyHandshakeTimeout, d.HandshakeTimeout)
	v.SetDefault(KeyShutdownTimeout, d.ShutdownTimeout)
	v.SetDefault(KeyMaxFramePayload, d.MaxFramePayload)
	v.SetDefault(KeyMaxMessagePayload, d.MaxMessagePayload)
	v.SetDefault(KeyReusePort, d.ReusePort)
	v.SetDefault(KeyNoDelay, d.NoDelay)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyMetricsInterval, time.Duration(0))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// ReadFile merges a YAML, TOML or JSON file. The format follows the extension.
func (l *Loader) ReadFile(path string) error {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return nil
}

// Set overrides key with the highest priority, as a flag would.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load decodes and validates the current settings.
func (l *Loader) Load() (*Settings, error) {
	v := l.v
	s := &Settings{
		Server: server.Config{
			ListenAddr:        v.GetString(KeyListenAddr),
			ReadTimeout:       v.GetDuration(KeyReadTimeout),
			WriteTimeout:      v.GetDuration(KeyWriteTimeout),
			HandshakeTimeout:  v.GetDuration(KeyHandshakeTimeout),
			ShutdownTimeout:   v.GetDuration(KeyShutdownTimeout),
			MaxFramePayload:   v.GetInt64(KeyMaxFramePayload),
			MaxMessagePayload: v.GetInt64(KeyMaxMessagePayload),
			ReusePort:         v.GetBool(KeyReusePort),
			NoDelay:           v.GetBool(KeyNoDelay),
		},
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		MetricsInterval: v.GetDuration(KeyMetricsInterval),
	}
	if err := s.Server.Validate(); err != nil {
		return nil, err
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return nil, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}
	return s, nil
}

// Watch reloads the config file on change and hands the new settings to
// onChange, then fires the control reload hooks. Invalid files are logged
// and skipped. It is a no-op when no file was read.
func (l *Loader) Watch(log logrus.FieldLogger, onChange func(*Settings)) error {
	if l.v.ConfigFileUsed() == "" {
		return errors.New("config: no config file to watch")
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		s, err := l.Load()
		if err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("config reload rejected")
			return
		}
		log.WithFields(logrus.Fields{"file": e.Name, "op": e.Op.String()}).Info("config reloaded")
		if onChange != nil {
			onChange(s)
		}
		control.TriggerHotReload()
	})
	l.v.WatchConfig()
	return nil
}
