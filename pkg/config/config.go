// Package config loads core settings: built-in defaults, then an optional
// TOML or YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/room"
)

// SocketPathEnv names the socket path the host UI expects
const SocketPathEnv = "ETCH_SOCKET_PATH"

const envPrefix = "SHARECORE_"

type Config struct {
	SocketPath string        `toml:"socket_path" yaml:"socket_path"`
	LogLevel   string        `toml:"log_level" yaml:"log_level"`
	Capture    CaptureConfig `toml:"capture" yaml:"capture"`
	Room       RoomConfig    `toml:"room" yaml:"room"`
}

// CaptureConfig tunes the capture pipeline. Durations are in milliseconds.
type CaptureConfig struct {
	FrameIntervalMS    int `toml:"frame_interval_ms" yaml:"frame_interval_ms"`
	PermanentThreshold int `toml:"permanent_threshold" yaml:"permanent_threshold"`
	MaxRestarts        int `toml:"max_restarts" yaml:"max_restarts"`
	RestartDelayMS     int `toml:"restart_delay_ms" yaml:"restart_delay_ms"`
	RestartRetries     int `toml:"restart_retries" yaml:"restart_retries"`
	RetryDelayMS       int `toml:"retry_delay_ms" yaml:"retry_delay_ms"`
	EnumerateTimeoutMS int `toml:"enumerate_timeout_ms" yaml:"enumerate_timeout_ms"`
	ThumbnailWidth     int `toml:"thumbnail_width" yaml:"thumbnail_width"`
	ThumbnailHeight    int `toml:"thumbnail_height" yaml:"thumbnail_height"`
	ThumbnailQuality   int `toml:"thumbnail_quality" yaml:"thumbnail_quality"`
	PreviewFPS         int `toml:"preview_fps" yaml:"preview_fps"` // 0 disables local preview
	PreviewWidth       int `toml:"preview_width" yaml:"preview_width"`
	PreviewHeight      int `toml:"preview_height" yaml:"preview_height"`
}

type RoomConfig struct {
	Name            string   `toml:"name" yaml:"name"`
	ICEServers      []string `toml:"ice_servers" yaml:"ice_servers"`
	ConnectTimeoutS int      `toml:"connect_timeout_s" yaml:"connect_timeout_s"`
	VideoBitrate    int      `toml:"video_bitrate" yaml:"video_bitrate"`
	AudioBitrate    int      `toml:"audio_bitrate" yaml:"audio_bitrate"`
}

// Default returns the built-in settings
func Default() Config {
	copts := capture.DefaultOptions()
	ropts := room.DefaultOptions()
	return Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			FrameIntervalMS:    int(copts.FrameInterval / time.Millisecond),
			PermanentThreshold: copts.Policy.PermanentThreshold,
			MaxRestarts:        copts.Policy.MaxRestarts,
			RestartDelayMS:     int(copts.RestartDelay / time.Millisecond),
			RestartRetries:     copts.RestartRetries,
			RetryDelayMS:       int(copts.RetryDelay / time.Millisecond),
			EnumerateTimeoutMS: int(copts.EnumerateTimeout / time.Millisecond),
			ThumbnailWidth:     copts.ThumbnailWidth,
			ThumbnailHeight:    copts.ThumbnailHeight,
			ThumbnailQuality:   copts.ThumbnailQuality,
			PreviewWidth:       copts.PreviewWidth,
			PreviewHeight:      copts.PreviewHeight,
		},
		Room: RoomConfig{
			Name:            "sharecore",
			ICEServers:      ropts.ICEServers,
			ConnectTimeoutS: 45,
			VideoBitrate:    ropts.VideoBitrate,
			AudioBitrate:    ropts.AudioBitrate,
		},
	}
}

// Load builds the configuration. An empty path searches the user config
// directory; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultFilePath()
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

func defaultFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "sharecore")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "sharecore")
	} else {
		return ""
	}

	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(SocketPathEnv); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv(envPrefix + "SOCKET_PATH"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "ROOM_NAME"); v != "" {
		cfg.Room.Name = v
	}
	if v := os.Getenv(envPrefix + "ICE_SERVERS"); v != "" {
		cfg.Room.ICEServers = strings.Split(v, ",")
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"PREVIEW_FPS", &cfg.Capture.PreviewFPS},
		{"FRAME_INTERVAL_MS", &cfg.Capture.FrameIntervalMS},
		{"CONNECT_TIMEOUT_S", &cfg.Room.ConnectTimeoutS},
		{"VIDEO_BITRATE", &cfg.Room.VideoBitrate},
	}
	for _, e := range ints {
		v := os.Getenv(envPrefix + e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, e.name, err)
		}
		*e.dst = n
	}
	return nil
}

// CaptureOptions converts the capture settings to pipeline options
func (c *Config) CaptureOptions() capture.Options {
	cc := c.Capture
	opts := capture.DefaultOptions()
	opts.FrameInterval = ms(cc.FrameIntervalMS)
	opts.Policy = capture.Policy{
		PermanentThreshold: cc.PermanentThreshold,
		MaxRestarts:        cc.MaxRestarts,
	}
	opts.RestartDelay = ms(cc.RestartDelayMS)
	opts.RestartRetries = cc.RestartRetries
	opts.RetryDelay = ms(cc.RetryDelayMS)
	opts.EnumerateTimeout = ms(cc.EnumerateTimeoutMS)
	opts.ThumbnailWidth = cc.ThumbnailWidth
	opts.ThumbnailHeight = cc.ThumbnailHeight
	opts.ThumbnailQuality = cc.ThumbnailQuality
	opts.PreviewWidth = cc.PreviewWidth
	opts.PreviewHeight = cc.PreviewHeight
	if cc.PreviewFPS > 0 {
		opts.PreviewInterval = time.Second / time.Duration(cc.PreviewFPS)
	}
	return opts
}

// RoomOptions converts the room settings to dialer options. The encoder and
// microphone source are left to the caller.
func (c *Config) RoomOptions() room.Options {
	opts := room.DefaultOptions()
	opts.Name = c.Room.Name
	opts.ICEServers = c.Room.ICEServers
	opts.VideoBitrate = c.Room.VideoBitrate
	opts.AudioBitrate = c.Room.AudioBitrate
	return opts
}

// ConnectTimeout is the room join budget
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Room.ConnectTimeoutS) * time.Second
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
