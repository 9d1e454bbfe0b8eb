package config

import (
	"fmt"
	"log/slog"
)

// Validate checks that the settings can run. Load calls it after applying
// env overrides.
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level %q: must be debug, info, warn or error", c.LogLevel)
	}

	if c.Capture.PreviewFPS < 0 {
		return fmt.Errorf("capture.preview_fps must be >= 0, got %d", c.Capture.PreviewFPS)
	}
	if err := c.CaptureOptions().Validate(); err != nil {
		return fmt.Errorf("capture settings: %w", err)
	}

	if c.Room.ConnectTimeoutS <= 0 {
		return fmt.Errorf("room.connect_timeout_s must be > 0, got %d", c.Room.ConnectTimeoutS)
	}
	if c.Room.VideoBitrate <= 0 {
		return fmt.Errorf("room.video_bitrate must be > 0, got %d", c.Room.VideoBitrate)
	}
	if c.Room.AudioBitrate <= 0 {
		return fmt.Errorf("room.audio_bitrate must be > 0, got %d", c.Room.AudioBitrate)
	}
	return nil
}
