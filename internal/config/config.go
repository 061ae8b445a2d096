// Package config provides the configuration structure for the audiobook-service.
package config

import (
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied when a field is left unset.
const (
	defaultMaxTextChars          = 5000
	defaultTimeoutSeconds        = 30
	defaultMaxAttempts           = 3
	defaultInitialBackoffSeconds = 1
	defaultMaxBackoffSeconds     = 8
	defaultWorkers               = 1
	defaultSegmentMaxChars       = 1000
	defaultLoudnessTarget        = -18.0
	defaultTruePeak              = -1.5
	defaultLoudnessRange         = 11.0
	defaultMP3Bitrate            = "192k"
	defaultM4BBitrate            = "128k"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultExtractCommand        = "pdftotext"
	defaultPollIntervalSeconds   = 1
	defaultMaxWaitSeconds        = 3600
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                       string `toml:"url"`
	AudiobookRequestedSubject string `toml:"audiobook_requested_subject"`
	AudioObjectStoreBucket    string `toml:"audio_object_store_bucket"`
}

// TTSConfig holds the configuration for the speech synthesis provider.
type TTSConfig struct {
	BaseURL               string  `toml:"base_url"`
	APIKey                string  `toml:"api_key"`
	DefaultVoiceID        string  `toml:"default_voice_id"`
	ModelID               string  `toml:"model_id"`
	MaxTextChars          int     `toml:"max_text_chars"`
	TimeoutSeconds        int     `toml:"timeout_seconds"`
	MaxAttempts           int     `toml:"max_attempts"`
	InitialBackoffSeconds int     `toml:"initial_backoff_seconds"`
	MaxBackoffSeconds     int     `toml:"max_backoff_seconds"`
	Workers               int     `toml:"workers"`
	Stability             float64 `toml:"stability"`
	SimilarityBoost       float64 `toml:"similarity_boost"`
}

// AudioConfig holds the configuration for assembly and packaging.
type AudioConfig struct {
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	FFprobeBinary   string  `toml:"ffprobe_binary"`
	LoudnessTarget  float64 `toml:"loudness_target_lufs"`
	TruePeak        float64 `toml:"true_peak_db"`
	LoudnessRange   float64 `toml:"loudness_range_lu"`
	MP3Bitrate      string  `toml:"mp3_bitrate"`
	M4BBitrate      string  `toml:"m4b_bitrate"`
	SegmentMaxChars int     `toml:"segment_max_chars"`
}

// ExtractConfig holds the configuration for the text extraction command.
type ExtractConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// JobsConfig holds the configuration for the job store and progress polling.
type JobsConfig struct {
	DBPath              string `toml:"db_path"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxWaitSeconds      int    `toml:"max_wait_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS    NATSConfig    `toml:"nats"`
	TTS     TTSConfig     `toml:"tts"`
	Audio   AudioConfig   `toml:"audio"`
	Extract ExtractConfig `toml:"extract"`
	Jobs    JobsConfig    `toml:"jobs"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration for the audiobook-service via the central
// configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromFile reads a TOML configuration file directly. Used by the CLI
// client and tests, where the configurator's project discovery is not wanted.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file '%s': %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.applyTTSDefaults()
	c.applyAudioDefaults()

	if c.Extract.Command == "" {
		c.Extract.Command = defaultExtractCommand
	}

	if c.Jobs.PollIntervalSeconds == 0 {
		c.Jobs.PollIntervalSeconds = defaultPollIntervalSeconds
	}

	if c.Jobs.MaxWaitSeconds == 0 {
		c.Jobs.MaxWaitSeconds = defaultMaxWaitSeconds
	}
}

func (c *Config) applyTTSDefaults() {
	if c.TTS.MaxTextChars == 0 {
		c.TTS.MaxTextChars = defaultMaxTextChars
	}

	if c.TTS.TimeoutSeconds == 0 {
		c.TTS.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.TTS.MaxAttempts == 0 {
		c.TTS.MaxAttempts = defaultMaxAttempts
	}

	if c.TTS.InitialBackoffSeconds == 0 {
		c.TTS.InitialBackoffSeconds = defaultInitialBackoffSeconds
	}

	if c.TTS.MaxBackoffSeconds == 0 {
		c.TTS.MaxBackoffSeconds = defaultMaxBackoffSeconds
	}

	if c.TTS.Workers == 0 {
		c.TTS.Workers = defaultWorkers
	}
}

func (c *Config) applyAudioDefaults() {
	if c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = defaultFFmpegBinary
	}

	if c.Audio.FFprobeBinary == "" {
		c.Audio.FFprobeBinary = defaultFFprobeBinary
	}

	if c.Audio.LoudnessTarget == 0 {
		c.Audio.LoudnessTarget = defaultLoudnessTarget
	}

	if c.Audio.TruePeak == 0 {
		c.Audio.TruePeak = defaultTruePeak
	}

	if c.Audio.LoudnessRange == 0 {
		c.Audio.LoudnessRange = defaultLoudnessRange
	}

	if c.Audio.MP3Bitrate == "" {
		c.Audio.MP3Bitrate = defaultMP3Bitrate
	}

	if c.Audio.M4BBitrate == "" {
		c.Audio.M4BBitrate = defaultM4BBitrate
	}

	if c.Audio.SegmentMaxChars == 0 {
		c.Audio.SegmentMaxChars = defaultSegmentMaxChars
	}
}
