// Package config loads the voxroom configuration file and maps it onto the
// settings of the packages it drives.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/voxroom/internal/store"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig         `json:"log" yaml:"log"`
	Discord   DiscordConfig     `json:"discord" yaml:"discord"`
	Pipeline  PipelineConfig    `json:"pipeline" yaml:"pipeline"`
	TTS       TTSConfig         `json:"tts" yaml:"tts"`
	Playback  PlaybackConfig    `json:"playback" yaml:"playback"`
	Store     store.StoreConfig `json:"store" yaml:"store"`
	HTTP      HTTPConfig        `json:"http" yaml:"http"`
	Telemetry TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// DiscordConfig configures the gateway connection.
type DiscordConfig struct {
	Token          string `json:"token,omitempty" yaml:"token,omitempty"`
	ApplicationID  string `json:"application_id,omitempty" yaml:"application_id,omitempty"`
	DevGuildID     string `json:"dev_guild_id,omitempty" yaml:"dev_guild_id,omitempty"` // register commands to one guild only
	HealthCheckMS  int    `json:"health_check_ms" yaml:"health_check_ms"`
	ConnectWaitMS  int    `json:"connect_wait_ms" yaml:"connect_wait_ms"`
	AutoRegister   bool   `json:"auto_register" yaml:"auto_register"`
	ReadBotMessage bool   `json:"read_bot_messages" yaml:"read_bot_messages"`
}

// PipelineConfig holds the per-room knobs. Sessions read them once when
// they are created; live sessions keep theirs across reloads.
type PipelineConfig struct {
	MaxMessageChars   int    `json:"max_message_chars" yaml:"max_message_chars"`
	MaxUtteranceChars int    `json:"max_utterance_chars" yaml:"max_utterance_chars"`
	RejectChars       int    `json:"reject_chars" yaml:"reject_chars"`
	CooldownMS        int    `json:"cooldown_ms" yaml:"cooldown_ms"`
	CoalesceWindowMS  int    `json:"coalesce_window_ms" yaml:"coalesce_window_ms"`
	CoalesceMaxHoldMS int    `json:"coalesce_max_hold_ms" yaml:"coalesce_max_hold_ms"` // 0: flush by first arrival + window
	CoalesceMode      string `json:"coalesce_mode" yaml:"coalesce_mode"`
	QueueCap          int    `json:"queue_cap" yaml:"queue_cap"`
	QueueDrop         string `json:"queue_drop" yaml:"queue_drop"`
	StuckTimeoutMS    int    `json:"stuck_timeout_ms" yaml:"stuck_timeout_ms"`
	StuckGraceMS      int    `json:"stuck_grace_ms" yaml:"stuck_grace_ms"`
	MaxAudioMS        int    `json:"max_audio_ms" yaml:"max_audio_ms"`
	SkipSummary       bool   `json:"skip_summary" yaml:"skip_summary"`
	DedupeTTLMS       int    `json:"dedupe_ttl_ms" yaml:"dedupe_ttl_ms"`
	DedupeSize        int    `json:"dedupe_size" yaml:"dedupe_size"`
	BusBuffer         int    `json:"bus_buffer" yaml:"bus_buffer"`
	NotifyBuffer      int    `json:"notify_buffer" yaml:"notify_buffer"`
}

// TTSConfig configures the provider chain and its retry policy.
type TTSConfig struct {
	Providers     []string `json:"providers" yaml:"providers"` // fallback order, primary first
	FallbackVoice string   `json:"fallback_voice" yaml:"fallback_voice"`
	MaxRetries    int      `json:"max_retries" yaml:"max_retries"`
	MaxAttempts   int      `json:"max_attempts" yaml:"max_attempts"`
	CallTimeoutMS int      `json:"call_timeout_ms" yaml:"call_timeout_ms"`
	BaseBackoffMS int      `json:"base_backoff_ms" yaml:"base_backoff_ms"`
	MaxBackoffMS  int      `json:"max_backoff_ms" yaml:"max_backoff_ms"`

	VoiceFailureThreshold int `json:"voice_failure_threshold" yaml:"voice_failure_threshold"`
	VoiceCooldownMS       int `json:"voice_cooldown_ms" yaml:"voice_cooldown_ms"`

	Breakers map[string]BreakerConfig `json:"breakers,omitempty" yaml:"breakers,omitempty"`

	TikTok     TikTokConfig     `json:"tiktok" yaml:"tiktok"`
	Google     GoogleConfig     `json:"google" yaml:"google"`
	OpenAI     OpenAIConfig     `json:"openai" yaml:"openai"`
	ElevenLabs ElevenLabsConfig `json:"elevenlabs" yaml:"elevenlabs"`
	Edge       EdgeConfig       `json:"edge" yaml:"edge"`
	MiniMax    MiniMaxConfig    `json:"minimax" yaml:"minimax"`
}

// BreakerConfig is a provider circuit breaker setting.
type BreakerConfig struct {
	Threshold  int `json:"threshold" yaml:"threshold"`
	CooldownMS int `json:"cooldown_ms" yaml:"cooldown_ms"`
}

type TikTokConfig struct {
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

type GoogleConfig struct {
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	Lang string `json:"lang,omitempty" yaml:"lang,omitempty"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIBase string `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Voice   string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

type ElevenLabsConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	VoiceID string `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	ModelID string `json:"model_id,omitempty" yaml:"model_id,omitempty"`
}

type EdgeConfig struct {
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`
	Voice  string `json:"voice,omitempty" yaml:"voice,omitempty"`
	Rate   string `json:"rate,omitempty" yaml:"rate,omitempty"`
}

type MiniMaxConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	GroupID string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	APIBase string `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	VoiceID string `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
}

// PlaybackConfig configures the Discord sink.
type PlaybackConfig struct {
	FFmpegPath    string  `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	Bitrate       string  `json:"bitrate" yaml:"bitrate"`
	SendTimeoutMS int     `json:"send_timeout_ms" yaml:"send_timeout_ms"`
	Volume        float64 `json:"volume" yaml:"volume"`
	GreetVolume   float64 `json:"greet_volume" yaml:"greet_volume"`
}

// HTTPConfig configures the local API server.
type HTTPConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Listen    string `json:"listen" yaml:"listen"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"` // bearer token; empty disables auth
	RPM       int    `json:"rpm" yaml:"rpm"`
	Burst     int    `json:"burst" yaml:"burst"`
	Tailscale bool   `json:"tailscale" yaml:"tailscale"` // listen on the tailnet (tsnet builds only)
	TSHost    string `json:"ts_hostname,omitempty" yaml:"ts_hostname,omitempty"`
	TSAuthKey string `json:"ts_authkey,omitempty" yaml:"ts_authkey,omitempty"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	OTLPEndpoint string            `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
	OTLPProtocol string            `json:"otlp_protocol,omitempty" yaml:"otlp_protocol,omitempty"`
	OTLPInsecure bool              `json:"otlp_insecure" yaml:"otlp_insecure"`
	OTLPHeaders  map[string]string `json:"otlp_headers,omitempty" yaml:"otlp_headers,omitempty"`
	Metrics      bool              `json:"metrics" yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Discord: DiscordConfig{
			HealthCheckMS: 20000,
			ConnectWaitMS: 5000,
			AutoRegister:  true,
		},
		Pipeline: PipelineConfig{
			MaxMessageChars:   300,
			MaxUtteranceChars: 600,
			RejectChars:       4000,
			CooldownMS:        1000,
			CoalesceWindowMS:  500,
			CoalesceMaxHoldMS: 0, // 0 holds for one window
			CoalesceMode:      "same_speaker",
			QueueCap:          100,
			QueueDrop:         "old",
			StuckTimeoutMS:    15000,
			StuckGraceMS:      2000,
			MaxAudioMS:        60000,
			SkipSummary:       true,
			DedupeTTLMS:       300000,
			DedupeSize:        5000,
			BusBuffer:         256,
			NotifyBuffer:      32,
		},
		TTS: TTSConfig{
			Providers:             []string{"tiktok", "google"},
			FallbackVoice:         "en_us_001",
			MaxRetries:            2,
			CallTimeoutMS:         15000,
			BaseBackoffMS:         500,
			MaxBackoffMS:          5000,
			VoiceFailureThreshold: 3,
			VoiceCooldownMS:       600000,
			Breakers: map[string]BreakerConfig{
				"tiktok": {Threshold: 3, CooldownMS: 60000},
				"google": {Threshold: 5, CooldownMS: 30000},
			},
			Google: GoogleConfig{Lang: "en"},
		},
		Playback: PlaybackConfig{
			FFmpegPath:    "ffmpeg",
			Bitrate:       "64k",
			SendTimeoutMS: 5000,
			Volume:        1.0,
			GreetVolume:   0.8,
		},
		Store: store.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "data/voxroom.db",
			CacheSize:  1024,
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8790",
			RPM:    60,
			Burst:  10,
		},
		Telemetry: TelemetryConfig{
			OTLPProtocol: "grpc",
			Metrics:      true,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// Files ending in .yaml or .yml are YAML; anything else is JSON5.
// An empty path yields the defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data into cfg, picking the format from name's extension.
func Decode(name string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse json5 config: %w", err)
		}
	}
	return nil
}

// Save writes cfg to path, YAML for .yaml/.yml and indented JSON otherwise.
// JSON output is valid JSON5, so Load reads it back either way.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from VOXROOM_* environment variables.
func (c *Config) ApplyEnv() {
	overrideString(&c.Log.Level, "VOXROOM_LOG_LEVEL")
	overrideString(&c.Log.Format, "VOXROOM_LOG_FORMAT")
	overrideString(&c.Discord.Token, "VOXROOM_DISCORD_TOKEN")
	overrideString(&c.Discord.ApplicationID, "VOXROOM_DISCORD_APPLICATION_ID")
	overrideString(&c.Discord.DevGuildID, "VOXROOM_DISCORD_DEV_GUILD_ID")
	overrideStringSlice(&c.TTS.Providers, "VOXROOM_TTS_PROVIDERS")
	overrideString(&c.TTS.OpenAI.APIKey, "VOXROOM_OPENAI_API_KEY")
	overrideString(&c.TTS.ElevenLabs.APIKey, "VOXROOM_ELEVENLABS_API_KEY")
	overrideString(&c.TTS.MiniMax.APIKey, "VOXROOM_MINIMAX_API_KEY")
	overrideString(&c.TTS.MiniMax.GroupID, "VOXROOM_MINIMAX_GROUP_ID")
	overrideString(&c.Store.Driver, "VOXROOM_STORE_DRIVER")
	overrideString(&c.Store.SQLitePath, "VOXROOM_SQLITE_PATH")
	overrideString(&c.Store.PostgresDSN, "VOXROOM_POSTGRES_DSN")
	overrideString(&c.Store.RedisURL, "VOXROOM_REDIS_URL")
	overrideBool(&c.HTTP.Enabled, "VOXROOM_HTTP_ENABLED")
	overrideString(&c.HTTP.Listen, "VOXROOM_HTTP_LISTEN")
	overrideString(&c.HTTP.Token, "VOXROOM_HTTP_TOKEN")
	overrideString(&c.HTTP.TSAuthKey, "VOXROOM_TS_AUTHKEY")
	overrideString(&c.Telemetry.OTLPEndpoint, "VOXROOM_OTLP_ENDPOINT")
	overrideBool(&c.Telemetry.Metrics, "VOXROOM_METRICS")
	overrideInt(&c.Pipeline.QueueCap, "VOXROOM_QUEUE_CAP")
	overrideInt(&c.Pipeline.CooldownMS, "VOXROOM_COOLDOWN_MS")
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func overrideStringSlice(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

var knownProviders = map[string]bool{
	"tiktok": true, "google": true, "openai": true,
	"elevenlabs": true, "edge": true, "minimax": true,
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		bad("log.format must be text or json, got %q", c.Log.Format)
	}

	p := c.Pipeline
	if p.MaxMessageChars < 1 {
		bad("pipeline.max_message_chars must be positive")
	}
	if p.MaxUtteranceChars < p.MaxMessageChars {
		bad("pipeline.max_utterance_chars (%d) must be >= max_message_chars (%d)", p.MaxUtteranceChars, p.MaxMessageChars)
	}
	if p.RejectChars > 0 && p.RejectChars < p.MaxMessageChars {
		bad("pipeline.reject_chars (%d) must be >= max_message_chars (%d)", p.RejectChars, p.MaxMessageChars)
	}
	if p.CooldownMS < 0 || p.CoalesceWindowMS < 0 || p.CoalesceMaxHoldMS < 0 {
		bad("pipeline durations must not be negative")
	}
	if p.CoalesceMaxHoldMS > 0 && p.CoalesceMaxHoldMS < p.CoalesceWindowMS {
		bad("pipeline.coalesce_max_hold_ms must be >= coalesce_window_ms")
	}
	switch p.CoalesceMode {
	case "same_speaker", "any":
	default:
		bad("pipeline.coalesce_mode must be same_speaker or any, got %q", p.CoalesceMode)
	}
	if p.QueueCap < 1 {
		bad("pipeline.queue_cap must be positive")
	}
	switch p.QueueDrop {
	case "old", "new":
	default:
		bad("pipeline.queue_drop must be old or new, got %q", p.QueueDrop)
	}
	if p.StuckTimeoutMS <= 0 {
		bad("pipeline.stuck_timeout_ms must be positive")
	}

	if len(c.TTS.Providers) == 0 {
		bad("tts.providers must name at least one provider")
	}
	seen := map[string]bool{}
	for _, name := range c.TTS.Providers {
		if !knownProviders[name] {
			bad("tts.providers: unknown provider %q", name)
		}
		if seen[name] {
			bad("tts.providers: %q listed twice", name)
		}
		seen[name] = true
	}
	if seen["openai"] && c.TTS.OpenAI.APIKey == "" {
		bad("tts.openai.api_key is required when openai is a provider")
	}
	if seen["elevenlabs"] && c.TTS.ElevenLabs.APIKey == "" {
		bad("tts.elevenlabs.api_key is required when elevenlabs is a provider")
	}
	if seen["minimax"] && (c.TTS.MiniMax.APIKey == "" || c.TTS.MiniMax.GroupID == "") {
		bad("tts.minimax.api_key and group_id are required when minimax is a provider")
	}
	if c.TTS.MaxRetries < 0 {
		bad("tts.max_retries must not be negative")
	}

	if c.Playback.Volume < 0 || c.Playback.Volume > 2 {
		bad("playback.volume must be within 0..2")
	}

	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			bad("store.postgres_dsn is required for the postgres driver")
		}
	default:
		bad("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}

	if c.HTTP.Enabled && c.HTTP.Listen == "" && !c.HTTP.Tailscale {
		bad("http.listen is required when http is enabled")
	}
	switch c.Telemetry.OTLPProtocol {
	case "", "grpc", "http":
	default:
		bad("telemetry.otlp_protocol must be grpc or http, got %q", c.Telemetry.OTLPProtocol)
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	out.Discord.Token = mask(c.Discord.Token)
	out.TTS.OpenAI.APIKey = mask(c.TTS.OpenAI.APIKey)
	out.TTS.ElevenLabs.APIKey = mask(c.TTS.ElevenLabs.APIKey)
	out.TTS.MiniMax.APIKey = mask(c.TTS.MiniMax.APIKey)
	out.HTTP.Token = mask(c.HTTP.Token)
	out.HTTP.TSAuthKey = mask(c.HTTP.TSAuthKey)
	if c.Store.PostgresDSN != "" {
		out.Store.PostgresDSN = "***"
	}
	if c.Store.RedisURL != "" {
		out.Store.RedisURL = "***"
	}
	return &out
}
