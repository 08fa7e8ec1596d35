package config

import "time"

// ClipService definition clip_service YAML structure
type ClipService struct {
	Port string `mapstructure:"port"`
	IP   string `mapstructure:"ip"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`

	FFmpeg      FFmpegConfig   `mapstructure:"ffmpeg"`
	Transcriber ProviderConfig `mapstructure:"transcriber"`
	Embedder    ProviderConfig `mapstructure:"embedder"`

	Media  MediaConfig `mapstructure:"media"`
	Queues QueueConfig `mapstructure:"queues"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	BucketName    string `mapstructure:"bucket_name"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// FFmpegConfig definition media tool setting
type FFmpegConfig struct {
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	FFprobePath  string `mapstructure:"ffprobe_path"`
	WorkDir      string `mapstructure:"work_dir"`
	ProbeTimeout int    `mapstructure:"probe_timeout"` // seconds
	SceneTimeout int    `mapstructure:"scene_timeout"` // seconds
	ToolTimeout  int    `mapstructure:"tool_timeout"`  // seconds, heavy ops
}

// ProviderConfig selects and configures one inference backend.
// Backend is resolved exactly once at startup ("local" or "openai").
type ProviderConfig struct {
	Backend string `mapstructure:"backend"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // seconds per request
}

// MediaConfig definition pipeline tuning knobs
type MediaConfig struct {
	UploadDir         string  `mapstructure:"upload_dir"`
	OutputDir         string  `mapstructure:"output_dir"`
	MinClipSeconds    float64 `mapstructure:"min_clip_seconds"`
	SceneThreshold    float64 `mapstructure:"scene_threshold"`
	ShortVideoSeconds float64 `mapstructure:"short_video_seconds"`
	EmbedBatchLimit   int     `mapstructure:"embed_batch_limit"`
}

// WorkerConfig sizes one named queue's consumer pool.
type WorkerConfig struct {
	Concurrency  int `mapstructure:"concurrency"`
	MaxAttempts  int `mapstructure:"max_attempts"`
	LeaseSeconds int `mapstructure:"lease_seconds"`
	JobTimeout   int `mapstructure:"job_timeout"`  // seconds
	BackoffBase  int `mapstructure:"backoff_base"` // seconds
}

// QueueConfig definition per-queue worker pools. The processing queue
// runs fewer concurrent jobs than the lighter fan-out queues.
type QueueConfig struct {
	Prefix     string       `mapstructure:"prefix"`
	Processing WorkerConfig `mapstructure:"processing"`
	Embedding  WorkerConfig `mapstructure:"embedding"`
	Highlight  WorkerConfig `mapstructure:"highlight"`
}

// Lease returns the lease duration for the pool.
func (w WorkerConfig) Lease() time.Duration {
	return time.Duration(w.LeaseSeconds) * time.Second
}

// Timeout returns the per-job deadline for the pool.
func (w WorkerConfig) Timeout() time.Duration {
	return time.Duration(w.JobTimeout) * time.Second
}

// Backoff returns the base retry delay for the pool.
func (w WorkerConfig) Backoff() time.Duration {
	return time.Duration(w.BackoffBase) * time.Second
}
