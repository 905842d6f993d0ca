// Package config loads server configuration from the environment,
// following the envconfig pattern used throughout the teacher codebase.
package config

import "github.com/kelseyhightower/envconfig"

// Config holds every tunable the core subsystems need. Struct-tag
// defaults mirror the spec's stated constants; operators override via
// environment variables only, no config file.
type Config struct {
	Server     Server
	Capture    Capture
	Pipeline   Pipeline
	Clipboard  Clipboard
	Credential Credential
}

type Server struct {
	XDGRuntimeDir string `envconfig:"XDG_RUNTIME_DIR" default:"/run/user/1000"`
	XDGDataHome   string `envconfig:"XDG_DATA_HOME"`
	AppID         string `envconfig:"WAYRDP_APP_ID" default:"wayrdpd"`
}

type Capture struct {
	FrameChannelDepth int `envconfig:"WAYRDP_FRAME_CHANNEL_DEPTH" default:"256"`
	CommandChannelDepth int `envconfig:"WAYRDP_COMMAND_CHANNEL_DEPTH" default:"32"`
}

type Pipeline struct {
	MaxFrameAgeMS      int64   `envconfig:"WAYRDP_MAX_FRAME_AGE_MS" default:"150"`
	HighWaterMark      float64 `envconfig:"WAYRDP_HIGH_WATER_MARK" default:"0.8"`
	LowWaterMark       float64 `envconfig:"WAYRDP_LOW_WATER_MARK" default:"0.5"`
	DamageThreshold    float64 `envconfig:"WAYRDP_DAMAGE_THRESHOLD" default:"0.01"`
	FullUpdateThreshold float64 `envconfig:"WAYRDP_FULL_UPDATE_THRESHOLD" default:"0.75"`
	TargetFPS          int     `envconfig:"WAYRDP_TARGET_FPS" default:"30"`
	BufferPoolSize     int     `envconfig:"WAYRDP_BUFFER_POOL_SIZE" default:"8"`
}

type Clipboard struct {
	LoopDetectWindowMS  int64 `envconfig:"WAYRDP_LOOP_WINDOW_MS" default:"500"`
	PasteDedupWindowMS  int64 `envconfig:"WAYRDP_PASTE_DEDUP_MS" default:"100"`
	EchoWindowMS        int64 `envconfig:"WAYRDP_ECHO_WINDOW_MS" default:"2000"`
	DBusRateLimitMS     int64 `envconfig:"WAYRDP_DBUS_RATE_LIMIT_MS" default:"200"`
	TransferTimeoutS    int64 `envconfig:"WAYRDP_TRANSFER_TIMEOUT_S" default:"5"`
	ReadLockTimeoutS    int64 `envconfig:"WAYRDP_READ_LOCK_TIMEOUT_S" default:"10"`
	WriteLockTimeoutS   int64 `envconfig:"WAYRDP_WRITE_LOCK_TIMEOUT_S" default:"30"`
	MaxFileChunkBytes   int64 `envconfig:"WAYRDP_MAX_FILE_CHUNK_BYTES" default:"67108864"`
	DownloadDir         string `envconfig:"WAYRDP_DOWNLOAD_DIR" default:"/tmp/wayrdpd/downloads"`
	FuseDir             string `envconfig:"WAYRDP_FUSE_DIR" default:""`
}

type Credential struct {
	Backend        string `envconfig:"WAYRDP_CREDENTIAL_BACKEND" default:"auto"` // auto|tpm|keyring|portal|file
	StaticSaltOnly bool   `envconfig:"WAYRDP_STATIC_SALT_ONLY" default:"false"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
