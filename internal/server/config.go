package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/balootlabs/baloot/internal/game"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Game   GameSettings   `hcl:"game,block"`
	Bots   BotSettings    `hcl:"bots,block"`
	Rooms  []RoomBlock    `hcl:"room,block"`
}

// ServerSettings contains process-level configuration.
type ServerSettings struct {
	Env             string   `hcl:"env,optional"`
	Address         string   `hcl:"address,optional"`
	Port            int      `hcl:"port,optional"`
	LogLevel        string   `hcl:"log_level,optional"`
	CORSOrigins     []string `hcl:"cors_origins,optional"`
	JWTSecret       string   `hcl:"jwt_secret,optional"`
	KVURL           string   `hcl:"kv_url,optional"`
	MaxRooms        int      `hcl:"max_rooms,optional"`
	RoomIdleMinutes int      `hcl:"room_idle_minutes,optional"`
}

// GameSettings contains the table defaults applied to new rooms.
// StrictMode is a pointer so a file can turn it off: the game default is
// on, and a plain bool cannot express "absent".
type GameSettings struct {
	TurnSeconds      int   `hcl:"turn_seconds,optional"`
	TargetScore      int   `hcl:"target_score,optional"`
	StrictMode       *bool `hcl:"strict_mode,optional"`
	DisconnectGraceS int   `hcl:"disconnect_grace_seconds,optional"`
}

// BotSettings configures the bot orchestrator.
type BotSettings struct {
	Difficulty string `hcl:"difficulty,optional"`
	DeadlineMs int    `hcl:"deadline_ms,optional"`
}

// RoomBlock declares a standing table created at startup. The label is
// its join code.
type RoomBlock struct {
	Name        string `hcl:"name,label"`
	Bots        int    `hcl:"bots,optional"`
	Difficulty  string `hcl:"difficulty,optional"`
	TargetScore int    `hcl:"target_score,optional"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Env:             "development",
			Address:         "localhost",
			Port:            8080,
			LogLevel:        "info",
			MaxRooms:        500,
			RoomIdleMinutes: 30,
		},
		Game: GameSettings{
			TurnSeconds:      30,
			TargetScore:      152,
			DisconnectGraceS: 60,
		},
		Bots: BotSettings{
			Difficulty: "medium",
			DeadlineMs: 3000,
		},
	}
}

// LoadConfig reads an HCL config file, falling back to defaults when the
// file does not exist. Environment variables override either source.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}
		var fromFile Config
		diags = gohcl.DecodeBody(file.Body, nil, &fromFile)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
		merge(config, &fromFile)
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func merge(dst, src *Config) {
	if src.Server.Env != "" {
		dst.Server.Env = src.Server.Env
	}
	if src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.LogLevel != "" {
		dst.Server.LogLevel = src.Server.LogLevel
	}
	if len(src.Server.CORSOrigins) > 0 {
		dst.Server.CORSOrigins = src.Server.CORSOrigins
	}
	if src.Server.JWTSecret != "" {
		dst.Server.JWTSecret = src.Server.JWTSecret
	}
	if src.Server.KVURL != "" {
		dst.Server.KVURL = src.Server.KVURL
	}
	if src.Server.MaxRooms != 0 {
		dst.Server.MaxRooms = src.Server.MaxRooms
	}
	if src.Server.RoomIdleMinutes != 0 {
		dst.Server.RoomIdleMinutes = src.Server.RoomIdleMinutes
	}
	if len(src.Rooms) > 0 {
		dst.Rooms = src.Rooms
	}
	if src.Game.TurnSeconds != 0 {
		dst.Game.TurnSeconds = src.Game.TurnSeconds
	}
	if src.Game.TargetScore != 0 {
		dst.Game.TargetScore = src.Game.TargetScore
	}
	if src.Game.StrictMode != nil {
		dst.Game.StrictMode = src.Game.StrictMode
	}
	if src.Game.DisconnectGraceS != 0 {
		dst.Game.DisconnectGraceS = src.Game.DisconnectGraceS
	}
	if src.Bots.Difficulty != "" {
		dst.Bots.Difficulty = src.Bots.Difficulty
	}
	if src.Bots.DeadlineMs != 0 {
		dst.Bots.DeadlineMs = src.Bots.DeadlineMs
	}
}

func applyEnv(c *Config) {
	if v := os.Getenv("BALOOT_ENV"); v != "" {
		c.Server.Env = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("KV_URL"); v != "" {
		c.Server.KVURL = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if n, ok := envInt("MAX_ROOMS"); ok {
		c.Server.MaxRooms = n
	}
	if n, ok := envInt("ROOM_IDLE_EVICT_MIN"); ok {
		c.Server.RoomIdleMinutes = n
	}
	if n, ok := envInt("TURN_DURATION_S"); ok {
		c.Game.TurnSeconds = n
	}
	if n, ok := envInt("DISCONNECT_GRACE_S"); ok {
		c.Game.DisconnectGraceS = n
	}
	if n, ok := envInt("BOT_DEADLINE_MS"); ok {
		c.Bots.DeadlineMs = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for values the server cannot run
// with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxRooms < 1 {
		return fmt.Errorf("max_rooms must be positive")
	}
	if c.Server.RoomIdleMinutes < 1 {
		return fmt.Errorf("room_idle_minutes must be positive")
	}
	if c.Game.TurnSeconds < 1 {
		return fmt.Errorf("turn_seconds must be positive")
	}
	for _, r := range c.Rooms {
		if r.Name == "" {
			return fmt.Errorf("room blocks need a name label")
		}
		if r.Bots < 0 || r.Bots > 4 {
			return fmt.Errorf("room %q: bots must be 0-4", r.Name)
		}
	}
	if c.Game.TargetScore < 1 {
		return fmt.Errorf("target_score must be positive")
	}
	switch c.Bots.Difficulty {
	case "easy", "medium", "hard":
	default:
		return fmt.Errorf("invalid bot difficulty %q", c.Bots.Difficulty)
	}
	return nil
}

// ListenAddress returns the host:port the server binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoomSettings converts the game block into per-room settings.
func (c *Config) RoomSettings() game.Settings {
	s := game.DefaultSettings()
	s.TurnDuration = time.Duration(c.Game.TurnSeconds) * time.Second
	s.TargetScore = c.Game.TargetScore
	if c.Game.StrictMode != nil {
		s.StrictMode = *c.Game.StrictMode
	}
	s.BotDifficulty = c.Bots.Difficulty
	return s
}

// Grace returns the disconnect grace window.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Game.DisconnectGraceS) * time.Second
}

// IdleTimeout returns how long a room may sit without input before
// eviction.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Server.RoomIdleMinutes) * time.Minute
}

// Production reports whether the process runs with production logging.
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}
