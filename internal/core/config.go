package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// server components.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Maximum number of concurrent socket connections the server will allow (0 for no limit).
	MaxConnections int `mapstructure:"max_connections"`
	// Peer addresses that are refused by both the HTTP and socket servers.
	IPBans []string `mapstructure:"ip_bans"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Include the file and line number of the log call.
		IncludeCaller bool `mapstructure:"include_caller"`
	} `mapstructure:"logging"`

	Web struct {
		// Port for the HTTP server (static content, /auth and /query).
		HTTPPort int `mapstructure:"http_port"`
		// Directory containing the browser client.
		StaticDir string `mapstructure:"static_dir"`
		// Paths that are redirected before static content is served.
		Redirects map[string]string `mapstructure:"redirects"`
	} `mapstructure:"web"`

	Socket struct {
		// Port on which the socket server accepts upgrade requests.
		Port int `mapstructure:"port"`
		// Largest frame payload (in bytes) that will be read from a client.
		MaxFrameSize int `mapstructure:"max_frame_size"`
		// Registration paths clients may connect on.
		Paths []string `mapstructure:"paths"`
	} `mapstructure:"socket"`

	Match struct {
		// Number of matches that may exist at once.
		MaxMatches int `mapstructure:"max_matches"`
		// Number of player slots per match.
		MaxPlayers int `mapstructure:"max_players"`
		// How often the lobby roster is pushed to joined players.
		RosterInterval time.Duration `mapstructure:"roster_interval"`
		// Grace period between a successful start request and the first tick.
		StartDelay time.Duration `mapstructure:"start_delay"`
		// Period of the simulation tick.
		TickInterval time.Duration `mapstructure:"tick_interval"`
		// How long an ended match lingers before its slot is returned.
		ReclaimAfter time.Duration `mapstructure:"reclaim_after"`
		// Matches nobody joined within this window are reclaimed. 0 disables.
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`

		Physics PhysicsConfig `mapstructure:"physics"`
	} `mapstructure:"match"`

	Auth struct {
		// Require a session cookie for HTTP content and socket upgrades.
		Enabled bool `mapstructure:"enabled"`
		// Maximum number of guest sessions.
		MaxSessions int `mapstructure:"max_sessions"`
		// How long a session cookie remains valid.
		SessionTTL time.Duration `mapstructure:"session_ttl"`

		Keys struct {
			Admin KeyConfig `mapstructure:"admin"`
			Guest KeyConfig `mapstructure:"guest"`
		} `mapstructure:"keys"`
	} `mapstructure:"auth"`

	Database struct {
		// Either sqlite or postgres.
		Engine string `mapstructure:"engine"`
		// Database file (sqlite only).
		Filename string `mapstructure:"filename"`
		// Hostname of the Postgres database instance.
		Host string `mapstructure:"host"`
		// Port on db_host on which the Postgres instance is accepting connections.
		Port int `mapstructure:"port"`
		// Name of the database in Postgres.
		Name string `mapstructure:"name"`
		// Username and password of a user with full RW privileges to ${db_name}.
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Start a pprof server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which the pprof server listens.
		PprofPort int `mapstructure:"pprof_port"`
		// Dump every decoded frame to the log at debug level.
		FrameLoggingEnabled bool `mapstructure:"frame_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

// PhysicsConfig holds the constants of the ball simulation. Positions are
// normalized to [0, 100] on both axes.
type PhysicsConfig struct {
	BallSize         float64 `mapstructure:"ball_size"`
	ServeSpeedMin    float64 `mapstructure:"serve_speed_min"`
	ServeSpeedMax    float64 `mapstructure:"serve_speed_max"`
	ServeSpread      float64 `mapstructure:"serve_spread"`
	PaddleBand       float64 `mapstructure:"paddle_band"`
	PaddleHalfExtent float64 `mapstructure:"paddle_half_extent"`
	RallyMultiplier  float64 `mapstructure:"rally_multiplier"`
}

// KeyConfig controls generation and rotation of one kind of access key.
type KeyConfig struct {
	// Number of keys generated on startup.
	Amount int `mapstructure:"amount"`
	// Length of each key.
	Length int `mapstructure:"length"`
	// Sessions a key may start before it is rotated.
	Uses int `mapstructure:"uses"`
	// Age at which a key is rotated.
	Expiration time.Duration `mapstructure:"expiration"`
}

const envVarPrefix = "PONG"

var defaults = map[string]interface{}{
	"hostname":                           "0.0.0.0",
	"max_connections":                    0,
	"ip_bans":                            []string{},
	"logging.log_level":                  "info",
	"logging.log_file_path":              "",
	"logging.include_caller":             false,
	"web.http_port":                      8080,
	"web.static_dir":                     "./public",
	"web.redirects":                      map[string]string{"/": "/menu"},
	"socket.port":                        8081,
	"socket.max_frame_size":              1 << 20,
	"socket.paths":                       []string{"/lobby", "/play"},
	"match.max_matches":                  64,
	"match.max_players":                  2,
	"match.roster_interval":              3 * time.Second,
	"match.start_delay":                  5 * time.Second,
	"match.tick_interval":                time.Millisecond,
	"match.reclaim_after":                time.Minute,
	"match.idle_timeout":                 30 * time.Minute,
	"match.physics.ball_size":            1.0,
	"match.physics.serve_speed_min":      0.05,
	"match.physics.serve_speed_max":      0.08,
	"match.physics.serve_spread":         0.01,
	"match.physics.paddle_band":          0.06,
	"match.physics.paddle_half_extent":   0.15,
	"match.physics.rally_multiplier":     1.005,
	"auth.enabled":                       true,
	"auth.max_sessions":                  16,
	"auth.session_ttl":                   24 * time.Hour,
	"auth.keys.admin.amount":             1,
	"auth.keys.admin.length":             24,
	"auth.keys.admin.uses":               5,
	"auth.keys.admin.expiration":         24 * time.Hour,
	"auth.keys.guest.amount":             4,
	"auth.keys.guest.length":             12,
	"auth.keys.guest.uses":               1,
	"auth.keys.guest.expiration":         time.Hour,
	"database.engine":                    "sqlite",
	"database.filename":                  "pong.db",
	"database.host":                      "localhost",
	"database.port":                      5432,
	"database.name":                      "pong",
	"database.username":                  "",
	"database.password":                  "",
	"database.sslmode":                   "disable",
	"debugging.pprof_enabled":            false,
	"debugging.pprof_port":               4000,
	"debugging.frame_logging_enabled":    false,
	"debugging.database_logging_enabled": false,
}

// DefaultConfig returns a Config populated with the default value of every option.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		// The defaults are static, so this can only happen if the table above is broken.
		panic(fmt.Sprintf("error unmarshaling default config: %v", err))
	}
	return config
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadConfig initializes Viper with the contents of the config file under configPath.
// Any option missing from the file falls back to its default.
func LoadConfig(configPath string) (*Config, error) {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	return config, nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// HTTPAddress returns the address on which the HTTP server listens.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Web.HTTPPort)
}

// SocketAddress returns the address on which the socket server listens.
func (c *Config) SocketAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Socket.Port)
}
