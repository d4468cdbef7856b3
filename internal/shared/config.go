package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Playlists   PlaylistsConfig   `toml:"playlists"`
	Cache       CacheConfig       `toml:"cache"`
	Exclusions  ExclusionsConfig  `toml:"exclusions"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// AccessToken is a pre-obtained session token; the OAuth dance itself happens
// outside this tool and only a valid token is assumed here.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PlaylistsConfig identifies the privileged playlists.
//
// MasterID aggregates every track; UnsortedID receives liked-but-unplaylisted
// tracks. Both are remote-assigned identifiers supplied by the operator.
type PlaylistsConfig struct {
	MasterID   string `toml:"master_id"`
	UnsortedID string `toml:"unsorted_id"`
	LikedSince string `toml:"liked_since"` // RFC 3339 date; liked songs before this are ignored
}

// CacheConfig holds per-collection TTLs in seconds.
type CacheConfig struct {
	PlaylistsTTL      int `toml:"playlists_ttl"`
	TracksTTL         int `toml:"tracks_ttl"`
	PlaylistTracksTTL int `toml:"playlist_tracks_ttl"`
}

// ExclusionsConfig filters playlists out of every sync at the remote client boundary.
type ExclusionsConfig struct {
	PlaylistNames       []string `toml:"playlist_names"`
	PlaylistIDs         []string `toml:"playlist_ids"`
	NameKeywords        []string `toml:"name_keywords"`
	DescriptionKeywords []string `toml:"description_keywords"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration back to the given path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Update stores a freshly obtained OAuth token in the credentials.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrMissingCredentials)
	}
	s.AccessToken = token.AccessToken
	return nil
}

// PlaylistsTTLDuration returns the playlist collection TTL as a [time.Duration].
func (c *CacheConfig) PlaylistsTTLDuration() time.Duration {
	return ttlOrDefault(c.PlaylistsTTL, time.Hour)
}

// TracksTTLDuration returns the track collection TTL as a [time.Duration].
func (c *CacheConfig) TracksTTLDuration() time.Duration {
	return ttlOrDefault(c.TracksTTL, 24*time.Hour)
}

// PlaylistTracksTTLDuration returns the membership TTL as a [time.Duration].
func (c *CacheConfig) PlaylistTracksTTLDuration() time.Duration {
	return ttlOrDefault(c.PlaylistTracksTTL, time.Hour)
}

func ttlOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// LikedSinceDate parses the configured liked-songs floor date.
//
// A zero time is returned when unset, which disables the floor.
func (c *PlaylistsConfig) LikedSinceDate() (time.Time, error) {
	if c.LikedSince == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", c.LikedSince)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: liked_since must be YYYY-MM-DD: %v", ErrInvalidConfig, err)
	}
	return t, nil
}
