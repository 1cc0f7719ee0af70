package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	pelletier "github.com/pelletier/go-toml/v2"

	"github.com/danmuck/correspond/internal/security"
)

// TransportKind selects which transport.Stream adapter a listener/dialer
// constructs.
type TransportKind string

const (
	TransportTCP       TransportKind = "tcp"
	TransportWebSocket TransportKind = "websocket"
)

// TLSConfig mirrors security.TLSConfig with toml tags; resolve converts it.
type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func (t TLSConfig) resolve() security.TLSConfig {
	return security.TLSConfig{
		Enabled:            t.Enabled,
		Mutual:             t.Mutual,
		CertFile:           t.CertFile,
		KeyFile:            t.KeyFile,
		CAFile:             t.CAFile,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
}

// ServerConfig configures cmd/correspondctl. Loaded with BurntSushi/toml.
type ServerConfig struct {
	ListenAddr      string        `toml:"listen_addr"`
	Transport       TransportKind `toml:"transport"`
	SecurityMode    string        `toml:"security_mode"`
	TLS             TLSConfig     `toml:"tls"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	HandshakeWindow time.Duration `toml:"handshake_window"`
	LogLevel        string        `toml:"log_level"`
	MetricsAddr     string        `toml:"metrics_addr"`
}

// DefaultServerConfig provides conservative timeout defaults (5s handshake,
// 15s read/write) for a config file that omits them.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      ":7700",
		Transport:       TransportTCP,
		SecurityMode:    string(security.ModeDevelopment),
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		HandshakeWindow: 5 * time.Second,
		LogLevel:        "info",
		MetricsAddr:     ":7701",
	}
}

// LoadServerConfig reads and validates a ServerConfig from a TOML file,
// filling in DefaultServerConfig for anything left unset.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: parse server config (%s): %w", path, err)
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// ValidateServerConfig checks field presence and defers TLS shape checking
// to security.ValidateServer.
func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("config: server listen_addr is required")
	}
	switch cfg.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		return fmt.Errorf("config: unknown transport %q", cfg.Transport)
	}
	return security.ValidateServer(security.Mode(cfg.SecurityMode), cfg.TLS.resolve())
}

// ResolvedSecurityMode resolves the configured mode, defaulting to development.
func (cfg ServerConfig) ResolvedSecurityMode() security.Mode {
	return security.Normalize(security.Mode(cfg.SecurityMode))
}

// ResolvedTLS adapts TLSConfig into the security package's type.
func (cfg ServerConfig) ResolvedTLS() security.TLSConfig {
	return cfg.TLS.resolve()
}

// ClientConfig configures cmd/correspondchat and other client binaries.
// Loaded with pelletier/go-toml/v2, deliberately distinct from the
// BurntSushi decoder used for ServerConfig.
type ClientConfig struct {
	DialAddr     string        `toml:"dial_addr"`
	Transport    TransportKind `toml:"transport"`
	SecurityMode string        `toml:"security_mode"`
	TLS          TLSConfig     `toml:"tls"`
	AuthToken    string        `toml:"auth_token"`
	LogLevel     string        `toml:"log_level"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialAddr:     "127.0.0.1:7700",
		Transport:    TransportTCP,
		SecurityMode: string(security.ModeDevelopment),
		LogLevel:     "info",
	}
}

// LoadClientConfig reads and validates a ClientConfig from a TOML file.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config: read client config (%s): %w", path, err)
	}
	if err := pelletierUnmarshal(data, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config: parse client config (%s): %w", path, err)
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func pelletierUnmarshal(data []byte, out any) error {
	return pelletier.Unmarshal(data, out)
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.DialAddr) == "" {
		return fmt.Errorf("config: client dial_addr is required")
	}
	switch cfg.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		return fmt.Errorf("config: unknown transport %q", cfg.Transport)
	}
	return security.ValidateClient(security.Mode(cfg.SecurityMode), cfg.TLS.resolve())
}

func (cfg ClientConfig) ResolvedSecurityMode() security.Mode {
	return security.Normalize(security.Mode(cfg.SecurityMode))
}

func (cfg ClientConfig) ResolvedTLS() security.TLSConfig {
	return cfg.TLS.resolve()
}
