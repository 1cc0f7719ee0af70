package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Mode gates how strictly TLSConfig is validated: development allows a
// plaintext listener/dialer, production requires mutual TLS.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// Normalize defaults an empty mode to development and lowercases the rest.
func Normalize(mode Mode) Mode {
	if strings.TrimSpace(string(mode)) == "" {
		return ModeDevelopment
	}
	return Mode(strings.ToLower(strings.TrimSpace(string(mode))))
}

var (
	ErrInvalidMode        = errors.New("security: invalid mode")
	ErrTLSRequired        = errors.New("security: tls required")
	ErrMTLSRequired       = errors.New("security: mtls required")
	ErrCertFileRequired   = errors.New("security: tls cert file required")
	ErrKeyFileRequired    = errors.New("security: tls key file required")
	ErrCAFileRequired     = errors.New("security: tls ca file required")
	ErrInsecureNotAllowed = errors.New("security: insecure skip verify not allowed in production")
)

// TLSConfig describes the TCP adapter's TLS posture. Zero value means
// plaintext.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// ValidateClient checks a dialer-side TLSConfig against mode.
func ValidateClient(mode Mode, t TLSConfig) error {
	return validate(mode, t, true)
}

// ValidateServer checks a listener-side TLSConfig against mode.
func ValidateServer(mode Mode, t TLSConfig) error {
	return validate(mode, t, false)
}

// validate checks one side of a TLSConfig against mode. The two sides
// share every rule except three, gated by clientSide:
//   - production mode additionally rejects InsecureSkipVerify on the
//     client side only; a listener has no notion of skipping verification
//     of a cert it itself presents.
//   - an enabled client config requires a CAFile unless
//     InsecureSkipVerify is set; an enabled server config instead
//     requires its own CertFile/KeyFile, a CAFile being meaningless
//     until mutual auth is requested.
//   - under mutual auth, the client side must supply CertFile/KeyFile
//     (what it presents to the server); the server side must supply
//     CAFile (what it verifies client certs against).
func validate(mode Mode, t TLSConfig, clientSide bool) error {
	mode = Normalize(mode)
	switch mode {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode == ModeProduction {
		if !t.Enabled {
			return ErrTLSRequired
		}
		if !t.Mutual {
			return ErrMTLSRequired
		}
		if clientSide && t.InsecureSkipVerify {
			return ErrInsecureNotAllowed
		}
	}
	if t.Mutual && !t.Enabled {
		return ErrTLSRequired
	}
	if clientSide {
		if t.Enabled && strings.TrimSpace(t.CAFile) == "" && !t.InsecureSkipVerify {
			return ErrCAFileRequired
		}
	} else if t.Enabled {
		if strings.TrimSpace(t.CertFile) == "" {
			return ErrCertFileRequired
		}
		if strings.TrimSpace(t.KeyFile) == "" {
			return ErrKeyFileRequired
		}
	}
	if t.Mutual {
		if clientSide {
			if strings.TrimSpace(t.CertFile) == "" {
				return ErrCertFileRequired
			}
			if strings.TrimSpace(t.KeyFile) == "" {
				return ErrKeyFileRequired
			}
		} else if strings.TrimSpace(t.CAFile) == "" {
			return ErrCAFileRequired
		}
	}
	return nil
}

// ServerTLSConfig builds a *tls.Config for a listener from a validated
// TLSConfig.
func ServerTLSConfig(mode Mode, t TLSConfig) (*tls.Config, error) {
	if err := ValidateServer(mode, t); err != nil {
		return nil, err
	}
	if !t.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("security: load server keypair: %w", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if t.Mutual || Normalize(mode) == ModeProduction {
		pool, err := loadCAPool(t.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// ClientTLSConfig builds a *tls.Config for a dialer from a validated
// TLSConfig.
func ClientTLSConfig(mode Mode, t TLSConfig) (*tls.Config, error) {
	if err := ValidateClient(mode, t); err != nil {
		return nil, err
	}
	if !t.Enabled {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: t.InsecureSkipVerify}
	if t.CAFile != "" {
		pool, err := loadCAPool(t.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if t.Mutual {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("security: load client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("security: ca file %q contains no usable certificates", path)
	}
	return pool, nil
}
