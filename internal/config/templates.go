package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns the starter TOML for kind ("server" or "client").
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// WriteTemplate writes Template(kind) to path, refusing to clobber an
// existing file unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `listen_addr = ":7700"
transport = "tcp"
security_mode = "development"
read_timeout = "15s"
write_timeout = "15s"
handshake_window = "5s"
log_level = "info"
metrics_addr = ":7701"

[tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
insecure_skip_verify = false
`

const clientTemplate = `dial_addr = "127.0.0.1:7700"
transport = "tcp"
security_mode = "development"
auth_token = ""
log_level = "info"

[tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
insecure_skip_verify = false
`
