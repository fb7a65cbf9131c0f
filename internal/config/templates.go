package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "client":
		return clientTemplate, nil
	case "admin":
		return adminTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

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

const clientTemplate = `host = "localhost"
port = 3000
timeout = "2s"
keep_alive = true

[log]
level = "info"
`

const adminTemplate = `host = "localhost"
port = 3000
timeout = "2s"
keep_alive = true
admin_addr = "127.0.0.1:9090"

[log]
level = "info"
file = "helpctl.log"
`
