package config

import (
	"fmt"
	"os"
)

func Template() string {
	return pingpongTemplate
}

// WriteTemplate writes the sample config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(pingpongTemplate), 0o600)
}

const pingpongTemplate = `# server | client | both
mode = "both"
listen_addr = "127.0.0.1:34254"
# dial_addr = "127.0.0.1:34254"
admin_addr = "127.0.0.1:9464"

pings = 10
ping_interval = "250ms"

encrypted = true
connect_timeout = "5s"
handshake_timeout = "5s"
read_timeout = "60s"
write_timeout = "15s"
max_payload = 65536
max_connect_attempts = 5

pool_slots = 8
pool_slot_size = 65536
pool_history = 64
`
