package config

import (
	"encoding/json"
	"os"

	"github.com/arodchenko/inkwell/internal/flagx"
	"github.com/arodchenko/inkwell/internal/timex"
)

// jsonConfig is the DTO for JSON unmarshalling. Durations accept either
// strings like "10s" or integer nanoseconds (see timex.Duration).
type jsonConfig struct {
	ServerEndpointURL    string         `json:"server_endpoint_url"`
	DatabasePath         string         `json:"database_path"`
	RequestTimeout       timex.Duration `json:"request_timeout"`
	SessionCheckInterval timex.Duration `json:"session_check_interval"`
}

// parseJSON overlays cfg with values from the JSON file named by the
// -c/-config flags. Absent file path means no JSON layer. Only fields
// present in the file override the current values.
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointURL != "" {
		cfg.ServerEndpointURL = jc.ServerEndpointURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SessionCheckInterval.Duration != 0 {
		cfg.SessionCheckInterval = jc.SessionCheckInterval.Duration
	}
}
