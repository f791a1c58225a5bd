package config

import (
	"encoding/json"
	"os"

	"github.com/driftletter/driftletter/internal/flagx"
	"github.com/driftletter/driftletter/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, its fields are copied into
// the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP  string         `json:"endpoint_addr_http"`
	DatabaseDSN       string         `json:"database_dsn"`
	MaxTitleBytes     int            `json:"max_title_bytes"`
	MaxContentBytes   int            `json:"max_content_bytes"`
	MaxUserIDBytes    int            `json:"max_user_id_bytes"`
	ReconcileInterval timex.Duration `json:"reconcile_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.MaxTitleBytes = c.MaxTitleBytes
	config.MaxContentBytes = c.MaxContentBytes
	config.MaxUserIDBytes = c.MaxUserIDBytes
	config.ReconcileInterval = c.ReconcileInterval.Duration
}
