// Package brand provides centralized naming constants for topoctl.
//
// The identity is loaded from brand.json at compile time via go:embed so that
// packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name              string `json:"name"`
	LowerName         string `json:"lowerName"`
	Description       string `json:"description"`
	ConfigEnvPrefix   string `json:"configEnvPrefix"`
	DefaultConfigDir  string `json:"defaultConfigDir"`
	DefaultMetricsDir string `json:"defaultMetricsDir"`
	BinaryName        string `json:"binaryName"`
	ConfigFileName    string `json:"configFileName"`
	OwnerMarker       string `json:"ownerMarker"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultMetricsDir = b.DefaultMetricsDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	OwnerMarker = b.OwnerMarker
}

var (
	Name              string
	LowerName         string
	Description       string
	ConfigEnvPrefix   string
	DefaultConfigDir  string
	DefaultMetricsDir string
	BinaryName        string
	ConfigFileName    string

	// OwnerMarker is written as the link alias of every link topoctl creates.
	// Links without it are never deleted or recreated.
	OwnerMarker string

	// Version is set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// DefaultTopologyPath returns the topology file used when none is given.
// Priority: TOPOCTL_CONFIG_DIR/<file> > DefaultConfigDir/<file>
func DefaultTopologyPath() string {
	dir := DefaultConfigDir
	if d := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); d != "" {
		dir = d
	}
	return filepath.Join(dir, ConfigFileName)
}
