package version

import (
	"encoding/json"
	"log"
	"os"
	"runtime"
)

// Version is stamped at build time with -ldflags "-X .../internal/version.Version=x.y.z".
var Version = "0.0.0"

type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

// Load prefers a version.json next to the binary over the stamped value.
func Load() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	data, err := os.ReadFile("version.json")
	if err != nil {
		return info
	}
	var file struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		log.Printf("warning: could not parse version.json: %v", err)
		return info
	}
	if file.Version != "" {
		info.Version = file.Version
	}
	return info
}
