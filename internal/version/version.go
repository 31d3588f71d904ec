package version

// Set at build time via -ldflags.
var (
	Version     = "0.0.0"
	VersionLong = "0.0.0-dev"
	BuildTime   = "unknown"
)

type VersionStat struct {
	Version     string `json:"version"`
	VersionLong string `json:"versionLong"`
	BuildTime   string `json:"buildTime"`
}

func GetVersion() VersionStat {
	return VersionStat{
		Version:     Version,
		VersionLong: VersionLong,
		BuildTime:   BuildTime,
	}
}
