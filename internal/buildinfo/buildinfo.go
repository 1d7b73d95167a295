package buildinfo

import "runtime"

// Ces variables sont typiquement injectées à la compilation via -ldflags.
// Exemple :
//
//	-X github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo.Version=v0.1.0
//	-X github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo.Commit=abcdef
//	-X github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo.Date=2026-10-17
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
}

// UserAgent est envoyé au service distant avec chaque requête.
func UserAgent() string {
	return "prediction-runner/" + Version
}
