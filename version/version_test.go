package version

import (
	"runtime/debug"
	"testing"
)

func TestResolve(t *testing.T) {
	stamped := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	tagged := &debug.BuildInfo{GoVersion: "go1.26.0", Main: debug.Module{Version: "v1.4.0"}}

	tests := []struct {
		name    string
		version string
		commit  string
		bi      *debug.BuildInfo
		want    string
	}{
		{"no build info", "dev", "", nil, "dev"},
		{"vcs stamp", "dev", "", stamped, "dev-0123456-dirty"},
		{"ldflags win", "2.0.0", "feedbee", stamped, "2.0.0-feedbee-dirty"},
		{"module version", "dev", "", tagged, "1.4.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := resolve(tt.version, tt.commit, tt.bi)
			if got := info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShortNotEmpty(t *testing.T) {
	if Short() == "" {
		t.Error("Short() is empty")
	}
}
