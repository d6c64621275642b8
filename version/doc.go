// Package version reports the build identity of the streamkit binaries.
//
// Version and Commit are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/streamkit/version.Version=1.2.0" ./cmd/streamd
//
// Without ldflags the VCS stamp embedded by the Go toolchain is used.
package version
