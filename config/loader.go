package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/streamkit/logger"
)

// FileSystem abstracts the file lookups the loader performs.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem implements FileSystem on the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// Resolver locates config.yml and .env files for a binary.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles holds the config and env files picked by a Resolver.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns explicit paths from opts when set, otherwise the first
// existing candidate from the standard search locations.
func (r *Resolver) ResolveFiles(binary string, opts LoaderConfig) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	if files.ConfigFile == "" {
		files.ConfigFile = r.first(configCandidates(binary))
	}
	if files.EnvFile == "" {
		files.EnvFile = r.first(envCandidates(binary))
	}
	return files
}

func (r *Resolver) first(paths []string) string {
	for _, p := range paths {
		if r.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

// configCandidates lists config.yml locations, most specific first.
func configCandidates(binary string) []string {
	var paths []string
	for _, dir := range []string{"cmd/" + binary, "config/" + binary, "config", ""} {
		paths = append(paths, underParents(dir, "config.yml")...)
	}
	return removeDuplicates(paths)
}

// envCandidates lists .env.<binary> then .env locations.
func envCandidates(binary string) []string {
	var paths []string
	for _, name := range []string{".env." + binary, ".env"} {
		for _, dir := range []string{"cmd/" + binary, "config", ""} {
			paths = append(paths, underParents(dir, name)...)
		}
	}
	return removeDuplicates(paths)
}

func underParents(dir, file string) []string {
	if dir == "" {
		return []string{"./" + file, "../" + file, "../../" + file}
	}
	return []string{
		fmt.Sprintf("./%s/%s", dir, file),
		fmt.Sprintf("../%s/%s", dir, file),
		fmt.Sprintf("../../%s/%s", dir, file),
	}
}

// LoaderConfig holds loader dependencies and file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	EnvPrefix  string
}

// LoaderOption configures LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem replaces the filesystem used to locate files.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix only binds environment variables starting with prefix_,
// stripping the prefix before mapping them onto config keys.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = strings.ToUpper(strings.TrimSuffix(prefix, "_")) }
}

// LoadConfig fills cfg from the resolved config.yml, then the .env file, then
// the process environment. Later sources win.
func LoadConfig(binary string, cfg interface{}, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: OSFileSystem{}}
	for _, opt := range opts {
		opt(&lc)
	}

	files := (&Resolver{FileSystem: lc.FileSystem}).ResolveFiles(binary, lc)
	log := logger.WithComponent("config")

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			log.Warn("failed to read config file", logger.MergeWithError(logger.Fields("file", files.ConfigFile), err))
		}
	}
	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			log.Warn("failed to load env file", logger.MergeWithError(logger.Fields("file", files.EnvFile), err))
		}
	}
	bindEnv(v, os.Environ(), lc.EnvPrefix)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: unmarshal %s: %w", binary, err)
	}
	return nil
}

// Defaulter is implemented by config structs with default values.
type Defaulter interface {
	ApplyDefaults()
}

// Validator is implemented by config structs that can check themselves.
type Validator interface {
	Validate() error
}

// Load is LoadConfig followed by ApplyDefaults and Validate when T (or *T)
// implements them.
func Load[T any](binary string, opts ...LoaderOption) (*T, error) {
	cfg := new(T)
	if err := LoadConfig(binary, cfg, opts...); err != nil {
		return nil, err
	}
	if d, ok := any(cfg).(Defaulter); ok {
		d.ApplyDefaults()
	}
	if val, ok := any(cfg).(Validator); ok {
		if err := val.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// bindEnv copies environment variables into v under every nesting variant
// of their name, so SERVER_READ_TIMEOUT reaches server.read_timeout.
func bindEnv(v *viper.Viper, environ []string, prefix string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if prefix != "" {
			if !strings.HasPrefix(key, prefix+"_") {
				continue
			}
			key = strings.TrimPrefix(key, prefix+"_")
		}
		for _, variant := range envKeyVariants(key) {
			v.Set(variant, value)
		}
	}
}

// envKeyVariants expands an env var name into candidate config keys.
//
//	SERVER_READ_TIMEOUT -> [server_read_timeout, server.read.timeout,
//	                        server.read_timeout, server_read.timeout]
func envKeyVariants(envKey string) []string {
	lower := strings.ToLower(envKey)
	parts := strings.Split(lower, "_")
	if len(parts) == 1 {
		return []string{lower}
	}

	variants := []string{lower, strings.Join(parts, ".")}
	for i := 1; i < len(parts); i++ {
		variants = append(variants,
			strings.Join(parts[:i], ".")+"."+strings.Join(parts[i:], "_"),
			strings.Join(parts[:i], "_")+"."+strings.Join(parts[i:], "."),
		)
	}
	return removeDuplicates(variants)
}

func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
