package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/tokenkeeper/errors"
	"github.com/kbukum/tokenkeeper/logger"
)

const (
	// ServiceName names the default config file and home directory.
	ServiceName = "tokenkeeper"
	// EnvPrefix marks the environment variables read as configuration.
	EnvPrefix = "TOKENKEEPER"
)

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
	UserHomeDir() (string, error)
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

func (rfs *RealFileSystem) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// Resolver handles finding and resolving config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns explicit paths if provided, otherwise searches for them.
func (r *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = r.first(r.configSearchPaths(serviceName))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = r.first(r.envSearchPaths(serviceName))
	}
	return resolved
}

func (r *Resolver) configSearchPaths(serviceName string) []string {
	paths := []string{
		fmt.Sprintf("./%s.yml", serviceName),
		fmt.Sprintf("./%s.yaml", serviceName),
		fmt.Sprintf("./config/%s.yml", serviceName),
		"./config.yml",
	}
	if home, err := r.FileSystem.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, "."+serviceName, "config.yml"))
	}
	return paths
}

func (r *Resolver) envSearchPaths(serviceName string) []string {
	paths := []string{".env." + serviceName, ".env", "./config/.env"}
	if home, err := r.FileSystem.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, "."+serviceName, ".env"))
	}
	return paths
}

func (r *Resolver) first(paths []string) string {
	for _, path := range paths {
		if r.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
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

// Load reads, defaults and validates the application configuration.
func Load(opts ...LoaderOption) (*Config, error) {
	var cfg Config
	if err := LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig finds the config and .env files for serviceName, binds the
// environment and unmarshals the result into cfg without defaulting or
// validating it.
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)

	// An explicitly named file that is missing is an error; a searched one is optional.
	if lc.ConfigFile != "" && !lc.FileSystem.Exists(lc.ConfigFile) {
		return errors.Configuration("config", "config file not found: "+lc.ConfigFile)
	}

	return loadFromResolvedFiles(cfg, files, lc.FileSystem)
}

// loadFromResolvedFiles loads configuration from specific files.
func loadFromResolvedFiles(cfg interface{}, files ResolvedFiles, fs FileSystem) error {
	v := viper.New()

	// 1. YAML file (base configuration)
	if files.ConfigFile != "" && fs.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Configuration("config", fmt.Sprintf("cannot read config file %s", files.ConfigFile)).WithCause(err)
		}
	}

	// 2. Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	autoBindEnvVars(v)

	// 3. .env file
	if files.EnvFile != "" && fs.Exists(files.EnvFile) {
		if err := fs.LoadEnv(files.EnvFile); err != nil {
			logger.Warn("failed to load .env file", logger.Fields("path", files.EnvFile, logger.FieldError, err.Error()))
		} else {
			// Re-bind to pick up the new variables
			autoBindEnvVars(v)
		}
	}

	// 4. Unmarshal into config struct
	if err := v.Unmarshal(cfg); err != nil {
		return errors.Configuration("config", "cannot decode configuration").WithCause(err)
	}
	return nil
}

// autoBindEnvVars binds every TOKENKEEPER_* variable to Viper under all
// the nested key shapes its name could stand for.
func autoBindEnvVars(v *viper.Viper) {
	prefix := EnvPrefix + "_"
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		for _, variant := range generateEnvKeyVariants(strings.TrimPrefix(key, prefix)) {
			v.Set(variant, value)
		}
	}
}

// maxNestedParts bounds the separator combinations tried per variable.
const maxNestedParts = 8

// generateEnvKeyVariants creates every key the variable could stand for by
// reading each underscore as either a nesting dot or part of a snake_case name.
// Examples:
//
//	STORE_DIR -> [store_dir, store.dir]
//	LIFECYCLE_REFRESH_RETRY_MAX_ATTEMPTS -> [..., lifecycle.refresh_retry.max_attempts, ...]
func generateEnvKeyVariants(envKey string) []string {
	lowerKey := strings.ToLower(envKey)
	parts := strings.Split(lowerKey, "_")

	if len(parts) <= 1 {
		return []string{lowerKey}
	}
	if len(parts) > maxNestedParts {
		return []string{lowerKey, strings.ReplaceAll(lowerKey, "_", ".")}
	}

	seps := len(parts) - 1
	variants := make([]string, 0, 1<<seps)
	for mask := 0; mask < 1<<seps; mask++ {
		var b strings.Builder
		b.WriteString(parts[0])
		for i := 1; i < len(parts); i++ {
			if mask&(1<<(i-1)) != 0 {
				b.WriteByte('.')
			} else {
				b.WriteByte('_')
			}
			b.WriteString(parts[i])
		}
		variants = append(variants, b.String())
	}
	return removeDuplicates(variants)
}

// removeDuplicates removes duplicate strings from a slice.
func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))

	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}
