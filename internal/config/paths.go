package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvCodexHome overrides the settings home directory.
	EnvCodexHome = "CODEX_HOME"

	ConfigFileName = "config.toml"
	AuthFileName   = "auth.json"
	AgentsFileName = "AGENTS.md"

	defaultHomeDirName = ".codex"
)

// Env reads environment variables. It is injected so resolution stays a pure
// function of its inputs.
type Env interface {
	Getenv(key string) string
}

// EnvFunc adapts a lookup function to Env.
type EnvFunc func(key string) string

func (f EnvFunc) Getenv(key string) string { return f(key) }

// MapEnv is a fixed environment, mostly useful in tests.
type MapEnv map[string]string

func (m MapEnv) Getenv(key string) string { return m[key] }

// OSEnv reads the process environment.
var OSEnv Env = EnvFunc(os.Getenv)

// HomeDir returns the settings home: the explicit override, then $CODEX_HOME,
// then ~/.codex.
func HomeDir(override string, env Env) string {
	if override != "" {
		return override
	}
	if env == nil {
		env = OSEnv
	}
	if dir := env.Getenv(EnvCodexHome); dir != "" {
		return dir
	}
	return filepath.Join(userHomeDir(env), defaultHomeDirName)
}

// ResolvePath resolves a file reference: absolute paths are returned as is,
// relative ones are joined to home.
func ResolvePath(home, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(home, ref)
}

// ConfigPath returns the path to config.toml inside home.
func ConfigPath(home string) string {
	return filepath.Join(home, ConfigFileName)
}

// AuthPath returns the path to auth.json inside home.
func AuthPath(home string) string {
	return filepath.Join(home, AuthFileName)
}

func userHomeDir(env Env) string {
	if home := env.Getenv("HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
