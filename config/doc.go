// Package config loads service settings from <root>/config (YAML), an
// optional <root>/.env file and TDZ_* environment variables, in that order
// of increasing precedence. A Watcher reloads the file when it changes.
package config
