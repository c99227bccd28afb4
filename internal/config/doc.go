// Package config loads MammoChat settings from defaults, an optional TOML
// file and the environment, in that order. Values in .env files are loaded
// into the environment first.
//
// It also serves the system prompt template from a file that is reloaded
// whenever it changes on disk.
package config
