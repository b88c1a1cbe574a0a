// Package config loads the ChainPilot JSON configuration file, fills in
// defaults relative to the file's directory and resolves secrets from the
// environment variables the file names.
package config
