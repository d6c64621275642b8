// Package config loads streamkit binary configuration.
//
// Values come from a config.yml found next to the binary (cmd/<name>/,
// config/ or the working directory), an optional .env file loaded with
// godotenv, and the process environment, in increasing priority. Environment
// variables map onto nested keys by underscore, so SERVER_PORT sets
// server.port.
//
//	cfg, err := config.Load[streamd.Config]("streamd", config.WithEnvPrefix("STREAMKIT"))
package config
