// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each package in this module declares its own Config struct with `env` tags
// and sensible envDefault values; config.Load fills it in one call.
package config
