// ABOUTME: Package doc for configuration loading
// ABOUTME: Documents the YAML format, env expansion, and defaults

// Package config loads and validates the gateway's YAML configuration.
//
// Files may reference environment variables as ${VAR_NAME}; unset variables
// expand to the empty string. Duration fields accept Go duration strings
// ("30m", "12h"); schedules for the trust decay and inbox cleanup tasks are
// cron expressions. Missing optional fields pick up production defaults, so
// a minimal file only needs database.path.
package config
