// Package config holds the settings of a cdr-download run.
//
// Values are layered, later sources winning:
//   - Defaults
//   - YAML configuration file (--config)
//   - Environment variables (CDR_ prefix, optionally from a .env file)
//   - Command-line flags
//
// Example file:
//
//	url: https://pbx.example.com
//	token: secret
//	start_date: "2024-01-01"
//	end_date: "2024-01-31"
//	output: ./downloads
//	fetch_concurrency: 4
//	download_concurrency: 8
//	timeout: 50s
//	log:
//	  level: info
//	  format: json
//	cache:
//	  redis_url: redis://localhost:6379/0
//	  ttl: 5m
package config
