// Package config loads the forage configuration file.
//
// A configuration file is YAML with three sections:
//
//	database:
//	  path: forage.db
//	  watch_external: true
//	tasks:
//	  workers: 1
//	  queue_size: 64
//	telemetry:
//	  logging:
//	    level: info
//	    format: console
//
// Missing sections keep their defaults. Environment variables override the
// file: FORAGE_DB sets the database path and FORAGE_LOG_LEVEL the log level.
package config
