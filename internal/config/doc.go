// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHAT_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  shutdown_timeout: "15s"
//	auth:
//	  token_ttl: "24h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API, WebSocket, and metrics
//	  shutdown_timeout: "10s"
//
// Database:
//
//	database:
//	  path: "/var/lib/campuschat/gateway.db"
//
// Redis fanout backend (optional; in-process fanout when disabled):
//
//	redis:
//	  enabled: false
//	  url: "${CHAT_REDIS_URL}"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHAT_JWT_SECRET}"  # Required
//	  token_ttl: "24h"
//
// Completion provider:
//
//	ai:
//	  api_key: "${OPENAI_API_KEY}"
//	  base_url: ""                # optional, OpenAI-compatible providers
//	  model: "gpt-3.5-turbo"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/campuschat/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
