// Package config provides environment-based application configuration.
//
// All settings are read from WARDEN_* environment variables with sensible
// development defaults. LoadConfig validates the result and refuses to start
// with a missing, placeholder or short token signing secret; when the secret
// is unset outside production a random per-process one is generated.
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
