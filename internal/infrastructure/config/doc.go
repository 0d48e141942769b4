// Package config loads and validates Feeder Core configuration.
//
// Configuration comes from a YAML file, then FEEDER_* environment variables
// override individual keys. Secrets (JWT secret, broker password, InfluxDB
// token) belong in the environment rather than the file.
//
// The loaded *Config is passed explicitly into each constructor; no package
// reads configuration on its own.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	engine := feeding.NewEngine(feeding.Options{Cooldown: cfg.Feeding.Cooldown()}, ...)
package config
