// Package config handles loading and validating cloud bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Cloud token and secret should be set via environment variables
//     (CLOUDBRIDGE_CLOUD_TOKEN, CLOUDBRIDGE_CLOUD_SECRET), optionally from a .env file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Polling.Interval)
package config
