// Package config handles loading and validating Tado Direct configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (API key, broker passwords, tokens) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//   - The local API key must be set before the service will start
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Vendor.APIBaseURL)
package config
