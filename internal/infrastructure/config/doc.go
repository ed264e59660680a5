// Package config handles loading and validating casa-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file, if present
//   - Overriding with CASA_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// The defaults describe the reference installation: a public broker reached
// over MQTT-on-WebSocket at ws://broker.hivemq.com:8000/mqtt, QoS 0, a 2s
// command reconciliation window and every history sink disabled.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerURL())
package config
