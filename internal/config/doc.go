// Package config provides settings management for the Patchwork worker.
//
// Settings are read once from a YAML file and may be overridden by environment
// variables using the env package. They are immutable after Load returns.
//
// Example usage:
//
//	settings, err := config.Load("patchwork.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("subscriber kind: %s\n", settings.Subscriber.Name)
package config
