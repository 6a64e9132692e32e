// Package config loads dbscope configuration from a YAML file, an optional
// .env file and environment variables using Viper.
//
// Test binaries run with the package directory as working directory, so the
// loader walks up from there to the module root looking for the file.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("dbscope", &cfg)
//
// Environment variables override any key present in the file or the
// defaults, using the DBSCOPE_ prefix with dots replaced by underscores
// (e.g., DBSCOPE_DATABASES_DEFAULT_HOST).
package config
