// Package config loads the runtime configuration.
//
// Configuration is layered: built-in defaults, then each file added with
// AddLayer (YAML, JSON or TOML, chosen by extension), then environment
// variables. Every key can be overridden from the environment by upper-casing
// it, replacing dots with underscores and adding the SECPLUGIN_ prefix:
//
//	SECPLUGIN_RELAY_URL=wss://relay.example:24804
//	SECPLUGIN_SESSION_MAX_RETRIES=10
//	SECPLUGIN_DISPATCH_TEXT_TAGS=Text
//
// Loading:
//
//	loader := config.NewLoader()
//	loader.AddLayer("secplugin.yaml")
//	loader.AddLayer("secplugin.local.yaml") // overrides the first
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Durations accept Go duration strings ("15s", "1m30s"). Marshal renders the
// effective configuration as YAML with the relay token redacted, for
// printing.
//
// A minimal file:
//
//	relay:
//	  url: ws://127.0.0.1:24804
//	  pid: com.example.plugin
//	  name: Example
//	  token: change-me
//	dispatch:
//	  max_concurrent: 8
package config
