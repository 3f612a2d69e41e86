// Package config loads ranger configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// RANGER_<SECTION>_<KEY> environment variables, then any command-line flags
// bound to the loader's viper instance. The merged result is validated as a
// whole and every problem is reported at once.
//
// Watch reloads the file on change (through fsnotify); the CLI uses it to
// apply a new logging.level without a restart.
package config
