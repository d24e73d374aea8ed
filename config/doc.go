/*

Package config has three parts:

config.go: A really simple key-value store for configs. Stores all
configs as string values internally, but has getters like GetInt,
GetDuration, etc.

defaults.go: All default values are set here, together with their
documentation.

load.go: Reads the [txpaxos] section of an ini file.

*/
package config
