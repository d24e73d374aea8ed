package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/grp"
)

// The Config holds a map of config values by their keys/names. They
// are all stored as strings and parsed on read time only. The built in
// types are:
//
// `string`: (GetString) Returns the config value as a string. This
// can never fail.
//
// `int`: (GetInt) Uses strconv.Atoi to parse the value and return an
// int.
//
// `duration`: (GetDuration) Uses time.ParseDuration to parse the
// value and return a duration. That means that you should set
// duration configs like "xxx us/ms/s/h/etc."
//
// `bool`: (GetBool) Uses strconv.ParseBool to read config vars like
// true/t/1 or false/f/0
//
// `nodemap`: (GetNodeMap) Returns a grp.NodeMap parsed from a format
// like (uid:hostname:paxosPort:clientPort, ...)
//
// When a value COULD NOT BE PARSED at runtime, Config emits a warning
// (with glog) and returns the given DEFAULT VALUE.
type Config struct {
	values map[string]string
}

// Returns a new empty Config.
func NewConfig() *Config {
	return &Config{
		values: make(map[string]string),
	}
}

func newConfigFromValues(values map[string]string) *Config {
	return &Config{
		values: values,
	}
}

// Sets a config to a value. All values can only be set as strings.
func (c *Config) Set(key, value string) {
	c.values[key] = value
}

// Gets a value as a string. This one will never emit an warning
// because all values per definition is available as strings.
func (c *Config) GetString(key, defaultVal string) string {
	cfgValue, found := c.values[key]
	if !found {
		return defaultVal
	}
	return cfgValue
}

// Returns the config as an int. If the config is not set, the
// supplied default value is returned. If the config is not possible
// to parse as an int (strconv.Atoi), the default value is returned
// and an warning message is written to glog.
func (c *Config) GetInt(key string, defaultVal int) int {
	cfgValue, found := c.values[key]
	if !found {
		return defaultVal
	}

	i, err := strconv.Atoi(cfgValue)
	if err != nil {
		glog.Warningf("Could not parse config %q: %q as int (see strconv.Atoi). Using default value: %d.",
			key, cfgValue, defaultVal)
		return defaultVal
	}

	return i
}

// Returns the config as an time.Duration. If the config is not set,
// the supplied default value is returned. If the config is not
// possible to parse (time.ParseDuration), the default value is
// returned and an warning message is written to glog.
func (c *Config) GetDuration(key string, defaultVal time.Duration) time.Duration {
	cfgValue, found := c.values[key]
	if !found {
		return defaultVal
	}

	dur, err := time.ParseDuration(cfgValue)
	if err != nil {
		glog.Warningf("Could not parse config %q: %q as duration (see time.ParseDuration). Using default value: %q.",
			key, cfgValue, defaultVal.String())
		return defaultVal
	}

	return dur
}

// Returns the config as an bool. If the config is not set, the
// supplied default value is returned. If the config is not possible
// to parse (strconv.ParseBool), the default value is returned and an
// warning message is written to glog.
func (c *Config) GetBool(key string, defaultVal bool) bool {
	cfgValue, found := c.values[key]
	if !found {
		return defaultVal
	}

	b, err := strconv.ParseBool(cfgValue)
	if err != nil {
		glog.Warningf("Could not parse config %q: %q as boolean (see strconv.ParseBool). Using default value: %t.",
			key, cfgValue, defaultVal)
		return defaultVal
	}

	return b
}

// Parses a node map: (uid:hostname:paxosPort:clientPort, ...) into
// a grp.NodeMap. The client port may be left empty.
//
// This one takes no default values. The node map in the config
// `nodes` is always required anyway, and the function returns an
// descriptive error instead.
func (c *Config) GetNodeMap(key string) (*grp.NodeMap, error) {
	const format = "Should be in the format uid:hostname:paxos-port:client-port, ..."

	nodesCfg := c.GetString(key, "")
	if nodesCfg == "" {
		return nil, errors.New("Config `" + key + "` need to be set! " + format)
	}

	var nodes []grp.Node
	for _, node := range strings.Split(nodesCfg, ",") {
		node = strings.TrimSpace(node)
		parts := strings.Split(node, ":")
		if len(parts) != 4 || parts[0] == "" {
			return nil, errors.New("Could not understand `" + node + "` in `" + key + "` config. " + format)
		}
		nodes = append(nodes, grp.NewNode(grp.ID(parts[0]), parts[1], parts[2], parts[3]))
	}

	return grp.NewNodeMapFromList(nodes)
}

// Clones the config with all the values.
func (c *Config) CloneToKeyValueMap() map[string]string {
	clonedMap := make(map[string]string, len(c.values))
	for k, v := range c.values {
		clonedMap[k] = v
	}
	return clonedMap
}
