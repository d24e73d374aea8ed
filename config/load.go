package config

import (
	"github.com/pkg/errors"
	"github.com/vaughan0/go-ini"
)

// Section is the ini section holding node configuration.
const Section = "txpaxos"

// LoadFile reads the [txpaxos] section of an ini file into a Config.
// Keys outside the section are ignored.
func LoadFile(path string) (*Config, error) {
	file, err := ini.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading config file %s", path)
	}
	values := make(map[string]string)
	for k, v := range file.Section(Section) {
		values[k] = v
	}
	return newConfigFromValues(values), nil
}
