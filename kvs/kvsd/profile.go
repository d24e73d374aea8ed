package main

import (
	"github.com/pkg/profile"
)

func profilingEnabled() bool {
	return *cpuprofile || *memprofile || *blockprofile
}

// profilingOptions picks one profile; the cpu profile wins if several are
// asked for.
func profilingOptions() []func(*profile.Profile) {
	opts := []func(*profile.Profile){
		profile.ProfilePath("profile"),
		profile.NoShutdownHook,
	}
	switch {
	case *cpuprofile:
		opts = append(opts, profile.CPUProfile)
	case *memprofile:
		opts = append(opts, profile.MemProfile)
	case *blockprofile:
		opts = append(opts, profile.BlockProfile)
	}
	return opts
}
