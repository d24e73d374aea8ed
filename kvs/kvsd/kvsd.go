package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/golang/glog"
	"github.com/pkg/profile"

	"github.com/relab/txpaxos"
	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/grp"
)

var (
	id             = flag.String("id", "", "id for node (must match entry in config file)")
	configFile     = flag.String("config-file", "config.ini", "path for configuration file to be used")
	allCores       = flag.Bool("all-cores", false, "use all available logical CPUs")
	gcOff          = flag.Bool("gc-off", false, "turn garbage collection off")
	writeStateHash = flag.Bool("write-state-hash", true, "write hash of state to disk on exit")
	cpuprofile     = flag.Bool("cpuprofile", false, "write cpu profile to disk")
	memprofile     = flag.Bool("memprofile", false, "write memory profile to disk")
	blockprofile   = flag.Bool("blockprofile", false, "wirte contention profile to disk")
	showHelp       = flag.Bool("help", false, "show this help message and exit")
)

func Usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	parseFlags()

	if *gcOff {
		debug.SetGCPercent(-1)
	}

	if profilingEnabled() {
		defer profile.Start(profilingOptions()...).Stop()
	}

	defer glog.Flush()
	glog.V(1).Infoln("replica id is", *id)

	if *allCores {
		cpus := runtime.NumCPU()
		runtime.GOMAXPROCS(cpus)
		glog.V(1).Infoln("#cpus:", cpus)
	} else {
		runtime.GOMAXPROCS(1)
		glog.V(1).Info("#cpus: single")
	}

	start()
}

func parseFlags() {
	flag.Usage = Usage
	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "-id is required")
		flag.Usage()
		os.Exit(2)
	}
}

func start() {
	// Log any runtime panic to file
	defer func() {
		if r := recover(); r != nil {
			glog.Fatalln("Runtime panic:", r)
		}
	}()

	conf, err := config.LoadFile(*configFile)
	if err != nil {
		glog.Fatalln("could not parse config file:", err)
	}

	replica := txpaxos.NewReplica(grp.ID(*id), conf)
	if err := replica.Init(); err != nil {
		glog.Fatalln("initializing replica:", err)
	}
	if err := replica.Start(); err != nil {
		glog.Fatal(err)
	}

	defer func() {
		if *writeStateHash {
			if err := writeHash(replica); err != nil {
				glog.Warning(err)
			}
		}
		if err := replica.Stop(); err != nil {
			glog.Errorln("error when stopping replica:", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	for signal := range signalChan {
		if exit := handleSignal(signal); exit {
			return
		}
	}
}

func handleSignal(signal os.Signal) bool {
	glog.V(1).Infoln("received signal,", signal)
	switch signal {
	case os.Interrupt, syscall.SIGTERM:
		return true
	default:
		glog.Warningln("unhandled signal", signal)
		return false
	}
}
