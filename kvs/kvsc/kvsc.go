package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/urfave/cli"

	"github.com/relab/txpaxos/client"
	"github.com/relab/txpaxos/config"
)

func main() {
	app := cli.NewApp()
	app.Name = "kvsc"
	app.Usage = "Talk to a replicated key/value store."
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config-file, c",
			Value: "config.ini",
			Usage: "path for configuration file to be used",
		},
		cli.StringFlag{
			Name:  "addrs, a",
			Value: "",
			Usage: "comma separated client addresses; overrides the config file",
		},
		cli.BoolFlag{
			Name:  "gc-off",
			Usage: "turn garbage collection off",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("gc-off") {
			debug.SetGCPercent(-1)
		}
		return nil
	}
	app.Commands = []cli.Command{
		putCmd,
		getCmd,
		membersCmd,
		txnCmd,
		benchCmd,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// clientConfig reads the [txpaxos] section of the config file. A missing
// file is fine when addresses are given on the command line.
func clientConfig(c *cli.Context) (*config.Config, error) {
	conf, err := config.LoadFile(c.GlobalString("config-file"))
	if err != nil {
		if c.GlobalString("addrs") == "" {
			return nil, err
		}
		conf = config.NewConfig()
	}
	return conf, nil
}

// clientAddrs lists the client addresses of every replica.
func clientAddrs(c *cli.Context, conf *config.Config) ([]string, error) {
	if addrs := c.GlobalString("addrs"); addrs != "" {
		return strings.Split(addrs, ","), nil
	}
	nodeMap, err := conf.GetNodeMap("nodes")
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, node := range nodeMap.Nodes() {
		if node.ClientAddr != "" {
			addrs = append(addrs, node.ClientAddr)
		}
	}
	return addrs, nil
}

func dial(c *cli.Context) (*client.Client, error) {
	conf, err := clientConfig(c)
	if err != nil {
		return nil, err
	}
	addrs, err := clientAddrs(c, conf)
	if err != nil {
		return nil, err
	}
	return client.DialAddrs(conf, addrs...)
}
