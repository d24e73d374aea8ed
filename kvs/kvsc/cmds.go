package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/relab/txpaxos/client"
	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/kvs"
)

var tokenFlag = cli.StringFlag{
	Name:  "token, t",
	Value: "",
	Usage: "admin token, needed to write reserved keys",
}

// put key value

var putCmd = cli.Command{
	Name:      "put",
	Aliases:   []string{"p"},
	Usage:     "write a value",
	ArgsUsage: "key value",
	Flags:     []cli.Flag{tokenFlag},
	Action:    put,
}

func put(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowCommandHelp(c, "put")
	}
	kc, err := dial(c)
	if err != nil {
		return err
	}
	defer kc.Close()
	instance, err := kc.PutWithToken(c.Args().Get(0), []byte(c.Args().Get(1)), c.String("token"))
	if err != nil {
		return err
	}
	fmt.Println("written in instance", instance)
	return nil
}

// get key

var getCmd = cli.Command{
	Name:      "get",
	Aliases:   []string{"g"},
	Usage:     "read a value from one replica",
	ArgsUsage: "key",
	Action:    get,
}

func get(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowCommandHelp(c, "get")
	}
	kc, err := dial(c)
	if err != nil {
		return err
	}
	defer kc.Close()
	v, found, err := kc.Get(c.Args().First())
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("not found")
		return nil
	}
	fmt.Printf("%s\n", v)
	return nil
}

// members [uid:host:paxosPort:clientPort,...]

var membersCmd = cli.Command{
	Name:      "members",
	Aliases:   []string{"m"},
	Usage:     "show the replicated membership, or replace it if a node list is given",
	ArgsUsage: "[uid:host:paxosPort:clientPort,...]",
	Flags:     []cli.Flag{tokenFlag},
	Action:    members,
}

func members(c *cli.Context) error {
	kc, err := dial(c)
	if err != nil {
		return err
	}
	defer kc.Close()

	if c.NArg() == 0 {
		data, found, err := kc.Get(kvs.ConfigKey)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("membership has not been replicated; nodes are read from each replica's config")
			return nil
		}
		m, err := grp.DecodeMembership(data)
		if err != nil {
			return err
		}
		for _, node := range m.Nodes {
			fmt.Println(node)
		}
		return nil
	}

	nodes := config.NewConfig()
	nodes.Set("nodes", strings.Join(c.Args(), ","))
	nm, err := nodes.GetNodeMap("nodes")
	if err != nil {
		return err
	}
	data, err := nm.Membership().Encode()
	if err != nil {
		return err
	}
	instance, err := kc.PutWithToken(kvs.ConfigKey, data, c.String("token"))
	if err != nil {
		return err
	}
	fmt.Printf("membership of %d nodes written in instance %d\n", nm.Len(), instance)
	return nil
}

// txn [--abort addr,...]

var txnCmd = cli.Command{
	Name:  "txn",
	Usage: "run a transaction with every replica as a participant",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "id",
			Value: "",
			Usage: "transaction id (a new uuid if empty)",
		},
		cli.StringSliceFlag{
			Name:  "abort",
			Usage: "client address of a replica that votes abort",
		},
	},
	Action: txn,
}

func txn(c *cli.Context) error {
	conf, err := clientConfig(c)
	if err != nil {
		return err
	}
	addrs, err := clientAddrs(c, conf)
	if err != nil {
		return err
	}
	txUUID := c.String("id")
	if txUUID == "" {
		txUUID = uuid.NewString()
	}
	aborts := make(map[string]bool)
	for _, addr := range c.StringSlice("abort") {
		aborts[addr] = true
	}

	fmt.Println("transaction", txUUID)
	errs := make([]error, len(addrs))
	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			kc, err := client.DialAddrs(conf, addr)
			if err != nil {
				errs[i] = err
				return
			}
			defer kc.Close()
			errs[i] = kc.Vote(txUUID, !aborts[addr])
		}(i, addr)
	}
	wg.Wait()

	for i, addr := range addrs {
		switch errs[i] {
		case nil:
			fmt.Println(addr, "committed")
		case client.ErrAborted:
			fmt.Println(addr, "aborted")
		default:
			fmt.Println(addr, "failed:", errs[i])
		}
	}
	return nil
}
