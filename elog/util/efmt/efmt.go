package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relab/txpaxos/elog/event"
)

func main() {
	var file = flag.String("file", "", "elog file to parse")
	var node = flag.String("node", "", "only show events from this node")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	events, err := event.Parse(*file)
	if err != nil {
		fmt.Println("Error parsing events:", err)
		return
	}

	for i, event := range event.ForNode(events, *node) {
		fmt.Printf("%2d: %v\n", i, event)
	}
}
