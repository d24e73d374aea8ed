package main

import (
	"log"
	"math/rand"
	"time"

	"github.com/urfave/cli"

	"github.com/relab/txpaxos/client"
)

var benchCmd = cli.Command{
	Name:  "bench",
	Usage: "measure write latency",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "report", Usage: "save run report to disk"},
		cli.IntFlag{Name: "runs", Value: 5, Usage: "number of runs"},
		cli.IntFlag{Name: "cmds", Value: 500, Usage: "number of commands per run"},
		cli.IntFlag{Name: "kl", Value: 16, Usage: "number of bytes for key"},
		cli.IntFlag{Name: "vl", Value: 16, Usage: "number of bytes for value"},
		cli.DurationFlag{Name: "prewait", Usage: "pre-start wait"},
	},
	Action: runBench,
}

type benchProperties struct {
	runs, cmds, kl, vl int
	report             bool
}

func runBench(c *cli.Context) error {
	log.Println("KVS Benchmark Client")
	props := benchProperties{
		runs:   c.Int("runs"),
		cmds:   c.Int("cmds"),
		kl:     c.Int("kl"),
		vl:     c.Int("vl"),
		report: c.Bool("report"),
	}

	var (
		outputFolder string
		err          error
	)
	if props.report {
		if outputFolder, err = generateReportFolder(); err != nil {
			return err
		}
	}
	if err = setupLogging(props.report, outputFolder); err != nil {
		return err
	}
	logBenchmarkProperties(props)

	log.Println("Dialing kvs cluster")
	kc, err := dial(c)
	if err != nil {
		return err
	}
	defer kc.Close()

	reqLatencies := make([][]time.Duration, props.runs)
	runDurations := make([]time.Duration, props.runs)

	if prewait := c.Duration("prewait"); prewait > 0 {
		log.Println("Starting in", prewait)
		time.Sleep(prewait)
	}

	log.Println("Running...")
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < props.runs; i++ {
		log.Println("Performing run", i)
		runDurations[i], reqLatencies[i], err = performRun(kc, rnd, props)
		if err != nil {
			return err
		}
	}

	log.Println("Generating report...")
	generateReport(props, runDurations, reqLatencies)
	log.Println("Done!")
	return nil
}

func performRun(kc *client.Client, rnd *rand.Rand, props benchProperties) (
	duration time.Duration, reqLatencies []time.Duration, err error) {
	reqLatencies = make([]time.Duration, props.cmds)
	key := make([]byte, props.kl)
	val := make([]byte, props.vl)

	start := time.Now()
	for i := 0; i < props.cmds; i++ {
		fillPrintable(rnd, key)
		fillPrintable(rnd, val)
		reqSent := time.Now()
		if _, err := kc.Put(string(key), val); err != nil {
			return 0, nil, err
		}
		reqLatencies[i] = time.Since(reqSent)
	}
	return time.Since(start), reqLatencies, nil
}

// fillPrintable fills p with printable ascii, never starting a reserved
// key.
func fillPrintable(rnd *rand.Rand, p []byte) {
	for i := range p {
		p[i] = byte(65 + rnd.Intn(126-65))
	}
	if len(p) > 0 && p[0] == '_' {
		p[0] = 'k'
	}
}
