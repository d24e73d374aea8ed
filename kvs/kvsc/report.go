package main

import (
	"log"
	"math"
	"time"
)

func meanDuration(v ...time.Duration) time.Duration {
	if len(v) == 0 {
		return 0
	}
	var sum time.Duration
	for _, dur := range v {
		sum += dur
	}
	return sum / time.Duration(len(v))
}

// ssdDuration is the sample standard deviation.
func ssdDuration(v ...time.Duration) time.Duration {
	if len(v) < 2 {
		return 0
	}
	mean := meanDuration(v...)
	var sum float64
	for _, dur := range v {
		sum += math.Pow(float64(dur-mean), 2)
	}
	return time.Duration(math.Sqrt(sum / float64(len(v)-1)))
}

func stdErrMeanDuration(ssd time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return time.Duration(float64(ssd) / math.Sqrt(float64(n)))
}

func generateReport(props benchProperties, runDurations []time.Duration, reqLats [][]time.Duration) {
	meanRunDurations := meanDuration(runDurations...)
	ssdRunDurations := ssdDuration(runDurations...)
	stdErrOfTheMeanRunDurs := stdErrMeanDuration(ssdRunDurations, len(runDurations))

	log.Println("")
	log.Println("---------------------------------------------------")
	log.Println("Report:")
	log.Println("")
	log.Println("Number of runs:", props.runs)
	log.Println("Number of commands per run:", props.cmds)
	log.Println("Key byte size:", props.kl)
	log.Println("Value byte size:", props.vl)
	log.Println("")
	log.Println("Duration per run:", runDurations)
	log.Println("Mean duration for runs:", meanRunDurations)
	log.Println("Sample standard deviation for run durations:", ssdRunDurations)
	log.Println("Standard error of the mean duration:", stdErrOfTheMeanRunDurs)
	for i := range reqLats {
		ssd := ssdDuration(reqLats[i]...)
		log.Println("")
		log.Println("Run nr.", i)
		log.Println("Mean request latency:", meanDuration(reqLats[i]...))
		log.Println("Sample standard deviation for request latency:", ssd)
		log.Println("Standard error of the mean request latency:", stdErrMeanDuration(ssd, len(reqLats[i])))
	}
	log.Println("---------------------------------------------------")
	log.Println("")
}
