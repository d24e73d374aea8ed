package event

import (
	"bytes"
	"encoding/gob"
	"io"
	"io/ioutil"
)

func Parse(filename string) ([]Event, error) {
	file, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewBuffer(file))
}

func Decode(r io.Reader) ([]Event, error) {
	dec := gob.NewDecoder(r)
	var events []Event
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

// ForNode returns the events logged by the given node. An empty node
// matches every event.
func ForNode(events []Event, node string) []Event {
	if node == "" {
		return events
	}
	var filtered []Event
	for _, event := range events {
		if event.Node == node {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

func CountType(events []Event, t Type) int {
	n := 0
	for _, event := range events {
		if event.Type == t {
			n++
		}
	}
	return n
}
