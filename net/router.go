package net

import (
	"strings"

	"github.com/golang/glog"
)

type HandlerFunc func(env Envelope)

// Router is a static dispatch table from channel and message kind to
// handler. It is not safe for concurrent use; all handlers are registered
// before the node starts and Dispatch is called from the node's loop.
type Router struct {
	tables map[string]map[Kind]HandlerFunc
}

func NewRouter() *Router {
	return &Router{tables: make(map[string]map[Kind]HandlerFunc)}
}

// Handle registers h for messages of kind k on channel. If a handler is
// already registered for the pair, the first one is kept.
func (r *Router) Handle(channel string, k Kind, h HandlerFunc) {
	table, found := r.tables[channel]
	if !found {
		table = make(map[Kind]HandlerFunc)
		r.tables[channel] = table
	}
	if _, found := table[k]; found {
		glog.Warningf("handler for %v on %q already registered; keeping the first", k, channel)
		return
	}
	table[k] = h
	glog.V(2).Infof("registered handler for %v on %q", k, channel)
}

// Dispatch delivers env to the first matching handler, looking at the
// envelope's channel and then its parents. It reports whether a handler
// was found.
func (r *Router) Dispatch(env Envelope) bool {
	k := kindOf(env.Msg)
	for channel := env.Channel; ; channel = parent(channel) {
		if h, found := r.tables[channel][k]; found {
			if glog.V(4) {
				glog.Infof("dispatching %v", env)
			}
			h(env)
			return true
		}
		if channel == "" {
			break
		}
	}
	if glog.V(3) {
		glog.Infof("no handler for %v, ignoring", env)
	}
	return false
}

func parent(channel string) string {
	if i := strings.LastIndex(channel, "/"); i >= 0 {
		return channel[:i]
	}
	return ""
}
