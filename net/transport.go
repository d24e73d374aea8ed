package net

import (
	"github.com/relab/txpaxos/grp"
)

// A Transport moves envelopes to other nodes. Delivery to the sending node
// itself must go through the same asynchronous path as remote delivery.
type Transport interface {
	Send(to grp.ID, env Envelope)
	SetNodeMap(nm *grp.NodeMap)
}

// An Endpoint is a node's handle for sending. It stamps every envelope
// with the node's id and current instance, and expands broadcasts to the
// current membership, including the node itself.
type Endpoint struct {
	id       grp.ID
	tr       Transport
	gm       grp.GroupManager
	instance func() uint64
}

func NewEndpoint(gm grp.GroupManager, tr Transport) *Endpoint {
	return &Endpoint{
		id:       gm.ID(),
		tr:       tr,
		gm:       gm,
		instance: func() uint64 { return 0 },
	}
}

// SetInstanceFunc sets where the endpoint reads the current instance from.
func (ep *Endpoint) SetInstanceFunc(f func() uint64) {
	ep.instance = f
}

func (ep *Endpoint) ID() grp.ID {
	return ep.id
}

func (ep *Endpoint) Unicast(to grp.ID, channel string, msg Message) {
	ep.tr.Send(to, ep.envelope(channel, msg))
}

func (ep *Endpoint) Broadcast(channel string, msg Message) {
	env := ep.envelope(channel, msg)
	for _, id := range ep.gm.NodeMap().IDs() {
		ep.tr.Send(id, env)
	}
}

func (ep *Endpoint) envelope(channel string, msg Message) Envelope {
	return Envelope{
		Channel:  channel,
		From:     ep.id,
		Instance: ep.instance(),
		Msg:      msg,
	}
}
