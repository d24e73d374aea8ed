package paxos

import (
	"encoding/gob"

	"github.com/relab/txpaxos/net"
)

func init() {
	gob.Register(Prepare{})
	gob.Register(Promise{})
	gob.Register(PrepareNack{})
	gob.Register(Accept{})
	gob.Register(Accepted{})
	gob.Register(AcceptNack{})
}

// Phase 1a
type Prepare struct {
	ID ProposalID
}

// Phase 1b
type Promise struct {
	ID            ProposalID
	AcceptedID    ProposalID
	AcceptedValue Value
}

type PrepareNack struct {
	ID       ProposalID
	Promised ProposalID
}

// Phase 2a
type Accept struct {
	ID    ProposalID
	Value Value
}

// Phase 2b
type Accepted struct {
	ID    ProposalID
	Value Value
}

type AcceptNack struct {
	ID       ProposalID
	Promised ProposalID
}

func (Prepare) Kind() net.Kind     { return net.KindPrepare }
func (Promise) Kind() net.Kind     { return net.KindPromise }
func (PrepareNack) Kind() net.Kind { return net.KindPrepareNack }
func (Accept) Kind() net.Kind      { return net.KindAccept }
func (Accepted) Kind() net.Kind    { return net.KindAccepted }
func (AcceptNack) Kind() net.Kind  { return net.KindAcceptNack }
