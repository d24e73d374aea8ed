package liveness

import (
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

// Node is what the Heartbeater needs from the node it keeps alive. It is
// implemented by multipaxos.Sequencer.
type Node interface {
	ID() grp.ID
	Instance() uint64
	Leader() grp.ID
	ChangeLeader(id grp.ID)
	IsLeader() bool
	ProposalID() paxos.ProposalID
	Prepare()
	StepDown()
	ObserveProposal(id paxos.ProposalID)
	NextInstance(setTo uint64)
	BehindInSequence(observed uint64)
	Broadcast(msg net.Message)
}
