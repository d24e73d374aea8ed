package liveness

import (
	"encoding/gob"

	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

func init() {
	gob.Register(Heartbeat{})
}

// A Heartbeat is broadcast by a node while it leads. The envelope carries
// the sender's instance, which lets idle nodes notice they are behind.
type Heartbeat struct {
	ProposalID paxos.ProposalID
}

func (Heartbeat) Kind() net.Kind { return net.KindHeartbeat }
