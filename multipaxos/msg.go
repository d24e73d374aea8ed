package multipaxos

import (
	"encoding/gob"

	"github.com/relab/txpaxos/net"
)

func init() {
	gob.Register(ProposalRequest{})
	gob.Register(ProposalAck{})
}

// ProposalRequest forwards a proposal from an advocate to the leader. The
// envelope carries the instance it is meant for.
type ProposalRequest struct {
	RequestID string
	Value     []byte
}

// ProposalAck confirms that the leader received a ProposalRequest.
type ProposalAck struct {
	RequestID string
}

func (ProposalRequest) Kind() net.Kind { return net.KindProposalRequest }
func (ProposalAck) Kind() net.Kind     { return net.KindProposalAck }
