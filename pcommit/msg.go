package pcommit

import (
	"encoding/gob"

	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/net"
)

// Channel carries all Paxos Commit traffic.
const Channel = "txn"

func init() {
	gob.Register(TxMessage{})
	gob.Register(TxResult{})
}

// A Descriptor fixes who takes part in a transaction and how it is
// decided. Every node builds the transaction from the descriptor it first
// sees for a uuid, not from its own membership view.
type Descriptor struct {
	Nodes     []grp.ID
	Quorum    int
	Threshold int
}

// NewDescriptor returns the descriptor for nodes with the given threshold.
// A threshold outside [1, len(nodes)] means every node must commit.
func NewDescriptor(nodes []grp.ID, threshold int) Descriptor {
	d := Descriptor{
		Nodes:     append([]grp.ID(nil), nodes...),
		Quorum:    int(grp.QuorumSize(len(nodes))),
		Threshold: threshold,
	}
	if d.Threshold <= 0 || d.Threshold > len(d.Nodes) {
		d.Threshold = len(d.Nodes)
	}
	return d
}

func (d Descriptor) Equal(o Descriptor) bool {
	if d.Quorum != o.Quorum || d.Threshold != o.Threshold || len(d.Nodes) != len(o.Nodes) {
		return false
	}
	for i := range d.Nodes {
		if d.Nodes[i] != o.Nodes[i] {
			return false
		}
	}
	return true
}

func (d Descriptor) Contains(id grp.ID) bool {
	for _, n := range d.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// valid reports whether a descriptor received from a peer can decide a
// transaction.
func (d Descriptor) valid() bool {
	n := len(d.Nodes)
	if n == 0 || d.Threshold < 1 || d.Threshold > n || d.Quorum <= n/2 || d.Quorum > n {
		return false
	}
	seen := make(map[grp.ID]bool, n)
	for _, id := range d.Nodes {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

// TxMessage wraps a synod message for one participant of a transaction.
type TxMessage struct {
	TxUUID      string
	Desc        Descriptor
	Participant grp.ID
	Msg         net.Message
}

// TxResult tells a node the final outcome of a transaction.
type TxResult struct {
	TxUUID string
	Desc   Descriptor
	Result Result
}

func (TxMessage) Kind() net.Kind { return net.KindTxMessage }
func (TxResult) Kind() net.Kind  { return net.KindTxResult }
