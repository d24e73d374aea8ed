package paxos

import (
	"bytes"
	"fmt"

	"github.com/relab/txpaxos/grp"
)

// A ProposalID is unique among all proposers since it is based on the
// proposer's id as well as a proposal number. The zero value orders before
// every proposal a node can make.
type ProposalID struct {
	Number uint64
	UID    grp.ID
}

// Compare two ProposalIDs. Returns -1 if p is less than o, 0 if they are
// equal, or 1 if p is greater than o.
func (p ProposalID) Compare(o ProposalID) int {
	switch {
	case p.Number < o.Number:
		return -1
	case p.Number > o.Number:
		return 1
	}
	return p.UID.CompareTo(o.UID)
}

func (p ProposalID) Less(o ProposalID) bool {
	return p.Compare(o) < 0
}

func (p ProposalID) IsZero() bool {
	return p.Number == 0 && p.UID == grp.UndefinedID
}

func (p ProposalID) String() string {
	return fmt.Sprintf("%d.%v", p.Number, p.UID)
}

// A Value is an opaque proposal value. Nil means no value.
type Value []byte

func (v Value) Equal(o Value) bool {
	return bytes.Equal(v, o)
}
