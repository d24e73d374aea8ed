package grp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
)

var (
	ErrNodeAlreadyPresent = errors.New("node with given id is already present in NodeMap")
	ErrOldNodeNotFound    = errors.New("node with given id not already present in Nodemap")
	ErrEmptyID            = errors.New("node id must be non-empty")
)

// ID is the unique identifier of a node. IDs are totally ordered by string
// comparison, which is what breaks ties between equal proposal numbers.
type ID string

// UndefinedID is used where no node is known, e.g. no current leader.
const UndefinedID = ID("")

func (id ID) CompareTo(otherID ID) int {
	switch {
	case id > otherID:
		return 1
	case id < otherID:
		return -1
	}
	return 0
}

func (id ID) Defined() bool {
	return id != UndefinedID
}

func (id ID) String() string {
	if id == UndefinedID {
		return "<none>"
	}
	return string(id)
}

type Node struct {
	UID        ID     `json:"uid"`
	Address    string `json:"address"`
	ClientAddr string `json:"client_address,omitempty"`
}

func NewNode(uid ID, host, paxosPort, clientPort string) Node {
	n := Node{UID: uid, Address: net.JoinHostPort(host, paxosPort)}
	if clientPort != "" {
		n.ClientAddr = net.JoinHostPort(host, clientPort)
	}
	return n
}

func (n Node) PaxosAddr() string {
	return n.Address
}

func (n Node) String() string {
	return fmt.Sprintf("node %v with address: %v/%v", n.UID, n.Address, n.ClientAddr)
}

func (n Node) IsSame(m Node) bool {
	return m.UID == n.UID && m.Address == n.Address
}

// A NodeMap is an immutable-by-convention view of the current membership.
// Mutating methods are only called by the owning GroupManager.
type NodeMap struct {
	nodes       map[ID]Node
	quorum      uint
	idsMemoized []ID
}

func NewNodeMap(nodes map[ID]Node) *NodeMap {
	nm := &NodeMap{nodes: nodes}
	nm.memoize()
	return nm
}

func NewNodeMapFromList(nodes []Node) (*NodeMap, error) {
	m := make(map[ID]Node, len(nodes))
	for _, n := range nodes {
		if !n.UID.Defined() {
			return nil, ErrEmptyID
		}
		if _, found := m[n.UID]; found {
			return nil, ErrNodeAlreadyPresent
		}
		m[n.UID] = n
	}
	return NewNodeMap(m), nil
}

func (nm *NodeMap) memoize() {
	ids := make([]ID, 0, len(nm.nodes))
	for id := range nm.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	nm.idsMemoized = ids
	nm.quorum = QuorumSize(len(nm.nodes))
}

// QuorumSize is floor(n/2)+1.
func QuorumSize(n int) uint {
	return uint(n/2 + 1)
}

func (nm *NodeMap) CloneMap() map[ID]Node {
	clonedMap := make(map[ID]Node, len(nm.nodes))
	for id, node := range nm.nodes {
		clonedMap[id] = node
	}
	return clonedMap
}

// IDs returns the node ids in ascending order.
func (nm *NodeMap) IDs() []ID {
	return nm.idsMemoized
}

func (nm *NodeMap) Quorum() uint {
	return nm.quorum
}

func (nm *NodeMap) Len() uint {
	return uint(len(nm.nodes))
}

func (nm *NodeMap) Contains(id ID) bool {
	_, found := nm.nodes[id]
	return found
}

func (nm *NodeMap) LookupNode(id ID) (Node, bool) {
	n, found := nm.nodes[id]
	return n, found
}

func (nm *NodeMap) Add(node Node) error {
	if !node.UID.Defined() {
		return ErrEmptyID
	}
	if _, found := nm.nodes[node.UID]; found {
		return ErrNodeAlreadyPresent
	}
	nm.nodes[node.UID] = node
	nm.memoize()
	return nil
}

func (nm *NodeMap) Replace(node Node) error {
	if _, found := nm.nodes[node.UID]; !found {
		return ErrOldNodeNotFound
	}
	nm.nodes[node.UID] = node
	nm.memoize()
	return nil
}

func (nm *NodeMap) Remove(id ID) error {
	if _, found := nm.nodes[id]; !found {
		return ErrOldNodeNotFound
	}
	delete(nm.nodes, id)
	nm.memoize()
	return nil
}

// Nodes returns the nodes ordered by id.
func (nm *NodeMap) Nodes() []Node {
	nodes := make([]Node, 0, len(nm.idsMemoized))
	for _, id := range nm.idsMemoized {
		nodes = append(nodes, nm.nodes[id])
	}
	return nodes
}

func (nm *NodeMap) String() string {
	return fmt.Sprintf("nodemap %v (quorum %d)", nm.idsMemoized, nm.quorum)
}

// Membership is the persisted configuration record. It is stored as the
// value of a reserved key in the replicated key/value sequence.
type Membership struct {
	Nodes []Node `json:"nodes"`
}

func (nm *NodeMap) Membership() Membership {
	return Membership{Nodes: nm.Nodes()}
}

func (m Membership) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMembership(b []byte) (Membership, error) {
	var m Membership
	if err := json.Unmarshal(b, &m); err != nil {
		return Membership{}, err
	}
	if len(m.Nodes) == 0 {
		return Membership{}, errors.New("membership record without nodes")
	}
	return m, nil
}

func (m Membership) NodeMap() (*NodeMap, error) {
	return NewNodeMapFromList(m.Nodes)
}
