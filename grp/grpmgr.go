package grp

import (
	"github.com/golang/glog"
)

// A GroupManager owns the membership view of one node. It is confined to
// the node's event loop; subscribers are invoked synchronously whenever the
// view is replaced.
type GroupManager interface {
	ID() ID
	NodeMap() *NodeMap
	Quorum() uint
	SetNodeMap(nm *NodeMap)
	Subscribe(name string, fn func(*NodeMap))
}

type GrpMgr struct {
	id          ID
	nodeMap     *NodeMap
	order       []string
	subscribers map[string]func(*NodeMap)
}

func NewGrpMgr(id ID, nm *NodeMap) *GrpMgr {
	return &GrpMgr{
		id:          id,
		nodeMap:     nm,
		subscribers: make(map[string]func(*NodeMap)),
	}
}

func (gm *GrpMgr) ID() ID {
	return gm.id
}

func (gm *GrpMgr) NodeMap() *NodeMap {
	return gm.nodeMap
}

func (gm *GrpMgr) Quorum() uint {
	return gm.nodeMap.Quorum()
}

func (gm *GrpMgr) Subscribe(name string, fn func(*NodeMap)) {
	if _, found := gm.subscribers[name]; !found {
		gm.order = append(gm.order, name)
	}
	gm.subscribers[name] = fn
}

func (gm *GrpMgr) SetNodeMap(nm *NodeMap) {
	glog.V(1).Infoln("installing", nm)
	if !nm.Contains(gm.id) {
		glog.Warningf("%v is not a member of the new configuration", gm.id)
	}
	gm.nodeMap = nm
	for _, name := range gm.order {
		glog.V(2).Infoln("notifying", name, "of new configuration")
		gm.subscribers[name](nm)
	}
}
