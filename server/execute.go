package server

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/relab/txpaxos/client"
	"github.com/relab/txpaxos/kvs"
	"github.com/relab/txpaxos/pcommit"
)

// executor carries out client requests on the event loop.
type executor struct {
	s *Server
}

func (x *executor) Execute(req *client.Request, reply func(*client.Response)) {
	if glog.V(3) {
		glog.Infoln("executing", req.FullString())
	}
	switch req.GetType() {
	case client.Request_PUT:
		x.put(req, reply)
	case client.Request_GET:
		x.get(req, reply)
	case client.Request_TXVOTE:
		x.vote(req, reply)
	default:
		resp := client.NewResponse(req)
		resp.SetError(client.Response_INVALID, fmt.Sprintf("unexpected %v request", req.GetType()))
		reply(resp)
	}
}

func (x *executor) put(req *client.Request, reply func(*client.Response)) {
	pv := kvs.ProposeValue{
		Key:       req.GetKey(),
		Value:     req.GetVal(),
		RequestID: fmt.Sprintf("%s/%d", req.GetId(), req.GetSeq()),
		Token:     req.GetToken(),
	}
	x.s.replica.Propose(pv, func(pr kvs.ProposeReply) {
		resp := client.NewResponse(req)
		switch err := pr.Result(); {
		case err == nil:
			instance := pr.Instance
			resp.Instance = &instance
		case kvs.IsStale(err):
			resp.SetError(client.Response_STALE, err.Error())
		case err == kvs.ErrAccessDenied:
			resp.SetError(client.Response_DENIED, err.Error())
		default:
			resp.SetError(client.Response_FAILED, err.Error())
		}
		reply(resp)
	})
}

func (x *executor) get(req *client.Request, reply func(*client.Response)) {
	qr := x.s.replica.Query(req.GetKey())
	resp := client.NewResponse(req)
	resp.Val = qr.Value
	resp.Found = &qr.Found
	resp.Instance = &qr.Instance
	reply(resp)
}

// vote answers once the transaction has a result.
func (x *executor) vote(req *client.Request, reply func(*client.Response)) {
	resp := client.NewResponse(req)
	txUUID := req.GetTxUuid()
	if _, err := uuid.Parse(txUUID); err != nil {
		resp.SetError(client.Response_INVALID, "transaction id must be a uuid")
		reply(resp)
		return
	}
	vote := pcommit.Aborted
	if req.GetCommit() {
		vote = pcommit.Committed
	}
	// Every node builds the descriptor from the same `nodes` list, so a
	// mismatch means the replicas disagree about the group.
	r, err := x.s.txmgr.ProposeIn(x.s.txmgr.LocalDescriptor(), txUUID, x.s.id, vote)
	if err != nil {
		resp.SetError(client.Response_FAILED, err.Error())
		reply(resp)
		return
	}
	answer := func(r pcommit.Result) {
		outcome := client.Response_ABORTED
		if r == pcommit.Committed {
			outcome = client.Response_COMMITTED
		}
		resp.Outcome = outcome.Enum()
		reply(resp)
	}
	if r != pcommit.Unset {
		answer(r)
		return
	}
	x.s.txmgr.Watch(txUUID, answer)
}
