package client

// An Executor carries out client requests. It is called on the node's
// event loop and must eventually call reply exactly once.
type Executor interface {
	Execute(req *Request, reply func(*Response))
}

type ClientHandler interface {
	Start()
	Stop()
	ForwardResponse(resp *Response)
}
