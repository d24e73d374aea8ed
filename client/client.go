package client

import (
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/relab/txpaxos/config"
)

var (
	ErrNoNodes      = errors.New("no client addresses in configuration")
	ErrNotConnected = errors.New("connection to the voting replica was lost")
	ErrStale        = errors.New("request was superseded, retries exhausted")
	ErrDenied       = errors.New("access denied")
	ErrAborted      = errors.New("transaction aborted")
	ErrProtocol     = errors.New("unexpected response")
)

// Client talks to the replicas over their client ports. Requests are sent
// one at a time. A request that fails on the network is retried on the
// next replica; one that lost its instance to another proposal is
// resubmitted.
type Client struct {
	mu          sync.Mutex
	id          string
	seq         uint32
	nodes       []string
	next        int
	conn        net.Conn
	dialTimeout time.Duration
	reqTimeout  time.Duration
	voteTimeout time.Duration
	retries     int
	backoff     time.Duration
}

// Dial connects to one of the replicas listed under "nodes" in conf.
func Dial(conf *config.Config) (*Client, error) {
	nodeMap, err := conf.GetNodeMap("nodes")
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, node := range nodeMap.Nodes() {
		if node.ClientAddr != "" {
			addrs = append(addrs, node.ClientAddr)
		}
	}
	return DialAddrs(conf, addrs...)
}

// DialAddrs connects to one of addrs.
func DialAddrs(conf *config.Config, addrs ...string) (*Client, error) {
	if len(addrs) == 0 {
		return nil, ErrNoNodes
	}
	c := &Client{
		id:          generateID(),
		nodes:       addrs,
		dialTimeout: conf.GetDuration("dialTimeout", config.DefDialTimeout),
		reqTimeout:  conf.GetDuration("requestTimeout", config.DefRequestTimeout),
		voteTimeout: conf.GetDuration("requestTimeout", config.DefRequestTimeout) +
			conf.GetDuration("txTimeout", config.DefTxTimeout),
		retries:     conf.GetInt("requestRetries", config.DefRequestRetries),
		backoff:     50 * time.Millisecond,
	}
	glog.V(1).Infof("client %v with %d replicas", c.id, len(addrs))
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ID() string {
	return c.id
}

// connect tries every replica once, starting with the next in turn.
func (c *Client) connect() error {
	var lastErr error
	for range c.nodes {
		addr := c.nodes[c.next]
		c.next = (c.next + 1) % len(c.nodes)
		conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		if err = c.handshake(conn); err != nil {
			conn.Close()
			lastErr = err
			continue
		}
		glog.V(2).Infof("client %v: connected to %s", c.id, addr)
		c.conn = conn
		return nil
	}
	return errors.Wrap(lastErr, "connecting to replicas")
}

func (c *Client) handshake(conn net.Conn) error {
	conn.SetDeadline(time.Now().Add(c.reqTimeout))
	defer conn.SetDeadline(time.Time{})
	hello := &Request{Type: Request_HELLO.Enum(), Id: &c.id}
	if err := write(conn, hello); err != nil {
		return errors.Wrap(err, "handshake write")
	}
	var resp Response
	if err := read(conn, &resp); err != nil {
		return errors.Wrap(err, "handshake read")
	}
	if resp.GetType() != Response_HELLO_RESP || resp.HasError() {
		return errors.Wrapf(ErrProtocol, "handshake: %v", resp.SimpleString())
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Put writes value under key and returns the instance that decided it.
func (c *Client) Put(key string, value []byte) (uint64, error) {
	return c.PutWithToken(key, value, "")
}

// PutWithToken is Put for reserved keys, which need the admin token.
func (c *Client) PutWithToken(key string, value []byte, token string) (uint64, error) {
	req := &Request{Type: Request_PUT.Enum(), Key: &key, Val: value}
	if token != "" {
		req.Token = &token
	}
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	return resp.GetInstance(), nil
}

// Get reads key from whichever replica the client is connected to. The
// value may be stale.
func (c *Client) Get(key string) (value []byte, found bool, err error) {
	resp, err := c.do(&Request{Type: Request_GET.Enum(), Key: &key})
	if err != nil {
		return nil, false, err
	}
	return resp.GetVal(), resp.GetFound(), nil
}

// Vote casts the connected replica's vote in a transaction and waits for
// the outcome. It returns nil if the transaction committed and ErrAborted
// if it aborted. A vote is never moved to another replica, since that
// would cast a different participant's vote.
func (c *Client) Vote(txUUID string, commit bool) error {
	resp, err := c.do(&Request{Type: Request_TXVOTE.Enum(), TxUuid: &txUUID, Commit: &commit})
	if err != nil {
		return err
	}
	switch resp.GetOutcome() {
	case Response_COMMITTED:
		return nil
	case Response_ABORTED:
		return ErrAborted
	}
	return errors.Wrapf(ErrProtocol, "transaction %s has no outcome", txUUID)
}

func (c *Client) do(req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req.Id = &c.id
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * c.backoff)
		}
		if c.conn == nil {
			if req.GetType() == Request_TXVOTE {
				return nil, ErrNotConnected
			}
			if err := c.connect(); err != nil {
				lastErr = err
				continue
			}
		}
		c.seq++
		seq := c.seq
		req.Seq = &seq
		resp, err := c.exchange(req)
		if err != nil {
			c.conn.Close()
			c.conn = nil
			if req.GetType() == Request_TXVOTE {
				return nil, err
			}
			glog.V(2).Infof("client %v: %v, trying another replica", c.id, err)
			lastErr = err
			continue
		}
		switch resp.GetErrorCode() {
		case Response_NONE:
			return resp, nil
		case Response_STALE:
			glog.V(2).Infof("client %v: %s, resubmitting", c.id, resp.GetErrorDetail())
			lastErr = ErrStale
			continue
		case Response_DENIED:
			return nil, ErrDenied
		default:
			return nil, errors.Errorf("%v: %s", resp.GetErrorCode(), resp.GetErrorDetail())
		}
	}
	return nil, lastErr
}

// exchange sends req and waits for the response with the same seq.
func (c *Client) exchange(req *Request) (*Response, error) {
	timeout := c.reqTimeout
	if req.GetType() == Request_TXVOTE {
		timeout = c.voteTimeout
	}
	c.conn.SetDeadline(time.Now().Add(timeout))
	if err := write(c.conn, req); err != nil {
		return nil, errors.Wrap(err, "write")
	}
	for {
		var resp Response
		if err := read(c.conn, &resp); err != nil {
			return nil, errors.Wrap(err, "read")
		}
		if resp.GetSeq() == req.GetSeq() {
			return &resp, nil
		}
		glog.V(3).Infof("client %v: discarding %v", c.id, resp.SimpleString())
	}
}
