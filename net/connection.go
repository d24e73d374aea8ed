package net

import (
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/relab/txpaxos/grp"
)

// A Connection is a gob-encoded stream between two replicas.
type Connection struct {
	conn io.ReadWriteCloser
	Dec  *gob.Decoder
	Enc  *gob.Encoder
	addr string
}

// Creates a new connection. The required argument is a low-level
// connection to another replica.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn: conn,
		Dec:  gob.NewDecoder(conn),
		Enc:  gob.NewEncoder(conn),
		addr: conn.RemoteAddr().String(),
	}
}

// Dial connects to node and identifies ourselves as id. The remote side
// must accept the id before the connection is returned.
func Dial(node grp.Node, id grp.ID, timeout time.Duration) (*Connection, error) {
	conn, err := net.DialTimeout("tcp", node.PaxosAddr(), timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %v", node.UID)
	}
	c := NewConnection(conn)
	if err = c.sendID(id); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "sending id")
	}
	resp, err := c.waitForIDResp()
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "waiting for id response")
	}
	if !resp.Accepted {
		c.Close()
		return nil, errors.Errorf("%v rejected our id: %s", node.UID, resp.Error)
	}
	return c, nil
}

func (c *Connection) ReadEnvelope() (Envelope, error) {
	var env Envelope
	err := c.Dec.Decode(&env)
	return env, err
}

func (c *Connection) WriteEnvelope(env Envelope) error {
	return c.Enc.Encode(&env)
}

// Close the connection.
func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) sendID(id grp.ID) error {
	return c.Enc.Encode(&IDExchange{id})
}

func (c *Connection) waitForID() (grp.ID, error) {
	var idexch IDExchange
	if err := c.Dec.Decode(&idexch); err != nil {
		return grp.UndefinedID, err
	}
	return idexch.ID, nil
}

func (c *Connection) waitForIDResp() (IDResponse, error) {
	var idresp IDResponse
	err := c.Dec.Decode(&idresp)
	return idresp, err
}

func (c *Connection) sendIDResp(ok bool, err string) error {
	return c.Enc.Encode(&IDResponse{ok, err})
}

// Returns a string-based representation of the Connection.
func (c *Connection) String() string {
	return fmt.Sprintf("connection with %v", c.addr)
}
