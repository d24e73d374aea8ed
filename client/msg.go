package client

import (
	"github.com/golang/protobuf/proto"
)

// Go types for msg.proto.

type Request_Type int32

const (
	Request_HELLO  Request_Type = 0
	Request_PUT    Request_Type = 1
	Request_GET    Request_Type = 2
	Request_TXVOTE Request_Type = 3
)

var Request_Type_name = map[int32]string{
	0: "HELLO",
	1: "PUT",
	2: "GET",
	3: "TXVOTE",
}

var Request_Type_value = map[string]int32{
	"HELLO":  0,
	"PUT":    1,
	"GET":    2,
	"TXVOTE": 3,
}

func (x Request_Type) Enum() *Request_Type {
	p := new(Request_Type)
	*p = x
	return p
}

func (x Request_Type) String() string {
	return proto.EnumName(Request_Type_name, int32(x))
}

type Response_Type int32

const (
	Response_HELLO_RESP  Response_Type = 0
	Response_PUT_RESP    Response_Type = 1
	Response_GET_RESP    Response_Type = 2
	Response_TXVOTE_RESP Response_Type = 3
)

var Response_Type_name = map[int32]string{
	0: "HELLO_RESP",
	1: "PUT_RESP",
	2: "GET_RESP",
	3: "TXVOTE_RESP",
}

var Response_Type_value = map[string]int32{
	"HELLO_RESP":  0,
	"PUT_RESP":    1,
	"GET_RESP":    2,
	"TXVOTE_RESP": 3,
}

func (x Response_Type) Enum() *Response_Type {
	p := new(Response_Type)
	*p = x
	return p
}

func (x Response_Type) String() string {
	return proto.EnumName(Response_Type_name, int32(x))
}

type Response_Error int32

const (
	Response_NONE    Response_Error = 0
	Response_STALE   Response_Error = 1
	Response_DENIED  Response_Error = 2
	Response_FAILED  Response_Error = 3
	Response_INVALID Response_Error = 4
)

var Response_Error_name = map[int32]string{
	0: "NONE",
	1: "STALE",
	2: "DENIED",
	3: "FAILED",
	4: "INVALID",
}

var Response_Error_value = map[string]int32{
	"NONE":    0,
	"STALE":   1,
	"DENIED":  2,
	"FAILED":  3,
	"INVALID": 4,
}

func (x Response_Error) Enum() *Response_Error {
	p := new(Response_Error)
	*p = x
	return p
}

func (x Response_Error) String() string {
	return proto.EnumName(Response_Error_name, int32(x))
}

type Response_TxOutcome int32

const (
	Response_UNSET     Response_TxOutcome = 0
	Response_COMMITTED Response_TxOutcome = 1
	Response_ABORTED   Response_TxOutcome = 2
)

var Response_TxOutcome_name = map[int32]string{
	0: "UNSET",
	1: "COMMITTED",
	2: "ABORTED",
}

var Response_TxOutcome_value = map[string]int32{
	"UNSET":     0,
	"COMMITTED": 1,
	"ABORTED":   2,
}

func (x Response_TxOutcome) Enum() *Response_TxOutcome {
	p := new(Response_TxOutcome)
	*p = x
	return p
}

func (x Response_TxOutcome) String() string {
	return proto.EnumName(Response_TxOutcome_name, int32(x))
}

type Request struct {
	Type             *Request_Type `protobuf:"varint,1,req,name=type,enum=client.Request_Type" json:"type,omitempty"`
	Id               *string       `protobuf:"bytes,2,opt,name=id" json:"id,omitempty"`
	Seq              *uint32       `protobuf:"varint,3,opt,name=seq" json:"seq,omitempty"`
	Key              *string       `protobuf:"bytes,4,opt,name=key" json:"key,omitempty"`
	Val              []byte        `protobuf:"bytes,5,opt,name=val" json:"val,omitempty"`
	Token            *string       `protobuf:"bytes,6,opt,name=token" json:"token,omitempty"`
	TxUuid           *string       `protobuf:"bytes,7,opt,name=tx_uuid" json:"tx_uuid,omitempty"`
	Commit           *bool         `protobuf:"varint,8,opt,name=commit" json:"commit,omitempty"`
	XXX_unrecognized []byte        `json:"-"`
}

func (m *Request) Reset()         { *m = Request{} }
func (m *Request) String() string { return proto.CompactTextString(m) }
func (*Request) ProtoMessage()    {}

func (m *Request) GetType() Request_Type {
	if m != nil && m.Type != nil {
		return *m.Type
	}
	return Request_HELLO
}

func (m *Request) GetId() string {
	if m != nil && m.Id != nil {
		return *m.Id
	}
	return ""
}

func (m *Request) GetSeq() uint32 {
	if m != nil && m.Seq != nil {
		return *m.Seq
	}
	return 0
}

func (m *Request) GetKey() string {
	if m != nil && m.Key != nil {
		return *m.Key
	}
	return ""
}

func (m *Request) GetVal() []byte {
	if m != nil {
		return m.Val
	}
	return nil
}

func (m *Request) GetToken() string {
	if m != nil && m.Token != nil {
		return *m.Token
	}
	return ""
}

func (m *Request) GetTxUuid() string {
	if m != nil && m.TxUuid != nil {
		return *m.TxUuid
	}
	return ""
}

func (m *Request) GetCommit() bool {
	if m != nil && m.Commit != nil {
		return *m.Commit
	}
	return false
}

type Response struct {
	Type             *Response_Type      `protobuf:"varint,1,req,name=type,enum=client.Response_Type" json:"type,omitempty"`
	Id               *string             `protobuf:"bytes,2,opt,name=id" json:"id,omitempty"`
	Seq              *uint32             `protobuf:"varint,3,opt,name=seq" json:"seq,omitempty"`
	Val              []byte              `protobuf:"bytes,4,opt,name=val" json:"val,omitempty"`
	Found            *bool               `protobuf:"varint,5,opt,name=found" json:"found,omitempty"`
	Instance         *uint64             `protobuf:"varint,6,opt,name=instance" json:"instance,omitempty"`
	ErrorCode        *Response_Error     `protobuf:"varint,7,opt,name=error_code,enum=client.Response_Error" json:"error_code,omitempty"`
	ErrorDetail      *string             `protobuf:"bytes,8,opt,name=error_detail" json:"error_detail,omitempty"`
	Outcome          *Response_TxOutcome `protobuf:"varint,9,opt,name=outcome,enum=client.Response_TxOutcome" json:"outcome,omitempty"`
	XXX_unrecognized []byte              `json:"-"`
}

func (m *Response) Reset()         { *m = Response{} }
func (m *Response) String() string { return proto.CompactTextString(m) }
func (*Response) ProtoMessage()    {}

func (m *Response) GetType() Response_Type {
	if m != nil && m.Type != nil {
		return *m.Type
	}
	return Response_HELLO_RESP
}

func (m *Response) GetId() string {
	if m != nil && m.Id != nil {
		return *m.Id
	}
	return ""
}

func (m *Response) GetSeq() uint32 {
	if m != nil && m.Seq != nil {
		return *m.Seq
	}
	return 0
}

func (m *Response) GetVal() []byte {
	if m != nil {
		return m.Val
	}
	return nil
}

func (m *Response) GetFound() bool {
	if m != nil && m.Found != nil {
		return *m.Found
	}
	return false
}

func (m *Response) GetInstance() uint64 {
	if m != nil && m.Instance != nil {
		return *m.Instance
	}
	return 0
}

func (m *Response) GetErrorCode() Response_Error {
	if m != nil && m.ErrorCode != nil {
		return *m.ErrorCode
	}
	return Response_NONE
}

func (m *Response) GetErrorDetail() string {
	if m != nil && m.ErrorDetail != nil {
		return *m.ErrorDetail
	}
	return ""
}

func (m *Response) GetOutcome() Response_TxOutcome {
	if m != nil && m.Outcome != nil {
		return *m.Outcome
	}
	return Response_UNSET
}

func init() {
	proto.RegisterEnum("client.Request_Type", Request_Type_name, Request_Type_value)
	proto.RegisterEnum("client.Response_Type", Response_Type_name, Response_Type_value)
	proto.RegisterEnum("client.Response_Error", Response_Error_name, Response_Error_value)
	proto.RegisterEnum("client.Response_TxOutcome", Response_TxOutcome_name, Response_TxOutcome_value)
	proto.RegisterType((*Request)(nil), "client.Request")
	proto.RegisterType((*Response)(nil), "client.Response")
}
