package client

import (
	"fmt"
	"hash/fnv"
)

// Display the Request in truncated string form.
func (r *Request) SimpleString() string {
	return fmt.Sprintf("%v request from %v with seq %d", r.GetType(), r.GetId(), r.GetSeq())
}

// Display the Request in its full glory.
func (r *Request) FullString() string {
	return fmt.Sprintf("%v, key %q and value hash %x", r.SimpleString(), r.GetKey(), hash(r.GetVal()))
}

// IsIDInvalid returns true if the request's ID field is not a uuid.
func (r *Request) IsIDInvalid() bool {
	return !validID(r.GetId())
}

// Display the Response in truncated string form.
func (r *Response) SimpleString() string {
	if !r.HasError() {
		return fmt.Sprintf("%v to %v with seq %d", r.GetType(), r.GetId(), r.GetSeq())
	}
	return fmt.Sprintf("%v to %v with seq %d and error code %v",
		r.GetType(), r.GetId(), r.GetSeq(), r.GetErrorCode())
}

// Display the Response in its full glory.
func (r *Response) FullString() string {
	if !r.HasError() {
		return fmt.Sprintf("%v, value hash %x", r.SimpleString(), hash(r.GetVal()))
	}
	return fmt.Sprintf("%v, error detail: %v", r.SimpleString(), r.GetErrorDetail())
}

// Check whether the response contains an error.
func (r *Response) HasError() bool {
	return r.GetErrorCode() != Response_NONE
}

func hash(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}

// NewResponse starts the response to req.
func NewResponse(req *Request) *Response {
	var rt Response_Type
	switch req.GetType() {
	case Request_PUT:
		rt = Response_PUT_RESP
	case Request_GET:
		rt = Response_GET_RESP
	case Request_TXVOTE:
		rt = Response_TXVOTE_RESP
	default:
		rt = Response_HELLO_RESP
	}
	return &Response{Type: &rt, Id: req.Id, Seq: req.Seq}
}

// SetError marks the response as failed.
func (r *Response) SetError(ec Response_Error, detail string) {
	r.ErrorCode = ec.Enum()
	r.ErrorDetail = &detail
}
