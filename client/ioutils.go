package client

import (
	"encoding/binary"
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// maxFrameSize bounds the length prefix read from the wire.
const maxFrameSize = 64 << 20

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// These functions are not thread-safe.

func write(w io.Writer, msg proto.Message) error {
	buffer, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	if err = binary.Write(w, binary.LittleEndian, int32(len(buffer))); err != nil {
		return err
	}
	_, err = w.Write(buffer)
	return err
}

func read(r io.Reader, msg proto.Message) error {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return err
	}
	if size < 0 || size > maxFrameSize {
		return errors.Wrapf(errFrameTooLarge, "length %d", size)
	}
	buffer := make([]byte, size)
	if _, err := io.ReadFull(r, buffer); err != nil {
		return err
	}
	return errors.Wrap(proto.Unmarshal(buffer, msg), "unmarshal")
}
