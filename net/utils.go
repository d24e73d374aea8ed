package net

import (
	"errors"
	"net"
	"strings"
)

func IsSocketClosed(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
