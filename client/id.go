package client

import (
	"github.com/google/uuid"
)

func generateID() string {
	return uuid.NewString()
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
