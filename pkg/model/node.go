package model

import (
	"errors"
)

// Node represents a votifier instance taking part in vote forwarding
type Node struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

func (n *Node) Validate() error {
	if n.ID == "" {
		return errors.New("node ID is required")
	}
	if n.Address == "" {
		return errors.New("node address is required")
	}
	return nil
}
