// Package domain contains entity types without logic, just meta-data
package domain

type RoomID string

// DefaultRoom is used by get-rtp-capabilities and by join requests that omit roomId.
const DefaultRoom RoomID = "default"

// RoomInfo is a read-only view of a room for APIs.
type RoomInfo struct {
	ID         RoomID `json:"id"`
	RouterID   string `json:"routerId"`
	Transports int    `json:"transports"`
	Producers  int    `json:"producers"`
	Consumers  int    `json:"consumers"`
}
