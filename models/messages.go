// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

// Client message types
const (
	MsgJoin     = "join"
	MsgHost     = "host"
	MsgVote     = "vote"
	MsgSetState = "set-state"
	MsgSync     = "sync"
	MsgPing     = "ping"
)

// Server reply types
const (
	MsgJoined   = "joined"
	MsgRejoined = "rejoined"
	MsgHosting  = "hosting"
	MsgVoted    = "voted"
	MsgSnapshot = "snapshot"
	MsgPong     = "pong"
	MsgError    = "error"
)

// ClientMessage is anything a websocket client sends
type ClientMessage struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	HostKey  string `json:"host_key,omitempty"`
	Option   *int   `json:"option,omitempty"`
	State    string `json:"state,omitempty"`
}

// ServerMessage is a direct reply to one client message. Broadcasts are
// sent as Event instead.
type ServerMessage struct {
	Type        string       `json:"type"`
	Participant *Participant `json:"participant,omitempty"`
	Vote        *Vote        `json:"vote,omitempty"`
	Snapshot    *Snapshot    `json:"snapshot,omitempty"`
	Option      *int         `json:"option,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	Message     string       `json:"message,omitempty"`
}
