package models

import "time"

// PollState is the lifecycle state of a poll.
type PollState string

// Poll state constants
const (
	StateWaiting PollState = "waiting"
	StateOpen    PollState = "open"
	StateClosed  PollState = "closed"
)

// Option count bounds
const (
	MinOptions = 2
	MaxOptions = 5
)

// Request types

type CreatePollRequest struct {
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

type ChangeStateRequest struct {
	State string `json:"state"`
}

// Response types

type CreatePollResponse struct {
	RoomCode string `json:"room_code"`
	HostKey  string `json:"host_key"`
	Poll     Poll   `json:"poll"`
}

type ChangeStateResponse struct {
	PreviousState PollState `json:"previous_state"`
	NewState      PollState `json:"new_state"`
}

// Domain types

type Poll struct {
	RoomCode  string     `json:"room_code"`
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	State     PollState  `json:"state"`
	HostKey   string     `json:"-"` // Never expose in JSON
	HostConn  string     `json:"-"`
	Revision  uint64     `json:"revision"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Participant struct {
	RoomCode   string    `json:"room_code"`
	Nickname   string    `json:"nickname"`
	ConnID     string    `json:"-"`
	Connected  bool      `json:"connected"`
	JoinedAt   time.Time `json:"joined_at"`
	LastActive time.Time `json:"last_active"`
	Vote       *Vote     `json:"vote,omitempty"`
}

type Vote struct {
	Option    int       `json:"option"`
	CastAt    time.Time `json:"cast_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Results is a full tally, never a delta
type Results struct {
	Counts      []int `json:"counts"`
	Percentages []int `json:"percentages"`
	TotalVotes  int   `json:"total_votes"`
}

// Snapshot is the complete observable state of a room
type Snapshot struct {
	Poll           Poll    `json:"poll"`
	Results        Results `json:"results"`
	ConnectedCount int     `json:"connected_count"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}
