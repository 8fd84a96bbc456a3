package server

import (
	"github.com/mshafei721/ADOS-sub001/memory"
)

// Operations accepted on the websocket.
const (
	OpWrite  = "write"
	OpRead   = "read"
	OpStatus = "status"
	OpSync   = "sync"
)

// Request is one websocket message from a client.
type Request struct {
	ID      string `json:"id,omitempty"`
	Op      string `json:"op"`
	Crew    string `json:"crew,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Content string `json:"content,omitempty"`
	Query   string `json:"query,omitempty"`
}

// Response answers exactly one Request and echoes its ID.
type Response struct {
	ID     string         `json:"id,omitempty"`
	OK     bool           `json:"ok"`
	Result string         `json:"result,omitempty"`
	Status *memory.Status `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, Error: err.Error()}
}
