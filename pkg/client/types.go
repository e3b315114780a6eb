package client

import "github.com/loykin/tether/internal/supervisor"

// PortResponse is the body of GET {base}/port.
type PortResponse struct {
	Port  *uint16 `json:"port"`
	Ready bool    `json:"ready"`
}

// Status mirrors the supervisor's status document.
type Status = supervisor.Status

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
