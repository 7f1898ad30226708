package model

import "fmt"

// RequestStatus is the lifecycle state shared by friend requests and team
// invitations.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusAccepted RequestStatus = "ACCEPTED"
	StatusRejected RequestStatus = "REJECTED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further response is possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Accept returns the state after an accept. Accepting an accepted request
// is a no-op.
func (s RequestStatus) Accept() (RequestStatus, error) {
	switch s {
	case StatusPending, StatusAccepted:
		return StatusAccepted, nil
	}
	return s, fmt.Errorf("cannot accept a %s request", s)
}

func (s RequestStatus) Reject() (RequestStatus, error) {
	if s != StatusPending {
		return s, fmt.Errorf("cannot reject a %s request", s)
	}
	return StatusRejected, nil
}

// Reissue moves a terminal request back to PENDING when it is sent again.
func (s RequestStatus) Reissue() (RequestStatus, error) {
	if !s.Terminal() {
		return s, fmt.Errorf("cannot reissue a %s request", s)
	}
	return StatusPending, nil
}

// Resend returns the state after the sender sends the same friend request
// again. A PENDING request is refreshed and a REJECTED one revived; an
// accepted request cannot be sent again.
func (s RequestStatus) Resend() (RequestStatus, error) {
	switch s {
	case StatusPending, StatusRejected:
		return StatusPending, nil
	}
	return s, fmt.Errorf("cannot resend a %s request", s)
}
