package domain

import (
	"roomsync/errors"
	"time"
)

type JoinRequestID string

type JoinStatus string

const (
	JoinPending  JoinStatus = "pending"
	JoinApproved JoinStatus = "approved"
	JoinRejected JoinStatus = "rejected"
)

// JoinRequest is a membership application to a private room.
// It is terminal once Status leaves JoinPending.
type JoinRequest struct {
	ID          JoinRequestID
	RoomID      RoomID
	UserID      UserID
	DisplayName string
	AvatarURL   string
	Status      JoinStatus
	RequestedAt time.Time
	DecidedBy   UserID
	DecidedAt   time.Time
}

func (j JoinRequest) IsPending() bool { return j.Status == JoinPending }

// Decide moves a pending request to a terminal status.
func (j JoinRequest) Decide(status JoinStatus, by UserID) (JoinRequest, error) {
	if !j.IsPending() {
		return j, errors.ErrRequestAlreadyDecided
	}
	j.Status = status
	j.DecidedBy = by
	return j, nil
}

// JoinStatusOutcome is what a caller learns after redeeming an invite code.
type JoinStatusOutcome string

const (
	JoinOutcomeJoined         JoinStatusOutcome = "joined"
	JoinOutcomeAlreadyMember  JoinStatusOutcome = "already_member"
	JoinOutcomeRequestSent    JoinStatusOutcome = "request_sent"
	JoinOutcomeRequestPending JoinStatusOutcome = "request_pending"
)

type JoinResult struct {
	RoomID    RoomID
	Outcome   JoinStatusOutcome
	RequestID JoinRequestID
}
