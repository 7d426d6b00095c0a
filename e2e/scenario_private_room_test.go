package e2e

import (
	"context"
	"roomsync/domain"
	"roomsync/errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type testPrivateRoomSuite struct {
	BaseSuite
}

func TestPrivateRoomSuite(t *testing.T) {
	suite.Run(t, &testPrivateRoomSuite{})
}

func (s *testPrivateRoomSuite) TestApprovalThenChat() {
	ctx := context.Background()
	alice := s.SignIn("alice", "Alice")
	bob := s.SignIn("bob", "Bob")
	var room domain.Room

	s.Step("Step 1: Alice creates a private room", func() {
		id, err := alice.Engine.Membership().CreateRoom(ctx, "Eng", "backend team", true)
		s.Require().NoError(err)
		room, err = alice.Engine.Membership().GetRoom(ctx, id)
		s.Require().NoError(err)
		s.Require().NoError(alice.Session().OpenRoom(ctx, room.ID))
		s.Await(func() bool { return len(alice.View.Rooms()) == 1 }, "alice does not list her room")
	})

	s.Step("Step 2: Bob redeems the invite code and waits for approval", func() {
		result, err := bob.Engine.Membership().JoinWithCode(ctx, room.InviteCode)
		s.Require().NoError(err)
		s.Require().Equal(domain.JoinOutcomeRequestSent, result.Outcome)

		s.Require().ErrorIs(bob.Session().OpenRoom(ctx, room.ID), errors.ErrNotMember)
		s.Await(func() bool {
			requests := alice.View.JoinRequests()
			return len(requests) == 1 && requests[0].UserID == "bob"
		}, "alice does not see bob's request")
	})

	s.Step("Step 3: Alice approves and Bob gets the room", func() {
		request := alice.View.JoinRequests()[0]
		s.Require().NoError(alice.Engine.Membership().ApproveJoinRequest(ctx, room.ID, request.ID, "bob"))

		s.Await(func() bool { return len(alice.View.JoinRequests()) == 0 }, "request still pending")
		s.Await(func() bool { return len(bob.View.Rooms()) == 1 }, "bob does not list the room")
		s.Require().NoError(bob.Session().OpenRoom(ctx, room.ID))
		s.Await(func() bool { return len(alice.View.Presence()) == 2 }, "alice does not see bob in the room")
	})

	s.Step("Step 4: Alice sees Bob typing, then his message", func() {
		s.Require().NoError(bob.Session().SetDraft(ctx, "hello"))
		s.Await(func() bool {
			typing := alice.View.Typing()
			return len(typing) == 1 && typing[0].UserID == "bob"
		}, "bob is not shown typing")

		s.Require().NoError(bob.Session().SetDraft(ctx, "hello Eng"))
		_, err := bob.Session().Send(ctx)
		s.Require().NoError(err)
		s.Await(func() bool {
			messages := alice.View.Messages()
			return len(messages) > 0 && messages[len(messages)-1].Text == "hello Eng"
		}, "alice did not receive the message")
		s.Await(func() bool { return len(alice.View.Typing()) == 0 }, "bob is still shown typing")
		s.Require().Zero(alice.View.Unread(room.ID))
	})

	s.Step("Step 5: Messages sent while Alice is away are unread", func() {
		s.Require().NoError(alice.Session().CloseRoom(ctx))
		for _, text := range []string{"are you there?", "ping"} {
			s.Require().NoError(bob.Session().SetDraft(ctx, text))
			_, err := bob.Session().Send(ctx)
			s.Require().NoError(err)
		}
		s.Await(func() bool { return alice.View.Unread(room.ID) == 2 }, "alice unread count is not 2")

		s.Require().NoError(alice.Session().OpenRoom(ctx, room.ID))
		s.Await(func() bool { return alice.View.Unread(room.ID) == 0 }, "opening the room did not clear unread")
	})
}

func (s *testPrivateRoomSuite) TestAdminOnlyChatAndLeaving() {
	ctx := context.Background()
	alice := s.SignIn("alice", "Alice")
	bob := s.SignIn("bob", "Bob")
	var room domain.Room

	s.Step("Step 1: Bob joins a public room", func() {
		id, err := alice.Engine.Membership().CreateRoom(ctx, "Announcements", "", false)
		s.Require().NoError(err)
		room, err = alice.Engine.Membership().GetRoom(ctx, id)
		s.Require().NoError(err)

		result, err := bob.Engine.Membership().JoinWithCode(ctx, room.InviteCode)
		s.Require().NoError(err)
		s.Require().Equal(domain.JoinOutcomeJoined, result.Outcome)
		s.Require().NoError(bob.Session().OpenRoom(ctx, room.ID))
	})

	s.Step("Step 2: Only admins may post once the room is admin-only", func() {
		s.Require().NoError(alice.Engine.Membership().SetAdminOnlyChat(ctx, room.ID, true))
		s.Await(func() bool {
			for _, summary := range bob.View.Rooms() {
				if summary.Room.ID == room.ID {
					return summary.Room.AdminOnlyChat
				}
			}
			return false
		}, "bob does not see the setting")

		s.Require().NoError(bob.Session().SetDraft(ctx, "can I talk?"))
		_, err := bob.Session().Send(ctx)
		s.Require().ErrorIs(err, errors.ErrAdminOnlyChat)
	})

	s.Step("Step 3: The last admin cannot leave, Bob can", func() {
		s.Require().ErrorIs(alice.Engine.Membership().LeaveRoom(ctx, room.ID), errors.ErrLastAdmin)

		s.Require().NoError(bob.Engine.Membership().LeaveRoom(ctx, room.ID))
		s.Await(func() bool { return len(bob.View.Rooms()) == 0 }, "bob still lists the room")
		s.Require().NoError(bob.Session().CloseRoom(ctx))

		updated, err := alice.Engine.Membership().GetRoom(ctx, room.ID)
		s.Require().NoError(err)
		s.Require().Equal(1, updated.MemberCount)
	})
}
