package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"roomsync/auth"
	"roomsync/domain"
	"roomsync/errors"
	"roomsync/runtime"
	"strings"
	"time"

	"github.com/gookit/color"
)

const usage = `commands:
  /login <id> <name>        sign in with a locally issued token
  /token <jwt>              sign in with a token
  /logout
  /create <name> [private]  create a room
  /join <code>              redeem an invite code
  /search <term>
  /rooms
  /open <room id>
  /close
  /leave
  /members                  members of the open room
  /approve <request id> <user id>
  /reject <request id>
  /promote|/demote|/remove <user id>
  /adminonly on|off
  /private on|off
  /quit
anything else is sent to the open room`

// console reads one command per line and reports on out. Event snapshots
// are not printed here; they go to the sinks.
type console struct {
	engine        *runtime.Engine
	identity      *auth.TokenIdentity
	secret        []byte
	tokenDuration time.Duration
	out           io.Writer
}

func newConsole(engine *runtime.Engine, identity *auth.TokenIdentity, secret []byte, tokenDuration time.Duration, out io.Writer) *console {
	return &console{engine: engine, identity: identity, secret: secret, tokenDuration: tokenDuration, out: out}
}

// Run handles lines until the scanner is exhausted or ctx is done. /quit
// calls quit; a closed stdin leaves the client running.
func (c *console) Run(ctx context.Context, scanner *bufio.Scanner, quit func()) {
	fmt.Fprintln(c.out, usage)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			quit()
			return
		}
		if line == "" {
			continue
		}
		if err := c.handle(ctx, line); err != nil {
			fmt.Fprintln(c.out, color.Red.Sprint("error: ", err))
		}
	}
}

func (c *console) session() (*runtime.Session, error) {
	session := c.engine.Session()
	if session == nil {
		return nil, errors.ErrNotAuthenticated
	}
	return session, nil
}

func (c *console) openRoom() (*runtime.Session, domain.RoomID, error) {
	session, err := c.session()
	if err != nil {
		return nil, "", err
	}
	room := session.OpenRoomID()
	if room == "" {
		return nil, "", errors.ErrNoRoomOpen
	}
	return session, room, nil
}

func (c *console) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, line)
	}
	command, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)
	membership := c.engine.Membership()

	switch command {
	case "/login":
		if len(args) < 2 {
			return fmt.Errorf("%w: /login <id> <name>", errors.ErrValidation)
		}
		identity := domain.Identity{ID: domain.UserID(args[0]), DisplayName: strings.Join(args[1:], " ")}
		token, err := auth.GenerateToken(c.secret, identity, c.tokenDuration)
		if err != nil {
			return err
		}
		return c.signIn(token)
	case "/token":
		if len(args) != 1 {
			return fmt.Errorf("%w: /token <jwt>", errors.ErrValidation)
		}
		return c.signIn(args[0])
	case "/logout":
		c.identity.SignOut()
		c.ok("signed out")
		return nil
	case "/create":
		if len(args) == 0 {
			return errors.ErrEmptyRoomName
		}
		private := args[len(args)-1] == "private"
		if private {
			args = args[:len(args)-1]
		}
		id, err := membership.CreateRoom(ctx, strings.Join(args, " "), "", private)
		if err != nil {
			return err
		}
		room, err := membership.GetRoom(ctx, id)
		if err != nil {
			return err
		}
		c.ok("room %s created, invite code %s", id, room.InviteCode)
		return nil
	case "/join":
		result, err := membership.JoinWithCode(ctx, rest)
		if err != nil {
			return err
		}
		c.ok("%s: %s", result.RoomID, result.Outcome)
		return nil
	case "/search":
		rooms, err := membership.SearchRooms(ctx, rest)
		if err != nil {
			return err
		}
		for _, room := range rooms {
			fmt.Fprintf(c.out, "%s  %s  %d members\n", room.ID, room.Name, room.MemberCount)
		}
		return nil
	case "/rooms":
		session, err := c.session()
		if err != nil {
			return err
		}
		for _, summary := range session.Rooms() {
			marker := " "
			if summary.IsOpen {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %s  %s  unread %d\n", marker, summary.Room.ID, summary.Room.Name, summary.UnreadCount)
		}
		return nil
	case "/open":
		session, err := c.session()
		if err != nil {
			return err
		}
		return session.OpenRoom(ctx, domain.RoomID(rest))
	case "/close":
		session, err := c.session()
		if err != nil {
			return err
		}
		return session.CloseRoom(ctx)
	case "/leave":
		session, room, err := c.openRoom()
		if err != nil {
			return err
		}
		if err = membership.LeaveRoom(ctx, room); err != nil {
			return err
		}
		return session.CloseRoom(ctx)
	case "/members":
		_, room, err := c.openRoom()
		if err != nil {
			return err
		}
		members, err := membership.Members(ctx, room)
		if err != nil {
			return err
		}
		for _, member := range members {
			state := "offline"
			if member.IsOnline {
				state = color.Green.Sprint("online")
			}
			role := ""
			if member.IsAdmin {
				role = " admin"
			}
			fmt.Fprintf(c.out, "%s  %s  %s%s\n", member.ID, member.DisplayName, state, role)
		}
		return nil
	case "/approve":
		_, room, err := c.openRoom()
		if err != nil {
			return err
		}
		if len(args) != 2 {
			return fmt.Errorf("%w: /approve <request id> <user id>", errors.ErrValidation)
		}
		return membership.ApproveJoinRequest(ctx, room, domain.JoinRequestID(args[0]), domain.UserID(args[1]))
	case "/reject":
		_, room, err := c.openRoom()
		if err != nil {
			return err
		}
		return membership.RejectJoinRequest(ctx, room, domain.JoinRequestID(rest))
	case "/promote", "/demote", "/remove":
		_, room, err := c.openRoom()
		if err != nil {
			return err
		}
		user := domain.UserID(rest)
		switch command {
		case "/promote":
			return membership.PromoteToAdmin(ctx, room, user)
		case "/demote":
			return membership.DemoteAdmin(ctx, room, user)
		default:
			return membership.RemoveMember(ctx, room, user)
		}
	case "/adminonly", "/private":
		_, room, err := c.openRoom()
		if err != nil {
			return err
		}
		enabled := rest == "on"
		if command == "/adminonly" {
			return membership.SetAdminOnlyChat(ctx, room, enabled)
		}
		return membership.SetPrivate(ctx, room, enabled)
	default:
		return fmt.Errorf("%w: unknown command %s", errors.ErrValidation, command)
	}
}

func (c *console) signIn(token string) error {
	identity, err := c.identity.SignIn(token)
	if err != nil {
		return err
	}
	c.ok("signed in as %s", identity.DisplayName)
	return nil
}

func (c *console) send(ctx context.Context, text string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	if err = session.SetDraft(ctx, text); err != nil {
		return err
	}
	_, err = session.Send(ctx)
	return err
}

func (c *console) ok(format string, args ...any) {
	fmt.Fprintln(c.out, color.Green.Sprintf(format, args...))
}
