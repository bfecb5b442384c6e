package soulseek

import (
	"context"
	"fmt"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
)

// JoinRoom joins room; subsequent RoomMessageReceived/RoomUserJoined/
// RoomUserLeft events for it are delivered through the Event stream (spec
// §6 "Room*" events).
func (c *Client) JoinRoom(room string) error {
	if !c.State().Has(StateLoggedIn) {
		return NewError("JoinRoom", KindInvalidState, fmt.Errorf("not logged in"))
	}
	if err := c.sess.SendJoinRoom(room); err != nil {
		return NewError("JoinRoom", KindConnection, err)
	}
	return nil
}

// LeaveRoom leaves room.
func (c *Client) LeaveRoom(room string) error {
	if !c.State().Has(StateLoggedIn) {
		return NewError("LeaveRoom", KindInvalidState, fmt.Errorf("not logged in"))
	}
	if err := c.sess.SendLeaveRoom(room); err != nil {
		return NewError("LeaveRoom", KindConnection, err)
	}
	return nil
}

// SendRoomMessage posts text to room.
func (c *Client) SendRoomMessage(room, text string) error {
	if !c.State().Has(StateLoggedIn) {
		return NewError("SendRoomMessage", KindInvalidState, fmt.Errorf("not logged in"))
	}
	if err := c.sess.SendRoomMessage(room, text); err != nil {
		return NewError("SendRoomMessage", KindConnection, err)
	}
	return nil
}

// Rooms returns the server's current public room list.
func (c *Client) Rooms(ctx context.Context) ([]RoomInfo, error) {
	if !c.State().Has(StateLoggedIn) {
		return nil, NewError("Rooms", KindInvalidState, fmt.Errorf("not logged in"))
	}
	fut, err := c.sess.RequestRoomList()
	if err != nil {
		return nil, NewError("Rooms", KindConnection, err)
	}
	respAny, err := fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	resp := respAny.(messages.RoomListResponse)
	out := make([]RoomInfo, len(resp.Rooms))
	for i, r := range resp.Rooms {
		out[i] = RoomInfo{Name: r.Name, UserCount: int(r.UserCount)}
	}
	return out, nil
}

// RoomInfo is one entry in the public room list (spec §6 "Room* events").
type RoomInfo struct {
	Name      string
	UserCount int
}
