/******************************************************************************
 *
 *  Description :
 *
 *  Handling of user sessions/connections. One user may have multiple
 *  sessions, each session is a single websocket connection.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"time"

	"github.com/axischat/axis/server/logs"
	"github.com/axischat/axis/server/store"
	"github.com/axischat/axis/server/store/types"
	"github.com/gorilla/websocket"
)

// Maximum number of queued messages before the session is presumed stuck
// and dropped.
const sendQueueLimit = 128

// Session represents a single websocket connection. A user may have
// multiple sessions.
type Session struct {
	// Websocket connection.
	ws *websocket.Conn

	// IP address of the client.
	remoteAddr string

	// User agent, a string provided by the client in the {hi} packet.
	userAgent string

	// Protocol version of the client: ((major & 0xff) << 8) | (minor & 0xff).
	ver int

	// Device ID of the client.
	deviceID string
	// Human language of the client.
	lang string

	// ID of the user this session belongs to.
	uid types.Uid

	// Time when the session received any packet from the client.
	lastAction time.Time

	// Outbound messages, buffered.
	// The content must be serialized in a format suitable for the session.
	send chan any

	// Channel for shutting down the session, buffer 1.
	// Content in the same format as for 'send'.
	stop chan any

	// Session ID.
	sid string

	// Registry this session is stored in.
	store *SessionStore

	// Fan-out router for notifications this session generates.
	hub *Hub
}

// queueOut attempts to send a ServerComMessage to the session; if the send
// buffer is full, the message is dropped after a 50 usec wait.
func (s *Session) queueOut(msg *ServerComMessage) bool {
	if s == nil {
		return true
	}

	select {
	case s.send <- s.serialize(msg):
	case <-time.After(time.Microsecond * 50):
		logs.Warn.Println("s.queueOut: timeout", s.sid)
		return false
	}
	return true
}

// queueOutBytes attempts to send an already serialized message.
func (s *Session) queueOutBytes(data []byte) bool {
	if s == nil {
		return true
	}

	select {
	case s.send <- data:
	case <-time.After(time.Microsecond * 50):
		logs.Warn.Println("s.queueOutBytes: timeout", s.sid)
		return false
	}
	return true
}

func (s *Session) serialize(msg *ServerComMessage) any {
	out, _ := json.Marshal(msg)
	return out
}

func (s *Session) cleanUp() int {
	return s.store.Delete(s)
}

// Message received, convert bytes to ClientComMessage and dispatch.
func (s *Session) dispatchRaw(raw []byte) {
	var msg ClientComMessage

	toLog := raw
	truncated := ""
	if len(raw) > 512 {
		toLog = raw[:512]
		truncated = "<...>"
	}
	logs.Info.Printf("in: '%s%s' ip='%s' sid='%s' uid='%s'", toLog, truncated, s.remoteAddr, s.sid, s.uid.UserId())

	if err := json.Unmarshal(raw, &msg); err != nil {
		// Malformed message
		logs.Warn.Println("s.dispatch", err, s.sid)
		s.queueOut(ErrMalformed("", types.TimeNow()))
		return
	}

	s.dispatch(&msg)
}

func (s *Session) dispatch(msg *ClientComMessage) {
	s.lastAction = types.TimeNow()
	msg.Timestamp = s.lastAction

	// A {hi} must arrive before anything else.
	checkVers := func(m *ClientComMessage, handler func(*ClientComMessage)) func(*ClientComMessage) {
		return func(m *ClientComMessage) {
			if s.ver == 0 {
				s.queueOut(ErrMalformed(m.Id, m.Timestamp))
				logs.Warn.Println("s.dispatch: message before {hi}", s.sid)
				return
			}
			handler(m)
		}
	}

	var handler func(*ClientComMessage)

	switch {
	case msg.Hi != nil:
		handler = s.hello
		msg.Id = msg.Hi.Id

	case msg.Friend != nil:
		handler = checkVers(msg, s.friend)
		msg.Id = msg.Friend.Id

	case msg.Logout != nil:
		handler = checkVers(msg, s.logout)
		msg.Id = msg.Logout.Id

	default:
		// Unknown message
		s.queueOut(ErrMalformed("", msg.Timestamp))
		logs.Warn.Println("s.dispatch: unknown message", s.sid)
		return
	}

	handler(msg)
}

// Handshake.
func (s *Session) hello(msg *ClientComMessage) {
	if msg.Hi.Version == "" {
		s.queueOut(ErrMalformed(msg.Id, msg.Timestamp))
		return
	}

	ver := parseVersion(msg.Hi.Version)
	if ver == 0 {
		s.queueOut(ErrMalformed(msg.Id, msg.Timestamp))
		return
	}
	// Check version compatibility
	if versionCompare(ver, minSupportedVersionValue) < 0 {
		s.queueOut(ErrVersionNotSupported(msg.Id, msg.Timestamp))
		return
	}

	s.ver = ver
	s.userAgent = msg.Hi.UserAgent
	s.deviceID = msg.Hi.DeviceID
	s.lang = msg.Hi.Lang

	s.queueOut(NoErrParams(msg.Id, msg.Timestamp,
		map[string]any{"ver": currentVersion, "build": buildstamp, "sid": s.sid}))
}

// Friend graph mutation or query over the live transport.
func (s *Session) friend(msg *ClientComMessage) {
	if msg.Friend.What == constFriendList {
		user, err := store.Users.Get(s.uid)
		if err != nil {
			s.queueOut(decodeStoreError(err, msg.Id, msg.Timestamp))
			return
		}
		s.queueOut(NoErrParams(msg.Id, msg.Timestamp, map[string]any{
			"friends": uidsToUserIds(user.Friends),
			"invitesTo": uidsToUserIds(user.InvitesTo),
			"invitesFrom": uidsToUserIds(user.InvitesFrom)}))
		return
	}

	other := types.ParseUserId(msg.Friend.User)
	if other.IsZero() || other == s.uid {
		s.queueOut(ErrValidationFailed(msg.Id, msg.Timestamp))
		return
	}

	var err error
	var notify string
	switch msg.Friend.What {
	case constFriendInvite:
		_, err = store.Users.InviteFriend(s.uid, other)
		notify = "invited"
	case constFriendAccept:
		_, err = store.Users.AcceptInvite(s.uid, other)
		notify = "accepted"
	case constFriendReject:
		err = store.Users.RejectInvite(s.uid, other)
		notify = "rejected"
	case constFriendWithdraw:
		err = store.Users.WithdrawInvite(s.uid, other)
		notify = "withdrawn"
	case constFriendRemove:
		_, err = store.Users.RemoveFriend(s.uid, other)
		notify = "removed"
	default:
		s.queueOut(ErrValidationFailed(msg.Id, msg.Timestamp))
		return
	}

	if err != nil {
		s.queueOut(decodeStoreError(err, msg.Id, msg.Timestamp))
		return
	}

	s.queueOut(NoErr(msg.Id, msg.Timestamp))

	// Tell the counterparty, if connected.
	s.hub.route <- &ServerComMessage{
		Friend: &MsgServerFriend{
			What:   notify,
			Actor:  s.uid.UserId(),
			Target: other.UserId()},
		rcptTo:  []types.Uid{other},
		skipSid: s.sid}
}

// Logout forces the user Offline and evicts the user's other sessions.
func (s *Session) logout(msg *ClientComMessage) {
	uid := s.uid
	s.queueOut(NoErr(msg.Id, msg.Timestamp))

	s.store.EvictUser(uid, s.sid)
	select {
	case s.stop <- s.serialize(NoErrShutdown(msg.Timestamp)):
	default:
	}
}

func uidsToUserIds(uids types.UidSlice) []string {
	out := make([]string, len(uids))
	for i, uid := range uids {
		out[i] = uid.UserId()
	}
	return out
}
