/******************************************************************************
 *
 *  Description :
 *
 *  Presence tracking: reacting to connection-derived availability changes
 *  and spreading the word to interested parties.
 *
 *****************************************************************************/

package main

import (
	"github.com/axischat/axis/server/logs"
	"github.com/axischat/axis/server/store"
	"github.com/axischat/axis/server/store/types"
)

// presenceTracker converts session registry transitions into persisted
// presence records and notifications. Transitions are driven by the session
// registry only: the first live session makes a user Online, losing the last
// one makes the user Offline.
type presenceTracker struct {
	hub *Hub
}

func newPresenceTracker(hub *Hub) *presenceTracker {
	statsRegisterInt("PresenceOnlineTotal")
	statsRegisterInt("PresenceOfflineTotal")

	return &presenceTracker{hub: hub}
}

// userOnline is called when the user's first session registers.
func (pt *presenceTracker) userOnline(uid types.Uid) {
	statsInc("PresenceOnlineTotal", 1)
	pt.presenceChange(uid, types.PresenceOnline)
}

// userOffline is called when the user's last session unregisters.
func (pt *presenceTracker) userOffline(uid types.Uid) {
	statsInc("PresenceOfflineTotal", 1)
	pt.presenceChange(uid, types.PresenceOffline)
}

// presenceChange persists the new presence value and notifies the user's
// friends and channel co-members. The persisted record is advisory: a write
// failure is logged but does not block the notification fan-out, the session
// registry remains the authority on who is connected.
func (pt *presenceTracker) presenceChange(uid types.Uid, what types.Presence) {
	if err := store.Users.UpdatePresence(uid, what); err != nil {
		logs.Warn.Println("presence: failed to persist", what, "for", uid.UserId(), err)
	}

	peers, err := store.Users.PresencePeers(uid)
	if err != nil {
		logs.Warn.Println("presence: failed to load peers of", uid.UserId(), err)
		return
	}
	if len(peers) == 0 {
		return
	}

	wire := "on"
	if what == types.PresenceOffline {
		wire = "off"
	}

	pt.hub.route <- &ServerComMessage{
		Pres:   &MsgServerPres{What: wire, Src: uid.UserId()},
		rcptTo: peers}
}
