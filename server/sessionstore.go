/******************************************************************************
 *
 *  Description :
 *
 *  Management of live websocket sessions and the per-user connection index.
 *
 *****************************************************************************/

package main

import (
	"sync"
	"time"

	"github.com/axischat/axis/server/logs"
	"github.com/axischat/axis/server/store"
	"github.com/axischat/axis/server/store/types"
	"github.com/gorilla/websocket"
)

// SessionStore holds live sessions: a map indexed by session ID plus a
// reverse index from user ID to that user's sessions. All access goes
// through the store's lock; sessions never enumerate each other directly.
type SessionStore struct {
	lock sync.Mutex

	// All sessions indexed by session ID.
	sessCache map[string]*Session

	// Sessions of a single user, indexed by user ID.
	userCache map[types.Uid]map[*Session]struct{}

	// Presence transitions are reported here when a user's first session
	// registers or last session unregisters. Set once before the server
	// starts accepting connections.
	tracker *presenceTracker

	// Router handed to each new session for the notifications it generates.
	hub *Hub
}

// NewSessionStore initializes a session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessCache: make(map[string]*Session),
		userCache: make(map[types.Uid]map[*Session]struct{}),
	}
}

// Wire attaches the collaborators created after the registry: the fan-out
// router handed to new sessions and the tracker which receives first-session
// and last-session transitions. Must be called before the server starts
// accepting connections.
func (ss *SessionStore) Wire(hub *Hub, tracker *presenceTracker) {
	ss.hub = hub
	ss.tracker = tracker
}

// NewSession creates a new session for the given user and saves it to the
// session store. Returns the session and the total number of live sessions.
func (ss *SessionStore) NewSession(conn *websocket.Conn, sid string, uid types.Uid) (*Session, int) {
	var s Session

	s.sid = sid
	s.ws = conn
	s.uid = uid
	s.store = ss
	s.hub = ss.hub

	s.send = make(chan any, sendQueueLimit+32) // buffered
	s.stop = make(chan any, 1)                 // Buffered by 1 just to make it non-blocking

	s.lastAction = time.Now()
	if s.sid == "" {
		s.sid = store.Store.GetUidString()
	}

	ss.lock.Lock()
	ss.sessCache[s.sid] = &s
	count := len(ss.sessCache)

	first := false
	if !uid.IsZero() {
		usessions := ss.userCache[uid]
		if usessions == nil {
			usessions = make(map[*Session]struct{})
			ss.userCache[uid] = usessions
			first = true
		}
		usessions[&s] = struct{}{}
	}
	ss.lock.Unlock()

	statsSet("LiveSessions", int64(count))
	statsInc("TotalSessions", 1)

	if first && ss.tracker != nil {
		ss.tracker.userOnline(uid)
	}

	return &s, count
}

// Get fetches a session from the store by session ID.
func (ss *SessionStore) Get(sid string) *Session {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	return ss.sessCache[sid]
}

// Delete removes a session from the store. Returns the number of remaining
// sessions. When the session was the user's last one, the user's presence
// transitions to Offline.
func (ss *SessionStore) Delete(s *Session) int {
	ss.lock.Lock()

	delete(ss.sessCache, s.sid)
	count := len(ss.sessCache)

	last := false
	if !s.uid.IsZero() {
		if usessions := ss.userCache[s.uid]; usessions != nil {
			delete(usessions, s)
			if len(usessions) == 0 {
				delete(ss.userCache, s.uid)
				last = true
			}
		}
	}
	ss.lock.Unlock()

	statsSet("LiveSessions", int64(count))

	if last && ss.tracker != nil {
		ss.tracker.userOffline(s.uid)
	}

	return count
}

// SessionsForUser returns a snapshot of the user's live sessions.
func (ss *SessionStore) SessionsForUser(uid types.Uid) []*Session {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	usessions := ss.userCache[uid]
	if len(usessions) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(usessions))
	for s := range usessions {
		out = append(out, s)
	}
	return out
}

// IsOnline reports whether the user has at least one live session.
func (ss *SessionStore) IsOnline(uid types.Uid) bool {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	return len(ss.userCache[uid]) > 0
}

// OnlineUsers filters the given user IDs down to those with live sessions.
func (ss *SessionStore) OnlineUsers(uids []types.Uid) []types.Uid {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	var online []types.Uid
	for _, uid := range uids {
		if len(ss.userCache[uid]) > 0 {
			online = append(online, uid)
		}
	}
	return online
}

// EvictUser terminates all of the user's sessions, optionally keeping one.
// Used on logout and on account deletion.
func (ss *SessionStore) EvictUser(uid types.Uid, skipSid string) {
	ss.lock.Lock()
	var evicted []*Session
	for s := range ss.userCache[uid] {
		if s.sid != skipSid {
			evicted = append(evicted, s)
		}
	}
	ss.lock.Unlock()

	msg := NoErrShutdown(types.TimeNow())
	for _, s := range evicted {
		// The session may be half-dead already; don't wait on it.
		select {
		case s.stop <- s.serialize(msg):
		default:
		}
	}
}

// Shutdown terminates the session store. Each session is told to stop;
// its read loop will unregister it.
func (ss *SessionStore) Shutdown() {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	shutdown := NoErrShutdown(types.TimeNow())
	for _, s := range ss.sessCache {
		if s.stop != nil {
			select {
			case s.stop <- s.serialize(shutdown):
			default:
			}
		}
	}

	logs.Info.Printf("SessionStore shut down, sessions terminated: %d", len(ss.sessCache))
}
