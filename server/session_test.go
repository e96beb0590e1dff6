package main

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/axischat/axis/server/store"
	"github.com/axischat/axis/server/store/types"
)

// fakeUsers is a minimal store.Users replacement recording presence writes.
type fakeUsers struct {
	sync.Mutex

	// Presence values written, in order.
	presLog []types.Presence
	// Peers reported for every user.
	peers []types.Uid
	// When set, presence writes fail with this error.
	presErr error
}

func (f *fakeUsers) Create(user *types.User) (*types.User, error) { return user, nil }
func (f *fakeUsers) Get(uid types.Uid) (*types.User, error) {
	user := &types.User{State: types.StateOK}
	user.SetUid(uid)
	return user, nil
}
func (f *fakeUsers) GetAll(uid ...types.Uid) ([]types.User, error)    { return nil, nil }
func (f *fakeUsers) Update(uid types.Uid, upd map[string]any) error   { return nil }
func (f *fakeUsers) Delete(uid types.Uid, hard bool) error            { return nil }
func (f *fakeUsers) InviteFriend(from, to types.Uid) (*types.User, error) {
	return nil, nil
}
func (f *fakeUsers) AcceptInvite(accepter, inviter types.Uid) (*types.User, error) {
	return &types.User{}, nil
}
func (f *fakeUsers) RejectInvite(accepter, inviter types.Uid) error { return nil }
func (f *fakeUsers) WithdrawInvite(from, to types.Uid) error        { return nil }
func (f *fakeUsers) RemoveFriend(a, b types.Uid) (*types.User, error) {
	return &types.User{}, nil
}
func (f *fakeUsers) UpdateFriends(uid types.Uid, action string, friends []types.Uid) (types.UidSlice, error) {
	return nil, nil
}
func (f *fakeUsers) UpdateMembership(uid types.Uid, delta *types.MemberDelta) (*types.User, error) {
	return &types.User{}, nil
}
func (f *fakeUsers) RelatedServers(uid types.Uid) ([]types.Server, error)   { return nil, nil }
func (f *fakeUsers) RelatedChannels(uid types.Uid) ([]types.Channel, error) { return nil, nil }

func (f *fakeUsers) UpdatePresence(uid types.Uid, what types.Presence) error {
	f.Lock()
	defer f.Unlock()
	if f.presErr != nil {
		return f.presErr
	}
	f.presLog = append(f.presLog, what)
	return nil
}

func (f *fakeUsers) PresencePeers(uid types.Uid) ([]types.Uid, error) {
	f.Lock()
	defer f.Unlock()
	return append([]types.Uid{}, f.peers...), nil
}

func (f *fakeUsers) presenceLog() []types.Presence {
	f.Lock()
	defer f.Unlock()
	return append([]types.Presence{}, f.presLog...)
}

// installFakeUsers swaps the store.Users anchor for the test's duration.
func installFakeUsers(t *testing.T, f *fakeUsers) {
	t.Helper()
	prev := store.Users
	store.Users = f
	t.Cleanup(func() { store.Users = prev })
}

func newTestRig(t *testing.T, f *fakeUsers) *SessionStore {
	t.Helper()
	installFakeUsers(t, f)

	ss := NewSessionStore()
	hub := newHub(ss)
	tracker := newPresenceTracker(hub)
	ss.Wire(hub, tracker)
	return ss
}

// readMessage pops one serialized message off a session's send queue.
func readMessage(t *testing.T, s *Session, timeout time.Duration) *ServerComMessage {
	t.Helper()
	select {
	case raw := <-s.send:
		var msg ServerComMessage
		if err := json.Unmarshal(raw.([]byte), &msg); err != nil {
			t.Fatalf("malformed message on send queue: %v", err)
		}
		return &msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func TestSessionStorePresenceTransitions(t *testing.T) {
	uid := types.Uid(42)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	// First session comes online.
	s1, count := ss.NewSession(nil, "s1", uid)
	if count != 1 {
		t.Errorf("want 1 live session, got %d", count)
	}
	// Second session: no new transition.
	s2, _ := ss.NewSession(nil, "s2", uid)

	if got := f.presenceLog(); len(got) != 1 || got[0] != types.PresenceOnline {
		t.Errorf("after two registrations want exactly [online], got %v", got)
	}
	if !ss.IsOnline(uid) {
		t.Error("user with live sessions reported offline")
	}

	// Dropping one of two sessions is not a transition.
	ss.Delete(s1)
	if got := f.presenceLog(); len(got) != 1 {
		t.Errorf("after partial disconnect want no new transitions, got %v", got)
	}

	// Dropping the last session takes the user offline.
	ss.Delete(s2)
	if got := f.presenceLog(); len(got) != 2 || got[1] != types.PresenceOffline {
		t.Errorf("after full disconnect want [online offline], got %v", got)
	}
	if ss.IsOnline(uid) {
		t.Error("user without sessions reported online")
	}
}

func TestPresencePersistFailureIsNonFatal(t *testing.T) {
	uid := types.Uid(43)
	f := &fakeUsers{presErr: types.ErrUnavailable}
	ss := newTestRig(t, f)

	// Registration must survive the storage failure.
	s, _ := ss.NewSession(nil, "s1", uid)
	if !ss.IsOnline(uid) {
		t.Error("registry must treat the user as online despite the failed write")
	}
	ss.Delete(s)
}

func TestPresenceFanOut(t *testing.T) {
	uidA, uidB := types.Uid(44), types.Uid(45)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	// B is connected and interested in A.
	sb, _ := ss.NewSession(nil, "sb", uidB)
	drainSend(sb)

	f.Lock()
	f.peers = []types.Uid{uidB}
	f.Unlock()

	sa, _ := ss.NewSession(nil, "sa", uidA)

	msg := readMessage(t, sb, time.Second)
	if msg.Pres == nil {
		t.Fatalf("want a {pres} notification, got %+v", msg)
	}
	if msg.Pres.What != "on" || msg.Pres.Src != uidA.UserId() {
		t.Errorf("want {pres on %s}, got {%s %s}", uidA.UserId(), msg.Pres.What, msg.Pres.Src)
	}

	ss.Delete(sa)
	msg = readMessage(t, sb, time.Second)
	if msg.Pres == nil || msg.Pres.What != "off" {
		t.Errorf("want a {pres off} notification, got %+v", msg)
	}
}

func TestEvictUser(t *testing.T) {
	uid := types.Uid(46)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s1, _ := ss.NewSession(nil, "s1", uid)
	s2, _ := ss.NewSession(nil, "s2", uid)
	s3, _ := ss.NewSession(nil, "s3", uid)

	ss.EvictUser(uid, "s2")

	for _, s := range []*Session{s1, s3} {
		select {
		case <-s.stop:
		default:
			t.Errorf("session %s was not told to stop", s.sid)
		}
	}
	select {
	case <-s2.stop:
		t.Error("the kept session must not be stopped")
	default:
	}
}

func TestSessionsForUser(t *testing.T) {
	uid := types.Uid(47)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	ss.NewSession(nil, "s1", uid)
	ss.NewSession(nil, "s2", uid)
	ss.NewSession(nil, "other", types.Uid(48))

	if got := len(ss.SessionsForUser(uid)); got != 2 {
		t.Errorf("want 2 sessions, got %d", got)
	}
	if got := ss.OnlineUsers([]types.Uid{uid, types.Uid(999)}); len(got) != 1 || got[0] != uid {
		t.Errorf("OnlineUsers mismatch: %v", got)
	}
}

func TestDispatchRequiresHandshake(t *testing.T) {
	uid := types.Uid(49)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s, _ := ss.NewSession(nil, "s1", uid)

	s.dispatchRaw([]byte(`{"friend":{"what":"list"}}`))
	msg := readMessage(t, s, time.Second)
	if msg.Ctrl == nil || msg.Ctrl.Code != 400 {
		t.Errorf("message before {hi}: want ctrl 400, got %+v", msg)
	}
}

func TestDispatchMalformed(t *testing.T) {
	uid := types.Uid(50)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s, _ := ss.NewSession(nil, "s1", uid)

	s.dispatchRaw([]byte(`this is not json`))
	msg := readMessage(t, s, time.Second)
	if msg.Ctrl == nil || msg.Ctrl.Code != 400 {
		t.Errorf("malformed input: want ctrl 400, got %+v", msg)
	}
}

func TestHello(t *testing.T) {
	uid := types.Uid(51)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s, _ := ss.NewSession(nil, "s1", uid)

	s.dispatchRaw([]byte(`{"hi":{"id":"1","ver":"` + currentVersion + `","ua":"test/1.0"}}`))
	msg := readMessage(t, s, time.Second)
	if msg.Ctrl == nil || msg.Ctrl.Code != 200 {
		t.Fatalf("handshake: want ctrl 200, got %+v", msg)
	}
	if s.ver == 0 {
		t.Error("session version not recorded")
	}
	if s.userAgent != "test/1.0" {
		t.Errorf("user agent not recorded: %q", s.userAgent)
	}
}

func TestHelloVersionTooOld(t *testing.T) {
	uid := types.Uid(52)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s, _ := ss.NewSession(nil, "s1", uid)

	s.dispatchRaw([]byte(`{"hi":{"id":"1","ver":"0.0"}}`))
	msg := readMessage(t, s, time.Second)
	if msg.Ctrl == nil || msg.Ctrl.Code != 400 {
		t.Errorf("unparsable version: want ctrl 400, got %+v", msg)
	}
}

func TestFriendOpNotifiesCounterparty(t *testing.T) {
	uidA, uidB := types.Uid(53), types.Uid(54)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	sa, _ := ss.NewSession(nil, "sa", uidA)
	sb, _ := ss.NewSession(nil, "sb", uidB)
	sa.ver = parseVersion(currentVersion)
	drainSend(sb)

	sa.dispatchRaw([]byte(`{"friend":{"id":"1","what":"invite","user":"` + uidB.UserId() + `"}}`))

	msg := readMessage(t, sa, time.Second)
	if msg.Ctrl == nil || msg.Ctrl.Code != 200 {
		t.Fatalf("invite: want ctrl 200, got %+v", msg)
	}

	note := readMessage(t, sb, time.Second)
	if note.Friend == nil || note.Friend.What != "invited" || note.Friend.Actor != uidA.UserId() {
		t.Errorf("counterparty notification mismatch: %+v", note)
	}
}

func TestFriendSelfTargetingRejected(t *testing.T) {
	uid := types.Uid(55)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s, _ := ss.NewSession(nil, "s1", uid)
	s.ver = parseVersion(currentVersion)

	for _, what := range []string{"invite", "accept", "reject", "remove"} {
		s.dispatchRaw([]byte(`{"friend":{"id":"1","what":"` + what + `","user":"` + uid.UserId() + `"}}`))
		msg := readMessage(t, s, time.Second)
		if msg.Ctrl == nil || msg.Ctrl.Code != 422 {
			t.Errorf("self-targeting %s: want ctrl 422, got %+v", what, msg)
		}
	}
}

func TestEvictUserSkipsStalledSession(t *testing.T) {
	uid := types.Uid(56)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s1, _ := ss.NewSession(nil, "s1", uid)
	s2, _ := ss.NewSession(nil, "s2", uid)

	// A session whose write loop already died leaves its stop buffer full.
	s1.stop <- []byte("stale")

	done := make(chan struct{})
	go func() {
		ss.EvictUser(uid, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EvictUser blocked on a stalled session")
	}

	select {
	case <-s2.stop:
	default:
		t.Error("the healthy session was not told to stop")
	}
}

func TestLogoutForcesOffline(t *testing.T) {
	uid := types.Uid(57)
	f := &fakeUsers{}
	ss := newTestRig(t, f)

	s1, _ := ss.NewSession(nil, "s1", uid)
	s2, _ := ss.NewSession(nil, "s2", uid)
	s1.ver = parseVersion(currentVersion)

	s1.dispatchRaw([]byte(`{"logout":{"id":"1"}}`))

	msg := readMessage(t, s1, time.Second)
	if msg.Ctrl == nil || msg.Ctrl.Code != 200 {
		t.Fatalf("logout: want ctrl 200, got %+v", msg)
	}

	// Both sessions are told to stop: the other one by eviction, the
	// caller by its own handler.
	for _, s := range []*Session{s1, s2} {
		select {
		case <-s.stop:
		default:
			t.Errorf("session %s was not told to stop", s.sid)
		}
	}

	// Read loops unregister their sessions on the way out.
	s2.cleanUp()
	s1.cleanUp()

	if got := f.presenceLog(); len(got) != 2 || got[1] != types.PresenceOffline {
		t.Errorf("after logout want [online offline], got %v", got)
	}
	if ss.IsOnline(uid) {
		t.Error("user reported online after logout")
	}
}

// drainSend discards everything currently queued on the session.
func drainSend(s *Session) {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}
