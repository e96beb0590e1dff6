package store

import (
	"encoding/json"
	"sort"

	"github.com/axischat/axis/server/store/types"
)

// fakeAdapter is an in-memory Adapter implementation with the same set
// semantics as the real one: relationship mutations are unions and
// differences recomputed against the stored record. It also counts calls per
// method so tests can assert on the number of round trips.
type fakeAdapter struct {
	users    map[types.Uid]*types.User
	servers  map[string]*types.Server
	channels map[string]*types.Channel
	calls    map[string]int

	// When set, presence writes fail with this error.
	failWith error
	// When positive, the Nth and later UserRelUpdate calls fail with
	// ErrUnavailable. Used to exercise partial dual-write failures.
	relFailAt int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		users:    make(map[types.Uid]*types.User),
		servers:  make(map[string]*types.Server),
		channels: make(map[string]*types.Channel),
		calls:    make(map[string]int),
	}
}

func (f *fakeAdapter) Open(config json.RawMessage) error { return nil }
func (f *fakeAdapter) Close() error                      { return nil }
func (f *fakeAdapter) IsOpen() bool                      { return true }
func (f *fakeAdapter) GetDbVersion() (int, error)        { return 100, nil }
func (f *fakeAdapter) CheckDbVersion() error             { return nil }
func (f *fakeAdapter) GetName() string                   { return "fake" }
func (f *fakeAdapter) SetMaxResults(val int) error       { return nil }
func (f *fakeAdapter) CreateDb(reset bool) error         { return nil }
func (f *fakeAdapter) Version() int                      { return 100 }
func (f *fakeAdapter) Stats() any                        { return nil }

func cloneUser(u *types.User) *types.User {
	c := *u
	c.Friends = append(types.UidSlice{}, u.Friends...)
	c.InvitesTo = append(types.UidSlice{}, u.InvitesTo...)
	c.InvitesFrom = append(types.UidSlice{}, u.InvitesFrom...)
	c.JoinedChannels = append([]string{}, u.JoinedChannels...)
	c.ChannelInvites = append([]string{}, u.ChannelInvites...)
	return &c
}

func (f *fakeAdapter) UserCreate(user *types.User) error {
	f.calls["UserCreate"]++
	if _, ok := f.users[user.Uid()]; ok {
		return types.ErrDuplicate
	}
	f.users[user.Uid()] = cloneUser(user)
	return nil
}

func (f *fakeAdapter) UserGet(uid types.Uid) (*types.User, error) {
	f.calls["UserGet"]++
	u, ok := f.users[uid]
	if !ok || u.State == types.StateDeleted {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (f *fakeAdapter) UserGetAll(ids ...types.Uid) ([]types.User, error) {
	f.calls["UserGetAll"]++
	var out []types.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok && u.State != types.StateDeleted {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (f *fakeAdapter) UserUpdate(uid types.Uid, update map[string]any) error {
	f.calls["UserUpdate"]++
	u, ok := f.users[uid]
	if !ok {
		return types.ErrNotFound
	}
	if public, ok := update["Public"]; ok {
		u.Public = public
	}
	if state, ok := update["State"]; ok {
		u.State = state.(types.ObjState)
	}
	u.UpdatedAt = types.TimeNow()
	return nil
}

func (f *fakeAdapter) UserDelete(uid types.Uid, hard bool) error {
	f.calls["UserDelete"]++
	u, ok := f.users[uid]
	if !ok {
		return types.ErrNotFound
	}
	if hard {
		delete(f.users, uid)
	} else {
		u.State = types.StateDeleted
	}
	return nil
}

func (f *fakeAdapter) UserRelUpdate(uid types.Uid, delta *types.RelDelta) (*types.User, error) {
	f.calls["UserRelUpdate"]++
	if f.relFailAt > 0 && f.calls["UserRelUpdate"] >= f.relFailAt {
		return nil, types.ErrUnavailable
	}
	u, ok := f.users[uid]
	if !ok || u.State == types.StateDeleted {
		return nil, types.ErrNotFound
	}

	for _, id := range delta.FriendsAdd {
		u.Friends.Add(id)
	}
	for _, id := range delta.FriendsRem {
		u.Friends.Rem(id)
	}
	for _, id := range delta.InvitesToAdd {
		u.InvitesTo.Add(id)
	}
	for _, id := range delta.InvitesToRem {
		u.InvitesTo.Rem(id)
	}
	for _, id := range delta.InvitesFromAdd {
		u.InvitesFrom.Add(id)
	}
	for _, id := range delta.InvitesFromRem {
		u.InvitesFrom.Rem(id)
	}
	u.UpdatedAt = types.TimeNow()
	return cloneUser(u), nil
}

func strSetAdd(set []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, s := range set {
			if s == v {
				found = true
				break
			}
		}
		if !found {
			set = append(set, v)
		}
	}
	sort.Strings(set)
	return set
}

func strSetRem(set []string, vals ...string) []string {
	out := set[:0]
	for _, s := range set {
		keep := true
		for _, v := range vals {
			if s == v {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeAdapter) UserMembershipUpdate(uid types.Uid, delta *types.MemberDelta) (*types.User, error) {
	f.calls["UserMembershipUpdate"]++
	u, ok := f.users[uid]
	if !ok || u.State == types.StateDeleted {
		return nil, types.ErrNotFound
	}
	u.JoinedChannels = strSetAdd(u.JoinedChannels, delta.JoinedAdd...)
	u.JoinedChannels = strSetRem(u.JoinedChannels, delta.JoinedRem...)
	u.ChannelInvites = strSetAdd(u.ChannelInvites, delta.InvitedAdd...)
	u.ChannelInvites = strSetRem(u.ChannelInvites, delta.InvitedRem...)
	u.UpdatedAt = types.TimeNow()
	return cloneUser(u), nil
}

func (f *fakeAdapter) UserPresenceUpdate(uid types.Uid, presence types.Presence) error {
	f.calls["UserPresenceUpdate"]++
	if f.failWith != nil {
		return f.failWith
	}
	u, ok := f.users[uid]
	if !ok {
		return types.ErrNotFound
	}
	u.Presence = presence
	return nil
}

func (f *fakeAdapter) UserRefPurge(uid types.Uid) error {
	f.calls["UserRefPurge"]++
	for _, u := range f.users {
		u.Friends.Rem(uid)
		u.InvitesTo.Rem(uid)
		u.InvitesFrom.Rem(uid)
	}
	return nil
}

func (f *fakeAdapter) UsersForChannels(chnIds ...string) ([]types.Uid, error) {
	f.calls["UsersForChannels"]++
	var out []types.Uid
	for _, u := range f.users {
		if u.State == types.StateDeleted {
			continue
		}
		for _, joined := range u.JoinedChannels {
			found := false
			for _, id := range chnIds {
				if joined == id {
					found = true
					break
				}
			}
			if found {
				out = append(out, u.Uid())
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAdapter) ServerCreate(srv *types.Server) error {
	f.calls["ServerCreate"]++
	if _, ok := f.servers[srv.Id]; ok {
		return types.ErrDuplicate
	}
	cp := *srv
	f.servers[srv.Id] = &cp
	return nil
}

func (f *fakeAdapter) ServerGet(id string) (*types.Server, error) {
	f.calls["ServerGet"]++
	srv, ok := f.servers[id]
	if !ok {
		return nil, nil
	}
	cp := *srv
	return &cp, nil
}

func (f *fakeAdapter) ServerGetAll(ids ...string) ([]types.Server, error) {
	f.calls["ServerGetAll"]++
	var out []types.Server
	for _, id := range ids {
		if srv, ok := f.servers[id]; ok {
			out = append(out, *srv)
		}
	}
	return out, nil
}

func (f *fakeAdapter) ServersForOwner(uid types.Uid) ([]types.Server, error) {
	f.calls["ServersForOwner"]++
	var out []types.Server
	for _, srv := range f.servers {
		if srv.Owner == uid.String() {
			out = append(out, *srv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (f *fakeAdapter) ServerDelete(id string) error {
	f.calls["ServerDelete"]++
	delete(f.servers, id)
	for chid, ch := range f.channels {
		if ch.ServerId == id {
			delete(f.channels, chid)
		}
	}
	return nil
}

func (f *fakeAdapter) ChannelCreate(ch *types.Channel) error {
	f.calls["ChannelCreate"]++
	if _, ok := f.channels[ch.Id]; ok {
		return types.ErrDuplicate
	}
	cp := *ch
	f.channels[ch.Id] = &cp
	return nil
}

func (f *fakeAdapter) ChannelGet(id string) (*types.Channel, error) {
	f.calls["ChannelGet"]++
	ch, ok := f.channels[id]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeAdapter) ChannelGetAll(ids ...string) ([]types.Channel, error) {
	f.calls["ChannelGetAll"]++
	var out []types.Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeAdapter) ChannelsForServers(serverIds ...string) ([]types.Channel, error) {
	f.calls["ChannelsForServers"]++
	var out []types.Channel
	for _, ch := range f.channels {
		for _, id := range serverIds {
			if ch.ServerId == id {
				out = append(out, *ch)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (f *fakeAdapter) ChannelDelete(id string) error {
	f.calls["ChannelDelete"]++
	delete(f.channels, id)
	return nil
}
