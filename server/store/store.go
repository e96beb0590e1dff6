// Package store provides methods for registering and accessing database adapters.
package store

import (
	"encoding/json"
	"errors"

	adapter "github.com/axischat/axis/server/db"
	"github.com/axischat/axis/server/logs"
	"github.com/axischat/axis/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)

// Unique ID generator.
var uGen types.UidGenerator

type configType struct {
	// 16-byte key for XTEA. Used to initialize types.UidGenerator.
	UidKey []byte `json:"uid_key"`
	// Maximum number of results to return from adapter.
	MaxResults int `json:"max_results"`
	// DB adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

func openAdapter(workerId int, jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error() + "(" + string(jsonconf) + ")")
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only entry in availableAdapters.
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return errors.New("store: db adapter is not specified. Please set `store_config.use_adapter` in the config file")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	// Initialize snowflake.
	if workerId < 0 || workerId > 1023 {
		return errors.New("store: invalid worker ID")
	}

	if err := uGen.Init(uint(workerId), config.UidKey); err != nil {
		return errors.New("store: failed to init snowflake: " + err.Error())
	}

	if err := adp.SetMaxResults(config.MaxResults); err != nil {
		return err
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// PersistentStorageInterface defines methods used for interaction with persistent storage.
type PersistentStorageInterface interface {
	Open(workerId int, jsonconf json.RawMessage) error
	Close() error
	IsOpen() bool
	GetAdapterName() string
	GetAdapterVersion() int
	GetDbVersion() int
	InitDb(jsonconf json.RawMessage, reset bool) error
	GetUid() types.Uid
	GetUidString() string
	DbStats() func() any
}

// Store is the main object for interacting with persistent storage.
var Store PersistentStorageInterface = storeObj{}

type storeObj struct{}

// Open initializes the persistence system. Adapter holds a connection pool for a database instance.
//
//	workerId - id of this process to initialize snowflake
//	jsonconf - configuration string
func (storeObj) Open(workerId int, jsonconf json.RawMessage) error {
	if err := openAdapter(workerId, jsonconf); err != nil {
		return err
	}

	return adp.CheckDbVersion()
}

// Close terminates connection to persistent storage.
func (storeObj) Close() error {
	if adp.IsOpen() {
		return adp.Close()
	}

	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func (storeObj) IsOpen() bool {
	if adp != nil {
		return adp.IsOpen()
	}

	return false
}

// GetAdapterName returns the name of the current adapter.
func (storeObj) GetAdapterName() string {
	if adp != nil {
		return adp.GetName()
	}

	return ""
}

// GetAdapterVersion returns version of the current adapter.
func (storeObj) GetAdapterVersion() int {
	if adp != nil {
		return adp.Version()
	}

	return -1
}

// GetDbVersion returns version of the underlying database.
func (storeObj) GetDbVersion() int {
	if adp != nil {
		vers, _ := adp.GetDbVersion()
		return vers
	}

	return -1
}

// InitDb creates and configures a new database instance. If 'reset' is true it will first
// attempt to drop an existing database. If jsonconf is nil it will assume that the adapter
// is already open. If it's non-nil and the adapter is not open, it will use the config
// string to open the adapter first.
func (s storeObj) InitDb(jsonconf json.RawMessage, reset bool) error {
	if !s.IsOpen() {
		if err := openAdapter(1, jsonconf); err != nil {
			return err
		}
	}
	return adp.CreateDb(reset)
}

// RegisterAdapter makes a persistence adapter available.
// If Register is called twice or if the adapter is nil, it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: Register adapter is nil")
	}

	adapterName := a.GetName()
	if _, ok := availableAdapters[adapterName]; ok {
		panic("store: adapter '" + adapterName + "' is already registered")
	}
	availableAdapters[adapterName] = a
}

// GetUid generates a unique ID suitable for use as a primary key.
func (storeObj) GetUid() types.Uid {
	return uGen.Get()
}

// GetUidString generates a unique ID as a string.
func (storeObj) GetUidString() string {
	return uGen.GetStr()
}

// DbStats returns a callback returning db connection stats object.
func (s storeObj) DbStats() func() any {
	if !s.IsOpen() {
		return nil
	}
	return func() any {
		return adp.Stats()
	}
}

// UsersPersistenceInterface is an interface which defines methods for
// persistent storage of user records and the relationship graph.
type UsersPersistenceInterface interface {
	Create(user *types.User) (*types.User, error)
	Get(uid types.Uid) (*types.User, error)
	GetAll(uid ...types.Uid) ([]types.User, error)
	Update(uid types.Uid, update map[string]any) error
	UpdatePresence(uid types.Uid, what types.Presence) error
	Delete(uid types.Uid, hard bool) error

	InviteFriend(from, to types.Uid) (*types.User, error)
	AcceptInvite(accepter, inviter types.Uid) (*types.User, error)
	RejectInvite(accepter, inviter types.Uid) error
	WithdrawInvite(from, to types.Uid) error
	RemoveFriend(a, bb types.Uid) (*types.User, error)
	UpdateFriends(uid types.Uid, action string, friends []types.Uid) (types.UidSlice, error)
	UpdateMembership(uid types.Uid, delta *types.MemberDelta) (*types.User, error)

	RelatedServers(uid types.Uid) ([]types.Server, error)
	RelatedChannels(uid types.Uid) ([]types.Channel, error)
	PresencePeers(uid types.Uid) ([]types.Uid, error)
}

// Users is the anchor for storing/retrieving User objects.
var Users UsersPersistenceInterface = usersMapper{}

type usersMapper struct{}

// Bulk friend update actions.
const (
	// FriendsActionAdd adds candidates to the friend set (set union).
	FriendsActionAdd = "add"
	// FriendsActionDelete removes candidates from the friend set (set difference).
	FriendsActionDelete = "delete"
)

// Create inserts a new user record.
func (usersMapper) Create(user *types.User) (*types.User, error) {
	if user.Uid().IsZero() {
		user.SetUid(Store.GetUid())
	}
	user.InitTimes()
	if user.Presence == "" {
		user.Presence = types.PresenceOffline
	}

	if err := adp.UserCreate(user); err != nil {
		return nil, err
	}

	return user, nil
}

// Get returns a user object for the given user id.
func (usersMapper) Get(uid types.Uid) (*types.User, error) {
	return adp.UserGet(uid)
}

// GetAll returns a slice of user objects for the given user ids.
func (usersMapper) GetAll(uid ...types.Uid) ([]types.User, error) {
	return adp.UserGetAll(uid...)
}

// Update applies direct-assign updates to the user record. Relationship
// sets are not updatable this way, use the graph operations instead.
func (usersMapper) Update(uid types.Uid, update map[string]any) error {
	update["UpdatedAt"] = types.TimeNow()
	return adp.UserUpdate(uid, update)
}

// UpdatePresence persists the user's availability. Best-effort: the caller
// treats a failure as non-fatal.
func (usersMapper) UpdatePresence(uid types.Uid, what types.Presence) error {
	return adp.UserPresenceUpdate(uid, what)
}

// Delete deletes the user record and removes the user's id from every other
// user's relationship sets. A document store has no cascading deletes, the
// referential cleanup is an explicit maintenance operation here.
func (usersMapper) Delete(uid types.Uid, hard bool) error {
	if err := adp.UserRefPurge(uid); err != nil {
		return err
	}
	return adp.UserDelete(uid, hard)
}

// InviteFriend creates a pending friendship invite from one user to another.
// Idempotent: re-inviting the same user is a no-op. Inviting self or an
// existing friend fails with ErrInvalidOperation.
func (usersMapper) InviteFriend(from, to types.Uid) (*types.User, error) {
	if from.IsZero() || to.IsZero() {
		return nil, types.ErrMalformed
	}
	if from == to {
		return nil, types.ErrInvalidOperation
	}

	users, err := adp.UserGetAll(from, to)
	if err != nil {
		return nil, err
	}
	if len(users) != 2 {
		return nil, types.ErrNotFound
	}

	sender := &users[0]
	if sender.Uid() != from {
		sender = &users[1]
	}
	if sender.Friends.Contains(to) {
		return nil, types.ErrInvalidOperation
	}

	// Two independent single-document writes. A failure of the second one
	// leaves a one-sided edge which is cleaned up by the next read-reconcile.
	upd, err := adp.UserRelUpdate(from, &types.RelDelta{InvitesToAdd: []types.Uid{to}})
	if err != nil {
		return nil, err
	}
	if _, err = adp.UserRelUpdate(to, &types.RelDelta{InvitesFromAdd: []types.Uid{from}}); err != nil {
		logs.Err.Println("store: invite reverse edge write failed, reconciliation needed:", from.String(), "->", to.String(), err)
		return nil, err
	}

	return upd, nil
}

// AcceptInvite converts a pending invite into a mutual friendship edge.
// Requires a pending invite from 'inviter' to 'accepter'; fails with
// ErrNotFound otherwise since acceptance without a pending invite indicates
// a stale or forged request.
func (usersMapper) AcceptInvite(accepter, inviter types.Uid) (*types.User, error) {
	if accepter.IsZero() || inviter.IsZero() {
		return nil, types.ErrMalformed
	}
	if accepter == inviter {
		return nil, types.ErrInvalidOperation
	}

	acc, err := adp.UserGet(accepter)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, types.ErrNotFound
	}
	if !acc.InvitesFrom.Contains(inviter) {
		return nil, types.ErrNotFound
	}

	inv, err := adp.UserGet(inviter)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		// The inviter's account is gone. Drop the dangling invite edge.
		if _, err = adp.UserRelUpdate(accepter, &types.RelDelta{InvitesFromRem: []types.Uid{inviter}}); err != nil {
			return nil, err
		}
		return nil, types.ErrNotFound
	}

	// Clear the invite pairing in both directions and add the friend edge,
	// one write per side.
	upd, err := adp.UserRelUpdate(accepter, &types.RelDelta{
		FriendsAdd:     []types.Uid{inviter},
		InvitesToRem:   []types.Uid{inviter},
		InvitesFromRem: []types.Uid{inviter}})
	if err != nil {
		return nil, err
	}
	if _, err = adp.UserRelUpdate(inviter, &types.RelDelta{
		FriendsAdd:     []types.Uid{accepter},
		InvitesToRem:   []types.Uid{accepter},
		InvitesFromRem: []types.Uid{accepter}}); err != nil {
		logs.Err.Println("store: accept reverse edge write failed, reconciliation needed:",
			accepter.String(), "<->", inviter.String(), err)
		return nil, err
	}

	return upd, nil
}

// RejectInvite removes a pending invite received by 'accepter' from
// 'inviter'. No-op if no such invite exists.
func (usersMapper) RejectInvite(accepter, inviter types.Uid) error {
	return clearInvitePair(inviter, accepter)
}

// WithdrawInvite removes a pending invite sent by 'from' to 'to'. No-op if
// no such invite exists.
func (usersMapper) WithdrawInvite(from, to types.Uid) error {
	return clearInvitePair(from, to)
}

// clearInvitePair removes the (sender.InvitesTo, receiver.InvitesFrom)
// pairing from both sides. The sender must exist; a missing receiver is
// treated as an already-deleted account and ignored.
func clearInvitePair(sender, receiver types.Uid) error {
	if sender.IsZero() || receiver.IsZero() {
		return types.ErrMalformed
	}

	if _, err := adp.UserRelUpdate(sender, &types.RelDelta{InvitesToRem: []types.Uid{receiver}}); err != nil {
		return err
	}
	if _, err := adp.UserRelUpdate(receiver, &types.RelDelta{InvitesFromRem: []types.Uid{sender}}); err != nil {
		if err == types.ErrNotFound {
			return nil
		}
		logs.Err.Println("store: invite cleanup reverse edge failed, reconciliation needed:",
			sender.String(), "->", receiver.String(), err)
		return err
	}
	return nil
}

// RemoveFriend removes the mutual friendship edge between two users. No-op
// if they are not currently friends.
func (usersMapper) RemoveFriend(a, bb types.Uid) (*types.User, error) {
	if a.IsZero() || bb.IsZero() {
		return nil, types.ErrMalformed
	}
	if a == bb {
		return nil, types.ErrInvalidOperation
	}

	upd, err := adp.UserRelUpdate(a, &types.RelDelta{FriendsRem: []types.Uid{bb}})
	if err != nil {
		return nil, err
	}
	if _, err = adp.UserRelUpdate(bb, &types.RelDelta{FriendsRem: []types.Uid{a}}); err != nil {
		if err == types.ErrNotFound {
			return upd, nil
		}
		logs.Err.Println("store: unfriend reverse edge failed, reconciliation needed:",
			a.String(), "<->", bb.String(), err)
		return nil, err
	}
	return upd, nil
}

// UpdateFriends performs the bulk friend update: action "add" computes the
// set union of the current friends and the candidates, action "delete" the
// set difference. Both sides of each edge are written to keep the friendship
// graph symmetric; reverse-edge failures are logged for reconciliation, they
// do not fail the request.
func (usersMapper) UpdateFriends(uid types.Uid, action string, friends []types.Uid) (types.UidSlice, error) {
	if uid.IsZero() {
		return nil, types.ErrMalformed
	}

	// Self-id and zero ids are silently dropped, duplicates collapse in the
	// set ops.
	var candidates []types.Uid
	for _, id := range friends {
		if !id.IsZero() && id != uid {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, types.ErrMalformed
	}

	var delta, reverse types.RelDelta
	switch action {
	case FriendsActionAdd:
		// Only link to accounts which actually exist.
		existing, err := adp.UserGetAll(candidates...)
		if err != nil {
			return nil, err
		}
		candidates = candidates[:0]
		for i := range existing {
			candidates = append(candidates, existing[i].Uid())
		}
		if len(candidates) == 0 {
			return nil, types.ErrNotFound
		}
		delta.FriendsAdd = candidates
		reverse.FriendsAdd = []types.Uid{uid}
	case FriendsActionDelete:
		delta.FriendsRem = candidates
		reverse.FriendsRem = []types.Uid{uid}
	default:
		return nil, types.ErrMalformed
	}

	upd, err := adp.UserRelUpdate(uid, &delta)
	if err != nil {
		return nil, err
	}

	for _, id := range candidates {
		if _, err := adp.UserRelUpdate(id, &reverse); err != nil && err != types.ErrNotFound {
			logs.Err.Println("store: bulk friend reverse edge failed, reconciliation needed:",
				uid.String(), "<->", id.String(), err)
		}
	}

	return upd.Friends, nil
}

// UpdateMembership applies a channel membership delta to the user.
func (usersMapper) UpdateMembership(uid types.Uid, delta *types.MemberDelta) (*types.User, error) {
	return adp.UserMembershipUpdate(uid, delta)
}

// RelatedServers returns the deduplicated list of servers visible to the
// user: servers reachable via pending channel invites first, then via
// joined channels, then directly owned. First occurrence wins so a user who
// both owns and is invited to the same server sees it once. Channels with a
// dangling server reference are silently excluded.
func (usersMapper) RelatedServers(uid types.Uid) ([]types.Server, error) {
	usr, err := adp.UserGet(uid)
	if err != nil {
		return nil, err
	}
	if usr == nil {
		return nil, types.ErrNotFound
	}

	// Invited channels sort before joined ones.
	chnIds := append(append([]string{}, usr.ChannelInvites...), usr.JoinedChannels...)

	var byChannel map[string]types.Channel
	if len(chnIds) > 0 {
		channels, err := adp.ChannelGetAll(chnIds...)
		if err != nil {
			return nil, err
		}
		byChannel = make(map[string]types.Channel, len(channels))
		for _, ch := range channels {
			byChannel[ch.Id] = ch
		}
	}

	var srvIds []string
	for _, id := range chnIds {
		if ch, ok := byChannel[id]; ok {
			srvIds = append(srvIds, ch.ServerId)
		}
	}

	var byServer map[string]types.Server
	if len(srvIds) > 0 {
		servers, err := adp.ServerGetAll(srvIds...)
		if err != nil {
			return nil, err
		}
		byServer = make(map[string]types.Server, len(servers))
		for _, srv := range servers {
			byServer[srv.Id] = srv
		}
	}

	owned, err := adp.ServersForOwner(uid)
	if err != nil {
		return nil, err
	}

	var result []types.Server
	seen := make(map[string]bool, len(srvIds)+len(owned))
	for _, id := range srvIds {
		srv, ok := byServer[id]
		if !ok || seen[id] {
			// Dangling reference or a later duplicate.
			continue
		}
		seen[id] = true
		result = append(result, srv)
	}
	for _, srv := range owned {
		if !seen[srv.Id] {
			seen[srv.Id] = true
			result = append(result, srv)
		}
	}

	return result, nil
}

// RelatedChannels returns the deduplicated union of channels the user is
// invited to or has joined plus all channels of servers the user owns. Both
// groups are fetched with a single set-membership query each so the
// operation takes two channel round trips regardless of graph size.
func (usersMapper) RelatedChannels(uid types.Uid) ([]types.Channel, error) {
	usr, err := adp.UserGet(uid)
	if err != nil {
		return nil, err
	}
	if usr == nil {
		return nil, types.ErrNotFound
	}

	var result []types.Channel
	seen := make(map[string]bool)

	chnIds := append(append([]string{}, usr.ChannelInvites...), usr.JoinedChannels...)
	if len(chnIds) > 0 {
		channels, err := adp.ChannelGetAll(chnIds...)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			if !seen[ch.Id] {
				seen[ch.Id] = true
				result = append(result, ch)
			}
		}
	}

	owned, err := adp.ServersForOwner(uid)
	if err != nil {
		return nil, err
	}
	if len(owned) > 0 {
		srvIds := make([]string, len(owned))
		for i := range owned {
			srvIds[i] = owned[i].Id
		}
		channels, err := adp.ChannelsForServers(srvIds...)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			if !seen[ch.Id] {
				seen[ch.Id] = true
				result = append(result, ch)
			}
		}
	}

	return result, nil
}

// PresencePeers returns the users who should learn about uid's presence
// changes: the user's friends plus members of the channels the user has
// joined. The user itself is excluded.
func (usersMapper) PresencePeers(uid types.Uid) ([]types.Uid, error) {
	usr, err := adp.UserGet(uid)
	if err != nil {
		return nil, err
	}
	if usr == nil {
		return nil, types.ErrNotFound
	}

	seen := make(map[types.Uid]bool, len(usr.Friends))
	peers := make([]types.Uid, 0, len(usr.Friends))
	for _, f := range usr.Friends {
		if !seen[f] {
			seen[f] = true
			peers = append(peers, f)
		}
	}

	if len(usr.JoinedChannels) > 0 {
		members, err := adp.UsersForChannels(usr.JoinedChannels...)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m != uid && !seen[m] {
				seen[m] = true
				peers = append(peers, m)
			}
		}
	}

	return peers, nil
}

// ServersPersistenceInterface is an interface which defines methods for
// persistent storage of server (community) records.
type ServersPersistenceInterface interface {
	Create(srv *types.Server) (*types.Server, error)
	Get(id string) (*types.Server, error)
	GetAll(ids ...string) ([]types.Server, error)
	ForOwner(uid types.Uid) ([]types.Server, error)
	Delete(id string) error
}

// Servers is the anchor for storing/retrieving Server objects.
var Servers ServersPersistenceInterface = serversMapper{}

type serversMapper struct{}

// Create inserts a new server record. The owner account must exist.
func (serversMapper) Create(srv *types.Server) (*types.Server, error) {
	owner := srv.GetOwner()
	if owner.IsZero() {
		return nil, types.ErrMalformed
	}
	usr, err := adp.UserGet(owner)
	if err != nil {
		return nil, err
	}
	if usr == nil {
		return nil, types.ErrNotFound
	}

	if srv.Id == "" {
		srv.Id = Store.GetUidString()
	}
	srv.InitTimes()
	if err := adp.ServerCreate(srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// Get returns a server record by id.
func (serversMapper) Get(id string) (*types.Server, error) {
	return adp.ServerGet(id)
}

// GetAll returns server records for the given ids.
func (serversMapper) GetAll(ids ...string) ([]types.Server, error) {
	return adp.ServerGetAll(ids...)
}

// ForOwner returns all servers owned by the given user.
func (serversMapper) ForOwner(uid types.Uid) ([]types.Server, error) {
	return adp.ServersForOwner(uid)
}

// Delete removes the server record and its channels.
func (serversMapper) Delete(id string) error {
	return adp.ServerDelete(id)
}

// ChannelsPersistenceInterface is an interface which defines methods for
// persistent storage of channel records and channel membership.
type ChannelsPersistenceInterface interface {
	Create(ch *types.Channel) (*types.Channel, error)
	Get(id string) (*types.Channel, error)
	GetAll(ids ...string) ([]types.Channel, error)
	ForServers(serverIds ...string) ([]types.Channel, error)
	Delete(id string) error

	Invite(uid types.Uid, chnId string) (*types.User, error)
	Join(uid types.Uid, chnId string) (*types.User, error)
	Leave(uid types.Uid, chnId string) (*types.User, error)
}

// Channels is the anchor for storing/retrieving Channel objects.
var Channels ChannelsPersistenceInterface = channelsMapper{}

type channelsMapper struct{}

// Create inserts a new channel record. The owning server must exist:
// orphaned channels are invalid.
func (channelsMapper) Create(ch *types.Channel) (*types.Channel, error) {
	if ch.ServerId == "" {
		return nil, types.ErrMalformed
	}
	srv, err := adp.ServerGet(ch.ServerId)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, types.ErrNotFound
	}

	if ch.Id == "" {
		ch.Id = Store.GetUidString()
	}
	ch.InitTimes()
	if err := adp.ChannelCreate(ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// Get returns a channel record by id.
func (channelsMapper) Get(id string) (*types.Channel, error) {
	return adp.ChannelGet(id)
}

// GetAll returns channel records for the given ids.
func (channelsMapper) GetAll(ids ...string) ([]types.Channel, error) {
	return adp.ChannelGetAll(ids...)
}

// ForServers returns all channels of the given servers.
func (channelsMapper) ForServers(serverIds ...string) ([]types.Channel, error) {
	return adp.ChannelsForServers(serverIds...)
}

// Delete removes the channel record.
func (channelsMapper) Delete(id string) error {
	return adp.ChannelDelete(id)
}

// Invite adds the channel to the user's pending membership invites.
func (m channelsMapper) Invite(uid types.Uid, chnId string) (*types.User, error) {
	if err := m.mustExist(chnId); err != nil {
		return nil, err
	}
	return adp.UserMembershipUpdate(uid, &types.MemberDelta{InvitedAdd: []string{chnId}})
}

// Join converts a pending membership invite into accepted membership. Also
// valid without an invite: joining an open channel directly.
func (m channelsMapper) Join(uid types.Uid, chnId string) (*types.User, error) {
	if err := m.mustExist(chnId); err != nil {
		return nil, err
	}
	return adp.UserMembershipUpdate(uid, &types.MemberDelta{
		JoinedAdd:  []string{chnId},
		InvitedRem: []string{chnId}})
}

// Leave removes the channel from both membership sets.
func (channelsMapper) Leave(uid types.Uid, chnId string) (*types.User, error) {
	return adp.UserMembershipUpdate(uid, &types.MemberDelta{
		JoinedRem:  []string{chnId},
		InvitedRem: []string{chnId}})
}

func (channelsMapper) mustExist(chnId string) error {
	ch, err := adp.ChannelGet(chnId)
	if err != nil {
		return err
	}
	if ch == nil {
		return types.ErrNotFound
	}
	return nil
}
