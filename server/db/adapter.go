// Package adapter contains the interfaces to be implemented by the database adapter.
package adapter

import (
	"encoding/json"

	t "github.com/axischat/axis/server/store/types"
)

// Adapter is the interface that must be implemented by a database
// adapter. The current schema supports a single connection by database type.
type Adapter interface {
	// General

	// Open and configure the adapter.
	Open(config json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetDbVersion returns current database version.
	GetDbVersion() (int, error)
	// CheckDbVersion checks if the actual database version matches adapter version.
	CheckDbVersion() error
	// GetName returns the name of the adapter.
	GetName() string
	// SetMaxResults configures how many results can be returned in a single DB call.
	SetMaxResults(val int) error
	// CreateDb creates the database optionally dropping an existing database first.
	CreateDb(reset bool) error
	// Version returns adapter version.
	Version() int
	// Stats returns the DB connection stats object.
	Stats() any

	// User management

	// UserCreate creates user record.
	UserCreate(user *t.User) error
	// UserGet returns record for a given user ID. If the user is not found
	// the call returns (nil, nil).
	UserGet(uid t.Uid) (*t.User, error)
	// UserGetAll returns user records for a given list of user IDs.
	UserGetAll(ids ...t.Uid) ([]t.User, error)
	// UserUpdate updates user record with the given direct-assign fields.
	UserUpdate(uid t.Uid, update map[string]any) error
	// UserDelete deletes user record.
	UserDelete(uid t.Uid, hard bool) error

	// Relationship sets. Each call is a single-document read-modify-write:
	// additions are set unions, removals are set differences, both recomputed
	// from a freshly read record. Returns the record as written.

	// UserRelUpdate applies a relationship delta to one user.
	UserRelUpdate(uid t.Uid, delta *t.RelDelta) (*t.User, error)
	// UserMembershipUpdate applies a channel membership delta to one user.
	UserMembershipUpdate(uid t.Uid, delta *t.MemberDelta) (*t.User, error)
	// UserPresenceUpdate persists the user's presence value.
	UserPresenceUpdate(uid t.Uid, presence t.Presence) error
	// UserRefPurge removes uid from every other user's friendship and invite
	// sets. Used for referential cleanup on account deletion.
	UserRefPurge(uid t.Uid) error
	// UsersForChannels returns IDs of users who joined any of the given
	// channels.
	UsersForChannels(chnIds ...string) ([]t.Uid, error)

	// Server (community) management

	// ServerCreate creates a server record.
	ServerCreate(srv *t.Server) error
	// ServerGet returns a server record by id, (nil, nil) if not found.
	ServerGet(id string) (*t.Server, error)
	// ServerGetAll returns server records for the given ids, misses skipped.
	ServerGetAll(ids ...string) ([]t.Server, error)
	// ServersForOwner returns all servers directly owned by the given user.
	ServersForOwner(uid t.Uid) ([]t.Server, error)
	// ServerDelete deletes a server record and its channels.
	ServerDelete(id string) error

	// Channel management

	// ChannelCreate creates a channel record.
	ChannelCreate(ch *t.Channel) error
	// ChannelGet returns a channel record by id, (nil, nil) if not found.
	ChannelGet(id string) (*t.Channel, error)
	// ChannelGetAll returns channel records for the given ids, misses skipped.
	ChannelGetAll(ids ...string) ([]t.Channel, error)
	// ChannelsForServers returns all channels belonging to any of the given
	// servers in a single query.
	ChannelsForServers(serverIds ...string) ([]t.Channel, error)
	// ChannelDelete deletes a channel record.
	ChannelDelete(id string) error
}
