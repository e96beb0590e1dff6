// Package types contains data types shared between the storage facade and database adapters.
package types

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

// StoreError satisfies error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the input is malformed.
	ErrMalformed = StoreError("malformed")
	// ErrFailed means the operation failed for non-internal reasons.
	ErrFailed = StoreError("failed")
	// ErrDuplicate means the entry already exists.
	ErrDuplicate = StoreError("duplicate value")
	// ErrNotFound means the referenced object or relationship was not found.
	ErrNotFound = StoreError("not found")
	// ErrInvalidOperation means the operation would violate a relationship
	// invariant, e.g. inviting self or re-inviting an existing friend.
	ErrInvalidOperation = StoreError("invalid operation")
	// ErrUnavailable means the storage collaborator cannot be reached. The
	// caller may retry, the store will not.
	ErrUnavailable = StoreError("storage unavailable")
)

// Uid is a database-specific record id, suitable to be used as a primary key.
type Uid uint64

// ZeroUid is a constant representing uninitialized Uid.
const ZeroUid Uid = 0

const (
	uidBase64Unpadded = 11
	uidBase64Padded   = 12
)

// IsZero checks if Uid is uninitialized.
func (uid Uid) IsZero() bool {
	return uid == 0
}

// Compare returns 0 if uid is equal to u2, 1 if uid is greater than u2, -1 if uid is smaller.
func (uid Uid) Compare(u2 Uid) int {
	if uid < u2 {
		return -1
	} else if uid > u2 {
		return 1
	}
	return 0
}

// MarshalBinary converts Uid to byte slice.
func (uid Uid) MarshalBinary() ([]byte, error) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint64(dst, uint64(uid))
	return dst, nil
}

// UnmarshalBinary reads Uid from byte slice.
func (uid *Uid) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return errors.New("Uid.UnmarshalBinary: invalid length")
	}
	*uid = Uid(binary.LittleEndian.Uint64(b))
	return nil
}

// UnmarshalText reads Uid from string represented as byte slice.
func (uid *Uid) UnmarshalText(src []byte) error {
	if len(src) != uidBase64Unpadded {
		return errors.New("Uid.UnmarshalText: invalid length")
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(uidBase64Padded))
	for len(src) < uidBase64Padded {
		src = append(src, '=')
	}
	count, err := base64.URLEncoding.Decode(dec, src)
	if count < 8 {
		if err != nil {
			return errors.New("Uid.UnmarshalText: failed to decode " + err.Error())
		}
		return errors.New("Uid.UnmarshalText: failed to decode")
	}
	*uid = Uid(binary.LittleEndian.Uint64(dec))
	return nil
}

// MarshalText converts Uid to string represented as byte slice.
func (uid Uid) MarshalText() ([]byte, error) {
	if uid == ZeroUid {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	binary.LittleEndian.PutUint64(src, uint64(uid))
	base64.URLEncoding.Encode(dst, src)
	return dst[0:uidBase64Unpadded], nil
}

// String converts Uid to base64 string.
func (uid Uid) String() string {
	buf, _ := uid.MarshalText()
	return string(buf)
}

// ParseUid parses string NOT prefixed with anything.
func ParseUid(s string) Uid {
	var uid Uid
	uid.UnmarshalText([]byte(s))
	return uid
}

// UserId converts Uid to string prefixed with 'usr', like usrXXXXX.
func (uid Uid) UserId() string {
	return uid.PrefixId("usr")
}

// PrefixId converts Uid to string prefixed with the given prefix.
func (uid Uid) PrefixId(prefix string) string {
	if uid.IsZero() {
		return ""
	}
	return prefix + uid.String()
}

// ParseUserId parses account id of the form "usrXXXXXX".
func ParseUserId(s string) Uid {
	var uid Uid
	if len(s) > 3 && s[:3] == "usr" {
		(&uid).UnmarshalText([]byte(s)[3:])
	}
	return uid
}

// UidSlice is a slice of Uids sorted in ascending order.
type UidSlice []Uid

func (us UidSlice) find(uid Uid) (int, bool) {
	l := len(us)
	if l == 0 || us[0] > uid {
		return 0, false
	}
	if uid > us[l-1] {
		return l, false
	}
	for i, u := range us {
		if u == uid {
			return i, true
		}
		if u > uid {
			return i, false
		}
	}
	return l, false
}

// Add uid to UidSlice keeping it sorted and deduplicated. Returns false if
// the uid was already present.
func (us *UidSlice) Add(uid Uid) bool {
	i, found := us.find(uid)
	if found {
		return false
	}
	// Inserting without creating an intermediate slice.
	*us = append(*us, ZeroUid)
	copy((*us)[i+1:], (*us)[i:])
	(*us)[i] = uid
	return true
}

// Rem removes uid from UidSlice. Returns false if the uid was not present.
func (us *UidSlice) Rem(uid Uid) bool {
	i, found := us.find(uid)
	if !found {
		return false
	}
	if i == len(*us)-1 {
		*us = (*us)[:i]
	} else {
		*us = append((*us)[:i], (*us)[i+1:]...)
	}
	return true
}

// Contains checks if the UidSlice contains the given uid.
func (us UidSlice) Contains(uid Uid) bool {
	_, contains := us.find(uid)
	return contains
}

// ObjHeader is the header shared by all stored objects.
type ObjHeader struct {
	// Id as base64 string. The `bson:"_id"` tag makes mongodb use it as the
	// primary key '_id'.
	Id        string `bson:"_id"`
	id        Uid
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uid returns the id parsed into a Uid.
func (h *ObjHeader) Uid() Uid {
	if h.id.IsZero() && h.Id != "" {
		h.id.UnmarshalText([]byte(h.Id))
	}
	return h.id
}

// SetUid assigns given Uid to appropriate header fields.
func (h *ObjHeader) SetUid(uid Uid) {
	h.id = uid
	h.Id = uid.String()
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// InitTimes initializes time.Time variables in the header to current time.
func (h *ObjHeader) InitTimes() {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = TimeNow()
	}
	h.UpdatedAt = h.CreatedAt
}

// MergeTimes intelligently copies time.Time variables from h2 to h.
func (h *ObjHeader) MergeTimes(h2 *ObjHeader) {
	// Set the creation time to the earliest value.
	if h.CreatedAt.IsZero() || (!h2.CreatedAt.IsZero() && h2.CreatedAt.Before(h.CreatedAt)) {
		h.CreatedAt = h2.CreatedAt
	}
	// Set the update time to the latest value.
	if h.UpdatedAt.Before(h2.UpdatedAt) {
		h.UpdatedAt = h2.UpdatedAt
	}
}

// ObjState represents object state, such as an indication that a user or
// a server is suspended or soft-deleted.
type ObjState int

const (
	// StateOK indicates normal user or server.
	StateOK ObjState = 0
	// StateSuspended indicates suspended user or server.
	StateSuspended ObjState = 10
	// StateDeleted indicates soft-deleted user or server.
	StateDeleted ObjState = 20
)

// String returns string representation of ObjState.
func (os ObjState) String() string {
	switch os {
	case StateOK:
		return "ok"
	case StateSuspended:
		return "susp"
	case StateDeleted:
		return "del"
	}
	return ""
}

// Presence is user's availability as derived from live connections.
type Presence string

const (
	// PresenceOnline means the user has at least one live connection.
	PresenceOnline = Presence("online")
	// PresenceOffline is the initial state and the state after the last
	// connection is gone or the user logged out.
	PresenceOffline = Presence("offline")
)

// User is a representation of a registered account.
type User struct {
	ObjHeader `bson:",inline"`
	State     ObjState

	// Availability derived from live connections, persisted best-effort.
	Presence Presence

	// Application-defined profile data (name, avatar etc.), not interpreted
	// by the server.
	Public any

	// Mutual friendship edges. Kept symmetric: uid B is in Friends of user A
	// iff A is in Friends of user B.
	Friends UidSlice
	// Outgoing friendship invites, not yet accepted by the other side.
	InvitesTo UidSlice
	// Incoming friendship invites.
	InvitesFrom UidSlice

	// Accepted channel memberships, by channel id.
	JoinedChannels []string
	// Pending channel membership invites, by channel id.
	ChannelInvites []string
}

// Server is a community: a top-level group owning zero or more channels.
// Channels back-reference the server through Channel.ServerId; the server
// does not keep a channel list of its own.
type Server struct {
	ObjHeader `bson:",inline"`
	State     ObjState

	// Owning user, exactly one.
	Owner string

	Name   string
	Public any
}

// GetOwner returns server's owner as Uid.
func (s *Server) GetOwner() Uid {
	return ParseUid(s.Owner)
}

// Channel is a sub-space of a server which users join or get invited to.
type Channel struct {
	ObjHeader `bson:",inline"`

	// Id of the owning server, required. A channel with a dangling ServerId
	// is invalid and is silently excluded from aggregation.
	ServerId string

	Name string
}

// RelDelta describes a set mutation of one user's relationship fields.
// Adds are set unions, removals are set differences; both are recomputed
// against a freshly read document by the adapter.
type RelDelta struct {
	FriendsAdd []Uid
	FriendsRem []Uid

	InvitesToAdd []Uid
	InvitesToRem []Uid

	InvitesFromAdd []Uid
	InvitesFromRem []Uid
}

// IsZero checks if the delta contains no changes.
func (d *RelDelta) IsZero() bool {
	return len(d.FriendsAdd) == 0 && len(d.FriendsRem) == 0 &&
		len(d.InvitesToAdd) == 0 && len(d.InvitesToRem) == 0 &&
		len(d.InvitesFromAdd) == 0 && len(d.InvitesFromRem) == 0
}

// MemberDelta describes a set mutation of one user's channel membership fields.
type MemberDelta struct {
	JoinedAdd []string
	JoinedRem []string

	InvitedAdd []string
	InvitedRem []string
}
