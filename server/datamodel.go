/******************************************************************************
 *
 *  Description :
 *
 *    Wire protocol structures.
 *
 *****************************************************************************/

package main

import (
	"net/http"
	"time"

	"github.com/axischat/axis/server/store/types"
)

// MsgClientHi is a handshake {hi} message.
type MsgClientHi struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// User agent.
	UserAgent string `json:"ua,omitempty"`
	// Protocol version, i.e. "0.13".
	Version string `json:"ver,omitempty"`
	// Client's unique device ID.
	DeviceID string `json:"dev,omitempty"`
	// Human language of the client device.
	Lang string `json:"lang,omitempty"`
}

// MsgClientLogout is a request to terminate the current identity's presence:
// a {logout} is a stronger signal than a disconnect, it forces Offline and
// closes the user's other live connections.
type MsgClientLogout struct {
	Id string `json:"id,omitempty"`
}

// Friend graph operations issued over the live transport, {friend}.
const (
	constFriendInvite   = "invite"
	constFriendAccept   = "accept"
	constFriendReject   = "reject"
	constFriendWithdraw = "withdraw"
	constFriendRemove   = "remove"
	constFriendList     = "list"
)

// MsgClientFriend is a friend-graph mutation or query, {friend}.
type MsgClientFriend struct {
	Id string `json:"id,omitempty"`
	// One of "invite", "accept", "reject", "withdraw", "remove", "list".
	What string `json:"what"`
	// The other party, as "usrXXX".
	User string `json:"user,omitempty"`
}

// ClientComMessage is a wrapper for client messages.
type ClientComMessage struct {
	Hi     *MsgClientHi     `json:"hi"`
	Logout *MsgClientLogout `json:"logout"`
	Friend *MsgClientFriend `json:"friend"`

	// Message Id denormalized
	Id string `json:"-"`
	// Timestamp when this message was received by the server.
	Timestamp time.Time `json:"-"`
}

// MsgServerCtrl is a server control message {ctrl}.
type MsgServerCtrl struct {
	Id     string `json:"id,omitempty"`
	Code   int    `json:"code"`
	Text   string `json:"text,omitempty"`
	Params any    `json:"params,omitempty"`

	Timestamp time.Time `json:"ts"`
}

// MsgServerPres is a presence notification {pres}: a user of interest came
// online or went offline.
type MsgServerPres struct {
	// "on" or "off".
	What string `json:"what"`
	// Affected user, as "usrXXX".
	Src string `json:"src"`
}

// MsgServerFriend is a friend-graph change notification {friend}: the
// counterparty of an edge mutation learns about it here.
type MsgServerFriend struct {
	// One of "invited", "accepted", "rejected", "withdrawn", "removed",
	// "updated".
	What string `json:"what"`
	// User who performed the change, as "usrXXX".
	Actor string `json:"actor"`
	// User affected by the change, as "usrXXX".
	Target string `json:"target,omitempty"`
}

// ServerComMessage is a wrapper for server-side messages.
type ServerComMessage struct {
	Ctrl   *MsgServerCtrl   `json:"ctrl,omitempty"`
	Pres   *MsgServerPres   `json:"pres,omitempty"`
	Friend *MsgServerFriend `json:"friend,omitempty"`

	// Recipients of the message, fanned out to their live sessions by the hub.
	rcptTo []types.Uid
	// Originating session id to skip when fanning out, "" to deliver to all.
	skipSid string
}

// Generators of server-side error messages {ctrl}.

// NoErr indicates successful completion (200).
func NoErr(id string, ts time.Time) *ServerComMessage {
	return NoErrParams(id, ts, nil)
}

// NoErrParams indicates successful completion with parameters (200).
func NoErrParams(id string, ts time.Time, params any) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusOK, // 200
		Text:      "ok",
		Params:    params,
		Timestamp: ts}}
}

// NoErrCreated indicates successful creation of an object (201).
func NoErrCreated(id string, ts time.Time, params any) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusCreated, // 201
		Text:      "created",
		Params:    params,
		Timestamp: ts}}
}

// NoErrShutdown means the server is shutting down (205).
func NoErrShutdown(ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Code:      http.StatusResetContent, // 205
		Text:      "server shutdown",
		Timestamp: ts}}
}

// 4xx Errors

// ErrMalformed means the message was malformed (400).
func ErrMalformed(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusBadRequest, // 400
		Text:      "malformed",
		Timestamp: ts}}
}

// ErrAPIKeyRequired means the request is missing the API key (401).
func ErrAPIKeyRequired(ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Code:      http.StatusUnauthorized, // 401
		Text:      "valid API key required",
		Timestamp: ts}}
}

// ErrNotFound means the referenced user, invite, channel or server does not
// exist (404).
func ErrNotFound(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotFound, // 404
		Text:      "not found",
		Timestamp: ts}}
}

// ErrOperationNotAllowed means the requested mutation would violate a
// relationship invariant (409).
func ErrOperationNotAllowed(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusConflict, // 409
		Text:      "operation not allowed",
		Timestamp: ts}}
}

// ErrValidationFailed means a required field is missing or failed
// validation, including self-targeting operations (422).
func ErrValidationFailed(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusUnprocessableEntity, // 422
		Text:      "validation failed",
		Timestamp: ts}}
}

// ErrVersionNotSupported means the client protocol version is too old (505).
func ErrVersionNotSupported(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusHTTPVersionNotSupported, // 505
		Text:      "version not supported",
		Timestamp: ts}}
}

// 5xx errors

// ErrUnknown means an internal error occurred (500).
func ErrUnknown(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusInternalServerError, // 500
		Text:      "internal error",
		Timestamp: ts}}
}

// ErrServiceUnavailable means the storage collaborator cannot be reached;
// the failure is transient and retryable by the caller (503).
func ErrServiceUnavailable(id string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusServiceUnavailable, // 503
		Text:      "service unavailable",
		Timestamp: ts}}
}

// decodeStoreError translates errors returned by the store into ctrl
// messages. The classification is carried by the typed error value, never
// inferred from message text.
func decodeStoreError(err error, id string, ts time.Time) *ServerComMessage {
	var errmsg *ServerComMessage

	if err == nil {
		errmsg = NoErr(id, ts)
	} else if storeErr, ok := err.(types.StoreError); !ok {
		errmsg = ErrUnknown(id, ts)
	} else {
		switch storeErr {
		case types.ErrNotFound:
			errmsg = ErrNotFound(id, ts)
		case types.ErrMalformed:
			errmsg = ErrValidationFailed(id, ts)
		case types.ErrInvalidOperation, types.ErrDuplicate:
			errmsg = ErrOperationNotAllowed(id, ts)
		case types.ErrUnavailable:
			errmsg = ErrServiceUnavailable(id, ts)
		case types.ErrInternal, types.ErrFailed:
			errmsg = ErrUnknown(id, ts)
		default:
			errmsg = ErrUnknown(id, ts)
		}
	}

	return errmsg
}
