/******************************************************************************
 *
 *  Description :
 *
 *  REST API: social graph queries and mutations, invite lifecycle,
 *  relationship aggregation, minimal account/server/channel management.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"net/http"

	"github.com/axischat/axis/server/logs"
	"github.com/axischat/axis/server/store"
	"github.com/axischat/axis/server/store/types"
)

// apiHandler serves the REST surface. Collaborators are injected at
// construction, the handler owns no state of its own.
type apiHandler struct {
	sessions *SessionStore
	hub      *Hub
}

func newAPIHandler(sessions *SessionStore, hub *Hub) *apiHandler {
	return &apiHandler{sessions: sessions, hub: hub}
}

func (h *apiHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v0/users", withAPIKey(h.userCreate))
	mux.HandleFunc("GET /v0/users/{id}", withAPIKey(h.userGet))
	mux.HandleFunc("DELETE /v0/users/{id}", withAPIKey(h.userDelete))

	mux.HandleFunc("GET /v0/users/{id}/friends", withAPIKey(h.friendsGet))
	mux.HandleFunc("PATCH /v0/users/{id}/friends", withAPIKey(h.friendsPatch))

	mux.HandleFunc("GET /v0/users/{id}/related-servers", withAPIKey(h.relatedServers))
	mux.HandleFunc("GET /v0/users/{id}/related-channels", withAPIKey(h.relatedChannels))

	mux.HandleFunc("POST /v0/users/{id}/invites/{peer}", withAPIKey(h.inviteCreate))
	mux.HandleFunc("PUT /v0/users/{id}/invites/{peer}", withAPIKey(h.inviteAccept))
	mux.HandleFunc("DELETE /v0/users/{id}/invites/{peer}", withAPIKey(h.inviteRevoke))

	mux.HandleFunc("POST /v0/servers", withAPIKey(h.serverCreate))
	mux.HandleFunc("GET /v0/servers/{id}", withAPIKey(h.serverGet))
	mux.HandleFunc("DELETE /v0/servers/{id}", withAPIKey(h.serverDelete))

	mux.HandleFunc("POST /v0/channels", withAPIKey(h.channelCreate))
	mux.HandleFunc("GET /v0/channels/{id}", withAPIKey(h.channelGet))
	mux.HandleFunc("DELETE /v0/channels/{id}", withAPIKey(h.channelDelete))

	mux.HandleFunc("POST /v0/users/{id}/channels/{chan}", withAPIKey(h.channelInvite))
	mux.HandleFunc("PUT /v0/users/{id}/channels/{chan}", withAPIKey(h.channelJoin))
	mux.HandleFunc("DELETE /v0/users/{id}/channels/{chan}", withAPIKey(h.channelLeave))
}

// withAPIKey rejects requests without a valid API key.
func withAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(wrt http.ResponseWriter, req *http.Request) {
		if isValid, _ := checkAPIKey(getAPIKey(req)); !isValid {
			writeCtrl(wrt, ErrAPIKeyRequired(types.TimeNow()))
			return
		}
		next(wrt, req)
	}
}

// writeCtrl serializes a {ctrl} envelope; the HTTP status mirrors the ctrl
// code.
func writeCtrl(wrt http.ResponseWriter, msg *ServerComMessage) {
	wrt.Header().Set("Content-Type", "application/json; charset=utf-8")
	if msg.Ctrl != nil {
		wrt.WriteHeader(msg.Ctrl.Code)
	}
	if err := json.NewEncoder(wrt).Encode(msg); err != nil {
		logs.Warn.Println("api: failed to write response", err)
	}
}

// pathUid parses the {id} path segment as "usrXXX".
func pathUid(req *http.Request, name string) types.Uid {
	return types.ParseUserId(req.PathValue(name))
}

func (h *apiHandler) userCreate(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	var body struct {
		Public any `json:"public"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeCtrl(wrt, ErrMalformed("", now))
		return
	}

	user, err := store.Users.Create(&types.User{
		State:    types.StateOK,
		Presence: types.PresenceOffline,
		Public:   body.Public})
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	writeCtrl(wrt, NoErrCreated("", now, map[string]any{"user": user.Uid().UserId()}))
}

func (h *apiHandler) userGet(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	if uid.IsZero() {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	user, err := store.Users.Get(uid)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	if user == nil {
		writeCtrl(wrt, ErrNotFound("", now))
		return
	}

	// The registry is the authority on connectedness.
	presence := types.PresenceOffline
	if h.sessions.IsOnline(uid) {
		presence = types.PresenceOnline
	}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{
		"user":     user.Uid().UserId(),
		"public":   user.Public,
		"presence": presence,
		"created":  user.CreatedAt}))
}

// userDelete removes the account, scrubs its id from every other user's
// relationship sets and terminates its live sessions.
func (h *apiHandler) userDelete(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	if uid.IsZero() {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	hard := req.URL.Query().Get("hard") == "true"
	if err := store.Users.Delete(uid, hard); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	h.sessions.EvictUser(uid, "")

	writeCtrl(wrt, NoErr("", now))
}

func (h *apiHandler) friendsGet(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	if uid.IsZero() {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	user, err := store.Users.Get(uid)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	if user == nil {
		writeCtrl(wrt, ErrNotFound("", now))
		return
	}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{
		"friends":     uidsToUserIds(user.Friends),
		"invitesTo":   uidsToUserIds(user.InvitesTo),
		"invitesFrom": uidsToUserIds(user.InvitesFrom),
		"online":      uidsToUserIds(h.sessions.OnlineUsers(user.Friends))}))
}

// friendsPatch is the bulk friend update: ?action=add|delete with body
// {"friends": ["usrXXX", ...]}. The action may also be given in the body.
func (h *apiHandler) friendsPatch(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	if uid.IsZero() {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	var body struct {
		Action  string   `json:"action"`
		Friends []string `json:"friends"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeCtrl(wrt, ErrMalformed("", now))
		return
	}

	action := req.URL.Query().Get("action")
	if action == "" {
		action = body.Action
	}
	if action != store.FriendsActionAdd && action != store.FriendsActionDelete {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}
	if len(body.Friends) == 0 {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	friends := make([]types.Uid, 0, len(body.Friends))
	for _, id := range body.Friends {
		fuid := types.ParseUserId(id)
		if fuid.IsZero() {
			writeCtrl(wrt, ErrValidationFailed("", now))
			return
		}
		friends = append(friends, fuid)
	}

	updated, err := store.Users.UpdateFriends(uid, action, friends)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	// Let the affected users know.
	h.hub.route <- &ServerComMessage{
		Friend: &MsgServerFriend{What: "updated", Actor: uid.UserId()},
		rcptTo: friends}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{"friends": uidsToUserIds(updated)}))
}

func (h *apiHandler) relatedServers(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	if uid.IsZero() {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	servers, err := store.Users.RelatedServers(uid)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	out := make([]map[string]any, len(servers))
	for i, srv := range servers {
		out[i] = map[string]any{
			"id":     srv.Id,
			"name":   srv.Name,
			"owner":  srv.Owner,
			"public": srv.Public,
		}
	}
	writeCtrl(wrt, NoErrParams("", now, map[string]any{"servers": out}))
}

func (h *apiHandler) relatedChannels(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	if uid.IsZero() {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	channels, err := store.Users.RelatedChannels(uid)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	out := make([]map[string]any, len(channels))
	for i, ch := range channels {
		out[i] = map[string]any{
			"id":     ch.Id,
			"server": ch.ServerId,
			"name":   ch.Name,
		}
	}
	writeCtrl(wrt, NoErrParams("", now, map[string]any{"channels": out}))
}

// invitePair parses the {id} and {peer} path segments.
func invitePair(req *http.Request) (types.Uid, types.Uid) {
	return pathUid(req, "id"), pathUid(req, "peer")
}

// inviteCreate sends a friendship invite from {id} to {peer}.
func (h *apiHandler) inviteCreate(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid, peer := invitePair(req)
	if uid.IsZero() || peer.IsZero() || uid == peer {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	if _, err := store.Users.InviteFriend(uid, peer); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	h.hub.route <- &ServerComMessage{
		Friend: &MsgServerFriend{What: "invited", Actor: uid.UserId(), Target: peer.UserId()},
		rcptTo: []types.Uid{peer}}

	writeCtrl(wrt, NoErr("", now))
}

// inviteAccept accepts the invite {peer} sent to {id}.
func (h *apiHandler) inviteAccept(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid, peer := invitePair(req)
	if uid.IsZero() || peer.IsZero() || uid == peer {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	upd, err := store.Users.AcceptInvite(uid, peer)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	h.hub.route <- &ServerComMessage{
		Friend: &MsgServerFriend{What: "accepted", Actor: uid.UserId(), Target: peer.UserId()},
		rcptTo: []types.Uid{peer}}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{"friends": uidsToUserIds(upd.Friends)}))
}

// inviteRevoke removes the pending invite between {id} and {peer}: a reject
// when {id} is the recipient, a withdrawal when {id} is the sender.
func (h *apiHandler) inviteRevoke(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	uid, peer := invitePair(req)
	if uid.IsZero() || peer.IsZero() || uid == peer {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	user, err := store.Users.Get(uid)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	if user == nil {
		writeCtrl(wrt, ErrNotFound("", now))
		return
	}

	what := "rejected"
	if user.InvitesFrom.Contains(peer) {
		err = store.Users.RejectInvite(uid, peer)
	} else {
		err = store.Users.WithdrawInvite(uid, peer)
		what = "withdrawn"
	}
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	h.hub.route <- &ServerComMessage{
		Friend: &MsgServerFriend{What: what, Actor: uid.UserId(), Target: peer.UserId()},
		rcptTo: []types.Uid{peer}}

	writeCtrl(wrt, NoErr("", now))
}

func (h *apiHandler) serverCreate(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	var body struct {
		Owner  string `json:"owner"`
		Name   string `json:"name"`
		Public any    `json:"public"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeCtrl(wrt, ErrMalformed("", now))
		return
	}

	owner := types.ParseUserId(body.Owner)
	if owner.IsZero() || body.Name == "" {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	srv, err := store.Servers.Create(&types.Server{
		State:  types.StateOK,
		Owner:  owner.String(),
		Name:   body.Name,
		Public: body.Public})
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	writeCtrl(wrt, NoErrCreated("", now, map[string]any{"server": srv.Id}))
}

func (h *apiHandler) serverGet(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	srv, err := store.Servers.Get(req.PathValue("id"))
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	if srv == nil {
		writeCtrl(wrt, ErrNotFound("", now))
		return
	}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{
		"id":     srv.Id,
		"name":   srv.Name,
		"owner":  srv.Owner,
		"public": srv.Public}))
}

func (h *apiHandler) serverDelete(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	if err := store.Servers.Delete(req.PathValue("id")); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	writeCtrl(wrt, NoErr("", now))
}

func (h *apiHandler) channelCreate(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	var body struct {
		Server string `json:"server"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeCtrl(wrt, ErrMalformed("", now))
		return
	}
	if body.Server == "" || body.Name == "" {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	ch, err := store.Channels.Create(&types.Channel{ServerId: body.Server, Name: body.Name})
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	writeCtrl(wrt, NoErrCreated("", now, map[string]any{"channel": ch.Id}))
}

func (h *apiHandler) channelGet(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	ch, err := store.Channels.Get(req.PathValue("id"))
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	if ch == nil {
		writeCtrl(wrt, ErrNotFound("", now))
		return
	}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{
		"id":     ch.Id,
		"server": ch.ServerId,
		"name":   ch.Name}))
}

func (h *apiHandler) channelDelete(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()

	if err := store.Channels.Delete(req.PathValue("id")); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}
	writeCtrl(wrt, NoErr("", now))
}

// channelInvite records a channel invite for the user.
func (h *apiHandler) channelInvite(wrt http.ResponseWriter, req *http.Request) {
	h.membershipChange(wrt, req, store.Channels.Invite)
}

// channelJoin makes the user a member; a pending channel invite is consumed.
func (h *apiHandler) channelJoin(wrt http.ResponseWriter, req *http.Request) {
	h.membershipChange(wrt, req, store.Channels.Join)
}

// channelLeave drops the user's membership and any pending invite.
func (h *apiHandler) channelLeave(wrt http.ResponseWriter, req *http.Request) {
	h.membershipChange(wrt, req, store.Channels.Leave)
}

func (h *apiHandler) membershipChange(wrt http.ResponseWriter, req *http.Request,
	op func(types.Uid, string) (*types.User, error)) {
	now := types.TimeNow()

	uid := pathUid(req, "id")
	chnId := req.PathValue("chan")
	if uid.IsZero() || chnId == "" {
		writeCtrl(wrt, ErrValidationFailed("", now))
		return
	}

	user, err := op(uid, chnId)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", now))
		return
	}

	writeCtrl(wrt, NoErrParams("", now, map[string]any{
		"joined":  user.JoinedChannels,
		"invites": user.ChannelInvites}))
}
