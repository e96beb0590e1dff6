// Package mongodb is a database adapter for MongoDB.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/axischat/axis/server/store"
	t "github.com/axischat/axis/server/store/types"
	b "go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
)

// adapter holds MongoDB connection data.
type adapter struct {
	conn       *mdb.Client
	db         *mdb.Database
	dbName     string
	maxResults int
	version    int
	ctx        context.Context
}

const (
	defaultHost     = "localhost:27017"
	defaultDatabase = "axis"

	adpVersion  = 100
	adapterName = "mongodb"

	defaultMaxResults = 1024
)

// See https://godoc.org/go.mongodb.org/mongo-driver/mongo/options#ClientOptions for explanations.
type configType struct {
	Addresses      any `json:"addresses,omitempty"`
	ConnectTimeout int `json:"timeout,omitempty"`

	// Options separately from ClientOptions (custom options):
	Database   string `json:"database,omitempty"`
	ReplicaSet string `json:"replica_set,omitempty"`

	AuthSource string `json:"auth_source,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

// Open initializes mongodb session.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.conn != nil {
		return errors.New("adapter mongodb is already connected")
	}

	var err error
	var config configType
	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("adapter mongodb failed to parse config: " + err.Error())
	}

	var opts mdbopts.ClientOptions

	if config.Addresses == nil {
		opts.SetHosts([]string{defaultHost})
	} else if host, ok := config.Addresses.(string); ok {
		opts.SetHosts([]string{host})
	} else if hosts, ok := config.Addresses.([]string); ok {
		opts.SetHosts(hosts)
	} else {
		return errors.New("adapter mongodb failed to parse config.Addresses")
	}

	if config.Database == "" {
		a.dbName = defaultDatabase
	} else {
		a.dbName = config.Database
	}

	if config.ReplicaSet != "" {
		opts.SetReplicaSet(config.ReplicaSet)
	}

	if config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(config.ConnectTimeout) * time.Second)
	}

	if config.Username != "" {
		var passwordSet bool
		if config.AuthSource == "" {
			config.AuthSource = "admin"
		}
		if config.Password != "" {
			passwordSet = true
		}
		opts.SetAuth(
			mdbopts.Credential{
				AuthMechanism: "SCRAM-SHA-256",
				AuthSource:    config.AuthSource,
				Username:      config.Username,
				Password:      config.Password,
				PasswordSet:   passwordSet,
			})
	}

	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}

	a.ctx = context.Background()
	a.conn, err = mdb.Connect(a.ctx, &opts)
	a.db = a.conn.Database(a.dbName)
	if err != nil {
		return err
	}
	a.version = -1

	return nil
}

// Close the adapter.
func (a *adapter) Close() error {
	var err error
	if a.conn != nil {
		err = a.conn.Disconnect(a.ctx)
		a.conn = nil
		a.version = -1
	}
	return err
}

// IsOpen checks if the adapter is ready for use.
func (a *adapter) IsOpen() bool {
	return a.conn != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	var result struct {
		Key   string `bson:"_id"`
		Value int
	}
	if err := a.db.Collection("kvmeta").FindOne(a.ctx, b.M{"_id": "version"}).Decode(&result); err != nil {
		if err == mdb.ErrNoDocuments {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}

	a.version = result.Value
	return result.Value, nil
}

// CheckDbVersion checks if the actual database version matches adapter version.
func (a *adapter) CheckDbVersion() error {
	version, err := a.GetDbVersion()
	if err != nil {
		return err
	}

	if version != adpVersion {
		return errors.New("Invalid database version " + strconv.Itoa(version) +
			". Expected " + strconv.Itoa(adpVersion))
	}

	return nil
}

// Version returns adapter version.
func (a *adapter) Version() int {
	return adpVersion
}

// GetName returns the name of the adapter.
func (a *adapter) GetName() string {
	return adapterName
}

// SetMaxResults configures how many results can be returned in a single DB call.
func (a *adapter) SetMaxResults(val int) error {
	if val <= 0 {
		a.maxResults = defaultMaxResults
	} else {
		a.maxResults = val
	}

	return nil
}

// Stats returns the DB connection stats object.
func (a *adapter) Stats() any {
	if a.db == nil {
		return nil
	}
	var result b.M
	if err := a.db.RunCommand(a.ctx, b.D{{Key: "serverStatus", Value: 1}},
		mdbopts.RunCmd().SetReadPreference(nil)).Decode(&result); err != nil {
		return nil
	}
	return result["connections"]
}

func (a *adapter) isDbInitialized() bool {
	var result map[string]int
	findOpts := mdbopts.FindOne().SetProjection(b.M{"value": 1, "_id": 0})
	if err := a.db.Collection("kvmeta").FindOne(a.ctx, b.M{"_id": "version"}, findOpts).Decode(&result); err != nil {
		return false
	}
	return true
}

// CreateDb creates the database optionally dropping an existing database first.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		if err := a.db.Drop(a.ctx); err != nil {
			return err
		}
	} else if a.isDbInitialized() {
		return errors.New("Database already initialized")
	}
	// Collections do not need to be explicitly created since MongoDB creates
	// them with the first write.

	indexes := []struct {
		Collection string
		Field      string
		IndexOpts  mdb.IndexModel
	}{
		// Index on 'user.state' for skipping suspended and soft-deleted users.
		{
			Collection: "users",
			Field:      "state",
		},
		// Indexes on relationship sets for reverse-edge reconciliation queries.
		{
			Collection: "users",
			Field:      "friends",
		},
		{
			Collection: "users",
			Field:      "invitesto",
		},
		{
			Collection: "users",
			Field:      "invitesfrom",
		},
		// Index on channel membership for co-member presence lookups.
		{
			Collection: "users",
			Field:      "joinedchannels",
		},
		// Index on 'server.owner' for loading all servers of a user.
		{
			Collection: "servers",
			Field:      "owner",
		},
		// Index on 'channel.serverid' for loading all channels of a server.
		{
			Collection: "channels",
			Field:      "serverid",
		},
	}

	var err error
	for _, idx := range indexes {
		if idx.Field != "" {
			_, err = a.db.Collection(idx.Collection).Indexes().CreateOne(a.ctx, mdb.IndexModel{Keys: b.M{idx.Field: 1}})
		} else {
			_, err = a.db.Collection(idx.Collection).Indexes().CreateOne(a.ctx, idx.IndexOpts)
		}
		if err != nil {
			return err
		}
	}

	// Record db version.
	if _, err := a.db.Collection("kvmeta").InsertOne(a.ctx, map[string]any{"_id": "version", "value": adpVersion}); err != nil {
		return err
	}

	return nil
}

// User management

// UserCreate creates user record.
func (a *adapter) UserCreate(usr *t.User) error {
	if _, err := a.db.Collection("users").InsertOne(a.ctx, &usr); err != nil {
		if isDuplicateErr(err) {
			return t.ErrDuplicate
		}
		return err
	}

	return nil
}

// UserGet fetches a single user by user id. If user is not found it returns (nil, nil).
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	var user t.User

	filter := b.M{"_id": uid.String(), "state": b.M{"$ne": t.StateDeleted}}
	if err := a.db.Collection("users").FindOne(a.ctx, filter).Decode(&user); err != nil {
		if err == mdb.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	user.Public = unmarshalBsonD(user.Public)
	return &user, nil
}

// UserGetAll returns user records for a given list of user IDs.
func (a *adapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	uids := make([]any, len(ids))
	for i, id := range ids {
		uids[i] = id.String()
	}

	var users []t.User
	filter := b.M{"_id": b.M{"$in": uids}, "state": b.M{"$ne": t.StateDeleted}}
	cur, err := a.db.Collection("users").Find(a.ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	for cur.Next(a.ctx) {
		var user t.User
		if err := cur.Decode(&user); err != nil {
			return nil, err
		}
		user.Public = unmarshalBsonD(user.Public)
		users = append(users, user)
	}
	return users, cur.Err()
}

// UserUpdate updates user record with the given direct-assign fields.
func (a *adapter) UserUpdate(uid t.Uid, update map[string]any) error {
	// Get around the hardcoded CamelCase keys in store.Users.Update().
	update = normalizeUpdateMap(update)

	_, err := a.db.Collection("users").UpdateOne(a.ctx, b.M{"_id": uid.String()}, b.M{"$set": update})
	return err
}

// UserDelete deletes user record.
func (a *adapter) UserDelete(uid t.Uid, hard bool) error {
	if hard {
		_, err := a.db.Collection("users").DeleteOne(a.ctx, b.M{"_id": uid.String()})
		return err
	}
	return a.UserUpdate(uid, map[string]any{"state": t.StateDeleted, "updatedat": t.TimeNow()})
}

// UserRelUpdate applies a relationship delta to one user as a single
// read-modify-write. $addToSet is not used because it does not keep the
// stored array sorted and the UidSlice representation requires it.
func (a *adapter) UserRelUpdate(uid t.Uid, delta *t.RelDelta) (*t.User, error) {
	var user t.User
	err := a.db.Collection("users").FindOne(a.ctx, b.M{"_id": uid.String()}).Decode(&user)
	if err != nil {
		if err == mdb.ErrNoDocuments {
			return nil, t.ErrNotFound
		}
		return nil, err
	}

	for _, id := range delta.FriendsAdd {
		user.Friends.Add(id)
	}
	for _, id := range delta.FriendsRem {
		user.Friends.Rem(id)
	}
	for _, id := range delta.InvitesToAdd {
		user.InvitesTo.Add(id)
	}
	for _, id := range delta.InvitesToRem {
		user.InvitesTo.Rem(id)
	}
	for _, id := range delta.InvitesFromAdd {
		user.InvitesFrom.Add(id)
	}
	for _, id := range delta.InvitesFromRem {
		user.InvitesFrom.Rem(id)
	}

	user.UpdatedAt = t.TimeNow()
	_, err = a.db.Collection("users").UpdateOne(a.ctx, b.M{"_id": uid.String()},
		b.M{"$set": b.M{
			"friends":     user.Friends,
			"invitesto":   user.InvitesTo,
			"invitesfrom": user.InvitesFrom,
			"updatedat":   user.UpdatedAt}})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserMembershipUpdate applies a channel membership delta to one user.
func (a *adapter) UserMembershipUpdate(uid t.Uid, delta *t.MemberDelta) (*t.User, error) {
	var user t.User
	err := a.db.Collection("users").FindOne(a.ctx, b.M{"_id": uid.String()}).Decode(&user)
	if err != nil {
		if err == mdb.ErrNoDocuments {
			return nil, t.ErrNotFound
		}
		return nil, err
	}

	user.JoinedChannels = diff(union(user.JoinedChannels, delta.JoinedAdd), delta.JoinedRem)
	user.ChannelInvites = diff(union(user.ChannelInvites, delta.InvitedAdd), delta.InvitedRem)

	user.UpdatedAt = t.TimeNow()
	_, err = a.db.Collection("users").UpdateOne(a.ctx, b.M{"_id": uid.String()},
		b.M{"$set": b.M{
			"joinedchannels": user.JoinedChannels,
			"channelinvites": user.ChannelInvites,
			"updatedat":      user.UpdatedAt}})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPresenceUpdate persists the user's presence value.
func (a *adapter) UserPresenceUpdate(uid t.Uid, presence t.Presence) error {
	_, err := a.db.Collection("users").UpdateOne(a.ctx, b.M{"_id": uid.String()},
		b.M{"$set": b.M{"presence": presence, "updatedat": t.TimeNow()}})
	return err
}

// UserRefPurge removes uid from every other user's friendship and invite sets.
func (a *adapter) UserRefPurge(uid t.Uid) error {
	_, err := a.db.Collection("users").UpdateMany(a.ctx,
		b.M{"$or": b.A{
			b.M{"friends": uid},
			b.M{"invitesto": uid},
			b.M{"invitesfrom": uid},
		}},
		b.M{"$pull": b.M{
			"friends":     uid,
			"invitesto":   uid,
			"invitesfrom": uid,
		}})
	return err
}

// UsersForChannels returns IDs of users who joined any of the given channels.
func (a *adapter) UsersForChannels(chnIds ...string) ([]t.Uid, error) {
	if len(chnIds) == 0 {
		return nil, nil
	}

	filter := b.M{"joinedchannels": b.M{"$in": chnIds}, "state": b.M{"$ne": t.StateDeleted}}
	cur, err := a.db.Collection("users").Find(a.ctx, filter,
		mdbopts.Find().SetProjection(b.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var uids []t.Uid
	for cur.Next(a.ctx) {
		var row struct {
			Id string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		uid := t.ParseUid(row.Id)
		if !uid.IsZero() {
			uids = append(uids, uid)
		}
	}
	return uids, cur.Err()
}

// Server management

// ServerCreate creates a server record.
func (a *adapter) ServerCreate(srv *t.Server) error {
	if _, err := a.db.Collection("servers").InsertOne(a.ctx, &srv); err != nil {
		if isDuplicateErr(err) {
			return t.ErrDuplicate
		}
		return err
	}
	return nil
}

// ServerGet returns a server record by id, (nil, nil) if not found.
func (a *adapter) ServerGet(id string) (*t.Server, error) {
	var srv t.Server
	filter := b.M{"_id": id, "state": b.M{"$ne": t.StateDeleted}}
	if err := a.db.Collection("servers").FindOne(a.ctx, filter).Decode(&srv); err != nil {
		if err == mdb.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	srv.Public = unmarshalBsonD(srv.Public)
	return &srv, nil
}

// ServerGetAll returns server records for the given ids. Missing ids are
// skipped, not reported.
func (a *adapter) ServerGetAll(ids ...string) ([]t.Server, error) {
	filter := b.M{"_id": b.M{"$in": ids}, "state": b.M{"$ne": t.StateDeleted}}
	cur, err := a.db.Collection("servers").Find(a.ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var servers []t.Server
	for cur.Next(a.ctx) {
		var srv t.Server
		if err := cur.Decode(&srv); err != nil {
			return nil, err
		}
		srv.Public = unmarshalBsonD(srv.Public)
		servers = append(servers, srv)
	}
	return servers, cur.Err()
}

// ServersForOwner returns all servers directly owned by the given user.
func (a *adapter) ServersForOwner(uid t.Uid) ([]t.Server, error) {
	filter := b.M{"owner": uid.String(), "state": b.M{"$ne": t.StateDeleted}}
	cur, err := a.db.Collection("servers").Find(a.ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var servers []t.Server
	for cur.Next(a.ctx) {
		var srv t.Server
		if err := cur.Decode(&srv); err != nil {
			return nil, err
		}
		srv.Public = unmarshalBsonD(srv.Public)
		servers = append(servers, srv)
	}
	return servers, cur.Err()
}

// ServerDelete deletes a server record and its channels. Channel ids left in
// user membership sets go dangling and are excluded during aggregation.
func (a *adapter) ServerDelete(id string) error {
	if _, err := a.db.Collection("channels").DeleteMany(a.ctx, b.M{"serverid": id}); err != nil {
		return err
	}
	_, err := a.db.Collection("servers").DeleteOne(a.ctx, b.M{"_id": id})
	return err
}

// Channel management

// ChannelCreate creates a channel record.
func (a *adapter) ChannelCreate(ch *t.Channel) error {
	if ch.ServerId == "" {
		return t.ErrMalformed
	}
	if _, err := a.db.Collection("channels").InsertOne(a.ctx, &ch); err != nil {
		if isDuplicateErr(err) {
			return t.ErrDuplicate
		}
		return err
	}
	return nil
}

// ChannelGet returns a channel record by id, (nil, nil) if not found.
func (a *adapter) ChannelGet(id string) (*t.Channel, error) {
	var ch t.Channel
	if err := a.db.Collection("channels").FindOne(a.ctx, b.M{"_id": id}).Decode(&ch); err != nil {
		if err == mdb.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

// ChannelGetAll returns channel records for the given ids, misses skipped.
func (a *adapter) ChannelGetAll(ids ...string) ([]t.Channel, error) {
	cur, err := a.db.Collection("channels").Find(a.ctx, b.M{"_id": b.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var channels []t.Channel
	for cur.Next(a.ctx) {
		var ch t.Channel
		if err := cur.Decode(&ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, cur.Err()
}

// ChannelsForServers returns all channels belonging to any of the given
// servers in a single query.
func (a *adapter) ChannelsForServers(serverIds ...string) ([]t.Channel, error) {
	cur, err := a.db.Collection("channels").Find(a.ctx, b.M{"serverid": b.M{"$in": serverIds}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var channels []t.Channel
	for cur.Next(a.ctx) {
		var ch t.Channel
		if err := cur.Decode(&ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, cur.Err()
}

// ChannelDelete deletes a channel record.
func (a *adapter) ChannelDelete(id string) error {
	_, err := a.db.Collection("channels").DeleteOne(a.ctx, b.M{"_id": id})
	return err
}

// Utils

// union returns a set union of two slices of strings.
func union(base, add []string) []string {
	for _, s := range add {
		var found bool
		for _, b := range base {
			if b == s {
				found = true
				break
			}
		}
		if !found {
			base = append(base, s)
		}
	}
	return base
}

// diff returns set difference base - remove.
func diff(base, remove []string) []string {
	var result []string
	for _, s := range base {
		var found bool
		for _, r := range remove {
			if r == s {
				found = true
				break
			}
		}
		if !found {
			result = append(result, s)
		}
	}
	return result
}

// normalizeUpdateMap turns keys that are hardcoded as CamelCase into lowercase
// (MongoDB uses lowercase by default).
func normalizeUpdateMap(update map[string]any) map[string]any {
	result := make(map[string]any, len(update))
	for key, value := range update {
		result[strings.ToLower(key)] = value
	}

	return result
}

// Recursive unmarshalling of bson.D type.
// Mongo drivers unmarshalling into any create a bson.D object for maps and
// a bson.A object for slices. These need to be converted to bson.M / plain
// slices manually.
func unmarshalBsonD(bsonObj any) any {
	if obj, ok := bsonObj.(b.D); ok && len(obj) != 0 {
		result := make(b.M, 0)
		for key, val := range obj.Map() {
			result[key] = unmarshalBsonD(val)
		}
		return result
	} else if obj, ok := bsonObj.(primitive.Binary); ok {
		// primitive.Binary is a struct with Subtype and Data fields. Only Data ([]byte) is needed.
		return obj.Data
	} else if obj, ok := bsonObj.(b.A); ok {
		// Array of bson.D objects.
		result := make(b.A, 0)
		for _, elem := range obj {
			result = append(result, unmarshalBsonD(elem))
		}
		return result
	}
	return bsonObj
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key error")
}

func init() {
	store.RegisterAdapter(&adapter{})
}
