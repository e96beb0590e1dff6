package types

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Uids are persisted as base64 strings, same as the string '_id' primary
// keys: BSON has no unsigned 64-bit integer type.

// MarshalBSONValue implements bson.ValueMarshaler.
func (uid Uid) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(uid.String())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (uid *Uid) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var s string
	rv := bson.RawValue{Type: t, Value: data}
	if err := rv.Unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*uid = ZeroUid
		return nil
	}
	return uid.UnmarshalText([]byte(s))
}

var _ bson.ValueMarshaler = Uid(0)
var _ bson.ValueUnmarshaler = (*Uid)(nil)
