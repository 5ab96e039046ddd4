// Copyright © 2024 OpenIM. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"time"

	"github.com/openimsdk/tools/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dscache/corekv/internal/dscache/core"
)

// CollectionName is the Mongo collection the disk store lives in.
const CollectionName = "dscache_objects"

// document is the on-disk shape of one resident key. Expiry is omitted
// from the document when zero so TTL-less keys don't carry a sentinel.
type document struct {
	DB      int32     `bson:"db"`
	Key     string    `bson:"key"`
	Payload []byte    `bson:"payload"`
	Expiry  time.Time `bson:"expiry,omitempty"`
}

// Store is the disk-backed key→value map.
type Store struct {
	coll *mongo.Collection
}

// New opens the disk store against db, creating the unique compound index
// on (db,key) the first time it is run, the same discipline
// pkg/common/storage/database/mgo/friend.go uses for its owner/friend
// compound index.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	coll := db.Collection(CollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "db", Value: 1},
			{Key: "key", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create dscache disk store index")
	}
	return &Store{coll: coll}, nil
}

// ErrNotFound is returned by Get when the key is absent on disk. Callers
// treat this as authoritative: it is what triggers the negative cache to
// install an entry.
var ErrNotFound = errs.New("dscache: key not found on disk")

// Get fetches a key's value and expiry. It is invoked only from worker
// goroutines.
func (s *Store) Get(ctx context.Context, dbKey core.DBKey) (payload []byte, expiry time.Time, err error) {
	var doc document
	err = s.coll.FindOne(ctx, bson.M{"db": int32(dbKey.DB), "key": string(dbKey.Key)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, errs.WrapMsg(err, "dscache store get", "db", dbKey.DB, "key", dbKey.Key)
	}
	return doc.Payload, doc.Expiry, nil
}

// Set persists payload for dbKey, replacing any existing document in one
// atomic round trip.
func (s *Store) Set(ctx context.Context, dbKey core.DBKey, payload []byte, expiry time.Time) error {
	doc := document{DB: int32(dbKey.DB), Key: string(dbKey.Key), Payload: payload, Expiry: expiry}
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"db": int32(dbKey.DB), "key": string(dbKey.Key)},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errs.WrapMsg(err, "dscache store set", "db", dbKey.DB, "key", dbKey.Key)
	}
	return nil
}

// Delete removes a key's document. Deleting an already-absent key is not
// an error, matching the SAVE-with-nil-snapshot "delete" encoding in
// Payload encoding.
func (s *Store) Delete(ctx context.Context, dbKey core.DBKey) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"db": int32(dbKey.DB), "key": string(dbKey.Key)})
	if err != nil {
		return errs.WrapMsg(err, "dscache store delete", "db", dbKey.DB, "key", dbKey.Key)
	}
	return nil
}
