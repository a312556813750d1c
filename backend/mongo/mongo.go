// Package mongo implements the Meta backend contract against MongoDB.
// Unlike the original C backend_init, which unconditionally returned
// TRUE even when the connection could not be established, Init here
// pings the server and propagates failure — see the REDESIGN FLAG in
// SPEC_FULL.md §4.H and DESIGN.md.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/juleastore/juleastore/backend"
)

// connectTimeout bounds both the initial connect and the startup ping;
// a daemon that can't reach its metadata store should fail fast at
// Init rather than hang workers later.
const connectTimeout = 10 * time.Second

// Backend stores every namespace as its own MongoDB collection, keyed
// by the "key" field, in one fixed database.
type Backend struct {
	client   *mongo.Client
	database string
}

type cursor struct {
	mc *mongo.Cursor
}

// Init parses path as "host[:port]/database" (falling back to the
// database name "juleastore" if no slash is present) and connects.
func (b *Backend) Init(path string) error {
	uri, database := splitPath(path)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return errors.Wrapf(err, "mongo: connect %s", uri)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), connectTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return errors.Wrapf(err, "mongo: ping %s", uri)
	}

	b.client = client
	b.database = database
	return nil
}

func (b *Backend) Fini() {
	if b.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	_ = b.client.Disconnect(ctx)
}

func (b *Backend) coll(namespace string) *mongo.Collection {
	return b.client.Database(b.database).Collection(namespace)
}

func (b *Backend) Create(namespace, key string, doc backend.Document) error {
	record := bson.M{}
	for k, v := range doc {
		record[k] = v
	}
	record["key"] = key

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	_, err := b.coll(namespace).InsertOne(ctx, record)
	if err != nil {
		return errors.Wrapf(err, "mongo: create %s/%s", namespace, key)
	}
	return nil
}

func (b *Backend) Delete(namespace, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	_, err := b.coll(namespace).DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return errors.Wrapf(err, "mongo: delete %s/%s", namespace, key)
	}
	return nil
}

func (b *Backend) Get(namespace, key string) (backend.Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var raw bson.M
	err := b.coll(namespace).FindOne(ctx, bson.M{"key": key}).Decode(&raw)
	if err != nil {
		return nil, errors.Wrapf(err, "mongo: get %s/%s", namespace, key)
	}
	return toDocument(raw), nil
}

func (b *Backend) GetAll(namespace string) (backend.Cursor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	mc, err := b.coll(namespace).Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrapf(err, "mongo: get_all %s", namespace)
	}
	return &cursor{mc: mc}, nil
}

func (b *Backend) Iterate(c backend.Cursor) (backend.Document, bool, error) {
	cur := c.(*cursor)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if !cur.mc.Next(ctx) {
		_ = cur.mc.Close(context.Background())
		return nil, false, cur.mc.Err()
	}
	var raw bson.M
	if err := cur.mc.Decode(&raw); err != nil {
		return nil, false, errors.Wrap(err, "mongo: decode cursor document")
	}
	return toDocument(raw), true, nil
}

func toDocument(raw bson.M) backend.Document {
	doc := make(backend.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return doc
}

// splitPath parses "host[:port]/database" into a mongodb:// URI and a
// database name, falling back to "juleastore" when no database is
// named.
func splitPath(path string) (uri, database string) {
	database = "juleastore"
	host := path
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			host = path[:i]
			if i+1 < len(path) {
				database = path[i+1:]
			}
			break
		}
	}
	return "mongodb://" + host, database
}
