// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package rdb encapsulates the interactions with redis.
package rdb

import (
	"context"
	"sort"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/base"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/errors"
	"github.com/redis/go-redis/v9"
)

// RDB is a client interface to query and mutate published queue statistics.
type RDB struct {
	client redis.UniversalClient
}

// NewRDB returns a new instance of RDB.
func NewRDB(client redis.UniversalClient) *RDB {
	return &RDB{client: client}
}

// Close closes the connection with redis server.
func (r *RDB) Close() error {
	return r.client.Close()
}

// Client returns the reference to underlying redis client.
func (r *RDB) Client() redis.UniversalClient {
	return r.client
}

// Ping checks the connection with redis server.
func (r *RDB) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// WriteQueueState writes queue statistics to redis with expiration set to the value ttl.
func (r *RDB) WriteQueueState(ctx context.Context, info *base.QueueInfo, ttl time.Duration) error {
	var op errors.Op = "rdb.WriteQueueState"
	bytes, err := base.EncodeQueueInfo(info)
	if err != nil {
		return errors.E(op, errors.Internal, err)
	}
	key := base.QueueInfoKey(info.Host, info.PID, info.Name)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, bytes, ttl)
		pipe.SAdd(ctx, base.AllQueues, key)
		return nil
	})
	if err != nil {
		return errors.E(op, errors.Unknown, err)
	}
	return nil
}

// ClearQueueState deletes queue statistics from redis.
func (r *RDB) ClearQueueState(ctx context.Context, host string, pid int, qname string) error {
	var op errors.Op = "rdb.ClearQueueState"
	key := base.QueueInfoKey(host, pid, qname)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, base.AllQueues, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return errors.E(op, errors.Unknown, err)
	}
	return nil
}

// ListQueueInfo returns the statistics of every queue currently published.
// Expired members of the queue set are removed as a side effect.
// The result is sorted by name, then host and pid.
func (r *RDB) ListQueueInfo(ctx context.Context) ([]*base.QueueInfo, error) {
	var op errors.Op = "rdb.ListQueueInfo"
	keys, err := r.client.SMembers(ctx, base.AllQueues).Result()
	if err != nil {
		return nil, errors.E(op, errors.Unknown, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.E(op, errors.Unknown, err)
	}
	var (
		infos []*base.QueueInfo
		stale []interface{}
	)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		info, err := base.DecodeQueueInfo([]byte(s))
		if err != nil {
			continue // ignore bad data
		}
		infos = append(infos, info)
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, base.AllQueues, stale...).Err(); err != nil {
			return nil, errors.E(op, errors.Unknown, err)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		x, y := infos[i], infos[j]
		if x.Name != y.Name {
			return x.Name < y.Name
		}
		if x.Host != y.Host {
			return x.Host < y.Host
		}
		return x.PID < y.PID
	})
	return infos, nil
}
