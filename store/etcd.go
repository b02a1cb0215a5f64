package store

// etcd is used as a shared store for every instance of the platform:
//
//	Key:   /mini-redirect/{cache key}
//	Value: JSON record {tag, value, created, ttl}
//
// Entries with a TTL are attached to a lease so that etcd deletes them once
// the owner stops refreshing them. Leases have whole-second granularity, so
// the record also carries its own deadline and reads filter on it; a lease
// may outlive the deadline by up to a second but the entry is never served.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const DefaultEtcdRoot = "/mini-redirect/"

// Etcd implements Store on etcd v3.
type Etcd struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	root   string
	owned  bool // client was dialled by NewEtcd and must be closed with the store
	now    func() time.Time
}

type etcdRecord struct {
	Tag     string        `json:"tag"`
	Value   []byte        `json:"value"`
	Created time.Time     `json:"created"`
	TTL     time.Duration `json:"ttl,omitempty"`
}

// NewEtcd dials the given endpoints.
func NewEtcd(endpoints []string, dialTimeout time.Duration) (*Etcd, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("store: dial etcd %v: %w", endpoints, err)
	}
	s := NewEtcdFromClient(c, DefaultEtcdRoot)
	s.owned = true
	return s, nil
}

// NewEtcdFromClient wraps an existing client. Keys are stored under root.
func NewEtcdFromClient(c *clientv3.Client, root string) *Etcd {
	return &Etcd{client: c, root: root, now: time.Now}
}

func (s *Etcd) Put(ctx context.Context, key, typeTag string, value []byte, ttl time.Duration) (bool, error) {
	if err := CheckPut(key, typeTag, ttl); err != nil {
		return false, err
	}

	val, err := json.Marshal(etcdRecord{Tag: typeTag, Value: value, Created: s.now(), TTL: ttl})
	if err != nil {
		return false, err
	}

	var opts []clientv3.OpOption
	if ttl > 0 {
		// Round up: a lease must never end before the entry's own deadline
		secs := int64((ttl + time.Second - 1) / time.Second)
		lease, err := s.client.Grant(ctx, secs)
		if err != nil {
			return false, fmt.Errorf("store: etcd grant lease: %w", err)
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
	}

	if _, err := s.client.Put(ctx, s.root+key, string(val), opts...); err != nil {
		return false, fmt.Errorf("store: etcd put %s: %w", key, err)
	}
	return true, nil
}

func (s *Etcd) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := CheckKey(key); err != nil {
		return Entry{}, false, err
	}

	resp, err := s.client.Get(ctx, s.root+key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return Entry{}, false, nil
	}

	e, ok := s.decode(resp.Kvs[0])
	return e, ok, nil
}

func (s *Etcd) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	resp, err := s.client.Get(ctx, s.root+prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("store: etcd list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if e, ok := s.decode(kv); ok {
			keys = append(keys, e.Key)
		}
	}
	return keys, nil
}

func (s *Etcd) Remove(ctx context.Context, key string) (bool, error) {
	if err := CheckKey(key); err != nil {
		return false, err
	}

	resp, err := s.client.Delete(ctx, s.root+key, clientv3.WithPrevKV())
	if err != nil {
		return false, fmt.Errorf("store: etcd delete %s: %w", key, err)
	}
	for _, kv := range resp.PrevKvs {
		if _, ok := s.decode(kv); ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *Etcd) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// decode skips malformed and expired records.
func (s *Etcd) decode(kv *mvccpb.KeyValue) (Entry, bool) {
	var rec etcdRecord
	if err := json.Unmarshal(kv.Value, &rec); err != nil {
		return Entry{}, false
	}
	e := Entry{Key: strings.TrimPrefix(string(kv.Key), s.root), TypeTag: rec.Tag, Value: rec.Value, TTL: rec.TTL, Created: rec.Created}
	if e.Expired(s.now()) {
		return Entry{}, false
	}
	return e, true
}
