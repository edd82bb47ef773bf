package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/recordstore/data"
)

func (ca *ConsulAdapter) Save(ctx context.Context, collection, key string, record *data.Record) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	envelope, err := json.Marshal(record)
	if err != nil {
		return err
	}

	capabilities := ca.Capabilities()
	if !capabilities.Accepts(int64(len(envelope))) {
		return fmt.Errorf("%w: %d bytes exceeds Consul KV limit of %d",
			data.ErrValueTooLarge, len(envelope), capabilities.MaxValueSize)
	}

	pair := &api.KVPair{
		Key:   ca.buildKey(collection, key),
		Value: envelope,
	}

	_, err = ca.kv.Put(pair, (&api.WriteOptions{}).WithContext(ctx))
	return err
}

func (ca *ConsulAdapter) Load(ctx context.Context, collection, key string) (*data.Record, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	pair, _, err := ca.kv.Get(ca.buildKey(collection, key), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, data.ErrNotFound
	}

	record := new(data.Record)
	if err := json.Unmarshal(pair.Value, record); err != nil {
		return nil, data.ErrCorruptRecord
	}

	return record, nil
}

func (ca *ConsulAdapter) Delete(ctx context.Context, collection, key string) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	_, err := ca.kv.Delete(ca.buildKey(collection, key), (&api.WriteOptions{}).WithContext(ctx))
	return err
}

func (ca *ConsulAdapter) Query(ctx context.Context, collection string) ([]*data.Record, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	pairs, _, err := ca.kv.List(ca.buildPrefix(collection), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}

	records := make([]*data.Record, 0, len(pairs))
	for _, pair := range pairs {
		record := new(data.Record)
		if err := json.Unmarshal(pair.Value, record); err != nil {
			// Skip corrupt entries instead of failing the whole listing.
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

func (ca *ConsulAdapter) Keys(ctx context.Context, collection string) ([]string, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	prefix := ca.buildPrefix(collection)
	consulKeys, _, err := ca.kv.Keys(prefix, "", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(consulKeys))
	for _, consulKey := range consulKeys {
		keys = append(keys, strings.TrimPrefix(consulKey, prefix))
	}

	return keys, nil
}

func (ca *ConsulAdapter) Collections(ctx context.Context) ([]string, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	prefix := ca.buildPrefix("")
	// A "/" separator makes Consul return one level of virtual
	// directories, which are exactly the collections.
	consulKeys, _, err := ca.kv.Keys(prefix, "/", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}

	collections := make([]string, 0, len(consulKeys))
	for _, consulKey := range consulKeys {
		trimmed := strings.TrimSuffix(strings.TrimPrefix(consulKey, prefix), "/")
		if trimmed != "" {
			collections = append(collections, trimmed)
		}
	}

	return collections, nil
}

func (ca *ConsulAdapter) Clear(ctx context.Context, collection string) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	_, err := ca.kv.DeleteTree(ca.buildPrefix(collection), (&api.WriteOptions{}).WithContext(ctx))
	return err
}
