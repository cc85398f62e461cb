package store

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memoryRedis answers the commands the store issues without a server
type memoryRedis struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	ttls   map[string]int64
}

func newMemoryStore(t *testing.T) (*ReportStore, *memoryRedis) {
	t.Helper()
	mem := &memoryRedis{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		ttls:   make(map[string]int64),
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(mem)
	t.Cleanup(func() { client.Close() })
	return &ReportStore{redis: client, ttl: time.Hour}, mem
}

func (m *memoryRedis) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, fmt.Errorf("no server behind the in-memory hook")
	}
}

func (m *memoryRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.apply(cmd)
		return cmd.Err()
	}
}

func (m *memoryRedis) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, cmd := range cmds {
			m.apply(cmd)
		}
		return nil
	}
}

func (m *memoryRedis) apply(cmd redis.Cmder) {
	args := cmd.Args()
	arg := func(i int) string { return fmt.Sprint(args[i]) }
	switch name := cmd.Name(); name {
	case "multi", "exec":
	case "hset":
		h := m.hashes[arg(1)]
		if h == nil {
			h = make(map[string]string)
			m.hashes[arg(1)] = h
		}
		for i := 2; i+1 < len(args); i += 2 {
			h[arg(i)] = arg(i + 1)
		}
		cmd.(*redis.IntCmd).SetVal(int64((len(args) - 2) / 2))
	case "hget":
		v, ok := m.hashes[arg(1)][arg(2)]
		if !ok {
			cmd.SetErr(redis.Nil)
			return
		}
		cmd.(*redis.StringCmd).SetVal(v)
	case "expire":
		m.ttls[arg(1)] = args[2].(int64)
		cmd.(*redis.BoolCmd).SetVal(true)
	case "sadd":
		set := m.sets[arg(1)]
		if set == nil {
			set = make(map[string]struct{})
			m.sets[arg(1)] = set
		}
		for i := 2; i < len(args); i++ {
			set[arg(i)] = struct{}{}
		}
		cmd.(*redis.IntCmd).SetVal(int64(len(args) - 2))
	case "srem":
		for i := 2; i < len(args); i++ {
			delete(m.sets[arg(1)], arg(i))
		}
		cmd.(*redis.IntCmd).SetVal(int64(len(args) - 2))
	case "smembers":
		members := make([]string, 0, len(m.sets[arg(1)]))
		for member := range m.sets[arg(1)] {
			members = append(members, member)
		}
		sort.Strings(members)
		cmd.(*redis.StringSliceCmd).SetVal(members)
	case "del":
		for i := 1; i < len(args); i++ {
			delete(m.hashes, arg(i))
			delete(m.sets, arg(i))
			delete(m.ttls, arg(i))
		}
		cmd.(*redis.IntCmd).SetVal(int64(len(args) - 1))
	default:
		cmd.SetErr(fmt.Errorf("unexpected command %s", name))
	}
}

func (m *memoryRedis) hash(key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out
}

func (m *memoryRedis) members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

func (m *memoryRedis) ttl(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

func (m *memoryRedis) drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	delete(m.ttls, key)
}
