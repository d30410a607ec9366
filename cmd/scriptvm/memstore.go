package main

import (
	"log/slog"
	"math/big"
	"sync"

	"github.com/chainkit/scriptvm/registry"
	"github.com/chainkit/scriptvm/types"
)

// newLocalRegistry builds a process-local Host Callback Registry backed by
// an in-memory key/value store and slog, enough to exercise a script from
// the CLI without a real node behind it. A deployed node wires its own
// registry.Table against real chain state; this is a development harness.
func newLocalRegistry() *registry.Table {
	reg := registry.New()
	store := &memStore{data: map[string]string{}}

	_ = reg.InitializeStorage(store.get, store.set, store.del)
	_ = reg.InitializeLogger(func(_ types.Handler, level types.LogLevel, msg string) {
		switch level {
		case types.LogDebug:
			slog.Debug(msg)
		case types.LogWarn:
			slog.Warn(msg)
		case types.LogError:
			slog.Error(msg)
		default:
			slog.Info(msg)
		}
	})
	_ = reg.InitializeBlockHeight(func(types.Handler) (uint64, error) { return 1, nil })
	_ = reg.InitializeNodeAddress(func(types.Handler) (string, error) { return "localhost-node", nil })
	_ = reg.InitializeVerifyAddress(func(_ types.Handler, addr string) (bool, uint64, error) {
		return len(addr) > 0, 1, nil
	})
	_ = reg.InitializeTransfer(func(_ types.Handler, _ string, _, _ *big.Int) (int32, uint64, error) {
		return int32(types.StatusSuccess), 1, nil
	})
	_ = reg.InitializeReward(func(types.Handler, string, *big.Int) (int32, error) {
		return int32(types.StatusSuccess), nil
	})
	_ = reg.InitializeEvent(func(_ types.Handler, topic, data string) (int32, error) {
		slog.Info("event", "topic", topic, "data", data)
		return int32(types.StatusSuccess), nil
	})
	_ = reg.InitializeRandom(func(_ types.Handler, max int64) (int64, error) { return max / 2, nil })

	return reg
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) get(_ types.Handler, key string) (*string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, 1, nil
	}
	return &v, 1, nil
}

func (s *memStore) set(_ types.Handler, key, value string) (int32, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return int32(types.StatusSuccess), 1, nil
}

func (s *memStore) del(_ types.Handler, key string) (int32, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return int32(types.StatusSuccess), 1, nil
}
