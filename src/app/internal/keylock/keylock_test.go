package keylock_test

import (
	"sync"
	"testing"

	"github.com/sandai/arena/src/app/internal/keylock"
)

func TestLocker_SerializesPerKey(t *testing.T) {
	l := keylock.New()
	counters := map[string]*int{"a": new(int), "b": new(int)}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := l.Lock(key)
				defer unlock()
				*counters[key]++
			}(key)
		}
	}
	wg.Wait()
	if *counters["a"] != 50 || *counters["b"] != 50 {
		t.Errorf("counters = %d, %d", *counters["a"], *counters["b"])
	}
}
