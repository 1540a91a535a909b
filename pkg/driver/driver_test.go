package driver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		ident string
		want  bool
	}{
		{"plain label", "Person", true},
		{"snake case", "LIVE_IN", true},
		{"leading underscore", "_internal", true},
		{"digits after first", "Label2", true},
		{"empty", "", false},
		{"leading digit", "2Label", false},
		{"injection attempt", "Person) DETACH DELETE (n", false},
		{"backtick", "Per`son", false},
		{"space", "Person Name", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentifier(tt.ident))
		})
	}
}

func TestCheckIdentifiersReportsOffender(t *testing.T) {
	assert.NoError(t, checkIdentifiers("Person", "LIKE", "Place"))

	err := checkIdentifiers("Person", "bad label")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad label")
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := newKeyedMutex(64)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("Person:Alice")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestKeyedMutexUnlockReleases(t *testing.T) {
	locks := newKeyedMutex(64)

	unlock := locks.Lock("Person:Alice")
	unlock()

	done := make(chan struct{})
	go func() {
		again := locks.Lock("Person:Alice")
		again()
		close(done)
	}()
	<-done
}
