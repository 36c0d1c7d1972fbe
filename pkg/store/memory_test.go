package store_test

import (
	"testing"

	"github.com/killallgit/scout/pkg/store"
	"github.com/killallgit/scout/pkg/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ThreadStore {
		return store.NewMemory()
	})
}
