package gormstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/okian/finsight/internal/adapters/repository"
	"github.com/okian/finsight/internal/adapters/repository/gormstore"
	"github.com/okian/finsight/internal/adapters/repository/storetest"
)

func TestGormStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := gormstore.Open(context.Background(), filepath.Join(t.TempDir(), "finsight.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	})
}
