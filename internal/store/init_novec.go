//go:build !(sqlite_vec && cgo)

package store

import (
	"context"
	"database/sql"
	"fmt"
)

const vecEnabled = false

func (s *LocalStore) ensureVecIndex(int) {}

func (s *LocalStore) indexChunkVec(*sql.Tx, int64, string, []float32) error {
	return nil
}

func (s *LocalStore) searchChunksVec(context.Context, string, []float32, int) ([]ChunkEntry, error) {
	return nil, fmt.Errorf("sqlite-vec not built in")
}
