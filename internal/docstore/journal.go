package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalog/internal/changelog"
)

// ErrNotJournaled means the backend applied an upsert but the changelog append
// failed, so the store is ahead of its changelog until the key is written again.
var ErrNotJournaled = errors.New("upsert applied but not journaled")

// JournaledStore appends a changelog mutation after every successful upsert.
// Sequence numbers are assigned under a lock so the changelog order matches
// the order upserts were applied. The backend write comes first: a failed
// append returns ErrNotJournaled and leaves the seq where it was.
type JournaledStore struct {
	Store
	w   changelog.Writer
	mu  sync.Mutex
	seq int64
	now func() time.Time
}

// WithChangelog wraps s. lastSeq is the highest seq already in the changelog.
func WithChangelog(s Store, w changelog.Writer, lastSeq int64) *JournaledStore {
	return &JournaledStore{Store: s, w: w, seq: lastSeq, now: time.Now}
}

func (j *JournaledStore) Upsert(ctx context.Context, key string, doc any) error {
	b, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.Store.Upsert(ctx, key, b); err != nil {
		return err
	}
	next := j.seq + 1
	m := changelog.Mutation{Key: key, Seq: next, Doc: b, TS: j.now().UTC().Unix()}
	if err := j.w.Append(ctx, m); err != nil {
		return fmt.Errorf("%w: %q seq %d: %w", ErrNotJournaled, key, next, err)
	}
	j.seq = next
	return nil
}

// Seq returns the seq of the last journaled upsert.
func (j *JournaledStore) Seq() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}
