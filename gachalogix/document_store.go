package gachalogix

import (
	"context"
	"strings"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	// ErrVersionConflict is returned by DocumentStore.Write when the expected
	// version no longer matches the stored document. Callers must reload and
	// retry the whole read-modify-write cycle.
	ErrVersionConflict = runtime.NewError("document version conflict", 10) // ABORTED

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached within the configured timeout, or when conflict retries are
	// exhausted. It never means "no mutation needed".
	ErrStoreUnavailable = runtime.NewError("document store unavailable", 14) // UNAVAILABLE
)

// A DocumentStore is a remote key/blob store with compare-and-swap writes.
//
// Version tokens are opaque. Read returns the empty version for an absent
// key; passing that empty version to Write makes the write conditional on
// the key still being absent.
type DocumentStore interface {
	// Read returns the document's contents and current version token. An
	// absent key yields nil data and an empty version, not an error.
	Read(ctx context.Context, key string) (data []byte, version string, err error)

	// Write stores the document if the expected version still matches,
	// returning the new version token. A mismatch returns ErrVersionConflict.
	Write(ctx context.Context, key string, data []byte, version string) (newVersion string, err error)
}

// NakamaDocumentStore implements DocumentStore over Nakama's storage engine.
// Documents are system-owned (empty user ID) so each key is one authoritative
// object shared by every process that talks to the same cluster.
type NakamaDocumentStore struct {
	nk         runtime.NakamaModule
	collection string
	timeout    time.Duration
}

func NewNakamaDocumentStore(nk runtime.NakamaModule, collection string, timeout time.Duration) *NakamaDocumentStore {
	return &NakamaDocumentStore{
		nk:         nk,
		collection: collection,
		timeout:    timeout,
	}
}

func (s *NakamaDocumentStore) Read(ctx context.Context, key string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: s.collection,
		Key:        key,
	}})
	if err != nil {
		return nil, "", ErrStoreUnavailable
	}
	if len(objects) == 0 {
		return nil, "", nil
	}
	return []byte(objects[0].Value), objects[0].Version, nil
}

func (s *NakamaDocumentStore) Write(ctx context.Context, key string, data []byte, version string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// An empty version comes from reading an absent key; map it to Nakama's
	// conditional-create token so two first-writers still conflict.
	if version == "" {
		version = "*"
	}

	acks, err := s.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      s.collection,
		Key:             key,
		Value:           string(data),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		if isVersionCheckError(err) {
			return "", ErrVersionConflict
		}
		return "", ErrStoreUnavailable
	}
	if len(acks) == 0 {
		return "", ErrStoreUnavailable
	}
	return acks[0].Version, nil
}

// isVersionCheckError recognizes Nakama's storage rejection for a stale
// version token. The server reports it only through the error message.
func isVersionCheckError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "version check failed")
}
