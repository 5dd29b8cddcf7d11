// Package blob stores evidence payload bytes. The ledger hashes only what it
// reads back after a durable Put, never the bytes it was handed.
package blob

import (
	"context"
	"fmt"
	"path"

	id "evidenceledger/pkg/domain"
)

// Store is the payload storage port.
type Store interface {
	// Put stores data durably and returns an opaque reference.
	Put(ctx context.Context, key, contentType string, data []byte) (ref string, err error)
	// Get returns the bytes behind ref, or sentinel.ErrNotFound.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// PayloadKey places payloads under their tenant so a reference never
// resolves across tenants. The digest of the submitted bytes makes the key
// content-addressed: racing attaches of different payloads never share an
// object.
func PayloadKey(tenantID id.TenantID, evidenceID id.EvidenceID, digest string) string {
	return path.Join("tenants", tenantID.String(), "evidence", evidenceID.String(), "payload", digest)
}

func refFor(scheme, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, bucket, key)
}
