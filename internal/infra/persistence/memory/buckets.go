package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the key/value backends (sqlite, postgres, redis).
const (
	BucketRecords   = "records"
	BucketArchive   = "archive"
	BucketRevisions = "revisions"
)

// Buckets lists every bucket in write order.
var Buckets = []string{BucketRecords, BucketArchive, BucketRevisions}

// EncodeBuckets serializes each partition of the snapshot to JSON keyed by bucket.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketRecords:
			data, err = json.Marshal(snapshot.Records)
		case BucketArchive:
			data, err = json.Marshal(snapshot.Archive)
		case BucketRevisions:
			data, err = json.Marshal(snapshot.Revisions)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets and
// empty payloads are ignored.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var snapshot Snapshot
	for bucket, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		var target any
		switch bucket {
		case BucketRecords:
			target = &snapshot.Records
		case BucketArchive:
			target = &snapshot.Archive
		case BucketRevisions:
			target = &snapshot.Revisions
		default:
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return snapshot, nil
}
