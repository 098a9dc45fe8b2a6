package eventstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"time"

	"example.com/backstage/services/provenance/models"
)

// GenesisHash is the previous hash of the first ledger entry
var GenesisHash = strings.Repeat("0", sha256.Size*2)

// ComputeEntryHash hashes an entry's content together with the hash of the
// entry before it. Every field is length-prefixed so that no two distinct
// entries share an encoding.
func ComputeEntryHash(entry models.LedgerEntry) string {
	h := sha256.New()
	writeField(h, fmt.Sprintf("%d", entry.Sequence))
	writeField(h, entry.PreviousHash)
	writeField(h, entry.AggregateType)
	writeField(h, entry.AggregateID)
	writeField(h, fmt.Sprintf("%d", entry.Version))
	writeField(h, entry.EventType)
	writeField(h, entry.Actor)
	writeField(h, entry.RecordedAt.UTC().Format(time.RFC3339Nano))
	writeField(h, string(entry.Payload))
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, value string) {
	fmt.Fprintf(h, "%d:", len(value))
	h.Write([]byte(value))
}
