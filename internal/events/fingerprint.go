package events

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// idLength is the number of hex characters kept from the digest.
const idLength = 16

// ComputeEventID hashes the canonical serialization of an event: its bar
// context, kind, sequence number, schema version and payload fields, sorted
// by name. Identical arguments always give the identical ID.
func ComputeEventID(barIndex int, barTime int64, kind Kind, seq uint64, fields []Field) string {
	lines := make([]string, 0, len(fields)+5)
	lines = append(lines,
		"bar_index="+strconv.Itoa(barIndex),
		"bar_time="+strconv.FormatInt(barTime, 10),
		"kind="+string(kind),
		"schema="+strconv.Itoa(SchemaVersion),
		"seq="+strconv.FormatUint(seq, 10),
	)
	for _, f := range fields {
		lines = append(lines, "p."+f.Name+"="+f.Value)
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Digest hashes a payload alone. Two payloads with equal fields share a digest.
func Digest(p Payload) string {
	if p == nil {
		return ""
	}
	fields := p.Fields()
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = f.Name + "=" + f.Value
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])[:idLength]
}

// StreamFingerprint chains the IDs of evs in order. Two runs over the same bars
// have equal fingerprints; an empty stream has an empty fingerprint.
func StreamFingerprint(evs []Event) string {
	return ExtendFingerprint("", evs)
}

// ExtendFingerprint continues fp over further events, so that
// ExtendFingerprint(StreamFingerprint(a), b) equals StreamFingerprint(a+b).
func ExtendFingerprint(fp string, evs []Event) string {
	for _, e := range evs {
		sum := sha256.Sum256([]byte(fp + "\n" + e.ID))
		fp = hex.EncodeToString(sum[:])
	}
	return fp
}
