// Package audit fingerprints computed result sets. Payloads are serialized
// to RFC 8785 canonical JSON (sorted keys, no insignificant whitespace) and
// digested with SHA-256, so equal results always hash equal regardless of
// map iteration or extraction order.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"kyde/internal/netting"
)

// CanonicalJSON returns the RFC 8785 canonical encoding of v.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return jcs.Transform(raw)
}

// CanonicalHash returns the SHA-256 hex digest of v's canonical form.
func CanonicalHash(v any) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// transferRecord is the hashing shape of one transfer; amounts are fixed to
// two fraction digits so 7.4 and 7.40 hash identically.
type transferRecord struct {
	From      uint64 `json:"from"`
	To        uint64 `json:"to"`
	AmountEUR string `json:"amount_eur"`
}

// TransferSetHash hashes a transfer set sorted by (from, to, amount), making
// the digest independent of the order transfers were extracted in.
func TransferSetHash(transfers []netting.Transfer) (string, error) {
	sorted := make([]netting.Transfer, len(transfers))
	copy(sorted, transfers)
	netting.SortTransfers(sorted)

	records := make([]transferRecord, 0, len(sorted))
	for _, tr := range sorted {
		records = append(records, transferRecord{
			From:      tr.From,
			To:        tr.To,
			AmountEUR: tr.AmountEUR.StringFixed(2),
		})
	}
	return CanonicalHash(records)
}
