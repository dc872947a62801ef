package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"

	ledgerPartSize int64 = 8 << 20
)

// LedgerSource is the slice of domain.LedgerStore the archiver reads.
type LedgerSource interface {
	ListRange(ctx context.Context, from, before time.Time) ([]domain.LedgerEntry, error)
}

// Archiver implements domain.Archiver on top of a blob writer and reader.
// Archived ledger rows stay in the primary store; entries are immutable and
// the export is a copy.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	ledger LedgerSource
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(w domain.BlobWriter, r domain.BlobReader, ledger LedgerSource, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: w, reader: r, ledger: ledger, audit: audit}
}

// SettlementPath is the key a market's settlement receipt is stored under.
func SettlementPath(marketID string) string {
	return "settlements/markets/" + marketID + ".json"
}

// LedgerPath is the key of the ledger export ending at before, grouped by
// UTC day. Each cutoff gets its own object.
func LedgerPath(before time.Time) string {
	return "ledger/" + before.UTC().Format("2006-01-02/150405.000000000") + ".jsonl"
}

// ArchiveSettlement uploads the receipt and returns its key. Re-archiving a
// market overwrites the same key.
func (a *Archiver) ArchiveSettlement(ctx context.Context, receipt domain.SettlementReceipt) (string, error) {
	if receipt.Market.ID == "" {
		return "", domain.Validationf("settlement receipt has no market id")
	}
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement %s: %w", receipt.Market.ID, err)
	}

	path := SettlementPath(receipt.Market.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %s: %w", receipt.Market.ID, err)
	}
	return path, nil
}

// GetSettlement reads back an archived receipt.
func (a *Archiver) GetSettlement(ctx context.Context, marketID string) (domain.SettlementReceipt, error) {
	body, err := a.reader.Get(ctx, SettlementPath(marketID))
	if err != nil {
		return domain.SettlementReceipt{}, err
	}
	defer body.Close()

	var receipt domain.SettlementReceipt
	if err := json.NewDecoder(body).Decode(&receipt); err != nil {
		return domain.SettlementReceipt{}, fmt.Errorf("s3blob: decode settlement %s: %w", marketID, err)
	}
	return receipt, nil
}

// ArchiveLedger exports the entries created since the previous export's
// cutoff and before this one as JSONL, and returns the key and the number of
// entries written. The previous cutoff is read back from the audit trail, so
// without one every call exports from the start. Nothing is uploaded when the
// range is empty.
func (a *Archiver) ArchiveLedger(ctx context.Context, before time.Time) (string, int64, error) {
	from, err := a.lastCutoff(ctx)
	if err != nil {
		return "", 0, err
	}
	if !from.Before(before) {
		return "", 0, nil
	}
	entries, err := a.ledger.ListRange(ctx, from, before)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive ledger query: %w", err)
	}
	if len(entries) == 0 {
		return "", 0, nil
	}

	path := LedgerPath(before)
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeJSONL(pw, entries))
	}()
	if err := a.writer.PutMultipart(ctx, path, pr, ledgerPartSize); err != nil {
		_ = pr.CloseWithError(err)
		return "", 0, fmt.Errorf("s3blob: archive ledger upload: %w", err)
	}

	count := int64(len(entries))
	if a.audit != nil {
		detail := map[string]any{
			"path":   path,
			"count":  count,
			"before": before.UTC().Format(time.RFC3339Nano),
		}
		if !from.IsZero() {
			detail["from"] = from.UTC().Format(time.RFC3339Nano)
		}
		if err := a.audit.Log(ctx, domain.AuditLedgerArchived, detail); err != nil {
			return path, count, fmt.Errorf("s3blob: archive ledger audit: %w", err)
		}
	}
	return path, count, nil
}

// lastCutoff returns the cutoff of the most recent ledger export, or the zero
// time when there is none.
func (a *Archiver) lastCutoff(ctx context.Context) (time.Time, error) {
	if a.audit == nil {
		return time.Time{}, nil
	}
	last, err := a.audit.List(ctx, domain.AuditFilter{
		EventPrefix: domain.AuditLedgerArchived,
		ListOpts:    domain.ListOpts{Limit: 1},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("s3blob: last ledger export: %w", err)
	}
	if len(last) == 0 {
		return time.Time{}, nil
	}
	raw, _ := last[0].Detail["before"].(string)
	cutoff, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("s3blob: last ledger export cutoff %q: %w", raw, err)
	}
	return cutoff, nil
}

func writeJSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("jsonl record %d: %w", i, err)
		}
	}
	return nil
}

var _ domain.Archiver = (*Archiver)(nil)
