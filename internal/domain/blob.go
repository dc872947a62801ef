package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is the listing metadata of an archived object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter stores archive objects. PutMultipart is for streams of unknown
// length such as the JSONL ledger export.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads archive objects back. Get on a missing path returns
// ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SettlementReceipt is the archived record of a resolved market.
type SettlementReceipt struct {
	Market     Market    `json:"market"`
	Bets       []Bet     `json:"bets"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Archiver moves settled data to cold storage: one JSON receipt per resolved
// market and dated JSONL exports of old ledger entries.
type Archiver interface {
	ArchiveSettlement(ctx context.Context, receipt SettlementReceipt) (string, error)
	GetSettlement(ctx context.Context, marketID string) (SettlementReceipt, error)
	ArchiveLedger(ctx context.Context, before time.Time) (string, int64, error)
}
