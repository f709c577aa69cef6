package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/analytics"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/backtest"
	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// ClosedTradeSource is the narrow store surface the archiver reads from. The
// position stores satisfy it implicitly.
type ClosedTradeSource interface {
	ListClosed(ctx context.Context, filter domain.ClosedFilter) ([]domain.ClosedTrade, error)
}

// Archiver uploads run artifacts and closed-trade history to blob storage.
// Nothing is deleted from the primary store here; pruning is a separate,
// explicit step taken after an archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	trades ClosedTradeSource
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil when no audit store is
// wired (backtest mode).
func NewArchiver(writer domain.BlobWriter, trades ClosedTradeSource, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		audit:  audit,
	}
}

// ArchiveRun uploads the full artifact set for one simulation run:
//
//	runs/YYYY-MM-DD/<run_id>/report.json
//	runs/YYYY-MM-DD/<run_id>/trades.jsonl
//	runs/YYYY-MM-DD/<run_id>/equity.csv
func (a *Archiver) ArchiveRun(ctx context.Context, res *backtest.Result, rep analytics.Report) error {
	prefix := fmt.Sprintf("runs/%s/%s", rep.GeneratedAt.Format("2006-01-02"), res.RunID)

	repBytes, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report: %w", err)
	}
	if err := a.writer.Put(ctx, prefix+"/report.json", repBytes, "application/json"); err != nil {
		return err
	}

	tradeBytes, err := marshalJSONL(res.Trades)
	if err != nil {
		return fmt.Errorf("s3blob: marshal trades: %w", err)
	}
	if err := a.writer.Put(ctx, prefix+"/trades.jsonl", tradeBytes, "application/x-ndjson"); err != nil {
		return err
	}

	if err := a.writer.Put(ctx, prefix+"/equity.csv", equityCSV(res.EquityCurve), "text/csv"); err != nil {
		return err
	}

	return a.logEvent(ctx, "archive.run", map[string]any{
		"run_id": res.RunID,
		"prefix": prefix,
		"trades": len(res.Trades),
	})
}

// ArchiveClosedTrades uploads every trade closed before the cutoff as JSONL
// at archive/closed_trades/YYYY-MM.jsonl and returns the archived count.
func (a *Archiver) ArchiveClosedTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListClosed(ctx, domain.ClosedFilter{ClosedUntil: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed trades marshal: %w", err)
	}

	key := fmt.Sprintf("archive/closed_trades/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	count := int64(len(trades))
	if err := a.logEvent(ctx, "archive.closed_trades", map[string]any{
		"key":    key,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, err
	}
	return count, nil
}

func (a *Archiver) logEvent(ctx context.Context, event string, detail map[string]any) error {
	if a.audit == nil {
		return nil
	}
	if err := a.audit.Log(ctx, event, detail); err != nil {
		return fmt.Errorf("s3blob: audit log %s: %w", event, err)
	}
	return nil
}

func equityCSV(curve []backtest.EquityPoint) []byte {
	var buf bytes.Buffer
	buf.WriteString("time,equity\n")
	for _, p := range curve {
		buf.WriteString(p.Time.Format(time.RFC3339))
		buf.WriteByte(',')
		buf.WriteString(p.Equity.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
