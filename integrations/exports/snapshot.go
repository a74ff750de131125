package exports

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lendcore/native/lending"
)

// ReserveSource is the read side of a node needed for snapshots.
type ReserveSource interface {
	Slot() uint64
	Reserves() ([]*lending.Reserve, error)
}

// Snapshot names the files written by WriteSnapshot.
type Snapshot struct {
	Slot        uint64
	Rows        int
	ParquetPath string
	CSVPath     string
	Checksum    string
}

// WriteSnapshot captures every reserve from src into dir as parquet and CSV.
func WriteSnapshot(src ReserveSource, dir string, at time.Time) (*Snapshot, error) {
	slot := src.Slot()
	reserves, err := src.Reserves()
	if err != nil {
		return nil, fmt.Errorf("exports: load reserves: %w", err)
	}
	rows, err := ReserveRows(reserves, slot, at)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("exports: prepare dir: %w", err)
	}
	base := filepath.Join(dir, fmt.Sprintf("reserves-%012d", slot))
	snap := &Snapshot{Slot: slot, Rows: len(rows), ParquetPath: base + ".parquet", CSVPath: base + ".csv"}
	if err := WriteReservesParquet(snap.ParquetPath, rows); err != nil {
		return nil, err
	}
	data, sum, err := ReservesCSV(rows)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(snap.CSVPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("exports: write csv: %w", err)
	}
	snap.Checksum = sum
	return snap, nil
}

// Run writes a snapshot every interval until ctx is cancelled. Failures are
// logged and retried on the next tick.
func Run(ctx context.Context, src ReserveSource, dir string, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snap, err := WriteSnapshot(src, dir, now)
			if err != nil {
				logger.Error("reserve snapshot failed", slog.Any("error", err))
				continue
			}
			logger.Info("reserve snapshot written",
				slog.Uint64("slot", snap.Slot),
				slog.Int("rows", snap.Rows),
				slog.String("parquet", snap.ParquetPath),
				slog.String("sha256", snap.Checksum))
		}
	}
}
