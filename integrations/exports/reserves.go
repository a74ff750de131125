package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"lendcore/native/lending"
)

// ReserveRow is one reserve captured at a slot. WAD scaled values are kept as
// decimal strings so no precision is lost.
type ReserveRow struct {
	Slot             int64  `parquet:"name=slot, type=INT64" json:"slot"`
	CapturedAt       string `parquet:"name=captured_at, type=BYTE_ARRAY, convertedtype=UTF8" json:"captured_at"`
	Reserve          string `parquet:"name=reserve, type=BYTE_ARRAY, convertedtype=UTF8" json:"reserve"`
	Market           string `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8" json:"market"`
	LiquidityMint    string `parquet:"name=liquidity_mint, type=BYTE_ARRAY, convertedtype=UTF8" json:"liquidity_mint"`
	AvailableAmount  int64  `parquet:"name=available_amount, type=INT64" json:"available_amount"`
	CollateralSupply int64  `parquet:"name=collateral_supply, type=INT64" json:"collateral_supply"`
	ExchangeRate     string `parquet:"name=exchange_rate, type=BYTE_ARRAY, convertedtype=UTF8" json:"exchange_rate"`
	MarketPrice      string `parquet:"name=market_price, type=BYTE_ARRAY, convertedtype=UTF8" json:"market_price"`
	LastUpdateSlot   int64  `parquet:"name=last_update_slot, type=INT64" json:"last_update_slot"`
	Stale            bool   `parquet:"name=stale, type=BOOLEAN" json:"stale"`
	WindowOutflow    int64  `parquet:"name=window_outflow, type=INT64" json:"window_outflow"`
	DepositLimit     int64  `parquet:"name=deposit_limit, type=INT64" json:"deposit_limit"`
}

// ReserveRows snapshots reserves at slot, ordered by reserve address.
func ReserveRows(reserves []*lending.Reserve, slot uint64, at time.Time) ([]ReserveRow, error) {
	rows := make([]ReserveRow, 0, len(reserves))
	for _, r := range reserves {
		if r == nil {
			continue
		}
		rate, err := r.ExchangeRate()
		if err != nil {
			return nil, fmt.Errorf("exports: reserve %s: %w", r.Address, err)
		}
		rows = append(rows, ReserveRow{
			Slot:             int64(slot),
			CapturedAt:       at.UTC().Format(time.RFC3339),
			Reserve:          r.Address.String(),
			Market:           r.Market.String(),
			LiquidityMint:    r.Liquidity.MintAddress.String(),
			AvailableAmount:  int64(r.Liquidity.AvailableAmount),
			CollateralSupply: int64(r.Collateral.MintTotalSupply),
			ExchangeRate:     rate.Dec(),
			MarketPrice:      r.Liquidity.MarketPrice.Dec(),
			LastUpdateSlot:   int64(r.LastUpdate.Slot),
			Stale:            r.LastUpdate.Stale,
			WindowOutflow:    int64(r.RateLimiter.WindowOutflow),
			DepositLimit:     int64(r.Config.DepositLimit),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reserve < rows[j].Reserve })
	return rows, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReservesCSV serialises rows as CSV and returns the payload with its SHA-256.
func ReservesCSV(rows []ReserveRow) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	w := csv.NewWriter(buffer)
	header := []string{"slot", "captured_at", "reserve", "market", "liquidity_mint", "available_amount",
		"collateral_supply", "exchange_rate", "market_price", "last_update_slot", "stale", "window_outflow", "deposit_limit"}
	if err := w.Write(header); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.Slot, 10),
			row.CapturedAt,
			row.Reserve,
			row.Market,
			row.LiquidityMint,
			strconv.FormatInt(row.AvailableAmount, 10),
			strconv.FormatInt(row.CollateralSupply, 10),
			row.ExchangeRate,
			row.MarketPrice,
			strconv.FormatInt(row.LastUpdateSlot, 10),
			strconv.FormatBool(row.Stale),
			strconv.FormatInt(row.WindowOutflow, 10),
			strconv.FormatInt(row.DepositLimit, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// ReservesJSONL serialises rows as JSON Lines and returns the payload with its
// SHA-256.
func ReservesJSONL(rows []ReserveRow) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// WriteReservesParquet writes rows to a SNAPPY compressed parquet file.
func WriteReservesParquet(path string, rows []ReserveRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(ReserveRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 32 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet finalize: %w", err)
	}
	return file.Close()
}
