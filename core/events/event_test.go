package events

import (
	"testing"
	"time"

	"lendcore/crypto"
)

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(ReserveRefreshed{Slot: 1})
	buf.Emit(nil)
	buf.Emit(ReserveRefreshed{Slot: 2})

	var sink Buffer
	buf.Flush(&sink)

	got := sink.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].(ReserveRefreshed).Slot != 1 || got[1].(ReserveRefreshed).Slot != 2 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer to be empty after flush")
	}
}

func TestBroadcasterDeliversAndCancels(t *testing.T) {
	b := NewBroadcaster(1)
	ch, cancel := b.Subscribe()

	b.Emit(LiquidityDeposited{Liquidity: 5})
	b.Emit(LiquidityDeposited{Liquidity: 6}) // dropped, channel full

	select {
	case e := <-ch:
		if e.(LiquidityDeposited).Liquidity != 5 {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestAttributesOmitZeroAddresses(t *testing.T) {
	reserve := crypto.DeriveAddress("reserve", []byte("r"))
	attrs := LiquidityDeposited{Reserve: reserve, Liquidity: 10, Collateral: 9}.Attributes()
	if attrs["reserve"] != reserve.String() {
		t.Fatalf("reserve attribute mismatch: %q", attrs["reserve"])
	}
	if _, ok := attrs["depositor"]; ok {
		t.Fatalf("zero depositor should be omitted")
	}
	if attrs["liquidity"] != "10" || attrs["collateral"] != "9" {
		t.Fatalf("unexpected amounts: %+v", attrs)
	}
}
