package oracle

import (
	"errors"
	"fmt"

	"lendcore/core/events"
	"lendcore/crypto"
	nativecommon "lendcore/native/common"
)

// Storage abstracts the subset of state manager functionality required by the
// registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// MaxExponent bounds the magnitude of a published exponent.
const MaxExponent = 30

var (
	ErrNotPublisher  = errors.New("oracle: signer is not the feed publisher")
	ErrFeedExists    = errors.New("oracle: feed already exists")
	ErrUnknownFeed   = errors.New("oracle: unknown feed")
	ErrInvalidPrice  = errors.New("oracle: price must be positive with exponent in [-30, 30]")
	ErrInvalidSymbol = errors.New("oracle: symbol must be 1-32 bytes")
)

var feedPrefix = []byte("oracle/feed/")

func feedKey(feed crypto.Address) []byte {
	return append(append([]byte(nil), feedPrefix...), feed[:]...)
}

// FeedAddress is the feed registered under symbol.
func FeedAddress(symbol string) crypto.Address {
	return crypto.DeriveAddress("feed", []byte(nativecommon.NormalizeSymbol(symbol)))
}

// Feed is a publisher-owned price reading of price*10^exponent quote units
// per whole token.
type Feed struct {
	Address   crypto.Address `json:"address"`
	Symbol    string         `json:"symbol"`
	Publisher crypto.Address `json:"publisher"`
	Price     uint64         `json:"price"`
	Exponent  int32          `json:"exponent"`
	Slot      uint64         `json:"slot"`
}

// storedFeed is the RLP form; rlp has no signed integers.
type storedFeed struct {
	Address          crypto.Address
	Symbol           string
	Publisher        crypto.Address
	Price            uint64
	ExponentNegative bool
	ExponentAbs      uint32
	Slot             uint64
}

func (f *Feed) toStored() *storedFeed {
	out := &storedFeed{
		Address:   f.Address,
		Symbol:    f.Symbol,
		Publisher: f.Publisher,
		Price:     f.Price,
		Slot:      f.Slot,
	}
	if f.Exponent < 0 {
		out.ExponentNegative = true
		out.ExponentAbs = uint32(-f.Exponent)
	} else {
		out.ExponentAbs = uint32(f.Exponent)
	}
	return out
}

func (s *storedFeed) toFeed() *Feed {
	exponent := int32(s.ExponentAbs)
	if s.ExponentNegative {
		exponent = -exponent
	}
	return &Feed{
		Address:   s.Address,
		Symbol:    s.Symbol,
		Publisher: s.Publisher,
		Price:     s.Price,
		Exponent:  exponent,
		Slot:      s.Slot,
	}
}

func validReading(price uint64, exponent int32) error {
	if price == 0 || exponent > MaxExponent || exponent < -MaxExponent {
		return ErrInvalidPrice
	}
	return nil
}

// Registry stores price feeds and serves their latest reading.
type Registry struct {
	store   Storage
	emitter events.Emitter
}

// NewRegistry constructs a registry bound to store. A nil emitter discards
// events.
func NewRegistry(store Storage, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Registry{store: store, emitter: emitter}
}

// Feed loads a feed by address.
func (r *Registry) Feed(addr crypto.Address) (*Feed, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("oracle: registry not initialised")
	}
	var stored storedFeed
	ok, err := r.store.KVGet(feedKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, addr)
	}
	return stored.toFeed(), nil
}

// InitFeed creates the feed for symbol with publisher as its only writer.
func (r *Registry) InitFeed(publisher crypto.Address, symbol string, price uint64, exponent int32, slot uint64) (*Feed, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("oracle: registry not initialised")
	}
	normalized := nativecommon.NormalizeSymbol(symbol)
	if normalized == "" || len(normalized) > 32 {
		return nil, ErrInvalidSymbol
	}
	if publisher.IsZero() {
		return nil, fmt.Errorf("oracle: publisher must be set")
	}
	if err := validReading(price, exponent); err != nil {
		return nil, err
	}
	addr := FeedAddress(normalized)
	exists, err := r.store.KVGet(feedKey(addr), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrFeedExists, normalized)
	}
	feed := &Feed{Address: addr, Symbol: normalized, Publisher: publisher, Price: price, Exponent: exponent, Slot: slot}
	if err := r.store.KVPut(feedKey(addr), feed.toStored()); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.OracleFeedInitialized{Feed: addr, Symbol: normalized, Publisher: publisher})
	return feed, nil
}

// UpdateFeedPrice publishes a new reading. Only the feed's publisher may call it.
func (r *Registry) UpdateFeedPrice(signer, addr crypto.Address, price uint64, exponent int32, slot uint64) (*Feed, error) {
	feed, err := r.Feed(addr)
	if err != nil {
		return nil, err
	}
	if signer != feed.Publisher {
		return nil, ErrNotPublisher
	}
	if err := validReading(price, exponent); err != nil {
		return nil, err
	}
	feed.Price, feed.Exponent, feed.Slot = price, exponent, slot
	if err := r.store.KVPut(feedKey(addr), feed.toStored()); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.OraclePriceUpdated{Feed: addr, Price: price, Exponent: exponent})
	return feed, nil
}

// Price returns the latest reading of feed.
func (r *Registry) Price(addr crypto.Address) (uint64, int32, error) {
	feed, err := r.Feed(addr)
	if err != nil {
		return 0, 0, err
	}
	return feed.Price, feed.Exponent, nil
}
