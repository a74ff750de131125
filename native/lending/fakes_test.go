package lending

import (
	"errors"
	"testing"

	"lendcore/core/events"
	"lendcore/crypto"
)

type memState struct {
	markets     map[crypto.Address]*LendingMarket
	reserves    map[crypto.Address]*Reserve
	obligations map[crypto.Address]*Obligation
	order       []crypto.Address
}

func newMemState() *memState {
	return &memState{
		markets:     make(map[crypto.Address]*LendingMarket),
		reserves:    make(map[crypto.Address]*Reserve),
		obligations: make(map[crypto.Address]*Obligation),
	}
}

func (s *memState) GetMarket(addr crypto.Address) (*LendingMarket, error) {
	return s.markets[addr].Clone(), nil
}

func (s *memState) PutMarket(m *LendingMarket) error {
	s.markets[m.Address] = m.Clone()
	return nil
}

func (s *memState) GetReserve(addr crypto.Address) (*Reserve, error) {
	return s.reserves[addr].Clone(), nil
}

func (s *memState) PutReserve(r *Reserve) error {
	if _, ok := s.reserves[r.Address]; !ok {
		s.order = append(s.order, r.Address)
	}
	s.reserves[r.Address] = r.Clone()
	return nil
}

func (s *memState) GetObligation(addr crypto.Address) (*Obligation, error) {
	return s.obligations[addr].Clone(), nil
}

func (s *memState) PutObligation(o *Obligation) error {
	s.obligations[o.Address] = o.Clone()
	return nil
}

func (s *memState) ReserveAddresses() ([]crypto.Address, error) {
	return append([]crypto.Address(nil), s.order...), nil
}

var errFakeBalance = errors.New("fake tokens: insufficient balance")

type balanceKey struct{ mint, owner crypto.Address }

type memTokens struct {
	decimals  map[crypto.Address]uint8
	authority map[crypto.Address]crypto.Address
	balances  map[balanceKey]uint64
}

func newMemTokens() *memTokens {
	return &memTokens{
		decimals:  make(map[crypto.Address]uint8),
		authority: make(map[crypto.Address]crypto.Address),
		balances:  make(map[balanceKey]uint64),
	}
}

func (m *memTokens) CreateMint(mint crypto.Address, decimals uint8, authority crypto.Address) error {
	if _, ok := m.decimals[mint]; ok {
		return errors.New("fake tokens: mint exists")
	}
	m.decimals[mint] = decimals
	m.authority[mint] = authority
	return nil
}

func (m *memTokens) MintDecimals(mint crypto.Address) (uint8, error) {
	d, ok := m.decimals[mint]
	if !ok {
		return 0, errors.New("fake tokens: unknown mint")
	}
	return d, nil
}

func (m *memTokens) MintTo(mint, authority, to crypto.Address, amount uint64) error {
	if m.authority[mint] != authority {
		return errors.New("fake tokens: wrong authority")
	}
	m.balances[balanceKey{mint, to}] += amount
	return nil
}

func (m *memTokens) Burn(mint, from crypto.Address, amount uint64) error {
	key := balanceKey{mint, from}
	if m.balances[key] < amount {
		return errFakeBalance
	}
	m.balances[key] -= amount
	return nil
}

func (m *memTokens) Transfer(mint, from, to crypto.Address, amount uint64) error {
	if err := m.Burn(mint, from, amount); err != nil {
		return err
	}
	m.balances[balanceKey{mint, to}] += amount
	return nil
}

func (m *memTokens) balance(mint, owner crypto.Address) uint64 {
	return m.balances[balanceKey{mint, owner}]
}

type reading struct {
	price    uint64
	exponent int32
}

type memOracle map[crypto.Address]reading

func (o memOracle) Price(feed crypto.Address) (uint64, int32, error) {
	r, ok := o[feed]
	if !ok {
		return 0, 0, errors.New("fake oracle: unknown feed")
	}
	return r.price, r.exponent, nil
}

func testAddr(name string) crypto.Address {
	return crypto.DeriveAddress("test", []byte(name))
}

func testConfig() ReserveConfig {
	return ReserveConfig{
		OptimalUtilizationRate:  80,
		MaxUtilizationRate:      90,
		LoanToValueRatio:        50,
		LiquidationBonus:        5,
		MaxLiquidationBonus:     10,
		LiquidationThreshold:    55,
		MaxLiquidationThreshold: 65,
		MinBorrowRate:           0,
		OptimalBorrowRate:       4,
		MaxBorrowRate:           30,
		SuperMaxBorrowRate:      150,
		Fees:                    ReserveFees{BorrowFeeWad: WAD / 1000, HostFeePercentage: 20},
		DepositLimit:            1_000_000_000_000,
		BorrowLimit:             1_000_000_000_000,
		FeeReceiver:             testAddr("fee-receiver"),
		ProtocolLiquidationFee:  10,
		ProtocolTakeRate:        5,
	}
}

type fixture struct {
	engine   *Engine
	state    *memState
	tokens   *memTokens
	oracle   memOracle
	emitted  *events.Buffer
	owner    crypto.Address
	user     crypto.Address
	protocol crypto.Address
	mint     crypto.Address
	feed     crypto.Address
	market   *LendingMarket
	reserve  *Reserve
}

// newFixture builds a market with one USD-pegged reserve of a 6 decimal token
// seeded with 1,000,000 base units by the owner.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:    newMemState(),
		tokens:   newMemTokens(),
		oracle:   memOracle{},
		emitted:  &events.Buffer{},
		owner:    testAddr("owner"),
		user:     testAddr("user"),
		protocol: testAddr("protocol"),
		mint:     testAddr("usdc"),
		feed:     testAddr("usdc-feed"),
	}
	if err := f.tokens.CreateMint(f.mint, 6, f.owner); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	f.tokens.balances[balanceKey{f.mint, f.owner}] = 1_000_000_000
	f.tokens.balances[balanceKey{f.mint, f.user}] = 1_000_000_000
	f.oracle[f.feed] = reading{price: 1_000_000, exponent: -6}

	f.engine = NewEngine(f.protocol)
	f.engine.SetState(f.state)
	f.engine.SetTokens(f.tokens)
	f.engine.SetOracle(f.oracle)
	f.engine.SetEmitter(f.emitted)
	f.engine.SetSlot(100)

	market, err := f.engine.InitMarket(f.owner, "USD")
	if err != nil {
		t.Fatalf("init market: %v", err)
	}
	f.market = market
	reserve, err := f.engine.InitReserve(f.owner, InitReserveParams{
		Market:           market.Address,
		LiquidityMint:    f.mint,
		OracleFeed:       f.feed,
		Key:              1,
		InitialLiquidity: 1_000_000,
		Config:           testConfig(),
	})
	if err != nil {
		t.Fatalf("init reserve: %v", err)
	}
	f.reserve = reserve
	f.emitted.Reset()
	return f
}

func (f *fixture) storedReserve(t *testing.T) *Reserve {
	t.Helper()
	r, err := f.state.GetReserve(f.reserve.Address)
	if err != nil || r == nil {
		t.Fatalf("load reserve: %v", err)
	}
	return r
}
