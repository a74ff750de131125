package genesis

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lendcore/crypto"
	nativecommon "lendcore/native/common"
	"lendcore/native/oracle"
)

const maxDecimals = 18

// GenesisSpec seeds a fresh node with mints, balances and price feeds.
type GenesisSpec struct {
	GenesisTime       string              `yaml:"genesisTime"`
	SlotDuration      time.Duration       `yaml:"slotDuration"`
	ProtocolAuthority string              `yaml:"protocolAuthority"`
	Tokens            []TokenSpec         `yaml:"tokens"`
	Feeds             []FeedSpec          `yaml:"feeds"`
	Alloc             map[string]Balances `yaml:"alloc"` // addr -> symbol -> amount

	genesisTimestamp  time.Time
	protocolAuthority crypto.Address
}

// Balances maps a token symbol to an amount in base units.
type Balances map[string]uint64

type TokenSpec struct {
	Symbol        string `yaml:"symbol"`
	Decimals      uint8  `yaml:"decimals"`
	MintAuthority string `yaml:"mintAuthority,omitempty"`

	authority crypto.Address
}

type FeedSpec struct {
	Symbol    string `yaml:"symbol"`
	Publisher string `yaml:"publisher"`
	Price     uint64 `yaml:"price"`
	Exponent  int32  `yaml:"exponent"`

	publisher crypto.Address
}

// LoadGenesisSpec reads and validates the YAML genesis file at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// ProtocolAuthorityAddress is the decoded protocol authority. It may be zero.
func (s *GenesisSpec) ProtocolAuthorityAddress() crypto.Address { return s.protocolAuthority }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime
	if s.SlotDuration < 0 {
		return fmt.Errorf("slotDuration must not be negative")
	}

	s.protocolAuthority, err = crypto.DecodeAddress(s.ProtocolAuthority)
	if err != nil {
		return fmt.Errorf("protocolAuthority: %w", err)
	}

	tokenSymbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		if err := s.Tokens[i].validate(s.protocolAuthority); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := nativecommon.NormalizeSymbol(s.Tokens[i].Symbol)
		if _, exists := tokenSymbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, s.Tokens[i].Symbol)
		}
		tokenSymbols[key] = struct{}{}
	}

	feedSymbols := make(map[string]struct{}, len(s.Feeds))
	for i := range s.Feeds {
		if err := s.Feeds[i].validate(); err != nil {
			return fmt.Errorf("feeds[%d]: %w", i, err)
		}
		key := nativecommon.NormalizeSymbol(s.Feeds[i].Symbol)
		if _, exists := feedSymbols[key]; exists {
			return fmt.Errorf("feeds[%d]: duplicate symbol %q", i, s.Feeds[i].Symbol)
		}
		feedSymbols[key] = struct{}{}
	}

	for _, account := range sortedKeys(s.Alloc) {
		if _, err := crypto.DecodeAddress(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		seen := make(map[string]struct{}, len(s.Alloc[account]))
		for _, symbol := range sortedKeys(s.Alloc[account]) {
			key := nativecommon.NormalizeSymbol(symbol)
			if _, exists := tokenSymbols[key]; !exists {
				return fmt.Errorf("alloc[%q][%q]: undefined token", account, symbol)
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("alloc[%q]: duplicate token %q", account, symbol)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

func (t *TokenSpec) validate(fallback crypto.Address) error {
	if nativecommon.NormalizeSymbol(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if t.Decimals > maxDecimals {
		return fmt.Errorf("decimals must be %d or fewer", maxDecimals)
	}
	authority, err := crypto.DecodeAddress(t.MintAuthority)
	if err != nil {
		return fmt.Errorf("mintAuthority: %w", err)
	}
	if authority.IsZero() {
		authority = fallback
	}
	if authority.IsZero() {
		return fmt.Errorf("mintAuthority or protocolAuthority must be provided")
	}
	t.authority = authority
	return nil
}

func (f *FeedSpec) validate() error {
	if nativecommon.NormalizeSymbol(f.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	publisher, err := crypto.DecodeAddress(f.Publisher)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	if publisher.IsZero() {
		return fmt.Errorf("publisher must be provided")
	}
	if f.Price == 0 {
		return fmt.Errorf("price must be positive")
	}
	if f.Exponent > oracle.MaxExponent || f.Exponent < -oracle.MaxExponent {
		return fmt.Errorf("exponent must be within ±%d", oracle.MaxExponent)
	}
	f.publisher = publisher
	return nil
}


func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
