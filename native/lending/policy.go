package lending

import "lendcore/crypto"

// Role is the closed set of identities that may mutate reserve configuration.
type Role uint8

const (
	RoleNone Role = iota
	RoleOwner
	RoleRiskAuthority
	RoleProtocolAuthority
	// RoleProtocolOwner is the protocol authority acting as market owner.
	RoleProtocolOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleRiskAuthority:
		return "risk_authority"
	case RoleProtocolAuthority:
		return "protocol_authority"
	case RoleProtocolOwner:
		return "protocol_owner"
	default:
		return "none"
	}
}

// ResolveRole matches signer against the three stored identities. A zero
// protocol authority never matches.
func ResolveRole(signer crypto.Address, market *LendingMarket, protocolAuthority crypto.Address) Role {
	if signer.IsZero() || market == nil {
		return RoleNone
	}
	isProtocol := !protocolAuthority.IsZero() && signer == protocolAuthority
	switch {
	case isProtocol && signer == market.Owner:
		return RoleProtocolOwner
	case isProtocol:
		return RoleProtocolAuthority
	case signer == market.Owner:
		return RoleOwner
	case signer == market.RiskAuthority:
		return RoleRiskAuthority
	default:
		return RoleNone
	}
}

// ConfigChange is the outcome of applying a role's proposal.
type ConfigChange struct {
	Config      ReserveConfig
	RateLimiter RateLimiterConfig
}

// ApplyConfigChange decides which parts of the proposal role may write and
// returns the resulting config. It does not validate the result.
func ApplyConfigChange(role Role, current ReserveConfig, currentLimiter RateLimiterConfig, proposed ReserveConfig, proposedLimiter RateLimiterConfig) (ConfigChange, error) {
	switch role {
	case RoleProtocolOwner:
		return ConfigChange{Config: proposed, RateLimiter: proposedLimiter}, nil
	case RoleProtocolAuthority:
		return ConfigChange{Config: withProtocolFields(current, proposed), RateLimiter: currentLimiter}, nil
	case RoleOwner:
		if !protocolFieldsEqual(current, proposed) {
			return ConfigChange{}, ErrNotBernanke
		}
		return ConfigChange{Config: proposed, RateLimiter: proposedLimiter}, nil
	case RoleRiskAuthority:
		if err := checkRiskReducing(current, currentLimiter, proposed, proposedLimiter); err != nil {
			return ConfigChange{}, err
		}
		return ConfigChange{Config: proposed, RateLimiter: proposedLimiter}, nil
	default:
		return ConfigChange{}, ErrUnauthorized
	}
}

// checkRiskReducing admits proposals that only lower deposit, borrow and
// outflow limits. The window may change only while outflow is being halted.
func checkRiskReducing(current ReserveConfig, currentLimiter RateLimiterConfig, proposed ReserveConfig, proposedLimiter RateLimiterConfig) error {
	if proposed.BorrowLimit > current.BorrowLimit || proposed.DepositLimit > current.DepositLimit {
		return ErrUnauthorized
	}
	if proposedLimiter.MaxOutflow > currentLimiter.MaxOutflow {
		return ErrUnauthorized
	}
	if proposedLimiter.WindowDuration != currentLimiter.WindowDuration && proposedLimiter.MaxOutflow != 0 {
		return ErrUnauthorized
	}
	rest := proposed
	rest.BorrowLimit = current.BorrowLimit
	rest.DepositLimit = current.DepositLimit
	if rest != current {
		return ErrUnauthorized
	}
	return nil
}
