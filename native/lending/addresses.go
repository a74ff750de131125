package lending

import "lendcore/crypto"

// MarketAddress is the market created by initializer.
func MarketAddress(initializer crypto.Address) crypto.Address {
	return crypto.DeriveAddress("market", initializer[:])
}

// ReserveAddress is the reserve registered under key in market.
func ReserveAddress(market crypto.Address, key uint64) crypto.Address {
	return crypto.DeriveAddress("reserve", market[:], crypto.Uint64Seed(key))
}

// ObligationAddress is owner's obligation under key in market.
func ObligationAddress(market, owner crypto.Address, key uint64) crypto.Address {
	return crypto.DeriveAddress("obligation", market[:], owner[:], crypto.Uint64Seed(key))
}

// CollateralMintAddress is the claim token mint of reserve.
func CollateralMintAddress(reserve crypto.Address) crypto.Address {
	return crypto.DeriveAddress("collateral-mint", reserve[:])
}

// LiquiditySupplyAddress holds the reserve's underlying liquidity.
func LiquiditySupplyAddress(reserve crypto.Address) crypto.Address {
	return crypto.DeriveAddress("liquidity-supply", reserve[:])
}

// CollateralSupplyAddress holds claim tokens deposited into obligations.
func CollateralSupplyAddress(reserve crypto.Address) crypto.Address {
	return crypto.DeriveAddress("collateral-supply", reserve[:])
}

// FeeAddress receives the reserve's liquidity fees.
func FeeAddress(reserve crypto.Address) crypto.Address {
	return crypto.DeriveAddress("fee", reserve[:])
}
