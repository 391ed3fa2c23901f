package binance

import (
	"fmt"
	"regexp"

	ethcommon "github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/taranswap/taran/service/currency"
)

// TRC20 addresses are base58, start with T, 34 chars.
var trc20AddressRegex = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)

// ValidateAddress checks the destination address format for a withdrawal
// network. Must be called before Withdraw; the exchange rejects malformed
// addresses with an opaque error, this gives the caller a precise one.
func ValidateAddress(network, address string) error {
	switch network {
	case currency.NetworkBEP20:
		if !ethcommon.IsHexAddress(address) {
			return fmt.Errorf("invalid BEP20 address %q: want 0x-prefixed 40 hex chars", address)
		}
	case currency.NetworkTRC20:
		if !trc20AddressRegex.MatchString(address) {
			return fmt.Errorf("invalid TRC20 address %q", address)
		}
	case currency.NetworkSOL:
		if _, err := solanago.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("invalid Solana address %q: %w", address, err)
		}
	default:
		return fmt.Errorf("unsupported withdrawal network %q", network)
	}
	return nil
}

// NormalizeBEP20Address returns the checksummed form of a BEP20 address.
// Callers should validate first; invalid input is returned unchanged.
func NormalizeBEP20Address(address string) string {
	if !ethcommon.IsHexAddress(address) {
		return address
	}
	return ethcommon.HexToAddress(address).Hex()
}
