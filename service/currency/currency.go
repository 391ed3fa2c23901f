// Package currency holds the static registry of supported currencies and the
// classification that drives fee rates and swap routing. Classification, not
// the symbol itself, determines which settlement path a swap takes.
package currency

import "fmt"

// Class partitions currencies into mobile-money rails and crypto rails.
type Class int

const (
	ClassLocal Class = iota
	ClassCrypto
)

func (c Class) String() string {
	switch c {
	case ClassLocal:
		return "local"
	case ClassCrypto:
		return "crypto"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Direction is the combination of send/receive classes. It is a closed set;
// the orchestrator dispatches on it exhaustively so a new direction cannot be
// silently mishandled.
type Direction int

const (
	LocalToLocal Direction = iota
	LocalToCrypto
	CryptoToLocal
	CryptoToCrypto
)

func (d Direction) String() string {
	switch d {
	case LocalToLocal:
		return "local_to_local"
	case LocalToCrypto:
		return "local_to_crypto"
	case CryptoToLocal:
		return "crypto_to_local"
	case CryptoToCrypto:
		return "crypto_to_crypto"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Currency describes one entry in the static registry.
type Currency struct {
	Symbol  string
	Class   Class
	Network string // exchange network code for crypto currencies, empty for local
}

// Supported currency symbols. Local symbols are Somali mobile-money
// providers; crypto symbols carry the network used for exchange withdrawals.
const (
	EvcPlus   = "EvcPlus"
	Zaad      = "Zaad"
	Sahal     = "Sahal"
	USDTBEP20 = "USDT (BEP20)"
	USDTTRC20 = "USDT (TRC20)"
	Solana    = "Solana"
)

// Exchange network codes.
const (
	NetworkBEP20 = "BEP20"
	NetworkTRC20 = "TRC20"
	NetworkSOL   = "SOL"
)

var registry = map[string]Currency{
	EvcPlus:   {Symbol: EvcPlus, Class: ClassLocal},
	Zaad:      {Symbol: Zaad, Class: ClassLocal},
	Sahal:     {Symbol: Sahal, Class: ClassLocal},
	USDTBEP20: {Symbol: USDTBEP20, Class: ClassCrypto, Network: NetworkBEP20},
	USDTTRC20: {Symbol: USDTTRC20, Class: ClassCrypto, Network: NetworkTRC20},
	Solana:    {Symbol: Solana, Class: ClassCrypto, Network: NetworkSOL},
}

// Lookup returns the registry entry for a symbol.
func Lookup(symbol string) (Currency, bool) {
	c, ok := registry[symbol]
	return c, ok
}

// ClassOf returns the class of a symbol, or an error for unknown symbols.
func ClassOf(symbol string) (Class, error) {
	c, ok := registry[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown currency %q", symbol)
	}
	return c.Class, nil
}

// DirectionOf derives the swap direction from the two leg classes.
func DirectionOf(send, receive Class) Direction {
	switch {
	case send == ClassLocal && receive == ClassLocal:
		return LocalToLocal
	case send == ClassLocal && receive == ClassCrypto:
		return LocalToCrypto
	case send == ClassCrypto && receive == ClassLocal:
		return CryptoToLocal
	default:
		return CryptoToCrypto
	}
}

// DirectionOfSymbols derives the swap direction directly from two symbols.
func DirectionOfSymbols(sendSymbol, receiveSymbol string) (Direction, error) {
	sendClass, err := ClassOf(sendSymbol)
	if err != nil {
		return 0, err
	}
	receiveClass, err := ClassOf(receiveSymbol)
	if err != nil {
		return 0, err
	}
	return DirectionOf(sendClass, receiveClass), nil
}

// Symbols returns all registered symbols. Order is unspecified.
func Symbols() []string {
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}
