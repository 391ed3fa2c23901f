package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		symbol  string
		class   Class
		network string
	}{
		{EvcPlus, ClassLocal, ""},
		{Zaad, ClassLocal, ""},
		{Sahal, ClassLocal, ""},
		{USDTBEP20, ClassCrypto, NetworkBEP20},
		{USDTTRC20, ClassCrypto, NetworkTRC20},
		{Solana, ClassCrypto, NetworkSOL},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			c, ok := Lookup(tt.symbol)
			require.True(t, ok)
			assert.Equal(t, tt.class, c.Class)
			assert.Equal(t, tt.network, c.Network)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup("Dogecoin")
	assert.False(t, ok)

	_, err := ClassOf("Dogecoin")
	assert.Error(t, err)
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, LocalToLocal, DirectionOf(ClassLocal, ClassLocal))
	assert.Equal(t, LocalToCrypto, DirectionOf(ClassLocal, ClassCrypto))
	assert.Equal(t, CryptoToLocal, DirectionOf(ClassCrypto, ClassLocal))
	assert.Equal(t, CryptoToCrypto, DirectionOf(ClassCrypto, ClassCrypto))
}

func TestDirectionOfSymbols(t *testing.T) {
	d, err := DirectionOfSymbols(EvcPlus, USDTBEP20)
	require.NoError(t, err)
	assert.Equal(t, LocalToCrypto, d)

	d, err = DirectionOfSymbols(USDTBEP20, Zaad)
	require.NoError(t, err)
	assert.Equal(t, CryptoToLocal, d)

	_, err = DirectionOfSymbols("Dogecoin", Zaad)
	assert.Error(t, err)

	_, err = DirectionOfSymbols(Zaad, "Dogecoin")
	assert.Error(t, err)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "local_to_crypto", LocalToCrypto.String())
	assert.Equal(t, "crypto_to_local", CryptoToLocal.String())
}
