package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDescriptor() PaymentDescriptor {
	return PaymentDescriptor{
		ResourceURL: "https://example.com/api/paid-content",
		Method:      "GET",
		PayTo:       "0x1234567890123456789012345678901234567890",
		Network:     DefaultMonadTestnet(),
		Price:       "$0.01",
	}
}

func TestPaymentDescriptorValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid descriptor passes", func(t *testing.T) {
		d := validDescriptor()
		require.NoError(t, d.Validate())
	})

	t.Run("missing resource URL", func(t *testing.T) {
		d := validDescriptor()
		d.ResourceURL = ""
		assert.ErrorIs(t, d.Validate(), ErrMissingResource)
	})

	t.Run("missing method", func(t *testing.T) {
		d := validDescriptor()
		d.Method = ""
		assert.ErrorIs(t, d.Validate(), ErrMissingMethod)
	})

	t.Run("missing payTo", func(t *testing.T) {
		d := validDescriptor()
		d.PayTo = ""
		assert.ErrorIs(t, d.Validate(), ErrMissingPayTo)
	})

	t.Run("malformed payTo", func(t *testing.T) {
		d := validDescriptor()
		d.PayTo = "not-an-address"
		assert.ErrorIs(t, d.Validate(), ErrInvalidPayTo)
	})

	t.Run("missing chain id", func(t *testing.T) {
		d := validDescriptor()
		d.Network.ID = 0
		assert.ErrorIs(t, d.Validate(), ErrMissingChainID)
	})

	t.Run("malformed price", func(t *testing.T) {
		d := validDescriptor()
		d.Price = "0.01"
		assert.ErrorIs(t, d.Validate(), ErrInvalidPrice)
	})
}

func TestDefaultMonadTestnet(t *testing.T) {
	t.Parallel()

	network := DefaultMonadTestnet()
	assert.Equal(t, int64(10143), network.ID)
	assert.Equal(t, "Monad Testnet", network.Name)
	assert.Equal(t, "https://testnet.monad.xyz", network.RPC)
	assert.Equal(t, "MON", network.NativeCurrency.Symbol)
	assert.Equal(t, 18, network.NativeCurrency.Decimals)
	assert.True(t, network.Testnet)
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	t.Run("parses dollar amounts", func(t *testing.T) {
		// float64 literals round 0.01 upward, so the expectation is parsed
		// at the same precision as the implementation.
		expected, _, err := big.ParseFloat("0.01", 10, 256, big.ToNearestEven)
		require.NoError(t, err)

		amount, err := ParsePrice("$0.01")
		require.NoError(t, err)
		assert.Equal(t, 0, amount.Cmp(expected))
		assert.Equal(t, "0.01", amount.Text('f', 2))

		amount, err = ParsePrice("$1")
		require.NoError(t, err)
		assert.Equal(t, 0, amount.Cmp(big.NewFloat(1)))
	})

	t.Run("rejects missing dollar sign", func(t *testing.T) {
		_, err := ParsePrice("0.01")
		assert.Error(t, err)
	})

	t.Run("rejects empty amount", func(t *testing.T) {
		_, err := ParsePrice("$")
		assert.Error(t, err)
	})

	t.Run("rejects negative and exponent forms", func(t *testing.T) {
		for _, price := range []string{"$-0.01", "$1e2", "$+5"} {
			_, err := ParsePrice(price)
			assert.Error(t, err, price)
		}
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := ParsePrice("$0")
		assert.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParsePrice("$abc")
		assert.Error(t, err)
	})
}

func TestPaymentChallengeShape(t *testing.T) {
	t.Parallel()

	challenge := NewPaymentChallenge("payment required", validDescriptor())
	raw, err := json.Marshal(challenge)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// The descriptor fields flatten to the top level of the challenge body.
	assert.Equal(t, "payment required", decoded["error"])
	assert.Equal(t, float64(1), decoded["x402Version"])
	assert.Equal(t, "0x1234567890123456789012345678901234567890", decoded["payTo"])
	assert.Equal(t, "$0.01", decoded["price"])

	network, ok := decoded["network"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(10143), network["id"])
}

func TestSettlementResultGranted(t *testing.T) {
	t.Parallel()

	granted := SettlementResult{Status: 200}
	assert.True(t, granted.Granted())

	for _, status := range []int{402, 400, 500} {
		denied := SettlementResult{Status: status}
		assert.False(t, denied.Granted())
	}
}

func TestSettleReceiptRoundTrip(t *testing.T) {
	t.Parallel()

	receipt := &SettleReceipt{
		Success:     true,
		Transaction: "0xabc123",
		Network:     "monad-testnet",
		Payer:       "0x9876543210987654321098765432109876543210",
	}

	encoded, err := receipt.EncodeToBase64String()
	require.NoError(t, err)

	decoded, err := DecodeReceiptFromBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, receipt, decoded)
}

func TestDecodeReceiptFromBase64Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeReceiptFromBase64("not base64!!!")
	assert.Error(t, err)

	_, err = DecodeReceiptFromBase64("bm90IGpzb24=")
	assert.Error(t, err)
}

func TestNewInternalErrorBody(t *testing.T) {
	t.Parallel()

	body := NewInternalErrorBody("facilitator unreachable")
	assert.Equal(t, "Internal server error", body.Error)
	assert.Equal(t, "facilitator unreachable", body.Message)
}
