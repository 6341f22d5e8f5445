package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSignal(t *testing.T) {
	t.Run("FullAlert", func(t *testing.T) {
		sig, err := ParseSignal("DOTUSDT - BUY - Price = 9.3802 - Alert Time = 2024-03-25T02:24:00Z")

		assert.NoError(t, err)
		assert.Equal(t, "DOTUSDT", sig.Pair)
		assert.Equal(t, ActionBuy, sig.Action)
		assert.Equal(t, 9.3802, sig.Price)
	})

	t.Run("MinimalFields", func(t *testing.T) {
		sig, err := ParseSignal("ABCUSDT - SELL - Price = 2.50")

		assert.NoError(t, err)
		assert.Equal(t, "ABCUSDT", sig.Pair)
		assert.Equal(t, ActionSell, sig.Action)
		assert.Equal(t, 2.50, sig.Price)
	})

	t.Run("ActionIsNormalized", func(t *testing.T) {
		sig, err := ParseSignal("ABCUSDT - buy - Price = 1.0")

		assert.NoError(t, err)
		assert.Equal(t, ActionBuy, sig.Action)
	})

	t.Run("TooFewFields", func(t *testing.T) {
		_, err := ParseSignal("ABCUSDT - BUY")

		assert.ErrorIs(t, err, ErrMalformedSignal)
	})

	t.Run("NonNumericPrice", func(t *testing.T) {
		_, err := ParseSignal("ABCUSDT - BUY - Price = cheap - Alert Time = 2024-03-25T02:24:00Z")

		assert.ErrorIs(t, err, ErrMalformedSignal)
	})

	t.Run("UnknownAction", func(t *testing.T) {
		_, err := ParseSignal("ABCUSDT - HOLD - Price = 1.0")

		assert.ErrorIs(t, err, ErrMalformedSignal)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		_, err := ParseSignal("")

		assert.ErrorIs(t, err, ErrMalformedSignal)
	})
}
