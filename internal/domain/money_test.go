package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_AddIsAssociativeAndCommutative(t *testing.T) {
	a, _ := NewMoney(100, EUR)
	b, _ := NewMoney(250, EUR)
	c, _ := NewMoney(400, EUR)

	ab, err := a.Add(b)
	require.NoError(t, err)
	abc, err := ab.Add(c)
	require.NoError(t, err)

	bc, err := b.Add(c)
	require.NoError(t, err)
	a_bc, err := a.Add(bc)
	require.NoError(t, err)
	assert.Equal(t, abc, a_bc)

	ba, err := b.Add(a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestMoney_ZeroIsIdentity(t *testing.T) {
	a, _ := NewMoney(500, USD)
	zero := ZeroMoney(USD)

	sum, err := a.Add(zero)
	require.NoError(t, err)
	assert.Equal(t, a, sum)

	sum2, err := zero.Add(a)
	require.NoError(t, err)
	assert.Equal(t, a, sum2)
}

func TestMoney_MixingCurrenciesFails(t *testing.T) {
	eur, _ := NewMoney(100, EUR)
	usd, _ := NewMoney(100, USD)

	_, err := eur.Add(usd)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_MultiplyPreservesCurrency(t *testing.T) {
	unit, _ := NewMoney(1250, GBP)
	total := unit.Multiply(3)
	assert.Equal(t, int64(3750), total.Amount)
	assert.Equal(t, GBP, total.Currency)
}

func TestNewMoney_RejectsUnsupportedCurrency(t *testing.T) {
	_, err := NewMoney(100, Currency("JPY"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}
