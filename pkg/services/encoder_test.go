package services

import (
	"errors"
	"testing"

	"kicks-forecast-api/pkg/services/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLabelEncoderSortedCodes(t *testing.T) {
	enc := FitLabelEncoder(ColumnRetailer, []string{"Walmart", "Amazon", "Foot Locker", "Amazon", "Kohl's"})

	assert.Equal(t, []string{"Amazon", "Foot Locker", "Kohl's", "Walmart"}, enc.Classes())
	code, err := enc.Encode("Foot Locker")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	code, err = enc.Encode("Walmart")
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestLabelEncoderUnknownValue(t *testing.T) {
	enc := FitLabelEncoder(ColumnRetailer, []string{"Amazon", "Walmart"})

	// 正規化はしない（大文字小文字・前後空白も未知扱い）
	for _, v := range []string{"NotARealStore", "amazon", " Amazon", ""} {
		_, err := enc.Encode(v)
		require.Error(t, err, v)
		assert.True(t, errors.Is(err, ErrUnknownCategory))

		var uce *UnknownCategoryError
		require.True(t, errors.As(err, &uce))
		assert.Equal(t, ColumnRetailer, uce.Field)
		assert.Equal(t, v, uce.Value)
	}
}

func TestNewLabelEncoderRejectsBadVocabulary(t *testing.T) {
	_, err := NewLabelEncoder("Region", map[string]int{"West": 0, "South": 0})
	assert.Error(t, err, "duplicate codes")

	_, err = NewLabelEncoder("Region", map[string]int{"West": 0, "South": 2})
	assert.Error(t, err, "code out of range")

	enc, err := NewLabelEncoder("Region", map[string]int{"West": 1, "South": 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"South", "West"}, enc.Classes())
}

func TestEncoderSetRoundTrip(t *testing.T) {
	records := servicetest.Records(50, 1)
	set := FitEncoderSet(records)

	restored, err := NewEncoderSet(set.Vocabularies())
	require.NoError(t, err)

	for _, r := range records {
		for _, col := range CategoricalColumns {
			want, err := set.Encode(col, categoryValue(r, col))
			require.NoError(t, err)
			got, err := restored.Encode(col, categoryValue(r, col))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestEncoderSetUnknownField(t *testing.T) {
	set := FitEncoderSet(servicetest.Records(20, 1))

	_, err := set.Encode("Color", "Red")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownCategory))
}

func TestNewEncoderSetRequiresAllColumns(t *testing.T) {
	vocab := FitEncoderSet(servicetest.Records(20, 1)).Vocabularies()
	delete(vocab, ColumnSalesMethod)

	_, err := NewEncoderSet(vocab)
	assert.Error(t, err)
}
