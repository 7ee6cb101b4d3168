package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Value(t *testing.T) {
	t.Run("Value returns marshaled JSON", func(t *testing.T) {
		m := Metadata{"key": "value"}

		value, err := m.Value()

		require.NoError(t, err)
		bytes, ok := value.([]byte)
		require.True(t, ok)

		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "value", result["key"])
	})

	t.Run("Value handles empty metadata", func(t *testing.T) {
		m := Metadata{}

		value, err := m.Value()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), value)
	})
}

func TestMetadata_Scan(t *testing.T) {
	t.Run("Scan from JSON bytes", func(t *testing.T) {
		var m Metadata

		err := m.Scan([]byte(`{"key":"value","count":42}`))

		require.NoError(t, err)
		assert.Equal(t, "value", m["key"])
		assert.Equal(t, float64(42), m["count"])
	})

	t.Run("Scan from nil yields empty metadata", func(t *testing.T) {
		var m Metadata

		err := m.Scan(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Scan from Metadata directly", func(t *testing.T) {
		var m Metadata

		err := m.Scan(Metadata{"key": "value"})

		require.NoError(t, err)
		assert.Equal(t, "value", m["key"])
	})

	t.Run("Scan rejects invalid type", func(t *testing.T) {
		var m Metadata

		err := m.Scan(12345)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "type assertion")
	})

	t.Run("Scan rejects invalid JSON", func(t *testing.T) {
		var m Metadata

		err := m.Scan([]byte(`{invalid json}`))

		require.Error(t, err)
	})
}
