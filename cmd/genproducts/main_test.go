package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/model"
)

func TestGenerateProducts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, generateProducts(&buf, 25, rand.New(rand.NewSource(7))))

	sc := bufio.NewScanner(&buf)
	keys := make(map[string]bool)
	n := 0
	for sc.Scan() {
		var p model.Product
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		assert.NotEmpty(t, p.ID)
		assert.Contains(t, types, p.Type)
		for m, info := range p.MarketInfo {
			assert.Contains(t, markets, m)
			assert.GreaterOrEqual(t, info.Price, 5.0)
		}
		keys[p.Key()] = true
		n++
	}
	assert.Equal(t, 25, n)
	// productId is unique, so keys are too
	assert.Len(t, keys, 25)
}

func TestGenerateProducts_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, generateProducts(&a, 5, rand.New(rand.NewSource(1))))
	require.NoError(t, generateProducts(&b, 5, rand.New(rand.NewSource(1))))
	assert.Equal(t, a.String(), b.String())
}
