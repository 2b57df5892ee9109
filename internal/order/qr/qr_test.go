package qr

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47}

func TestGenerateHandoffQR(t *testing.T) {
	g := NewGenerator("test-secret")

	png, err := g.GenerateHandoffQR(HandoffPayload{
		OrderID:     "order-1",
		OrderNumber: "ORD000001",
		CustomerID:  "customer-1",
		Kind:        "pickup",
		IssuedAt:    time.Now(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, png)
	assert.True(t, bytes.HasPrefix(png, pngHeader), "Output should be a PNG image")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	g := NewGenerator("test-secret")

	payload := HandoffPayload{
		OrderID:     "order-1",
		OrderNumber: "ORD000001",
		CustomerID:  "customer-1",
		Kind:        "delivery",
		IssuedAt:    time.Now().UTC().Truncate(time.Second),
	}

	data, err := encryptPayload(g, payload)
	require.NoError(t, err)

	decoded, err := g.DecodePayload(data)
	require.NoError(t, err)

	assert.Equal(t, payload.OrderID, decoded.OrderID)
	assert.Equal(t, payload.OrderNumber, decoded.OrderNumber)
	assert.Equal(t, payload.Kind, decoded.Kind)
	assert.True(t, payload.IssuedAt.Equal(decoded.IssuedAt))
}

func TestDecodePayload_WrongSecret(t *testing.T) {
	g := NewGenerator("test-secret")
	other := NewGenerator("another-secret")

	data, err := encryptPayload(g, HandoffPayload{OrderID: "order-1", Kind: "pickup"})
	require.NoError(t, err)

	// A foreign key yields garbage that fails to unmarshal.
	_, err = other.DecodePayload(data)
	assert.Error(t, err)
}

func TestDecodePayload_Garbage(t *testing.T) {
	g := NewGenerator("test-secret")

	_, err := g.DecodePayload("not-base64!!!")
	assert.Error(t, err)

	_, err = g.DecodePayload("c2hvcnQ=")
	assert.Error(t, err)
}

func encryptPayload(g *Generator, payload HandoffPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}
