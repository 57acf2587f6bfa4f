package momo

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtraDataEncodeMatchesWireFormat(t *testing.T) {
	got, err := ExtraData{UserID: "u1", Type: PurposeDeposit}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "eyJ1c2VySWQiOiJ1MSIsInR5cGUiOiJkZXBvc2l0In0=", got)
}

func TestExtraDataRoundTripOrder(t *testing.T) {
	in := ExtraData{UserID: "u1", Type: PurposeOrder, OrderID: "ord-7"}
	encoded, err := in.Encode()
	require.NoError(t, err)

	out, err := DecodeExtraData(encoded)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeExtraDataRejects(t *testing.T) {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	cases := map[string]string{
		"empty":            "",
		"not base64":       "%%%",
		"not json":         b64("userId=u1"),
		"missing user":     b64(`{"type":"deposit"}`),
		"unknown type":     b64(`{"userId":"u1","type":"gift"}`),
		"order without id": b64(`{"userId":"u1","type":"order"}`),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeExtraData(encoded)
			assert.Error(t, err)
		})
	}
}
