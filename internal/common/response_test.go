package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONRejectionRepeatsReason(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONRejection(rr, "COUPON_REJECTED", "Invalid code", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"message":"Invalid code","error":{"code":"COUPON_REJECTED","message":"Invalid code"}}`, rr.Body.String())
}

func TestSha256HexJoinsParts(t *testing.T) {
	require.Equal(t, Sha256Hex("user|key"), Sha256Hex("user", "key"))
	require.NotEqual(t, Sha256Hex("user", "key"), Sha256Hex("userkey"))
	require.Len(t, Sha256Hex(), 64)
}
