package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func idemServer(t *testing.T, statuses ...int) (http.Handler, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	calls := 0
	h := Idem{R: rdb}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := statuses[min(calls, len(statuses)-1)]
		calls++
		JSON(w, status, map[string]int{"call": calls})
	}))
	return h, &calls
}

func postWithKey(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("Idempotency-Key", key)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdemRejectsReplayAfterSuccess(t *testing.T) {
	h, calls := idemServer(t, http.StatusCreated)

	require.Equal(t, http.StatusCreated, postWithKey(h, "k1").Code)
	rr := postWithKey(h, "k1")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, *calls)
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	h, calls := idemServer(t, http.StatusInternalServerError, http.StatusCreated)

	require.Equal(t, http.StatusInternalServerError, postWithKey(h, "k1").Code)
	require.Equal(t, http.StatusCreated, postWithKey(h, "k1").Code)
	require.Equal(t, 2, *calls)

	require.Equal(t, http.StatusConflict, postWithKey(h, "k1").Code)
}

func TestIdemReleasesKeyOnClientError(t *testing.T) {
	h, calls := idemServer(t, http.StatusBadRequest, http.StatusCreated)

	require.Equal(t, http.StatusBadRequest, postWithKey(h, "k2").Code)
	require.Equal(t, http.StatusCreated, postWithKey(h, "k2").Code)
	require.Equal(t, 2, *calls)
}

func TestIdemPassesThroughWithoutKey(t *testing.T) {
	h, calls := idemServer(t, http.StatusCreated)

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	require.Equal(t, 2, *calls)
}
