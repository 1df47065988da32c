package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newStore() *KeyStore {
	return NewKeyStore(bcrypt.MinCost)
}

func TestAddAndValidate(t *testing.T) {
	ks := newStore()
	require.NoError(t, ks.Add("s3cret", "ci"))

	info, err := ks.Validate("s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ci", info.Description)

	_, err = ks.Validate("wrong")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ks.Validate("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAddRejectsEmpty(t *testing.T) {
	assert.ErrorIs(t, newStore().Add("  ", "blank"), ErrEmptyKey)
}

func TestGenerate(t *testing.T) {
	ks := newStore()
	a, err := ks.Generate("one")
	require.NoError(t, err)
	b, err := ks.Generate("two")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.Equal(t, 2, ks.Len())

	info, err := ks.Validate(b)
	require.NoError(t, err)
	assert.Equal(t, "two", info.Description)

	list := ks.List()
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[0].Description)
}

func TestKeyFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"x-api-key", map[string]string{"X-API-Key": "xyz"}, "xyz"},
		{"basic ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, KeyFromRequest(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	ks := newStore()
	require.NoError(t, ks.Add("letmein", "test"))

	h := ks.Middleware("/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(path, key string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if key != "" {
			r.Header.Set("Authorization", "Bearer "+key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusNoContent, do("/health", "").Code)
	assert.Equal(t, http.StatusNoContent, do("/last", "letmein").Code)

	w := do("/last", "nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestMiddlewareEmptyStoreIsOpen(t *testing.T) {
	h := newStore().Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
