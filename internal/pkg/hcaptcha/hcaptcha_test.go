package hcaptcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siteverify(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "s3cret", r.PostForm.Get("secret"))
		resp := Response{Success: r.PostForm.Get("response") == "good-token"}
		if !resp.Success {
			resp.ErrorCodes = []string{"invalid-input-response"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify(t *testing.T) {
	srv := siteverify(t)
	c := New("s3cret")
	c.Endpoint = srv.URL

	ok, err := c.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Verify(context.Background(), "bad-token")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-input-response")
}

func TestVerifyRequiresTokenAndSecret(t *testing.T) {
	_, err := New("s3cret").Verify(context.Background(), "")
	assert.Error(t, err)

	c := New("")
	assert.False(t, c.Enabled())
	_, err = c.Verify(context.Background(), "token")
	assert.Error(t, err)
}
