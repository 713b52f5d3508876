package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	authErr := NewError(KindAuth, "login", errors.New("rejected"))
	require.Equal(t, KindAuth, KindOf(authErr))

	wrapped := fmt.Errorf("grab failed: %w", authErr)
	require.Equal(t, KindAuth, KindOf(wrapped), "kind survives wrapping")

	require.Equal(t, KindProtocol, KindOf(errors.New("plain")), "unclassified errors default to protocol")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindConnectivity, true},
		{KindTimeout, true},
		{KindAuth, false},
		{KindProtocol, false},
		{KindSubmit, false},
	}
	for _, tt := range tests {
		err := NewError(tt.kind, "op", errors.New("x"))
		require.Equal(t, tt.want, IsRetryable(err), tt.kind)
	}
}

func TestClassifyTransport(t *testing.T) {
	require.Equal(t, KindTimeout, ClassifyTransport("op", context.DeadlineExceeded).Kind)
	require.Equal(t, KindConnectivity, ClassifyTransport("op", errors.New("connection refused")).Kind)
}

func TestClassifyStatus(t *testing.T) {
	require.Equal(t, KindAuth, ClassifyStatus("op", http.StatusUnauthorized).Kind)
	require.Equal(t, KindAuth, ClassifyStatus("op", http.StatusForbidden).Kind)
	require.Equal(t, KindSubmit, ClassifyStatus("op", http.StatusConflict).Kind)
	require.Equal(t, KindProtocol, ClassifyStatus("op", http.StatusBadGateway).Kind)
}

func TestBuildBaseURL(t *testing.T) {
	require.Equal(t, "http://localhost:8080", BuildBaseURL(false, "localhost", 8080, ""))
	require.Equal(t, "https://seedbox:443", BuildBaseURL(true, "seedbox", 443, ""))
	require.Equal(t, "http://nas:9091/transmission", BuildBaseURL(false, "nas", 9091, "/transmission/"))
}
