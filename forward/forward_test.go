package forward_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcelsud/webhook-gateway/dispatch"
	"github.com/marcelsud/webhook-gateway/forward"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() webhook.Event {
	return webhook.Event{
		Provider:  "acme",
		EventID:   "evt_1",
		EventType: "paid",
		Payload:   []byte(`{"id":"evt_1","type":"paid"}`),
	}
}

func TestHandler_Handle(t *testing.T) {
	t.Run("forwards payload and headers", func(t *testing.T) {
		var (
			gotBody    string
			gotHeaders http.Header
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		err := forward.NewHandler(server.URL, 0, server.Client()).Handle(context.Background(), testEvent())

		require.NoError(t, err)
		assert.Equal(t, `{"id":"evt_1","type":"paid"}`, gotBody)
		assert.Equal(t, "acme", gotHeaders.Get(forward.HeaderProvider))
		assert.Equal(t, "evt_1", gotHeaders.Get(forward.HeaderEventID))
		assert.Equal(t, "paid", gotHeaders.Get(forward.HeaderEventType))
		assert.Equal(t, "acme:evt_1", gotHeaders.Get("Idempotency-Key"))
	})

	tests := []struct {
		name      string
		status    int
		expected  int
		wantErr   bool
		wantFatal bool
	}{
		{name: "any 2xx", status: http.StatusNoContent},
		{name: "expected status matches", status: http.StatusCreated, expected: http.StatusCreated},
		{name: "expected status differs", status: http.StatusOK, expected: http.StatusCreated, wantErr: true, wantFatal: true},
		{name: "client error is fatal", status: http.StatusBadRequest, wantErr: true, wantFatal: true},
		{name: "too many requests is retryable", status: http.StatusTooManyRequests, wantErr: true},
		{name: "server error is retryable", status: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("downstream says no"))
			}))
			defer server.Close()

			err := forward.NewHandler(server.URL, tt.expected, server.Client()).Handle(context.Background(), testEvent())

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantFatal, dispatch.IsFatal(err))

			var statusErr *forward.StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}

	t.Run("network error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		err := forward.NewHandler(url, 0, nil).Handle(context.Background(), testEvent())

		require.Error(t, err)
		assert.False(t, dispatch.IsFatal(err))
	})

	t.Run("invalid url is fatal", func(t *testing.T) {
		err := forward.NewHandler("://nope", 0, nil).Handle(context.Background(), testEvent())

		require.Error(t, err)
		assert.True(t, dispatch.IsFatal(err))
	})
}

func TestBuilder(t *testing.T) {
	build := forward.Builder(nil)

	h, err := build(providers.Provider{Name: "acme"}, providers.HandlerSpec{Name: "x", TargetURL: "https://x.test", ExpectedStatus: 202})

	require.NoError(t, err)
	fh, ok := h.(*forward.Handler)
	require.True(t, ok)
	assert.Equal(t, 202, fh.ExpectedStatus)
}
