package nexar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

const sampleResponse = `{
  "data": {
    "supSearchMpn": {
      "hits": 1,
      "results": [{
        "part": {
          "mpn": "GRM155R71C104KA88D",
          "manufacturer": {"id": "7", "name": "Murata"},
          "shortDescription": "CAP CER 0.1UF 16V X7R 0402",
          "octopartUrl": "https://octopart.com/grm155r71c104ka88d-murata",
          "category": {"name": "Ceramic Capacitors"},
          "specs": [{"attribute": {"name": "Capacitance"}, "value": "100", "units": "nF"}],
          "sellers": [{
            "country": "US",
            "company": {"name": "Digi-Key"},
            "offers": [{"inventoryLevel": 5000, "prices": [{"quantity": 1, "price": 0.1, "currency": "USD"}]}]
          }],
          "similarParts": [{"mpn": "CL05B104KO5NNNC", "manufacturer": {"name": "Samsung"}}]
        }
      }]
    }
  }
}`

func TestSearchMPN_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-token", r.Header.Get("token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "GRM155R71C104KA88D", req.Variables["mpn"])
		assert.Contains(t, req.Query, "supSearchMpn(q: $mpn, limit: 1)")
		assert.Contains(t, req.Query, "similarParts")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL), fastRetry())
	parts, err := client.SearchMPN(context.Background(), " GRM155R71C104KA88D ")

	require.NoError(t, err)
	require.Len(t, parts, 1)
	p := parts[0]
	assert.Equal(t, "GRM155R71C104KA88D", p.MPN)
	assert.Equal(t, "Murata", p.Manufacturer.Name)
	assert.Equal(t, "CAP CER 0.1UF 16V X7R 0402", p.Description())
	require.Len(t, p.Sellers, 1)
	assert.Equal(t, 5000, p.Sellers[0].Offers[0].InventoryLevel)
	require.Len(t, p.SimilarParts, 1)
	assert.Equal(t, "Samsung", p.SimilarParts[0].Manufacturer.Name)
}

func TestSearchMPN_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"supSearchMpn":{"hits":0,"results":[]}}}`))
	}))
	defer srv.Close()

	parts, err := NewClient("t", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestSearchMPN_MissingToken(t *testing.T) {
	t.Parallel()

	_, err := NewClient("").SearchMPN(context.Background(), "X")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestSearchMPN_Unauthorized(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(1), calls.Load(), "auth failures are not retried")
}

func TestSearchMPN_RateLimitedRetriesThenFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("t", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, resilience.IsRateLimited(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchMPN_ServerErrorRecovers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	parts, err := NewClient("t", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "GRM155R71C104KA88D")
	require.NoError(t, err)
	assert.Len(t, parts, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchMPN_GraphQLErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"Field 'foo' does not exist"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient("t", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrQuery))
}

func TestSearchMPN_GraphQLAuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"The current user is not authorized to access this resource."}]}`))
	}))
	defer srv.Close()

	_, err := NewClient("t", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestSearchMPN_Malformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient("t", WithBaseURL(srv.URL), fastRetry()).SearchMPN(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSearchMPN_BreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Name: "nexar", FailureThreshold: 2, Cooldown: time.Hour})
	client := NewClient("t", WithBaseURL(srv.URL), fastRetry(), WithBreaker(breaker))

	_, err := client.SearchMPN(context.Background(), "X")
	require.Error(t, err)
	assert.Equal(t, resilience.CircuitOpen, breaker.State())

	_, err = client.SearchMPN(context.Background(), "Y")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchMPN_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("t", WithBaseURL("http://127.0.0.1:1"), fastRetry(), WithRateLimit(1, 1)).SearchMPN(ctx, "X")
	require.Error(t, err)
}
