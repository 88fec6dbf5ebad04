package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GeneratesUniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id := New()
		assert.False(t, id.IsEmpty(), "Generated ID should not be empty")
		assert.False(t, ids[id.String()], "Generated ID should be unique")
		ids[id.String()] = true
	}
}

func TestNew_ConcurrentGeneration(t *testing.T) {
	ids := sync.Map{}
	var wg sync.WaitGroup
	count := 100
	goroutines := 10

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < count; i++ {
				id := New()
				_, loaded := ids.LoadOrStore(id.String(), true)
				assert.False(t, loaded, "ID collision detected in concurrent generation")
			}
		}()
	}

	wg.Wait()
}

func TestFromString_WithEmptyString(t *testing.T) {
	id := FromString("")
	assert.False(t, id.IsEmpty(), "FromString with empty string should generate new ID")
}

func TestFromString_WithExistingID(t *testing.T) {
	existing := "my-correlation-id"
	id := FromString(existing)
	assert.Equal(t, existing, id.String())
}

func TestID_IsEmpty(t *testing.T) {
	assert.True(t, ID("").IsEmpty())
	assert.False(t, ID("test").IsEmpty())
}

func TestWithCorrelationID_AndFromContext(t *testing.T) {
	ctx := context.Background()
	id := New()

	ctx = WithCorrelationID(ctx, id)
	retrieved := FromContext(ctx)

	assert.Equal(t, id, retrieved)
}

func TestFromContext_MissingID(t *testing.T) {
	assert.True(t, FromContext(context.Background()).IsEmpty())
	assert.True(t, FromContext(nil).IsEmpty())
}

func TestFromContextOrNew(t *testing.T) {
	generated := FromContextOrNew(context.Background())
	assert.False(t, generated.IsEmpty())

	id := New()
	ctx := WithCorrelationID(context.Background(), id)
	assert.Equal(t, id, FromContextOrNew(ctx))
}

func TestClientIPContext(t *testing.T) {
	ctx := WithClientIP(context.Background(), "10.0.0.1")
	assert.Equal(t, "10.0.0.1", ClientIPFromContext(ctx))
	assert.Equal(t, "", ClientIPFromContext(context.Background()))
}

func TestRequestInfo_ToContext(t *testing.T) {
	info := &RequestInfo{
		CorrelationID: New(),
		StartTime:     time.Now(),
		ClientIP:      "192.168.1.5",
		Method:        http.MethodPost,
		Path:          "/api/summarize",
	}

	ctx := info.ToContext(context.Background())

	assert.Equal(t, info.CorrelationID, FromContext(ctx))
	assert.Equal(t, "192.168.1.5", ClientIPFromContext(ctx))

	start, ok := RequestStartTimeFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, info.StartTime, start)
}

func newTestMiddleware() *HTTPMiddleware {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewHTTPMiddleware(logger, nil)
}

func TestMiddleware_GeneratesIDWhenMissing(t *testing.T) {
	m := newTestMiddleware()

	var seen ID
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	assert.False(t, seen.IsEmpty())
	assert.Equal(t, seen.String(), rec.Header().Get(HTTPHeader))
	assert.Equal(t, seen.String(), rec.Header().Get(HTTPRequestIDHeader))
}

func TestMiddleware_PropagatesInboundID(t *testing.T) {
	m := newTestMiddleware()

	var seen ID
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	for _, header := range []string{HTTPHeader, HTTPRequestIDHeader, HTTPTraceIDHeader} {
		req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
		req.Header.Set(header, "inbound-id")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, ID("inbound-id"), seen, "header %s", header)
		assert.Equal(t, "inbound-id", rec.Header().Get(HTTPHeader))
	}
}

func TestMiddleware_ClientIPFromForwardedFor(t *testing.T) {
	m := newTestMiddleware()

	var seenIP string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenIP = ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", seenIP)
}

func TestLoggerFromContext(t *testing.T) {
	logger := logrus.New()
	ctx := WithCorrelationID(context.Background(), ID("cid-1"))
	ctx = WithClientIP(ctx, "10.1.2.3")

	entry := LoggerFromContext(ctx, logger)
	assert.Equal(t, "cid-1", entry.Data["correlation_id"])
	assert.Equal(t, "10.1.2.3", entry.Data["client_ip"])

	empty := LoggerFromContext(context.Background(), logger)
	assert.Empty(t, empty.Data)
}
