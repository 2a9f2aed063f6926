package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	testobserve "github.com/gaecom/substrate/internal/testutils/observability"
)

func TestInstrumentHTTP(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	observe := testobserve.Default(t).WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	srv, err := NewHTTPServer(&ServerConfiguration{}, observe, RegistrarFunc(func(r *mux.Router) {
		r.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
			if mux.Vars(r)["id"] == "0" {
				w.WriteHeader(http.StatusNotFound)
			}
			_, _ = w.Write([]byte("ok"))
		}).Methods(http.MethodGet)
	}))
	require.NoError(t, err)

	for _, path := range []string{"/api/v1/items/1", "/api/v1/items/2", "/api/v1/items/0"} {
		srv.Handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Equal(t, metricsScopeRESTAPI, rm.ScopeMetrics[0].Scope.Name)

	calls := map[int]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != "calls" {
			continue
		}
		for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
			route, ok := dp.Attributes.Value(semconv.HTTPRouteKey)
			require.True(t, ok)
			require.Equal(t, "/api/v1/items/{id}", route.AsString())
			code, ok := dp.Attributes.Value(semconv.HTTPStatusCodeKey)
			require.True(t, ok)
			calls[int(code.AsInt64())] = dp.Value
		}
	}
	require.Equal(t, map[int]int64{http.StatusOK: 2, http.StatusNotFound: 1}, calls)
}

func TestStatusResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newStatusResponseWriter(rec)
	require.Equal(t, http.StatusOK, w.statusCode)

	_, err := w.Write([]byte("body"))
	require.NoError(t, err)
	// status can't change once the body has been written
	w.WriteHeader(http.StatusTeapot)
	require.Equal(t, http.StatusOK, w.statusCode)
	require.Equal(t, rec, w.Unwrap())
}

func TestMetricsEndpoints(t *testing.T) {
	observe := testobserve.NOPObservability()
	srv, err := NewHTTPServer(&ServerConfiguration{}, observe,
		MetricsEndpoints(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "# metrics", rec.Body.String())

	// nil handler registers nothing
	srv, err = NewHTTPServer(&ServerConfiguration{}, observe, MetricsEndpoints(nil))
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err = NewHTTPServer(nil, observe)
	require.EqualError(t, err, "server configuration is nil")
}
