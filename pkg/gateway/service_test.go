package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocppgate/pkg/config"
	"ocppgate/pkg/ocpp"
	"ocppgate/pkg/soap"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func soap12Envelope(payloadNS string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Header>
    <chargeBoxIdentity xmlns="` + payloadNS + `">CB-0001</chargeBoxIdentity>
  </soap:Header>
  <soap:Body>
    <heartbeatRequest xmlns="` + payloadNS + `"/>
  </soap:Body>
</soap:Envelope>`
}

// replyingObserver answers every message with a fixed body and keeps what it
// read.
type replyingObserver struct {
	reply string

	mu     sync.Mutex
	bodies []string
}

func (o *replyingObserver) OnMessage(msg *soap.Message) {
	body, _ := io.ReadAll(msg.Content)
	o.mu.Lock()
	o.bodies = append(o.bodies, string(body))
	o.mu.Unlock()

	msg.Reply.Header().Set("Content-Type", "application/soap+xml")
	_, _ = io.WriteString(msg.Reply, o.reply)
}

func (o *replyingObserver) received() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.bodies...)
}

func postSOAP(t *testing.T, handler http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", `application/soap+xml; charset="utf-8"`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	svc, err := NewService(config.Default(), nil, quietLogger(), opts...)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRegistersConfiguredNamespaces(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	assert.Equal(t, []string{
		ocpp.V12.Namespace(),
		ocpp.V15.Namespace(),
		ocpp.V16.Namespace(),
	}, svc.router.Registry().Namespaces())
}

func TestNewServiceRejectsDuplicateNamespace(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.SOAP.Endpoints = []config.EndpointConfig{
		{Version: "1.6", Path: "/a"},
		{Version: "1.6", Path: "/b"},
	}

	_, err := NewService(cfg, nil, quietLogger())
	require.ErrorIs(t, err, soap.ErrDuplicateNamespace)
}

func TestNewServiceRejectsEmptyRegistry(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{SOAP: config.SOAPConfig{RouterPath: "/router"}}
	_, err := NewService(cfg, nil, quietLogger())
	require.ErrorIs(t, err, soap.ErrNoEndpoints)
}

func TestNewServiceRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, nil, quietLogger())
	require.Error(t, err)
}

func TestRouterPathDispatchesByPayloadNamespace(t *testing.T) {
	t.Parallel()

	v16 := &replyingObserver{reply: "<ok16/>"}
	v15 := &replyingObserver{reply: "<ok15/>"}
	svc := newTestService(t,
		WithSOAPObserver(ocpp.V16.Namespace(), v16),
		WithSOAPObserver(ocpp.V15.Namespace(), v15),
	)

	envelope := soap12Envelope(ocpp.V16.Namespace())
	rec := postSOAP(t, svc.Handler(), config.DefaultRouterPath, envelope)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<ok16/>", rec.Body.String())
	assert.Equal(t, []string{envelope}, v16.received())
	assert.Empty(t, v15.received())
}

func TestRouterPathAnswersNotFoundForUnknownNamespace(t *testing.T) {
	t.Parallel()

	v16 := &replyingObserver{reply: "<ok/>"}
	svc := newTestService(t, WithSOAPObserver(ocpp.V16.Namespace(), v16))

	rec := postSOAP(t, svc.Handler(), config.DefaultRouterPath, soap12Envelope("urn://Ocpp/Cs/2099/01"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, v16.received())
}

func TestRouterPathAnswersNotFoundForGarbage(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	rec := postSOAP(t, svc.Handler(), config.DefaultRouterPath, "this is not xml")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionWithoutServiceAnswersFault(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	rec := postSOAP(t, svc.Handler(), config.DefaultRouterPath, soap12Envelope(ocpp.V12.Namespace()))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/soap+xml")
	assert.Contains(t, rec.Body.String(), "env:Receiver")
	assert.Contains(t, rec.Body.String(), "OCPP 1.2 has no service implementation for heartbeatRequest")
}

func TestVersionEndpointPathSkipsRouting(t *testing.T) {
	t.Parallel()

	v15 := &replyingObserver{reply: "<direct/>"}
	svc := newTestService(t, WithSOAPObserver(ocpp.V15.Namespace(), v15))

	// The path decides the service; the payload namespace is not inspected.
	envelope := soap12Envelope(ocpp.V16.Namespace())
	rec := postSOAP(t, svc.Handler(), config.DefaultRouterPath+"OCPP15", envelope)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<direct/>", rec.Body.String())
	assert.Equal(t, []string{envelope}, v15.received())
}

func TestSOAPPathsRejectNonPost(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	for _, path := range []string{config.DefaultRouterPath, config.DefaultRouterPath + "OCPP16"} {
		rec := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"), path)
	}
}

func TestSetSOAPObserverSwapsRegistry(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	handler := svc.Handler()
	envelope := soap12Envelope(ocpp.V15.Namespace())

	rec := postSOAP(t, handler, config.DefaultRouterPath, envelope)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	v15 := &replyingObserver{reply: "<swapped/>"}
	require.NoError(t, svc.SetSOAPObserver(ocpp.V15.Namespace(), v15))

	rec = postSOAP(t, handler, config.DefaultRouterPath, envelope)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<swapped/>", rec.Body.String())

	// Other versions keep their services across the swap.
	rec = postSOAP(t, handler, config.DefaultRouterPath, soap12Envelope(ocpp.V12.Namespace()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSetSOAPObserverKeepsEarlierSwaps(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	v15 := &replyingObserver{reply: "<v15/>"}
	v16 := &replyingObserver{reply: "<v16/>"}
	require.NoError(t, svc.SetSOAPObserver(ocpp.V15.Namespace(), v15))
	require.NoError(t, svc.SetSOAPObserver(ocpp.V16.Namespace(), v16))

	rec := postSOAP(t, svc.Handler(), config.DefaultRouterPath, soap12Envelope(ocpp.V15.Namespace()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<v15/>", rec.Body.String())
}

func TestSetSOAPObserverRejectsUnknownNamespaceAndNil(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	require.Error(t, svc.SetSOAPObserver("urn:unknown", &replyingObserver{}))
	require.ErrorIs(t, svc.SetSOAPObserver(ocpp.V16.Namespace(), nil), soap.ErrNilObserver)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	handler := svc.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), ocpp.V16.Namespace())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"not_ready"`)
}

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	svc.channelStates = map[string]channelState{"ws": {Running: true}}
	require.False(t, svc.isReady(), "not ready before the listener is up")

	svc.listening = true
	require.True(t, svc.isReady())

	svc.channelStates["ws"] = channelState{Running: false, Error: "closed"}
	require.False(t, svc.isReady())
}

func TestDeclaredCharset(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                       "",
		"text/xml":                               "",
		`text/xml; charset="ISO-8859-1"`:         "ISO-8859-1",
		"application/soap+xml;charset=utf-8":     "utf-8",
		"application/soap+xml; action=\"/Boot\"": "",
		"not a ; media type ;; =":                "",
	}
	for contentType, want := range tests {
		assert.Equal(t, want, declaredCharset(contentType), contentType)
	}
}
