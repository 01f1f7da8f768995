package soap

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	bodies []string
	errs   []error
}

func (o *recordingObserver) OnMessage(msg *Message) {
	body, err := io.ReadAll(msg.Content)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies = append(o.bodies, string(body))
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.bodies...)
}

type countingChain struct {
	aborts atomic.Int32
}

func (c *countingChain) Abort() {
	c.aborts.Add(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, opts ...Option) (*Router, *recordingObserver, *recordingObserver) {
	t.Helper()

	v15 := &recordingObserver{}
	v16 := &recordingObserver{}
	reg, err := NewRegistry([]Endpoint{
		{Address: routerAddress, Namespace: "urn:router", Observer: nopObserver()},
		{Address: "/services/CentralSystemServiceOCPP15", Namespace: nsV15, Observer: v15},
		{Address: "/services/CentralSystemServiceOCPP16", Namespace: nsV16, Observer: v16},
	}, routerAddress)
	require.NoError(t, err)

	router, err := NewRouter(reg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return router, v15, v16
}

func TestRouteForwardsOriginalBytesToMatchingObserver(t *testing.T) {
	t.Parallel()

	router, v15, v16 := newTestRouter(t)
	original := soap12Envelope(nsV16)
	chain := &countingChain{}

	router.Route(&Message{
		Content: iotest.OneByteReader(strings.NewReader(original)),
		Address: routerAddress,
		Chain:   chain,
	})

	require.Equal(t, []string{original}, v16.calls())
	require.Empty(t, v15.calls())
	require.Equal(t, int32(1), chain.aborts.Load())
}

func TestRouteUnknownNamespaceDeliversNothing(t *testing.T) {
	t.Parallel()

	router, v15, v16 := newTestRouter(t)
	chain := &countingChain{}

	require.NotPanics(t, func() {
		router.Route(&Message{Content: strings.NewReader(soap12Envelope("urn://Ocpp/Cs/2099/01")), Chain: chain})
	})

	require.Empty(t, v15.calls())
	require.Empty(t, v16.calls())
	require.Equal(t, int32(1), chain.aborts.Load())
}

func TestRouteMalformedEnvelopeIsUnroutable(t *testing.T) {
	t.Parallel()

	router, v15, v16 := newTestRouter(t)
	for _, input := range []string{
		"",
		"<<<",
		`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>`,
		`<Envelope xmlns="urn:other"><Body><x xmlns="` + nsV16 + `"/></Body></Envelope>`,
	} {
		chain := &countingChain{}
		router.Route(&Message{Content: strings.NewReader(input), Chain: chain})
		require.Equal(t, int32(1), chain.aborts.Load(), input)
	}

	router.Route(&Message{Content: iotest.ErrReader(io.ErrClosedPipe), Chain: &countingChain{}})

	require.Empty(t, v15.calls())
	require.Empty(t, v16.calls())
}

func TestRouteLeavesContentRewound(t *testing.T) {
	t.Parallel()

	router, _, _ := newTestRouter(t)
	original := soap12Envelope("urn:unregistered")
	msg := &Message{Content: strings.NewReader(original)}

	router.Route(msg)

	rest, err := io.ReadAll(msg.Content)
	require.NoError(t, err)
	require.Equal(t, original, string(rest))
}

func TestRouteLookaheadLimitExceeded(t *testing.T) {
	t.Parallel()

	router, _, v16 := newTestRouter(t, WithLookaheadLimit(64))
	chain := &countingChain{}

	router.Route(&Message{Content: strings.NewReader(soap12Envelope(nsV16)), Chain: chain})

	require.Empty(t, v16.calls(), "a half consumed message must never be handed over")
	require.Equal(t, int32(1), chain.aborts.Load())
}

func TestRouteLookaheadLimitAllowsLongBody(t *testing.T) {
	t.Parallel()

	router, _, v16 := newTestRouter(t, WithLookaheadLimit(1024))
	chain := &countingChain{}

	// The payload element starts well inside the limit; its content runs far
	// past it and arrives in a single read.
	env := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		`<dataTransferRequest xmlns="` + nsV16 + `"><data>` + strings.Repeat("z", 3000) + `</data></dataTransferRequest>` +
		`</s:Body></s:Envelope>`
	require.Greater(t, len(env), 1024)

	router.Route(&Message{Content: strings.NewReader(env), Chain: chain})

	require.Equal(t, []string{env}, v16.calls())
	require.Equal(t, int32(1), chain.aborts.Load())
}

func TestRouteWithoutChainOrContent(t *testing.T) {
	t.Parallel()

	router, v15, v16 := newTestRouter(t)
	require.NotPanics(t, func() {
		router.Route(nil)
		router.Route(&Message{})
	})
	require.Empty(t, v15.calls())
	require.Empty(t, v16.calls())
}

func TestRouteSingleEndpointRegistry(t *testing.T) {
	t.Parallel()

	only := &recordingObserver{}
	reg, err := NewRegistry([]Endpoint{{Address: "/v15", Namespace: nsV15, Observer: only}}, routerAddress)
	require.NoError(t, err)
	router, err := NewRouter(reg, WithLogger(quietLogger()))
	require.NoError(t, err)

	env := soap12Envelope(nsV15)
	router.Route(&Message{Content: strings.NewReader(env)})
	require.Equal(t, []string{env}, only.calls())
}

func TestNewRouterRequiresRegistry(t *testing.T) {
	t.Parallel()

	_, err := NewRouter(nil)
	require.ErrorIs(t, err, ErrNoEndpoints)
}

func TestSwapRegistryWhileRouting(t *testing.T) {
	t.Parallel()

	router, _, v16 := newTestRouter(t)
	replacement := &recordingObserver{}
	next, err := NewRegistry([]Endpoint{{Address: "/v16", Namespace: nsV16, Observer: replacement}}, routerAddress)
	require.NoError(t, err)

	require.ErrorIs(t, router.Swap(nil), ErrNoEndpoints)

	env := soap12Envelope(nsV16)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 16 {
				assert.NoError(t, router.Swap(next))
			}
			router.Route(&Message{Content: strings.NewReader(env)})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 32, len(v16.calls())+len(replacement.calls()))
	for _, body := range append(v16.calls(), replacement.calls()...) {
		require.Equal(t, env, body)
	}
	require.Same(t, next, router.Registry())
}
