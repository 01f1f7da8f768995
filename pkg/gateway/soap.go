package gateway

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"ocppgate/pkg/config"
	"ocppgate/pkg/ocpp"
	"ocppgate/pkg/soap"
)

// soapEndpoint is one version specific SOAP service.
type soapEndpoint struct {
	path      string
	namespace string
	observer  soap.Observer
}

func soapEndpointsFromConfig(cfg *config.Config, observers map[string]soap.Observer) ([]soapEndpoint, error) {
	endpoints := make([]soapEndpoint, 0, len(cfg.SOAP.Endpoints))
	for i, ep := range cfg.SOAP.Endpoints {
		ns, err := ep.ResolvedNamespace()
		if err != nil {
			return nil, fmt.Errorf("soap.endpoints[%d]: %w", i, err)
		}
		observer, ok := observers[ns]
		if !ok {
			observer = faultObserver{namespace: ns}
		}
		endpoints = append(endpoints, soapEndpoint{
			path:      strings.TrimSpace(ep.Path),
			namespace: ns,
			observer:  observer,
		})
	}
	return endpoints, nil
}

// buildRegistry lists the router path itself alongside the version services,
// the same way they are all mounted on the mux; NewRegistry leaves it out.
func (s *Service) buildRegistry(endpoints []soapEndpoint) (*soap.Registry, error) {
	list := make([]soap.Endpoint, 0, len(endpoints)+1)
	list = append(list, soap.Endpoint{Address: s.cfg.SOAP.RouterPath})
	for _, ep := range endpoints {
		list = append(list, soap.Endpoint{Address: ep.path, Namespace: ep.namespace, Observer: ep.observer})
	}
	return soap.NewRegistry(list, s.cfg.SOAP.RouterPath)
}

// SetSOAPObserver replaces the service behind namespace. The routing registry
// is rebuilt and swapped in whole; in-flight messages keep the old one.
func (s *Service) SetSOAPObserver(namespace string, observer soap.Observer) error {
	if observer == nil {
		return soap.ErrNilObserver
	}

	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	current := s.router.Registry()
	next := make([]soapEndpoint, 0, len(s.soapEndpoints))
	found := false
	for _, ep := range s.soapEndpoints {
		if existing, ok := current.Endpoint(ep.namespace); ok {
			ep.observer = existing.Observer
		}
		if ep.namespace == namespace {
			ep.observer = observer
			found = true
		}
		next = append(next, ep)
	}
	if !found {
		return fmt.Errorf("no soap endpoint serves namespace %q", namespace)
	}

	registry, err := s.buildRegistry(next)
	if err != nil {
		return err
	}
	return s.router.Swap(registry)
}

// handleSOAPRouter serves version agnostic clients.
func (s *Service) handleSOAPRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reply := &replyRecorder{ResponseWriter: w}
	s.router.Route(&soap.Message{
		Content:  r.Body,
		Encoding: declaredCharset(r.Header.Get("Content-Type")),
		Address:  r.URL.Path,
		Reply:    reply,
	})

	if !reply.written {
		// Nothing claimed the message; the transport still owes the client
		// an HTTP answer.
		http.Error(w, "no service for this message", http.StatusNotFound)
	}
}

// handleSOAPEndpoint serves clients that address one version directly.
func (s *Service) handleSOAPEndpoint(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		observer, ok := s.router.Registry().Lookup(namespace)
		if !ok {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		observer.OnMessage(&soap.Message{
			Content:  r.Body,
			Encoding: declaredCharset(r.Header.Get("Content-Type")),
			Address:  r.URL.Path,
			Reply:    w,
		})
	}
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// replyRecorder notes whether an observer answered.
type replyRecorder struct {
	http.ResponseWriter
	written bool
}

func (r *replyRecorder) WriteHeader(status int) {
	r.written = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *replyRecorder) Write(p []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(p)
}

// faultObserver is installed for versions without a service implementation.
type faultObserver struct {
	namespace string
}

func (f faultObserver) OnMessage(msg *soap.Message) {
	if msg.Reply == nil {
		return
	}

	scan, err := soap.ScanEnvelope(msg.Content, msg.Encoding)
	_, _ = io.Copy(io.Discard, msg.Content)
	if err != nil {
		_ = soap.WriteFault(msg.Reply, soap.Soap12, http.StatusBadRequest, true, "malformed envelope: "+err.Error())
		return
	}

	version := f.namespace
	if v, ok := ocpp.VersionForNamespace(f.namespace); ok {
		version = "OCPP " + v.String()
	}
	_ = soap.WriteFault(msg.Reply, scan.Envelope, http.StatusInternalServerError, false,
		fmt.Sprintf("%s has no service implementation for %s", version, scan.Payload.Local))
}
