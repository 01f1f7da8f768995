package soap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// EnvelopeVersion describes one SOAP envelope vocabulary.
type EnvelopeVersion struct {
	Name      string
	Namespace string
	Header    xml.Name
	Body      xml.Name
	// FaultSender and FaultReceiver are the fault codes for client and
	// server side failures in this vocabulary.
	FaultSender   string
	FaultReceiver string
	ContentType   string
}

var (
	Soap11 = EnvelopeVersion{
		Name:          "1.1",
		Namespace:     "http://schemas.xmlsoap.org/soap/envelope/",
		Header:        xml.Name{Space: "http://schemas.xmlsoap.org/soap/envelope/", Local: "Header"},
		Body:          xml.Name{Space: "http://schemas.xmlsoap.org/soap/envelope/", Local: "Body"},
		FaultSender:   "Client",
		FaultReceiver: "Server",
		ContentType:   "text/xml; charset=utf-8",
	}
	Soap12 = EnvelopeVersion{
		Name:          "1.2",
		Namespace:     "http://www.w3.org/2003/05/soap-envelope",
		Header:        xml.Name{Space: "http://www.w3.org/2003/05/soap-envelope", Local: "Header"},
		Body:          xml.Name{Space: "http://www.w3.org/2003/05/soap-envelope", Local: "Body"},
		FaultSender:   "Sender",
		FaultReceiver: "Receiver",
		ContentType:   "application/soap+xml; charset=utf-8",
	}
)

// EnvelopeVersionFor returns the envelope vocabulary bound to ns.
func EnvelopeVersionFor(ns string) (EnvelopeVersion, bool) {
	switch ns {
	case Soap11.Namespace:
		return Soap11, true
	case Soap12.Namespace:
		return Soap12, true
	default:
		return EnvelopeVersion{}, false
	}
}

var (
	ErrUnknownEnvelope = errors.New("soap: unknown envelope namespace")
	ErrNoBody          = errors.New("soap: envelope has no body")
	ErrEmptyBody       = errors.New("soap: body has no payload element")
)

// Scan is what ScanEnvelope learns about a message.
type Scan struct {
	Envelope EnvelopeVersion
	// Payload is the first element inside Body. Payload.Space is the
	// routing key.
	Payload xml.Name
}

// ScanEnvelope reads r up to the first child of the envelope body. encoding
// is the charset declared by the transport; empty means UTF-8 or whatever
// the XML declaration says. The reader is left somewhere after the payload
// start tag.
func ScanEnvelope(r io.Reader, encoding string) (Scan, error) {
	dec, err := newDecoder(r, encoding)
	if err != nil {
		return Scan{}, err
	}

	root, err := nextStart(dec)
	if err != nil {
		return Scan{}, err
	}
	env, ok := EnvelopeVersionFor(root.Name.Space)
	if !ok || root.Name.Local != "Envelope" {
		return Scan{}, fmt.Errorf("%w: {%s}%s", ErrUnknownEnvelope, root.Name.Space, root.Name.Local)
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Scan{}, ErrNoBody
			}
			return Scan{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name != env.Body {
				// Header and anything else the envelope carries before Body.
				if err := dec.Skip(); err != nil {
					return Scan{}, err
				}
				continue
			}
			payload, err := nextStart(dec)
			if err != nil {
				if errors.Is(err, errEndOfParent) {
					return Scan{}, ErrEmptyBody
				}
				return Scan{}, err
			}
			return Scan{Envelope: env, Payload: payload.Name}, nil
		case xml.EndElement:
			return Scan{}, ErrNoBody
		}
	}
}

var errEndOfParent = errors.New("soap: end of parent element")

// nextStart advances to the next start element at the current depth,
// skipping character data, comments and processing instructions.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, io.ErrUnexpectedEOF
			}
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.EndElement:
			return xml.StartElement{}, errEndOfParent
		}
	}
}

func newDecoder(r io.Reader, encoding string) (*xml.Decoder, error) {
	label := strings.ToLower(strings.TrimSpace(encoding))
	if label == "" || label == "utf-8" || label == "utf8" {
		dec := xml.NewDecoder(r)
		dec.CharsetReader = charset.NewReaderLabel
		return dec, nil
	}

	// The transport declared a charset; it wins over the XML declaration.
	converted, err := charset.NewReaderLabel(label, r)
	if err != nil {
		return nil, fmt.Errorf("soap: declared encoding %q: %w", encoding, err)
	}
	dec := xml.NewDecoder(converted)
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec, nil
}
