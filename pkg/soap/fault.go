package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

// WriteFault answers with a fault envelope in the given vocabulary. sender
// selects the client side fault code instead of the server side one.
func WriteFault(w http.ResponseWriter, env EnvelopeVersion, status int, sender bool, reason string) error {
	code := env.FaultReceiver
	if sender {
		code = env.FaultSender
	}

	w.Header().Set("Content-Type", env.ContentType)
	w.WriteHeader(status)
	return writeFaultEnvelope(w, env, code, reason)
}

func writeFaultEnvelope(w io.Writer, env EnvelopeVersion, code string, reason string) error {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(reason)); err != nil {
		return err
	}

	var fault string
	if env.Namespace == Soap12.Namespace {
		fault = fmt.Sprintf(
			`<env:Fault><env:Code><env:Value>env:%s</env:Value></env:Code><env:Reason><env:Text xml:lang="en">%s</env:Text></env:Reason></env:Fault>`,
			code, escaped.String(),
		)
	} else {
		fault = fmt.Sprintf(`<env:Fault><faultcode>env:%s</faultcode><faultstring>%s</faultstring></env:Fault>`, code, escaped.String())
	}

	_, err := fmt.Fprintf(w,
		`<?xml version="1.0" encoding="UTF-8"?><env:Envelope xmlns:env="%s"><env:Body>%s</env:Body></env:Envelope>`,
		env.Namespace, fault,
	)
	return err
}
