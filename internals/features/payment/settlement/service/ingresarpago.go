package service

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hnet_backend/internals/features/payment/settlement/dto"
)

// Submitter dispatches one settlement payload to an IngresarPago endpoint.
type Submitter interface {
	Submit(payload dto.Payload) (dto.SubmissionResult, error)
	Endpoint() string
	PreviewEnvelope(payload dto.Payload) (string, error)
}

// TransportError is a failed IngresarPago submission. The batch stops at the
// first one; payloads already submitted are not rolled back because the
// downstream service has no cancel operation.
type TransportError struct {
	Endpoint string
	Payload  dto.Payload
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("IngresarPago submission to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

/* ===================== SOAP transport ===================== */

// IngresarPagoService submits settlement payloads as IngresarPago SOAP calls.
// Parameters are positional; the envelope order mirrors dto.Payload.
type IngresarPagoService struct {
	wsdl   string
	client *http.Client
}

func NewIngresarPagoService(wsdl string) (*IngresarPagoService, error) {
	if strings.TrimSpace(wsdl) == "" {
		return nil, fmt.Errorf("the IngresarPago WSDL must be configured")
	}
	return &IngresarPagoService{
		wsdl:   strings.TrimSpace(wsdl),
		client: &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (s *IngresarPagoService) Endpoint() string { return s.wsdl }

// PreviewEnvelope renders the request body without sending it, for error
// logs.
func (s *IngresarPagoService) PreviewEnvelope(payload dto.Payload) (string, error) {
	return buildEnvelope(payload)
}

func (s *IngresarPagoService) Submit(payload dto.Payload) (dto.SubmissionResult, error) {
	envelope, err := buildEnvelope(payload)
	if err != nil {
		return dto.SubmissionResult{}, &TransportError{Endpoint: s.wsdl, Payload: payload, Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, s.serviceURL(), bytes.NewBufferString(envelope))
	if err != nil {
		return dto.SubmissionResult{}, &TransportError{Endpoint: s.wsdl, Payload: payload, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"IngresarPago"`)

	resp, err := s.client.Do(req)
	if err != nil {
		return dto.SubmissionResult{}, &TransportError{Endpoint: s.wsdl, Payload: payload, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dto.SubmissionResult{}, &TransportError{Endpoint: s.wsdl, Payload: payload, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dto.SubmissionResult{}, &TransportError{
			Endpoint: s.wsdl,
			Payload:  payload,
			Err:      fmt.Errorf("the IngresarPago service answered HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	if fault := extractSoapFault(body); fault != "" {
		return dto.SubmissionResult{}, &TransportError{
			Endpoint: s.wsdl,
			Payload:  payload,
			Err:      fmt.Errorf("the IngresarPago service answered a SOAP fault: %s", fault),
		}
	}

	return dto.SubmissionResult{
		Payload:    payload,
		Envelope:   envelope,
		Response:   string(body),
		HTTPStatus: resp.StatusCode,
		WSDL:       s.wsdl,
	}, nil
}

// serviceURL strips the ?wsdl suffix so the POST goes to the service itself.
func (s *IngresarPagoService) serviceURL() string {
	if idx := strings.Index(strings.ToLower(s.wsdl), "?wsdl"); idx >= 0 {
		return s.wsdl[:idx]
	}
	return s.wsdl
}

func buildEnvelope(payload dto.Payload) (string, error) {
	escape := func(value string) (string, error) {
		var buf bytes.Buffer
		if err := xml.EscapeText(&buf, []byte(value)); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	idEmpresa, err := escape(payload.IdEmpresa)
	if err != nil {
		return "", err
	}
	rut, err := escape(payload.RutCliente)
	if err != nil {
		return "", err
	}
	mail, err := escape(payload.Mail)
	if err != nil {
		return "", err
	}
	recaudador, err := escape(payload.Recaudador)
	if err != nil {
		return "", err
	}
	canal, err := escape(payload.Canal)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">`)
	b.WriteString(`<soap:Body><IngresarPago>`)
	fmt.Fprintf(&b, "<IdEmpresa>%s</IdEmpresa>", idEmpresa)
	fmt.Fprintf(&b, "<IdCliente>%d</IdCliente>", payload.IdCliente)
	fmt.Fprintf(&b, "<RutCliente>%s</RutCliente>", rut)
	fmt.Fprintf(&b, "<Mail>%s</Mail>", mail)
	fmt.Fprintf(&b, "<Recaudador>%s</Recaudador>", recaudador)
	fmt.Fprintf(&b, "<Canal>%s</Canal>", canal)
	fmt.Fprintf(&b, "<FechaPago>%s</FechaPago>", payload.FechaPago)
	fmt.Fprintf(&b, "<FechaContable>%s</FechaContable>", payload.FechaContable)
	fmt.Fprintf(&b, "<Mes>%d</Mes>", payload.Mes)
	fmt.Fprintf(&b, "<Ano>%d</Ano>", payload.Ano)
	fmt.Fprintf(&b, "<Monto>%d</Monto>", payload.Monto)
	fmt.Fprintf(&b, "<MontoFlow>%d</MontoFlow>", payload.MontoFlow)
	b.WriteString(`</IngresarPago></soap:Body></soap:Envelope>`)
	return b.String(), nil
}

func extractSoapFault(body []byte) string {
	if !bytes.Contains(body, []byte("Fault")) {
		return ""
	}

	var fault struct {
		Body struct {
			Fault *struct {
				FaultString string `xml:"faultstring"`
			} `xml:"Fault"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(body, &fault); err != nil || fault.Body.Fault == nil {
		return ""
	}
	return fault.Body.Fault.FaultString
}
