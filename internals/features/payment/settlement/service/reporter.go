package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"hnet_backend/internals/features/payment/audit"
	"hnet_backend/internals/features/payment/settlement/dto"
	"hnet_backend/internals/features/payment/transactions/store"
)

const DefaultCollector = "TRANSBANK"

var (
	// ErrEmptyKey is a report call without a transaction key.
	ErrEmptyKey = errors.New("the transaction key cannot be empty")

	// ErrNoValidPayloads means every debt line was filtered out, so there is
	// nothing to settle.
	ErrNoValidPayloads = errors.New("no valid IngresarPago payloads were generated")
)

// SubmitterFactory builds a Submitter for an endpoint override.
type SubmitterFactory func(endpoint string) (Submitter, error)

/*
	========================================================
	  Reporter
========================================================
*/

// Reporter is the idempotent settlement pipeline. Report is safe to call any
// number of times per transaction (webhook redelivery, double callback): the
// processing claim in the record's settlement sub-document guarantees at most
// one IngresarPago submission batch per truly-paid transaction.
type Reporter struct {
	storage   *store.Storage
	service   Submitter
	factory   SubmitterFactory
	endpoints *EndpointResolver
	collector string
	label     string

	successLog *audit.Logger
	errorLog   *audit.Logger

	now func() time.Time

	mu    sync.Mutex
	cache map[string]Submitter
}

func NewReporter(
	storage *store.Storage,
	service Submitter,
	endpoints *EndpointResolver,
	collector string,
	label string,
	successLog *audit.Logger,
	errorLog *audit.Logger,
	factory SubmitterFactory,
) *Reporter {
	if collector == "" {
		collector = DefaultCollector
	}
	if endpoints == nil {
		endpoints = NewEndpointResolver(nil)
	}
	return &Reporter{
		storage:    storage,
		service:    service,
		factory:    factory,
		endpoints:  endpoints,
		collector:  collector,
		label:      label,
		successLog: successLog,
		errorLog:   errorLog,
		now:        time.Now,
		cache:      make(map[string]Submitter),
	}
}

// Report settles the transaction identified by key. A missing record, an
// unsuccessful response or an already-processed transaction are quiet no-ops
// for the caller; transport failures and mark-processed failures propagate so
// the gateway retries the whole call later.
func (r *Reporter) Report(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	record, ok := r.storage.Get(key)
	if !ok {
		r.logError(key, "no stored transaction was found to report IngresarPago", nil, nil, nil, "", "", 0)
		return nil
	}

	meta := store.NormalizeSettlementMeta(record[store.SettlementKey])
	if store.AsBool(meta["processed"]) {
		return nil
	}

	latest, ok := r.storage.LatestResponse(record)
	if !ok {
		r.logError(key, "no gateway responses are recorded to report IngresarPago", record, nil, nil, "", "", 0)
		return nil
	}

	if !store.AsBool(latest["success"]) {
		detail, _ := store.AsDocument(latest["detail"])
		code := ""
		if detail != nil {
			code = fmt.Sprintf("%v", detail["response_code"])
		}
		r.logError(key, "the notification was skipped because the gateway answered the code "+code, record, latest, nil, "", "", 0)
		return nil
	}

	payloads := r.buildPayloads(record, latest)
	if len(payloads) == 0 {
		r.logError(key, "no valid payloads were generated for IngresarPago", record, latest, nil, "", "", 0)
		return ErrNoValidPayloads
	}

	granted, err := r.storage.TryBeginProcessing(key)
	if err != nil {
		r.logError(key, "could not claim the transaction for processing: "+err.Error(), record, latest, nil, "", "", 0)
		return err
	}
	if !granted {
		// Processed meanwhile, or another worker holds a live claim.
		return nil
	}

	results := make([]dto.SubmissionResult, 0, len(payloads))
	attemptCount := 0

	for _, payload := range payloads {
		attemptCount++

		target, err := r.resolveSubmitter(payload)
		if err != nil {
			r.logError(key, err.Error(), record, latest, &payload, "", "", attemptCount)
			r.releaseClaim(key)
			return err
		}

		result, err := target.Submit(payload)
		if err != nil {
			envelope, previewErr := target.PreviewEnvelope(payload)
			if previewErr != nil {
				envelope = ""
			}
			r.logError(key, err.Error(), record, latest, &payload, envelope, target.Endpoint(), attemptCount)
			r.releaseClaim(key)
			return err
		}

		result.WSDL = target.Endpoint()
		results = append(results, result)
	}

	resultDocs := make([]any, 0, len(results))
	for _, result := range results {
		resultDocs = append(resultDocs, any(result.Document()))
	}

	if err := r.storage.MarkProcessed(key, store.Document{"responses": resultDocs}); err != nil {
		// The remote side already accepted the payloads; surfacing this is a
		// deliberate duplicate-submission risk, losing the audit trail is
		// worse.
		r.logError(key, "could not update the local state after reporting IngresarPago: "+err.Error(), record, latest, nil, "", "", attemptCount)
		return err
	}

	r.logSuccess(key, payloads, results, record, latest, attemptCount)
	return nil
}

/* ===================== Payload construction ===================== */

// buildPayloads makes one settlement payload per valid debt line: company id
// present, positive client id, positive amount. The line amount wins over the
// response amount, which wins over the record amount.
func (r *Reporter) buildPayloads(record, response store.Document) []dto.Payload {
	rut := store.AsString(record["rut"])
	mail := store.AsString(record["email"])

	detail, _ := store.AsDocument(response["detail"])
	if detail == nil {
		detail = store.Document{}
	}

	fechaPago := FormatPaymentDate(store.AsString(detail["transaction_date"]), r.now)
	channel := ResolveChannel(store.AsString(detail["payment_type_code"]), detail["shares_number"], r.collector)

	responseAmount, hasResponseAmount := NormalizeAmount(detail["amount"])
	if !hasResponseAmount || responseAmount <= 0 {
		if recordAmount, ok := NormalizeAmount(record["amount"]); ok {
			responseAmount = recordAmount
		}
	}

	var payloads []dto.Payload
	for _, item := range store.AsSlice(record["debts"]) {
		debt, ok := store.AsDocument(item)
		if !ok {
			continue
		}

		idEmpresa := store.AsString(debt["idempresa"])
		idCliente, _ := NormalizeInt(debt["idcliente"])
		mes, _ := NormalizeInt(debt["mes"])
		ano, _ := NormalizeInt(debt["ano"])

		monto, hasMonto := NormalizeAmount(debt["amount"])
		if !hasMonto || monto <= 0 {
			monto = responseAmount
		}

		if idEmpresa == "" || idCliente <= 0 || monto <= 0 {
			continue
		}

		payloads = append(payloads, dto.Payload{
			IdEmpresa:     idEmpresa,
			IdCliente:     idCliente,
			RutCliente:    rut,
			Mail:          mail,
			Recaudador:    r.collector,
			Canal:         channel,
			FechaPago:     fechaPago,
			FechaContable: fechaPago,
			Mes:           mes,
			Ano:           ano,
			Monto:         monto,
			MontoFlow:     monto,
		})
	}

	return payloads
}

// resolveSubmitter picks the endpoint for the payload's company; overrides
// get a cached per-endpoint submitter, everyone else shares the default one.
func (r *Reporter) resolveSubmitter(payload dto.Payload) (Submitter, error) {
	endpoint := r.endpoints.Resolve(payload.IdEmpresa)
	if endpoint == "" || endpoint == r.service.Endpoint() {
		return r.service, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[endpoint]; ok {
		return cached, nil
	}

	if r.factory == nil {
		return r.service, nil
	}

	built, err := r.factory(endpoint)
	if err != nil {
		return nil, fmt.Errorf("could not build the IngresarPago service for %s: %w", endpoint, err)
	}
	r.cache[endpoint] = built
	return built, nil
}

func (r *Reporter) releaseClaim(key string) {
	if err := r.storage.ResetProcessing(key); err != nil {
		log.Printf("[ERROR] could not release the processing claim of %s: %v", key, err)
	}
}

/* ===================== Audit entries ===================== */

func (r *Reporter) logSuccess(key string, payloads []dto.Payload, results []dto.SubmissionResult, record, response store.Document, attemptCount int) {
	if r.successLog == nil {
		return
	}

	sentPayloads := make([]any, 0, len(results))
	envelopes := make([]any, 0, len(results))
	answers := make([]any, 0, len(results))
	statuses := make([]any, 0, len(results))
	wsdls := make([]any, 0, len(results))
	for _, result := range results {
		sentPayloads = append(sentPayloads, result.Payload.Document())
		envelopes = append(envelopes, result.Envelope)
		answers = append(answers, result.Response)
		statuses = append(statuses, result.HTTPStatus)
		wsdls = append(wsdls, result.WSDL)
	}

	inputs := make([]any, 0, len(payloads))
	for _, payload := range payloads {
		inputs = append(inputs, payload.Document())
	}

	r.successLog.Append(fmt.Sprintf("[%s][IngresarPago]", r.label), map[string]any{
		"token":          key,
		"collector":      r.collector,
		"attempt_count":  attemptCount,
		"payloads_input": inputs,
		"payloads":       sentPayloads,
		"payloads_xml":   envelopes,
		"http_statuses":  statuses,
		"responses":      answers,
		"wsdls":          wsdls,
		"gateway": map[string]any{
			"summary": sanitizeResponseForLog(response),
		},
		"transaction": sanitizeRecordForLog(record),
	})
}

func (r *Reporter) logError(key, message string, record, response store.Document, payload *dto.Payload, envelope, targetWSDL string, attemptCount int) {
	if r.errorLog == nil {
		log.Printf("[ERROR] [%s][IngresarPago] %s: %s", r.label, key, message)
		return
	}

	entry := map[string]any{
		"token":         key,
		"collector":     r.collector,
		"message":       message,
		"attempt_count": attemptCount,
		"transaction":   sanitizeRecordForLog(record),
		"gateway": map[string]any{
			"summary": sanitizeResponseForLog(response),
		},
	}
	if payload != nil {
		entry["payload"] = payload.Document()
	}
	if envelope != "" {
		entry["payload_xml"] = envelope
	}
	if targetWSDL != "" {
		entry["target_wsdl"] = targetWSDL
	}

	r.errorLog.Append(fmt.Sprintf("[%s][IngresarPago][error]", r.label), entry)
}
