package service

import (
	"errors"
	"testing"

	"hnet_backend/internals/features/payment/settlement/dto"
	"hnet_backend/internals/features/payment/transactions/store"
)

type mockSubmitter struct {
	endpoint   string
	SubmitFunc func(payload dto.Payload) (dto.SubmissionResult, error)
	submitted  []dto.Payload
}

func (m *mockSubmitter) Submit(payload dto.Payload) (dto.SubmissionResult, error) {
	m.submitted = append(m.submitted, payload)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(payload)
	}
	return dto.SubmissionResult{
		Payload:    payload,
		Envelope:   "<soapenv:Envelope/>",
		Response:   "<IngresarPagoResponse>OK</IngresarPagoResponse>",
		HTTPStatus: 200,
	}, nil
}

func (m *mockSubmitter) Endpoint() string { return m.endpoint }

func (m *mockSubmitter) PreviewEnvelope(payload dto.Payload) (string, error) {
	return "<soapenv:Envelope/>", nil
}

func newTestStorage(t *testing.T) *store.Storage {
	t.Helper()
	return store.New(t.TempDir(), "webpay", "HNBE", 600)
}

func seedPaidTransaction(t *testing.T, storage *store.Storage, debts []any) string {
	t.Helper()

	record, err := storage.Create(store.Document{
		"rut":    "11111111-1",
		"email":  "cliente@example.com",
		"amount": 45000,
		"debts":  debts,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key := store.AsString(record["order_id"])

	if _, err := storage.AppendResponse(key, store.Document{
		"success": true,
		"status":  "success",
		"detail": store.Document{
			"response_code":     "0",
			"payment_type_code": "VD",
			"shares_number":     0,
			"amount":            45000,
			"transaction_date":  "2024-05-10T12:00:00Z",
		},
	}); err != nil {
		t.Fatalf("AppendResponse: %v", err)
	}
	return key
}

func validDebt(idEmpresa string, idCliente, amount int64) store.Document {
	return store.Document{
		"idempresa": idEmpresa,
		"idcliente": idCliente,
		"mes":       4,
		"ano":       2024,
		"amount":    amount,
	}
}

func newTestReporter(storage *store.Storage, submitter Submitter, factory SubmitterFactory, overrides map[string]string) *Reporter {
	return NewReporter(storage, submitter, NewEndpointResolver(overrides), "TRANSBANK", "Webpay", nil, nil, factory)
}

func TestReportSubmitsOncePerDebt(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{
		validDebt("765316081", 10, 20000),
		validDebt("765316081", 11, 25000),
	})

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(submitter.submitted) != 2 {
		t.Fatalf("submissions = %d, want one per debt line", len(submitter.submitted))
	}

	first := submitter.submitted[0]
	if first.IdEmpresa != "765316081" || first.IdCliente != 10 {
		t.Errorf("payload identity = %s/%d", first.IdEmpresa, first.IdCliente)
	}
	if first.Monto != 20000 || first.MontoFlow != 20000 {
		t.Errorf("payload amount = %d/%d, want the line amount", first.Monto, first.MontoFlow)
	}
	if first.Recaudador != "TRANSBANK" {
		t.Errorf("Recaudador = %q", first.Recaudador)
	}
	if first.Canal != "VD" {
		t.Errorf("Canal = %q, want %q", first.Canal, "VD")
	}
	if first.FechaPago != "10-05-2024" || first.FechaContable != first.FechaPago {
		t.Errorf("FechaPago = %q, FechaContable = %q", first.FechaPago, first.FechaContable)
	}

	record, _ := storage.Get(key)
	meta := store.NormalizeSettlementMeta(record[store.SettlementKey])
	if !store.AsBool(meta["processed"]) {
		t.Fatal("record not marked processed after a successful report")
	}
	if got := len(store.AsSlice(meta["responses"])); got != 2 {
		t.Errorf("stored settlement responses = %d, want 2", got)
	}
}

func TestReportIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{validDebt("765316081", 10, 20000)})

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); err != nil {
		t.Fatalf("first Report: %v", err)
	}
	if err := reporter.Report(key); err != nil {
		t.Fatalf("second Report: %v", err)
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("submissions = %d, a redelivered notification must not settle twice", len(submitter.submitted))
	}
}

func TestReportSkipsInvalidDebtLines(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{
		validDebt("765316081", 10, 20000),
		validDebt("", 11, 20000),           // no company
		validDebt("765316081", 0, 20000),   // no client
		"not-a-debt",                       // wrong shape
	})

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("submissions = %d, want only the valid debt line", len(submitter.submitted))
	}
}

func TestReportDebtAmountFallsBackToResponse(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{
		validDebt("765316081", 10, 0), // no line amount
	})

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("submissions = %d", len(submitter.submitted))
	}
	if got := submitter.submitted[0].Monto; got != 45000 {
		t.Errorf("Monto = %d, want the gateway response amount", got)
	}
}

func TestReportNoValidPayloads(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{validDebt("", 0, 0)})

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); !errors.Is(err, ErrNoValidPayloads) {
		t.Fatalf("err = %v, want ErrNoValidPayloads", err)
	}
	if len(submitter.submitted) != 0 {
		t.Fatal("nothing should be submitted without valid payloads")
	}
}

func TestReportEmptyKey(t *testing.T) {
	storage := newTestStorage(t)
	reporter := newTestReporter(storage, &mockSubmitter{}, nil, nil)
	if err := reporter.Report("  "); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("err = %v, want ErrEmptyKey", err)
	}
}

func TestReportUnknownTransactionIsQuiet(t *testing.T) {
	storage := newTestStorage(t)
	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report("HNBE-20240510120000-ffffff"); err != nil {
		t.Fatalf("Report on an unknown key: %v", err)
	}
	if len(submitter.submitted) != 0 {
		t.Fatal("nothing should be submitted for an unknown transaction")
	}
}

func TestReportRejectedResponseIsQuiet(t *testing.T) {
	storage := newTestStorage(t)
	record, err := storage.Create(store.Document{
		"rut":   "11111111-1",
		"debts": []any{validDebt("765316081", 10, 20000)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key := store.AsString(record["order_id"])
	if _, err := storage.AppendResponse(key, store.Document{
		"success": false,
		"detail":  store.Document{"response_code": "-1"},
	}); err != nil {
		t.Fatalf("AppendResponse: %v", err)
	}

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(submitter.submitted) != 0 {
		t.Fatal("a rejected payment must never be settled")
	}
}

func TestReportTransportFailureReleasesClaim(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{
		validDebt("765316081", 10, 20000),
		validDebt("765316081", 11, 25000),
	})

	calls := 0
	submitter := &mockSubmitter{
		endpoint: "https://default.example/ws",
		SubmitFunc: func(payload dto.Payload) (dto.SubmissionResult, error) {
			calls++
			if calls == 2 {
				return dto.SubmissionResult{}, &TransportError{
					Endpoint: "https://default.example/ws",
					Payload:  payload,
					Err:      errors.New("connection refused"),
				}
			}
			return dto.SubmissionResult{Payload: payload, HTTPStatus: 200}, nil
		},
	}
	reporter := newTestReporter(storage, submitter, nil, nil)

	err := reporter.Report(key)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v, want a TransportError", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, the batch must stop at the first failure", calls)
	}

	record, _ := storage.Get(key)
	meta := store.NormalizeSettlementMeta(record[store.SettlementKey])
	if store.AsBool(meta["processed"]) {
		t.Fatal("a failed batch must not mark the record processed")
	}
	if store.AsBool(meta["processing"]) {
		t.Fatal("the claim must be released after a transport failure")
	}

	// The retry goes through and resubmits the whole batch.
	submitter.SubmitFunc = nil
	if err := reporter.Report(key); err != nil {
		t.Fatalf("retry Report: %v", err)
	}
	record, _ = storage.Get(key)
	meta = store.NormalizeSettlementMeta(record[store.SettlementKey])
	if !store.AsBool(meta["processed"]) {
		t.Fatal("the retry must settle the transaction")
	}
}

func TestReportLiveClaimIsQuiet(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{validDebt("765316081", 10, 20000)})

	if granted, _ := storage.TryBeginProcessing(key); !granted {
		t.Fatal("seed claim denied")
	}

	submitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	reporter := newTestReporter(storage, submitter, nil, nil)

	if err := reporter.Report(key); err != nil {
		t.Fatalf("Report under a live claim: %v", err)
	}
	if len(submitter.submitted) != 0 {
		t.Fatal("a live claim must suppress a second submission")
	}
}

func TestReportEndpointOverride(t *testing.T) {
	storage := newTestStorage(t)
	key := seedPaidTransaction(t, storage, []any{
		validDebt("764430824", 10, 20000),
		validDebt("76734662K", 11, 25000),
	})

	defaultSubmitter := &mockSubmitter{endpoint: "https://default.example/ws"}
	gorbeaSubmitter := &mockSubmitter{endpoint: "https://gorbea.example/ws"}

	factoryCalls := []string{}
	factory := func(endpoint string) (Submitter, error) {
		factoryCalls = append(factoryCalls, endpoint)
		return gorbeaSubmitter, nil
	}

	reporter := newTestReporter(storage, defaultSubmitter, factory, map[string]string{
		"764430824": "https://default.example/ws",
		"76734662K": "https://gorbea.example/ws",
	})

	if err := reporter.Report(key); err != nil {
		t.Fatalf("Report: %v", err)
	}

	if len(defaultSubmitter.submitted) != 1 {
		t.Errorf("default endpoint submissions = %d, want 1", len(defaultSubmitter.submitted))
	}
	if len(gorbeaSubmitter.submitted) != 1 {
		t.Errorf("override endpoint submissions = %d, want 1", len(gorbeaSubmitter.submitted))
	}
	if len(factoryCalls) != 1 || factoryCalls[0] != "https://gorbea.example/ws" {
		t.Errorf("factory calls = %v, want exactly the override endpoint", factoryCalls)
	}
}
