package controller

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"hnet_backend/internals/features/payment/audit"
	gwdto "hnet_backend/internals/features/payment/gateways/dto"
	"hnet_backend/internals/features/payment/gateways/service"
	setdto "hnet_backend/internals/features/payment/settlement/dto"
	settlement "hnet_backend/internals/features/payment/settlement/service"
	"hnet_backend/internals/features/payment/transactions/store"
)

/* ===================== Test doubles ===================== */

type fakeCommitter struct {
	CommitFunc func(token string) (gwdto.WebpayResponse, error)
}

func (f *fakeCommitter) CommitTransaction(token string) (gwdto.WebpayResponse, error) {
	return f.CommitFunc(token)
}

type fakeIntentClient struct {
	CreateFunc func(orderID string, total int64, items []service.IntentItem) (*service.Intent, error)
}

func (f *fakeIntentClient) CreateIntent(orderID string, total int64, items []service.IntentItem) (*service.Intent, error) {
	return f.CreateFunc(orderID, total, items)
}

type fakePaymentFetcher struct {
	GetFunc func(id string) (gwdto.MercadoPagoPayment, error)
}

func (f *fakePaymentFetcher) GetPayment(id string) (gwdto.MercadoPagoPayment, error) {
	return f.GetFunc(id)
}

type countingSubmitter struct {
	calls int
}

func (m *countingSubmitter) Submit(payload setdto.Payload) (setdto.SubmissionResult, error) {
	m.calls++
	return setdto.SubmissionResult{Payload: payload, HTTPStatus: 200}, nil
}

func (m *countingSubmitter) Endpoint() string { return "https://ws.example/IngresarPago" }

func (m *countingSubmitter) PreviewEnvelope(setdto.Payload) (string, error) {
	return "<soapenv:Envelope/>", nil
}

func newHarness(t *testing.T, provider string) (*store.Storage, *settlement.Reporter, *countingSubmitter, *audit.Logger) {
	t.Helper()
	storage := store.New(t.TempDir(), provider, "HNBE", 600)
	submitter := &countingSubmitter{}
	reporter := settlement.NewReporter(storage, submitter, nil, "TRANSBANK", "test", nil, nil, nil)
	auditLog := audit.New(filepath.Join(t.TempDir(), "audit.log"))
	return storage, reporter, submitter, auditLog
}

func seedPayableRecord(t *testing.T, storage *store.Storage, key string) {
	t.Helper()
	if err := storage.AppendHistory(key, store.Document{"event": "created"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if _, err := storage.Merge(key, store.Document{
		"rut":   "11111111-1",
		"email": "cliente@example.com",
		"debts": []any{store.Document{
			"idempresa": "765316081",
			"idcliente": 10,
			"mes":       4,
			"ano":       2024,
			"amount":    45000,
		}},
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var decoded map[string]any
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, raw)
	}
	return decoded
}

func postForm(t *testing.T, app *fiber.App, path string, values url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	encoded, err := sonic.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

/* ===================== Webpay ===================== */

func TestWebpayReturnApproved(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "webpay")
	seedPayableRecord(t, storage, "tok-abc")

	zero := int64(0)
	committer := &fakeCommitter{CommitFunc: func(token string) (gwdto.WebpayResponse, error) {
		if token != "tok-abc" {
			t.Errorf("commit token = %q", token)
		}
		return gwdto.WebpayResponse{
			Token:             token,
			ResponseCode:      &zero,
			AuthorizationCode: "1213",
			PaymentTypeCode:   "VD",
			Amount:            45000,
			TransactionDate:   "2024-05-10T12:00:00Z",
			CardNumber:        "4551708911234567",
		}, nil
	}}

	app := fiber.New()
	app.Post("/webpay/return", NewWebpayController(storage, reporter, committer, auditLog).Return)

	resp := postForm(t, app, "/webpay/return", url.Values{"token_ws": {"tok-abc"}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	data, _ := body["data"].(map[string]any)
	if data["card_number"] != "XXXXXXXXXXXX4567" {
		t.Errorf("card_number = %v, the response must only carry the masked number", data["card_number"])
	}

	if submitter.calls != 1 {
		t.Errorf("settlement submissions = %d, want 1", submitter.calls)
	}

	record, ok := storage.Get("tok-abc")
	if !ok {
		t.Fatal("record lost")
	}
	meta := store.NormalizeSettlementMeta(record[store.SettlementKey])
	if !store.AsBool(meta["processed"]) {
		t.Error("record not processed after an approved return")
	}
}

func TestWebpayReturnRejected(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "webpay")
	seedPayableRecord(t, storage, "tok-rejected")

	minusOne := int64(-1)
	committer := &fakeCommitter{CommitFunc: func(token string) (gwdto.WebpayResponse, error) {
		return gwdto.WebpayResponse{Token: token, ResponseCode: &minusOne}, nil
	}}

	app := fiber.New()
	app.Post("/webpay/return", NewWebpayController(storage, reporter, committer, auditLog).Return)

	resp := postForm(t, app, "/webpay/return", url.Values{"token_ws": {"tok-rejected"}})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if submitter.calls != 0 {
		t.Error("a rejected payment must not be settled")
	}

	// The rejection still lands in the audit trail of the record.
	record, _ := storage.Get("tok-rejected")
	if _, ok := storage.LatestResponse(record); !ok {
		t.Error("the rejected response was not appended")
	}
}

func TestWebpayReturnAborted(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "webpay")

	committer := &fakeCommitter{CommitFunc: func(string) (gwdto.WebpayResponse, error) {
		t.Fatal("an aborted return must not commit")
		return gwdto.WebpayResponse{}, nil
	}}

	app := fiber.New()
	app.Post("/webpay/return", NewWebpayController(storage, reporter, committer, auditLog).Return)

	resp := postForm(t, app, "/webpay/return", url.Values{
		"TBK_TOKEN":        {"tbk-1"},
		"TBK_ORDEN_COMPRA": {"HNBE-20240510120000-abc123"},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	record, ok := storage.Get("tbk-1")
	if !ok {
		t.Fatal("the abort was not recorded")
	}
	history := store.AsSlice(record["history"])
	if len(history) != 1 {
		t.Fatalf("history = %v", history)
	}
	entry, _ := store.AsDocument(history[0])
	if store.AsString(entry["event"]) != "payment-cancelled" {
		t.Errorf("event = %v", entry["event"])
	}
}

func TestWebpayReturnWithoutToken(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "webpay")
	committer := &fakeCommitter{CommitFunc: func(string) (gwdto.WebpayResponse, error) {
		return gwdto.WebpayResponse{}, nil
	}}

	app := fiber.New()
	app.Post("/webpay/return", NewWebpayController(storage, reporter, committer, auditLog).Return)

	resp := postForm(t, app, "/webpay/return", url.Values{})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

/* ===================== BancoEstado ===================== */

func TestBancoEstadoPayCreatesIntent(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "bancoestado")

	intents := &fakeIntentClient{CreateFunc: func(orderID string, total int64, items []service.IntentItem) (*service.Intent, error) {
		if total != 45000 {
			t.Errorf("total = %d", total)
		}
		if len(items) != 1 || items[0].Nombre != "Agua Abril" {
			t.Errorf("items = %+v", items)
		}
		return &service.Intent{
			Raw:  `{"url":"https://pago.bancoestado.example/x"}`,
			Data: store.Document{"url": "https://pago.bancoestado.example/x"},
		}, nil
	}}

	app := fiber.New()
	ctrl := NewBancoEstadoController(storage, reporter, intents, "secret", auditLog)
	app.Post("/bancoestado/pay", ctrl.Pay)

	resp := postJSON(t, app, "/bancoestado/pay", map[string]any{
		"rut":   "11111111-1",
		"email": "cliente@example.com",
		"debts": []map[string]any{{
			"idempresa": "765316081",
			"idcliente": 10,
			"mes":       4,
			"ano":       2024,
			"amount":    45000,
			"nombre":    "Agua Abril",
		}},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	data, _ := body["data"].(map[string]any)
	orderID, _ := data["order_id"].(string)
	if !strings.HasPrefix(orderID, "HNBE-") {
		t.Fatalf("order_id = %q", orderID)
	}

	record, ok := storage.Get(orderID)
	if !ok {
		t.Fatal("the transaction record was not created")
	}
	if store.AsString(record["status"]) != "initiated" {
		t.Errorf("status = %v", record["status"])
	}
	if _, ok := store.AsDocument(record["intent"]); !ok {
		t.Error("the intent was not merged into the record")
	}
}

func TestBancoEstadoPayValidation(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "bancoestado")
	intents := &fakeIntentClient{CreateFunc: func(string, int64, []service.IntentItem) (*service.Intent, error) {
		t.Fatal("an invalid request must not reach the provider")
		return nil, nil
	}}

	app := fiber.New()
	app.Post("/bancoestado/pay", NewBancoEstadoController(storage, reporter, intents, "secret", auditLog).Pay)

	resp := postJSON(t, app, "/bancoestado/pay", map[string]any{
		"rut":   "11111111-1",
		"email": "not-an-email",
		"debts": []map[string]any{},
	})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func signCallbackJWT(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

func TestBancoEstadoStatusApproved(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "bancoestado")

	record, err := storage.Create(store.Document{
		"rut":   "11111111-1",
		"email": "cliente@example.com",
		"debts": []any{store.Document{
			"idempresa": "765316081",
			"idcliente": 10,
			"mes":       4,
			"ano":       2024,
			"amount":    45000,
		}},
		"status": "initiated",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	orderID := store.AsString(record["order_id"])

	token := signCallbackJWT(t, jwt.MapClaims{
		"oc":            orderID,
		"resultado":     "ok",
		"fecha":         "10-05-2024",
		"hora":          "12:33",
		"modoPago":      "debito",
		"numero_cuenta": "123456789012",
	}, "secret")

	app := fiber.New()
	app.Post("/bancoestado/status", NewBancoEstadoController(storage, reporter, nil, "secret", auditLog).Status)

	resp := postForm(t, app, "/bancoestado/status", url.Values{"JWT": {token}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["msg"] != "ok" {
		t.Errorf("body = %v", body)
	}

	if submitter.calls != 1 {
		t.Errorf("settlement submissions = %d, want 1", submitter.calls)
	}

	updated, _ := storage.Get(orderID)
	if store.AsString(updated["status"]) != "ok" {
		t.Errorf("record status = %v", updated["status"])
	}
	callback, _ := store.AsDocument(updated["callback"])
	payload, _ := store.AsDocument(callback["payload"])
	if store.AsString(payload["numero_cuenta"]) != "XXXXXXXX9012" {
		t.Errorf("stored numero_cuenta = %v, must be masked", payload["numero_cuenta"])
	}
}

func TestBancoEstadoStatusUnknownOrder(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "bancoestado")

	token := signCallbackJWT(t, jwt.MapClaims{"oc": "HNBE-20240510120000-ffffff", "resultado": "ok"}, "secret")

	app := fiber.New()
	app.Post("/bancoestado/status", NewBancoEstadoController(storage, reporter, nil, "secret", auditLog).Status)

	resp := postForm(t, app, "/bancoestado/status", url.Values{"JWT": {token}})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestBancoEstadoStatusBadSignature(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "bancoestado")

	token := signCallbackJWT(t, jwt.MapClaims{"oc": "HNBE-X"}, "another-secret")

	app := fiber.New()
	app.Post("/bancoestado/status", NewBancoEstadoController(storage, reporter, nil, "secret", auditLog).Status)

	resp := postForm(t, app, "/bancoestado/status", url.Values{"JWT": {token}})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

/* ===================== Zumpago ===================== */

func TestZumpagoNotifyApproved(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "zumpago")
	seedPayableRecord(t, storage, "HNBE-20240510120000-abc123")

	app := fiber.New()
	app.Post("/zumpago/notify", NewZumpagoController(storage, reporter, &service.ZumpagoParser{}, auditLog).Notify)

	xmlPayload := `<Notificacion><IdTransaccion>HNBE-20240510120000-abc123</IdTransaccion><CodigoRespuesta>0</CodigoRespuesta><MontoTotal>45000</MontoTotal></Notificacion>`
	resp := postForm(t, app, "/zumpago/notify", url.Values{"xml": {xmlPayload}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "OK" {
		t.Errorf("body = %q, the provider expects a bare OK", raw)
	}
	if submitter.calls != 1 {
		t.Errorf("settlement submissions = %d, want 1", submitter.calls)
	}
}

func TestZumpagoNotifyAlwaysAnswersOK(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "zumpago")

	app := fiber.New()
	app.Post("/zumpago/notify", NewZumpagoController(storage, reporter, &service.ZumpagoParser{}, auditLog).Notify)

	for _, values := range []url.Values{
		{},                              // no xml at all
		{"xml": {"not xml"}},            // unparseable
		{"xml": {"<Notificacion/>"}},    // missing IdTransaccion
	} {
		resp := postForm(t, app, "/zumpago/notify", values)
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("status = %d for %v, the notify endpoint must always answer 200", resp.StatusCode, values)
		}
	}
	if submitter.calls != 0 {
		t.Error("nothing valid was notified, nothing may be settled")
	}
}

func TestZumpagoNotifyRejectedCodeIsNotSettled(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "zumpago")
	seedPayableRecord(t, storage, "HNBE-20240510120000-abc123")

	app := fiber.New()
	app.Post("/zumpago/notify", NewZumpagoController(storage, reporter, &service.ZumpagoParser{}, auditLog).Notify)

	xmlPayload := `<Notificacion><IdTransaccion>HNBE-20240510120000-abc123</IdTransaccion><CodigoRespuesta>12</CodigoRespuesta></Notificacion>`
	resp := postForm(t, app, "/zumpago/notify", url.Values{"xml": {xmlPayload}})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if submitter.calls != 0 {
		t.Error("a rejected notification must not be settled")
	}

	record, _ := storage.Get("HNBE-20240510120000-abc123")
	latest, ok := storage.LatestResponse(record)
	if !ok {
		t.Fatal("the rejected notification was not stored")
	}
	detail, _ := store.AsDocument(latest["detail"])
	if store.AsString(detail["response_code"]) != "012" {
		t.Errorf("response_code = %v, want the padded code", detail["response_code"])
	}
}

/* ===================== Mercado Pago ===================== */

func TestMercadoPagoWebhookApproved(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "mercadopago")
	seedPayableRecord(t, storage, "HNMP-20240510120000-abc123")

	fetcher := &fakePaymentFetcher{GetFunc: func(id string) (gwdto.MercadoPagoPayment, error) {
		if id != "12345" {
			t.Errorf("payment id = %q", id)
		}
		return gwdto.MercadoPagoPayment{
			ID:                12345,
			Status:            "approved",
			ExternalReference: "HNMP-20240510120000-abc123",
			TransactionAmount: 45000,
			DateApproved:      time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
		}, nil
	}}

	app := fiber.New()
	app.Post("/mercadopago/webhook", NewMercadoPagoController(storage, reporter, fetcher, auditLog).Webhook)

	resp := postJSON(t, app, "/mercadopago/webhook", map[string]any{
		"type": "payment",
		"data": map[string]any{"id": "12345"},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if submitter.calls != 1 {
		t.Errorf("settlement submissions = %d, want 1", submitter.calls)
	}
}

func TestMercadoPagoWebhookPendingIsStoredOnly(t *testing.T) {
	storage, reporter, submitter, auditLog := newHarness(t, "mercadopago")

	fetcher := &fakePaymentFetcher{GetFunc: func(id string) (gwdto.MercadoPagoPayment, error) {
		return gwdto.MercadoPagoPayment{ID: 12345, Status: "pending", ExternalReference: "HNMP-X"}, nil
	}}

	app := fiber.New()
	app.Post("/mercadopago/webhook", NewMercadoPagoController(storage, reporter, fetcher, auditLog).Webhook)

	resp := postJSON(t, app, "/mercadopago/webhook", map[string]any{
		"data": map[string]any{"id": "12345"},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if submitter.calls != 0 {
		t.Error("a pending payment must not be settled")
	}

	record, ok := storage.Get("HNMP-X")
	if !ok {
		t.Fatal("the pending response was not stored")
	}
	if _, ok := storage.LatestResponse(record); !ok {
		t.Error("no response recorded for the pending payment")
	}
}

func TestMercadoPagoWebhookMissingID(t *testing.T) {
	storage, reporter, _, auditLog := newHarness(t, "mercadopago")
	fetcher := &fakePaymentFetcher{GetFunc: func(string) (gwdto.MercadoPagoPayment, error) {
		t.Fatal("nothing should be fetched without a payment id")
		return gwdto.MercadoPagoPayment{}, nil
	}}

	app := fiber.New()
	app.Post("/mercadopago/webhook", NewMercadoPagoController(storage, reporter, fetcher, auditLog).Webhook)

	resp := postJSON(t, app, "/mercadopago/webhook", map[string]any{"type": "payment"})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}
