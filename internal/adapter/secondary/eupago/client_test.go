package eupago

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/output"
)

type capturedRequest struct {
	path        string
	contentType string
	form        url.Values
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		captured.path = r.URL.Path
		captured.contentType = r.Header.Get("Content-Type")
		captured.form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(baseURL string) *Client {
	c := New(Config{BaseURL: baseURL, APIKey: "demo-key", ReferenceTTL: 48 * time.Hour})
	c.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local) }
	return c
}

func TestCreateMultibanco(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK,
		`{"sucesso":true,"referencia":"123456789","valor":12.34,"entidade":"11249","estado":0,"resposta":"OK"}`)
	c := newTestClient(srv.URL)

	res, err := c.CreatePayment(context.Background(), output.GatewayRequest{
		Method: core.MethodMultibanco, Amount: 1234, OrderID: "RES-7",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if !res.Success || res.Reference != "123456789" || res.Entity != "11249" || res.Amount != 1234 {
		t.Fatalf("unexpected response %+v", res)
	}
	// no data_fim echoed: the deadline is the end of the day that was sent
	wantExpiry := time.Date(2026, 3, 12, 23, 59, 59, 0, time.Local)
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("ExpiresAt = %v, want %v", res.ExpiresAt, wantExpiry)
	}

	if got.path != "/multibanco/create" {
		t.Fatalf("path = %s", got.path)
	}
	if got.contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %s", got.contentType)
	}
	want := map[string]string{"chave": "demo-key", "valor": "12.34", "id": "RES-7", "per_dup": "0", "data_fim": "2026-03-12"}
	for k, v := range want {
		if got.form.Get(k) != v {
			t.Errorf("form[%s] = %q, want %q", k, got.form.Get(k), v)
		}
	}
}

func TestCreateMultibancoUsesGatewayDeadline(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK,
		`{"sucesso":true,"referencia":"987654321","valor":"5.00","entidade":"11249","data_fim":"2026-03-11"}`)
	c := newTestClient(srv.URL)

	res, err := c.CreatePayment(context.Background(), output.GatewayRequest{Method: core.MethodMultibanco, Amount: 500, OrderID: "RES-8"})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	want := time.Date(2026, 3, 11, 23, 59, 59, 0, time.Local)
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", res.ExpiresAt, want)
	}
}

func TestCreateMultibancoDeadlineMatchesEcho(t *testing.T) {
	sent, _ := newTestServer(t, http.StatusOK, `{"sucesso":true,"referencia":"111","entidade":"11249"}`)
	echoed, _ := newTestServer(t, http.StatusOK, `{"sucesso":true,"referencia":"222","entidade":"11249","data_fim":"2026-03-12"}`)

	req := output.GatewayRequest{Method: core.MethodMultibanco, Amount: 500, OrderID: "RES-8"}
	a, err := newTestClient(sent.URL).CreatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	b, err := newTestClient(echoed.URL).CreatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if a.ExpiresAt == nil || b.ExpiresAt == nil || !a.ExpiresAt.Equal(*b.ExpiresAt) {
		t.Fatalf("deadlines differ: sent %v, echoed %v", a.ExpiresAt, b.ExpiresAt)
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		mode, override, want string
	}{
		{"sandbox", "", SandboxBaseURL},
		{"", "", SandboxBaseURL},
		{"PRODUCTION", "", ProductionBaseURL},
		{"production", "http://localhost:9999/", "http://localhost:9999/"},
	}
	for _, tt := range tests {
		if got := ResolveBaseURL(tt.mode, tt.override); got != tt.want {
			t.Errorf("ResolveBaseURL(%q, %q) = %q, want %q", tt.mode, tt.override, got, tt.want)
		}
	}
}

func TestCreateMBWay(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK, `{"sucesso":true,"referencia":"555","valor":"20.00","estado":0,"resposta":"OK"}`)
	c := newTestClient(srv.URL)

	res, err := c.CreatePayment(context.Background(), output.GatewayRequest{
		Method: core.MethodMBWay, Amount: 2000, OrderID: "RES-9", PhoneNumber: "912345678", Description: "Reserva RES-9",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if !res.Success || res.Reference != "555" || res.Alias != "912345678" || res.ExpiresAt != nil {
		t.Fatalf("unexpected response %+v", res)
	}
	if got.path != "/mbway/create" || got.form.Get("alias") != "912345678" {
		t.Fatalf("unexpected request %s %v", got.path, got.form)
	}
}

func TestCreateCard(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK, `{"sucesso":true,"referencia":"CC-1","url":"https://pay.example/cc/1","resposta":"OK"}`)
	c := newTestClient(srv.URL)

	res, err := c.CreatePayment(context.Background(), output.GatewayRequest{
		Method: core.MethodCard, Amount: 4550, OrderID: "RES-10",
		ReturnURL: "https://tasca.example/ok", CancelURL: "https://tasca.example/cancel",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if res.RedirectURL != "https://pay.example/cc/1" || res.Reference != "CC-1" {
		t.Fatalf("unexpected response %+v", res)
	}
	if got.form.Get("url_retorno") != "https://tasca.example/ok" || got.form.Get("url_cancelamento") != "https://tasca.example/cancel" {
		t.Fatalf("return urls not forwarded: %v", got.form)
	}
	if got.form.Get("valor") != "45.50" {
		t.Fatalf("valor = %s", got.form.Get("valor"))
	}
}

func TestCreateTransfer(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK, `{"sucesso":true,"referencia":"TR-1","iban":"PT50000201231234567890154","entidade":"11249"}`)
	c := newTestClient(srv.URL)

	res, err := c.CreatePayment(context.Background(), output.GatewayRequest{Method: core.MethodTransfer, Amount: 100, OrderID: "RES-11"})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if got.path != "/transferencia/create" || res.IBAN != "PT50000201231234567890154" {
		t.Fatalf("unexpected %s %+v", got.path, res)
	}
}

func TestCreateFailuresAreNormalized(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"resposta error", http.StatusOK, `{"sucesso":true,"resposta":"error","referencia":"1"}`},
		{"sucesso false", http.StatusOK, `{"sucesso":false,"resposta":"Chave invalida"}`},
		{"http 500", http.StatusInternalServerError, `<html>oops</html>`},
		{"html body", http.StatusOK, `<!DOCTYPE html><html></html>`},
		{"no reference", http.StatusOK, `{"sucesso":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tc.status, tc.body)
			res, err := newTestClient(srv.URL).CreatePayment(context.Background(), output.GatewayRequest{
				Method: core.MethodMultibanco, Amount: 100, OrderID: "X",
			})
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if res.Success || res.Message == "" || res.Reference != "" {
				t.Fatalf("expected normalized failure, got %+v", res)
			}
		})
	}
}

func TestCreateTransportFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{}`)
	c := newTestClient(srv.URL)
	srv.Close()

	res, err := c.CreatePayment(context.Background(), output.GatewayRequest{Method: core.MethodMBWay, Amount: 100, OrderID: "X", PhoneNumber: "912345678"})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Success {
		t.Fatal("transport failure reported as success")
	}
}

func TestPaymentStatus(t *testing.T) {
	cases := map[string]core.PaymentStatus{
		`{"sucesso":true,"estado_referencia":"pago"}`:     core.PaymentStatusPaid,
		`{"sucesso":true,"estado_referencia":"pendente"}`: core.PaymentStatusPending,
		`{"sucesso":true,"status":"paid"}`:                core.PaymentStatusPaid,
		`{"sucesso":true,"estado":"expirado"}`:            core.PaymentStatusCancelled,
		`{"sucesso":true,"estado":"recusado"}`:            core.PaymentStatusFailed,
		`{"sucesso":true,"estado":0}`:                     core.PaymentStatusPending,
	}
	for body, want := range cases {
		srv, got := newTestServer(t, http.StatusOK, body)
		status, err := newTestClient(srv.URL).PaymentStatus(context.Background(), "123456789")
		if err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if status != want {
			t.Errorf("%s: status = %s, want %s", body, status, want)
		}
		if got.path != "/pedido/info" || got.form.Get("referencia") != "123456789" || got.form.Get("chave") != "demo-key" {
			t.Errorf("unexpected request %s %v", got.path, got.form)
		}
	}
}

func TestPaymentStatusErrors(t *testing.T) {
	for _, body := range []string{`<html>502</html>`, `{"sucesso":false,"resposta":"error"}`} {
		srv, _ := newTestServer(t, http.StatusOK, body)
		if _, err := newTestClient(srv.URL).PaymentStatus(context.Background(), "1"); err == nil {
			t.Errorf("%s: expected error", body)
		}
	}
}
