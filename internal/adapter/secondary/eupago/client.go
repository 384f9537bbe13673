// Package eupago is the secondary adapter for the EuPago payment gateway.
// Every call is a form-encoded POST keyed by the server-held API key.
package eupago

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/output"
)

const (
	SandboxBaseURL    = "https://sandbox.eupago.pt/clientes/rest_api/"
	ProductionBaseURL = "https://clientes.eupago.pt/clientes/rest_api/"

	pathCard       = "cartaocredito/create"
	pathMBWay      = "mbway/create"
	pathMultibanco = "multibanco/create"
	pathTransfer   = "transferencia/create"
	pathStatus     = "pedido/info"

	dateLayout = "2006-01-02"
)

// Config configures the gateway client
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	ReferenceTTL time.Duration
}

// Client implements output.PaymentGateway against EuPago
type Client struct {
	baseURL      string
	apiKey       string
	referenceTTL time.Duration
	client       *http.Client
	now          func() time.Time
}

// ResolveBaseURL picks the gateway host; an explicit URL wins over the mode
func ResolveBaseURL(mode, override string) string {
	if override != "" {
		return override
	}
	if strings.EqualFold(mode, "production") {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// New creates a gateway client
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = SandboxBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.ReferenceTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		referenceTTL: ttl,
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

var _ output.PaymentGateway = (*Client)(nil)

// response is the union of every envelope EuPago returns
type response struct {
	Sucesso          bool       `json:"sucesso"`
	Resposta         flexString `json:"resposta"`
	Mensagem         flexString `json:"mensagem"`
	Referencia       flexString `json:"referencia"`
	Entidade         flexString `json:"entidade"`
	Valor            flexString `json:"valor"`
	Alias            flexString `json:"alias"`
	URL              flexString `json:"url"`
	RedirectURL      flexString `json:"redirectUrl"`
	IBAN             flexString `json:"iban"`
	DataFim          flexString `json:"data_fim"`
	Estado           flexString `json:"estado"`
	EstadoReferencia flexString `json:"estado_referencia"`
	Status           flexString `json:"status"`
}

// CreatePayment dispatches by method. Any failure comes back as Success=false.
func (c *Client) CreatePayment(ctx context.Context, req output.GatewayRequest) (*output.GatewayResponse, error) {
	form := url.Values{}
	form.Set("valor", core.Euros(req.Amount).StringFixed(2))
	form.Set("id", req.OrderID)

	var path string
	var requestedExpiry *time.Time

	switch req.Method {
	case core.MethodCard:
		path = pathCard
		form.Set("url_retorno", req.ReturnURL)
		form.Set("url_cancelamento", req.CancelURL)
	case core.MethodMBWay:
		path = pathMBWay
		form.Set("alias", req.PhoneNumber)
		form.Set("descricao", req.Description)
	case core.MethodMultibanco:
		path = pathMultibanco
		day := c.now().Add(c.referenceTTL).Format(dateLayout)
		if end, ok := endOfDay(day); ok {
			requestedExpiry = &end
		}
		form.Set("per_dup", "0")
		form.Set("data_fim", day)
	case core.MethodTransfer:
		path = pathTransfer
	default:
		return &output.GatewayResponse{Success: false, Message: fmt.Sprintf("method %s is not handled by the gateway", req.Method)}, nil
	}

	log.Printf("[EuPago] POST %s%s id=%s method=%s valor=%s", c.baseURL, path, req.OrderID, req.Method, form.Get("valor"))

	res, err := c.post(ctx, path, form)
	if err != nil {
		log.Printf("[EuPago] %s failed: %v", path, err)
		return &output.GatewayResponse{Success: false, Message: err.Error()}, nil
	}
	if !res.Sucesso || strings.EqualFold(string(res.Resposta), "error") {
		msg := firstNonEmpty(string(res.Mensagem), string(res.Resposta), "gateway rejected the request")
		return &output.GatewayResponse{Success: false, Message: msg}, nil
	}

	out := &output.GatewayResponse{
		Success:     true,
		Message:     string(res.Resposta),
		Reference:   string(res.Referencia),
		Entity:      string(res.Entidade),
		RedirectURL: firstNonEmpty(string(res.URL), string(res.RedirectURL)),
		IBAN:        string(res.IBAN),
		Alias:       string(res.Alias),
		Amount:      req.Amount,
	}
	if res.Valor != "" {
		if cents, err := core.CentsFromEuros(string(res.Valor)); err == nil {
			out.Amount = cents
		}
	}

	switch req.Method {
	case core.MethodMultibanco, core.MethodTransfer:
		out.ExpiresAt = requestedExpiry
		if end, ok := endOfDay(string(res.DataFim)); ok {
			out.ExpiresAt = &end
		}
	case core.MethodMBWay:
		if out.Alias == "" {
			out.Alias = req.PhoneNumber
		}
	}

	if out.Reference == "" {
		return &output.GatewayResponse{Success: false, Message: "gateway response carried no reference"}, nil
	}
	return out, nil
}

// PaymentStatus asks the gateway for the current status of reference
func (c *Client) PaymentStatus(ctx context.Context, reference string) (core.PaymentStatus, error) {
	form := url.Values{}
	form.Set("referencia", reference)

	res, err := c.post(ctx, pathStatus, form)
	if err != nil {
		return "", fmt.Errorf("eupago status %s: %w", reference, err)
	}
	if !res.Sucesso || strings.EqualFold(string(res.Resposta), "error") {
		return "", fmt.Errorf("eupago status %s: %s", reference, firstNonEmpty(string(res.Mensagem), string(res.Resposta), "rejected"))
	}
	return NormalizeStatus(firstNonEmpty(string(res.EstadoReferencia), string(res.Status), string(res.Estado))), nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*response, error) {
	form.Set("chave", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("eupago %s: http %d", path, resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("eupago %s: malformed response: %w", path, err)
	}
	return &out, nil
}

// NormalizeStatus folds the gateway's Portuguese and English status spellings
// into the session statuses. Unknown values are treated as still pending.
func NormalizeStatus(raw string) core.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pago", "paga", "paid":
		return core.PaymentStatusPaid
	case "cancelado", "cancelada", "expirado", "expirada", "cancelled", "canceled", "expired":
		return core.PaymentStatusCancelled
	case "erro", "falhado", "falhou", "recusado", "failed", "error":
		return core.PaymentStatusFailed
	default:
		return core.PaymentStatusPending
	}
}

// endOfDay is the last second a reference with the given data_fim stays payable
func endOfDay(date string) (time.Time, bool) {
	t, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(24*time.Hour - time.Second), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexString accepts JSON strings, numbers and booleans.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}
