package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
	"github.com/ppiankov/lupa/internal/worker"
)

func restRegistration(baseURL string) model.SourceRegistration {
	return model.SourceRegistration{
		ID:           "brasilapi",
		Name:         "BrasilAPI",
		Kind:         model.SourceKindREST,
		Capabilities: []model.Capability{model.CapCompanyLookup},
		BaseURL:      baseURL,
		Endpoints: map[model.Operation]string{
			model.OpGetCompany:      "/cnpj/v1/{cnpj}",
			model.OpSearchContracts: "/contratos",
		},
		FieldMap: map[string]string{"cnpj_basico": model.KeyCNPJ, "qsa": model.KeyPartners, "nome_socio": model.KeyName},
		Timeout:  5 * time.Second,
	}
}

func TestHTTPSource_GetCompany(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cnpj/v1/12345678000190" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "lupa-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"cnpj_basico":"12345678000190","razao_social":"ACME LTDA","qsa":[{"nome_socio":"ANA"}]}`)
	}))
	defer server.Close()

	src, err := NewHTTP(restRegistration(server.URL), HTTPOptions{UserAgent: "lupa-test"})
	if err != nil {
		t.Fatal(err)
	}

	p, err := src.Call(context.Background(), model.OpGetCompany, model.Params{model.KeyCNPJ: "12345678000190"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(p.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(p.Records))
	}
	rec := p.Records[0]
	if rec.String(model.KeyCNPJ) != "12345678000190" || rec.String(model.KeyLegalName) != "ACME LTDA" {
		t.Errorf("field map not applied: %v", rec)
	}
	partners := rec.Records(model.KeyPartners)
	if len(partners) != 1 || partners[0].String(model.KeyName) != "ANA" {
		t.Errorf("nested field map not applied: %v", partners)
	}
}

func TestHTTPSource_QueryAndEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "ano=2023&uf=SP" {
			t.Errorf("unexpected query %q", got)
		}
		_, _ = fmt.Fprint(w, `{"data":[{"numero_contrato":"1"},{"numero_contrato":"2"}],"total":2}`)
	}))
	defer server.Close()

	src, _ := NewHTTP(restRegistration(server.URL), HTTPOptions{})
	p, err := src.Call(context.Background(), model.OpSearchContracts, model.Params{"uf": "SP", "ano": "2023"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(p.Records) != 2 {
		t.Errorf("expected 2 records from envelope, got %d", len(p.Records))
	}
}

func TestHTTPSource_ParamMapAndFlatten(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("dataInicial"); got != "2023-01-01" {
			t.Errorf("expected renamed query parameter, got %q", r.URL.RawQuery)
		}
		_, _ = fmt.Fprint(w, `[{"numero":"CT-9","fornecedor":{"cnpj":"11222333000144","nome":"BETA SA"}}]`)
	}))
	defer server.Close()

	reg := restRegistration(server.URL)
	reg.ParamMap = map[string]string{model.ParamStartDate: "dataInicial"}
	reg.FieldMap = map[string]string{
		"numero":          model.KeyContractID,
		"fornecedor.cnpj": model.KeySupplierCNPJ,
		"fornecedor.nome": model.KeySupplierName,
	}

	src, _ := NewHTTP(reg, HTTPOptions{})
	p, err := src.Call(context.Background(), model.OpSearchContracts, model.Params{model.ParamStartDate: "2023-01-01"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	rec := p.Records[0]
	if rec.String(model.KeyContractID) != "CT-9" || rec.String(model.KeySupplierCNPJ) != "11222333000144" || rec.String(model.KeySupplierName) != "BETA SA" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestHTTPSource_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src, _ := NewHTTP(restRegistration(server.URL), HTTPOptions{})

	_, err := src.Call(context.Background(), model.OpGetCompany, model.Params{model.KeyCNPJ: "1"})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected StatusError 503, got %v", err)
	}
	if !errors.Is(err, model.ErrSourceCallFailed) {
		t.Errorf("expected ErrSourceCallFailed, got %v", err)
	}

	if _, err := src.Call(context.Background(), model.OpGetCompany, model.Params{}); !errors.Is(err, model.ErrSourceCallFailed) {
		t.Errorf("missing placeholder should fail, got %v", err)
	}
	if _, err := src.Call(context.Background(), model.OpGetBudget, nil); !errors.Is(err, model.ErrSourceCallFailed) {
		t.Errorf("unsupported operation should fail, got %v", err)
	}
}

func TestHTTPSource_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	src, _ := NewHTTP(restRegistration(server.URL), HTTPOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.Call(ctx, model.OpGetCompany, model.Params{model.KeyCNPJ: "1"})
	if !errors.Is(err, model.ErrSourceTimeout) {
		t.Errorf("expected ErrSourceTimeout, got %v", err)
	}
}

func TestHTTPSource_AuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("chave-api-dados") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	reg := restRegistration(server.URL)
	reg.AuthRequired = true
	reg.AuthHeader = "chave-api-dados"

	src, _ := NewHTTP(reg, HTTPOptions{})
	if _, err := src.Call(context.Background(), model.OpSearchContracts, nil); err == nil {
		t.Error("expected error without API key")
	}

	reg.APIKey = "secret"
	src, _ = NewHTTP(reg, HTTPOptions{})
	p, err := src.Call(context.Background(), model.OpSearchContracts, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(p.Records) != 0 {
		t.Errorf("expected empty payload, got %d records", len(p.Records))
	}
}

func TestHTTPSource_PortalHTMLAndRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /privado\n")
		case "/contratos":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprint(w, `<html><body><table>
				<tr><th>Número Contrato</th><th>Valor</th></tr>
				<tr><td>CT-1</td><td>R$ 1.500,00</td></tr>
				<tr><td><a href="#">CT-2</a></td><td>20,00</td></tr>
			</table></body></html>`)
		default:
			_, _ = fmt.Fprint(w, `<html></html>`)
		}
	}))
	defer server.Close()

	reg := restRegistration(server.URL)
	reg.ID = "portal"
	reg.Kind = model.SourceKindPortal
	reg.Endpoints = map[model.Operation]string{
		model.OpSearchContracts: "/contratos",
		model.OpGetSanctions:    "/privado/sancoes",
	}
	reg.FieldMap = map[string]string{"número_contrato": model.KeyContractID, "valor": model.KeyValue}

	src, _ := NewHTTP(reg, HTTPOptions{
		Robots:    util.NewRobotsChecker(nil, "lupa", time.Second),
		Limiter:   worker.NewLimiter(0, 1),
		UserAgent: "lupa",
	})

	p, err := src.Call(context.Background(), model.OpSearchContracts, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(p.Records) != 2 {
		t.Fatalf("expected 2 table rows, got %d", len(p.Records))
	}
	if p.Records[1].String(model.KeyContractID) != "CT-2" || p.Records[0].Float(model.KeyValue) != 1500 {
		t.Errorf("unexpected records %v", p.Records)
	}

	if _, err := src.Call(context.Background(), model.OpGetSanctions, nil); err == nil {
		t.Error("expected robots.txt to disallow /privado")
	}
}

func TestHTTPSource_CircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := restRegistration(server.URL)
	reg.CircuitBreakerThreshold = 2

	src, _ := NewHTTP(reg, HTTPOptions{Cooldown: time.Hour})
	params := model.Params{model.KeyCNPJ: "1"}
	for i := 0; i < 2; i++ {
		_, _ = src.Call(context.Background(), model.OpGetCompany, params)
	}

	_, err := src.Call(context.Background(), model.OpGetCompany, params)
	if !errors.Is(err, model.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected open breaker to skip the request, got %d hits", hits.Load())
	}
}

func TestNewHTTP_InvalidBaseURL(t *testing.T) {
	reg := restRegistration("not a url")
	if _, err := NewHTTP(reg, HTTPOptions{}); !errors.Is(err, model.ErrInvalidRegistration) {
		t.Errorf("expected ErrInvalidRegistration, got %v", err)
	}
}

func TestBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(3, time.Minute)
	b.now = func() time.Time { return now }

	b.Failure()
	b.Failure()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed below threshold, got %s", b.State())
	}

	b.Failure()
	if b.Allow() {
		t.Fatal("expected open breaker to reject")
	}

	now = now.Add(time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("failed trial should reopen, got %s", b.State())
	}

	now = now.Add(time.Minute)
	b.Success()
	if b.State() != BreakerClosed {
		t.Errorf("success should close, got %s", b.State())
	}

	disabled := NewBreaker(0, 0)
	for i := 0; i < 100; i++ {
		disabled.Failure()
	}
	if !disabled.Allow() {
		t.Error("disabled breaker should always allow")
	}
}

func TestStatic(t *testing.T) {
	src := NewStatic("fixture", map[model.Operation]model.Payload{
		model.OpSearchContracts: model.NewRecords(
			model.Record{model.KeySupplierCNPJ: "111", model.KeyContractID: "A"},
			model.Record{model.KeySupplierCNPJ: "222", model.KeyContractID: "B"},
			model.Record{model.KeyContractID: "C"},
		),
	})

	p, err := src.Call(context.Background(), model.OpSearchContracts, model.Params{model.KeySupplierCNPJ: "111"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Records) != 2 {
		t.Errorf("expected matching and key-less records, got %v", p.Records)
	}

	if _, err := src.Call(context.Background(), model.OpGetCompany, nil); !errors.Is(err, model.ErrSourceCallFailed) {
		t.Errorf("expected unsupported operation error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Call(ctx, model.OpSearchContracts, nil); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestLoadStatic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empresas.json")
	if err := os.WriteFile(path, []byte(`{"items":[{"doc":"12345678000190","nome":"ACME"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadStatic(model.SourceRegistration{
		ID:        "offline",
		Endpoints: map[model.Operation]string{model.OpGetCompany: path},
		FieldMap:  map[string]string{"doc": model.KeyCNPJ},
	})
	if err != nil {
		t.Fatalf("LoadStatic failed: %v", err)
	}

	p, _ := src.Call(context.Background(), model.OpGetCompany, model.Params{model.KeyCNPJ: "12345678000190"})
	if len(p.Records) != 1 || p.Records[0].String(model.KeyName) != "ACME" {
		t.Errorf("unexpected payload %v", p)
	}

	_, err = LoadStatic(model.SourceRegistration{
		ID:        "broken",
		Endpoints: map[model.Operation]string{model.OpGetCompany: filepath.Join(dir, "missing.json")},
	})
	if !errors.Is(err, model.ErrInvalidRegistration) {
		t.Errorf("expected ErrInvalidRegistration, got %v", err)
	}
}

func TestDecodeJSON_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"a":1},{"a":2}]`, 2},
		{"object", `{"a":1}`, 1},
		{"envelope object", `{"resultado":{"a":1}}`, 1},
		{"nested", `[{"a":{"b":{"c":1}}}]`, 1},
		{"scalars", `[1,2,3]`, 3},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeJSON([]byte(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}

	if _, err := decodeJSON([]byte(`{broken`)); err == nil {
		t.Error("expected decode error")
	}
}
