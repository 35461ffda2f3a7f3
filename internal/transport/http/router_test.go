package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"pmohub/internal/dossier"
	"pmohub/internal/events"
	"pmohub/internal/kv"
	"pmohub/internal/platform/middleware"
	"pmohub/internal/progress"
	"pmohub/internal/scope"
	"pmohub/internal/subform"
	httptransport "pmohub/internal/transport/http"
)

type RouterSuite struct {
	suite.Suite
	store    *kv.Memory
	registry *dossier.Registry
	server   *httptest.Server
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.store = kv.NewMemory(0)
	bus := events.NewBus(logger, nil, 16)

	var err error
	s.registry, err = dossier.NewRegistry(s.store, bus, logger, nil)
	s.Require().NoError(err)
	payloads, err := dossier.NewPayloadStore(s.store, s.registry, subform.NewRegistry(), bus, logger, nil, 128)
	s.Require().NoError(err)
	scopes, err := scope.NewService(s.store, s.registry, bus, logger)
	s.Require().NoError(err)
	tracker, err := progress.NewTracker(s.store, s.registry, subform.NewRegistry(), bus, logger, nil)
	s.Require().NoError(err)
	s.registry.AddCascade(payloads)
	s.registry.AddCascade(scopes)
	s.registry.AddCascade(tracker)

	handler := httptransport.NewHandler(s.registry, payloads, scopes, tracker, logger)
	s.server = httptest.NewServer(httptransport.NewRouter(handler, nil))
	s.T().Cleanup(s.server.Close)
}

func (s *RouterSuite) do(method, path string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, into any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *RouterSuite) createDocument() string {
	resp := s.do(http.MethodPost, "/v1/documents", dossier.NewDocument{
		TaxID:        "12345678900",
		DisplayName:  "Maria da Silva",
		UnitName:     "Sítio Boa Vista",
		ValidityYear: 2026,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var body struct {
		ID string `json:"id"`
	}
	s.decode(resp, &body)
	return body.ID
}

func (s *RouterSuite) TestHealthz() {
	resp := s.do(http.MethodGet, "/healthz", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestDocumentLifecycle() {
	id := s.createDocument()
	s.Equal("2026-12345678900-sitio-boa-vista", id)

	s.Run("list includes the document", func() {
		resp := s.do(http.MethodGet, "/v1/documents", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Documents []dossier.Document `json:"documents"`
		}
		s.decode(resp, &body)
		s.Require().Len(body.Documents, 1)
		s.Equal(id, body.Documents[0].ID)
	})

	s.Run("first document is active", func() {
		resp := s.do(http.MethodGet, "/v1/documents/active", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Document *dossier.Document `json:"document"`
		}
		s.decode(resp, &body)
		s.Require().NotNil(body.Document)
		s.Equal(id, body.Document.ID)
	})

	s.Run("patch updates metadata", func() {
		resp := s.do(http.MethodPatch, "/v1/documents/"+id, map[string]any{
			"certification_group": "Grupo Terra Viva",
		})
		resp.Body.Close()
		s.Equal(http.StatusNoContent, resp.StatusCode)

		get := s.do(http.MethodGet, "/v1/documents/"+id, nil)
		var doc dossier.Document
		s.decode(get, &doc)
		s.Equal("Grupo Terra Viva", doc.CertificationGroup)
	})

	s.Run("delete clears the active selection", func() {
		resp := s.do(http.MethodDelete, "/v1/documents/"+id, nil)
		resp.Body.Close()
		s.Equal(http.StatusNoContent, resp.StatusCode)

		active := s.do(http.MethodGet, "/v1/documents/active", nil)
		s.Equal(http.StatusOK, active.StatusCode)
		var body struct {
			Document *dossier.Document `json:"document"`
		}
		s.decode(active, &body)
		s.Nil(body.Document)
	})
}

func (s *RouterSuite) TestUnknownDocumentIs404() {
	resp := s.do(http.MethodGet, "/v1/documents/2026-000-nowhere", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestSubforms() {
	id := s.createDocument()

	s.Run("unsaved subform reads as null fields", func() {
		resp := s.do(http.MethodGet, "/v1/documents/"+id+"/subforms/pmo-base", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		s.decode(resp, &body)
		s.Nil(body.Fields)
	})

	s.Run("put then get round-trips", func() {
		resp := s.do(http.MethodPut, "/v1/documents/"+id+"/subforms/pmo-base", map[string]any{
			"municipio": "Ibiúna",
		})
		resp.Body.Close()
		s.Equal(http.StatusNoContent, resp.StatusCode)

		get := s.do(http.MethodGet, "/v1/documents/"+id+"/subforms/pmo-base", nil)
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		s.decode(get, &body)
		s.Equal("Ibiúna", body.Fields["municipio"])
	})

	s.Run("unknown subform name is a bad request", func() {
		resp := s.do(http.MethodPut, "/v1/documents/"+id+"/subforms/anexo-inexistente", map[string]any{})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RouterSuite) TestArtifacts() {
	id := s.createDocument()
	blob := []byte("%PDF-1.4 croqui")

	req, err := http.NewRequest(http.MethodPut,
		s.server.URL+"/v1/documents/"+id+"/artifacts/croqui.pdf", bytes.NewReader(blob))
	s.Require().NoError(err)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusNoContent, resp.StatusCode)

	get := s.do(http.MethodGet, "/v1/documents/"+id+"/artifacts/croqui.pdf", nil)
	defer get.Body.Close()
	s.Equal(http.StatusOK, get.StatusCode)
	got, err := io.ReadAll(get.Body)
	s.Require().NoError(err)
	s.Equal(blob, got)
}

func (s *RouterSuite) TestScope() {
	id := s.createDocument()

	s.Run("put syncs enabled subforms", func() {
		resp := s.do(http.MethodPut, "/v1/documents/"+id+"/scope", map[string]any{
			"activities":         map[string]bool{scope.ActivityHortalicas: true},
			"intends_to_certify": true,
		})
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Enabled []string `json:"enabled_subforms"`
		}
		s.decode(resp, &body)
		s.Equal([]string{subform.Base, subform.Vegetal}, body.Enabled)
	})

	s.Run("get returns selection and resolution", func() {
		resp := s.do(http.MethodGet, "/v1/documents/"+id+"/scope", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Selection scope.Selection `json:"selection"`
			Enabled   []string        `json:"enabled_subforms"`
		}
		s.decode(resp, &body)
		s.True(body.Selection.Activities[scope.ActivityHortalicas])
		s.Equal([]string{subform.Base, subform.Vegetal}, body.Enabled)
	})

	s.Run("resolve preview persists nothing", func() {
		resp := s.do(http.MethodPost, "/v1/scope/resolve", map[string]any{
			"activities": map[string]bool{scope.ActivityApicultura: true},
		})
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Enabled []string `json:"enabled_subforms"`
		}
		s.decode(resp, &body)
		s.Equal([]string{subform.Base, subform.Apicultura}, body.Enabled)

		get := s.do(http.MethodGet, "/v1/documents/"+id+"/scope", nil)
		var stored struct {
			Selection scope.Selection `json:"selection"`
		}
		s.decode(get, &stored)
		s.False(stored.Selection.Activities[scope.ActivityApicultura])
	})
}

func (s *RouterSuite) TestProgress() {
	id := s.createDocument()

	s.Run("save and read back", func() {
		resp := s.do(http.MethodPut, "/v1/documents/"+id+"/progress/pmo-base", map[string]int{
			"percentage": 40,
		})
		resp.Body.Close()
		s.Equal(http.StatusNoContent, resp.StatusCode)

		get := s.do(http.MethodGet, "/v1/documents/"+id+"/progress", nil)
		var body struct {
			Progress map[string]int `json:"progress"`
		}
		s.decode(get, &body)
		s.Equal(40, body.Progress[subform.Base])
	})

	s.Run("overall aggregates enabled subforms", func() {
		resp := s.do(http.MethodGet, "/v1/documents/"+id+"/progress/overall", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Overall int `json:"overall"`
		}
		s.decode(resp, &body)
		s.Equal(40, body.Overall)
	})

	s.Run("out-of-range percentage is rejected", func() {
		resp := s.do(http.MethodPut, "/v1/documents/"+id+"/progress/pmo-base", map[string]int{
			"percentage": 150,
		})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("recalculate derives the score from stored fields", func() {
		put := s.do(http.MethodPut, "/v1/documents/"+id+"/subforms/anexo-cogumelo", map[string]any{
			"especies_cultivadas": []string{"shiitake"},
			"origem_inoculo":      "laboratorio proprio",
			"substrato":           "serragem de eucalipto",
			"local_producao":      "estufa 2",
		})
		put.Body.Close()
		s.Require().Equal(http.StatusNoContent, put.StatusCode)

		resp := s.do(http.MethodPost, "/v1/documents/"+id+"/progress/anexo-cogumelo/recalculate", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		var body struct {
			Percentage int `json:"percentage"`
		}
		s.decode(resp, &body)
		s.Equal(100, body.Percentage)
	})
}

func (s *RouterSuite) TestQuotaExceededMapsTo507() {
	logger := slog.New(slog.DiscardHandler)
	tiny := kv.NewMemory(16)
	bus := events.NewBus(logger, nil, 16)

	registry, err := dossier.NewRegistry(tiny, bus, logger, nil)
	s.Require().NoError(err)
	payloads, err := dossier.NewPayloadStore(tiny, registry, subform.NewRegistry(), bus, logger, nil, 128)
	s.Require().NoError(err)
	scopes, err := scope.NewService(tiny, registry, bus, logger)
	s.Require().NoError(err)
	tracker, err := progress.NewTracker(tiny, registry, subform.NewRegistry(), bus, logger, nil)
	s.Require().NoError(err)

	handler := httptransport.NewHandler(registry, payloads, scopes, tracker, logger)
	server := httptest.NewServer(httptransport.NewRouter(handler, nil))
	defer server.Close()

	raw, err := json.Marshal(dossier.NewDocument{
		TaxID: "123", DisplayName: "X", UnitName: "Y", ValidityYear: 2026,
	})
	s.Require().NoError(err)
	resp, err := server.Client().Post(server.URL+"/v1/documents", "application/json", bytes.NewReader(raw))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusInsufficientStorage, resp.StatusCode)
}

type staticValidator struct {
	subject string
}

func (v staticValidator) Validate(tokenString string) (string, error) {
	if tokenString != "valid-token" {
		return "", errors.New("invalid token")
	}
	return v.subject, nil
}

func TestRequireAuthGuardsV1(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := kv.NewMemory(0)
	bus := events.NewBus(logger, nil, 16)

	registry, err := dossier.NewRegistry(store, bus, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	payloads, err := dossier.NewPayloadStore(store, registry, subform.NewRegistry(), bus, logger, nil, 128)
	if err != nil {
		t.Fatal(err)
	}
	scopes, err := scope.NewService(store, registry, bus, logger)
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := progress.NewTracker(store, registry, subform.NewRegistry(), bus, logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	auth := middleware.RequireAuth(staticValidator{subject: "tecnico-1"}, logger)
	handler := httptransport.NewHandler(registry, payloads, scopes, tracker, logger)
	server := httptest.NewServer(httptransport.NewRouter(handler, auth))
	defer server.Close()

	t.Run("missing token is rejected", func(t *testing.T) {
		resp, err := server.Client().Get(server.URL + "/v1/documents")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", resp.StatusCode)
		}
	})

	t.Run("healthz stays open", func(t *testing.T) {
		resp, err := server.Client().Get(server.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got %d, want 200", resp.StatusCode)
		}
	})

	t.Run("valid token passes through", func(t *testing.T) {
		req, err := http.NewRequestWithContext(context.Background(),
			http.MethodGet, server.URL+"/v1/documents", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer valid-token")
		resp, err := server.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got %d, want 200", resp.StatusCode)
		}
	})
}
