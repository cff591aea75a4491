package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"retireplan/internal/audit/feed"
	"retireplan/internal/documents"
	"retireplan/internal/policy"
	"retireplan/pkg/testutil"
)

const (
	masterEmail  = "owner@example.com"
	scenarioURL  = "/v1/documents/artifacts/planner/public/data/scenarios/s1"
	scenarioPath = "artifacts/planner/public/data/scenarios/s1"
)

var advisor = testutil.Advisor("adv-1", "adv@example.com")

type DocumentsHandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestDocumentsHandlerSuite(t *testing.T) {
	suite.Run(t, new(DocumentsHandlerSuite))
}

func (s *DocumentsHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway, err := documents.New(documents.NewInMemoryStore(),
		policy.NewEvaluator(masterEmail),
		feed.Discard{},
		documents.WithLogger(logger),
	)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	New(gateway, logger).Register(s.router)
}

func (s *DocumentsHandlerSuite) send(method, url string, body any) *http.Request {
	return testutil.WithCaller(testutil.NewJSONRequest(s.T(), method, url, body), advisor)
}

func (s *DocumentsHandlerSuite) scenario(age int) map[string]any {
	return map[string]any{
		"advisorId":    advisor.UID,
		"advisorEmail": advisor.Email,
		"retireAge":    age,
	}
}

type documentBody struct {
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

func (s *DocumentsHandlerSuite) TestLifecycle() {
	rr := testutil.DoRequest(s.router, s.send(http.MethodPost, scenarioURL, s.scenario(60)))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[documentBody](s.T(), rr)
	s.Equal(scenarioPath, created.Path)
	s.NotEmpty(created.Data[documents.UpdatedAtField])

	rr = testutil.DoRequest(s.router, s.send(http.MethodPut, scenarioURL, s.scenario(63)))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = testutil.DoRequest(s.router, s.send(http.MethodGet, scenarioURL, nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	got := testutil.UnmarshalResponse[documentBody](s.T(), rr)
	s.EqualValues(63, got.Data["retireAge"])

	rr = testutil.DoRequest(s.router, s.send(http.MethodDelete, scenarioURL, nil))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, s.send(http.MethodGet, scenarioURL, nil))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *DocumentsHandlerSuite) TestErrors() {
	s.Run("unauthenticated", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, scenarioURL, nil)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("policy denial", func() {
		body := s.scenario(60)
		body["advisorId"] = "someone-else"
		rr := testutil.DoRequest(s.router, s.send(http.MethodPost, scenarioURL, body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("malformed body", func() {
		req := testutil.WithCaller(testutil.NewRequestWithBody(s.T(), http.MethodPost, scenarioURL, "{"), advisor)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("null body", func() {
		req := testutil.WithCaller(testutil.NewRequestWithBody(s.T(), http.MethodPost, scenarioURL, "null"), advisor)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("security records are not client-writable", func() {
		rr := testutil.DoRequest(s.router, s.send(http.MethodPut, "/v1/documents/security/users/abc/data", map[string]any{"a": 1}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})
}
