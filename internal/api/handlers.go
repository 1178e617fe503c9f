package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sarforge/internal/audit"
	"github.com/sarforge/internal/narrative"
	"github.com/sarforge/internal/pipeline"
	"github.com/sarforge/internal/record"
	"github.com/sarforge/internal/redactor"
	"github.com/sarforge/internal/store"
)

type caseRequest struct {
	SecurityDetail json.RawMessage `json:"security_detail_json"`
}

// recordBytes returns the raw case record. The inbound contract accepts the
// record either as an embedded object or as a JSON-encoded string holding
// one.
func (r caseRequest) recordBytes() ([]byte, error) {
	if len(r.SecurityDetail) == 0 {
		return nil, errors.New("missing field: security_detail_json")
	}
	var asString string
	if err := json.Unmarshal(r.SecurityDetail, &asString); err == nil {
		return []byte(asString), nil
	}
	return []byte(r.SecurityDetail), nil
}

func (s *Server) processCase(c echo.Context) error {
	var req caseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	raw, err := req.recordBytes()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	result, err := s.pipeline.Process(c.Request().Context(), raw)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": publicError(err)})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) enqueueCase(c echo.Context) error {
	if s.queue == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "async processing is not enabled"})
	}

	var req caseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	raw, err := req.recordBytes()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	// Parse up front so obviously broken input is rejected at submission
	// time rather than dying repeatedly on the queue.
	rec, err := record.Parse(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed record"})
	}
	caseID := pipeline.ExtractCaseID(rec)

	if err := s.queue.EnqueueCase(c.Request().Context(), caseID, raw); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to queue case"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued", "case_id": caseID})
}

func (s *Server) listArtifacts(c echo.Context) error {
	caseID := c.Param("case_id")
	artifacts, err := s.artifacts.ListByCase(c.Request().Context(), caseID)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": publicError(err)})
	}
	if len(artifacts) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no artifacts for case"})
	}
	return c.JSON(http.StatusOK, artifacts)
}

// statusFor maps pipeline errors onto HTTP statuses: client-shape problems
// are 400s, everything external or integrity-related is a 502 failed
// generation.
func statusFor(err error) int {
	switch {
	case errors.Is(err, redactor.ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, narrative.ErrModelUnavailable),
		errors.Is(err, narrative.ErrModelTimeout),
		errors.Is(err, narrative.ErrEmptyNarrative),
		errors.Is(err, store.ErrStorageUnavailable),
		errors.Is(err, audit.ErrResidualSensitiveData),
		errors.Is(err, audit.ErrNarrativeIntegrityViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicError keeps error responses to the taxonomy name: wrapped detail can
// echo record contents, which must not cross the boundary.
func publicError(err error) string {
	for _, sentinel := range []error{
		redactor.ErrMalformedRecord,
		narrative.ErrModelUnavailable,
		narrative.ErrModelTimeout,
		narrative.ErrEmptyNarrative,
		store.ErrStorageUnavailable,
		store.ErrNotFound,
		audit.ErrResidualSensitiveData,
		audit.ErrNarrativeIntegrityViolation,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
