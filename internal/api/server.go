package api

import (
	"context"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/logger"
	"github.com/samcharles93/cif/internal/predictor"
	"github.com/samcharles93/cif/internal/tensor"
)

// Predictor is the subset of *predictor.Predictor the server needs.
type Predictor interface {
	Predict(ctx context.Context, hidden tensor.Batch, mask tensor.Mat) (*predictor.Output, error)
	PredictWithTail(ctx context.Context, hidden tensor.Batch, mask tensor.Mat) (*predictor.Output, error)
	Config() predictor.Config
}

type Server struct {
	predictor Predictor
	store     *PredictionStore
	limits    Limits
	log       logger.Logger
	clock     func() time.Time
}

func NewServer(p Predictor, store *PredictionStore, limits Limits, log logger.Logger) *Server {
	if store == nil {
		store = NewPredictionStore(DefaultStoreCapacity)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		predictor: p,
		store:     store,
		limits:    limits.withDefaults(),
		log:       log.With("component", "api"),
		clock:     time.Now,
	}
}

// Register mounts the CIF routes under /v1/cif behind a body size limit.
func (s *Server) Register(e *echo.Echo) {
	g := e.Group("/v1/cif", middleware.BodyLimit(s.limits.MaxBodyBytes))
	g.POST("/predict", s.handlePredict)
	g.GET("/predictions/:id", s.handleGetPrediction)
	g.DELETE("/predictions/:id", s.handleDeletePrediction)
	g.POST("/mask", s.handleMask)
	g.GET("/config", s.handleConfig)
}

func (s *Server) handlePredict(c *echo.Context) error {
	if s.predictor == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "predictor not configured", "")
	}
	req, err := decodeJSON[PredictRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	hidden, mask, err := batchFromRequest(&req, s.limits)
	if err != nil {
		return s.writeFailure(c, err)
	}

	run := s.predictor.Predict
	if req.Tail {
		run = s.predictor.PredictWithTail
	}
	out, err := run(c.Request().Context(), hidden, mask)
	if err != nil {
		return s.writeFailure(c, err)
	}

	resp := predictionFromOutput(newPredictionID(), s.clock().Unix(), req.Tail, out)
	if req.Store == nil || *req.Store {
		s.store.Save(resp)
	}
	s.log.Debug("prediction served", "id", resp.ID, "batch", hidden.B, "tail", req.Tail)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetPrediction(c *echo.Context) error {
	resp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "prediction not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeletePrediction(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "prediction not found")
	}
	return c.JSON(http.StatusOK, DeletePredictionResp{
		ID:      id,
		Object:  "cif.prediction",
		Deleted: true,
	})
}

func (s *Server) handleMask(c *echo.Context) error {
	req, err := decodeJSON[MaskRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	maxLen := 0
	if len(req.Lengths) > 0 {
		maxLen = slices.Max(req.Lengths)
	}
	if req.MaxLen != nil {
		maxLen = *req.MaxLen
	}
	if err := s.limits.checkBatch(len(req.Lengths), maxLen); err != nil {
		return s.writeFailure(c, err)
	}
	mask, err := cif.SequenceMask(req.Lengths, maxLen)
	if err != nil {
		return s.writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, MaskResponse{
		Object: "cif.mask",
		MaxLen: maxLen,
		Mask:   mask.Rows(),
	})
}

func (s *Server) handleConfig(c *echo.Context) error {
	if s.predictor == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "predictor not configured", "")
	}
	return c.JSON(http.StatusOK, ConfigResponse{
		Object: "cif.config",
		Config: s.predictor.Config(),
	})
}

// Limits returns the effective request limits.
func (s *Server) Limits() Limits {
	return s.limits
}

func (s *Server) writeFailure(c *echo.Context, err error) error {
	if isBadRequest(err) {
		return writeBadRequest(c, err.Error())
	}
	s.log.Error("request failed", "path", c.Request().URL.Path, "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("decode request: %v", err)
	}
	return out, nil
}
