package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/nucleus/internal/rng"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func requestID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}

func generator(seed *int64) *rng.Generator {
	if seed == nil {
		return rng.FromSeed(-1)
	}
	return rng.FromSeed(*seed)
}

func validateConfig(cfg GenerationConfig, param string) error {
	if cfg.Temperature < 0 {
		return newInvalidRequest("%s.temperature must be >= 0", param)
	}
	if cfg.TopP < 0 || cfg.TopP > 1 {
		return newInvalidRequest("%s.top_p must be within [0, 1]", param)
	}
	return nil
}
