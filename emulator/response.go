package emulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Method  string `json:"method"`
	URL     string `json:"url"`
}

type pageMeta struct {
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
	PerPage       int `json:"per_page"`
	Page          int `json:"page"`
}

type page struct {
	Data     []json.RawMessage `json:"data"`
	Metadata pageMeta          `json:"metadata"`
}

type removed struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *Server) fail(c *fiber.Ctx, code int, msg, details string) error {
	return c.Status(code).JSON(apiError{
		Code:    code,
		Message: msg,
		Details: details,
		Method:  c.Method(),
		URL:     c.BaseURL() + c.OriginalURL(),
	})
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	switch {
	case errors.Is(err, ErrNotFound):
		return s.fail(c, fiber.StatusNotFound, "No results found. Check url again", "")
	case errors.Is(err, ErrConflict):
		return s.fail(c, fiber.StatusConflict, "Record already exists", "")
	case errors.Is(err, ErrInvalidRecord):
		return s.fail(c, fiber.StatusBadRequest, "Bad Request", err.Error())
	case errors.As(err, &fe):
		return s.fail(c, fe.Code, fe.Message, "")
	default:
		s.log.Error(fmt.Sprintf("emulator %s %s failed: %s", c.Method(), c.OriginalURL(), err))
		return s.fail(c, fiber.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

// pagination reads page and size. Both must be present, otherwise the whole collection is selected.
func pagination(c *fiber.Ctx) (pg, size int, ok bool, err error) {
	rawPage, rawSize := c.Query("page"), c.Query("size")
	if rawPage == "" || rawSize == "" {
		return 0, 0, false, nil
	}
	pg, err = strconv.Atoi(rawPage)
	if err != nil || pg < 1 {
		return 0, 0, false, fiber.NewError(fiber.StatusBadRequest, "page must be a positive number")
	}
	size, err = strconv.Atoi(rawSize)
	if err != nil || size < 1 {
		return 0, 0, false, fiber.NewError(fiber.StatusBadRequest, "size must be a positive number")
	}
	return pg, size, true, nil
}

func newPage(bodies []json.RawMessage, total, pg, size int) page {
	if size < 1 {
		pg, size = 1, total
		if size == 0 {
			size = 1
		}
	}
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if bodies == nil {
		bodies = []json.RawMessage{}
	}
	return page{
		Data:     bodies,
		Metadata: pageMeta{TotalElements: total, TotalPages: pages, PerPage: size, Page: pg},
	}
}

func bodies(recs []Record) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Body)
	}
	return out
}
