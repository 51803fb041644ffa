package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/middleware"
	"go.uber.org/zap"
	"golang.org/x/text/message"
)

var errForbidden = errors.New("forbidden")

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation: fiber.StatusUnprocessableEntity,
	apperr.KindState:      fiber.StatusConflict,
	apperr.KindNotFound:   fiber.StatusNotFound,
	apperr.KindConflict:   fiber.StatusConflict,
	apperr.KindInternal:   fiber.StatusInternalServerError,
}

var kindMessage = map[apperr.Kind]string{
	apperr.KindValidation: msgValidation,
	apperr.KindState:      msgState,
	apperr.KindNotFound:   msgNotFound,
	apperr.KindConflict:   msgConflict,
	apperr.KindInternal:   msgInternal,
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: data})
}

func abort(c *fiber.Ctx, status int, key string) error {
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     printer(c).Sprintf(key),
		RequestID: middleware.GetRequestID(c),
	})
}

// fail renders err through the error taxonomy. Internal errors are logged
// and never echoed to the client.
func fail(c *fiber.Ctx, log *zap.Logger, err error) error {
	if errors.Is(err, errForbidden) {
		return abort(c, fiber.StatusForbidden, msgForbidden)
	}
	kind := apperr.KindOf(err)
	p := printer(c)
	resp := dto.ErrorResponse{
		Error:     p.Sprintf(kindMessage[kind]),
		Code:      string(kind),
		Fields:    localizeFields(p, apperr.FieldsOf(err)),
		RequestID: middleware.GetRequestID(c),
	}
	if kind == apperr.KindInternal {
		log.Error("request failed", zap.String("path", c.Path()), zap.String("request_id", resp.RequestID), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", c.Path()), zap.String("kind", string(kind)), zap.Error(err))
		if d := errorDetail(p, err); len(resp.Fields) == 0 && d != "" {
			resp.Error = resp.Error + ": " + d
		}
	}
	return c.Status(kindStatus[kind]).JSON(resp)
}

func localizeFields(p *message.Printer, fields []apperr.FieldError) []apperr.FieldError {
	if len(fields) == 0 {
		return nil
	}
	out := make([]apperr.FieldError, len(fields))
	for i, f := range fields {
		out[i] = f
		switch {
		case f.Format != "":
			out[i].Message = p.Sprintf(f.Format, f.Args...)
		case fieldMessages[f.Message] != "":
			out[i].Message = p.Sprintf(f.Message)
		}
	}
	return out
}

// errorDetail renders the non-field error kinds in the response language.
func errorDetail(p *message.Printer, err error) string {
	var (
		se *apperr.InvalidStateError
		le *apperr.WalletLockedError
		ne *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &se):
		return p.Sprintf(msgStateDetail, se.Entity, se.Operation, se.Status)
	case errors.As(err, &le):
		return p.Sprintf(msgLockedDetail, le.Status)
	case errors.As(err, &ne):
		return p.Sprintf(msgNotFoundDetail, ne.Entity, ne.ID)
	case errors.Is(err, apperr.ErrInsufficientInventory):
		return p.Sprintf(msgInventory)
	case errors.Is(err, apperr.ErrConcurrentUpdate), errors.Is(err, apperr.ErrDuplicate):
		return ""
	default:
		return err.Error()
	}
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(param))
	return id, err == nil
}

var errInvalidID = apperr.Invalid("id", "must be a uuid")
