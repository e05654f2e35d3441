package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/valeop/taskflow-manager/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, logger *log.Logger) {
	e.GET("/", root())
	e.GET("/tasks", listTasks(store, logger))
	e.GET("/tasks/:id", getTask(store, logger))
	e.POST("/tasks", createTask(store, logger, uuid.NewString, time.Now))
	e.PUT("/tasks/:id", updateTask(store, logger))
	e.DELETE("/tasks/:id", deleteTask(store, logger))
}

func root() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, messageResponse{Message: msgRunning})
	}
}

// begin starts the request metrics and swaps the traced context into the request.
func begin(c echo.Context, logger *log.Logger, op string) (*requestMetrics, context.Context) {
	metrics, ctx := newRequestMetrics(c.Request().Context(), logger, op, c.Path())
	c.SetRequest(c.Request().WithContext(ctx))
	return metrics, ctx
}

func fail(c echo.Context, metrics *requestMetrics, stage string, cause error, msg string) error {
	metrics.SetErrorStage(stage)
	metrics.SetCause(cause)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: msg})
}

func invalid(c echo.Context, metrics *requestMetrics, err error) error {
	metrics.SetErrorStage("validation")
	metrics.SetCause(err)
	var ve *domain.ValidationError
	msg := err.Error()
	if errors.As(err, &ve) {
		msg = ve.Error()
	}
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func tooLarge(c echo.Context, metrics *requestMetrics) error {
	metrics.SetErrorStage("body_too_large")
	return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: msgBodyTooLarge})
}

// requestBody reads the body and rejects bytes that are not UTF-8. When ok is
// false the reply has been written and err is what the handler returns.
func requestBody(c echo.Context, metrics *requestMetrics, failMsg string) (body []byte, ok bool, err error) {
	body, err = readBody(c.Request().Body)
	if errors.Is(err, errBodyTooLarge) {
		return nil, false, tooLarge(c, metrics)
	}
	if err != nil {
		return nil, false, fail(c, metrics, "read_body", err, failMsg)
	}
	if vErr := domain.CheckUTF8(body); vErr != nil {
		return nil, false, invalid(c, metrics, vErr)
	}
	return body, true, nil
}

func isObject(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("{"))
}

func notFound(c echo.Context, metrics *requestMetrics) error {
	metrics.SetErrorStage("not_found")
	return c.JSON(http.StatusNotFound, errorResponse{Error: domain.MsgTaskNotFound})
}

func listTasks(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := begin(c, logger, "list")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx)
		metrics.ObserveStore(time.Since(fetchStart))
		if errors.Is(fetchErr, domain.ErrNoTasks) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: domain.MsgNoTasks})
		}
		if fetchErr != nil {
			return fail(c, metrics, "storage", fetchErr, msgListFailed)
		}
		metrics.SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, tasks)
	}
}

func getTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := begin(c, logger, "get")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		task, fetchErr := store.GetTask(ctx, c.Param("id"))
		metrics.ObserveStore(time.Since(fetchStart))
		if errors.Is(fetchErr, domain.ErrTaskNotFound) {
			return notFound(c, metrics)
		}
		if fetchErr != nil {
			return fail(c, metrics, "storage", fetchErr, msgGetFailed)
		}
		metrics.SetTasksReturned(1)
		return c.JSON(http.StatusOK, task)
	}
}

func createTask(store Storage, logger *log.Logger, newID func() string, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := begin(c, logger, "create")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		body, ok, respErr := requestBody(c, metrics, msgCreateFailed)
		if !ok {
			return respErr
		}
		if !isObject(body) {
			return fail(c, metrics, "decode", errNotObject, msgCreateFailed)
		}
		var req createTaskRequest
		if decErr := sonic.Unmarshal(body, &req); decErr != nil {
			return fail(c, metrics, "decode", decErr, msgCreateFailed)
		}

		draft := domain.TaskDraft{
			Title:       req.Title,
			Description: req.Description,
			Priority:    domain.Priority(strings.TrimSpace(req.Priority)),
		}
		if vErr := draft.Validate(); vErr != nil {
			return invalid(c, metrics, vErr)
		}
		due, vErr := domain.ParseDueDate(req.DueDate)
		if vErr != nil {
			return invalid(c, metrics, vErr)
		}
		draft.DueDate = due

		task, vErr := domain.NewTask(draft, newID(), now())
		if vErr != nil {
			return invalid(c, metrics, vErr)
		}

		storeStart := time.Now()
		storeErr := store.CreateTask(ctx, task)
		metrics.ObserveStore(time.Since(storeStart))
		if storeErr != nil {
			return fail(c, metrics, "storage", storeErr, msgCreateFailed)
		}
		metrics.SetTasksReturned(1)
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := begin(c, logger, "update")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		body, ok, respErr := requestBody(c, metrics, msgUpdateFailed)
		if !ok {
			return respErr
		}
		var upd domain.TaskUpdate
		if decErr := upd.UnmarshalJSON(body); decErr != nil {
			if domain.IsValidation(decErr) {
				return invalid(c, metrics, decErr)
			}
			return fail(c, metrics, "decode", decErr, msgUpdateFailed)
		}
		if vErr := upd.Validate(); vErr != nil {
			return invalid(c, metrics, vErr)
		}

		storeStart := time.Now()
		task, storeErr := store.UpdateTask(ctx, c.Param("id"), upd)
		metrics.ObserveStore(time.Since(storeStart))
		if errors.Is(storeErr, domain.ErrTaskNotFound) {
			return notFound(c, metrics)
		}
		if storeErr != nil {
			return fail(c, metrics, "storage", storeErr, msgUpdateFailed)
		}
		metrics.SetTasksReturned(1)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := begin(c, logger, "delete")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		storeStart := time.Now()
		storeErr := store.DeleteTask(ctx, c.Param("id"))
		metrics.ObserveStore(time.Since(storeStart))
		if errors.Is(storeErr, domain.ErrTaskNotFound) {
			return notFound(c, metrics)
		}
		if storeErr != nil {
			return fail(c, metrics, "storage", storeErr, msgDeleteFailed)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: msgDeleted})
	}
}
