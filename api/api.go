// Package api serves the registry over API Gateway proxy events.
//
// Mutations go through the registry, which serializes them; every request is
// one registry call or one batch, so a client never sees half a submission.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
	"github.com/jacentio/lottrace/store"
)

// Handler routes API Gateway requests to a Registry.
type Handler struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// NewHandler creates a new API handler. A nil logger uses slog.Default().
func NewHandler(reg *registry.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reg:    reg,
		logger: logger,
	}
}

// IDsResponse lists lot ids.
type IDsResponse struct {
	LotIDs []lot.ID `json:"lotIds"`
}

// ChainResponse is a bounded walk of a code chain.
type ChainResponse struct {
	LotIDs    []lot.ID `json:"lotIds"`
	ItemNames []string `json:"itemNames"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks client input errors outside the registry's taxonomy.
var errBadRequest = errors.New("bad request")

// errNoRoute marks paths with no handler.
var errNoRoute = errors.New("no such route")

// errMethod marks known paths called with the wrong method.
var errMethod = errors.New("method not allowed")

// Handle serves one request. Failures are reported in the response; the
// returned error is always nil so API Gateway relays the status code.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	status, body, err := h.route(ctx, req)
	if err != nil {
		status = statusOf(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed",
				"method", req.HTTPMethod,
				"path", req.Path,
				"error", err,
			)
		} else {
			h.logger.Debug("request rejected",
				"method", req.HTTPMethod,
				"path", req.Path,
				"status", status,
				"error", err,
			)
		}
		body = ErrorResponse{Error: err.Error()}
	}
	return respond(status, body), nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	method := req.HTTPMethod

	switch {
	case len(parts) == 1 && parts[0] == "lots":
		if method != http.MethodPost {
			return 0, nil, errMethod
		}
		return h.addLot(ctx, req.Body)

	case len(parts) == 1 && parts[0] == "batches":
		if method != http.MethodPost {
			return 0, nil, errMethod
		}
		return h.addBatch(ctx, req.Body)

	case len(parts) == 2 && parts[0] == "lots":
		id := lot.Resolve(parts[1])
		switch method {
		case http.MethodGet:
			return h.getLot(ctx, id)
		case http.MethodPatch:
			return h.updateLot(ctx, id, req.Body)
		default:
			return 0, nil, errMethod
		}

	case len(parts) == 3 && parts[0] == "lots":
		if method != http.MethodGet {
			return 0, nil, errMethod
		}
		return h.lotView(ctx, lot.Resolve(parts[1]), parts[2])

	case len(parts) == 3 && parts[0] == "codes":
		if method != http.MethodGet {
			return 0, nil, errMethod
		}
		return h.codeView(ctx, parts[1], parts[2], req.QueryStringParameters)

	case len(parts) == 3 && parts[0] == "types" && parts[2] == "lots":
		if method != http.MethodGet {
			return 0, nil, errMethod
		}
		ids, err := h.reg.ByType(ctx, parts[1])
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, IDsResponse{LotIDs: ids}, nil
	}

	return 0, nil, fmt.Errorf("%w: %s %s", errNoRoute, method, req.Path)
}

func (h *Handler) addLot(ctx context.Context, body string) (int, any, error) {
	var in lot.Input
	if err := decode(body, &in); err != nil {
		return 0, nil, err
	}
	id, err := h.reg.Add(ctx, in)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, struct {
		LotID lot.ID `json:"lotId"`
	}{id}, nil
}

// addBatch accepts an array of flat inputs or one nested detail tree.
func (h *Handler) addBatch(ctx context.Context, body string) (int, any, error) {
	inputs, err := lot.DecodeInputs([]byte(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	ids, err := h.reg.BatchAdd(ctx, inputs)
	if err != nil {
		return 0, nil, err
	}
	if ids == nil {
		ids = []lot.ID{}
	}
	return http.StatusCreated, IDsResponse{LotIDs: ids}, nil
}

func (h *Handler) getLot(ctx context.Context, id lot.ID) (int, any, error) {
	rec, err := h.reg.Get(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, lot.NewNode(rec), nil
}

func (h *Handler) updateLot(ctx context.Context, id lot.ID, body string) (int, any, error) {
	var patch lot.Patch
	if err := decode(body, &patch); err != nil {
		return 0, nil, err
	}
	if err := h.reg.Update(ctx, id, patch); err != nil {
		return 0, nil, err
	}
	return h.getLot(ctx, id)
}

func (h *Handler) lotView(ctx context.Context, id lot.ID, view string) (int, any, error) {
	switch view {
	case "parent":
		parent, err := h.reg.Parent(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, struct {
			ParentLotID lot.ID `json:"parentLotId"`
		}{parent}, nil

	case "children":
		ids, err := h.reg.ChildrenOf(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, IDsResponse{LotIDs: ids}, nil

	case "flat":
		recs, err := h.reg.Flatten(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, nodes(recs), nil

	case "tree":
		node, err := h.reg.Tree(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		if node == nil {
			return 0, nil, fmt.Errorf("%w: %s has no tree root", registry.ErrNotFound, id)
		}
		return http.StatusOK, node, nil
	}
	return 0, nil, fmt.Errorf("%w: lot view %q", errNoRoute, view)
}

func (h *Handler) codeView(ctx context.Context, code, view string, query map[string]string) (int, any, error) {
	switch view {
	case "lots":
		ids, err := h.reg.ByCode(ctx, code)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, IDsResponse{LotIDs: ids}, nil

	case "chain":
		limit := 0
		if s, ok := query["limit"]; ok && s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return 0, nil, fmt.Errorf("%w: limit %q", errBadRequest, s)
			}
			limit = n
		}
		ids, names, err := h.reg.Traverse(ctx, code, limit)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, ChainResponse{LotIDs: ids, ItemNames: names}, nil

	case "tree":
		recs, err := h.reg.TreeByCode(ctx, code)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, nodes(recs), nil
	}
	return 0, nil, fmt.Errorf("%w: code view %q", errNoRoute, view)
}

func nodes(recs []lot.Record) []*lot.Node {
	out := make([]*lot.Node, len(recs))
	for i, rec := range recs {
		out[i] = lot.NewNode(rec)
	}
	return out
}

func decode(body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusOf maps an error to its HTTP status. Input errors are checked first
// because a rejected batch wraps the cause of the rejection.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errNoRoute), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, errBadRequest), errors.Is(err, registry.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTransactionTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, registry.ErrAlreadyExists), errors.Is(err, registry.ErrInvalidBatch),
		errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respond(status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}
