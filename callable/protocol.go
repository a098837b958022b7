// Package callable serves functions over the Firebase callable protocol:
// a POST of {"data": ...} answered with {"result": ...} or
// {"error": {"status", "message"}}.
package callable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/PipeOpsHQ/financeira-functions/authz"
	"github.com/PipeOpsHQ/financeira-functions/observe"
)

const maxBodyBytes = 10 << 20

// Request is one decoded call. Principal is nil for anonymous callers.
type Request struct {
	Principal *authz.Principal
	Data      map[string]any
}

// Func handles a call. Returning an *Error chooses the wire status; any
// other error is reported as INTERNAL.
type Func func(ctx context.Context, req Request) (any, error)

type Option func(*handler)

// WithVerifier sets how bearer tokens are checked. Without one, every
// request is anonymous.
func WithVerifier(v authz.Verifier) Option {
	return func(h *handler) { h.verifier = v }
}

func WithSink(sink observe.Sink) Option {
	return func(h *handler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAllowedOrigin restricts CORS to origin. The default allows any origin.
func WithAllowedOrigin(origin string) Option {
	return func(h *handler) {
		if origin = strings.TrimSpace(origin); origin != "" {
			h.origin = origin
		}
	}
}

type handler struct {
	name     string
	fn       Func
	verifier authz.Verifier
	sink     observe.Sink
	logger   *slog.Logger
	origin   string
}

// Handler serves fn under the callable protocol.
func Handler(name string, fn Func, opts ...Option) http.Handler {
	h := &handler{
		name:   name,
		fn:     fn,
		sink:   observe.NoopSink{},
		logger: slog.Default(),
		origin: "*",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ctx := r.Context()
	inv := observe.Start(h.sink, observe.KindCallable, h.name)

	result, err := h.call(w, r)
	if err != nil {
		ce := AsError(err)
		inv.Set("status", ce.Status())
		_ = inv.End(ctx, err)
		h.logFailure(ctx, ce)
		writeError(w, ce)
		return
	}
	_ = inv.End(ctx, nil)
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (h *handler) call(w http.ResponseWriter, r *http.Request) (any, error) {
	if r.Method != http.MethodPost {
		return nil, InvalidArgument("Bad Request")
	}
	data, err := decodeData(w, r)
	if err != nil {
		return nil, err
	}
	principal, err := h.principal(r)
	if err != nil {
		return nil, err
	}
	return h.fn(r.Context(), Request{Principal: principal, Data: data})
}

func (h *handler) principal(r *http.Request) (*authz.Principal, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil
	}
	if h.verifier == nil {
		return nil, Unauthenticated("Unauthenticated")
	}
	p, err := h.verifier.Verify(r.Context(), token)
	if errors.Is(err, authz.ErrInvalidToken) {
		return nil, &Error{Code: codes.Unauthenticated, Message: "Unauthenticated", Cause: err}
	}
	if err != nil {
		return nil, Internal(err)
	}
	return p, nil
}

// decodeData reads the request envelope. A data member that is not an
// object is treated as an empty payload.
func decodeData(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var envelope map[string]json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&envelope); err != nil {
		return nil, &Error{Code: codes.InvalidArgument, Message: "Bad Request", Cause: err}
	}
	raw, ok := envelope["data"]
	if !ok {
		return nil, InvalidArgument("Bad Request")
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]any{}, nil
	}
	return data, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func (h *handler) setCORS(w http.ResponseWriter, r *http.Request) {
	origin := h.origin
	if origin == "*" {
		if reqOrigin := r.Header.Get("Origin"); reqOrigin != "" {
			origin = reqOrigin
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Firebase-AppCheck, X-Firebase-GMPID")
		w.Header().Set("Access-Control-Max-Age", "3600")
	}
}

func (h *handler) logFailure(ctx context.Context, ce *Error) {
	attrs := []any{slog.String("function", h.name), slog.String("status", ce.Status())}
	if ce.Cause != nil {
		attrs = append(attrs, slog.Any("error", ce.Cause))
	}
	if ce.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "callable failed", attrs...)
		return
	}
	h.logger.WarnContext(ctx, fmt.Sprintf("callable rejected: %s", ce.Message), attrs...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, ce *Error) {
	if ce == nil {
		ce = Internal(errors.New("unknown error"))
	}
	writeJSON(w, ce.HTTPStatus(), map[string]any{
		"error": map[string]any{
			"status":  ce.Status(),
			"message": ce.Message,
		},
	})
}
