package pipeline

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cleroy288/secure-ai-agent-gateway/internal/httpserver"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/gatewayerr"
)

// maxProxyBody caps the request body a caller may forward through the proxy.
// Authentication happens inside Handle, after the body is already read, so
// this limit must be enforced before that point — otherwise an
// unauthenticated caller could force an unbounded read into memory.
const maxProxyBody = 10 << 20 // 10 MiB

// Handler adapts the pipeline to an http.Handler, mounted at
// ANY /api/{service}/*.
func (p *Pipeline) Handler(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	path := chi.URLParam(r, "*")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "request body too large (max 10 MiB)")
			return
		}
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "reading request body: "+err.Error())
		return
	}

	req := Request{
		SessionID: r.Header.Get("X-Session-ID"),
		Service:   service,
		Path:      path,
		Method:    r.Method,
		Header:    r.Header,
		Body:      body,
	}

	resp, err := p.Handle(r.Context(), req)
	if err != nil {
		ge, ok := gatewayerr.As(err)
		if !ok {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		httpserver.RespondError(w, ge.Status(), string(ge.Kind), ge.Message)
		return
	}

	httpserver.Respond(w, resp.Status, resp.Body)
}
