package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	svcErr "github.com/oggyb/campus-connect/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := svcErr.HTTPStatus(err)
	writeJSON(w, status, errorBody{Error: msg, Code: svcErr.KindOf(err).String()})
}

// decodeBody reads a JSON request body into v. An empty body leaves v zeroed.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return svcErr.InvalidArgument("malformed request body")
	}
	return nil
}

func chiParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chiParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument("invalid " + name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, svcErr.InvalidArgument("invalid " + name)
	}
	return n, nil
}
