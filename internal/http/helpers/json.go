// Package helpers contiene utilidades HTTP compartidas por los controllers.
package helpers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"

	"github.com/dropDatabas3/appbase/internal/http/errors"
)

// MaxBodyBytes: tope para bodies JSON y payloads de webhook.
const MaxBodyBytes = 1 << 20

// ReadJSON decodifica el body en v. Exige application/json, limita a
// MaxBodyBytes y rechaza basura después del objeto.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		return errors.ErrInvalidJSON.WithDetail("Content-Type debe ser application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.ErrBodyTooLarge
		}
		return errors.ErrInvalidJSON.WithCause(err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.ErrInvalidJSON.WithDetail("un solo objeto JSON por request")
	}
	return nil
}

// ReadBody lee el body crudo hasta MaxBodyBytes.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.ErrBodyTooLarge
		}
		return nil, errors.ErrBadRequest.WithCause(err)
	}
	return b, nil
}

// WriteJSON escribe v como JSON con el status indicado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
