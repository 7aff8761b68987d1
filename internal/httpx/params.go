package httpx

import (
	"errors"
	"net/http"

	"github.com/gorilla/schema"
)

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// Params decodes the query parameters of a GET or HEAD request into the given struct.
func Params(r *http.Request, v any) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if err := decoder.Decode(v, r.URL.Query()); err != nil {
			return Error(http.StatusBadRequest, err)
		}
		return nil
	default:
		return Error(http.StatusMethodNotAllowed, errors.New("unsupported method: "+r.Method))
	}
}
