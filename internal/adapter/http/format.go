package http

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgPack = "application/x-msgpack"
)

// respond writes v as JSON, or as MessagePack when the request asks for
// format=msgpack. MessagePack field names follow the json tags.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if r.URL.Query().Get("format") == "msgpack" {
		w.Header().Set("Content-Type", contentTypeMsgPack)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		enc.Encode(v) //nolint:errcheck // client went away
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
