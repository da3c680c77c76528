package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/Ivan-Madera/autorizador/internal/errs"
)

// MediaType is the only accepted request and response content type.
const MediaType = "application/vnd.api+json"

const maxBodyBytes = 1 << 20

type links struct {
	Self string `json:"self"`
}

type resource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes"`
	Links      links  `json:"links"`
}

type document struct {
	Data any `json:"data"`
}

type source struct {
	Pointer string `json:"pointer"`
}

type errorDocument struct {
	Code             string `json:"code"`
	Status           int    `json:"status"`
	Source           source `json:"source"`
	SuggestedActions string `json:"suggestedActions"`
	Title            string `json:"title"`
	Detail           string `json:"detail"`
}

type messageAttributes struct {
	Message string `json:"message"`
}

// envelope is the request body shape {data:{type, attributes:{...}}}.
type envelope[T any] struct {
	Data *struct {
		Type       string `json:"type"`
		Attributes *T     `json:"attributes"`
	} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newResource(r *http.Request, typ string, id uuid.UUID, attrs any) resource {
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV4())
	}
	return resource{Type: typ, ID: id.String(), Attributes: attrs, Links: links{Self: r.URL.RequestURI()}}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, document{Data: data})
}

func writeMessage(w http.ResponseWriter, r *http.Request, typ, msg string) {
	writeData(w, http.StatusOK, newResource(r, typ, uuid.Nil, messageAttributes{Message: msg}))
}

func writeFailure(w http.ResponseWriter, r *http.Request, status int, f *errs.Failure) {
	writeJSON(w, status, errorDocument{
		Code:             f.Code,
		Status:           status,
		Source:           source{Pointer: r.URL.RequestURI()},
		SuggestedActions: f.Suggestion,
		Title:            f.Title,
		Detail:           f.Detail,
	})
}

// decodeEnvelope reads a JSON:API request body into attrs.
func decodeEnvelope[T any](w http.ResponseWriter, r *http.Request) (*T, *errs.Failure) {
	var env envelope[T]
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&env); err != nil {
		return nil, errs.Validation("Invalid value in the data of the body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errs.Validation("request body must contain a single JSON value")
	}
	switch {
	case env.Data == nil:
		return nil, errs.Validation("Invalid value in the data of the body")
	case env.Data.Type == "":
		return nil, errs.Validation("Invalid value in the data.type of the body")
	case env.Data.Attributes == nil:
		return nil, errs.Validation("Invalid value in the data.attributes of the body")
	}
	return env.Data.Attributes, nil
}

// requireFields reports the first empty field in declaration order.
func requireFields(fields ...[2]string) *errs.Failure {
	for _, f := range fields {
		if f[1] == "" {
			return errs.Validation("Invalid value in the data.attributes." + f[0] + " of the body")
		}
	}
	return nil
}
