package fixture

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/orm/query"
)

// RESTOptions configures the REST fixture service
type RESTOptions struct {
	// Format is the suffix of every resource url, e.g. ".json"
	Format string
	// PostBodyWrapper, when set, reads form fields named wrapper[field]
	PostBodyWrapper string
	// PrimaryKey defaults to DefaultPrimaryKey
	PrimaryKey string
	Logger     *zap.Logger
}

type restService struct {
	data *Dataset
	opts RESTOptions
}

// NewRESTHandler serves a dataset as REST resources:
//
//	GET    /{service}{format}?query=<json payload>
//	POST   /{service}{format}
//	PUT    /{service}/{id}{format}
//	DELETE /{service}/{id}{format}
func NewRESTHandler(d *Dataset, opts RESTOptions) http.Handler {
	if opts.PrimaryKey == "" {
		opts.PrimaryKey = DefaultPrimaryKey
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &restService{data: d, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/{service}", s.index)
	r.Post("/{service}", s.create)
	r.Put("/{service}/{id}", s.update)
	r.Delete("/{service}/{id}", s.destroy)
	return r
}

func (s *restService) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("fixture request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *restService) index(w http.ResponseWriter, r *http.Request) {
	service, ok := s.param(r, "service")
	if !ok {
		http.NotFound(w, r)
		return
	}

	payload := query.Payload{}
	if raw := r.URL.Query().Get("query"); raw != "" {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			renderJSON(w, http.StatusBadRequest, map[string]interface{}{"base": "query is not valid JSON"})
			return
		}
		payload = query.DecodePayload(m)
	}

	rows, err := s.data.Query(service, payload)
	if err != nil {
		renderJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"base": err.Error()})
		return
	}
	renderJSON(w, http.StatusOK, rows)
}

func (s *restService) create(w http.ResponseWriter, r *http.Request) {
	service, ok := s.param(r, "service")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]interface{}{"base": err.Error()})
		return
	}

	resp := s.data.Insert(service, s.opts.PrimaryKey, s.attributes(r.PostForm))
	if !resp.Success {
		renderJSON(w, http.StatusUnprocessableEntity, resp.Errors())
		return
	}
	renderJSON(w, http.StatusCreated, resp.ModelAttributes())
}

func (s *restService) update(w http.ResponseWriter, r *http.Request) {
	service, id, ok := s.member(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]interface{}{"base": err.Error()})
		return
	}

	resp := s.data.Update(service, s.opts.PrimaryKey, id, s.attributes(r.PostForm))
	if !resp.Success {
		renderJSON(w, http.StatusUnprocessableEntity, resp.Errors())
		return
	}
	renderJSON(w, http.StatusOK, resp.ModelAttributes())
}

func (s *restService) destroy(w http.ResponseWriter, r *http.Request) {
	service, id, ok := s.member(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	resp := s.data.Remove(service, s.opts.PrimaryKey, id)
	if !resp.Success {
		renderJSON(w, http.StatusUnprocessableEntity, resp.Errors())
		return
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{})
}

// param strips the format suffix from a path parameter
func (s *restService) param(r *http.Request, name string) (string, bool) {
	v := chi.URLParam(r, name)
	if s.opts.Format != "" {
		if !strings.HasSuffix(v, s.opts.Format) {
			return "", false
		}
		v = strings.TrimSuffix(v, s.opts.Format)
	}
	return v, v != ""
}

// member resolves a member url to an existing row
func (s *restService) member(r *http.Request) (string, string, bool) {
	service := chi.URLParam(r, "service")
	id, ok := s.param(r, "id")
	if !ok || service == "" || !s.data.exists(service, s.opts.PrimaryKey, id) {
		return "", "", false
	}
	return service, id, true
}

// attributes reads record fields from a form. With a wrapper only
// wrapper[field] entries are fields; other entries are request options.
func (s *restService) attributes(form url.Values) map[string]interface{} {
	attrs := make(map[string]interface{}, len(form))
	for key, values := range form {
		field := key
		if w := s.opts.PostBodyWrapper; w != "" {
			if !strings.HasPrefix(key, w+"[") || !strings.HasSuffix(key, "]") {
				continue
			}
			field = strings.TrimSuffix(strings.TrimPrefix(key, w+"["), "]")
		}
		if field == s.opts.PrimaryKey || len(values) == 0 {
			continue
		}
		attrs[field] = formValue(values[0])
	}
	return attrs
}

// formValue stores numeric form values as numbers
func formValue(v string) interface{} {
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
