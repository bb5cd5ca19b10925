package kmehandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/etsi014-conformance/cryptoutils"
	"github.com/ruteri/etsi014-conformance/interfaces"
)

// DefaultBasePath is the ETSI 014 key delivery prefix.
const DefaultBasePath = "/api/v1/keys"

const maxBodySize = 1024 * 1024

// Handler processes ETSI 014 requests for a single KME.
type Handler struct {
	store    interfaces.KeyStore
	basePath string
	log      *slog.Logger
}

// NewHandler creates a handler serving store under basePath.
func NewHandler(store interfaces.KeyStore, basePath string, log *slog.Logger) *Handler {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Handler{
		store:    store,
		basePath: "/" + strings.Trim(basePath, "/"),
		log:      log,
	}
}

// BasePath is the prefix the routes are mounted under.
func (h *Handler) BasePath() string {
	return h.basePath
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route(h.basePath, func(r chi.Router) {
		r.Get("/{sae_id}/enc_keys", h.HandleEncKeys)
		r.Post("/{sae_id}/enc_keys", h.HandleEncKeys)
		r.Get("/{sae_id}/dec_keys", h.HandleDecKeys)
		r.Post("/{sae_id}/dec_keys", h.HandleDecKeys)
		r.Get("/{sae_id}/status", h.HandleStatus)
	})
	r.NotFound(h.HandleNotFound)
	r.MethodNotAllowed(h.HandleMethodNotAllowed)
}

// encKeysBody is the POST enc_keys request. Extension members are ignored.
type encKeysBody struct {
	Number                *int               `json:"number"`
	Size                  *int               `json:"size"`
	AdditionalSlaveSAEIDs []interfaces.SAEID `json:"additional_slave_SAE_IDs"`
}

// HandleEncKeys issues keys for the slave named in the path.
//
// URL format: GET  {base}/{slave_SAE_ID}/enc_keys?number=N&size=S
//
//	POST {base}/{slave_SAE_ID}/enc_keys with {"number","size","additional_slave_SAE_IDs"}
//
// Absent number defaults to 1 and absent size to the KME default key size.
func (h *Handler) HandleEncKeys(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	slave := interfaces.SAEID(chi.URLParam(r, "sae_id"))

	var number, size *int
	var additional []interfaces.SAEID
	if r.Method == http.MethodPost {
		var body encKeysBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("could not parse request body: %w", err))
			return
		}
		number, size, additional = body.Number, body.Size, body.AdditionalSlaveSAEIDs
	} else {
		var err error
		if number, err = queryInt(r, "number"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if size, err = queryInt(r, "size"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	n := 1
	if number != nil {
		n = *number
	}
	s := h.store.Status(caller, slave).KeySize
	if size != nil {
		s = *size
	}

	container, err := h.store.Issue(caller, slave, additional, n, s)
	if err != nil {
		h.log.Debug("enc_keys rejected", "caller", caller, "slave", slave, "err", err)
		writeStoreError(w, err)
		return
	}

	h.log.Debug("keys issued", "caller", caller, "slave", slave, "number", n, "size", s, "additional", additional)
	writeJSON(w, http.StatusOK, container)
}

// HandleDecKeys hands out keys issued by the master named in the path.
//
// URL format: GET  {base}/{master_SAE_ID}/dec_keys?key_ID=ID
//
//	POST {base}/{master_SAE_ID}/dec_keys with {"key_IDs":[{"key_ID":ID}]}
func (h *Handler) HandleDecKeys(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	master := interfaces.SAEID(chi.URLParam(r, "sae_id"))

	var keyIDs []string
	if r.Method == http.MethodPost {
		var body interfaces.KeyIDs
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("could not parse request body: %w", err))
			return
		}
		for _, id := range body.KeyIDs {
			keyIDs = append(keyIDs, id.KeyID)
		}
	} else {
		keyIDs = r.URL.Query()["key_ID"]
		if len(keyIDs) != 1 {
			writeError(w, http.StatusBadRequest, errors.New("exactly one key_ID query parameter is required"))
			return
		}
	}

	container, err := h.store.Retrieve(caller, master, keyIDs)
	if err != nil {
		h.log.Debug("dec_keys rejected", "caller", caller, "master", master, "err", err)
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, container)
}

// HandleStatus reports defaults and limits for the caller and the slave in the path.
//
// URL format: GET {base}/{slave_SAE_ID}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	slave := interfaces.SAEID(chi.URLParam(r, "sae_id"))

	if !h.store.Knows(slave) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", interfaces.ErrUnknownSAE, slave))
		return
	}
	if slave == caller {
		writeError(w, http.StatusBadRequest, errors.New("master and slave SAE ids are identical"))
		return
	}

	writeJSON(w, http.StatusOK, h.store.Status(caller, slave))
}

func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.EscapedPath()))
}

func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
}

// authenticate resolves the calling SAE from the client certificate.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (interfaces.SAEID, bool) {
	cn, ok := cryptoutils.PeerCommonName(r.TLS)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("client certificate required"))
		return "", false
	}

	caller := interfaces.SAEID(cn)
	if !h.store.Knows(caller) {
		h.log.Info("unknown SAE presented a trusted certificate", "cn", cn)
		writeError(w, http.StatusUnauthorized, fmt.Errorf("SAE %q is not registered", cn))
		return "", false
	}
	return caller, true
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if errors.Is(err, io.EOF) {
		// An empty body is an empty request.
		return nil
	}
	return err
}

func queryInt(r *http.Request, name string) (*int, error) {
	values, ok := r.URL.Query()[name]
	if !ok {
		return nil, nil
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s must be given once", name)
	}
	v, err := strconv.Atoi(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer: %q", name, values[0])
	}
	return &v, nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, interfaces.ErrStoreFull):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, interfaces.ErrInvalidKeyRequest),
		errors.Is(err, interfaces.ErrUnknownSAE),
		errors.Is(err, interfaces.ErrKeyNotFound):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// writeError writes the error envelope. Joined errors become one detail per line.
func writeError(w http.ResponseWriter, status int, err error) {
	lines := strings.Split(err.Error(), "\n")
	msg := interfaces.ErrorMessage{Message: strings.Join(lines, "; ")}
	if len(lines) > 1 {
		msg.Details = lines
	}
	writeJSON(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
