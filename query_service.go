package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/orian/signalquery/models"
	"github.com/orian/signalquery/queryspec"
	"github.com/sirupsen/logrus"
)

// SaveRequest is the incoming request for saving a query draft.
type SaveRequest struct {
	Name     string            `json:"name"`
	Mode     string            `json:"mode"`
	Draft    models.QueryDraft `json:"draft"`
	ParentID string            `json:"parentId,omitempty"`
}

// hashDraft fingerprints a save request: the draft, the mode it is compiled
// in, the name it is stored under and its parent.
func hashDraft(req *SaveRequest, mode models.SpecMode) string {
	payload, _ := json.Marshal(struct {
		Mode     models.SpecMode   `json:"mode"`
		Name     string            `json:"name"`
		ParentID string            `json:"parentId"`
		Draft    models.QueryDraft `json:"draft"`
	}{mode, req.savedName(), req.ParentID, req.Draft})

	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// savedName is the request name, or the draft name when none is given.
func (r *SaveRequest) savedName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Draft.Name
}

// compileDraft builds a spec and records the outcome in the metrics. A
// non-validation error is returned as is; a validation failure is returned
// as its reason with a nil error.
func compileDraft(draft models.QueryDraft, mode models.SpecMode) (models.QuerySpec, string, error) {
	spec, err := queryspec.Build(draft, mode)
	BuildsTotal.WithLabelValues(string(draft.DataSource), string(mode), statusLabel(err)).Inc()

	var verr *queryspec.ValidationError
	switch {
	case err == nil:
		return spec, "", nil
	case errors.As(err, &verr):
		return nil, verr.Reason, nil
	}
	return nil, "", err
}

// checkCachedQuery returns an existing record for the same draft hash.
// Rejected records are never reused so a fixed rule set gets a chance to
// compile them.
func checkCachedQuery(storage models.Storage, draftHash string, log logrus.FieldLogger) (*models.SavedQuery, bool) {
	existing, ok := storage.FindQueryByHash(draftHash)
	if !ok {
		return nil, false
	}

	if existing.Rejection != "" {
		log.WithField("query_id", existing.ID).Debug("Draft unchanged but previously rejected, compiling again")
		return nil, false
	}

	log.WithField("query_id", existing.ID).Debug("Draft unchanged, returning existing query")
	return existing, true
}

// createSavedQuery creates a new record for a compiled draft.
func createSavedQuery(req *SaveRequest, mode models.SpecMode, draftHash string, spec models.QuerySpec, rejection string) *models.SavedQuery {
	return &models.SavedQuery{
		ID:        generateID(),
		Name:      req.savedName(),
		Mode:      mode,
		Draft:     req.Draft,
		Spec:      spec,
		Rejection: rejection,
		DraftHash: draftHash,
		ParentID:  req.ParentID,
		CreatedAt: time.Now().UTC(),
	}
}

// buildSaveResponse builds the JSON response for a save request.
func buildSaveResponse(query *models.SavedQuery, reused bool) map[string]any {
	return map[string]any{
		"query":  query,
		"reused": reused,
	}
}

// BuildResult is the per-draft entry of a build response.
type BuildResult struct {
	Name  string           `json:"name"`
	Spec  models.QuerySpec `json:"spec,omitempty"`
	Error string           `json:"error,omitempty"`
}

// buildQuerySet compiles a query set and flattens the results for JSON.
func buildQuerySet(drafts []models.QueryDraft, mode models.SpecMode) []BuildResult {
	results := queryspec.BuildAll(drafts, mode)

	out := make([]BuildResult, len(results))
	for i, r := range results {
		source := ""
		if i < len(drafts) {
			source = string(drafts[i].DataSource)
		}
		BuildsTotal.WithLabelValues(source, string(mode), statusLabel(r.Err)).Inc()

		out[i] = BuildResult{Name: r.Name, Spec: r.Spec}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}
