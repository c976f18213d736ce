// Package template renders stored message blueprints. Rendering is
// deliberately lenient: a placeholder with no matching variable stays in the
// body verbatim so a missing optional variable does not abort the send.
package template

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/banyanstay/notify-dispatch/internal/model"
)

var ErrNotFound = errors.New("template not found")

// Store is the read-only template lookup required of collaborators.
type Store interface {
	Get(ctx context.Context, id string) (*model.Template, error)
}

// placeholderRe matches {{name}} with optional inner whitespace.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Render substitutes every {{name}} occurrence with variables[name].
// Unmatched placeholders are left untouched.
func Render(body string, variables map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(ph string) string {
		name := placeholderRe.FindStringSubmatch(ph)[1]
		if v, ok := variables[name]; ok {
			return v
		}
		return ph
	})
}

type Renderer struct {
	store Store
}

func NewRenderer(store Store) *Renderer {
	return &Renderer{store: store}
}

// RenderTemplate resolves the template, substitutes variables and, for
// marketing templates, appends optOutSuffix when it is non-empty.
func (r *Renderer) RenderTemplate(ctx context.Context, id string, variables map[string]string, optOutSuffix string) (string, model.TemplateCategory, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	body := Render(t.Body, variables)
	if t.Category == model.CategoryMarketing && optOutSuffix != "" && !strings.Contains(body, optOutSuffix) {
		body = body + " " + optOutSuffix
	}
	return body, t.Category, nil
}

// MemoryStore is an in-process template source used in tests and in
// deployments where templates are pushed in at startup.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*model.Template
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*model.Template)}
}

func (s *MemoryStore) Put(t *model.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	return &c, nil
}
