package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// StaticResolver serves forms from memory. It backs local runs and tests.
type StaticResolver struct {
	mu    sync.RWMutex
	forms map[string]Form
}

// NewStaticResolver returns a resolver preloaded with forms.
func NewStaticResolver(forms ...Form) *StaticResolver {
	r := &StaticResolver{forms: make(map[string]Form, len(forms))}
	for _, f := range forms {
		r.forms[f.ID] = f
	}
	return r
}

// LoadStaticFile reads a JSON array of forms.
func LoadStaticFile(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forms: read %s: %w", path, err)
	}
	var list []Form
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("forms: decode %s: %w", path, err)
	}
	for _, f := range list {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	return NewStaticResolver(list...), nil
}

// Put adds or replaces a form.
func (r *StaticResolver) Put(f Form) {
	r.mu.Lock()
	r.forms[f.ID] = f
	r.mu.Unlock()
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, id string) (Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[id]
	if !ok {
		return Form{}, ErrNotFound
	}
	f.PriceIDs = append([]string(nil), f.PriceIDs...)
	f.PaymentMethodTypes = append([]string(nil), f.PaymentMethodTypes...)
	return f, nil
}
