package view

import (
	"io"
	"io/fs"
	"sync"

	"github.com/skyward-school/skyward/internal/email"
)

// FSRenderer renders views from a file system. Parsed views are cached.
type FSRenderer struct {
	fs    fs.FS
	mu    sync.Mutex
	views map[string]*View
}

func NewFSRenderer(fsys fs.FS) *FSRenderer {
	return &FSRenderer{
		fs:    fsys,
		views: make(map[string]*View),
	}
}

func (r *FSRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, err := r.view(name)
	if err != nil {
		return err
	}

	return v.Render(w, element, data)
}

func (r *FSRenderer) Has(name string, element email.TemplateElement) (bool, error) {
	v, err := r.view(name)
	if err != nil {
		return false, err
	}

	return v.Has(element), nil
}

func (r *FSRenderer) view(name string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.views[name]; ok {
		return v, nil
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return nil, err
	}

	r.views[name] = v
	return v, nil
}
