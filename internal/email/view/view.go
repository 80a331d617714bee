package view

import (
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"text/template"

	"github.com/skyward-school/skyward/internal/email"
)

// View is a template used to render email messages.
//
// The subject and body elements are rendered as plain text. The optional
// html element is parsed separately with html/template so that data is
// escaped.
type View struct {
	text *template.Template
	html *htmltemplate.Template
}

// Parse parses the file system and returns a view for the given name.
// fs is expected to contain *.tmpl files in the root directory.
func Parse(fsys fs.FS, name string) (*View, error) {
	// View names are used to construct filenames, don't allow
	// anything that could lead to directory traversal.
	if err := validateName(name); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s.tmpl", name)
	text, err := template.New(name).ParseFS(fsys, filename)
	if err != nil {
		return nil, err
	}

	for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementBody} {
		if text.Lookup(string(el)) == nil {
			return nil, fmt.Errorf("missing %s template", el)
		}
	}

	v := &View{text: text}

	if text.Lookup(string(email.ElementHTML)) != nil {
		v.html, err = htmltemplate.New(name).ParseFS(fsys, filename)
		if err != nil {
			return nil, err
		}
	}

	return v, nil
}

// Has reports whether the view defines element.
func (v *View) Has(element email.TemplateElement) bool {
	if element == email.ElementHTML {
		return v.html != nil
	}

	return v.text.Lookup(string(element)) != nil
}

func (v *View) Render(w io.Writer, element email.TemplateElement, data any) error {
	if element == email.ElementHTML {
		if v.html == nil {
			return fmt.Errorf("missing %s template", element)
		}
		return v.html.ExecuteTemplate(w, string(element), data)
	}

	return v.text.ExecuteTemplate(w, string(element), data)
}

// validateName checks if all characters are alphanumeric, dashes or underscores.
func validateName(name string) error {
	for _, c := range name {
		if !validViewRune(c) {
			return fmt.Errorf("invalid character %v in view name: %s", c, name)
		}
	}
	return nil
}

func validViewRune(r rune) bool {
	return r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
