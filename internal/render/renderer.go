// Package render assembles the public markup fragment for a CTA.
package render

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ctabeacon/internal/ctas"
	"ctabeacon/internal/style"
	"ctabeacon/internal/visibility"
)

// CSS class names shared with the client-side tracker.
const (
	BaseClass         = "cta-button"
	LayoutClassPrefix = "cta-layout-"
	TextClass         = "cta-button__text"
	WrapperClass      = "cta-wrapper"
	DiagnosticClass   = "cta-diagnostic"
)

// Styles holds the compiled inline styles for one CTA.
type Styles struct {
	Button string
	Text   string
}

// CompileStyles runs both style compilers.
func CompileStyles(cta *ctas.Definition) Styles {
	return Styles{
		Button: style.CompileButtonStyle(cta),
		Text:   style.CompileTextStyle(cta),
	}
}

// Viewer describes who the fragment is rendered for.
type Viewer struct {
	// Operator is true for authenticated administrators; only they see
	// why a CTA was hidden.
	Operator bool
}

// Attributes are the element-level embedding attributes of the button.
type Attributes struct {
	ID      string
	Classes []string
	Data    map[string]string
}

// Wrapper describes the optional container around the button.
type Wrapper struct {
	ID      string
	Classes []string
}

// AttributeHook may extend or replace the button attributes.
type AttributeHook func(attrs Attributes, cta *ctas.Definition) Attributes

// WrapperHook may extend or replace the wrapper attributes.
type WrapperHook func(w Wrapper, cta *ctas.Definition) Wrapper

// LayoutRenderer renders a non-button layout. Returning "" passes.
type LayoutRenderer func(current string, cta *ctas.Definition, layout string) string

// Option configures a Renderer.
type Option func(*Renderer)

// WithAttributeHook appends an attribute hook.
func WithAttributeHook(h AttributeHook) Option {
	return func(r *Renderer) { r.attributeHooks = append(r.attributeHooks, h) }
}

// WithWrapperHook appends a wrapper hook.
func WithWrapperHook(h WrapperHook) Option {
	return func(r *Renderer) { r.wrapperHooks = append(r.wrapperHooks, h) }
}

// WithLayoutRenderer appends a layout renderer.
func WithLayoutRenderer(l LayoutRenderer) Option {
	return func(r *Renderer) { r.layoutRenderers = append(r.layoutRenderers, l) }
}

// Renderer builds markup. The advanced embedding fields stored on the CTA
// are applied by the first attribute and wrapper hooks; hooks passed as
// options run after them in registration order.
type Renderer struct {
	attributeHooks  []AttributeHook
	wrapperHooks    []WrapperHook
	layoutRenderers []LayoutRenderer
}

// NewRenderer creates a renderer with the built-in embedding hooks.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		attributeHooks: []AttributeHook{EmbeddingAttributes},
		wrapperHooks:   []WrapperHook{EmbeddingWrapper},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the fragment for cta. Denied CTAs render as nothing for
// the public and as a diagnostic notice for operators.
func (r *Renderer) Render(cta *ctas.Definition, decision visibility.Decision, styles Styles, viewer Viewer) string {
	if !decision.Allowed {
		if viewer.Operator {
			return Diagnostic(cta, decision.Reason)
		}
		return ""
	}
	if cta == nil {
		return ""
	}

	if layout := cta.EffectiveLayout(); layout != ctas.LayoutButton {
		out := ""
		for _, l := range r.layoutRenderers {
			out = l(out, cta, layout)
		}
		if strings.TrimSpace(out) != "" {
			return out
		}
	}

	return r.button(cta, styles)
}

func (r *Renderer) button(cta *ctas.Definition, styles Styles) string {
	attrs := Attributes{
		Classes: []string{BaseClass, LayoutClassPrefix + cta.EffectiveLayout()},
		Data: map[string]string{
			"data-cta-id":    strconv.FormatUint(uint64(cta.ID), 10),
			"data-cta-type":  string(cta.EffectiveType()),
			"data-cta-title": cta.Title(),
		},
	}
	for _, h := range r.attributeHooks {
		attrs = h(attrs, cta)
	}

	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(html.EscapeString(Href(cta)))
	b.WriteString(`"`)
	if attrs.ID != "" {
		writeAttr(&b, "id", attrs.ID)
	}
	writeAttr(&b, "class", joinClasses(attrs.Classes))
	writeAttr(&b, "style", styles.Button)
	written := make(map[string]bool, len(attrs.Data))
	for _, key := range sortedKeys(attrs.Data) {
		name := dataAttributeName(key)
		if name == "" || written[name] {
			continue
		}
		// An already well-formed key wins over one that normalizes onto it.
		if _, exact := attrs.Data[name]; exact && name != key {
			continue
		}
		written[name] = true
		writeAttr(&b, name, attrs.Data[key])
	}
	if cta.EffectiveType() == ctas.TypeLink {
		if target := strings.TrimSpace(cta.LinkTarget); target != "" && target != ctas.DefaultLinkTarget {
			writeAttr(&b, "target", target)
			if target == "_blank" {
				writeAttr(&b, "rel", "noopener noreferrer")
			}
		}
	}
	b.WriteString(`><span`)
	writeAttr(&b, "class", TextClass)
	writeAttr(&b, "style", styles.Text)
	b.WriteString(`>`)
	b.WriteString(html.EscapeString(cta.Label()))
	b.WriteString(`</span></a>`)
	button := b.String()

	var w Wrapper
	for _, h := range r.wrapperHooks {
		w = h(w, cta)
	}
	if w.ID == "" && len(w.Classes) == 0 {
		return button
	}

	var out strings.Builder
	out.WriteString(`<div`)
	if w.ID != "" {
		writeAttr(&out, "id", w.ID)
	}
	writeAttr(&out, "class", joinClasses(append([]string{WrapperClass}, w.Classes...)))
	out.WriteString(`>`)
	out.WriteString(button)
	out.WriteString(`</div>`)
	return out.String()
}

// Href builds the destination for the CTA's type, falling back to "#".
func Href(cta *ctas.Definition) string {
	switch cta.EffectiveType() {
	case ctas.TypePhone:
		if number := NormalizePhone(cta.PhoneNumber); number != "" {
			return "tel:" + number
		}
	case ctas.TypeEmail:
		if email := strings.TrimSpace(cta.EmailTo); email != "" {
			return "mailto:" + email
		}
	case ctas.TypeLink:
		if link := strings.TrimSpace(cta.LinkURL); link != "" && safeURL(link) {
			return link
		}
	}
	return "#"
}

// NormalizePhone keeps only digits and '+'. Letters in vanity numbers and
// extension suffixes are dropped.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EmbeddingAttributes applies the CTA's own id, classes and data attributes.
func EmbeddingAttributes(attrs Attributes, cta *ctas.Definition) Attributes {
	if id := strings.TrimSpace(cta.HTMLID); id != "" {
		attrs.ID = id
	}
	attrs.Classes = append(attrs.Classes, strings.Fields(cta.Classes)...)
	if len(cta.DataAttributes) > 0 && attrs.Data == nil {
		attrs.Data = make(map[string]string, len(cta.DataAttributes))
	}
	for key, value := range cta.DataAttributes {
		name := dataAttributeName(key)
		if name == "" {
			continue
		}
		// Tracking correlation attributes are owned by the renderer.
		if _, reserved := attrs.Data[name]; reserved && strings.HasPrefix(name, "data-cta-") {
			continue
		}
		attrs.Data[name] = value
	}
	return attrs
}

// EmbeddingWrapper applies the CTA's wrapper id and classes.
func EmbeddingWrapper(w Wrapper, cta *ctas.Definition) Wrapper {
	if id := strings.TrimSpace(cta.WrapperID); id != "" {
		w.ID = id
	}
	w.Classes = append(w.Classes, strings.Fields(cta.WrapperClasses)...)
	return w
}

// Diagnostic is the operator-only notice explaining a hidden CTA.
func Diagnostic(cta *ctas.Definition, reason visibility.Reason) string {
	label := cases.Title(language.English).String(strings.ReplaceAll(string(reason), "-", " "))
	subject := "CTA"
	if cta != nil {
		subject = fmt.Sprintf("CTA #%d", cta.ID)
		if cta.Name != "" {
			subject += " (" + cta.Name + ")"
		}
	}
	return `<div class="` + DiagnosticClass + `" role="note">` +
		html.EscapeString(subject+" is not displayed: "+label) + `</div>`
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteString(` `)
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(value))
	b.WriteString(`"`)
}

func joinClasses(classes []string) string {
	seen := make(map[string]bool, len(classes))
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return strings.Join(out, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dataAttributeName lower-cases the key, keeps [a-z0-9-_] and ensures the
// data- prefix.
func dataAttributeName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := strings.TrimPrefix(b.String(), "data-")
	if name == "" {
		return ""
	}
	return "data-" + name
}

func safeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "javascript", "data", "vbscript":
		return false
	}
	return true
}
