package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ctabeacon/internal/ctas"
	"ctabeacon/internal/visibility"
)

func renderAllowed(r *Renderer, cta *ctas.Definition) string {
	return r.Render(cta, visibility.Allow, CompileStyles(cta), Viewer{})
}

func TestRender(t *testing.T) {
	t.Run("phone button", func(t *testing.T) {
		cta := &ctas.Definition{ID: 7, Name: "Call us", PhoneNumber: "+1 (555) 010-9999 ext. 2", ButtonText: "Ring <now>"}
		out := renderAllowed(NewRenderer(), cta)

		assert.True(t, strings.HasPrefix(out, `<a href="tel:+155501099992"`))
		assert.Contains(t, out, `class="cta-button cta-layout-button"`)
		assert.Contains(t, out, `data-cta-id="7"`)
		assert.Contains(t, out, `data-cta-title="Call us"`)
		assert.Contains(t, out, `data-cta-type="phone"`)
		assert.Contains(t, out, `<span class="cta-button__text"`)
		assert.Contains(t, out, "Ring &lt;now&gt;")
	})

	t.Run("default label and href", func(t *testing.T) {
		out := renderAllowed(NewRenderer(), &ctas.Definition{ID: 1})
		assert.Contains(t, out, `href="#"`)
		assert.Contains(t, out, ctas.DefaultButtonText)
	})

	t.Run("email and link", func(t *testing.T) {
		assert.Equal(t, "mailto:sales@example.com", Href(&ctas.Definition{Type: ctas.TypeEmail, EmailTo: " sales@example.com "}))
		assert.Equal(t, "#", Href(&ctas.Definition{Type: ctas.TypeLink, LinkURL: "javascript:alert(1)"}))

		out := renderAllowed(NewRenderer(), &ctas.Definition{Type: ctas.TypeLink, LinkURL: "https://example.com/?a=1&b=2", LinkTarget: "_blank"})
		assert.Contains(t, out, `href="https://example.com/?a=1&amp;b=2"`)
		assert.Contains(t, out, `target="_blank" rel="noopener noreferrer"`)
	})

	t.Run("denied renders nothing for visitors", func(t *testing.T) {
		cta := &ctas.Definition{ID: 2}
		assert.Empty(t, NewRenderer().Render(cta, visibility.Deny(visibility.ReasonDisabled), Styles{}, Viewer{}))
	})

	t.Run("denied renders a diagnostic for operators", func(t *testing.T) {
		cta := &ctas.Definition{ID: 2, Name: `<b>Promo</b>`}
		out := NewRenderer().Render(cta, visibility.Deny(visibility.ReasonOutsideSchedule), Styles{}, Viewer{Operator: true})
		assert.Equal(t, `<div class="cta-diagnostic" role="note">CTA #2 (&lt;b&gt;Promo&lt;/b&gt;) is not displayed: Outside Schedule</div>`, out)
	})

	t.Run("embedding attributes and wrapper", func(t *testing.T) {
		cta := &ctas.Definition{
			ID:             4,
			HTMLID:         "hero-cta",
			Classes:        "big  cta-button",
			WrapperID:      "hero",
			WrapperClasses: "sticky",
			DataAttributes: map[string]string{"Campaign": "spring", "data-cta-id": "99", "!!": "x"},
		}
		out := renderAllowed(NewRenderer(), cta)

		assert.True(t, strings.HasPrefix(out, `<div id="hero" class="cta-wrapper sticky"><a `))
		assert.Contains(t, out, `id="hero-cta"`)
		assert.Contains(t, out, `class="cta-button cta-layout-button big"`)
		assert.Contains(t, out, `data-campaign="spring"`)
		assert.Contains(t, out, `data-cta-id="4"`)
		assert.NotContains(t, out, `data-cta-id="99"`)
		assert.True(t, strings.HasSuffix(out, `</a></div>`))
	})

	t.Run("hooks run in order after the built-ins", func(t *testing.T) {
		r := NewRenderer(
			WithAttributeHook(func(a Attributes, _ *ctas.Definition) Attributes {
				a.Classes = append(a.Classes, "first")
				return a
			}),
			WithAttributeHook(func(a Attributes, _ *ctas.Definition) Attributes {
				a.Data["data-order"] = strings.Join(a.Classes, ",")
				return a
			}),
			WithWrapperHook(func(w Wrapper, _ *ctas.Definition) Wrapper {
				w.Classes = append(w.Classes, "hooked")
				return w
			}),
		)
		out := renderAllowed(r, &ctas.Definition{ID: 5, Classes: "own"})
		assert.Contains(t, out, `data-order="cta-button,cta-layout-button,own,first"`)
		assert.Contains(t, out, `<div class="cta-wrapper hooked">`)
	})

	t.Run("hook data keys are normalized to safe attribute names", func(t *testing.T) {
		r := NewRenderer(WithAttributeHook(func(a Attributes, _ *ctas.Definition) Attributes {
			a.Data["data-x onmouseover=alert(1) y"] = "v"
			a.Data["DATA-CTA-ID"] = "99"
			a.Data[`"><script>`] = "x"
			return a
		}))
		out := renderAllowed(r, &ctas.Definition{ID: 5})

		assert.NotContains(t, out, " onmouseover=")
		assert.NotContains(t, out, "<script>")
		assert.Contains(t, out, `data-xonmouseoveralert1y="v"`)
		assert.Contains(t, out, `data-script="x"`)
		assert.Contains(t, out, `data-cta-id="5"`)
		assert.NotContains(t, out, `data-cta-id="99"`)
		assert.Equal(t, 1, strings.Count(out, "data-cta-id="))
	})

	t.Run("layout renderers", func(t *testing.T) {
		cta := &ctas.Definition{ID: 6, Layout: "card-top"}

		fallback := renderAllowed(NewRenderer(), cta)
		assert.Contains(t, fallback, BaseClass, "no renderer falls back to the button")
		assert.Contains(t, fallback, `class="cta-button cta-layout-card-top"`)
		assert.NotContains(t, fallback, LayoutClassPrefix+ctas.LayoutButton)

		blank := NewRenderer(WithLayoutRenderer(func(string, *ctas.Definition, string) string { return "  " }))
		assert.Contains(t, renderAllowed(blank, cta), BaseClass)

		card := NewRenderer(
			WithLayoutRenderer(func(_ string, _ *ctas.Definition, layout string) string { return "<section>" + layout + "</section>" }),
			WithLayoutRenderer(func(current string, _ *ctas.Definition, _ string) string { return current + "<!-- card -->" }),
		)
		assert.Equal(t, "<section>card-top</section><!-- card -->", renderAllowed(card, cta))
	})
}
