// Package style flattens a CTA's declarative style fields into inline CSS.
//
// Both compilers are total: every field falls back to its default from the
// ctas package, so an empty definition still yields valid CSS. Values are
// passed through verbatim; callers escape the result for its output context.
package style

import (
	"strings"

	"ctabeacon/internal/ctas"
)

const separator = "; "

// CompileButtonStyle returns the inline style for the button element.
func CompileButtonStyle(cta *ctas.Definition) string {
	s := styleOf(cta)

	var decls []string
	decls = append(decls, background(s)...)
	decls = append(decls, border(s)...)
	decls = append(decls, "padding: "+join4(
		or(s.PaddingTop, ctas.DefaultPaddingTop),
		or(s.PaddingRight, ctas.DefaultPaddingRight),
		or(s.PaddingBottom, ctas.DefaultPaddingBottom),
		or(s.PaddingLeft, ctas.DefaultPaddingLeft),
	))

	// The button is a flex container so alignment works through margins
	// and text alignment through justify-content.
	decls = append(decls, "display: flex")
	full := strings.EqualFold(or(s.ButtonWidth, ctas.DefaultButtonWidth), "full")
	if full {
		decls = append(decls, "width: 100%")
	} else {
		decls = append(decls, "width: fit-content")
		decls = append(decls, alignment(s.ButtonAlignment)...)
	}
	decls = append(decls, "justify-content: "+justify(s.TextAlignment))

	return strings.Join(decls, separator)
}

// CompileTextStyle returns the inline style for the button label.
func CompileTextStyle(cta *ctas.Definition) string {
	s := styleOf(cta)

	decls := []string{"font-size: " + or(s.FontSize, ctas.DefaultFontSize)}
	if family := strings.TrimSpace(s.FontFamily); family != "" && !strings.EqualFold(family, "inherit") {
		decls = append(decls, "font-family: "+family)
	}
	decls = append(decls,
		"font-weight: "+or(s.FontWeight, ctas.DefaultFontWeight),
		"color: "+or(s.TextColor, ctas.DefaultTextColor),
	)
	return strings.Join(decls, separator)
}

func styleOf(cta *ctas.Definition) ctas.Style {
	if cta == nil {
		return ctas.Style{}
	}
	return cta.Style
}

func background(s ctas.Style) []string {
	switch strings.ToLower(or(s.BackgroundType, ctas.DefaultBackgroundType)) {
	case "gradient":
		return []string{"background: " + gradient(s)}
	case "transparent":
		return []string{"background-color: transparent", "background-image: none"}
	default:
		return []string{
			"background-color: " + or(s.BackgroundColor, ctas.DefaultBackgroundColor),
			"background-image: none",
		}
	}
}

func gradient(s ctas.Style) string {
	start := or(s.GradientStart, ctas.DefaultGradientStart) + " " +
		withUnit(or(s.GradientStartPosition, ctas.DefaultGradientStartPosition), "%")
	end := or(s.GradientEnd, ctas.DefaultGradientEnd) + " " +
		withUnit(or(s.GradientEndPosition, ctas.DefaultGradientEndPosition), "%")

	if strings.EqualFold(or(s.GradientType, ctas.DefaultGradientType), "radial") {
		return "radial-gradient(circle, " + start + ", " + end + ")"
	}
	angle := withUnit(or(s.GradientAngle, ctas.DefaultGradientAngle), "deg")
	return "linear-gradient(" + angle + ", " + start + ", " + end + ")"
}

func border(s ctas.Style) []string {
	radius := "border-radius: " + join4(
		or(s.BorderRadiusTopLeft, ctas.DefaultBorderRadius),
		or(s.BorderRadiusTopRight, ctas.DefaultBorderRadius),
		or(s.BorderRadiusBottomRight, ctas.DefaultBorderRadius),
		or(s.BorderRadiusBottomLeft, ctas.DefaultBorderRadius),
	)

	borderStyle := or(s.BorderStyle, ctas.DefaultBorderStyle)
	if strings.EqualFold(borderStyle, "none") {
		return []string{"border: none", radius}
	}

	return []string{
		"border-style: " + borderStyle,
		"border-color: " + or(s.BorderColor, ctas.DefaultBorderColor),
		"border-width: " + join4(
			or(s.BorderWidthTop, ctas.DefaultBorderWidth),
			or(s.BorderWidthRight, ctas.DefaultBorderWidth),
			or(s.BorderWidthBottom, ctas.DefaultBorderWidth),
			or(s.BorderWidthLeft, ctas.DefaultBorderWidth),
		),
		radius,
	}
}

func alignment(value string) []string {
	switch strings.ToLower(or(value, ctas.DefaultButtonAlignment)) {
	case "left":
		return []string{"margin-left: 0", "margin-right: auto"}
	case "right":
		return []string{"margin-left: auto", "margin-right: 0"}
	default:
		return []string{"margin-left: auto", "margin-right: auto"}
	}
}

func justify(value string) string {
	switch strings.ToLower(or(value, ctas.DefaultTextAlignment)) {
	case "left":
		return "flex-start"
	case "right":
		return "flex-end"
	default:
		return "center"
	}
}

func or(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func join4(a, b, c, d string) string {
	return a + " " + b + " " + c + " " + d
}

// withUnit appends unit to bare numbers only.
func withUnit(value, unit string) string {
	for _, r := range value {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return value
		}
	}
	return value + unit
}
