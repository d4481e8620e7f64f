package ctas

import (
	"fmt"
	"strings"
	"time"
)

// Type is the behavioural type of a CTA.
type Type string

const (
	TypePhone   Type = "phone"
	TypeEmail   Type = "email"
	TypeLink    Type = "link"
	TypePopup   Type = "popup"
	TypeSlideIn Type = "slide-in"
)

// LayoutButton is the only layout rendered by the core; every other layout is a card variant.
const LayoutButton = "button"

// Status values that force a CTA to be treated as enabled.
const (
	StatusPublish   = "publish"
	StatusPublished = "published"
)

const scheduleDateLayout = "2006-01-02"

// Style defaults. An empty style field always resolves to one of these.
const (
	DefaultBackgroundType        = "solid"
	DefaultBackgroundColor       = "#667eea"
	DefaultGradientType          = "linear"
	DefaultGradientStart         = "#667eea"
	DefaultGradientEnd           = "#764ba2"
	DefaultGradientAngle         = "90"
	DefaultGradientStartPosition = "0"
	DefaultGradientEndPosition   = "100"
	DefaultBorderStyle           = "solid"
	DefaultBorderColor           = "#667eea"
	DefaultBorderWidth           = "2px"
	DefaultBorderRadius          = "8px"
	DefaultPaddingTop            = "12px"
	DefaultPaddingRight          = "24px"
	DefaultPaddingBottom         = "12px"
	DefaultPaddingLeft           = "24px"
	DefaultButtonWidth           = "auto"
	DefaultButtonAlignment       = "center"
	DefaultFontSize              = "16px"
	DefaultFontWeight            = "600"
	DefaultTextColor             = "#ffffff"
	DefaultTextAlignment         = "center"
	DefaultButtonText            = "Contact Us"
	DefaultLinkTarget            = "_self"
)

// Style holds the declarative style fields of a CTA button.
type Style struct {
	BackgroundType        string `json:"background_type" yaml:"background_type"`
	BackgroundColor       string `json:"background_color" yaml:"background_color"`
	GradientType          string `json:"gradient_type" yaml:"gradient_type"`
	GradientStart         string `json:"gradient_start" yaml:"gradient_start"`
	GradientEnd           string `json:"gradient_end" yaml:"gradient_end"`
	GradientAngle         string `json:"gradient_angle" yaml:"gradient_angle"`
	GradientStartPosition string `json:"gradient_start_position" yaml:"gradient_start_position"`
	GradientEndPosition   string `json:"gradient_end_position" yaml:"gradient_end_position"`

	BorderStyle             string `json:"border_style" yaml:"border_style"`
	BorderColor             string `json:"border_color" yaml:"border_color"`
	BorderWidthTop          string `json:"border_width_top" yaml:"border_width_top"`
	BorderWidthRight        string `json:"border_width_right" yaml:"border_width_right"`
	BorderWidthBottom       string `json:"border_width_bottom" yaml:"border_width_bottom"`
	BorderWidthLeft         string `json:"border_width_left" yaml:"border_width_left"`
	BorderRadiusTopLeft     string `json:"border_radius_top_left" yaml:"border_radius_top_left"`
	BorderRadiusTopRight    string `json:"border_radius_top_right" yaml:"border_radius_top_right"`
	BorderRadiusBottomRight string `json:"border_radius_bottom_right" yaml:"border_radius_bottom_right"`
	BorderRadiusBottomLeft  string `json:"border_radius_bottom_left" yaml:"border_radius_bottom_left"`

	PaddingTop    string `json:"padding_top" yaml:"padding_top"`
	PaddingRight  string `json:"padding_right" yaml:"padding_right"`
	PaddingBottom string `json:"padding_bottom" yaml:"padding_bottom"`
	PaddingLeft   string `json:"padding_left" yaml:"padding_left"`

	ButtonWidth     string `json:"button_width" yaml:"button_width"`
	ButtonAlignment string `json:"button_alignment" yaml:"button_alignment"`

	FontFamily    string `json:"font_family" yaml:"font_family"`
	FontSize      string `json:"font_size" yaml:"font_size"`
	FontWeight    string `json:"font_weight" yaml:"font_weight"`
	TextColor     string `json:"text_color" yaml:"text_color"`
	TextAlignment string `json:"text_alignment" yaml:"text_alignment"`
}

// Definition is a configured call-to-action. It is read-only while a request renders it.
type Definition struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id" yaml:"id"`
	Name   string `gorm:"not null" json:"name" yaml:"name"`
	Type   Type   `gorm:"default:'phone'" json:"type" yaml:"type"`
	Layout string `gorm:"default:'button'" json:"layout" yaml:"layout"`

	Enabled bool   `json:"enabled" yaml:"enabled"`
	Status  string `gorm:"index" json:"status" yaml:"status"`

	// Inclusive schedule bounds in YYYY-MM-DD form; empty means unbounded.
	ScheduleStart     string `json:"schedule_start" yaml:"schedule_start"`
	ScheduleEnd       string `json:"schedule_end" yaml:"schedule_end"`
	BusinessHoursType string `json:"business_hours_type" yaml:"business_hours_type"`

	ButtonText  string `json:"button_text" yaml:"button_text"`
	PhoneNumber string `json:"phone_number" yaml:"phone_number"`
	EmailTo     string `json:"email_to" yaml:"email_to"`
	LinkURL     string `json:"link_url" yaml:"link_url"`
	LinkTarget  string `json:"link_target" yaml:"link_target"`

	HTMLID         string            `gorm:"column:cta_html_id" json:"cta_html_id" yaml:"cta_html_id"`
	Classes        string            `gorm:"column:cta_classes" json:"cta_classes" yaml:"cta_classes"`
	WrapperID      string            `json:"wrapper_id" yaml:"wrapper_id"`
	WrapperClasses string            `json:"wrapper_classes" yaml:"wrapper_classes"`
	DataAttributes map[string]string `gorm:"serializer:json" json:"data_attributes" yaml:"data_attributes"`

	Style Style `gorm:"embedded;embeddedPrefix:style_" json:"style" yaml:"style"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// TableName pins the table name used by gorm.
func (Definition) TableName() string {
	return "cta_definitions"
}

// EffectiveType returns the configured type, defaulting to phone.
func (d *Definition) EffectiveType() Type {
	if d.Type == "" {
		return TypePhone
	}
	return d.Type
}

// EffectiveLayout returns the configured layout, defaulting to button.
func (d *Definition) EffectiveLayout() string {
	if strings.TrimSpace(d.Layout) == "" {
		return LayoutButton
	}
	return d.Layout
}

// Label returns the button text, defaulting when empty.
func (d *Definition) Label() string {
	if strings.TrimSpace(d.ButtonText) == "" {
		return DefaultButtonText
	}
	return d.ButtonText
}

// Title is the human-facing name used in telemetry.
func (d *Definition) Title() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Label()
}

// Published reports whether the status field forces the CTA on.
func (d *Definition) Published() bool {
	switch strings.ToLower(strings.TrimSpace(d.Status)) {
	case StatusPublish, StatusPublished:
		return true
	}
	return false
}

// ScheduleWindow parses the schedule bounds. A nil bound is unbounded.
func (d *Definition) ScheduleWindow() (start, end *time.Time, err error) {
	start, err = parseScheduleDate(d.ScheduleStart)
	if err != nil {
		return nil, nil, fmt.Errorf("schedule_start: %w", err)
	}
	end, err = parseScheduleDate(d.ScheduleEnd)
	if err != nil {
		return nil, nil, fmt.Errorf("schedule_end: %w", err)
	}
	return start, end, nil
}

// Clone returns a copy that can be modified without touching the receiver.
func (d *Definition) Clone() *Definition {
	c := *d
	if d.DataAttributes != nil {
		c.DataAttributes = make(map[string]string, len(d.DataAttributes))
		for k, v := range d.DataAttributes {
			c.DataAttributes[k] = v
		}
	}
	return &c
}

func parseScheduleDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// Accept full timestamps but compare on the date part only.
	if len(raw) > len(scheduleDateLayout) {
		raw = raw[:len(scheduleDateLayout)]
	}
	t, err := time.Parse(scheduleDateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
