package model

import (
	"fmt"
	"net/mail"
	"slices"
	"strconv"
	"strings"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldPassword FieldType = "password"
	FieldEmail    FieldType = "email"
	FieldSelect   FieldType = "select"
)

// TopupTypeField is the gameData key carrying the chosen top-up type.
const TopupTypeField = "topup_type"

type FormField struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Placeholder string    `json:"placeholder,omitempty"`
	Options     []string  `json:"options,omitempty"`
}

// GameForm is the per-game input schema. ID equals GameID.
type GameForm struct {
	ID     string      `json:"id"`
	GameID string      `json:"gameId"`
	TypeID string      `json:"typeId,omitempty"`
	Fields []FormField `json:"fields"`
}

// DefaultFormFields is used when a game has no form of its own.
func DefaultFormFields() []FormField {
	return []FormField{{
		ID:          "account_id",
		Label:       "Account ID / phone number",
		Type:        FieldText,
		Required:    true,
		Placeholder: "Enter your details here",
	}}
}

// FormData holds the buyer's answers keyed by field id.
type FormData map[string]string

// MainID is the value of the first field, the one player verification uses.
func (d FormData) MainID(fields []FormField) string {
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSpace(d[fields[0].ID])
}

type FieldProblem struct {
	FieldID string `json:"fieldId"`
	Label   string `json:"label"`
	Reason  string `json:"reason"`
}

type FormError struct {
	Problems []FieldProblem
}

func (e *FormError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Label, p.Reason))
	}
	return "please check the required fields (" + strings.Join(parts, ", ") + ")"
}

// Validate checks data against fields. Unknown keys are kept as-is.
func (d FormData) Validate(fields []FormField) error {
	var problems []FieldProblem
	for _, f := range fields {
		v := strings.TrimSpace(d[f.ID])
		if v == "" {
			if f.Required {
				problems = append(problems, FieldProblem{FieldID: f.ID, Label: f.Label, Reason: "required"})
			}
			continue
		}
		switch f.Type {
		case FieldNumber:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				problems = append(problems, FieldProblem{FieldID: f.ID, Label: f.Label, Reason: "must be a number"})
			}
		case FieldEmail:
			if _, err := mail.ParseAddress(v); err != nil {
				problems = append(problems, FieldProblem{FieldID: f.ID, Label: f.Label, Reason: "must be an email address"})
			}
		case FieldSelect:
			if len(f.Options) > 0 && !slices.Contains(f.Options, v) {
				problems = append(problems, FieldProblem{FieldID: f.ID, Label: f.Label, Reason: "not one of the options"})
			}
		}
	}
	if len(problems) > 0 {
		return &FormError{Problems: problems}
	}
	return nil
}
