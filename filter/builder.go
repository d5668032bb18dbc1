// Package filter turns raw client query parameters into a validated
// task.Filter. Values are parsed into typed predicates; nothing the client
// sends is ever spliced into a query.
package filter

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
)

// Recognized parameter names.
const (
	ParamStatus        = "status"
	ParamAssigneeID    = "assigneeId"
	ParamLabelID       = "labelId"
	ParamTitleContains = "titleContains"
)

// Params lists the recognized parameters in validation order.
var Params = []string{ParamStatus, ParamAssigneeID, ParamLabelID, ParamTitleContains}

// aliases maps legacy parameter spellings onto their canonical names.
var aliases = map[string]string{
	"titleCont":   ParamTitleContains,
	"assignee_id": ParamAssigneeID,
	"label_id":    ParamLabelID,
}

// MaxTitleQueryLength bounds the titleContains value in characters.
const MaxTitleQueryLength = 255

// Options configures a Builder.
type Options struct {
	// RejectUnknown makes Build fail on parameters it does not recognize
	// instead of ignoring them.
	RejectUnknown bool
}

// Builder validates query parameters into filters. It holds no mutable state
// and is safe for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Build validates raw and returns the conjunction of the present predicates.
// Empty values are treated as absent. It fails with a *apperr.ValidationError
// for the first invalid parameter in Params order; unknown parameters are
// checked last, in lexical order.
func (b *Builder) Build(raw map[string]string) (task.Filter, error) {
	params, unknown := normalize(raw)

	var f task.Filter

	if v, ok := params[ParamStatus]; ok {
		status, valid := task.ParseStatus(v)
		if !valid {
			return task.Filter{}, apperr.Invalid(ParamStatus, "unknown status "+strconv.Quote(v))
		}
		f.Status = &status
	}

	if v, ok := params[ParamAssigneeID]; ok {
		id, err := parseID(ParamAssigneeID, v)
		if err != nil {
			return task.Filter{}, err
		}
		f.AssigneeID = &id
	}

	if v, ok := params[ParamLabelID]; ok {
		id, err := parseID(ParamLabelID, v)
		if err != nil {
			return task.Filter{}, err
		}
		f.LabelID = &id
	}

	if v, ok := params[ParamTitleContains]; ok {
		if utf8.RuneCountInString(v) > MaxTitleQueryLength {
			return task.Filter{}, apperr.Invalid(ParamTitleContains,
				"must be at most "+strconv.Itoa(MaxTitleQueryLength)+" characters")
		}
		f.TitleContains = &v
	}

	if b.opts.RejectUnknown && len(unknown) > 0 {
		return task.Filter{}, apperr.Invalid(unknown[0], "unknown parameter")
	}

	return f, nil
}

// normalize resolves aliases, trims values and drops empty ones. Canonical
// names win over aliases. It returns the recognized parameters and the sorted
// list of unrecognized names.
func normalize(raw map[string]string) (map[string]string, []string) {
	params := make(map[string]string, len(raw))
	var unknown []string

	for key, value := range raw {
		if slices.Contains(Params, key) {
			if v := strings.TrimSpace(value); v != "" {
				params[key] = v
			}
			continue
		}
		if _, ok := aliases[key]; !ok {
			unknown = append(unknown, key)
		}
	}

	for alias, canonical := range aliases {
		value, ok := raw[alias]
		if !ok {
			continue
		}
		if _, set := raw[canonical]; set {
			continue
		}
		if v := strings.TrimSpace(value); v != "" {
			params[canonical] = v
		}
	}

	slices.Sort(unknown)
	return params, unknown
}

func parseID(field, v string) (uint, error) {
	id, err := strconv.ParseUint(v, 10, 0)
	if err != nil || id == 0 {
		return 0, apperr.Invalid(field, "must be a positive integer")
	}
	return uint(id), nil
}
