package request

import (
	"fmt"
	"time"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
)

// Pagination limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AvailabilityMode controls how the availability collaborator participates
// in a search.
type AvailabilityMode string

const (
	// AvailabilityOff skips the availability collaborator entirely.
	AvailabilityOff AvailabilityMode = "off"
	// AvailabilityAnnotate keeps all hits and annotates each with its
	// availability.
	AvailabilityAnnotate AvailabilityMode = "annotate"
	// AvailabilityOnly keeps available hits only.
	AvailabilityOnly AvailabilityMode = "only"
)

// SortField names a sortable virtual field. User-defined attributes are
// addressed by their plain name.
const (
	SortAvailability = "availability"
	SortCreatedAt    = "created_at"
	SortUpdatedAt    = "updated_at"
	SortName         = "name"
	SortPrice        = "price"
	SortRelevance    = "relevance"
)

var builtinSorts = map[string]bool{
	SortAvailability: true,
	SortCreatedAt:    true,
	SortUpdatedAt:    true,
	SortName:         true,
	SortPrice:        true,
	SortRelevance:    true,
}

// SortStep is one step of a multi-step sort specification.
type SortStep struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Geo is a geo-radius filter.
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km"`
}

// DateRange bounds the availability period.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AttributeFilter is the per-attribute filter. Which operators apply depends
// on the attribute's declared type: Eq/range for number, Eq for boolean and
// text (exact match), In for select, All (conjunctive membership) for tags.
type AttributeFilter struct {
	Eq  any      `json:"eq,omitempty"`
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
	In  []string `json:"in,omitempty"`
	All []string `json:"all,omitempty"`
}

// Request is a structured search request.
type Request struct {
	Query        string                     `json:"query,omitempty"`
	SimilarToIDs []string                   `json:"similar_to_ids,omitempty"`
	CategoryIDs  []string                   `json:"category_ids,omitempty"`
	TypeIDs      []string                   `json:"type_ids,omitempty"`
	Geo          *Geo                       `json:"geo,omitempty"`
	Dates        *DateRange                 `json:"dates,omitempty"`
	Quantity     int                        `json:"quantity,omitempty"`
	Attributes   map[string]AttributeFilter `json:"attributes,omitempty"`
	RawFilter    string                     `json:"raw_filter,omitempty"`
	Sort         []SortStep                 `json:"sort,omitempty"`
	Availability AvailabilityMode           `json:"availability,omitempty"`
	Page         int                        `json:"page,omitempty"`
	PageSize     int                        `json:"page_size,omitempty"`
}

// Normalize applies defaults and validates the request against the tenant's
// attribute definitions. Validation failures never reach the index.
func (r *Request) Normalize(defs map[string]attribute.Definition) error {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	if r.Availability == "" {
		r.Availability = AvailabilityOff
	}
	switch r.Availability {
	case AvailabilityOff, AvailabilityAnnotate, AvailabilityOnly:
	default:
		return fmt.Errorf("%w: unknown availability mode %q", domain.ErrInvalidFilter, r.Availability)
	}

	if r.Dates != nil && !r.Dates.Start.IsZero() && !r.Dates.End.IsZero() && r.Dates.End.Before(r.Dates.Start) {
		return fmt.Errorf("%w: end %s before start %s",
			domain.ErrInvalidDateRange, r.Dates.End.Format(time.RFC3339), r.Dates.Start.Format(time.RFC3339))
	}

	for name, f := range r.Attributes {
		def, ok := defs[name]
		if !ok {
			return fmt.Errorf("%w: unknown attribute %q", domain.ErrInvalidFilter, name)
		}
		if err := validateFilter(def, f); err != nil {
			return err
		}
	}

	for i, step := range r.Sort {
		if step.Field == SortAvailability {
			if i != 0 {
				return fmt.Errorf("%w: availability sort must be the first step", domain.ErrInvalidSort)
			}
			continue
		}
		if builtinSorts[step.Field] {
			continue
		}
		if _, ok := defs[step.Field]; !ok {
			return fmt.Errorf("%w: unknown sort target %q", domain.ErrInvalidSort, step.Field)
		}
	}

	return nil
}

// AvailabilitySorted reports whether the request leads with an availability
// sort step, and its direction.
func (r *Request) AvailabilitySorted() (leading, desc bool) {
	if len(r.Sort) > 0 && r.Sort[0].Field == SortAvailability {
		return true, r.Sort[0].Desc
	}
	return false, false
}

// NeedsAvailability reports whether the availability collaborator must be
// consulted for this request.
func (r *Request) NeedsAvailability() bool {
	if r.Availability != AvailabilityOff {
		return true
	}
	leading, _ := r.AvailabilitySorted()
	return leading
}

func validateFilter(def attribute.Definition, f AttributeFilter) error {
	hasRange := f.Gt != nil || f.Gte != nil || f.Lt != nil || f.Lte != nil

	switch def.Type {
	case attribute.Number:
		if len(f.In) > 0 || len(f.All) > 0 {
			return fmt.Errorf("%w: %q: number supports eq and range only", domain.ErrInvalidFilter, def.Name)
		}
		if f.Eq != nil {
			if _, ok := f.Eq.(float64); !ok {
				return fmt.Errorf("%w: %q: eq must be numeric", domain.ErrInvalidFilter, def.Name)
			}
		}
	case attribute.Boolean:
		if hasRange || len(f.In) > 0 || len(f.All) > 0 {
			return fmt.Errorf("%w: %q: boolean supports eq only", domain.ErrInvalidFilter, def.Name)
		}
		if f.Eq != nil {
			if _, ok := f.Eq.(bool); !ok {
				return fmt.Errorf("%w: %q: eq must be a boolean", domain.ErrInvalidFilter, def.Name)
			}
		}
	case attribute.Text:
		if hasRange || len(f.In) > 0 || len(f.All) > 0 {
			return fmt.Errorf("%w: %q: text supports exact eq only", domain.ErrInvalidFilter, def.Name)
		}
		if f.Eq != nil {
			if _, ok := f.Eq.(string); !ok {
				return fmt.Errorf("%w: %q: eq must be a string", domain.ErrInvalidFilter, def.Name)
			}
		}
	case attribute.Select:
		if hasRange || len(f.All) > 0 {
			return fmt.Errorf("%w: %q: select supports eq and in only", domain.ErrInvalidFilter, def.Name)
		}
	case attribute.Tags:
		if hasRange || len(f.In) > 0 {
			return fmt.Errorf("%w: %q: tags supports eq and all only", domain.ErrInvalidFilter, def.Name)
		}
	default:
		return fmt.Errorf("%w: %q has unknown type %q", domain.ErrInvalidAttribute, def.Name, def.Type)
	}
	return nil
}
