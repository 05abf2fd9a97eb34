package document

import (
	"time"
)

// GeoPoint is a named latitude/longitude pair as supplied by the entity store.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Document is the denormalized search projection of an asset.
//
// Geo points are written twice: the "geo" field carries bare lat/lon pairs
// for geo_distance filtering, while "locations" keeps the original named
// shape. A geo_point mapping cannot carry arbitrary named sub-properties,
// so the raw copy is what search results re-expand from.
type Document struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	OwnerID     string              `json:"owner_id"`
	CategoryIDs []string            `json:"category_ids,omitempty"`
	TypeID      string              `json:"type_id"`
	Active      bool                `json:"active"`
	Validated   bool                `json:"validated"`
	Price       float64             `json:"price"`
	Quantity    int                 `json:"quantity"`
	Currency    string              `json:"currency"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Attributes  map[string]any      `json:"attributes,omitempty"`
	Locations   map[string]GeoPoint `json:"locations,omitempty"`
	Available   *bool               `json:"available,omitempty"` // annotated by search, never indexed
}

// Source returns the index representation of the document.
func (d *Document) Source() map[string]any {
	geo := make([]map[string]float64, 0, len(d.Locations))
	locations := make(map[string]map[string]float64, len(d.Locations))
	for name, p := range d.Locations {
		geo = append(geo, map[string]float64{"lat": p.Latitude, "lon": p.Longitude})
		locations[name] = map[string]float64{"latitude": p.Latitude, "longitude": p.Longitude}
	}

	src := map[string]any{
		"id":           d.ID,
		"created_at":   d.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   d.UpdatedAt.UTC().Format(time.RFC3339),
		"owner_id":     d.OwnerID,
		"category_ids": d.CategoryIDs,
		"type_id":      d.TypeID,
		"active":       d.Active,
		"validated":    d.Validated,
		"price":        d.Price,
		"quantity":     d.Quantity,
		"currency":     d.Currency,
		"name":         d.Name,
		"description":  d.Description,
		"all_content":  d.allContent(),
		"geo":          geo,
		"locations":    locations,
	}

	attrs := make(map[string]any, len(d.Attributes))
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	src["attributes"] = attrs

	return src
}

// WithoutAttribute returns a copy of the document with one attribute removed.
// Used for dual-writes into a generation whose mapping predates the
// attribute's type change.
func (d *Document) WithoutAttribute(name string) *Document {
	cp := *d
	cp.Attributes = make(map[string]any, len(d.Attributes))
	for k, v := range d.Attributes {
		if k != name {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

// allContent concatenates the free-text fields for cross-field matching.
func (d *Document) allContent() string {
	s := d.Name
	if d.Description != "" {
		s += " " + d.Description
	}
	for _, v := range d.Attributes {
		if str, ok := v.(string); ok && str != "" {
			s += " " + str
		}
	}
	return s
}

// FromSource rebuilds a Document from an index hit source, re-expanding the
// raw locations into the named GeoPoint shape.
func FromSource(src map[string]any) *Document {
	d := &Document{
		ID:          str(src["id"]),
		OwnerID:     str(src["owner_id"]),
		TypeID:      str(src["type_id"]),
		Active:      boolean(src["active"]),
		Validated:   boolean(src["validated"]),
		Price:       num(src["price"]),
		Quantity:    int(num(src["quantity"])),
		Currency:    str(src["currency"]),
		Name:        str(src["name"]),
		Description: str(src["description"]),
	}
	if t, err := time.Parse(time.RFC3339, str(src["created_at"])); err == nil {
		d.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, str(src["updated_at"])); err == nil {
		d.UpdatedAt = t
	}
	if ids, ok := src["category_ids"].([]any); ok {
		for _, id := range ids {
			d.CategoryIDs = append(d.CategoryIDs, str(id))
		}
	}
	if attrs, ok := src["attributes"].(map[string]any); ok {
		d.Attributes = attrs
	}
	if locs, ok := src["locations"].(map[string]any); ok {
		d.Locations = make(map[string]GeoPoint, len(locs))
		for name, v := range locs {
			if pair, ok := v.(map[string]any); ok {
				d.Locations[name] = GeoPoint{
					Latitude:  num(pair["latitude"]),
					Longitude: num(pair["longitude"]),
				}
			}
		}
	}
	return d
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}
