package search

import (
	"fmt"
	"strings"

	"github.com/assetgrid/searchsync/internal/domain"
	"github.com/assetgrid/searchsync/internal/domain/attribute"
	"github.com/assetgrid/searchsync/internal/domain/search/request"
)

// trigramViableLen is the minimum query length that produces trigrams.
// Shorter queries fall back to edge n-gram autocomplete matching.
const trigramViableLen = 3

// Compile translates a normalized request into the native query body. The
// body carries query, sort and size; the assembler adds search_after between
// rounds. A leading availability sort step is intercepted by the assembler
// and never reaches the native sort.
func Compile(req *request.Request, defs map[string]attribute.Definition) (map[string]any, error) {
	filters, err := compileFilters(req, defs)
	if err != nil {
		return nil, err
	}

	boolQuery := map[string]any{"filter": filters}
	if clause := relevanceClause(req); clause != nil {
		boolQuery["must"] = []any{clause}
		if boosts := boostClauses(req); len(boosts) > 0 {
			boolQuery["should"] = boosts
		}
	}

	sort, err := compileSort(req, defs)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"sort":  sort,
	}, nil
}

// relevanceClause builds the primary text match: a disjunction of a
// high-ratio trigram match (robust to compound words) and a per-token fuzzy
// match, each conjoined with the shingle clause for multi-token queries.
func relevanceClause(req *request.Request) map[string]any {
	if len(req.SimilarToIDs) > 0 {
		return moreLikeThisClause(req.SimilarToIDs)
	}
	if req.Query == "" {
		return nil
	}

	var shingle map[string]any
	if len(strings.Fields(req.Query)) > 1 {
		shingle = map[string]any{
			"match": map[string]any{
				"all_content.shingles": map[string]any{
					"query":                req.Query,
					"minimum_should_match": "80%",
				},
			},
		}
	}

	trigram := map[string]any{
		"match": map[string]any{
			"all_content.trigram": map[string]any{
				"query":                req.Query,
				"minimum_should_match": "80%",
			},
		},
	}
	fuzzy := map[string]any{
		"match": map[string]any{
			"all_content": map[string]any{
				"query":                req.Query,
				"fuzziness":            "AUTO",
				"minimum_should_match": "3<75%",
			},
		},
	}

	branches := []any{
		conjoin(trigram, shingle),
		conjoin(fuzzy, shingle),
	}
	if len(req.Query) < trigramViableLen {
		branches = append(branches, map[string]any{
			"match": map[string]any{
				"name.autocomplete": map[string]any{"query": req.Query},
			},
		})
	}

	return map[string]any{
		"bool": map[string]any{
			"should":               branches,
			"minimum_should_match": 1,
		},
	}
}

// boostClauses reward shingle and trigram-shingle matches, with extra weight
// on the name field.
func boostClauses(req *request.Request) []any {
	if req.Query == "" {
		return nil
	}
	return []any{
		map[string]any{"match": map[string]any{
			"name.shingles": map[string]any{"query": req.Query, "boost": 4.0},
		}},
		map[string]any{"match": map[string]any{
			"all_content.shingles": map[string]any{"query": req.Query, "boost": 2.0},
		}},
		map[string]any{"match": map[string]any{
			"name.trigram": map[string]any{"query": req.Query, "boost": 3.0},
		}},
	}
}

func moreLikeThisClause(ids []string) map[string]any {
	like := make([]any, 0, len(ids))
	for _, id := range ids {
		like = append(like, map[string]any{"_id": id})
	}
	return map[string]any{
		"more_like_this": map[string]any{
			"fields":               []string{"name", "description", "all_content"},
			"like":                 like,
			"min_term_freq":        1,
			"min_word_length":      3,
			"minimum_should_match": "70%",
		},
	}
}

// compileFilters builds the filter context. A raw filter expression
// pre-empts each built-in filter whose field it textually references, so a
// caller-supplied clause on a built-in flag always wins over the default.
func compileFilters(req *request.Request, defs map[string]attribute.Definition) ([]any, error) {
	var filters []any

	raw := req.RawFilter
	if raw != "" {
		filters = append(filters, map[string]any{
			"query_string": map[string]any{"query": raw},
		})
	}
	mentions := func(field string) bool { return strings.Contains(raw, field) }

	if !mentions("active") {
		filters = append(filters, term("active", true))
	}
	if !mentions("validated") {
		filters = append(filters, term("validated", true))
	}
	if len(req.CategoryIDs) > 0 && !mentions("category_ids") {
		filters = append(filters, terms("category_ids", req.CategoryIDs))
	}
	if len(req.TypeIDs) > 0 && !mentions("type_id") {
		filters = append(filters, terms("type_id", req.TypeIDs))
	}

	if req.Geo != nil {
		filters = append(filters, map[string]any{
			"geo_distance": map[string]any{
				"distance": fmt.Sprintf("%.3fkm", req.Geo.RadiusKm),
				"geo": map[string]any{
					"lat": req.Geo.Latitude,
					"lon": req.Geo.Longitude,
				},
			},
		})
	}

	if req.Quantity > 0 {
		filters = append(filters, map[string]any{
			"range": map[string]any{"quantity": map[string]any{"gte": req.Quantity}},
		})
	}

	for name, f := range req.Attributes {
		def, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown attribute %q", domain.ErrInvalidFilter, name)
		}
		clauses, err := attributeClauses(def, f)
		if err != nil {
			return nil, err
		}
		filters = append(filters, clauses...)
	}

	return filters, nil
}

// attributeClauses maps a per-attribute filter to native clauses through an
// exhaustive switch on the declared type. Unknown types are rejected, never
// silently dropped.
func attributeClauses(def attribute.Definition, f request.AttributeFilter) ([]any, error) {
	field := "attributes." + def.Name

	switch def.Type {
	case attribute.Number:
		var clauses []any
		if f.Eq != nil {
			clauses = append(clauses, term(field, f.Eq))
		}
		if r := numberRange(f); r != nil {
			clauses = append(clauses, map[string]any{"range": map[string]any{field: r}})
		}
		return clauses, nil

	case attribute.Boolean:
		if f.Eq == nil {
			return nil, nil
		}
		return []any{term(field, f.Eq)}, nil

	case attribute.Text:
		if f.Eq == nil {
			return nil, nil
		}
		return []any{term(field+".exact", f.Eq)}, nil

	case attribute.Select:
		values := f.In
		if len(values) == 0 && f.Eq != nil {
			if s, ok := f.Eq.(string); ok {
				values = []string{s}
			}
		}
		if len(values) == 0 {
			return nil, nil
		}
		return []any{terms(field, values)}, nil

	case attribute.Tags:
		values := f.All
		if len(values) == 0 && f.Eq != nil {
			if s, ok := f.Eq.(string); ok {
				values = []string{s}
			}
		}
		// Conjunctive membership: one term clause per tag.
		clauses := make([]any, 0, len(values))
		for _, v := range values {
			clauses = append(clauses, term(field, v))
		}
		return clauses, nil

	default:
		return nil, fmt.Errorf("%w: attribute %q has unknown type %q", domain.ErrInvalidAttribute, def.Name, def.Type)
	}
}

// compileSort translates the sort specification. The leading availability
// step, already validated to appear first or not at all, is skipped here:
// the assembler realizes it by buffering. Missing values sort last.
func compileSort(req *request.Request, defs map[string]attribute.Definition) ([]any, error) {
	steps := req.Sort
	if len(steps) > 0 && steps[0].Field == request.SortAvailability {
		steps = steps[1:]
	}

	if len(steps) == 0 {
		return []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"created_at": map[string]any{"order": "desc"}},
		}, nil
	}

	sort := make([]any, 0, len(steps))
	for _, step := range steps {
		field, scored, err := sortField(step.Field, defs)
		if err != nil {
			return nil, err
		}
		order := "asc"
		if step.Desc {
			order = "desc"
		}
		if scored {
			sort = append(sort, map[string]any{field: map[string]any{"order": order}})
			continue
		}
		sort = append(sort, map[string]any{field: map[string]any{
			"order":   order,
			"missing": "_last",
		}})
	}
	return sort, nil
}

func sortField(name string, defs map[string]attribute.Definition) (field string, scored bool, err error) {
	switch name {
	case request.SortRelevance:
		return "_score", true, nil
	case request.SortCreatedAt:
		return "created_at", false, nil
	case request.SortUpdatedAt:
		return "updated_at", false, nil
	case request.SortName:
		return "name.exact", false, nil
	case request.SortPrice:
		return "price", false, nil
	}

	def, ok := defs[name]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown sort target %q", domain.ErrInvalidSort, name)
	}
	field = "attributes." + def.Name
	if def.Type == attribute.Text {
		field += ".exact"
	}
	return field, false, nil
}

func numberRange(f request.AttributeFilter) map[string]any {
	r := map[string]any{}
	if f.Gt != nil {
		r["gt"] = *f.Gt
	}
	if f.Gte != nil {
		r["gte"] = *f.Gte
	}
	if f.Lt != nil {
		r["lt"] = *f.Lt
	}
	if f.Lte != nil {
		r["lte"] = *f.Lte
	}
	if len(r) == 0 {
		return nil
	}
	return r
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func terms(field string, values []string) map[string]any {
	return map[string]any{"terms": map[string]any{field: values}}
}
