// Package template builds the mappings and analysis settings for an asset
// index generation. The body is a pure function of the document type and the
// tenant's current attribute definitions.
package template

import (
	"fmt"

	"github.com/assetgrid/searchsync/internal/domain/attribute"
)

// elisionArticles feeds the elision filter. The list covers the article
// forms of the supported interface languages.
var elisionArticles = []string{
	"l", "m", "t", "qu", "n", "s", "j", "d", "c",
	"jusqu", "quoiqu", "lorsqu", "puisqu",
}

// Build returns the full index creation body for a document type.
func Build(docType string, attrs []attribute.Definition) (map[string]any, error) {
	props := builtinProperties()

	attrProps := make(map[string]any, len(attrs))
	for _, def := range attrs {
		ft, err := attribute.FieldType(def.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", def.Name, err)
		}
		attrProps[def.Name] = attributeMapping(ft)
	}
	props["attributes"] = map[string]any{"properties": attrProps}

	return map[string]any{
		"settings": settings(),
		"mappings": map[string]any{
			"_meta":      map[string]any{"doc_type": docType},
			"properties": props,
		},
	}, nil
}

// AttributeMapping returns the property body for a single attribute,
// for additive put-mapping updates outside a full rebuild.
func AttributeMapping(t attribute.Type) (map[string]any, error) {
	ft, err := attribute.FieldType(t)
	if err != nil {
		return nil, err
	}
	return attributeMapping(ft), nil
}

// attributeMapping maps a resolved field type to its property body. Text
// attributes get the exact/trigram/shingle sub-fields so they participate in
// the same relevance clauses as the built-in text fields.
func attributeMapping(fieldType string) map[string]any {
	if fieldType != "text" {
		return map[string]any{"type": fieldType}
	}
	return textMapping(false)
}

func builtinProperties() map[string]any {
	return map[string]any{
		"id":           map[string]any{"type": "keyword"},
		"created_at":   map[string]any{"type": "date"},
		"updated_at":   map[string]any{"type": "date"},
		"owner_id":     map[string]any{"type": "keyword"},
		"category_ids": map[string]any{"type": "keyword"},
		"type_id":      map[string]any{"type": "keyword"},
		"active":       map[string]any{"type": "boolean"},
		"validated":    map[string]any{"type": "boolean"},
		"price":        map[string]any{"type": "float"},
		"quantity":     map[string]any{"type": "integer"},
		"currency":     map[string]any{"type": "keyword"},
		"name":         textMapping(true),
		"description":  textMapping(false),
		"all_content":  textMapping(false),
		// geo_point fields cannot carry named sub-properties, so the named
		// pairs live in a parallel raw object.
		"geo":       map[string]any{"type": "geo_point"},
		"locations": map[string]any{"type": "object", "enabled": false},
	}
}

// textMapping is the analyzed text field shape: ICU-normalized main field
// with exact, trigram and shingle sub-fields, plus edge n-grams for the
// autocomplete-capable fields.
func textMapping(autocomplete bool) map[string]any {
	fields := map[string]any{
		"exact": map[string]any{
			"type": "keyword",
		},
		"trigram": map[string]any{
			"type":     "text",
			"analyzer": "trigram",
		},
		"shingles": map[string]any{
			"type":     "text",
			"analyzer": "shingle_text",
		},
	}
	if autocomplete {
		fields["autocomplete"] = map[string]any{
			"type":            "text",
			"analyzer":        "edge_autocomplete",
			"search_analyzer": "icu_text",
		}
	}
	return map[string]any{
		"type":     "text",
		"analyzer": "icu_text",
		"fields":   fields,
	}
}

func settings() map[string]any {
	return map[string]any{
		"analysis": map[string]any{
			"analyzer": map[string]any{
				"icu_text": map[string]any{
					"type":      "custom",
					"tokenizer": "icu_tokenizer",
					"filter":    []string{"elision_articles", "icu_folding", "lowercase"},
				},
				// Trigrams keep compound words searchable by their parts.
				"trigram": map[string]any{
					"type":      "custom",
					"tokenizer": "trigram_tokenizer",
					"filter":    []string{"icu_folding", "lowercase"},
				},
				"edge_autocomplete": map[string]any{
					"type":      "custom",
					"tokenizer": "edge_tokenizer",
					"filter":    []string{"icu_folding", "lowercase"},
				},
				"shingle_text": map[string]any{
					"type":      "custom",
					"tokenizer": "icu_tokenizer",
					"filter":    []string{"elision_articles", "icu_folding", "lowercase", "shingle_2_3"},
				},
			},
			"tokenizer": map[string]any{
				"trigram_tokenizer": map[string]any{
					"type":        "ngram",
					"min_gram":    3,
					"max_gram":    3,
					"token_chars": []string{"letter", "digit"},
				},
				"edge_tokenizer": map[string]any{
					"type":        "edge_ngram",
					"min_gram":    2,
					"max_gram":    20,
					"token_chars": []string{"letter", "digit"},
				},
			},
			"filter": map[string]any{
				"elision_articles": map[string]any{
					"type":          "elision",
					"articles":      elisionArticles,
					"articles_case": true,
				},
				"shingle_2_3": map[string]any{
					"type":             "shingle",
					"min_shingle_size": 2,
					"max_shingle_size": 3,
				},
			},
		},
	}
}
