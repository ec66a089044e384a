/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"matlib/internal/domain"
)

// DocumentSchema is the JSON schema of library.json. Unknown top-level fields are allowed.
const DocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["assets"],
  "properties": {
    "assets": {"type": "array", "items": {"$ref": "#/definitions/asset"}},
    "categories": {"$ref": "#/definitions/vocabulary"},
    "tags": {"$ref": "#/definitions/vocabulary"},
    "thumbsize": {"type": "integer", "minimum": 0},
    "rendersize": {"type": "integer", "minimum": 0},
    "renderOnImport": {"type": "boolean"}
  },
  "definitions": {
    "vocabulary": {"type": ["array", "null"], "items": {"type": "string", "minLength": 1}},
    "asset": {
      "type": "object",
      "required": ["id", "name", "renderer"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "categories": {"type": ["array", "null"], "items": {"type": "string"}},
        "tags": {"type": ["array", "null"], "items": {"type": "string"}},
        "favorite": {"type": "boolean"},
        "renderer": {"type": "string"},
        "builder": {"type": "boolean"},
        "date": {"type": "string"},
        "usd": {"type": "boolean"},
        "hash": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// ValidateDocument checks raw catalog bytes against DocumentSchema. Every failure,
// including malformed JSON, is reported as domain.ErrCorrupt.
func ValidateDocument(b []byte) error {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(DocumentSchema))
	})
	if schemaErr != nil {
		return fmt.Errorf("compile catalog schema: %w", schemaErr)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrCorrupt, strings.Join(msgs, "; "))
	}
	return nil
}
