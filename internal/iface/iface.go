/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package iface reads and writes the "<id>.interface" artifact: a versioned tree of
// parameter values and spare parameter templates captured from a material node. It
// is replayed onto a freshly created node by an explicit interpreter (Replay); no
// code is ever executed from the file.
package iface

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"matlib/internal/domain"
	"matlib/internal/host"
)

// FormatVersion is written into every document. Readers reject newer versions.
const FormatVersion = 1

// Kind tags a Value.
type Kind string

const (
	Float  Kind = "float"
	Int    Kind = "int"
	String Kind = "string"
	Toggle Kind = "toggle"
	Vector Kind = "vector"
)

// Value is a tagged union over the parameter kinds.
type Value struct {
	Kind   Kind
	Float  float64
	Int    int64
	String string
	Toggle bool
	Vector []float64
}

type valueJSON struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Kind {
	case Float:
		payload = v.Float
	case Int:
		payload = v.Int
	case String:
		payload = v.String
	case Toggle:
		payload = v.Toggle
	case Vector:
		payload = v.Vector
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.Kind, Value: raw})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(b, &vj); err != nil {
		return err
	}
	out := Value{Kind: vj.Kind}
	var err error
	switch vj.Kind {
	case Float:
		err = json.Unmarshal(vj.Value, &out.Float)
	case Int:
		err = json.Unmarshal(vj.Value, &out.Int)
	case String:
		err = json.Unmarshal(vj.Value, &out.String)
	case Toggle:
		err = json.Unmarshal(vj.Value, &out.Toggle)
	case Vector:
		err = json.Unmarshal(vj.Value, &out.Vector)
	default:
		return fmt.Errorf("unknown value kind %q", vj.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s value: %w", vj.Kind, err)
	}
	*v = out
	return nil
}

// Any converts v back to the Go value passed to host.Scene.SetParam.
func (v Value) Any() any {
	switch v.Kind {
	case Float:
		return v.Float
	case Int:
		return int(v.Int)
	case String:
		return v.String
	case Toggle:
		return v.Toggle
	case Vector:
		return append([]float64(nil), v.Vector...)
	}
	return nil
}

// ErrUnsupportedValue is returned by FromAny for Go types outside the union.
var ErrUnsupportedValue = errors.New("unsupported parameter value")

// FromAny wraps a host parameter value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case float64:
		return Value{Kind: Float, Float: t}, nil
	case float32:
		return Value{Kind: Float, Float: float64(t)}, nil
	case int:
		return Value{Kind: Int, Int: int64(t)}, nil
	case int64:
		return Value{Kind: Int, Int: t}, nil
	case string:
		return Value{Kind: String, String: t}, nil
	case bool:
		return Value{Kind: Toggle, Toggle: t}, nil
	case []float64:
		return Value{Kind: Vector, Vector: append([]float64(nil), t...)}, nil
	case []any:
		vec := make([]float64, len(t))
		for i, e := range t {
			f, ok := e.(float64)
			if !ok {
				return Value{}, fmt.Errorf("%w: vector element %T", ErrUnsupportedValue, e)
			}
			vec[i] = f
		}
		return Value{Kind: Vector, Vector: vec}, nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
}

// Entry is one parameter assignment.
type Entry struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Template is a spare parameter definition.
type Template struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Kind    Kind   `json:"kind"`
	Size    int    `json:"size,omitempty"`
	Folder  string `json:"folder,omitempty"`
	Default *Value `json:"default,omitempty"`
}

// Document is the content of an interface artifact.
type Document struct {
	Version  int             `json:"version"`
	NodeType string          `json:"nodeType"`
	NodeName string          `json:"nodeName"`
	Renderer domain.Renderer `json:"renderer"`
	Spare    []Template      `json:"spare,omitempty"`
	Params   []Entry         `json:"params"`
}

// Capture reads the parameter interface of node from the scene.
func Capture(scene host.Scene, node host.NodeRef, r domain.Renderer) (Document, error) {
	doc := Document{Version: FormatVersion, NodeType: node.Type, NodeName: node.Name, Renderer: r, Params: []Entry{}}
	spares, err := scene.SpareParams(node)
	if err != nil {
		return Document{}, fmt.Errorf("read spare parameters: %w", err)
	}
	for _, s := range spares {
		t := Template{Name: s.Name, Label: s.Label, Kind: Kind(s.Kind), Size: s.Size, Folder: s.Folder}
		if s.Default != nil {
			v, err := FromAny(s.Default)
			if err != nil {
				return Document{}, fmt.Errorf("spare %s default: %w", s.Name, err)
			}
			t.Default = &v
		}
		doc.Spare = append(doc.Spare, t)
	}
	params, err := scene.Params(node)
	if err != nil {
		return Document{}, fmt.Errorf("read parameters: %w", err)
	}
	for _, p := range params {
		v, err := FromAny(p.Value)
		if err != nil {
			return Document{}, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		doc.Params = append(doc.Params, Entry{Name: p.Name, Value: v})
	}
	return doc, nil
}

// Replay re-creates the spare parameters, then assigns every value, in document order.
func Replay(scene host.Scene, node host.NodeRef, doc Document) error {
	for _, t := range doc.Spare {
		tpl := host.ParamTemplate{Name: t.Name, Label: t.Label, Kind: string(t.Kind), Size: t.Size, Folder: t.Folder}
		if t.Default != nil {
			tpl.Default = t.Default.Any()
		}
		if err := scene.AddSpareParam(node, tpl); err != nil {
			return fmt.Errorf("add spare %s: %w", t.Name, err)
		}
	}
	for _, e := range doc.Params {
		if err := scene.SetParam(node, e.Name, e.Value.Any()); err != nil {
			return fmt.Errorf("set %s: %w", e.Name, err)
		}
	}
	return nil
}

// Write stores doc at path.
func Write(path string, doc Document) error {
	if doc.Version == 0 {
		doc.Version = FormatVersion
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode interface: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return domain.IOError("write interface", err)
	}
	return nil
}

// Read loads the document at path. A missing file reports domain.ErrNotFound.
func Read(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, fmt.Errorf("interface %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return Document{}, domain.IOError("read interface", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("interface %s: %w: %v", path, domain.ErrCorrupt, err)
	}
	if doc.Version < 1 || doc.Version > FormatVersion {
		return Document{}, fmt.Errorf("interface %s: unsupported format version %d", path, doc.Version)
	}
	return doc, nil
}
