/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strings"
)

// Renderer is the shading back-end an asset was authored for.
// The set is closed; values read from disk that are not in it are kept verbatim
// so the document round-trips, but they fail Valid.
type Renderer string

const (
	Redshift  Renderer = "Redshift"
	Mantra    Renderer = "Mantra"
	Arnold    Renderer = "Arnold"
	Octane    Renderer = "Octane"
	MaterialX Renderer = "MaterialX"
)

// Renderers lists the supported kinds in display order.
var Renderers = []Renderer{Redshift, Mantra, Arnold, Octane, MaterialX}

// Valid reports whether r belongs to the supported set.
func (r Renderer) Valid() bool {
	switch r {
	case Redshift, Mantra, Arnold, Octane, MaterialX:
		return true
	}
	return false
}

// ParseRenderer matches s case-insensitively against the supported kinds.
func ParseRenderer(s string) (Renderer, error) {
	for _, r := range Renderers {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("renderer %q: %w", s, ErrUnsupportedNodeKind)
}

// Container reports whether assets of this kind always wrap a builder network.
// Mantra assets may also be a single leaf shader, see Asset.BuilderKind.
func (r Renderer) Container() bool {
	switch r {
	case Redshift, Arnold, Octane, MaterialX:
		return true
	}
	return false
}

// RequiresColorConfig reports whether a global colour-management config must be set
// before assets of this kind can be saved or rendered.
func (r Renderer) RequiresColorConfig() bool {
	switch r {
	case Arnold, MaterialX:
		return true
	}
	return false
}

// NativeCompletion reports whether the host render call for r blocks until the
// image is written. The others are detected through the sentinel done-file.
func (r Renderer) NativeCompletion() bool {
	switch r {
	case Mantra, Arnold, MaterialX:
		return true
	}
	return false
}

// Node type names used by the host application.
const (
	TypeSubnet        = "subnet"
	TypeShaderNetwork = "matnet"
	TypeMaterialLib   = "materiallibrary"
	TypeMantraBuilder = "materialbuilder"
	TypeMantraLeaf    = "principledshader::2.0"
)

type builderTypes struct {
	shader string // builder inside a shader network
	usd    string // builder inside a USD material library
	rop    string
}

var builders = map[Renderer]builderTypes{
	Redshift:  {shader: "redshift_vopnet", usd: "redshift_usd_material", rop: "Redshift_ROP"},
	Mantra:    {shader: TypeMantraBuilder, usd: TypeMantraBuilder, rop: "ifd"},
	Arnold:    {shader: "arnold_materialbuilder", usd: "arnold_materialbuilder", rop: "arnold"},
	Octane:    {shader: "octane_vopnet", usd: "octane_solaris_material_builder", rop: "Octane_ROP"},
	MaterialX: {shader: "mtlxmaterialbuilder", usd: "karmamaterial", rop: "karma"},
}

// BuilderType returns the builder node type for r in a shader network (usd=false)
// or in a USD material library (usd=true).
func BuilderType(r Renderer, usd bool) (string, error) {
	b, ok := builders[r]
	if !ok {
		return "", fmt.Errorf("builder for %q: %w", r, ErrUnsupportedNodeKind)
	}
	if usd {
		return b.usd, nil
	}
	return b.shader, nil
}

// RopType returns the render output node type driving a preview render for r.
func RopType(r Renderer) (string, error) {
	b, ok := builders[r]
	if !ok {
		return "", fmt.Errorf("render driver for %q: %w", r, ErrUnsupportedNodeKind)
	}
	return b.rop, nil
}

// Classification is the result of mapping a host node type onto a renderer kind.
type Classification struct {
	Renderer    Renderer
	BuilderKind bool
	USD         bool // the type only exists inside USD material libraries
}

// Classify maps a host node type name onto the closed renderer set.
func Classify(nodeType string) (Classification, error) {
	if nodeType == TypeMantraLeaf {
		return Classification{Renderer: Mantra}, nil
	}
	for _, r := range Renderers {
		b := builders[r]
		switch nodeType {
		case b.shader:
			return Classification{Renderer: r, BuilderKind: true}, nil
		case b.usd:
			return Classification{Renderer: r, BuilderKind: true, USD: true}, nil
		}
	}
	return Classification{}, fmt.Errorf("node type %q: %w", nodeType, ErrUnsupportedNodeKind)
}
