/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package host declares the narrow interfaces through which the library talks to the
// host 3D application: scene-graph queries and mutations, render invocation and
// user dialogs. Every method must be called from the host's main context.
package host

import "context"

// Kind classifies a scene-graph location.
type Kind int

const (
	KindUnrecognized    Kind = iota
	KindContainer            // generic object-level container
	KindShaderNodes          // inside a network of shader nodes (e.g. a builder)
	KindShaderNetwork        // a shader-network container (material context)
	KindStage                // USD stage-like container
	KindMaterialLibrary      // USD material library node
	KindGeometry             // generic geometry container
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindShaderNodes:
		return "shader-nodes"
	case KindShaderNetwork:
		return "shader-network"
	case KindStage:
		return "usd-stage"
	case KindMaterialLibrary:
		return "usd-material-library"
	case KindGeometry:
		return "geometry"
	default:
		return "unrecognized"
	}
}

// Location is a place in the scene graph.
type Location struct {
	Path string
	Kind Kind
}

// NodeRef identifies a node. Type is the host node type name.
type NodeRef struct {
	Path string
	Name string
	Type string
}

// Location returns the node seen as a location of kind k.
func (n NodeRef) Location(k Kind) Location { return Location{Path: n.Path, Kind: k} }

// Param is one parameter value as reported by the host. Value holds float64, int,
// string, bool or []float64.
type Param struct {
	Name  string
	Value any
}

// ParamTemplate describes a spare parameter to be re-created on a node.
type ParamTemplate struct {
	Name    string
	Label   string
	Kind    string // float, int, string, toggle, vector
	Size    int
	Folder  string
	Default any
}

// Scene is the scene-graph part of the host.
type Scene interface {
	CurrentLocation() Location
	// ShaderRoot is the default shader-network root; StageRoot the USD stage root.
	ShaderRoot() Location
	StageRoot() Location
	SceneRoot() Location
	Parent(loc Location) (Location, bool)
	Children(loc Location) []NodeRef
	KindOf(node NodeRef) Kind

	CreateNode(parent Location, nodeType, name string) (NodeRef, error)
	DestroyNode(node NodeRef) error
	MoveNode(node NodeRef, dest Location) (NodeRef, error)
	CopyNode(node NodeRef, dest Location) (NodeRef, error)

	SetParam(node NodeRef, name string, value any) error
	Params(node NodeRef) ([]Param, error)
	SpareParams(node NodeRef) ([]ParamTemplate, error)
	AddSpareParam(node NodeRef, tpl ParamTemplate) error

	SaveNetworkToFile(node NodeRef, path string) error
	LoadNetworkFromFile(node NodeRef, path string) error
}

// RenderConfig drives one preview render.
type RenderConfig struct {
	Driver   NodeRef // render output node
	Output   string  // image path the renderer writes
	DoneFile string  // sentinel path, for renderers without a native completion signal
	Size     int
}

// Renderer invokes host renders and reports colour-management state.
type Renderer interface {
	// InvokeRender starts a render. A non-nil channel is the renderer's native
	// completion signal and yields the render error, if any. A nil channel means
	// the caller must wait for cfg.DoneFile.
	InvokeRender(ctx context.Context, cfg RenderConfig) (<-chan error, error)
	ColorConfigured() bool
}

// Dialogs are the host's modal user prompts.
type Dialogs interface {
	Confirm(prompt string) bool
	SelectFile(kind string) string
}

// Host bundles every collaborator interface.
type Host interface {
	Scene
	Renderer
	Dialogs
}
