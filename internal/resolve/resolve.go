/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package resolve decides where and how an asset is materialized in the live scene
// graph. Decide is the pure decision table over location kinds; Resolve applies it
// to a concrete scene, walking up the graph until a rule matches.
package resolve

import (
	"fmt"

	"matlib/internal/domain"
	"matlib/internal/host"
)

// Rule names the decision rule that produced a plan.
type Rule int

const (
	RuleNone            Rule = iota
	RuleMaterialLibrary      // stage or material library: use or create a material library
	RuleUSDOverride          // shader root + USD asset: new material library under the stage root
	RuleShaderNetwork        // already a shader network
	RuleCreateNetwork        // generic container: use or create a shader network child
	RuleWalkUp               // anything else: retry on the parent
)

func (r Rule) String() string {
	switch r {
	case RuleMaterialLibrary:
		return "material-library"
	case RuleUSDOverride:
		return "usd-override"
	case RuleShaderNetwork:
		return "shader-network"
	case RuleCreateNetwork:
		return "create-network"
	case RuleWalkUp:
		return "walk-up"
	default:
		return "none"
	}
}

// Strategy is how the asset's nodes are constructed.
type Strategy int

const (
	// Builder creates a builder node, replays the interface and loads the network into it.
	Builder Strategy = iota
	// Leaf loads into a temporary wrapper and extracts the single shader node.
	Leaf
)

func (s Strategy) String() string {
	if s == Leaf {
		return "leaf"
	}
	return "builder"
}

// Decision is the outcome of one table lookup.
type Decision struct {
	Rule Rule
	// PointKind is the kind of the insertion point, KindUnrecognized for RuleWalkUp.
	PointKind host.Kind
	Strategy  Strategy
}

// StrategyFor returns the construction strategy for an asset.
func StrategyFor(r domain.Renderer, builderKind bool) Strategy {
	if !r.Container() && !builderKind {
		return Leaf
	}
	return Builder
}

// Decide applies the decision rules, first match wins, to a single location.
// isShaderRoot tells whether the location is the host's default shader root.
func Decide(kind host.Kind, isShaderRoot bool, r domain.Renderer, builderKind, usd bool) (Decision, error) {
	if !r.Valid() {
		return Decision{}, fmt.Errorf("renderer %q: %w", r, domain.ErrUnsupportedNodeKind)
	}
	d := Decision{Strategy: StrategyFor(r, builderKind)}
	switch {
	case kind == host.KindStage || kind == host.KindMaterialLibrary:
		d.Rule, d.PointKind = RuleMaterialLibrary, host.KindMaterialLibrary
	case isShaderRoot && usd:
		d.Rule, d.PointKind = RuleUSDOverride, host.KindMaterialLibrary
	case kind == host.KindShaderNetwork:
		d.Rule, d.PointKind = RuleShaderNetwork, host.KindShaderNetwork
	case kind == host.KindContainer || kind == host.KindGeometry:
		d.Rule, d.PointKind = RuleCreateNetwork, host.KindShaderNetwork
	default:
		d.Rule, d.PointKind = RuleWalkUp, host.KindUnrecognized
	}
	return d, nil
}

// Plan is a resolved placement. When Create is set the insertion point does not
// exist yet and must be created as a CreateType node below Parent.
type Plan struct {
	Decision
	// Anchor is the location the matching rule was applied to.
	Anchor host.Location
	// Point is the existing insertion point; empty when Create is set.
	Point      host.Location
	Create     bool
	CreateType string
	Parent     host.Location
	// Staging is where the builder is assembled before it is moved into a material
	// library. Empty means assemble in place.
	Staging host.Location
	// USD selects the builder flavour used inside material libraries.
	USD bool
	// Hops counts walk-up steps taken.
	Hops int
}

// maxHops bounds the walk up the graph.
const maxHops = 64

// Resolve computes the placement of an asset starting at from. It only inspects
// the scene; nothing is created.
func Resolve(scene host.Scene, from host.Location, a domain.Asset) (Plan, error) {
	root := scene.ShaderRoot()
	loc := from
	for hops := 0; hops <= maxHops; hops++ {
		d, err := Decide(loc.Kind, loc.Path == root.Path, a.Renderer, a.BuilderKind, a.USD)
		if err != nil {
			return Plan{}, err
		}
		p := Plan{Decision: d, Anchor: loc, Hops: hops}
		switch d.Rule {
		case RuleMaterialLibrary:
			if loc.Kind == host.KindMaterialLibrary {
				p.Point = loc
			} else if lib, ok := childOfKind(scene, loc, host.KindMaterialLibrary); ok {
				p.Point = lib
			} else {
				p.Create, p.CreateType, p.Parent = true, domain.TypeMaterialLib, loc
			}
		case RuleUSDOverride:
			p.Create, p.CreateType, p.Parent = true, domain.TypeMaterialLib, scene.StageRoot()
		case RuleShaderNetwork:
			p.Point = loc
		case RuleCreateNetwork:
			if net, ok := childOfKind(scene, loc, host.KindShaderNetwork); ok {
				p.Point = net
			} else {
				p.Create, p.CreateType, p.Parent = true, domain.TypeShaderNetwork, loc
			}
		case RuleWalkUp:
			parent, ok := scene.Parent(loc)
			if !ok {
				// top of the graph without a match: the shader root always qualifies
				loc = root
				continue
			}
			loc = parent
			continue
		}
		p.USD = d.PointKind == host.KindMaterialLibrary
		if p.USD {
			p.Staging = root
		}
		return p, nil
	}
	return Plan{}, fmt.Errorf("no insertion point above %s", from.Path)
}

func childOfKind(scene host.Scene, loc host.Location, k host.Kind) (host.Location, bool) {
	for _, c := range scene.Children(loc) {
		if scene.KindOf(c) == k {
			return c.Location(k), true
		}
	}
	return host.Location{}, false
}
