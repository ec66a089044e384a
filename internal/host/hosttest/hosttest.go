/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package hosttest provides an in-memory scene graph implementing host.Host for
// tests and headless runs. Networks are saved to disk as JSON so that save and
// load round-trip through real files.
package hosttest

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"matlib/internal/domain"
	"matlib/internal/host"
)

// Render behaviours.
type Behavior int

const (
	// ByDriver signals natively for drivers of renderers with a native completion
	// signal and uses the sentinel otherwise.
	ByDriver Behavior = iota
	Signal
	Sentinel
	Hang
)

// Root paths created by New.
const (
	ObjRoot   = "/obj"
	MatRoot   = "/mat"
	StageRoot = "/stage"
)

type node struct {
	ref      host.NodeRef
	kind     host.Kind
	params   map[string]any
	spare    []host.ParamTemplate
	children []string
}

// Host is a fake host application. Exported fields configure behaviour; they may be
// changed between calls but not concurrently with them.
type Host struct {
	mu    sync.Mutex
	nodes map[string]*node

	Current       host.Location
	Colour        bool
	Render        Behavior
	RenderDelay   time.Duration
	RenderErr     error
	ConfirmAnswer bool
	Selected      string

	renders []host.RenderConfig
	prompts []string
}

// New returns a host with /obj, /mat and /stage roots; the current location is /mat.
func New() *Host {
	h := &Host{nodes: map[string]*node{}, Colour: true, ConfirmAnswer: true}
	h.nodes["/"] = &node{ref: host.NodeRef{Path: "/", Name: "/"}, kind: host.KindUnrecognized, params: map[string]any{}}
	h.addRoot(ObjRoot, "obj", host.KindContainer)
	h.addRoot(MatRoot, "mat", host.KindShaderNetwork)
	h.addRoot(StageRoot, "stage", host.KindStage)
	h.Current = host.Location{Path: MatRoot, Kind: host.KindShaderNetwork}
	return h
}

func (h *Host) addRoot(p, typ string, k host.Kind) {
	h.nodes[p] = &node{ref: host.NodeRef{Path: p, Name: path.Base(p), Type: typ}, kind: k, params: map[string]any{}}
	h.nodes["/"].children = append(h.nodes["/"].children, p)
}

func (h *Host) CurrentLocation() host.Location { return h.Current }
func (h *Host) ShaderRoot() host.Location      { return host.Location{Path: MatRoot, Kind: host.KindShaderNetwork} }
func (h *Host) StageRoot() host.Location       { return host.Location{Path: StageRoot, Kind: host.KindStage} }
func (h *Host) SceneRoot() host.Location       { return host.Location{Path: ObjRoot, Kind: host.KindContainer} }

func (h *Host) Parent(loc host.Location) (host.Location, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if loc.Path == "/" || loc.Path == "" {
		return host.Location{}, false
	}
	pp := path.Dir(loc.Path)
	if pp == "/" {
		return host.Location{}, false
	}
	n, ok := h.nodes[pp]
	if !ok {
		return host.Location{}, false
	}
	return host.Location{Path: pp, Kind: n.kind}, true
}

func (h *Host) Children(loc host.Location) []host.NodeRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[loc.Path]
	if !ok {
		return nil
	}
	out := make([]host.NodeRef, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, h.nodes[c].ref)
	}
	return out
}

func (h *Host) KindOf(ref host.NodeRef) host.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[ref.Path]; ok {
		return n.kind
	}
	return host.KindUnrecognized
}

func (h *Host) CreateNode(parent host.Location, nodeType, name string) (host.NodeRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createLocked(parent.Path, nodeType, name, true)
}

func (h *Host) createLocked(parentPath, nodeType, name string, defaults bool) (host.NodeRef, error) {
	p, ok := h.nodes[parentPath]
	if !ok {
		return host.NodeRef{}, fmt.Errorf("parent %s does not exist", parentPath)
	}
	if name == "" {
		name = strings.NewReplacer(":", "_", ".", "_").Replace(nodeType) + "1"
	}
	name = h.uniqueLocked(parentPath, name)
	full := path.Join(parentPath, name)
	n := &node{
		ref:    host.NodeRef{Path: full, Name: name, Type: nodeType},
		kind:   kindFor(p.kind, nodeType),
		params: map[string]any{},
	}
	h.nodes[full] = n
	p.children = append(p.children, full)
	if defaults && isBuilder(nodeType) {
		if _, err := h.createLocked(full, "output", "default_output", false); err != nil {
			return host.NodeRef{}, err
		}
	}
	return n.ref, nil
}

func (h *Host) uniqueLocked(parentPath, name string) string {
	if _, taken := h.nodes[path.Join(parentPath, name)]; !taken {
		return name
	}
	base := strings.TrimRight(name, "0123456789")
	for i := 1; ; i++ {
		cand := base + strconv.Itoa(i)
		if _, taken := h.nodes[path.Join(parentPath, cand)]; !taken {
			return cand
		}
	}
}

func (h *Host) DestroyNode(ref host.NodeRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[ref.Path]; !ok {
		return fmt.Errorf("node %s does not exist", ref.Path)
	}
	h.detachLocked(ref.Path)
	h.deleteLocked(ref.Path)
	return nil
}

func (h *Host) detachLocked(p string) {
	if parent, ok := h.nodes[path.Dir(p)]; ok {
		parent.children = slices.DeleteFunc(parent.children, func(c string) bool { return c == p })
	}
}

func (h *Host) deleteLocked(p string) {
	n := h.nodes[p]
	for _, c := range n.children {
		h.deleteLocked(c)
	}
	delete(h.nodes, p)
}

func (h *Host) MoveNode(ref host.NodeRef, dest host.Location) (host.NodeRef, error) {
	moved, err := h.CopyNode(ref, dest)
	if err != nil {
		return host.NodeRef{}, err
	}
	if err := h.DestroyNode(ref); err != nil {
		return host.NodeRef{}, err
	}
	return moved, nil
}

func (h *Host) CopyNode(ref host.NodeRef, dest host.Location) (host.NodeRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.snapshotLocked(ref.Path)
	if !ok {
		return host.NodeRef{}, fmt.Errorf("node %s does not exist", ref.Path)
	}
	return h.restoreLocked(dest.Path, snap)
}

func (h *Host) SetParam(ref host.NodeRef, name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[ref.Path]
	if !ok {
		return fmt.Errorf("node %s does not exist", ref.Path)
	}
	n.params[name] = value
	return nil
}

func (h *Host) Params(ref host.NodeRef) ([]host.Param, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[ref.Path]
	if !ok {
		return nil, fmt.Errorf("node %s does not exist", ref.Path)
	}
	names := make([]string, 0, len(n.params))
	for k := range n.params {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]host.Param, 0, len(names))
	for _, k := range names {
		out = append(out, host.Param{Name: k, Value: n.params[k]})
	}
	return out, nil
}

// Param returns a single parameter value.
func (h *Host) Param(ref host.NodeRef, name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[ref.Path]
	if !ok {
		return nil, false
	}
	v, ok := n.params[name]
	return v, ok
}

func (h *Host) SpareParams(ref host.NodeRef) ([]host.ParamTemplate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[ref.Path]
	if !ok {
		return nil, fmt.Errorf("node %s does not exist", ref.Path)
	}
	return slices.Clone(n.spare), nil
}

func (h *Host) AddSpareParam(ref host.NodeRef, tpl host.ParamTemplate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[ref.Path]
	if !ok {
		return fmt.Errorf("node %s does not exist", ref.Path)
	}
	n.spare = append(n.spare, tpl)
	if _, set := n.params[tpl.Name]; !set && tpl.Default != nil {
		n.params[tpl.Name] = tpl.Default
	}
	return nil
}

// snapshot is the on-disk form of a node subtree.
type snapshot struct {
	Name     string               `json:"name"`
	Type     string               `json:"type"`
	Params   map[string]any       `json:"params,omitempty"`
	Spare    []host.ParamTemplate `json:"spare,omitempty"`
	Children []snapshot           `json:"children,omitempty"`
}

func (h *Host) snapshotLocked(p string) (snapshot, bool) {
	n, ok := h.nodes[p]
	if !ok {
		return snapshot{}, false
	}
	s := snapshot{Name: n.ref.Name, Type: n.ref.Type, Params: map[string]any{}, Spare: slices.Clone(n.spare)}
	for k, v := range n.params {
		s.Params[k] = v
	}
	for _, c := range n.children {
		cs, _ := h.snapshotLocked(c)
		s.Children = append(s.Children, cs)
	}
	return s, true
}

func (h *Host) restoreLocked(parentPath string, s snapshot) (host.NodeRef, error) {
	ref, err := h.createLocked(parentPath, s.Type, s.Name, false)
	if err != nil {
		return host.NodeRef{}, err
	}
	n := h.nodes[ref.Path]
	for k, v := range s.Params {
		n.params[k] = v
	}
	n.spare = slices.Clone(s.Spare)
	for _, c := range s.Children {
		if _, err := h.restoreLocked(ref.Path, c); err != nil {
			return host.NodeRef{}, err
		}
	}
	return ref, nil
}

// SaveNetworkToFile writes the children of ref as JSON.
func (h *Host) SaveNetworkToFile(ref host.NodeRef, file string) error {
	h.mu.Lock()
	snap, ok := h.snapshotLocked(ref.Path)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("node %s does not exist", ref.Path)
	}
	b, err := json.MarshalIndent(snap.Children, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, b, 0o644)
}

// LoadNetworkFromFile recreates the saved children inside ref.
func (h *Host) LoadNetworkFromFile(ref host.NodeRef, file string) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var children []snapshot
	if err := json.Unmarshal(b, &children); err != nil {
		return fmt.Errorf("parse network %s: %w", file, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[ref.Path]; !ok {
		return fmt.Errorf("node %s does not exist", ref.Path)
	}
	for _, c := range children {
		if _, err := h.restoreLocked(ref.Path, c); err != nil {
			return err
		}
	}
	return nil
}

// InvokeRender writes a solid PNG to cfg.Output according to the configured behaviour.
func (h *Host) InvokeRender(ctx context.Context, cfg host.RenderConfig) (<-chan error, error) {
	h.mu.Lock()
	h.renders = append(h.renders, cfg)
	mode := h.Render
	delay := h.RenderDelay
	rerr := h.RenderErr
	h.mu.Unlock()
	if rerr != nil {
		return nil, rerr
	}
	if mode == ByDriver {
		mode = Sentinel
		if r, ok := rendererOfDriver(cfg.Driver.Type); ok && r.NativeCompletion() {
			mode = Signal
		}
	}
	switch mode {
	case Signal:
		done := make(chan error, 1)
		done <- writeSolidPNG(cfg.Output, cfg.Size)
		close(done)
		return done, nil
	case Sentinel:
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := writeSolidPNG(cfg.Output, cfg.Size); err == nil {
				_ = os.WriteFile(cfg.DoneFile, []byte("done"), 0o644)
			}
		}()
		return nil, nil
	default:
		return nil, nil
	}
}

func (h *Host) ColorConfigured() bool { return h.Colour }

func (h *Host) Confirm(prompt string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts = append(h.prompts, prompt)
	return h.ConfirmAnswer
}

func (h *Host) SelectFile(string) string { return h.Selected }

// Renders returns the render configurations received so far.
func (h *Host) Renders() []host.RenderConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.renders)
}

// Prompts returns the confirmation prompts shown so far.
func (h *Host) Prompts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.prompts)
}

// NodeCount returns the number of nodes in the graph, roots included.
func (h *Host) NodeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// Lookup returns the node at p.
func (h *Host) Lookup(p string) (host.NodeRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[p]
	if !ok {
		return host.NodeRef{}, false
	}
	return n.ref, true
}

// Tree lists every node path below p, sorted.
func (h *Host) Tree(p string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	var walk func(string)
	walk = func(q string) {
		n, ok := h.nodes[q]
		if !ok {
			return
		}
		for _, c := range n.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(p)
	sort.Strings(out)
	return out
}

func rendererOfDriver(ropType string) (domain.Renderer, bool) {
	for _, r := range domain.Renderers {
		if t, err := domain.RopType(r); err == nil && t == ropType {
			return r, true
		}
	}
	return "", false
}

func isBuilder(nodeType string) bool {
	c, err := domain.Classify(nodeType)
	return err == nil && c.BuilderKind
}

func kindFor(parent host.Kind, nodeType string) host.Kind {
	switch nodeType {
	case domain.TypeShaderNetwork:
		return host.KindShaderNetwork
	case domain.TypeMaterialLib:
		return host.KindMaterialLibrary
	case "lopnet":
		return host.KindStage
	case "geo":
		return host.KindGeometry
	}
	switch parent {
	case host.KindShaderNetwork, host.KindShaderNodes, host.KindMaterialLibrary:
		return host.KindShaderNodes
	case host.KindStage:
		return host.KindUnrecognized
	case host.KindGeometry:
		return host.KindUnrecognized
	}
	if nodeType == domain.TypeSubnet {
		return host.KindContainer
	}
	return host.KindUnrecognized
}

func writeSolidPNG(file string, size int) error {
	if size <= 0 {
		size = 64
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 90, B: 40, A: 255})
		}
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
