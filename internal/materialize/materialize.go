/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package materialize rebuilds catalog assets as renderer-specific node subtrees in
// the live scene graph, and serializes node subtrees back into asset artifacts.
// Every call must run on the host's main context.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"matlib/internal/domain"
	"matlib/internal/host"
	"matlib/internal/iface"
	applog "matlib/internal/log"
	"matlib/internal/resolve"
	"matlib/internal/storage"
)

// wrapperName is given to the temporary subnet around leaf shaders.
const wrapperName = "matlib_wrapper"

// Paths locates asset artifacts. *storage.Store implements it.
type Paths interface {
	NetworkPath(id string) string
	InterfacePath(id string) string
	EnsureDirs() error
}

// Previewer renders the preview image of a freshly saved asset.
type Previewer interface {
	Render(ctx context.Context, a domain.Asset, material host.NodeRef) error
}

// Materializer implements both directions between artifacts and the scene graph.
type Materializer struct {
	host    host.Host
	paths   Paths
	preview Previewer
	log     *slog.Logger
}

// New returns a materializer. preview may be nil, then no previews are rendered.
func New(h host.Host, paths Paths, preview Previewer) *Materializer {
	return &Materializer{host: h, paths: paths, preview: preview, log: applog.WithComponent("materialize")}
}

// SetPreviewer replaces the preview renderer.
func (m *Materializer) SetPreviewer(p Previewer) { m.preview = p }

// Result describes an imported asset.
type Result struct {
	Node host.NodeRef
	Plan resolve.Plan
	// Point is the insertion point node when the import had to create it.
	Point *host.NodeRef
}

// Import materializes a below the location from. An asset whose renderer is not
// in the supported set fails with domain.ErrUnsupportedNodeKind before any node is
// created. On any later failure the nodes created so far are destroyed again.
func (m *Materializer) Import(ctx context.Context, a domain.Asset, from host.Location) (res Result, err error) {
	l := applog.WithAsset(applog.WithOperation(m.log, "import"), a.ID)
	if !a.Renderer.Valid() {
		return Result{}, fmt.Errorf("import %s: renderer %q: %w", a.ID, a.Renderer, domain.ErrUnsupportedNodeKind)
	}
	netPath := m.paths.NetworkPath(a.ID)
	if _, err := os.Stat(netPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("import %s: network %s: %w", a.ID, netPath, domain.ErrNotFound)
		}
		return Result{}, domain.IOError("stat network", err)
	}
	var doc *iface.Document
	if d, err := iface.Read(m.paths.InterfacePath(a.ID)); err == nil {
		doc = &d
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Result{}, fmt.Errorf("import %s: %w", a.ID, err)
	}

	plan, err := resolve.Resolve(m.host, from, a)
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", a.ID, err)
	}
	l = l.With(slog.String("rule", plan.Rule.String()), slog.String("strategy", plan.Strategy.String()))

	var created []host.NodeRef
	defer func() {
		if err == nil {
			return
		}
		for i := len(created) - 1; i >= 0; i-- {
			if derr := m.host.DestroyNode(created[i]); derr != nil {
				l.Warn("cleanup failed", slog.String("node", created[i].Path), slog.Any("err", derr))
			}
		}
	}()

	point := plan.Point
	if plan.Create {
		n, err := m.host.CreateNode(plan.Parent, plan.CreateType, "")
		if err != nil {
			return Result{}, fmt.Errorf("create insertion point: %w", err)
		}
		created = append(created, n)
		point = n.Location(m.host.KindOf(n))
		res.Point = &n
	}
	res.Plan = plan

	var node host.NodeRef
	switch plan.Strategy {
	case resolve.Leaf:
		node, err = m.importLeaf(point, netPath, &created)
	default:
		node, err = m.importBuilder(a, plan, point, netPath, doc, &created)
	}
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", a.ID, err)
	}
	res.Node = node
	l.Info("asset imported", slog.String("node", node.Path))
	return res, nil
}

func (m *Materializer) importBuilder(a domain.Asset, plan resolve.Plan, point host.Location, netPath string, doc *iface.Document, created *[]host.NodeRef) (host.NodeRef, error) {
	typ, err := domain.BuilderType(a.Renderer, plan.USD)
	if err != nil {
		return host.NodeRef{}, err
	}
	staging := point
	if plan.Staging.Path != "" {
		staging = plan.Staging
	}
	node, err := m.host.CreateNode(staging, typ, NodeName(a.Name))
	if err != nil {
		return host.NodeRef{}, fmt.Errorf("create builder: %w", err)
	}
	*created = append(*created, node)
	if doc != nil {
		if err := iface.Replay(m.host, node, *doc); err != nil {
			return host.NodeRef{}, fmt.Errorf("replay interface: %w", err)
		}
	}
	for _, c := range m.host.Children(node.Location(m.host.KindOf(node))) {
		if err := m.host.DestroyNode(c); err != nil {
			return host.NodeRef{}, fmt.Errorf("clear builder: %w", err)
		}
	}
	if err := m.host.LoadNetworkFromFile(node, netPath); err != nil {
		return host.NodeRef{}, domain.IOError("load network", err)
	}
	if staging.Path == point.Path {
		return node, nil
	}
	moved, err := m.host.MoveNode(node, point)
	if err != nil {
		return host.NodeRef{}, fmt.Errorf("move builder: %w", err)
	}
	(*created)[len(*created)-1] = moved
	return moved, nil
}

func (m *Materializer) importLeaf(point host.Location, netPath string, created *[]host.NodeRef) (host.NodeRef, error) {
	wrapper, err := m.host.CreateNode(point, domain.TypeSubnet, wrapperName)
	if err != nil {
		return host.NodeRef{}, fmt.Errorf("create wrapper: %w", err)
	}
	*created = append(*created, wrapper)
	if err := m.host.LoadNetworkFromFile(wrapper, netPath); err != nil {
		return host.NodeRef{}, domain.IOError("load network", err)
	}
	children := m.host.Children(wrapper.Location(m.host.KindOf(wrapper)))
	if len(children) == 0 {
		return host.NodeRef{}, fmt.Errorf("network %s holds no shader: %w", netPath, domain.ErrCorrupt)
	}
	leaf := children[0]
	for _, c := range children {
		if c.Type == domain.TypeMantraLeaf {
			leaf = c
			break
		}
	}
	moved, err := m.host.MoveNode(leaf, point)
	if err != nil {
		return host.NodeRef{}, fmt.Errorf("extract leaf: %w", err)
	}
	*created = append(*created, moved)
	if err := m.host.DestroyNode(wrapper); err != nil {
		return host.NodeRef{}, fmt.Errorf("discard wrapper: %w", err)
	}
	// the wrapper is gone; keep only the leaf for cleanup
	*created = (*created)[:len(*created)-2]
	*created = append(*created, moved)
	return moved, nil
}

// SaveOptions control the save direction.
type SaveOptions struct {
	// Render requests a preview render after the artifacts are written.
	Render bool
}

// Save writes the network and interface artifacts of node for draft.ID and fills in
// the renderer fields and content hash of the returned asset. It fails before any
// artifact is written when the node type is outside the renderer set
// (domain.ErrUnsupportedNodeKind) or the renderer needs a colour configuration
// that is not set (domain.ErrMissingColorConfig). Preview failures are logged, not
// returned.
func (m *Materializer) Save(ctx context.Context, node host.NodeRef, draft domain.Asset, opts SaveOptions) (domain.Asset, error) {
	l := applog.WithAsset(applog.WithOperation(m.log, "save"), draft.ID).With(slog.String("node", node.Path))
	c, err := domain.Classify(node.Type)
	if err != nil {
		return domain.Asset{}, err
	}
	if c.Renderer.RequiresColorConfig() && !m.host.ColorConfigured() {
		return domain.Asset{}, fmt.Errorf("save %s as %s: %w", node.Path, c.Renderer, domain.ErrMissingColorConfig)
	}
	a := draft.Clone()
	a.Renderer, a.BuilderKind = c.Renderer, c.BuilderKind
	a.USD = c.USD || m.authoredForUSD(node)

	doc, err := iface.Capture(m.host, node, c.Renderer)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("capture interface: %w", err)
	}
	if err := m.paths.EnsureDirs(); err != nil {
		return domain.Asset{}, err
	}
	if err := iface.Write(m.paths.InterfacePath(a.ID), doc); err != nil {
		return domain.Asset{}, err
	}
	netPath := m.paths.NetworkPath(a.ID)
	if c.BuilderKind {
		err = m.host.SaveNetworkToFile(node, netPath)
	} else {
		err = m.saveWrapped(node, netPath)
	}
	if err != nil {
		return domain.Asset{}, domain.IOError("save network", err)
	}
	if a.Hash, err = storage.HashFile(netPath); err != nil {
		return domain.Asset{}, err
	}
	l.Info("artifacts written", slog.String("renderer", string(a.Renderer)), slog.Bool("builder", a.BuilderKind))

	if opts.Render && m.preview != nil {
		if err := m.preview.Render(ctx, a, node); err != nil {
			if errors.Is(err, domain.ErrRenderTimeout) {
				l.Warn("preview render timed out", slog.Any("err", err))
			} else {
				l.Warn("preview render failed", slog.Any("err", err))
			}
		}
	}
	return a, nil
}

// authoredForUSD reports whether node sits below a USD stage or material library.
// Some builder types are shared by both pipelines, so the type alone cannot tell.
func (m *Materializer) authoredForUSD(node host.NodeRef) bool {
	loc := node.Location(m.host.KindOf(node))
	for {
		parent, ok := m.host.Parent(loc)
		if !ok {
			return false
		}
		if parent.Kind == host.KindStage || parent.Kind == host.KindMaterialLibrary {
			return true
		}
		loc = parent
	}
}

// saveWrapped stores a bare leaf shader inside a temporary subnet so that every
// network artifact has the same wrapped form.
func (m *Materializer) saveWrapped(node host.NodeRef, netPath string) error {
	parent, ok := m.host.Parent(node.Location(m.host.KindOf(node)))
	if !ok {
		parent = m.host.ShaderRoot()
	}
	wrapper, err := m.host.CreateNode(parent, domain.TypeSubnet, wrapperName)
	if err != nil {
		return fmt.Errorf("create wrapper: %w", err)
	}
	defer func() {
		if err := m.host.DestroyNode(wrapper); err != nil {
			m.log.Warn("wrapper cleanup failed", slog.String("node", wrapper.Path), slog.Any("err", err))
		}
	}()
	if _, err := m.host.CopyNode(node, wrapper.Location(m.host.KindOf(wrapper))); err != nil {
		return fmt.Errorf("wrap leaf: %w", err)
	}
	return m.host.SaveNetworkToFile(wrapper, netPath)
}

// NodeName turns a display name into a host node name.
func NodeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		return "material"
	}
	if unicode.IsDigit(rune(s[0])) {
		s = "_" + s
	}
	return s
}
