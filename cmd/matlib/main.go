/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package main provides the matlib CLI.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"matlib/internal/catalog"
	"matlib/internal/config"
	"matlib/internal/crash"
	"matlib/internal/domain"
	"matlib/internal/export"
	"matlib/internal/filter"
	"matlib/internal/library"
	applog "matlib/internal/log"
	"matlib/internal/storage"
	"matlib/internal/thumbnail"
	"matlib/internal/ui"
	"matlib/internal/version"
)

// globals are the persistent flags shared by every command.
type globals struct {
	libDir string
	yes    bool
}

// filterFlags select the assets list and export work on.
type filterFlags struct {
	name, category, tag, favorite, renderer string
	sortKey                                 string
	desc                                    bool
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Name contains (case-insensitive)")
	cmd.Flags().StringVar(&f.category, "category", "", "Exact category")
	cmd.Flags().StringVar(&f.tag, "tag", "", "Tag contains; prefix with = for an exact tag")
	cmd.Flags().StringVar(&f.favorite, "favorite", "", "true or false")
	cmd.Flags().StringVar(&f.renderer, "renderer", "", "Renderer kind")
	cmd.Flags().StringVar(&f.sortKey, "sort", "name", "Sort by name, date or renderer")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "Sort descending")
}

func (f *filterFlags) apply(v *filter.View) error {
	for attr, val := range map[filter.Attribute]string{
		filter.Name: f.name, filter.Category: f.category, filter.Tag: f.tag,
		filter.Favorite: f.favorite, filter.Renderer: f.renderer,
	} {
		if err := v.SetFilter(attr, val); err != nil {
			return err
		}
	}
	key, err := filter.ParseSortKey(f.sortKey)
	if err != nil {
		return err
	}
	v.Key, v.Descending = key, f.desc
	return nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "matlib",
		Short:         "Material library - catalog, tag and render reusable materials",
		Long:          "matlib manages a catalog of reusable material assets: network files, interface descriptions and preview renders, with categories, tags and favourites.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg, _ := config.Load()
			applog.Init(applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, AddSource: cfg.Logging.Source, File: cfg.Logging.File})
			applog.WithComponent("cli").Debug("start", slog.String("cmd", cmd.CommandPath()))
		},
	}
	root.PersistentFlags().StringVar(&g.libDir, "lib", "", "Library directory (default: config, then preferences)")
	root.PersistentFlags().BoolVarP(&g.yes, "yes", "y", false, "Answer yes to confirmations")

	root.AddCommand(
		versionCmd(),
		initCmd(g),
		openCmd(g),
		listCmd(g),
		renameCmd(g),
		tagCmd(g),
		favCmd(g),
		deleteCmd(g),
		rerenderCmd(g),
		vocabCmd(g, "categories"),
		vocabCmd(g, "tags"),
		pruneCmd(g),
		restoreCmd(g),
		exportCmd(g),
		uiCmd(g),
	)
	return root
}

func main() {
	defer crash.Recover(nil)
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "matlib", version.String())
		},
	}
}

// libraryDir resolves the directory without opening it: flag, config, preferences.
func libraryDir(g *globals) (string, error) {
	if g.libDir != "" {
		return filepath.Abs(g.libDir)
	}
	cfg, _ := config.Load()
	if cfg.Library.Dir != "" {
		return cfg.Library.Dir, nil
	}
	prefsPath, err := config.PrefsPath()
	if err != nil {
		return "", err
	}
	p, _ := storage.LoadPreferences(prefsPath)
	if p.Directory == "" {
		return "", errors.New("no library directory: pass --lib or run matlib init <dir>")
	}
	return p.Directory, nil
}

func openLibrary(cmd *cobra.Command, g *globals) (*library.Library, error) {
	cfg, err := config.Load()
	if err != nil {
		applog.WithComponent("cli").Warn("config not loaded, using defaults", slog.Any("err", err))
	}
	dir := cfg.Library.Dir
	if g.libDir != "" {
		if dir, err = filepath.Abs(g.libDir); err != nil {
			return nil, err
		}
	}
	prefsPath, err := config.PrefsPath()
	if err != nil {
		return nil, err
	}
	h := newCLIHost(cmd.InOrStdin(), cmd.OutOrStdout(), g.yes)
	return library.Open(cmd.Context(), h, dir, library.Options{
		PrefsPath:     prefsPath,
		Thumb:         thumbConfig(cfg),
		Workers:       cfg.Thumbnails.Workers,
		Queue:         cfg.Thumbnails.Queue,
		CacheMaxBytes: cfg.Thumbnails.CacheMaxBytes,
	})
}

// withLibrary runs fn on the opened library and closes it afterwards. A panic
// inside fn still gets the catalog saved.
func withLibrary(g *globals, fn func(cmd *cobra.Command, args []string, lib *library.Library) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd, g)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()
		defer crash.Recover(lib.Catalog)
		return fn(cmd, args, lib)
	}
}

// findAsset accepts an id, a unique id prefix or a unique exact name.
func findAsset(c *catalog.Catalog, ref string) (domain.Asset, error) {
	if a, ok := c.Get(ref); ok {
		return a, nil
	}
	var hits []domain.Asset
	for _, a := range c.Assets() {
		if strings.HasPrefix(a.ID, ref) || a.Name == ref {
			hits = append(hits, a)
		}
	}
	switch len(hits) {
	case 0:
		return domain.Asset{}, fmt.Errorf("asset %q: %w", ref, domain.ErrNotFound)
	case 1:
		return hits[0], nil
	}
	return domain.Asset{}, fmt.Errorf("asset %q is ambiguous: %d matches", ref, len(hits))
}

func initCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init <dir>",
		Short: "Create a library at <dir> and remember it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			prefsPath, err := config.PrefsPath()
			if err != nil {
				return err
			}
			prefs, _ := storage.LoadPreferences(prefsPath)
			if _, err := storage.Seed(abs, prefs); err != nil {
				return err
			}
			prefs.Directory = abs
			if err := storage.SavePreferences(prefsPath, prefs); err != nil {
				return err
			}
			applog.WithComponent("cli").Info("library initialized", slog.String("root", abs))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Created library at", abs)
			return nil
		},
	}
}

func openCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the library and print a summary",
		Args:  cobra.NoArgs,
		RunE: withLibrary(g, func(cmd *cobra.Command, _ []string, lib *library.Library) error {
			out := cmd.OutOrStdout()
			layout := lib.Catalog.Layout()
			_, _ = fmt.Fprintln(out, "Library:", lib.Root())
			_, _ = fmt.Fprintf(out, "Assets: %d\n", lib.Catalog.Len())
			_, _ = fmt.Fprintf(out, "Categories: %s\n", strings.Join(lib.Catalog.Categories(), ", "))
			_, _ = fmt.Fprintf(out, "Tags: %s\n", strings.Join(lib.Catalog.Tags(), ", "))
			_, _ = fmt.Fprintf(out, "Thumbnail size: %d, render size: %d, render on import: %t\n", layout.ThumbSize, layout.RenderSize, layout.RenderOnImport)
			return nil
		}),
	}
}

func listCmd(g *globals) *cobra.Command {
	var (
		ff     filterFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets passing the filters",
		Args:  cobra.NoArgs,
		RunE: withLibrary(g, func(cmd *cobra.Command, _ []string, lib *library.Library) error {
			if err := ff.apply(&lib.View); err != nil {
				return err
			}
			vis := lib.Visible()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(vis)
			}
			return printAssets(cmd.OutOrStdout(), vis)
		}),
	}
	ff.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printAssets(w io.Writer, assets []domain.Asset) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tRENDERER\tCATEGORIES\tTAGS\tFAV\tDATE")
	for _, a := range assets {
		fav := ""
		if a.Favorite {
			fav = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Renderer, a.CategoryLabel(), a.TagLabel(), fav, a.Date.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func renameCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <asset> <name>",
		Short: "Rename an asset",
		Args:  cobra.ExactArgs(2),
		RunE: withLibrary(g, func(cmd *cobra.Command, args []string, lib *library.Library) error {
			a, err := findAsset(lib.Catalog, args[0])
			if err != nil {
				return err
			}
			return lib.Catalog.SetName(a.ID, args[1])
		}),
	}
}

func tagCmd(g *globals) *cobra.Command {
	var categories bool
	cmd := &cobra.Command{
		Use:   "tag <asset> <comma-separated values>",
		Short: "Replace the tags (or categories with --categories) of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: withLibrary(g, func(cmd *cobra.Command, args []string, lib *library.Library) error {
			a, err := findAsset(lib.Catalog, args[0])
			if err != nil {
				return err
			}
			c := lib.Catalog
			if categories {
				if _, err := c.CheckAddCategory(args[1]); err != nil {
					return err
				}
				return c.SetCategories(a.ID, domain.SplitTokens(args[1]))
			}
			if _, err := c.CheckAddTag(args[1]); err != nil {
				return err
			}
			return c.SetTags(a.ID, domain.SplitTokens(args[1]))
		}),
	}
	cmd.Flags().BoolVar(&categories, "categories", false, "Set categories instead of tags")
	return cmd
}

func favCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fav <asset> [true|false]",
		Short: "Mark an asset as favourite (or clear it)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withLibrary(g, func(cmd *cobra.Command, args []string, lib *library.Library) error {
			a, err := findAsset(lib.Catalog, args[0])
			if err != nil {
				return err
			}
			on := true
			if len(args) == 2 {
				if on, err = strconv.ParseBool(args[1]); err != nil {
					return fmt.Errorf("favourite flag: %w", err)
				}
			}
			return lib.Catalog.SetFavorite(a.ID, on)
		}),
	}
}

func deleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <asset>...",
		Short: "Delete assets and their files",
		Args:  cobra.MinimumNArgs(1),
		RunE: withLibrary(g, func(cmd *cobra.Command, args []string, lib *library.Library) error {
			ids := make([]string, 0, len(args))
			for _, ref := range args {
				a, err := findAsset(lib.Catalog, ref)
				if err != nil {
					return err
				}
				ids = append(ids, a.ID)
			}
			n, err := lib.Delete(ids...)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d asset(s)\n", n)
			return err
		}),
	}
}

func rerenderCmd(g *globals) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "rerender [asset...]",
		Short: "Render fresh previews for the given assets, or for every asset passing the filters",
		RunE: withLibrary(g, func(cmd *cobra.Command, args []string, lib *library.Library) error {
			if len(args) == 0 {
				if err := ff.apply(&lib.View); err != nil {
					return err
				}
				return lib.RenderAllVisible(cmd.Context())
			}
			ids := make([]string, 0, len(args))
			for _, ref := range args {
				a, err := findAsset(lib.Catalog, ref)
				if err != nil {
					return err
				}
				ids = append(ids, a.ID)
			}
			return lib.Rerender(cmd.Context(), ids...)
		}),
	}
	ff.bind(cmd)
	return cmd
}

// vocabCmd builds the categories or tags command group.
func vocabCmd(g *globals, what string) *cobra.Command {
	cats := what == "categories"
	list := func(c *catalog.Catalog) []string {
		if cats {
			return c.Categories()
		}
		return c.Tags()
	}
	group := &cobra.Command{
		Use:   what,
		Short: "List and maintain the " + what + " vocabulary",
		Args:  cobra.NoArgs,
		RunE: withLibrary(g, func(cmd *cobra.Command, _ []string, lib *library.Library) error {
			for _, v := range list(lib.Catalog) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		}),
	}
	group.AddCommand(
		&cobra.Command{
			Use:   "add <comma-separated values>",
			Short: "Add entries to the vocabulary",
			Args:  cobra.ExactArgs(1),
			RunE: withLibrary(g, func(cmd *cobra.Command, args []string, lib *library.Library) error {
				var added []string
				var err error
				if cats {
					added, err = lib.Catalog.CheckAddCategory(args[0])
				} else {
					added, err = lib.Catalog.CheckAddTag(args[0])
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %d\n", len(added))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rename <old> <new>",
			Short: "Rename an entry in the vocabulary and on every asset",
			Args:  cobra.ExactArgs(2),
			RunE: withLibrary(g, func(_ *cobra.Command, args []string, lib *library.Library) error {
				if cats {
					return lib.Catalog.RenameCategory(args[0], args[1])
				}
				return lib.Catalog.RenameTag(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "remove <value>",
			Short: "Remove an entry from the vocabulary",
			Args:  cobra.ExactArgs(1),
			RunE: withLibrary(g, func(_ *cobra.Command, args []string, lib *library.Library) error {
				if cats {
					return lib.Catalog.RemoveCategory(args[0])
				}
				return lib.Catalog.RemoveTag(args[0])
			}),
		},
	)
	return group
}

func pruneCmd(g *globals) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove artifact files that belong to no asset",
		Args:  cobra.NoArgs,
		RunE: withLibrary(g, func(cmd *cobra.Command, _ []string, lib *library.Library) error {
			files, err := lib.Prune(dryRun)
			for _, f := range files {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list the files")
	return cmd
}

func restoreCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace the catalog document with its newest backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := libraryDir(g)
			if err != nil {
				return err
			}
			h := newCLIHost(cmd.InOrStdin(), cmd.OutOrStdout(), g.yes)
			if !h.Confirm("Replace the catalog of " + dir + " with its newest backup?") {
				return nil
			}
			from, err := storage.RestoreLatestBackup(dir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Restored from", from)
			return nil
		},
	}
}

func exportCmd(g *globals) *cobra.Command {
	var (
		ff      filterFlags
		preset  string
		formats []string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write contact sheets of the assets passing the filters",
		Args:  cobra.NoArgs,
		RunE: withLibrary(g, func(cmd *cobra.Command, _ []string, lib *library.Library) error {
			if err := ff.apply(&lib.View); err != nil {
				return err
			}
			entries := export.Entries(lib.Store(), lib.Visible())
			paths, err := export.BatchExport(lib.Root(), entries, export.BatchOptions{
				Preset:  export.PresetName(preset),
				Formats: formats,
				OutDir:  outDir,
				Sheet:   export.SheetOptions{Title: filepath.Base(lib.Root())},
			})
			for _, p := range paths {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Wrote", p)
			}
			return err
		}),
	}
	ff.bind(cmd)
	cmd.Flags().StringVar(&preset, "preset", string(export.PresetWeb), "Preset: web or print")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Formats (pdf, png); default from preset")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default <library>/exports/<preset>)")
	return cmd
}

func uiCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ui [dir]",
		Short: "Launch the desktop browser (build with -tags fyne for the full UI)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := g.libDir
			if len(args) == 1 {
				dir = args[0]
			}
			return ui.Run(dir, newCLIHost(cmd.InOrStdin(), cmd.OutOrStdout(), g.yes))
		},
	}
}

func thumbConfig(cfg config.AppConfig) thumbnail.Config {
	return thumbnail.Config{Timeout: cfg.Thumbnails.RenderTimeout()}
}
