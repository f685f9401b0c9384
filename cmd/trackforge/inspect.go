package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/formats"
)

func newInspectCmd(a *app) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "inspect <file.kn5|file.ai>",
		Short: "Print a summary of a model or AI line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(a.fs, args[0], tree, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the full KN5 node tree")
	return cmd
}

func inspect(fs afero.Fs, path string, tree bool, w io.Writer) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return &errs.IOError{Op: "read", Path: path, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".kn5":
		m, err := formats.ParseKN5(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		printKN5(w, m, tree)
	case ".ai":
		line, err := formats.ParseAI(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		printAI(w, line)
	default:
		return &errs.ConfigError{Source: path, Reason: "unknown file type, want .kn5 or .ai"}
	}
	return nil
}

func printKN5(w io.Writer, m *formats.KN5, tree bool) {
	fmt.Fprintf(w, "KN5 version: %d\n", m.Version)
	fmt.Fprintf(w, "Textures:    %d\n", len(m.Textures))
	for _, t := range m.Textures {
		fmt.Fprintf(w, "  %-32s %8d bytes\n", t.Name, len(t.Data))
	}
	fmt.Fprintf(w, "Materials:   %d\n", len(m.Materials))
	for _, mat := range m.Materials {
		fmt.Fprintf(w, "  %-32s %s\n", mat.Name, mat.Shader)
	}
	fmt.Fprintf(w, "Meshes:      %d\n", m.MeshCount())
	fmt.Fprintf(w, "Vertices:    %d\n", m.TotalVertexCount())
	if !tree || m.Root == nil {
		return
	}
	fmt.Fprintln(w, "Nodes:")
	m.Root.Walk(func(n *formats.KN5Node, depth int) {
		fmt.Fprintf(w, "  %s%s [%s]", strings.Repeat("  ", depth), n.Name, n.Kind)
		if n.Mesh != nil {
			fmt.Fprintf(w, " %d verts, %d tris", len(n.Mesh.Vertices), len(n.Mesh.Indices)/3)
		}
		fmt.Fprintln(w)
	})
}

func printAI(w io.Writer, line *formats.AILine) {
	fmt.Fprintf(w, "AI line version: %d\n", line.Version)
	fmt.Fprintf(w, "Points:          %d\n", len(line.Points))
	fmt.Fprintf(w, "Length:          %.2f m\n", line.Length())
	if len(line.Extras) == 0 {
		return
	}

	speeds := make([]float64, len(line.Extras))
	widths := make([]float64, len(line.Extras))
	for i, e := range line.Extras {
		speeds[i] = float64(e.Speed) * 3.6
		widths[i] = float64(e.SideLeft + e.SideRight)
	}
	fmt.Fprintf(w, "Speed:           %.1f - %.1f km/h\n", floats.Min(speeds), floats.Max(speeds))
	fmt.Fprintf(w, "Track width:     %.2f - %.2f m\n", floats.Min(widths), floats.Max(widths))
}
