package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"framecast/internal/model"
	"framecast/internal/scanner"
	"framecast/internal/tui"
	"framecast/pkg/imgutil"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder> | <frame>...",
	Short: "List the frames a conversion would use, without encoding",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configureLogging(os.Stderr, false); err != nil {
			return err
		}

		mode, path, paths := model.InputFiles, "", args
		if len(args) == 1 {
			if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
				mode, path, paths = model.InputFolder, args[0], nil
			}
		}
		set, err := scanner.Scan(mode, path, paths)
		if err != nil {
			return err
		}

		var tagged []string
		for i, f := range set.Frames {
			fmt.Fprintf(os.Stdout, "%s %s %s\n",
				scanBulletStyle.Render(fmt.Sprintf("%4d", i+1)),
				scanFileStyle.Render(filepath.Base(f.Path)),
				scanDimStyle.Render(fmt.Sprintf("%dx%d  %s", f.Width, f.Height, tui.HumanBytes(f.Size))),
			)
			if md, err := imgutil.ReadMetadata(f.Path); err == nil && md.Any() {
				tagged = append(tagged, fmt.Sprintf("%s (%s)", filepath.Base(f.Path), strings.Join(md.Labels(), ", ")))
			}
		}
		fmt.Fprintln(os.Stdout)

		ext, uniformExt := scanner.Extension(set)
		if !uniformExt {
			ext = "mixed"
		}
		rows := []tui.SummaryRow{
			{Label: "Frames", Value: fmt.Sprintf("%d", set.Len())},
			{Label: "Canvas", Value: fmt.Sprintf("%dx%d", set.Width, set.Height)},
			{Label: "Extension", Value: ext},
			{Label: "Total size", Value: tui.HumanBytes(set.TotalBytes())},
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))

		var warnings []string
		if !set.Uniform {
			warnings = append(warnings, "frames differ in size; they will be scaled to the first frame's canvas")
		}
		if !uniformExt {
			warnings = append(warnings, "mixed extensions; external tools are skipped and built-in encoders are used")
		}
		for _, f := range scanner.Rotated(set) {
			warnings = append(warnings, fmt.Sprintf("%s has EXIF orientation %d, which is not applied", filepath.Base(f.Path), f.Orientation))
		}
		for _, t := range tagged {
			warnings = append(warnings, fmt.Sprintf("%s carries metadata that outputs do not keep", t))
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stdout, "%s %s\n", scanWarnStyle.Render("!"), scanValueStyle.Render(w))
		}
		return nil
	},
}

var (
	scanFileStyle   = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	scanValueStyle  = lipgloss.NewStyle().Foreground(tui.ColorInk)
	scanDimStyle    = lipgloss.NewStyle().Foreground(tui.ColorDim)
	scanBulletStyle = lipgloss.NewStyle().Foreground(tui.ColorDim)
	scanWarnStyle   = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorWarn)
)

func init() {
	rootCmd.AddCommand(scanCmd)
}
