package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/soocke/prompt-bot-go/app"
	"github.com/soocke/prompt-bot-go/assets"
	"github.com/soocke/prompt-bot-go/domain/action"
	"github.com/soocke/prompt-bot-go/domain/capture"
	"github.com/soocke/prompt-bot-go/domain/templates"
)

var (
	forceInit bool
	dumpDir   string

	templatesCmd = &cobra.Command{
		Use:   "templates",
		Short: "Load the template sets and list what was found",
		RunE:  listTemplates,
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}

	probeCmd = &cobra.Command{
		Use:   "probe",
		Short: "Capture one frame per engine and report every template's best match",
		RunE:  probe,
	}

	windowsCmd = &cobra.Command{
		Use:   "windows",
		Short: "List visible top-level window titles (for focus_window)",
		RunE:  listWindows,
	}
)

func init() {
	initConfigCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
	probeCmd.Flags().StringVar(&dumpDir, "dump", "", "also save each captured grayscale frame as a PNG in this directory")
	rootCmd.AddCommand(templatesCmd, initConfigCmd, probeCmd, windowsCmd)
}

func printTemplates(w *tabwriter.Writer, set string, lib *templates.Library) {
	for _, t := range lib.Templates() {
		b := t.Image.Bounds()
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\n", set, t.Name, t.Key, b.Dx(), b.Dy())
	}
}

func listTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := app.BuildContainer(cfg, NewLogger(levelFor(cfg.Debug)), app.Deps{})
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SET\tTEMPLATE\tKEY\tSIZE")
	printTemplates(w, "spam", c.SpamLibrary)
	printTemplates(w, "hold", c.HoldLibrary)
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := defaultConfigPath
	if len(args) == 1 {
		path = args[0]
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if forceInit {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s exists; use --force to overwrite", path)
		}
		return err
	}
	defer f.Close()
	if _, err := f.Write(assets.DefaultConfigYAML); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
	return nil
}

func probeSet(w *tabwriter.Writer, set string, src *capture.Source, scanner *capture.Scanner, lib *templates.Library, threshold float64) error {
	f, err := src.Capture()
	if err != nil {
		return err
	}
	if dumpDir != "" {
		path := filepath.Join(dumpDir, "frame_"+set+".png")
		if err := imaging.Save(f.Image, path); err != nil {
			return fmt.Errorf("dump frame: %w", err)
		}
	}
	for _, t := range lib.Templates() {
		pt, score, err := scanner.Locate(f, t)
		if err != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t%v\n", set, t.Name, t.Key, err)
			continue
		}
		hit := ""
		if score >= threshold {
			hit = "HIT"
		}
		// report in screen coordinates
		x, y := pt.X, pt.Y
		if f.Scale > 0 && f.Scale < 1 {
			x, y = int(float64(x)/f.Scale), int(float64(y)/f.Scale)
		}
		x, y = x+f.Region.Min.X, y+f.Region.Min.Y
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%d,%d\t%s\n", set, t.Name, t.Key, score, x, y, hit)
	}
	return nil
}

func probe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := app.BuildContainer(cfg, NewLogger(levelFor(cfg.Debug)), app.Deps{})
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SET\tTEMPLATE\tKEY\tSCORE\tAT\t")
	if err := probeSet(w, "spam", c.SpamSource, c.Scanner, c.SpamLibrary, cfg.Spam.Threshold); err != nil {
		return err
	}
	if err := probeSet(w, "hold", c.HoldSource, c.Scanner, c.HoldLibrary, cfg.Hold.Threshold); err != nil {
		return err
	}
	return w.Flush()
}

func listWindows(cmd *cobra.Command, args []string) error {
	titles, err := action.ListWindows()
	if err != nil {
		return err
	}
	for _, t := range titles {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}
