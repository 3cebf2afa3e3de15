package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/plinth/internal/server"
	"github.com/taigrr/plinth/pkg/errors"
	"github.com/taigrr/plinth/pkg/viewer"
)

type exportOptions struct {
	layout   string
	catalog  string
	single   bool
	png      string
	out      string
	format   string
	width    int
	height   int
	finalize bool
}

// settleFrames caps how long export waits for the camera to come to rest.
const settleFrames = 600

func newExportCmd(e *env) *cobra.Command {
	o := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export [module.glb ...]",
		Short: "Build a scene headlessly and export its layout or a PNG",
		Long: "export adds each module in order, auto-placing it against the previous\n" +
			"one, optionally applies a layout file, then writes the layout and an\n" +
			"optional rendered frame.",
		Example: "  plinth export sofa-left.glb sofa-mid.glb sofa-right.glb --png sofa.png\n" +
			"  plinth export --layout room.yaml --catalog ./modules --format json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.load(true); err != nil {
				return err
			}
			defer e.log.Sync()
			return runExport(cmd.Context(), e, o, args, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.layout, "layout", "", "layout file (JSON or YAML) to apply")
	f.StringVar(&o.catalog, "catalog", "", "directory or base URL that layout ids resolve against")
	f.BoolVar(&o.single, "single", false, "view a single model instead of composing modules")
	f.StringVar(&o.png, "png", "", "write a rendered frame to this file")
	f.StringVarP(&o.out, "out", "o", "", "write the layout here instead of stdout")
	f.StringVar(&o.format, "format", "yaml", "layout format: yaml or json")
	f.IntVar(&o.width, "width", 0, "frame width in pixels (default from config)")
	f.IntVar(&o.height, "height", 0, "frame height in pixels (default from config)")
	f.BoolVar(&o.finalize, "finalize", true, "settle the layout before exporting")
	return cmd
}

func runExport(ctx context.Context, e *env, o *exportOptions, args []string, stdout io.Writer) error {
	if o.format != "yaml" && o.format != "json" {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown format %q", o.format)
	}
	if len(args) == 0 && o.layout == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "nothing to export: pass modules or --layout")
	}
	if o.single && len(args) != 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "--single takes exactly one model")
	}

	cfg := e.cfg.Viewer
	cfg.AllowEmpty = true
	if o.width > 0 {
		cfg.Width = o.width
	}
	if o.height > 0 {
		cfg.Height = o.height
	}
	client, err := e.fetcher()
	if err != nil {
		return err
	}
	v, err := viewer.New(cfg, viewer.WithLogger(e.log), viewer.WithFetcher(client))
	if err != nil {
		return err
	}
	defer v.Dispose()
	if err := v.Start(ctx); err != nil {
		return err
	}

	if o.single {
		if err := v.LoadModel(ctx, args[0]); err != nil {
			return err
		}
	} else {
		for _, url := range args {
			id, err := v.AddModule(ctx, url)
			if err != nil {
				return err
			}
			e.log.Debug("module placed", zap.String("id", id), zap.String("url", url))
		}
	}

	if o.layout != "" {
		data, err := os.ReadFile(o.layout)
		if err != nil {
			return err
		}
		l, err := viewer.ParseLayout(data)
		if err != nil {
			return err
		}
		if _, err := v.ApplyLayout(ctx, l, server.CatalogResolver(o.catalog)); err != nil {
			return err
		}
	}
	if o.finalize {
		v.FinalizeLayout()
	}

	if o.png != "" {
		if err := writeFrame(v, o.png); err != nil {
			return err
		}
		e.log.Info("frame written", zap.String("path", o.png))
	}

	l := v.ExportLayout()
	var data []byte
	if o.format == "json" {
		data, err = l.JSON()
	} else {
		data, err = l.YAML()
	}
	if err != nil {
		return err
	}
	if o.out != "" {
		return os.WriteFile(o.out, data, 0o644)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

// writeFrame advances the viewer until the camera settles, then saves a
// PNG.
func writeFrame(v *viewer.Viewer, path string) error {
	for range settleFrames {
		if !v.Frame(time.Second / 60) {
			break
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := v.EncodePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
