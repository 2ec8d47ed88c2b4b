package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
	"spineforge/pkg/config"
	"spineforge/pkg/geometry"
	"spineforge/pkg/implants"
	"spineforge/pkg/landmarks"
	"spineforge/pkg/measurement"
	"spineforge/pkg/metrics"
	"spineforge/pkg/osteotomy"
	"spineforge/pkg/report"
	"spineforge/pkg/session"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

type measureOptions struct {
	landmarksPath string
	dicomPath     string
	spacing       float64
	facing        string
	csvPath       string
	osteotomies   []string
	metricsPath   string
	implantsPath  string
	rodSTLPath    string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "spineforge",
		Short:         "Sagittal alignment measurements from landmarks on a lateral spine image",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "spineforge.yaml", "config file (skipped if missing)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newMeasureCmd(opts),
		newCalibrateCmd(opts),
		newLandmarksCmd(),
		newConfigCmd(),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Output.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	return cfg, logger, nil
}

func newMeasureCmd(root *rootOptions) *cobra.Command {
	opts := &measureOptions{}
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Compute every parameter from a landmark file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasure(cmd.OutOrStdout(), root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.landmarksPath, "landmarks", "l", "", "YAML file with landmark placements")
	cmd.Flags().StringVar(&opts.dicomPath, "dicom", "", "DICOM file to read the pixel spacing from")
	cmd.Flags().Float64Var(&opts.spacing, "spacing", 0, "isotropic pixel spacing in mm (overrides config)")
	cmd.Flags().StringVar(&opts.facing, "facing", "", "side the patient faces: left or right (overrides config)")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "also write the measurements to this CSV file")
	cmd.Flags().StringSliceVar(&opts.osteotomies, "osteotomy", nil, "planned osteotomy TYPE:LEVEL[:TECHNIQUE[:SIDE[:LEVELS]]], repeatable")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-file", "", "write Prometheus metrics to this file (overrides config)")
	cmd.Flags().StringVar(&opts.implantsPath, "implants", "", "YAML file with planned screws, cages and rod")
	cmd.Flags().StringVar(&opts.rodSTLPath, "rod-stl", "", "export the rod through the screw heads to this STL file")
	_ = cmd.MarkFlagRequired("landmarks")
	return cmd
}

func runMeasure(out io.Writer, root *rootOptions, opts *measureOptions) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}

	cal, err := resolveCalibration(cfg, opts, logger)
	if err != nil {
		return err
	}

	facing := cfg.Facing()
	if opts.facing != "" {
		if facing, err = geometry.ParseFacing(opts.facing); err != nil {
			return err
		}
	}

	var plans []osteotomy.Plan
	for _, s := range opts.osteotomies {
		p, err := osteotomy.ParsePlan(s)
		if err != nil {
			return err
		}
		plans = append(plans, p)
	}

	f, err := os.Open(opts.landmarksPath)
	if err != nil {
		return fmt.Errorf("error opening landmark file: %w", err)
	}
	placements, err := landmarks.ReadPlacements(f)
	f.Close()
	if err != nil {
		return err
	}

	rec, err := metrics.NewRecorder()
	if err != nil {
		return err
	}

	sess := session.New(
		session.WithLogger(logger),
		session.WithMetrics(rec),
		session.WithCalibration(cal),
		session.WithFacing(facing),
		session.WithPITolerance(cfg.Measurement.PIToleranceDeg),
	)
	defer sess.Close()

	if err := sess.Store().Apply(placements); err != nil {
		return err
	}

	baseline := sess.Results()
	var simulated *measurement.Results
	if len(plans) > 0 {
		sim, err := osteotomy.Simulate(baseline, plans)
		if err != nil {
			return err
		}
		simulated = &sim
	}

	precision := cfg.Output.Precision
	if cfg.Output.Verbose {
		printLandmarks(out, sess.Landmarks())
		fmt.Fprintf(out, "Calibration: %s\nFacing: %s\n\n", sess.Calibration(), sess.Facing())
	}

	var construct *implants.Construct
	if opts.implantsPath != "" || opts.rodSTLPath != "" {
		construct, err = planImplants(opts, sess.Calibration(), logger)
		if err != nil {
			return err
		}
	}
	fmt.Fprint(out, report.Text(baseline, simulated, construct, precision))

	if opts.csvPath != "" {
		if err := writeCSV(opts.csvPath, baseline, simulated, precision); err != nil {
			return err
		}
		logger.WithField("path", opts.csvPath).Info("measurements written")
	}

	metricsPath := cfg.Metrics.TextfilePath
	if opts.metricsPath != "" {
		metricsPath = opts.metricsPath
	}
	if metricsPath != "" {
		if err := rec.WriteTextfile(metricsPath); err != nil {
			return fmt.Errorf("error writing metrics: %w", err)
		}
	}
	return nil
}

// planImplants reads the implant file and exports the rod when asked
func planImplants(opts *measureOptions, cal calibration.Calibration, logger *logrus.Logger) (*implants.Construct, error) {
	file := implants.File{}
	if opts.implantsPath != "" {
		f, err := os.Open(opts.implantsPath)
		if err != nil {
			return nil, fmt.Errorf("error opening implant file: %w", err)
		}
		file, err = implants.ReadFile(f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	construct, err := file.Construct(cal)
	if err != nil {
		return nil, err
	}
	if opts.rodSTLPath == "" {
		return construct, nil
	}

	side, diameter := implants.SideBoth, implants.DefaultRodDiameter
	if file.Rod != nil {
		if side, err = implants.ParseSide(file.Rod.Side); err != nil {
			return nil, err
		}
		if file.Rod.Diameter != 0 {
			diameter = file.Rod.Diameter
		}
	}
	rod, err := construct.Rod(side, diameter)
	if err != nil {
		return nil, err
	}
	if err := rod.SaveSTL(opts.rodSTLPath, cal); err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"path":     opts.rodSTLPath,
		"screws":   len(rod.Points),
		"side":     rod.Side,
		"diameter": rod.Diameter,
	}).Info("rod model exported")
	return construct, nil
}

func resolveCalibration(cfg *config.Config, opts *measureOptions, logger *logrus.Logger) (calibration.Calibration, error) {
	if opts.spacing != 0 {
		return calibration.Manual(opts.spacing, opts.spacing)
	}
	if opts.dicomPath == "" {
		return cfg.DefaultCalibration(), nil
	}

	cal, err := calibration.FromDICOM(opts.dicomPath)
	if errors.Is(err, calibration.ErrNoPixelSpacing) {
		fallback := cfg.DefaultCalibration()
		logger.WithField("fallback", fallback.String()).Warn("no pixel spacing found in DICOM, using default values")
		return fallback, nil
	}
	return cal, err
}

func writeCSV(path string, baseline measurement.Results, simulated *measurement.Results, precision int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	if err := report.WriteCSV(f, baseline, simulated, precision); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printLandmarks(out io.Writer, lms map[models.LandmarkName]models.Landmark) {
	fmt.Fprintln(out, "Landmarks:")
	for _, name := range models.AllLandmarks() {
		lm := lms[name]
		if lm.Placed {
			fmt.Fprintf(out, "  %-16s (%.1f, %.1f)\n", name.Label(), lm.Point.X, lm.Point.Y)
		} else {
			fmt.Fprintf(out, "  %-16s %s\n", name.Label(), measurement.Placeholder)
		}
	}
	fmt.Fprintln(out)
}

func newCalibrateCmd(root *rootOptions) *cobra.Command {
	var dicomPath string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Print the pixel spacing stored in a DICOM file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := root.load(); err != nil {
				return err
			}
			cal, err := calibration.FromDICOM(dicomPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pixel spacing: %s\n", cal)
			return nil
		},
	}
	cmd.Flags().StringVar(&dicomPath, "dicom", "", "DICOM file")
	_ = cmd.MarkFlagRequired("dicom")
	return cmd
}

func newLandmarksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "landmarks",
		Short: "List landmark names and the parameters that use them",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range models.AllLandmarks() {
				var params []string
				for _, p := range measurement.Dependents(name) {
					params = append(params, p.DisplayName())
				}
				if name.IsFrameReference() {
					params = append(params, "vertical reference")
				}
				fmt.Fprintf(out, "%-16s %-16s %v\n", name, name.Label(), params)
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "spineforge.yaml", "destination path")
	cmd.AddCommand(initCmd)
	return cmd
}
