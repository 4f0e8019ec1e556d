package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"ocr-lab/domain"
	"ocr-lab/quality"
	"ocr-lab/runtime"
	"ocr-lab/services"
)

// Config is the operator-side environment of the one-shot CLI. The request
// itself is given by flags.
type Config struct {
	LogLevel         string `envconfig:"LOG_LEVEL" default:"WARN"`
	PoolSize         int    `envconfig:"POOL_SIZE" default:"2"`
	JobBufferSize    int    `envconfig:"JOB_BUFFER_SIZE" default:"8"`
	EasyOCRBinPath   string `envconfig:"EASYOCR_BIN_PATH"`
	PaddleOCRBinPath string `envconfig:"PADDLEOCR_BIN_PATH"`
	Colours          bool   `envconfig:"SCANCTL_COLOURS" default:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scanctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	imagePath := flag.String("image", "", "Path to the image to recognize")
	language := flag.String("lang", "", "Recognition language (ISO-639, e.g. eng)")
	engines := flag.String("engines", "", "Comma-separated engine list, or 'ensemble'")
	fallback := flag.Bool("fallback", true, "Fall back to other engines when the primary fails")
	threshold := flag.Float64("threshold", 0, "Confidence threshold for warnings (0..1)")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall request timeout")
	showWords := flag.Bool("words", false, "Print the per-word table")
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		return fmt.Errorf("missing -image")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	color.Enable = cfg.Colours

	data, err := os.ReadFile(*imagePath)
	if err != nil {
		return err
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	registry := runtime.NewRegistry(logger, runtime.RegistryConfig{
		PoolSize:       cfg.PoolSize,
		PoolBufferSize: cfg.JobBufferSize,
		Bridges:        bridgeConfigs(cfg),
	})
	if err := registry.Initialize(ctx); err != nil {
		return fmt.Errorf("registry init failed: %w", err)
	}
	defer registry.Dispose()

	calculator, err := quality.NewCalculator()
	if err != nil {
		return fmt.Errorf("quality calculator init failed: %w", err)
	}
	orchestrator := runtime.NewOrchestrator(logger, registry, calculator, nil, 64, 0)
	service := services.NewRecognitionService(logger, registry, orchestrator, nil, nil, nil)

	// The one-shot run still needs the pool units running.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	for _, w := range registry.Workers() {
		go func() { _ = w.Run(runCtx) }()
	}

	result, err := service.Recognize(ctx, data, domain.Options{
		Language:            *language,
		Engines:             parseEngines(*engines),
		ConfidenceThreshold: *threshold,
		Fallback:            *fallback,
	})
	if err != nil {
		return err
	}

	render(result, *showWords)
	return nil
}

func parseEngines(csv string) []domain.EngineID {
	if csv == "" {
		return nil
	}
	var ids []domain.EngineID
	for _, part := range strings.Split(csv, ",") {
		ids = append(ids, domain.EngineID(strings.TrimSpace(part)))
	}
	return ids
}

func render(result *domain.CompleteResult, showWords bool) {
	header := color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" %s | confidence %.2f | score %.2f | agreement %.2f ",
			result.Result.Engine, result.Result.Confidence, result.Score, result.Agreement))
	fmt.Println(header)
	fmt.Println()
	fmt.Println(result.Result.Text)
	fmt.Println()

	if q := result.Result.Quality; q != nil {
		table := newTable()
		table.SetHeader([]string{"Metric", "Value"})
		table.Append([]string{"Image quality", string(q.ImageQuality)})
		table.Append([]string{"Mean word confidence", fmt.Sprintf("%.3f", q.MeanWordConfidence)})
		table.Append([]string{"Language plausibility", fmt.Sprintf("%.3f", q.LanguagePlausibility)})
		table.Append([]string{"Layout complexity", fmt.Sprintf("%.3f", q.LayoutComplexity)})
		table.Append([]string{"Skew (degrees)", fmt.Sprintf("%.2f", q.SkewDegrees)})
		table.Append([]string{"Table likely", fmt.Sprintf("%t", q.TableLikely)})
		table.Append([]string{"Handwriting likely", fmt.Sprintf("%t", q.HandwritingLikely)})
		table.Render()
		fmt.Println()
	}

	for _, warning := range result.Warnings {
		color.Warn.Println(warning)
	}
	for _, rec := range result.Recommendations {
		color.Info.Println(rec)
	}

	if showWords {
		table := newTable()
		table.SetHeader([]string{"Word", "Confidence", "Box"})
		for _, page := range result.Result.Pages {
			for _, paragraph := range page.Paragraphs {
				for _, line := range paragraph.Lines {
					for _, word := range line.Words {
						table.Append([]string{
							word.Text,
							fmt.Sprintf("%.3f", word.Confidence),
							fmt.Sprintf("(%.0f,%.0f)-(%.0f,%.0f)", word.Box.X0, word.Box.Y0, word.Box.X1, word.Box.Y1),
						})
					}
				}
			}
		}
		table.Render()
	}
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func bridgeConfigs(cfg Config) []runtime.BridgeConfig {
	var bridges []runtime.BridgeConfig
	if cfg.EasyOCRBinPath != "" {
		bridges = append(bridges, runtime.BridgeConfig{
			ID:        domain.EngineEasyOCR,
			BinPath:   cfg.EasyOCRBinPath,
			Languages: []string{"eng", "fra", "deu", "spa", "chi"},
			Formats:   []string{"png", "jpeg", "bmp"},
			Features:  []string{"word-boxes", "handwriting"},
		})
	}
	if cfg.PaddleOCRBinPath != "" {
		bridges = append(bridges, runtime.BridgeConfig{
			ID:        domain.EnginePaddleOCR,
			BinPath:   cfg.PaddleOCRBinPath,
			Languages: []string{"eng", "chi"},
			Formats:   []string{"png", "jpeg"},
			Features:  []string{"word-boxes", "table-structure"},
		})
	}
	return bridges
}
