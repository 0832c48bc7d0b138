// Command courseforge drives the course pipeline from the terminal: extract
// text from a PDF, draft and illustrate a structured course, and publish it
// to the course platform.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"courseforge/internal/assemble"
	"courseforge/internal/config"
	"courseforge/internal/course"
	"courseforge/internal/drafter"
	"courseforge/internal/extract"
	"courseforge/internal/fanout"
	"courseforge/internal/imaging"
	"courseforge/internal/logging"
	"courseforge/internal/platform"
	"courseforge/internal/publish"
	"courseforge/internal/storage"
)

// CLI flags
var (
	outputFlag   string
	skipImages   bool
	tokenFlag    string
	orgIDFlag    string
	courseIDFlag string
	indicesFlag  string
)

// courseFile is the on-disk envelope produced by generate and consumed by
// publish and republish.
type courseFile struct {
	Course   *course.StructuredCourse `json:"course"`
	Audit    *drafter.Audit           `json:"audit,omitempty"`
	Assembly *assemble.Report         `json:"assembly,omitempty"`
}

var rootCmd = &cobra.Command{
	Use:   "courseforge",
	Short: "Turn documents into published online courses",
	Long: `Courseforge extracts text from a PDF, asks a language model to draft a
structured course from it, generates a cover and per-module images in
parallel, and publishes the result to the course platform.

Examples:
  courseforge extract notes.pdf
  courseforge generate notes.pdf -o course.json
  courseforge generate notes.pdf -o course.json --skip-images
  courseforge publish course.json --token $PLATFORM_TOKEN --org org-123
  courseforge republish course.json --course-id abc123 --indices 2,5`,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Extract plain text from a PDF",
	Args:  cobra.ExactArgs(1),
	Run:   runExtract,
}

var generateCmd = &cobra.Command{
	Use:   "generate <file.pdf>",
	Short: "Draft a structured course from a PDF, with images",
	Args:  cobra.ExactArgs(1),
	Run:   runGenerate,
}

var publishCmd = &cobra.Command{
	Use:   "publish <course.json>",
	Short: "Publish a generated course to the platform",
	Args:  cobra.ExactArgs(1),
	Run:   runPublish,
}

var republishCmd = &cobra.Command{
	Use:   "republish <course.json>",
	Short: "Retry failed modules against an existing remote course",
	Args:  cobra.ExactArgs(1),
	Run:   runRepublish,
}

func init() {
	extractCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Write extracted text to a file instead of stdout")

	generateCmd.Flags().StringVarP(&outputFlag, "output", "o", "course.json", "Output file for the generated course")
	generateCmd.Flags().BoolVar(&skipImages, "skip-images", false, "Skip image generation (content-only draft)")

	for _, c := range []*cobra.Command{publishCmd, republishCmd} {
		c.Flags().StringVar(&tokenFlag, "token", "", "Platform bearer token (defaults to PLATFORM_AUTHORIZATION_TOKEN)")
		c.Flags().StringVar(&orgIDFlag, "org", "", "Platform organization ID (defaults to PLATFORM_ORG_ID)")
	}
	republishCmd.Flags().StringVar(&courseIDFlag, "course-id", "", "Remote course ID from the previous publish report")
	republishCmd.Flags().StringVar(&indicesFlag, "indices", "", "Comma-separated zero-based module indices to retry")
	republishCmd.MarkFlagRequired("course-id")
	republishCmd.MarkFlagRequired("indices")

	rootCmd.AddCommand(extractCmd, generateCmd, publishCmd, republishCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runExtract(cmd *cobra.Command, args []string) {
	logging.Init()

	src, err := extract.Text(args[0])
	if err != nil {
		log.Fatal().Err(err).Str("path", args[0]).Msg("Text extraction failed")
	}

	if outputFlag == "" {
		fmt.Println(src.Content)
		return
	}
	if err := os.WriteFile(outputFlag, []byte(src.Content), 0o644); err != nil {
		log.Fatal().Err(err).Str("path", outputFlag).Msg("Failed to write output")
	}
	log.Info().Str("path", outputFlag).Int("chars", src.Length).Msg("Extracted text written")
}

func runGenerate(cmd *cobra.Command, args []string) {
	logging.Init()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}
	if cfg.GeminiAPIKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY is required")
	}

	ctx := context.Background()

	src, err := extract.Text(args[0])
	if err != nil {
		log.Fatal().Err(err).Str("path", args[0]).Msg("Text extraction failed")
	}
	log.Info().Str("file", src.OriginFilename).Int("chars", src.Length).Msg("Text extracted")

	gen, err := drafter.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create language-model client")
	}

	draft, audit, err := drafter.New(gen, fanoutConfig(cfg)).Draft(ctx, src)
	if err != nil {
		log.Fatal().Err(err).Msg("Course drafting failed")
	}
	log.Info().Str("title", draft.Info.Title).Int("modules", len(draft.Modules)).Msg("Course drafted")

	out := courseFile{Course: draft, Audit: audit}

	if !skipImages {
		if cfg.IdeogramAPIKey == "" {
			log.Fatal().Msg("IDEOGRAM_API_KEY is required unless --skip-images is set")
		}
		store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		images := imaging.NewPersistenceClient(imaging.NewIdeogramClient(cfg.IdeogramAPIKey), store)

		report, err := assemble.New(images, fanoutConfig(cfg)).Assemble(ctx, draft)
		if err != nil {
			log.Fatal().Err(err).Msg("Course assembly failed")
		}
		out.Assembly = report
	}

	writeJSON(outputFlag, out)
	log.Info().Str("path", outputFlag).Dur("elapsed", time.Since(start)).Msg("Course written")
}

func runPublish(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, client := platformClient()
	file := readCourseFile(args[0])

	report, err := publish.New(client, fanoutConfig(cfg)).Publish(context.Background(), file.Course)
	if err != nil {
		log.Fatal().Err(err).Msg("Publish failed")
	}
	printReport(report)
}

func runRepublish(cmd *cobra.Command, args []string) {
	logging.Init()

	indices, err := parseIndices(indicesFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --indices")
	}

	cfg, client := platformClient()
	file := readCourseFile(args[0])

	report, err := publish.New(client, fanoutConfig(cfg)).Republish(context.Background(), courseIDFlag, indices, file.Course)
	if err != nil {
		log.Fatal().Err(err).Msg("Republish failed")
	}
	printReport(report)
}

// platformClient loads configuration and builds an authenticated platform
// client, with flags taking precedence over the environment.
func platformClient() (*config.Config, *platform.Client) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}
	token := tokenFlag
	if token == "" {
		token = cfg.PlatformToken
	}
	if token == "" {
		log.Fatal().Msg("A platform token is required (--token or PLATFORM_AUTHORIZATION_TOKEN)")
	}
	orgID := orgIDFlag
	if orgID == "" {
		orgID = cfg.PlatformOrgID
	}
	if orgID == "" {
		log.Fatal().Msg("An organization ID is required (--org or PLATFORM_ORG_ID)")
	}
	return cfg, platform.NewClient(cfg.PlatformBaseURL, token, orgID)
}

func fanoutConfig(cfg *config.Config) fanout.Config {
	return fanout.Config{
		MaxParallelism: cfg.MaxParallelism,
		PerJobTimeout:  cfg.JobTimeout,
		MaxRetries:     cfg.MaxRetries,
	}
}

func readCourseFile(path string) *courseFile {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to read course file")
	}
	var file courseFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to parse course file")
	}
	if file.Course == nil {
		log.Fatal().Str("path", path).Msg("Course file carries no course")
	}
	return &file
}

func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to write output")
	}
}

func printReport(report *course.PublishReport) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode report")
	}
	fmt.Println(string(data))
}

func parseIndices(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	indices := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse index %q: %w", p, err)
		}
		indices = append(indices, n)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("no indices given")
	}
	return indices, nil
}
