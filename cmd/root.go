package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/boostsecurityio/integrity/analyze"
	"github.com/boostsecurityio/integrity/formatters/json"
	"github.com/boostsecurityio/integrity/formatters/noop"
	"github.com/boostsecurityio/integrity/formatters/pretty"
	"github.com/boostsecurityio/integrity/formatters/sarif"
	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/opa"
	"github.com/boostsecurityio/integrity/providers/authority"
	"github.com/boostsecurityio/integrity/providers/pkgmanager"
	"github.com/boostsecurityio/integrity/scanner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Format string
var Verbose bool
var (
	Version string
	Commit  string
	Date    string
)
var cfgFile string
var config = models.DefaultConfig()

// ErrIntegrityFailure is returned when at least one installed package does
// not match its published release.
var ErrIntegrityFailure = errors.New("integrity check failed")

const (
	exitCodeMismatch  = 1
	exitCodeErr       = 2
	exitCodeInterrupt = 130
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Verifies that installed packages match their published releases",
	Long: `Verifies that the packages installed in a project match their published releases
By BoostSecurity.io - https://github.com/boostsecurityio/integrity `,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if Verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		output := zerolog.ConsoleWriter{Out: os.Stderr}
		output.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		log.Logger = log.Output(output)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signalChan)
		cancel()
	}()

	go func() {
		select {
		case <-signalChan: // first signal, cancel context
			log.Debug().Msg("Interrupted, cancelling")
			cancel()
		case <-ctx.Done():
			return
		}
		<-signalChan // second signal, hard exit
		os.Exit(exitCodeInterrupt)
	}()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, ErrIntegrityFailure):
		return exitCodeMismatch
	case errors.Is(err, context.Canceled):
		log.Error().Msg("Interrupted")
		return exitCodeInterrupt
	}

	event := log.Error().Err(err)
	if kind := models.KindOf(err); kind != "" {
		event = event.Str("kind", string(kind))
	}
	event.Msg("")
	return exitCodeErr
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := models.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .integrity.yml in the current directory)")
	flags.StringVarP(&Format, "format", "f", "pretty", "Output format (pretty, json, sarif, github)")
	flags.BoolVarP(&Verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringP("manager", "m", defaults.Manager, fmt.Sprintf("Package manager of the project (%s)", strings.Join(pkgmanager.Names(), ", ")))
	flags.String("algorithm", defaults.Algorithm, fmt.Sprintf("Fingerprint algorithm (%s)", strings.Join(scanner.Algorithms(), ", ")))
	flags.IntP("workers", "j", 0, "Number of packages fingerprinted in parallel (default is the number of CPUs)")
	flags.String("authority-url", defaults.Authority.URL, "Base URL of the verification authority")
	flags.String("authority-file", "", "Baseline file used as an offline verification authority")
	flags.String("token", "", "Verification authority access token (or INTEGRITY_TOKEN)")
	flags.Duration("timeout", defaults.Authority.Timeout, "Time allowed for the verification authority to answer")
	flags.Int("max-retries", defaults.Authority.MaxRetries, "Retries of a failed request to the verification authority")

	bindings := map[string]string{
		"manager":               "manager",
		"algorithm":             "algorithm",
		"workers":               "workers",
		"authority.url":         "authority-url",
		"authority.file":        "authority-file",
		"authority.token":       "token",
		"authority.timeout":     "timeout",
		"authority.max_retries": "max-retries",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	viper.SetDefault("manager", defaults.Manager)
	viper.SetDefault("algorithm", defaults.Algorithm)
	viper.SetDefault("workers", 0)
	viper.SetDefault("authority.url", defaults.Authority.URL)
	viper.SetDefault("authority.file", "")
	viper.SetDefault("authority.token", "")
	viper.SetDefault("authority.timeout", defaults.Authority.Timeout)
	viper.SetDefault("authority.max_retries", defaults.Authority.MaxRetries)
	_ = viper.BindEnv("authority.token", "INTEGRITY_TOKEN", "INTEGRITY_AUTHORITY_TOKEN")
}

func initConfig() {
	viper.SetEnvPrefix("integrity")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".integrity")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Error().Err(err).Msg("Can't read config")
			os.Exit(exitCodeErr)
		}
	}

	config = models.DefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		log.Error().Err(err).Msg("Unable to unmarshal config")
		os.Exit(exitCodeErr)
	}
}

func newOpa(ctx context.Context, cfg *models.Config) (*opa.Opa, error) {
	opaClient, err := opa.NewOpa(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create OPA client")
		return nil, err
	}
	return opaClient, nil
}

func GetFormatter(ctx context.Context, cfg *models.Config, out io.Writer, projectDir string) (analyze.Formatter, error) {
	switch Format {
	case "pretty", "":
		return pretty.NewFormat(out), nil
	case "sarif":
		return sarif.NewFormat(out, Version, projectDir), nil
	case "noop":
		return &noop.Format{}, nil
	}

	opaClient, err := newOpa(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return json.NewFormat(opaClient, Format, out), nil
}

// GetAuthority returns the verification authority of cfg and the fingerprint
// algorithm it expects.
func GetAuthority(ctx context.Context, cfg *models.Config) (analyze.Authority, string, error) {
	if cfg.Authority.File != "" {
		fixture, err := authority.NewFixtureClientFromFile(cfg.Authority.File)
		if err != nil {
			return nil, "", err
		}
		if fixture.Algorithm() != cfg.Algorithm {
			log.Debug().
				Str("baseline", fixture.Algorithm()).
				Str("configured", cfg.Algorithm).
				Msg("Using the fingerprint algorithm of the baseline")
		}
		return fixture, fixture.Algorithm(), nil
	}

	userAgent := "integrity"
	if Version != "" {
		userAgent += "/" + Version
	}
	client, err := authority.NewClient(ctx, cfg.Authority, userAgent)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create verification authority client: %w", err)
	}
	return client, cfg.Algorithm, nil
}

func GetAnalyzer(ctx context.Context, cfg *models.Config, formatter analyze.Formatter) (*analyze.Analyzer, error) {
	lister, err := pkgmanager.NewLister(cfg.Manager)
	if err != nil {
		return nil, err
	}

	authorityClient, algorithm, err := GetAuthority(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fingerprinter, err := scanner.NewFingerprinter(algorithm)
	if err != nil {
		return nil, err
	}

	client := analyze.NewVerificationClient(authorityClient, cfg.Authority.Timeout)
	return analyze.NewAnalyzer(lister, fingerprinter, client, formatter, cfg), nil
}

func projectDirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}
