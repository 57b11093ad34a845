// Package main is the operator tool that populates SSM Parameter Store with
// the rewardbridge secrets before a first deployment.
//
//	go run ./cmd/ops/bootstrap --env=dev --values=secrets.env
//	go run ./cmd/ops/bootstrap --env=dev --export-env
//	go run ./cmd/ops/bootstrap --env=prod --profile=rewards-prod --overwrite
//
// Values are read from the dotenv file given by --values, or from the
// process environment, keyed by the variable the service reads
// (MONDAY_API_TOKEN, UGIFTME_API_KEY, ...). Parameters already present in
// SSM are left alone unless --overwrite is set. The admin API key is
// generated and only its bcrypt hash is stored.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/joho/godotenv"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// session is the verified AWS identity the tool writes with.
type session struct {
	Environment string
	Region      string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: credential chain)")
	regionFlag := flag.String("region", "eu-west-2", "AWS region")
	endpointFlag := flag.String("endpoint-url", os.Getenv("AWS_ENDPOINT_URL"), "Override the AWS endpoint, e.g. LocalStack")
	valuesFlag := flag.String("values", "", "Dotenv file holding the secret values (default: process environment)")
	overwriteFlag := flag.Bool("overwrite", false, "Replace parameters that already exist")
	yesFlag := flag.Bool("yes", false, "Skip the production confirmation prompt")
	exportEnvFlag := flag.Bool("export-env", false, "Write the stored parameters to a .env file for local development")
	exportEnvPath := flag.String("export-env-path", ".env", "Path for --export-env")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bootstrap --env=dev [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Writes the rewardbridge secrets to SSM Parameter Store.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *envFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --env is required\n\n")
		flag.Usage()
		os.Exit(2)
	}
	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: invalid environment %q (must be dev, staging, or prod)\n", *envFlag)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := initializeSession(ctx, *envFlag, *profileFlag, *regionFlag, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	client := ssm.NewFromConfig(sess.AWSConfig, func(o *ssm.Options) {
		if *endpointFlag != "" {
			o.BaseEndpoint = aws.String(*endpointFlag)
		}
	})
	manager := NewSSMManager(client, sess.Environment, logger)

	if *exportEnvFlag {
		n, err := ExportEnv(ctx, manager, Inventory(), *exportEnvPath)
		if err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		logger.Info(".env file exported", "path", *exportEnvPath, "parameters", n)
		return
	}

	if sess.Environment == "prod" && !*yesFlag && !confirmProduction(os.Stdin, os.Stderr, sess) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	values, err := loadValues(*valuesFlag, Inventory(), os.LookupEnv)
	if err != nil {
		logger.Error("loading values failed", "error", err)
		os.Exit(1)
	}

	printBanner(os.Stderr, sess)
	runner := &Runner{SSM: manager, Values: values, Overwrite: *overwriteFlag, Out: os.Stderr}
	results, err := runner.Run(ctx, Inventory())
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	PrintSummary(os.Stderr, results)
	logger.Info("bootstrap completed", "env", sess.Environment, "account", sess.AccountID)
}

// loadValues reads the dotenv file at path, or the inventory variables from
// the environment when path is empty.
func loadValues(path string, inventory []Parameter, lookup func(string) (string, bool)) (map[string]string, error) {
	if path != "" {
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return values, nil
	}
	values := make(map[string]string, len(inventory))
	for _, p := range inventory {
		if v, ok := lookup(p.EnvVar); ok {
			values[p.EnvVar] = v
		}
	}
	return values, nil
}

// initializeSession loads the AWS configuration and confirms the identity
// with STS GetCallerIdentity before anything is written.
func initializeSession(ctx context.Context, env, profile, region string, logger *slog.Logger) (*session, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	idCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (profile %q, region %q): %w", profile, region, err)
	}

	s := &session{
		Environment: env,
		Region:      region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
	}
	logger.Info("AWS identity verified", "account_id", s.AccountID, "arn", s.CallerARN, "region", region)
	return s, nil
}

// confirmProduction returns true only when the operator types "yes".
func confirmProduction(in io.Reader, out io.Writer, s *session) bool {
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintf(out, "  Account: %s\n  Region:  %s\n", s.AccountID, s.Region)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprint(out, "Type 'yes' to continue: ")

	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(sc.Text()), "yes")
}

func printBanner(w io.Writer, s *session) {
	fmt.Fprintln(w, "------------------------------------------------------------")
	fmt.Fprintln(w, "  rewardbridge bootstrap")
	fmt.Fprintf(w, "  Environment:  %s\n", s.Environment)
	fmt.Fprintf(w, "  AWS Account:  %s\n", s.AccountID)
	fmt.Fprintf(w, "  AWS Region:   %s\n", s.Region)
	fmt.Fprintf(w, "  SSM Prefix:   /%s/rewardbridge/\n", s.Environment)
	fmt.Fprintln(w, "------------------------------------------------------------")
}
