package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Parameter is one row of the secret inventory.
type Parameter struct {
	Label string
	// Key is the path below /{env}/rewardbridge/.
	Key string
	// EnvVar is the variable the service reads. The deployed service is
	// pointed at the parameter through EnvVar + "_SSM_PARAM".
	EnvVar   string
	Secure   bool
	Optional bool
	// Generate, when set, produces the value if none was supplied. reveal
	// is shown to the operator once and never stored.
	Generate func() (stored, reveal string, err error)
	Validate func(string) error
}

// Inventory lists every secret the service can resolve from SSM.
func Inventory() []Parameter {
	return []Parameter{
		{
			Label:    "Monday.com API token",
			Key:      "monday/api_token",
			EnvVar:   "MONDAY_API_TOKEN",
			Secure:   true,
			Validate: minLength(20),
		},
		{
			Label:    "Monday.com webhook signing secret",
			Key:      "monday/signing_secret",
			EnvVar:   "MONDAY_SIGNING_SECRET",
			Secure:   true,
			Validate: minLength(16),
		},
		{
			Label:    "UGiftMe API key",
			Key:      "ugiftme/api_key",
			EnvVar:   "UGIFTME_API_KEY",
			Secure:   true,
			Validate: minLength(16),
		},
		{
			Label:    "SendGrid API key",
			Key:      "sendgrid/api_key",
			EnvVar:   "SENDGRID_API_KEY",
			Secure:   true,
			Validate: prefixed("SG."),
		},
		{
			Label:    "Slack bot token",
			Key:      "slack/bot_token",
			EnvVar:   "SLACK_BOT_TOKEN",
			Secure:   true,
			Optional: true,
			Validate: prefixed("xoxb-"),
		},
		{
			Label:    "Postgres URL for run-locks and job history",
			Key:      "database/url",
			EnvVar:   "DATABASE_URL",
			Secure:   true,
			Optional: true,
			Validate: validateDatabaseURL,
		},
		{
			Label:    "Admin API key (bcrypt hash)",
			Key:      "security/admin_api_key_hash",
			EnvVar:   "ADMIN_API_KEY_HASH",
			Secure:   true,
			Generate: generateAdminKey,
		},
	}
}

func minLength(n int) func(string) error {
	return func(v string) error {
		if len(v) < n {
			return fmt.Errorf("must be at least %d characters (got %d)", n, len(v))
		}
		return nil
	}
}

func prefixed(p string) func(string) error {
	return func(v string) error {
		if !strings.HasPrefix(v, p) {
			return fmt.Errorf("must start with %q", p)
		}
		return nil
	}
}

func validateDatabaseURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("scheme must be postgres or postgresql, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

const adminKeyBytes = 32

// generateAdminKey creates a random admin key and returns its bcrypt hash
// for storage along with the plaintext for the operator.
func generateAdminKey() (string, string, error) {
	buf := make([]byte, adminKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating admin key: %w", err)
	}
	key := hex.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing admin key: %w", err)
	}
	return string(hash), key, nil
}

// Action is what the runner did with one parameter.
type Action string

const (
	ActionWritten     Action = "written"
	ActionGenerated   Action = "generated"
	ActionExists      Action = "exists"
	ActionNotProvided Action = "not provided"
)

type Result struct {
	Param  Parameter
	Path   string
	Action Action
}

// Runner writes the inventory to SSM. Values come from a dotenv file or the
// process environment, keyed by Parameter.EnvVar.
type Runner struct {
	SSM       *SSMManager
	Values    map[string]string
	Overwrite bool
	Out       io.Writer
}

type plannedWrite struct {
	result Result
	value  string
	reveal string
}

// Run validates every supplied value before writing anything, so a typo in
// one secret leaves the parameter store untouched.
func (r *Runner) Run(ctx context.Context, inventory []Parameter) ([]Result, error) {
	var (
		plan     []plannedWrite
		problems []string
	)

	for _, p := range inventory {
		path := r.SSM.Path(p.Key)
		exists, err := r.SSM.Exists(ctx, path)
		if err != nil {
			return nil, err
		}
		if exists && !r.Overwrite {
			plan = append(plan, plannedWrite{result: Result{Param: p, Path: path, Action: ActionExists}})
			continue
		}

		value := strings.TrimSpace(r.Values[p.EnvVar])
		switch {
		case value != "":
			if p.Validate != nil {
				if err := p.Validate(value); err != nil {
					problems = append(problems, fmt.Sprintf("%s (%s): %v", p.Label, p.EnvVar, err))
					continue
				}
			}
			plan = append(plan, plannedWrite{result: Result{Param: p, Path: path, Action: ActionWritten}, value: value})
		case p.Generate != nil:
			stored, reveal, err := p.Generate()
			if err != nil {
				return nil, err
			}
			plan = append(plan, plannedWrite{result: Result{Param: p, Path: path, Action: ActionGenerated}, value: stored, reveal: reveal})
		case p.Optional:
			plan = append(plan, plannedWrite{result: Result{Param: p, Path: path, Action: ActionNotProvided}})
		default:
			problems = append(problems, fmt.Sprintf("%s (%s): no value supplied", p.Label, p.EnvVar))
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("nothing written, fix these first:\n  %s", strings.Join(problems, "\n  "))
	}

	results := make([]Result, 0, len(plan))
	for _, w := range plan {
		if w.value != "" {
			if err := r.SSM.Put(ctx, w.result.Path, w.value, w.result.Param.Secure, r.Overwrite); err != nil {
				return results, err
			}
		}
		if w.reveal != "" && r.Out != nil {
			fmt.Fprintf(r.Out, "\n  %s: %s\n  Store it now, it is not shown again.\n\n", w.result.Param.Label, w.reveal)
		}
		results = append(results, w.result)
	}
	return results, nil
}

// PrintSummary lists each parameter's outcome and the *_SSM_PARAM pointers
// to set on the deployed functions.
func PrintSummary(w io.Writer, results []Result) {
	fmt.Fprintln(w, "------------------------------------------------------------")
	for _, res := range results {
		fmt.Fprintf(w, "  %-45s %s\n", res.Param.Label, res.Action)
	}
	fmt.Fprintln(w, "------------------------------------------------------------")
	fmt.Fprintln(w, "  Function environment:")
	for _, res := range results {
		if res.Action == ActionNotProvided {
			continue
		}
		fmt.Fprintf(w, "    %s_SSM_PARAM=%s\n", res.Param.EnvVar, res.Path)
	}
}
