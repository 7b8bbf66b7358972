package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	server "infosage/internal/http"
	"infosage/internal/model"
	"infosage/internal/verify"
)

var (
	verifyType        string
	verifyInput       string
	verifyConcurrency int
)

var verifyCmd = &cobra.Command{
	Use:   "verify [content]",
	Short: "Verify content and print the JSON result",
	Long: `Verify one piece of content, or one claim per line of --input
("-" reads standard input). Results are printed as JSON, one line per claim,
in input order. Failed verifications are reported on stderr and make the
command exit non-zero.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyType, "type", "t", "text", "Content type: text, link or file")
	verifyCmd.Flags().StringVarP(&verifyInput, "input", "i", "", "File with one claim per line (- for stdin)")
	verifyCmd.Flags().IntVar(&verifyConcurrency, "concurrency", 4, "Parallel verifications for --input")
}

func runVerify(cmd *cobra.Command, args []string) error {
	typ := model.ContentType(strings.ToLower(verifyType))
	switch typ {
	case model.ContentText, model.ContentLink, model.ContentFile:
	default:
		return fmt.Errorf("invalid --type %q (expected text|link|file)", verifyType)
	}

	var lines []string
	switch {
	case verifyInput != "" && len(args) > 0:
		return errors.New("pass either content or --input, not both")
	case verifyInput != "":
		var err error
		lines, err = readLines(verifyInput, cmd.InOrStdin())
		if err != nil {
			return err
		}
	case len(args) == 1:
		lines = []string{args[0]}
	default:
		return errors.New("nothing to verify: pass content or --input")
	}

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := verify.New(cfg, logger)
	if err != nil {
		return err
	}

	return verifyLines(cmd.Context(), svc, lines, typ, verifyConcurrency, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func readLines(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// verifyLines runs the verifications with at most concurrency in flight and
// writes results in input order. One failure does not stop the others.
func verifyLines(ctx context.Context, v server.Verifier, lines []string, typ model.ContentType, concurrency int, out, errOut io.Writer) error {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*model.VerificationResult, len(lines))
	errs := make([]error, len(lines))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, line := range lines {
		g.Go(func() error {
			o, err := v.Verify(ctx, model.VerifyRequest{Content: line, Type: typ})
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &o.Result
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(out)
	failed := 0
	for i := range lines {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(errOut, "line %d: %v\n", i+1, errs[i])
			continue
		}
		if err := enc.Encode(results[i]); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d verifications failed", failed, len(lines))
	}
	return nil
}
