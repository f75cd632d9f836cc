// Package main provides the protect command line tool, which masks and
// unmasks text locally without running the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/gateway"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"github.com/raaihank/llm-privacy-gateway/internal/privacy"
)

// Version information (set by build process)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type options struct {
	configFile string
	backend    string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "protect",
		Short:         "Mask PII before it reaches a language model and restore it afterwards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Masking backend: pattern or model (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(
		newMaskCmd(opts),
		newUnmaskCmd(opts),
		newDetectCmd(opts),
		newStatusCmd(opts),
		newProcessCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "protect %s (commit: %s)\n", Version, GitCommit)
			},
		},
	)
	return rootCmd
}

func newMaskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mask [text]",
		Short: "Replace PII with placeholders and print the result with its mapping",
		Long:  "Replace PII with placeholders. Text is read from the arguments, or from stdin when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return withGateway(cmd, opts, func(gw *gateway.Gateway) error {
				res, err := gw.Mask(cmd.Context(), text, opts.backend)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newUnmaskCmd(opts *options) *cobra.Command {
	var mappingFile string
	cmd := &cobra.Command{
		Use:   "unmask [text]",
		Short: "Restore placeholders using a mapping file",
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := readMapping(mappingFile)
			if err != nil {
				return err
			}
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), privacy.Unmask(text, mapping))
			return err
		},
	}
	cmd.Flags().StringVar(&mappingFile, "mapping", "", "JSON file holding the placeholder mapping, as printed by mask")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func newDetectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [text]",
		Short: "List detected PII by category without masking",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return withGateway(cmd, opts, func(gw *gateway.Gateway) error {
				detected, err := gw.Detect(cmd.Context(), text, opts.backend)
				if err != nil {
					return err
				}
				return printJSON(cmd, detected)
			})
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the local model and the completion service are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGateway(cmd, opts, func(gw *gateway.Gateway) error {
				return printJSON(cmd, gw.Status(cmd.Context()))
			})
		},
	}
}

func newProcessCmd(opts *options) *cobra.Command {
	var skipCompletion bool
	cmd := &cobra.Command{
		Use:   "process [text]",
		Short: "Mask, send to the completion service and unmask the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			callLLM := !skipCompletion
			req := gateway.Request{
				Input:    text,
				UseModel: opts.backend == gateway.BackendModel,
				CallLLM:  &callLLM,
			}
			return withGateway(cmd, opts, func(gw *gateway.Gateway) error {
				resp, err := gw.Process(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	cmd.Flags().BoolVar(&skipCompletion, "no-completion", false, "Only mask; do not call the completion service")
	return cmd
}

// withGateway builds a gateway from configuration for the duration of fn
func withGateway(cmd *cobra.Command, opts *options, fn func(*gateway.Gateway) error) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	log := logger.NewNop()
	if opts.verbose {
		if log, err = logger.New(logger.Config{Level: "debug", Format: "console", Stderr: true}); err != nil {
			return err
		}
		defer log.Sync()
	}

	components, err := gateway.Build(cfg, log, nil, nil)
	if err != nil {
		return err
	}
	defer components.Close()

	if opts.backend != "" {
		if _, err := components.Gateway.Backend(opts.backend); err != nil {
			return err
		}
	}
	return fn(components.Gateway)
}

// inputText joins the arguments, or reads stdin when there are none
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// readMapping accepts either a bare mapping object or the full mask output
func readMapping(path string) (*privacy.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}

	var wrapped struct {
		Mapping *privacy.Mapping `json:"mapping"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Mapping != nil {
		return wrapped.Mapping, nil
	}

	mapping := privacy.NewMapping()
	if err := json.Unmarshal(data, mapping); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return mapping, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
