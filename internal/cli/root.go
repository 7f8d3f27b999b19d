package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bizmatters/cad-copilot/internal/host"
)

// Options holds CLI-level configuration
type Options struct {
	Server  string
	Token   string
	Timeout time.Duration
}

// DefaultOptions reads COPILOT_SERVER and COPILOT_TOKEN
func DefaultOptions() Options {
	opts := Options{
		Server:  os.Getenv("COPILOT_SERVER"),
		Token:   os.Getenv("COPILOT_TOKEN"),
		Timeout: 5 * time.Minute,
	}
	if opts.Server == "" {
		opts.Server = "http://localhost:8080"
	}
	return opts
}

// NewRootCmd wires the cobra root command
func NewRootCmd(opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "copilotctl",
		Short:         "CAD copilot client",
		Long:          "copilotctl generates, runs and explains CAD scripts through a copilot server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.Server, "server", opts.Server, "Copilot server address")
	root.PersistentFlags().StringVar(&opts.Token, "token", opts.Token, "JWT from login (default $COPILOT_TOKEN)")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Request timeout")

	client := func() *Client { return NewClient(opts.Server, opts.Token, opts.Timeout) }

	root.AddCommand(
		newLoginCommand(client),
		newAskCommand(client),
		newExecCommand(client),
		newExplainCommand(client),
		newContextCommand(client),
		newRunsCommand(client),
		newHostCommand(client),
	)
	return root
}

func newLoginCommand(client func() *Client) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password required")
			}
			resp, err := client().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export COPILOT_TOKEN=%s\n", resp.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "Logged in as %s (%s), token expires %s\n",
				resp.Operator.Email, strings.Join(resp.Operator.Roles, ","), resp.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Operator email")
	cmd.Flags().StringVar(&password, "password", "", "Operator password")
	return cmd
}

func newAskCommand(client func() *Client) *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "ask [request]",
		Short: "Generate a script from natural language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			result, err := c.Chat(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			RenderGeneration(cmd.OutOrStdout(), result)
			if !execute || result.Error != nil || result.Code == "" {
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout())
			outcome, err := c.Execute(cmd.Context(), result.Code)
			if err != nil {
				return err
			}
			RenderOutcome(cmd.OutOrStdout(), outcome)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&execute, "execute", "x", false, "Run the generated code")
	return cmd
}

func newExecCommand(client func() *Client) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a script in the active document",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			outcome, err := client().Execute(cmd.Context(), code)
			if err != nil {
				return err
			}
			RenderOutcome(cmd.OutOrStdout(), outcome)
			if !outcome.Result.Success {
				return fmt.Errorf("execution failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Script file, - for stdin")
	return cmd
}

func newExplainCommand(client func() *Client) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain what a script does",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			text, err := client().Explain(cmd.Context(), code)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Script file, - for stdin")
	return cmd
}

func newContextCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Print the active document context as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := client().Context(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func newRunsCommand(client func() *Client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := client().Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			RenderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max runs to show")
	return cmd
}

// newHostCommand attaches an in-memory document as the CAD add-in. It needs a
// token with the host role.
func newHostCommand(client func() *Client) *cobra.Command {
	var document string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Attach a simulated CAD document to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := client().HostURL()
			if err != nil {
				return err
			}
			conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("failed to attach (status %d): %w", resp.StatusCode, err)
				}
				return fmt.Errorf("failed to attach: %w", err)
			}

			mem := host.NewMemoryHost()
			mem.Document.Name = document
			slog.Info("Simulated document attached", "document", document)
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving %q; press Ctrl-C to detach\n", document)
			return host.NewDispatcher(mem, conn).Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&document, "document", "Untitled", "Name of the simulated document")
	return cmd
}

// readCode reads a script from file, or from stdin when file is "-".
// An interactive stdin is refused rather than waited on.
func readCode(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return "", fmt.Errorf("no script given: pass --file or pipe one on stdin")
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("script is empty")
	}
	return string(data), nil
}

// Execute runs the root command with signal-aware ctx
func Execute(ctx context.Context, opts Options) error {
	return NewRootCmd(opts).ExecuteContext(ctx)
}
