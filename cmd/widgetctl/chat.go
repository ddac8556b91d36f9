package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/chatwidget/internal/endpoint"
	"github.com/h1v3-io/chatwidget/internal/terminal"
	"github.com/h1v3-io/chatwidget/internal/widget"
)

type chatFlags struct {
	endpoint  string
	route     string
	token     string
	secret    string
	name      string
	register  bool
	fields    []string
	suggested []string
	timeout   time.Duration
	noColor   bool
	verbose   bool
}

func chatCommand() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a chat widget in the terminal",
		Long: `Run a chat widget in the terminal against a messaging endpoint.

Type a message and press Enter. Commands:
  /1, /2, ...   send a suggested question
  /close        close the panel
  /open         reopen the panel
  exit          quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.endpoint, "endpoint", os.Getenv("CHATWIDGET_ENDPOINT_URL"), "Messaging endpoint URL")
	cmd.Flags().StringVar(&f.route, "route", "", "Route sent with every message (default general)")
	cmd.Flags().StringVar(&f.token, "token", "", "Bearer token for the endpoint")
	cmd.Flags().StringVar(&f.secret, "secret", "", "HMAC secret used to sign requests")
	cmd.Flags().StringVar(&f.name, "name", "", "Brand name shown in the header")
	cmd.Flags().BoolVar(&f.register, "register", false, "Ask for registration details before chatting")
	cmd.Flags().StringSliceVar(&f.fields, "fields", nil, "Registration fields (default name,email)")
	cmd.Flags().StringArrayVar(&f.suggested, "suggest", nil, "Suggested question (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Fail a request after this long (0 waits forever)")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colours")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}

func (f chatFlags) options() widget.Options {
	opts := widget.Options{
		Endpoint:           &widget.EndpointOptions{URL: &f.endpoint},
		RegistrationFields: f.fields,
		SuggestedQuestions: f.suggested,
	}
	if f.route != "" {
		opts.Endpoint.Route = &f.route
	}
	if f.name != "" {
		opts.Branding = &widget.BrandingOptions{Name: &f.name}
	}
	if f.register {
		opts.RequireRegistration = &f.register
	}
	return opts
}

func runChat(in io.Reader, out io.Writer, f chatFlags) error {
	cfg := widget.Resolve(f.options())
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := slog.LevelWarn
	if f.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var clientOpts []endpoint.Option
	if f.token != "" {
		clientOpts = append(clientOpts, endpoint.WithBearerToken(f.token))
	}
	if f.secret != "" {
		clientOpts = append(clientOpts, endpoint.WithSigningSecret(f.secret))
	}

	var surfaceOpts []terminal.Option
	if f.noColor {
		surfaceOpts = append(surfaceOpts, terminal.WithoutColor())
	}
	surface := terminal.New(out, surfaceOpts...)

	ctl := widget.New(cfg, endpoint.New(cfg.Endpoint.URL, clientOpts...), surface,
		widget.WithLogger(logger),
		widget.WithRequestTimeout(f.timeout),
	)
	defer ctl.Wait()
	ctl.Open()

	scanner := bufio.NewScanner(in)
	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		if surface.View() == terminal.ViewGate {
			values := make(map[string]string)
			for _, field := range surface.Fields() {
				v, ok := readLine(surface.Prompt(field.Placeholder))
				if !ok {
					return nil
				}
				values[field.Name] = v
			}
			ctl.Submit(values) // the surface marks invalid fields
			continue
		}

		line, ok := readLine(surface.Prompt(""))
		if !ok || line == "exit" || line == "quit" {
			return nil
		}
		if err := chatLine(ctl, line); err != nil {
			if !errors.Is(err, widget.ErrEmptyMessage) {
				fmt.Fprintf(out, "(%v)\n", err)
			}
			continue
		}
		ctl.Wait()
	}
}

func chatLine(ctl *widget.Controller, line string) error {
	switch line {
	case "/close":
		ctl.Close()
		return nil
	case "/open":
		ctl.Open()
		return nil
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(line, "/")); err == nil && strings.HasPrefix(line, "/") {
		return ctl.SelectSuggestion(n - 1)
	}
	return ctl.Send(line)
}
