package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/chatwidget/internal/config"
	"github.com/h1v3-io/chatwidget/internal/logbuf"
	"github.com/h1v3-io/chatwidget/internal/server"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

type apiClient struct {
	baseURL string
	key     string
}

func (c *apiClient) get(path string, query url.Values) ([]byte, error) {
	u := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func healthCommand(api *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := api.get("/api/health", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}
}

func widgetsCommand(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "Inspect live widget instances",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List connected widgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := api.get("/api/widgets", nil)
			if err != nil {
				return err
			}
			var widgets []server.WidgetInfo
			if err := json.Unmarshal(body, &widgets); err != nil {
				return fmt.Errorf("decode widgets: %w", err)
			}
			for _, w := range widgets {
				fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-20s %3d msgs  %s\n",
					w.ID, w.State, w.Messages, w.ConnectedAt.Format(time.RFC3339))
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "show <id>",
		Short: "Show a widget snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api.get("/api/widgets/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	})
	return cmd
}

func conversationsCommand(api *apiClient) *cobra.Command {
	var (
		route string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Browse archived conversations",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived conversations (--route, --limit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if route != "" {
				q.Set("route", route)
			}
			body, err := api.get("/api/conversations", q)
			if err != nil {
				return err
			}
			var convs []protocol.Conversation
			if err := json.Unmarshal(body, &convs); err != nil {
				return fmt.Errorf("decode conversations: %w", err)
			}
			for _, c := range convs {
				who := c.UserInfo["name"]
				if who == "" {
					who = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-38s %-12s %-20s %s\n",
					c.ID, c.Route, who, c.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	list.Flags().StringVar(&route, "route", "", "Filter by route")
	list.Flags().IntVar(&limit, "limit", 50, "Max results")

	cmd.AddCommand(list, &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api.get("/api/conversations/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	})
	return cmd
}

func logsCommand(api *apiClient) *cobra.Command {
	var (
		level        string
		limit        int
		since        time.Duration
		conversation string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if level != "" {
				q.Set("level", level)
			}
			if conversation != "" {
				q.Set("conversation", conversation)
			}
			if since > 0 {
				q.Set("since", strconv.FormatInt(time.Now().Add(-since).UnixMilli(), 10))
			}
			body, err := api.get("/api/logs", q)
			if err != nil {
				return err
			}
			var entries []logbuf.Entry
			if err := json.Unmarshal(body, &entries); err != nil {
				return fmt.Errorf("decode logs: %w", err)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-5s %s%s\n",
					e.Time.Format("15:04:05.000"), e.Level, e.Message, formatAttrs(e))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().IntVar(&limit, "limit", 200, "Max entries")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this (e.g. 10m)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Only entries for this conversation id")
	return cmd
}

func formatAttrs(e logbuf.Entry) string {
	var b strings.Builder
	if e.ConversationID != "" {
		fmt.Fprintf(&b, " conversation_id=%s", e.ConversationID)
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with widgetd config files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a JSON or YAML config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return fmt.Errorf("invalid: %w", err)
			}
			w := cfg.WidgetConfig()
			fmt.Fprintln(cmd.OutOrStdout(), "config is valid")
			fmt.Fprintf(cmd.OutOrStdout(), "  endpoint: %s (route %s)\n", w.Endpoint.URL, w.Endpoint.Route)
			return nil
		},
	})
	return cmd
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}
