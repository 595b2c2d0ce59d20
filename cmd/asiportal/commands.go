package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ASI-Josh/asiportal/internal/config"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

// outcome mirrors one entry of a decide response.
type outcome struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- conversation ---

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Talk to the portal agents",
}

var conversationSendCmd = &cobra.Command{
	Use:   "send <thread-id> <message>",
	Short: "Send a message and wait for the agents to answer",
	Long: `Send a message to a thread and print every agent answer.

Examples:
  asiportal conversation send ops-weekly "Summarise open corrective actions"
  asiportal conversation send ims "Draft a calibration procedure" --agents ims --docs PRO-004`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agents, _ := cmd.Flags().GetString("agents")
		docs, _ := cmd.Flags().GetString("docs")
		notes, _ := cmd.Flags().GetString("notes")
		intent, _ := cmd.Flags().GetString("intent")

		body := map[string]any{"message": strings.Join(args[1:], " ")}
		if a := splitList(agents); len(a) > 0 {
			body["agents"] = a
		}
		if d := splitList(docs); len(d) > 0 {
			body["docIds"] = d
		}
		if notes != "" {
			body["meetingNotes"] = notes
		}
		if intent != "" {
			body["intent"] = intent
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Waiting for agents...")
		resp, err := client.post(cmd.Context(), "/conversation/"+url.PathEscape(args[0])+"/messages", body)
		if err != nil {
			return err
		}

		var result struct {
			CreatedMessages  []storage.Message `json:"createdMessages"`
			ActionRequestIDs []string          `json:"actionRequestIds"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, m := range result.CreatedMessages {
			printMessage(out, m)
		}
		if n := len(result.ActionRequestIDs); n > 0 {
			printSuccess("%d action(s) awaiting approval", n)
		}
		return nil
	},
}

var conversationListCmd = &cobra.Command{
	Use:   "list <thread-id>",
	Short: "Show a thread's recent messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/conversation/%s/messages?limit=%d", url.PathEscape(args[0]), limit))
		if err != nil {
			return err
		}

		var result struct {
			Messages []storage.Message `json:"messages"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Messages) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
			return nil
		}
		for _, m := range result.Messages {
			printMessage(cmd.OutOrStdout(), m)
		}
		return nil
	},
}

func init() {
	conversationSendCmd.Flags().String("agents", "", "comma-separated agent ids (default: configured defaults)")
	conversationSendCmd.Flags().String("docs", "", "comma-separated document ids to load as context")
	conversationSendCmd.Flags().String("notes", "", "meeting notes to include")
	conversationSendCmd.Flags().String("intent", "", "what the message is for")
	conversationListCmd.Flags().Int("limit", 50, "maximum number of messages")
	conversationCmd.AddCommand(conversationSendCmd)
	conversationCmd.AddCommand(conversationListCmd)
}

// --- actions ---

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Review and decide proposed actions",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if status != "" {
			q.Set("status", status)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/actions?"+q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Actions []storage.Action `json:"actions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Actions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No actions found.")
			return nil
		}
		renderActions(cmd.OutOrStdout(), result.Actions)
		return nil
	},
}

var actionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single action as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/actions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var action any
		if err := decodeJSON(resp, &action); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(action)
	},
}

var actionsCreateCmd = &cobra.Command{
	Use:   "create <action-type> <summary>",
	Short: "Propose an action for approval",
	Long: `Propose an action for approval.

Examples:
  asiportal actions create ims.incident.report "Forklift near miss" --payload '{"title":"Near miss","description":"..."}'
  asiportal actions create social.post "Launch post" --payload-file post.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, _ := cmd.Flags().GetString("payload")
		payloadFile, _ := cmd.Flags().GetString("payload-file")
		thread, _ := cmd.Flags().GetString("thread")

		if payloadFile != "" {
			data, err := os.ReadFile(payloadFile)
			if err != nil {
				return fmt.Errorf("reading payload file: %w", err)
			}
			payload = string(data)
		}
		if payload == "" {
			payload = "{}"
		}
		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON")
		}

		body := map[string]any{
			"operation":     "create",
			"actionType":    args[0],
			"summary":       args[1],
			"actionPayload": json.RawMessage(payload),
		}
		if thread != "" {
			body["threadId"] = thread
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/actions", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Proposed action %s (%s)", result["id"], result["status"])
		return nil
	},
}

var actionsApproveCmd = &cobra.Command{
	Use:   "approve <id>...",
	Short: "Approve and execute pending actions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideActions(cmd, "approve", args)
	},
}

var actionsRejectCmd = &cobra.Command{
	Use:   "reject <id>...",
	Short: "Reject pending actions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideActions(cmd, "reject", args)
	},
}

func decideActions(cmd *cobra.Command, op string, ids []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), "/actions", map[string]any{
		"operation": op,
		"actionIds": ids,
	})
	if err != nil {
		return err
	}

	var results []outcome
	if err := decodeJSON(resp, &results); err != nil {
		return err
	}
	renderOutcomes(cmd.OutOrStdout(), results)

	failed := 0
	for _, o := range results {
		if o.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d action(s) failed", failed, len(results))
	}
	return nil
}

func init() {
	actionsListCmd.Flags().String("status", "", "filter by status (pending, approved, rejected, executed, failed)")
	actionsListCmd.Flags().Int("limit", 50, "maximum number of actions")
	actionsCreateCmd.Flags().String("payload", "", "action payload as JSON")
	actionsCreateCmd.Flags().String("payload-file", "", "read the action payload from a file")
	actionsCreateCmd.Flags().String("thread", "", "conversation thread the action belongs to")
	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsShowCmd)
	actionsCmd.AddCommand(actionsCreateCmd)
	actionsCmd.AddCommand(actionsApproveCmd)
	actionsCmd.AddCommand(actionsRejectCmd)
}

// --- recipients ---

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Manage the people agents can mention and request reviews from",
}

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewers, _ := cmd.Flags().GetBool("reviewers")

		path := "/recipients"
		if reviewers {
			path += "?reviewers=true"
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Recipients []storage.Recipient `json:"recipients"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Recipients) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No recipients found.")
			return nil
		}
		renderRecipients(cmd.OutOrStdout(), result.Recipients)
		return nil
	},
}

var recipientsAddCmd = &cobra.Command{
	Use:   "add <id> <display-name> <email>",
	Short: "Add or update a recipient",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		reviewer, _ := cmd.Flags().GetBool("reviewer")
		inactive, _ := cmd.Flags().GetBool("inactive")

		active := !inactive
		body := map[string]any{
			"id":          args[0],
			"displayName": args[1],
			"email":       args[2],
			"role":        role,
			"reviewer":    reviewer,
			"active":      active,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/recipients", body)
		if err != nil {
			return err
		}

		var saved storage.Recipient
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}
		printSuccess("Saved recipient %s <%s>", saved.ID, saved.Email)
		return nil
	},
}

func init() {
	recipientsListCmd.Flags().Bool("reviewers", false, "only list document reviewers")
	recipientsAddCmd.Flags().String("role", "", "role shown in notifications")
	recipientsAddCmd.Flags().Bool("reviewer", false, "receive document review requests")
	recipientsAddCmd.Flags().Bool("inactive", false, "store the recipient as inactive")
	recipientsCmd.AddCommand(recipientsListCmd)
	recipientsCmd.AddCommand(recipientsAddCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorBold.Sprint(k.Key), k.Value)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nconfig file: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
