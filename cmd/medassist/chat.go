// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/medassist/internal/assistant"
	"github.com/pdiddy/medassist/internal/ratelimit"
	"github.com/pdiddy/medassist/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask the medical assistant a question",
	Long: `Chat sends one message, with optional conversation history and patient
context, through the configured provider chain and prints the reply.

History is a YAML list of turns:

  - role: USER
    text: I was diagnosed with type 2 diabetes.
  - role: ASSISTANT
    text: ...

Messages that mention an emergency symptom get a fixed safety response.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	message, _ := cmd.Flags().GetString("message")
	if message == "" {
		message = strings.Join(args, " ")
	}
	user, _ := cmd.Flags().GetString("user")
	historyFile, _ := cmd.Flags().GetString("history-file")
	medicalContext, _ := cmd.Flags().GetString("context")
	specialtyFlag, _ := cmd.Flags().GetString("specialty")
	verbose, _ := cmd.Flags().GetBool("verbose")

	specialty, err := types.ParseSpecialty(specialtyFlag)
	if err != nil {
		return err
	}
	history, err := readHistory(historyFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	reply, err := a.assistant.GenerateChatReply(ctx, assistant.ChatRequest{
		UserID:         user,
		Message:        message,
		History:        history,
		MedicalContext: medicalContext,
		Specialty:      specialty,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", reply.Outcome, err)
	}
	if err := printReply(cmd.OutOrStdout(), reply, verbose); err != nil {
		return err
	}
	if verbose {
		printQuota(cmd.OutOrStdout(), a.assistant.Quota(user))
	}
	return nil
}

// printQuota shows what is left of the user's request allowance.
func printQuota(w io.Writer, st ratelimit.Status) {
	fmt.Fprintf(w, "quota: %.1f requests available", st.Tokens)
	if st.HourRemaining >= 0 {
		fmt.Fprintf(w, ", %d left this hour (resets %s)", st.HourRemaining, st.WindowResets.Format(time.Kitchen))
	}
	fmt.Fprintln(w)
}

func printReply(w io.Writer, reply assistant.ChatReply, verbose bool) error {
	fmt.Fprintln(w, reply.Text)
	if !verbose {
		return nil
	}
	fmt.Fprintf(w, "\noutcome: %s\nrequest: %s\n", reply.Outcome, reply.RequestID)
	if reply.Emergency != nil {
		fmt.Fprintf(w, "matched: %q\n", reply.Emergency.Keyword)
	}
	if r := reply.Result; r != nil {
		fmt.Fprintf(w, "provider: %s\nattempts: %d\ntokens: %d\nlatency: %dms\n",
			r.ProviderUsed, r.Attempts, r.TokensUsed, r.LatencyMs)
	}
	return nil
}

// readHistory loads conversation turns from a YAML file. An empty path
// means no history.
func readHistory(path string) ([]types.Turn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var turns []types.Turn
	if err := yaml.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parsing history %s: %w", path, err)
	}
	for i, t := range turns {
		role := types.Role(strings.ToUpper(string(t.Role)))
		if role != types.RoleUser && role != types.RoleAssistant {
			return nil, fmt.Errorf("history %s: turn %d has unknown role %q", path, i+1, t.Role)
		}
		turns[i].Role = role
	}
	return turns, nil
}

func init() {
	chatCmd.Flags().String("user", "local", "user ID for rate limiting")
	chatCmd.Flags().String("message", "", "message to send (default: positional arguments)")
	chatCmd.Flags().String("history-file", "", "YAML file with prior conversation turns")
	chatCmd.Flags().String("context", "", "patient medical context")
	chatCmd.Flags().String("specialty", "", "medical specialty, e.g. cardiology")
	chatCmd.Flags().BoolP("verbose", "v", false, "print provider, attempts and token usage")

	rootCmd.AddCommand(chatCmd)
}
