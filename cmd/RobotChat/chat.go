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
	"golang.org/x/term"

	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/models"
)

var chatFlags struct {
	historyPath string
	system      string
	retries     int
	maxTokens   int64
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model from the terminal",
	Long: `Start an interactive conversation using the same retry policy and
context handling as the website widget. Commands: /history, /clear, /exit.`,
	RunE: runChat,
}

func registerChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&chatFlags.historyPath, "history", "", "restore a JSON [{role,message}] conversation before starting")
	cmd.Flags().StringVar(&chatFlags.system, "system", "", "system prompt for the conversation")
	cmd.Flags().IntVar(&chatFlags.retries, "retries", genai.DefaultRetries, "attempts per message")
	cmd.Flags().Int64Var(&chatFlags.maxTokens, "max-tokens", genai.DefaultMaxTokens, "reply token limit")
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := genai.NewClient(buildGenAIOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("chat model not configured: %w", err)
	}
	sess := genai.NewSession(genai.NewSender(client))

	if chatFlags.historyPath != "" {
		turns, err := loadHistory(chatFlags.historyPath)
		if err != nil {
			return err
		}
		sess.RestoreFromHistory(turns)
	}

	r := &repl{
		sess:        sess,
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		system:      chatFlags.system,
		opts:        genai.CallOptions{Retries: chatFlags.retries, MaxTokens: chatFlags.maxTokens},
	}
	return r.run(cmd.Context())
}

// loadHistory reads a UI-format conversation file.
func loadHistory(path string) ([]models.HistoryTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var turns []models.HistoryTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return turns, nil
}

// repl is the line-oriented chat loop behind the chat command.
type repl struct {
	sess        *genai.Session
	in          io.Reader
	out         io.Writer
	interactive bool
	system      string
	opts        genai.CallOptions
}

func (r *repl) run(ctx context.Context) error {
	r.applySystem()
	if r.interactive {
		if n := r.sess.Len(); n > 0 {
			fmt.Fprintf(r.out, "Restored %d messages.\n", n)
		}
		fmt.Fprintln(r.out, "Type /exit to quit.")
	}

	rd := bufio.NewReader(r.in)
	for {
		if r.interactive {
			fmt.Fprint(r.out, "> ")
		}
		raw, tooLong, err := readLine(rd, models.MaxMessageContentLength)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if tooLong {
			fmt.Fprintf(r.out, "error: message longer than %d bytes, not sent\n", models.MaxMessageContentLength)
			continue
		}
		line := strings.TrimSpace(raw)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			r.sess.Clear()
			r.applySystem()
			fmt.Fprintln(r.out, "History cleared.")
			continue
		case "/history":
			for _, m := range r.sess.History() {
				fmt.Fprintf(r.out, "[%s] %s\n", m.Role, m.Content)
			}
			continue
		}

		reply, err := r.sess.SendMessage(ctx, line, r.opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(r.out, reply)
	}
}

// readLine reads one line of input. A line over limit bytes is consumed and
// reported with tooLong set instead of being returned.
func readLine(rd *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, readErr := rd.ReadLine()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) && (len(buf) > 0 || tooLong) {
				return string(buf), tooLong, nil
			}
			return "", false, readErr
		}
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

func (r *repl) applySystem() {
	if r.system == "" {
		return
	}
	for _, m := range r.sess.History() {
		if m.Role == models.RoleSystem && m.Content == r.system {
			return
		}
	}
	// The system prompt goes first, ahead of any restored turns.
	history := r.sess.History()
	r.sess.Clear()
	r.sess.AddSystemMessage(r.system)
	for _, m := range history {
		switch m.Role {
		case models.RoleSystem:
			r.sess.AddSystemMessage(m.Content)
		case models.RoleUser:
			r.sess.AddUserMessage(m.Content)
		default:
			r.sess.AddAssistantMessage(m.Content)
		}
	}
}
