package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"

	"github.com/linkmind/linkmind/internal/bookmarks"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/events"
	"github.com/linkmind/linkmind/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: linkmind <command> [flags]")
		fmt.Fprintln(os.Stderr, "Commands: serve, ask, analyze")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(cmdServe())
	case "ask":
		os.Exit(cmdAsk())
	case "analyze":
		os.Exit(cmdAnalyze())
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Commands: serve, ask, analyze")
		os.Exit(1)
	}
}

func cmdServe() int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg := config.DefaultFromEnv()

	configPath := fs.String("config", "", "Path to a YAML config file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")
	fs.BoolVar(&cfg.Production, "production", cfg.Production, "Hide upstream error detail from clients")
	fs.StringVar(&cfg.Upstream.BaseURL, "upstream", cfg.Upstream.BaseURL, "Upstream OpenAI-compatible base URL")
	fs.StringVar(&cfg.Upstream.Model, "model", cfg.Upstream.Model, "Default model name")
	fs.StringVar(&cfg.Upstream.APIMode, "api-mode", cfg.Upstream.APIMode, "Upstream API mode (chat_completions|responses)")
	fs.IntVar(&cfg.MaxToolTurns, "max-tool-turns", cfg.MaxToolTurns, "Tool round-trips allowed per chat request")
	fs.Parse(os.Args[2:])

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			slog.Error("failed to load config file", "error", err)
			return 1
		}
		// Flags given explicitly win over file values.
		fs.Parse(os.Args[2:])
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	srv := server.New(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("LinkMind starting", "host", cfg.Host, "port", cfg.Port, "upstream", cfg.Upstream.BaseURL)
	if err := srv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
		slog.Error("server error", "error", err)
		return 1
	}
	return 0
}

func cmdAsk() int {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", envOr("LINKMIND_SERVER", "http://127.0.0.1:8090"), "LinkMind server base URL")
	token := fs.String("token", os.Getenv("LINKMIND_ACCESS_TOKEN"), "Server access token")
	conversation := fs.String("conversation", "", "Conversation id to continue")
	library := fs.String("bookmarks", "", "JSON file holding the bookmark library to search")
	apiMode := fs.String("api-mode", "", "Upstream API mode override (chat_completions|responses)")
	jsonOut := fs.Bool("json", false, "Print the buffered JSON result instead of streaming text")
	fs.Parse(os.Args[2:])

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		fmt.Fprintln(os.Stderr, "Usage: linkmind ask [flags] <message>")
		return 1
	}

	payload := map[string]any{
		"message": message,
		"stream":  !*jsonOut,
	}
	if *conversation != "" {
		payload["conversationId"] = *conversation
	}
	if *apiMode != "" {
		payload["apiMode"] = *apiMode
	}
	if *library != "" {
		marks, err := loadBookmarks(*library)
		if err != nil {
			slog.Error("failed to load bookmarks", "error", err)
			return 1
		}
		payload["bookmarks"] = marks
	}

	resp, err := postJSON(*serverURL+"/v1/assistant/chat", *token, payload)
	if err != nil {
		slog.Error("request failed", "error", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return printHTTPError(resp)
	}

	if *jsonOut {
		return printIndented(resp.Body)
	}

	// Post-tool replies carry their text only on the final done event, so a
	// stream with no deltas is still a complete answer.
	reader := events.NewSSEReader(resp.Body)
	printed := false
	for {
		evt, err := reader.Next()
		if err == io.EOF {
			break
		}
		var se *events.StreamError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "\nError (%s): %s\n", se.Kind, se.Message)
			return 1
		}
		if err != nil {
			slog.Error("stream read failed", "error", err)
			return 1
		}
		switch evt.Type {
		case events.TypeMessageDelta:
			fmt.Print(evt.Delta)
			printed = true
		case events.TypeMessageDone:
			if !printed {
				fmt.Print(evt.Message)
			}
		}
	}
	fmt.Println()
	return 0
}

func cmdAnalyze() int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	serverURL := fs.String("server", envOr("LINKMIND_SERVER", "http://127.0.0.1:8090"), "LinkMind server base URL")
	token := fs.String("token", os.Getenv("LINKMIND_ACCESS_TOKEN"), "Server access token")
	title := fs.String("title", "", "Bookmark title")
	pageURL := fs.String("url", "", "Bookmark URL")
	description := fs.String("description", "", "Bookmark description")
	tags := fs.String("tags", "", "Comma-separated bookmark tags")
	contentPath := fs.String("content", "", "File holding the page text to analyze")
	fs.Parse(os.Args[2:])

	if *title == "" && *pageURL == "" {
		fmt.Fprintln(os.Stderr, "Usage: linkmind analyze -url <url> [flags]")
		return 1
	}

	bm := bookmarks.Bookmark{Title: *title, URL: *pageURL, Description: *description}
	for _, tag := range strings.Split(*tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			bm.Tags = append(bm.Tags, tag)
		}
	}

	payload := map[string]any{"bookmark": bm}
	if *contentPath != "" {
		content, err := os.ReadFile(*contentPath)
		if err != nil {
			slog.Error("failed to read content file", "error", err)
			return 1
		}
		payload["content"] = string(content)
	}

	resp, err := postJSON(*serverURL+"/v1/assistant/analyze", *token, payload)
	if err != nil {
		slog.Error("request failed", "error", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return printHTTPError(resp)
	}
	return printIndented(resp.Body)
}

func postJSON(url, token string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func printHTTPError(resp *http.Response) int {
	body, _ := io.ReadAll(resp.Body)
	kind := gjson.GetBytes(body, "error.kind").String()
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if kind != "" {
		fmt.Fprintf(os.Stderr, "Error (%s): %s\n", kind, message)
	} else {
		fmt.Fprintf(os.Stderr, "Error: HTTP %d %s\n", resp.StatusCode, message)
	}
	return 1
}

func printIndented(r io.Reader) int {
	body, err := io.ReadAll(r)
	if err != nil {
		slog.Error("reading response failed", "error", err)
		return 1
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(body)))
		return 0
	}
	fmt.Println(out.String())
	return 0
}

func loadBookmarks(path string) ([]bookmarks.Bookmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var marks []bookmarks.Bookmark
	if err := json.Unmarshal(data, &marks); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return marks, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
