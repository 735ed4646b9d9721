package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document into the knowledge base",
	Long: `Upload a document into the knowledge base.

Supported formats: .txt, .md, .pdf, .html, .docx

Examples:
  memora upload ./notes.md
  memora upload ~/reports/q3.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/api/upload", args[0], data)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			DocumentID string `json:"document_id"`
			Filename   string `json:"filename"`
			ChunkCount int    `json:"chunk_count"`
			TotalChars int    `json:"total_characters"`
		}
		if err := decodeBody(resp, &result); err != nil {
			return err
		}

		printSuccess("Ingested %s (%d chunks, %d characters)", result.Filename, result.ChunkCount, result.TotalChars)
		printStatus("Document ID", "%s", result.DocumentID)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question, answered from the ingested documents",
	Long: `Ask a question, answered from the ingested documents.

Examples:
  memora ask "what does the warranty cover?"
  memora ask --session abc123 "and how do I claim it?"
  memora ask --mode developer --no-rag "explain goroutines"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		mode, _ := cmd.Flags().GetString("mode")
		noRAG, _ := cmd.Flags().GetBool("no-rag")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/chat", map[string]any{
			"message":    args[0],
			"session_id": sessionID,
			"mode":       mode,
			"use_rag":    !noRAG,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Response   string `json:"response"`
			SessionID  string `json:"session_id"`
			TokensUsed int    `json:"tokens_used"`
			Degraded   bool   `json:"degraded"`
		}
		if err := decodeBody(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		if result.Degraded {
			printWarning("document index was unavailable; answered without context")
		}
		printStatus("Session", "%s (%d tokens)", result.SessionID, result.TokensUsed)
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantically search the ingested documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/chat/rag/search", map[string]any{
			"query": args[0],
			"k":     k,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Results []struct {
				Filename string  `json:"filename"`
				Text     string  `json:"text"`
				Score    float32 `json:"score"`
			} `json:"results"`
			Degraded bool `json:"degraded"`
		}
		if err := decodeBody(resp, &result); err != nil {
			return err
		}

		if result.Degraded {
			printError("document index is unavailable")
			return nil
		}
		if len(result.Results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range result.Results {
			fmt.Printf("%.2f  %s\n%s\n\n", r.Score, r.Filename, r.Text)
		}
		return nil
	},
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/documents")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Documents []struct {
				ID         string `json:"id"`
				Filename   string `json:"filename"`
				ChunkCount int    `json:"chunk_count"`
				UploadedAt string `json:"uploaded_at"`
			} `json:"documents"`
			Count int `json:"count"`
		}
		if err := decodeBody(resp, &result); err != nil {
			return err
		}

		if result.Count == 0 {
			fmt.Println("no documents ingested")
			return nil
		}
		for _, d := range result.Documents {
			fmt.Printf("%s  %-30s  %3d chunks  %s\n", d.ID, d.Filename, d.ChunkCount, d.UploadedAt)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an ingested document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/documents/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := decodeBody(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

// --- modes ---

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List available chat personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/chat/modes")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Modes []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"modes"`
		}
		if err := decodeBody(resp, &result); err != nil {
			return err
		}

		for _, m := range result.Modes {
			fmt.Printf("%-10s  %-20s  %s\n", m.ID, m.Name, m.Description)
		}
		return nil
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Reset a chat session's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/chat/sessions/"+args[0]+"/clear", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := decodeBody(resp, nil); err != nil {
			return err
		}
		printSuccess("Cleared session %s", args[0])
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id to continue a conversation")
	askCmd.Flags().String("mode", "", "persona: assistant, developer, or support")
	askCmd.Flags().Bool("no-rag", false, "answer without document context")

	searchCmd.Flags().Int("limit", 5, "maximum number of results")

	documentsCmd.AddCommand(documentsDeleteCmd)
}
