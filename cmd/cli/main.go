package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"run-sphere/internal/programs"
	"run-sphere/internal/run"
	"run-sphere/internal/runtime"
)

var (
	v = viper.New()

	runLanguage  string
	fileLanguage string
	saveLanguage string

	stdin     string
	stdinFile string
	timeoutMs int

	historyLanguage string
	historyStatus   string
	historyLimit    int

	programID   string
	programName string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "runsphere",
		Short:        "CLI client for the run-sphere code runner",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	root.PersistentFlags().String("server", "http://localhost:5000", "Server URL")
	root.PersistentFlags().Duration("request-timeout", 70*time.Second, "HTTP client timeout")
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("request-timeout", root.PersistentFlags().Lookup("request-timeout"))

	runCmd := &cobra.Command{
		Use:   "run [code]",
		Short: "Run code (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCode,
	}
	runCmd.Flags().StringVarP(&runLanguage, "language", "l", "python", "Language")
	addRunFlags(runCmd)
	root.AddCommand(runCmd)

	runFileCmd := &cobra.Command{
		Use:   "run-file [file]",
		Short: "Run a source file, detecting the language from its extension",
		Args:  cobra.ExactArgs(1),
		RunE:  runFile,
	}
	runFileCmd.Flags().StringVarP(&fileLanguage, "language", "l", "", "Language (auto-detected from extension)")
	addRunFlags(runFileCmd)
	root.AddCommand(runFileCmd)

	root.AddCommand(&cobra.Command{
		Use:   "result [id]",
		Short: "Fetch a stored run result",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var res run.Result
			if err := apiClient().do("GET", "/api/result/"+url.PathEscape(args[0]), nil, &res); err != nil {
				return err
			}
			return printJSON(res)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(_ *cobra.Command, _ []string) error {
			var out map[string]any
			if err := apiClient().do("GET", "/health", nil, &out); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return printJSON(out)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		RunE: func(_ *cobra.Command, _ []string) error {
			var out []struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
				Extension   string `json:"extension"`
			}
			if err := apiClient().do("GET", "/api/languages", nil, &out); err != nil {
				return err
			}
			for _, l := range out {
				fmt.Printf("%-12s %-12s %s\n", l.Name, l.DisplayName, l.Extension)
			}
			return nil
		},
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List audited runs (requires a server database)",
		RunE:  runHistory,
	}
	historyCmd.Flags().StringVar(&historyLanguage, "language", "", "Filter by language")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (success, error, timeout)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	root.AddCommand(historyCmd)

	root.AddCommand(newProgramsCmd(), newSettingsCmd())
	return root
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&stdin, "stdin", "", "Standard input for the program")
	cmd.Flags().StringVar(&stdinFile, "stdin-file", "", "Read standard input from a file")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "Run timeout in milliseconds (server default when 0)")
}

// loadConfig reads ~/.runsphere.yaml and RUNSPHERE_* variables on top of
// the flag defaults.
func loadConfig() error {
	v.SetEnvPrefix("RUNSPHERE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(".runsphere")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func apiClient() *client {
	return newClient(v.GetString("server"), v.GetDuration("request-timeout"))
}

func runCode(_ *cobra.Command, args []string) error {
	var code string
	if len(args) > 0 {
		code = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		code = string(data)
	}
	return submit(code, runLanguage)
}

func runFile(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	lang, err := languageFor(args[0], fileLanguage)
	if err != nil {
		return err
	}
	return submit(string(data), lang)
}

// languageFor returns explicit when set, else the language owning the
// file extension.
func languageFor(path, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	ext := filepath.Ext(path)
	rt, ok := runtime.NewRegistry().ByExtension(ext)
	if !ok {
		return "", fmt.Errorf("cannot detect language for extension %q, use --language flag", ext)
	}
	return rt.Name(), nil
}

func submit(code, lang string) error {
	in := stdin
	if stdinFile != "" {
		data, err := os.ReadFile(stdinFile)
		if err != nil {
			return fmt.Errorf("reading stdin file: %w", err)
		}
		in = string(data)
	}

	payload := map[string]any{
		"language": lang,
		"code":     code,
		"stdin":    in,
	}
	if timeoutMs > 0 {
		payload["timeoutMs"] = timeoutMs
	}

	var res run.Result
	if err := apiClient().do("POST", "/api/run", payload, &res); err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}

	// Exit with the reported exit code
	if res.Status != run.StatusSuccess || (res.ExitCode != nil && *res.ExitCode != 0) {
		code := 1
		if res.ExitCode != nil && *res.ExitCode != 0 {
			code = *res.ExitCode
		}
		os.Exit(code)
	}
	return nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	q := url.Values{}
	if historyLanguage != "" {
		q.Set("language", historyLanguage)
	}
	if historyStatus != "" {
		q.Set("status", historyStatus)
	}
	q.Set("limit", strconv.Itoa(historyLimit))

	var out []map[string]any
	if err := apiClient().do("GET", "/api/runs?"+q.Encode(), nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func newProgramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "Manage saved programs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved programs",
		RunE: func(_ *cobra.Command, _ []string) error {
			var list []programs.Program
			if err := apiClient().do("GET", "/api/programs", nil, &list); err != nil {
				return err
			}
			for _, p := range list {
				fmt.Printf("%s  %-20s %-10s %s\n", p.ID, p.Name, p.Language, p.UpdatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	})

	saveCmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Save a file as a program, updating --id when it exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			lang, err := languageFor(args[0], saveLanguage)
			if err != nil {
				return err
			}
			code := string(data)
			in := programs.SaveInput{ID: programID, Language: &lang, Code: &code}
			if programName != "" {
				in.Name = &programName
			}
			var out map[string]string
			if err := apiClient().do("POST", "/api/programs", in, &out); err != nil {
				return err
			}
			fmt.Println(out["id"])
			return nil
		},
	}
	saveCmd.Flags().StringVar(&programID, "id", "", "Program id to update")
	saveCmd.Flags().StringVar(&programName, "name", "", "Program name")
	saveCmd.Flags().StringVarP(&saveLanguage, "language", "l", "", "Language (auto-detected from extension)")
	cmd.AddCommand(saveCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete saved programs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				var out map[string]bool
				if err := apiClient().do("DELETE", "/api/programs/"+url.PathEscape(args[0]), nil, &out); err != nil {
					return err
				}
				return printJSON(out)
			}
			var out map[string]int
			if err := apiClient().do("POST", "/api/programs/delete", map[string][]string{"ids": args}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change editor settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			var out programs.Settings
			if err := apiClient().do("GET", "/api/settings", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Change settings; values are parsed as JSON when possible",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := apiClient()
			var current programs.Settings
			if err := c.do("GET", "/api/settings", nil, &current); err != nil {
				return err
			}
			if err := applySettings(current, args); err != nil {
				return err
			}
			var out programs.Settings
			if err := c.do("PUT", "/api/settings", current, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore default settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			var out programs.Settings
			if err := apiClient().do("DELETE", "/api/settings", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	return cmd
}

// applySettings sets each key=value pair on s.
func applySettings(s programs.Settings, pairs []string) error {
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("setting %q is not key=value", pair)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		s[key] = val
	}
	return nil
}

func printJSON(v any) error {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(formatted))
	return nil
}
