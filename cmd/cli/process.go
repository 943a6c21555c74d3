package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iho/goimport/internal/adapter/http/dto"
	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/infrastructure/settings"
	"github.com/iho/goimport/internal/tui"
)

func processCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Import processes on the server",
	}
	cmd.AddCommand(
		createCmd(a),
		listCmd(a),
		showCmd(a),
		answerCmd(a),
		configureCmd(a),
		simpleActionCmd(a, "retry", "Retry the current step of a process", &dto.ActionRequest{Retry: true}),
		simpleActionCmd(a, "rollback", "Remove everything the process has stored", &dto.ActionRequest{Rollback: true}),
	)
	return cmd
}

// readFiles loads files for upload. Text files are sent as is, anything
// else base64 encoded.
func readFiles(paths []string) ([]dto.FileRequest, error) {
	files := make([]dto.FileRequest, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		f := dto.FileRequest{Name: filepath.Base(path), Encoding: string(domain.EncodingUTF8), Data: string(data)}
		if !utf8.Valid(data) {
			f.Encoding = string(domain.EncodingBase64)
			f.Data = base64.StdEncoding.EncodeToString(data)
		}
		files = append(files, f)
	}
	return files, nil
}

func createCmd(a *app) *cobra.Command {
	var (
		files      []string
		configFile string
		name       string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Upload files and start a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			files = append(files, args...)
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			uploads, err := readFiles(files)
			if err != nil {
				return err
			}
			config, err := settings.ReadProcessConfig(configFile)
			if err != nil {
				return err
			}
			process, err := a.client().createProcess(cmd.Context(), &dto.CreateProcessRequest{Name: name, Config: config, Files: uploads})
			if err != nil {
				return err
			}
			printProcess(a, process)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", nil, "file to import (repeatable)")
	cmd.Flags().StringVar(&configFile, "config", "", "process configuration as JSON")
	cmd.Flags().StringVar(&name, "name", "", "process name (default: first file name)")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			processes, err := a.client().listProcesses(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(processes) == 0 {
				fmt.Fprintln(a.out, "No processes.")
				return nil
			}
			for _, p := range processes {
				fmt.Fprintf(a.out, "%-26s  %-10s  %s  %s\n",
					p.ID,
					tui.StatusStyle(a.theme, p.Status).Render(string(p.Status)),
					p.CreatedAt.Format("2006-01-02 15:04"),
					truncate(p.Name, 40))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of processes")
	cmd.Flags().IntVar(&offset, "offset", 0, "processes to skip")
	return cmd
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a process and what it waits for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			process, err := a.client().getProcess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printProcess(a, process)
			return nil
		},
	}
}

func answerCmd(a *app) *cobra.Command {
	var (
		assignments []string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "answer ID",
		Short: "Answer the questions of a waiting process",
		Long: `Answers are given as element names of the question, for example
  --set answer.<segment>.<variable>=value --set configure.<setting>=value`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := a.client()
			values, err := tui.ParseAssignments(assignments)
			if err != nil {
				return err
			}
			if interactive {
				process, err := client.getProcess(ctx, args[0])
				if err != nil {
					return err
				}
				el := waitingElement(process)
				if el == nil {
					return fmt.Errorf("process %s is not waiting for answers", process.ID)
				}
				asked, err := tui.Ask(a.theme, el)
				if err != nil {
					return err
				}
				for k, v := range asked {
					values[k] = v
				}
			}
			actions, err := tui.Actions(values)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				return fmt.Errorf("nothing to answer, use --set or --interactive")
			}
			var process *dto.ProcessResponse
			for _, action := range actions {
				if process, err = client.input(ctx, args[0], actionRequest(action)); err != nil {
					return err
				}
			}
			printProcess(a, process)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "answer as name=value (repeatable)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask the questions in the terminal")
	return cmd
}

func configureCmd(a *app) *cobra.Command {
	var assignments []string
	cmd := &cobra.Command{
		Use:   "configure ID",
		Short: "Change settings of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := tui.ParseAssignments(assignments)
			if err != nil {
				return err
			}
			if len(values) == 0 {
				return fmt.Errorf("at least one --set key=value is required")
			}
			process, err := a.client().input(cmd.Context(), args[0], &dto.ActionRequest{Configure: values})
			if err != nil {
				return err
			}
			printProcess(a, process)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "setting as key=value (repeatable)")
	return cmd
}

func simpleActionCmd(a *app, use, short string, action *dto.ActionRequest) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			process, err := a.client().input(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			printProcess(a, process)
			return nil
		},
	}
}

func actionRequest(action *domain.ImportAction) *dto.ActionRequest {
	req := &dto.ActionRequest{
		Op:        string(action.Op),
		Retry:     action.Retry,
		Configure: action.Configure,
		Rollback:  action.Rollback,
	}
	if action.Answer != nil {
		req.Answer = make(map[string]map[string]any, len(action.Answer))
		for segment, values := range action.Answer {
			req.Answer[string(segment)] = values
		}
	}
	return req
}

func waitingElement(p *dto.ProcessResponse) *domain.Element {
	if p.Status != domain.ProcessStatusWaiting || p.Step == nil || p.Step.Directions == nil {
		return nil
	}
	return p.Step.Directions.Element
}

func printProcess(a *app, p *dto.ProcessResponse) {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		a.theme.Title.Render(p.Name),
		"  ",
		tui.StatusStyle(a.theme, p.Status).Render(string(p.Status)),
	)
	fmt.Fprintln(a.out, header)
	fmt.Fprintf(a.out, "ID: %s\n", p.ID)
	if p.Error != "" {
		fmt.Fprintln(a.out, a.theme.Error.Render(truncate(firstLine(p.Error), 200)))
	}
	if p.Step != nil {
		if p.Step.Output != nil {
			printResults(a, p.Step.Output)
		}
		if p.Step.Directions != nil && !p.Step.Directions.IsComplete() {
			fmt.Fprintln(a.out, tui.RenderDirections(a.theme, p.Step.Directions))
		}
	}
}

func printResults(a *app, r *domain.ApplyResults) {
	fmt.Fprintf(a.out, "Created: %d  Duplicates: %d  Ignored: %d  Skipped: %d\n", r.Created, r.Duplicates, r.Ignored, r.Skipped)
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
