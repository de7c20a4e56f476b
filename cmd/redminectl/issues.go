package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/spf13/cobra"
)

func newIssuesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "Work with issues",
	}
	cmd.AddCommand(
		newIssuesListCmd(a),
		newIssuesGetCmd(a),
		newIssuesDeleteCmd(a),
	)
	return cmd
}

func newIssuesListCmd(a *app) *cobra.Command {
	var (
		lf        listFlags
		projectID int64
		statusID  string
		includes  []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lf.options()
			opts.Includes = includes
			opts.Filters = map[string]string{}
			if projectID > 0 {
				opts.Filters[model.IssueFilterProjectID] = strconv.FormatInt(projectID, 10)
			}
			if statusID != "" {
				opts.Filters[model.IssueFilterStatusID] = statusID
			}

			return runList(cmd.Context(), cmd.OutOrStdout(), a.connector, model.Issues, opts, lf.all,
				[]column[model.Issue]{
					{"ID", 6, func(i model.Issue) string { return idText(i.ID) }},
					{"PROJECT", 16, func(i model.Issue) string { return refName(i.Project) }},
					{"TRACKER", 10, func(i model.Issue) string { return refName(i.Tracker) }},
					{"STATUS", 10, func(i model.Issue) string { return refName(i.Status) }},
					{"SUBJECT", 50, func(i model.Issue) string { return i.Subject }},
				})
		},
	}
	lf.register(cmd)
	cmd.Flags().Int64Var(&projectID, "project-id", 0, "only issues of this project")
	cmd.Flags().StringVar(&statusID, "status-id", "", "status id, or open, closed, *")
	cmd.Flags().StringSliceVar(&includes, "include", nil, "associations to embed, e.g. relations")

	return cmd
}

func newIssuesGetCmd(a *app) *cobra.Command {
	var includes []string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			issue, err := a.connector.GetIssue(cmd.Context(), id, includes...)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "#%d %s\n", issue.ID, issue.Subject)
			printField(w, "Project", refName(issue.Project))
			printField(w, "Tracker", refName(issue.Tracker))
			printField(w, "Status", refName(issue.Status))
			printField(w, "Priority", refName(issue.Priority))
			printField(w, "Author", refName(issue.Author))
			printField(w, "Assignee", refName(issue.AssignedTo))
			if issue.Parent != nil {
				printField(w, "Parent", "#"+idText(issue.Parent.ID))
			}
			if issue.StartDate != nil {
				printField(w, "Start", issue.StartDate.Format("2006-01-02"))
			}
			if issue.DueDate != nil {
				printField(w, "Due", issue.DueDate.Format("2006-01-02"))
			}
			if issue.DoneRatio != nil {
				printField(w, "Done", strconv.Itoa(*issue.DoneRatio)+"%")
			}
			if issue.Description != "" {
				fmt.Fprintf(w, "\n%s\n", issue.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&includes, "include", nil, "associations to embed, e.g. journals,relations")

	return cmd
}

func newIssuesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.connector.DeleteIssue(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted issue #%d\n", id)
			return nil
		},
	}
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %-9s %s\n", label+":", value)
}
